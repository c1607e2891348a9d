package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `env:", prefix=SERVER_"`
	Store    StoreConfig    `env:", prefix=STORE_"`
	Redis    RedisConfig    `env:", prefix=REDIS_"`
	MySQL    MySQLConfig    `env:", prefix=MYSQL_"`
	NATS     NATSConfig     `env:", prefix=NATS_"`
	Stream   StreamConfig   `env:", prefix=STREAM_"`
	Sync     SyncConfig     `env:", prefix=SYNC_"`
	Backend  BackendConfig  `env:", prefix=BACKEND_"`
	Security SecurityConfig `env:", prefix=SECURITY_"`
	Logging  LoggingConfig  `env:", prefix=LOG_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// StoreConfig selects the durable key-value backend
type StoreConfig struct {
	Backend   string `env:"BACKEND, default=redis"` // redis or memory
	KeyPrefix string `env:"KEY_PREFIX, default=wallets"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
}

// MySQLConfig holds the trigger audit log database configuration
type MySQLConfig struct {
	Enabled         bool          `env:"ENABLED, default=true"`
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=walletsync"`
	User            string        `env:"USER, default=walletsync"`
	Password        string        `env:"PASSWORD"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// NATSConfig holds NATS configuration (nats stream transport only)
type NATSConfig struct {
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
}

// StreamConfig holds the inbound sync event stream configuration
type StreamConfig struct {
	Transport        string        `env:"TRANSPORT, default=sse"` // sse or nats
	URL              string        `env:"URL, default=http://localhost:3001/api/v1/wallets/sync/stream"`
	AuthToken        string        `env:"AUTH_TOKEN"`
	UserID           string        `env:"USER_ID"`
	ReconnectMin     time.Duration `env:"RECONNECT_MIN, default=1s"`
	ReconnectMax     time.Duration `env:"RECONNECT_MAX, default=30s"`
	HeartbeatTimeout time.Duration `env:"HEARTBEAT_TIMEOUT, default=90s"`
}

// SyncConfig holds auto-sync coordinator configuration
type SyncConfig struct {
	AutoEnabled     bool          `env:"AUTO_ENABLED, default=true"`
	Cooldown        time.Duration `env:"COOLDOWN, default=30s"`
	TriggerDebounce time.Duration `env:"TRIGGER_DEBOUNCE, default=1500ms"`
}

// BackendConfig holds the wallet backend API configuration
type BackendConfig struct {
	APIURL    string        `env:"API_URL, default=http://localhost:3001/api/v1"`
	AuthToken string        `env:"AUTH_TOKEN"`
	Timeout   time.Duration `env:"TIMEOUT, default=30s"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CORSEnabled bool     `env:"CORS_ENABLED, default=true"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`
	CORSMethods []string `env:"CORS_METHODS, default=GET,POST,DELETE,OPTIONS"`
	CORSHeaders []string `env:"CORS_HEADERS, default=*"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	ctx := context.Background()
	var cfg Config

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Backend {
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("Redis host is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	switch c.Stream.Transport {
	case "sse":
		if c.Stream.URL == "" {
			return fmt.Errorf("stream URL is required")
		}
	case "nats":
		if c.NATS.URL == "" {
			return fmt.Errorf("NATS URL is required")
		}
	default:
		return fmt.Errorf("unknown stream transport: %s", c.Stream.Transport)
	}

	if c.MySQL.Enabled && c.MySQL.Host == "" {
		return fmt.Errorf("MySQL host is required")
	}

	return nil
}

// GetMySQLDSN returns MySQL DSN string
func (c *Config) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.Database,
	)
}

// GetRedisAddr returns Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
