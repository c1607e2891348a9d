package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/wallet-back/pkg/config"
)

// TriggerRecord is one audited bulk-sync trigger attempt
type TriggerRecord struct {
	ID         int64     `json:"id"`
	InstanceID string    `json:"instanceId"`
	Triggered  bool      `json:"triggered"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MySQLClient handles the trigger audit log
type MySQLClient struct {
	db     *sql.DB
	logger *logrus.Entry
	cfg    *config.MySQLConfig
}

// NewMySQLClient creates a new MySQL client
func NewMySQLClient(cfg *config.MySQLConfig, dsn string, logger *logrus.Logger) (*MySQLClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &MySQLClient{
		db:     db,
		logger: logger.WithField("component", "mysql"),
		cfg:    cfg,
	}, nil
}

// Migrate creates the audit schema
func (mc *MySQLClient) Migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sync_trigger_log (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			instance_id VARCHAR(64) NOT NULL,
			triggered BOOLEAN NOT NULL,
			reason VARCHAR(32) NOT NULL,
			error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_created_at (created_at)
		)`

	if _, err := mc.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create sync_trigger_log: %w", err)
	}

	mc.logger.Info("Migrations applied")
	return nil
}

// RecordTrigger appends one trigger attempt to the audit log
func (mc *MySQLClient) RecordTrigger(ctx context.Context, rec TriggerRecord) error {
	const query = `
		INSERT INTO sync_trigger_log (instance_id, triggered, reason, error)
		VALUES (?, ?, ?, ?)`

	if _, err := mc.db.ExecContext(ctx, query, rec.InstanceID, rec.Triggered, rec.Reason, rec.Error); err != nil {
		return fmt.Errorf("failed to record trigger: %w", err)
	}
	return nil
}

// RecentTriggers returns the newest audit entries, newest first
func (mc *MySQLClient) RecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	const query = `
		SELECT id, instance_id, triggered, reason, COALESCE(error, ''), created_at
		FROM sync_trigger_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := mc.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger log: %w", err)
	}
	defer rows.Close()

	var records []TriggerRecord
	for rows.Next() {
		var rec TriggerRecord
		if err := rows.Scan(&rec.ID, &rec.InstanceID, &rec.Triggered, &rec.Reason, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trigger record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trigger log: %w", err)
	}

	return records, nil
}

// Health checks MySQL health
func (mc *MySQLClient) Health(ctx context.Context) error {
	return mc.db.PingContext(ctx)
}

// Close closes the database connection
func (mc *MySQLClient) Close() error {
	return mc.db.Close()
}
