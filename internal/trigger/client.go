package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wallet-back/pkg/config"
	"github.com/wallet-back/pkg/models"
)

// Client triggers a bulk wallet sync on the wallet backend
type Client interface {
	TriggerBulkSync(ctx context.Context) (*models.TriggerResponse, error)
}

// HTTPClient calls the wallet backend's sync-all endpoint
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	logger     *logrus.Entry
}

// NewHTTPClient creates a new bulk-sync trigger client
func NewHTTPClient(cfg *config.BackendConfig, logger *logrus.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   strings.TrimSuffix(cfg.APIURL, "/"),
		authToken: cfg.AuthToken,
		logger:    logger.WithField("component", "trigger-client"),
	}
}

// TriggerBulkSync issues POST /wallets/sync-all. A transport error, a
// non-2xx status, or a success:false body all count as a failed trigger.
func (c *HTTPClient) TriggerBulkSync(ctx context.Context) (*models.TriggerResponse, error) {
	url := c.baseURL + "/wallets/sync-all"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync-all: %w", err)
	}
	defer resp.Body.Close()

	var body models.TriggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode sync-all response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if body.Error != nil {
			return &body, fmt.Errorf("sync-all failed: %s (%s)", body.Error.Message, body.Error.Code)
		}
		return &body, fmt.Errorf("sync-all returned status %d", resp.StatusCode)
	}

	if !body.Success {
		if body.Error != nil {
			return &body, fmt.Errorf("sync-all rejected: %s (%s)", body.Error.Message, body.Error.Code)
		}
		return &body, fmt.Errorf("sync-all rejected without error detail")
	}

	jobs := 0
	if body.Data != nil {
		jobs = len(body.Data.SyncJobs)
	}
	c.logger.WithField("jobs", jobs).Info("Bulk sync triggered")

	return &body, nil
}
