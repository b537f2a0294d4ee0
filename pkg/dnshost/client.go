package dnshost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zonecraft/portal-backend/pkg/config"
	pkgerrors "github.com/zonecraft/portal-backend/pkg/errors"
	"github.com/zonecraft/portal-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("dns host base url is required")
	errAPIKeyRequired  = errors.New("dns host api key is required")
	errLoggerRequired  = errors.New("dns host logger is required")
)

// Client exposes the DNS hosting provider API. The provider is the
// authoritative inventory for zones; local managed_domain rows mirror it.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

// Zone is a hosted DNS zone on the provider side.
type Zone struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RecordCount int    `json:"record_count"`
}

// NewClient initializes the DNS host wrapper and validates its configuration.
func NewClient(ctx context.Context, cfg config.DNSHostConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logg,
	}

	logg.Info(ctx, "dns host client initialized")
	return c, nil
}

// ListZones returns every zone the provider hosts for the account.
func (c *Client) ListZones(ctx context.Context, accountID string) ([]Zone, error) {
	c.log(ctx, "request", "list_zones", map[string]any{"account_id": accountID})

	var out struct {
		Zones []Zone `json:"zones"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/zones", url.PathEscape(accountID))
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		c.log(ctx, "error", "list_zones", map[string]any{"error": err.Error()})
		return nil, c.mapProviderError(err, "list zones")
	}

	c.log(ctx, "response", "list_zones", map[string]any{"count": len(out.Zones)})
	return out.Zones, nil
}

// DeleteZone removes a hosted zone and all of its records.
func (c *Client) DeleteZone(ctx context.Context, zoneID string) error {
	c.log(ctx, "request", "delete_zone", map[string]any{"zone_id": zoneID})

	path := fmt.Sprintf("/v1/zones/%s", url.PathEscape(zoneID))
	if err := c.do(ctx, http.MethodDelete, path, nil); err != nil {
		c.log(ctx, "error", "delete_zone", map[string]any{"error": err.Error()})
		return c.mapProviderError(err, "delete zone")
	}

	c.log(ctx, "response", "delete_zone", map[string]any{"zone_id": zoneID})
	return nil
}

type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("dns host api status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build dns host request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dns host request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read dns host response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &payload)
		msg := payload.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &apiError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode dns host response: %w", err)
		}
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("dns host %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("dns host %s", phase))
	}
}

func (c *Client) mapProviderError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return pkgerrors.Wrap(domainCodeForStatus(apiErr.StatusCode), err, fmt.Sprintf("dns host %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("dns host %s failed", op))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
