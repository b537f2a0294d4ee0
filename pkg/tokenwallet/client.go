package tokenwallet

import (
	"bytes"
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

const (
	errCodeInsufficientBalance = "insufficient_balance"
	errCodeDuplicateReference  = "duplicate_reference"
)

var (
	errBaseURLRequired = errors.New("token wallet base url is required")
	errAPIKeyRequired  = errors.New("token wallet api key is required")
	errLoggerRequired  = errors.New("token wallet logger is required")
)

// Client exposes the token-wallet provider API with centralized auth,
// logging, and error mapping. Balances are whole tokens (100 tokens = 1
// currency unit); the wallet never deals in fractional tokens.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

// Balance is the wallet state for an account. A negative balance means the
// provider auto-deducted a renewal while we were not looking.
type Balance struct {
	AccountID string `json:"account_id"`
	Tokens    int64  `json:"balance"`
}

// DebitParams describes a token withdrawal. Reference must be unique per
// operation; the provider rejects replays of the same reference.
type DebitParams struct {
	AccountID string
	Tokens    int64
	Reference string
}

// CreditParams describes a token deposit (refunds, compensations).
type CreditParams struct {
	AccountID string
	Tokens    int64
	Reference string
}

// NewClient initializes the wallet wrapper and validates its configuration.
func NewClient(ctx context.Context, cfg config.TokenWalletConfig, logg *logger.Logger) (*Client, error) {
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

	logg.Info(ctx, "token wallet client initialized")
	return c, nil
}

// GetBalance fetches the current token balance for the billing account.
func (c *Client) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	c.log(ctx, "request", "get_balance", map[string]any{"account_id": accountID})

	var out Balance
	path := fmt.Sprintf("/v1/accounts/%s/balance", url.PathEscape(accountID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		c.log(ctx, "error", "get_balance", map[string]any{"error": err.Error()})
		return nil, c.mapWalletError(err, "get balance")
	}

	c.log(ctx, "response", "get_balance", map[string]any{"balance": out.Tokens})
	return &out, nil
}

// Debit withdraws tokens from the account. The provider enforces both the
// balance check and reference uniqueness atomically.
func (c *Client) Debit(ctx context.Context, params DebitParams) (*Balance, error) {
	c.log(ctx, "request", "debit", map[string]any{
		"account_id": params.AccountID,
		"tokens":     params.Tokens,
		"reference":  params.Reference,
	})

	body := map[string]any{"amount": params.Tokens, "reference": params.Reference}
	var out Balance
	path := fmt.Sprintf("/v1/accounts/%s/debits", url.PathEscape(params.AccountID))
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		c.log(ctx, "error", "debit", map[string]any{"error": err.Error()})
		return nil, c.mapWalletError(err, "debit")
	}

	c.log(ctx, "response", "debit", map[string]any{"balance": out.Tokens})
	return &out, nil
}

// Credit deposits tokens into the account.
func (c *Client) Credit(ctx context.Context, params CreditParams) (*Balance, error) {
	c.log(ctx, "request", "credit", map[string]any{
		"account_id": params.AccountID,
		"tokens":     params.Tokens,
		"reference":  params.Reference,
	})

	body := map[string]any{"amount": params.Tokens, "reference": params.Reference}
	var out Balance
	path := fmt.Sprintf("/v1/accounts/%s/credits", url.PathEscape(params.AccountID))
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		c.log(ctx, "error", "credit", map[string]any{"error": err.Error()})
		return nil, c.mapWalletError(err, "credit")
	}

	c.log(ctx, "response", "credit", map[string]any{"balance": out.Tokens})
	return &out, nil
}

type apiError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wallet api status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("wallet api status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode wallet request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build wallet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read wallet response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode wallet response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &payload)
	msg := payload.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	return &apiError{StatusCode: status, Code: payload.Error.Code, Message: msg}
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
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("wallet %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("wallet %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token_value", "secret", "key", "email"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapWalletError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		code := domainCodeForStatus(apiErr.StatusCode)
		switch apiErr.Code {
		case errCodeInsufficientBalance:
			code = pkgerrors.CodeStateConflict
		case errCodeDuplicateReference:
			code = pkgerrors.CodeIdempotency
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("wallet %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("wallet %s failed", op))
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
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
