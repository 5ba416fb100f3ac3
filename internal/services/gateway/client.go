package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/songcraft/backend/internal/config"
	"github.com/songcraft/backend/pkg/logger"
	"golang.org/x/time/rate"
)

// Client is the HTTP implementation of PaymentGateway. Outgoing calls are
// rate limited to respect the processor's limits; the sweeper's worker pool
// shares this limiter with interactive settlement calls.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg *config.GatewayConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

type captureRequest struct {
	AmountCents int64  `json:"amount_cents"`
	CustomerRef string `json:"customer_ref"`
}

type refundRequest struct {
	PaymentReference string `json:"payment_reference"`
	AmountCents      int64  `json:"amount_cents"`
}

type transferRequest struct {
	DestinationAccount string `json:"destination_account"`
	AmountCents        int64  `json:"amount_cents"`
}

type gatewayResponse struct {
	Reference string `json:"reference"`
	Error     string `json:"error,omitempty"`
}

func (c *Client) Capture(ctx context.Context, amountCents int64, customerRef string) (string, error) {
	return c.post(ctx, "/v1/captures", captureRequest{
		AmountCents: amountCents,
		CustomerRef: customerRef,
	}, "")
}

func (c *Client) Refund(ctx context.Context, paymentRef string, amountCents int64, idempotencyKey string) (string, error) {
	return c.post(ctx, "/v1/refunds", refundRequest{
		PaymentReference: paymentRef,
		AmountCents:      amountCents,
	}, idempotencyKey)
}

func (c *Client) Transfer(ctx context.Context, destinationAccount string, amountCents int64, idempotencyKey string) (string, error) {
	return c.post(ctx, "/v1/transfers", transferRequest{
		DestinationAccount: destinationAccount,
		AmountCents:        amountCents,
	}, idempotencyKey)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, idempotencyKey string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are transient from the caller's point of view.
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var parsed gatewayResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			parsed.Error = string(respBody)
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		logger.Info().
			Str("path", path).
			Str("idempotency_key", idempotencyKey).
			Str("reference", parsed.Reference).
			Msg("gateway call succeeded")
		return parsed.Reference, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, parsed.Error)
	default:
		// 4xx responses mean the processor understood and refused the call.
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, parsed.Error)
	}
}
