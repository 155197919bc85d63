// Package shopify talks to the Shopify Admin GraphQL API on behalf of a shop.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"cod-order-service/internal/config"
)

const maxResponseBytes = 4 << 20

var shopDomain = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// APIError is a refusal from Shopify: a non-2xx status, top-level GraphQL
// errors or mutation userErrors. Messages are for logs, not for shoppers.
type APIError struct {
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("shopify: status %d", e.Status)
	}
	return fmt.Sprintf("shopify: status %d: %s", e.Status, strings.Join(e.Messages, "; "))
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// TokenSource yields the Admin API access token for a shop.
type TokenSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}

// StaticTokens serves tokens from configuration.
type StaticTokens map[string]string

func (t StaticTokens) AccessToken(_ context.Context, shop string) (string, error) {
	if tok, ok := t[shop]; ok && tok != "" {
		return tok, nil
	}
	return "", fmt.Errorf("no static access token for %s", shop)
}

// FallbackTokens tries each source in order and returns the first token found.
type FallbackTokens []TokenSource

func (f FallbackTokens) AccessToken(ctx context.Context, shop string) (string, error) {
	var errs []error
	for _, src := range f {
		tok, err := src.AccessToken(ctx, shop)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("no token source configured for %s", shop)
	}
	return "", errors.Join(errs...)
}

type Client struct {
	cfg      config.ShopifyConfig
	delivery config.DeliveryConfig
	tokens   TokenSource
	http     *http.Client
	log      *zap.Logger

	endpoint func(shop string) string
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.ShopifyConfig, delivery config.DeliveryConfig, tokens TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:      cfg,
		delivery: delivery,
		tokens:   tokens,
		http:     &http.Client{},
		log:      logger.Named("shopify"),
		sleep:    sleepCtx,
	}
	c.endpoint = func(shop string) string {
		return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, c.cfg.APIVersion)
	}
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Execute runs one GraphQL operation for shop and decodes "data" into out.
// A timed out, throttled or 5xx attempt is retried once after the
// configured backoff; everything else is returned as is.
func (c *Client) Execute(ctx context.Context, shop, query string, vars map[string]any, out any) error {
	if !shopDomain.MatchString(shop) {
		return fmt.Errorf("shopify: invalid shop domain %q", shop)
	}
	token, err := c.tokens.AccessToken(ctx, shop)
	if err != nil {
		return fmt.Errorf("shopify: access token: %w", err)
	}
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("shopify: encode request: %w", err)
	}

	const attempts = 2
	for attempt := 1; ; attempt++ {
		err = c.do(ctx, shop, token, body, out)
		if err == nil || attempt == attempts || !c.retryable(ctx, err) {
			return err
		}
		c.log.Warn("retrying shopify call", zap.String("shop", shop), zap.Int("attempt", attempt), zap.Error(err))
		if serr := c.sleep(ctx, c.cfg.RetryBackoff); serr != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, shop, token string, body []byte, out any) error {
	actx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.endpoint(shop), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("shopify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("shopify: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("shopify: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Messages: []string{errorText(raw, resp.Status)}}
	}

	var gr graphQLResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("shopify: decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		return &APIError{Status: resp.StatusCode, Messages: msgs}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("shopify: decode data: %w", err)
	}
	return nil
}

// retryable reports whether err is worth one more attempt. A cancelled or
// expired caller context never is.
func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func errorText(raw []byte, status string) string {
	var body struct {
		Errors any `json:"errors"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Errors != nil {
		if s, ok := body.Errors.(string); ok {
			return s
		}
		if b, err := json.Marshal(body.Errors); err == nil {
			return string(b)
		}
	}
	return status
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
