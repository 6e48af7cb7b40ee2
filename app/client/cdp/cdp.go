// Package cdp fetches best-effort customer enrichment from the customer data
// platform. Failures never surface as errors; they come back as an
// unavailable enrichment with a reason.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"

	"shopassist/app/config"
)

const MaxTimeout = 2 * time.Second

type Field struct {
	Value       any    `json:"value"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
}

type Enrichment struct {
	Available      bool             `json:"cdp_available"`
	Fields         map[string]Field `json:"fields,omitempty"`
	FallbackReason string           `json:"fallbackReason,omitempty"`
}

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

func New(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return NewClient(cfg.CDP.BaseURL, cfg.CDP.Token, cfg.CDP.Timeout), nil
}

// NewClient clamps timeout to MaxTimeout; zero means MaxTimeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
}

func unavailable(reason string) Enrichment {
	return Enrichment{FallbackReason: reason}
}

// Fetch returns the enrichment for customerID.
func (c *Client) Fetch(ctx context.Context, customerID string) Enrichment {
	if c.baseURL == "" {
		return unavailable("cdp not configured")
	}
	if customerID == "" {
		return unavailable("no customer id")
	}
	if err := ctx.Err(); err != nil {
		return unavailable("cancelled")
	}

	agent := fiber.Get(fmt.Sprintf("%s/customers/%s/profile", c.baseURL, url.PathEscape(customerID))).
		Timeout(c.timeout).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}

	start := time.Now()
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		slog.Warn("CDP request failed",
			"customer_id", customerID,
			"duration", time.Since(start),
			"error", errs[0],
		)
		return unavailable(fmt.Sprintf("request failed: %v", errs[0]))
	}

	switch {
	case code == http.StatusNotFound:
		return unavailable("customer not found")
	case code != http.StatusOK:
		return unavailable(fmt.Sprintf("unexpected status %d", code))
	}

	var payload struct {
		Fields map[string]Field `json:"fields"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return unavailable("invalid response")
	}

	return Enrichment{
		Available: true,
		Fields:    payload.Fields,
	}
}

// Format renders available fields sorted by key, or an empty string.
func (e Enrichment) Format() string {
	if !e.Available || len(e.Fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		f := e.Fields[k]
		name := f.DisplayName
		if name == "" {
			name = k
		}
		lines = append(lines, fmt.Sprintf("%s: %v", name, f.Value))
	}

	return strings.Join(lines, "\n")
}
