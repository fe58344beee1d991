// Package services contains clients for external systems used by the boost engine
package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/booster/config"
	"github.com/amirphl/booster/models"
	"github.com/amirphl/booster/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var (
	// ErrProviderNotConfigured is returned when no API key or base URL is set
	ErrProviderNotConfigured = errors.New("provider is not configured")
	// ErrProviderNoOrderID is returned when an add call answers without an order id
	ErrProviderNoOrderID = errors.New("provider returned no order id")
)

// ProviderError is an error message reported by the provider in a 200 response
type ProviderError struct {
	Action  string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error: %s", e.Action, e.Message)
}

var (
	providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_provider_requests_total",
			Help: "Total number of provider API calls partitioned by action and result",
		},
		[]string{"action", "result"},
	)

	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booster_provider_request_duration_seconds",
			Help:    "Provider API latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

// ProviderOrderStatus is the provider's view of one order
type ProviderOrderStatus struct {
	Status    string
	Charge    decimal.Decimal
	HasCharge bool
	Error     string
}

// LedgerStatus maps the provider status onto the order lifecycle. Completed
// becomes completed; Canceled and Fail become failed; anything else, including
// Partial and unknown values, is still active.
func (s ProviderOrderStatus) LedgerStatus() (models.BoostOrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s.Status)) {
	case "completed":
		return models.BoostOrderStatusCompleted, true
	case "canceled", "cancelled", "fail", "failed":
		return models.BoostOrderStatusFailed, true
	default:
		return "", false
	}
}

// Priced reports whether the provider reported a positive charge
func (s ProviderOrderStatus) Priced() bool {
	return s.HasCharge && s.Charge.IsPositive()
}

// ProviderClient places and polls orders at the upstream provider
type ProviderClient interface {
	CreateOrder(ctx context.Context, serviceID, link string, quantity int) (string, error)
	// GetStatus polls ids in batches of at most 50
	GetStatus(ctx context.Context, ids []string) (map[string]ProviderOrderStatus, error)
}

type httpProviderClient struct {
	cfg     config.ProviderConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewProviderClient builds the HTTP client for the provider API
func NewProviderClient(cfg config.ProviderConfig) (ProviderClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid provider proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // provider uses a self-signed chain
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &httpProviderClient{
		cfg: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

func (c *httpProviderClient) configured() bool {
	return c.cfg.APIKey != "" && c.cfg.BaseURL != ""
}

// CreateOrder issues action=add and returns the provider's order id
func (c *httpProviderClient) CreateOrder(ctx context.Context, serviceID, link string, quantity int) (string, error) {
	if !c.configured() {
		return "", ErrProviderNotConfigured
	}

	params := url.Values{}
	params.Set("action", "add")
	params.Set("service", serviceID)
	params.Set("link", link)
	params.Set("quantity", fmt.Sprintf("%d", quantity))

	body, err := c.call(ctx, "add", params)
	if err != nil {
		return "", err
	}

	var out struct {
		Order json.RawMessage `json:"order"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		providerRequestsTotal.WithLabelValues("add", "malformed").Inc()
		return "", fmt.Errorf("decode provider add response: %w", err)
	}
	if out.Error != "" {
		providerRequestsTotal.WithLabelValues("add", "provider_error").Inc()
		return "", &ProviderError{Action: "add", Message: out.Error}
	}

	id := rawScalar(out.Order)
	if id == "" || id == "0" {
		providerRequestsTotal.WithLabelValues("add", "no_order").Inc()
		return "", ErrProviderNoOrderID
	}
	providerRequestsTotal.WithLabelValues("add", "ok").Inc()
	return id, nil
}

// GetStatus issues action=status for up to 50 ids per request
func (c *httpProviderClient) GetStatus(ctx context.Context, ids []string) (map[string]ProviderOrderStatus, error) {
	if !c.configured() {
		return nil, ErrProviderNotConfigured
	}

	result := make(map[string]ProviderOrderStatus, len(ids))
	for start := 0; start < len(ids); start += utils.ProviderStatusBatchSize {
		end := min(start+utils.ProviderStatusBatchSize, len(ids))
		chunk, err := c.statusChunk(ctx, ids[start:end])
		if err != nil {
			return result, err
		}
		for id, st := range chunk {
			result[id] = st
		}
	}
	return result, nil
}

func (c *httpProviderClient) statusChunk(ctx context.Context, ids []string) (map[string]ProviderOrderStatus, error) {
	params := url.Values{}
	params.Set("action", "status")
	params.Set("order", strings.Join(ids, ","))

	body, err := c.call(ctx, "status", params)
	if err != nil {
		return nil, err
	}

	statuses, err := parseStatusResponse(body)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			providerRequestsTotal.WithLabelValues("status", "provider_error").Inc()
		} else {
			providerRequestsTotal.WithLabelValues("status", "malformed").Inc()
		}
		return nil, err
	}
	providerRequestsTotal.WithLabelValues("status", "ok").Inc()
	return statuses, nil
}

// call performs one rate-limited GET and returns the body of a 2xx response
func (c *httpProviderClient) call(ctx context.Context, action string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("key", c.cfg.APIKey)
	endpoint := c.cfg.BaseURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + params.Encode()
	} else {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	providerRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		providerRequestsTotal.WithLabelValues(action, "transport_error").Inc()
		return nil, fmt.Errorf("provider %s request: %w", action, redactKey(err, c.cfg.APIKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		providerRequestsTotal.WithLabelValues(action, "transport_error").Inc()
		return nil, fmt.Errorf("read provider %s response: %w", action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		providerRequestsTotal.WithLabelValues(action, "http_error").Inc()
		return nil, fmt.Errorf("provider %s http status: %d", action, resp.StatusCode)
	}
	return body, nil
}

// parseStatusResponse decodes {"<id>": {"status": ..., "charge": ...}, ...}.
// A top-level {"error": "..."} is a ProviderError; per-order errors are kept on the entry.
func parseStatusResponse(body []byte) (map[string]ProviderOrderStatus, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode provider status response: %w", err)
	}
	if msg, ok := raw["error"]; ok {
		var text string
		if json.Unmarshal(msg, &text) == nil {
			return nil, &ProviderError{Action: "status", Message: text}
		}
	}

	out := make(map[string]ProviderOrderStatus, len(raw))
	for id, entry := range raw {
		var item struct {
			Status string          `json:"status"`
			Charge json.RawMessage `json:"charge"`
			Error  string          `json:"error"`
		}
		if err := json.Unmarshal(entry, &item); err != nil {
			continue
		}
		st := ProviderOrderStatus{Status: item.Status, Error: item.Error}
		st.Charge, st.HasCharge = parseCharge(item.Charge)
		out[id] = st
	}
	return out, nil
}

// parseCharge accepts a JSON number or a numeric string
func parseCharge(raw json.RawMessage) (decimal.Decimal, bool) {
	s := rawScalar(raw)
	if s == "" || s == "null" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// rawScalar renders a JSON string or number as plain text
func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

// redactKey strips the API key from the URL carried by transport errors
func redactKey(err error, key string) error {
	var uerr *url.Error
	if key != "" && errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, url.QueryEscape(key), "***")
	}
	return err
}
