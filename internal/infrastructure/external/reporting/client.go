// Package reporting is the HTTP client for the PDF reporting backend.
// Requests are rate limited and guarded by a circuit breaker. They are never
// retried: a failed report is reported to the caller as is.
package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/edupredict/risk-monitor/internal/application/report"
	"github.com/edupredict/risk-monitor/pkg/circuitbreaker"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig configures the reporting client.
type ClientConfig struct {
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey  string
	Timeout time.Duration

	RateLimiter RateLimiterConfig

	BreakerThreshold int
	BreakerTimeout   time.Duration

	// MaxBodyBytes caps the size of a downloaded report.
	MaxBodyBytes int64

	Logger *logger.Logger
}

// DefaultClientConfig returns defaults for baseURL.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:          baseURL,
		Timeout:          2 * time.Minute,
		RateLimiter:      DefaultRateLimiterConfig(),
		BreakerThreshold: 3,
		BreakerTimeout:   45 * time.Second,
		MaxBodyBytes:     64 << 20,
	}
}

// errorBody is the backend's JSON error shape.
type errorBody struct {
	Error string `json:"error"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements report.Backend.
type Client struct {
	cfg         ClientConfig
	baseURL     *url.URL
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	log         *logger.Logger
}

var _ report.Backend = (*Client)(nil)

// NewClient validates the base URL and builds a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid reporting base url %q", cfg.BaseURL)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultClientConfig("").MaxBodyBytes
	}

	log := cfg.Logger.With(logger.Component("reporting_client"))
	c := &Client{
		cfg:         cfg,
		baseURL:     base,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimiter),
		log:         log,
	}
	c.breaker = circuitbreaker.ReportingBreaker(
		cfg.BreakerThreshold,
		cfg.BreakerTimeout,
		countsAgainstBreaker,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("reporting circuit changed state",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	)
	return c, nil
}

// countsAgainstBreaker selects transport failures and 5xx answers. A 4xx
// answer such as "no students" is a valid reply from a healthy backend.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return false
	}
	var f *report.Failure
	if errors.As(err, &f) {
		return f.StatusCode == 0 || f.StatusCode >= 500
	}
	return true
}

// Generate downloads one report.
func (c *Client) Generate(ctx context.Context, kind report.Kind) (*report.Artifact, error) {
	var art *report.Artifact
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := c.rateLimiter.Allow(ctx); err != nil {
			return err
		}
		var err error
		art, err = c.fetch(ctx, kind)
		return err
	})
	if err == nil {
		return art, nil
	}

	var f *report.Failure
	if errors.As(err, &f) {
		return nil, f
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		c.log.Warn("reporting backend circuit open", logger.ReportKind(kind.String()))
	}
	return nil, report.NewFailure(kind, 0, "", err)
}

func (c *Client) fetch(ctx context.Context, kind report.Kind) (*report.Artifact, error) {
	endpoint := c.baseURL.JoinPath("api", "reports", kind.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf, application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.Debug("reporting backend answered",
		logger.ReportKind(kind.String()),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		c.rateLimiter.RecordRateLimitHit()
	}
	if resp.StatusCode >= 400 {
		return nil, report.NewFailure(kind, resp.StatusCode, errorMessage(body), nil)
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, report.NewFailure(kind, resp.StatusCode, "", fmt.Errorf("report exceeds %d bytes", c.cfg.MaxBodyBytes))
	}

	return &report.Artifact{
		Kind:        kind,
		Filename:    filenameFromDisposition(resp.Header.Get("Content-Disposition")),
		ContentType: contentType(resp.Header.Get("Content-Type")),
		Data:        body,
	}, nil
}

// errorMessage extracts the "error" field of a JSON error body. Anything else
// yields an empty string.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return eb.Error
}

// filenameFromDisposition returns the base name from a Content-Disposition
// header, or "" when absent or malformed.
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}

func contentType(header string) string {
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return mediaType
}

// BreakerState exposes the circuit state for readiness checks.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}
