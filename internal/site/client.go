package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"

	"assent/internal/platform/tracer"
	dErrors "assent/pkg/domain-errors"
)

const (
	defaultTimeout        = 5 * time.Second
	defaultMaxConfigBytes = 1 << 20
)

// ClientOptions tune the runtime-config fetch path.
type ClientOptions struct {
	Timeout        time.Duration
	MaxConfigBytes int64
	// Circuit breaker knobs. The breaker is host-level fast-fail: once the
	// config endpoint misbehaves repeatedly, page loads stop waiting on it
	// and fail closed immediately.
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	BreakerInterval    time.Duration
}

// Client fetches and validates runtime configurations. Every failure mode
// maps to a coded domain error so the engine can hold its blocking posture
// without inspecting transport details.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Config]
	maxSize int64
	logger  *slog.Logger
}

// NewClient builds a config client for the given runtime API base URL.
func NewClient(baseURL string, logger *slog.Logger, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConfigBytes <= 0 {
		opts.MaxConfigBytes = defaultMaxConfigBytes
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.BreakerInterval <= 0 {
		opts.BreakerInterval = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*Config](gobreaker.Settings{
		Name:        "runtime-config",
		MaxRequests: 1,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// A missing site is a definitive answer, not an endpoint fault.
			return err == nil || dErrors.HasCode(err, dErrors.CodeSiteNotFound)
		},
	})

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		breaker: breaker,
		maxSize: opts.MaxConfigBytes,
		logger:  logger,
	}
}

// Load implements the configuration contract: fetch, parse, validate.
// It returns a validated config or a coded failure; partial configs never
// escape. There is no retry here, by design: a failed page load stays in its
// blocking posture and retrying is the host's responsibility.
func (c *Client) Load(ctx context.Context, siteID string) (*Config, error) {
	ctx, span := tracer.StartSpan(ctx, "site.Load")
	span.SetAttributes(attribute.String("site.id", siteID))
	defer span.End()

	cfg, err := c.breaker.Execute(func() (*Config, error) {
		return c.fetch(ctx, siteID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = dErrors.Wrap(err, dErrors.CodeConfigUnreachable, "config endpoint circuit open")
		}
		tracer.RecordError(span, err)
		return nil, err
	}
	return cfg, nil
}

func (c *Client) fetch(ctx context.Context, siteID string) (*Config, error) {
	endpoint := fmt.Sprintf("%s/runtime/websites/%s", c.baseURL, url.PathEscape(siteID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfigUnreachable, "build config request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfigUnreachable, "fetch runtime config")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, dErrors.New(dErrors.CodeSiteNotFound, "site absent or inactive")
	case resp.StatusCode != http.StatusOK:
		return nil, dErrors.New(dErrors.CodeConfigUnreachable,
			fmt.Sprintf("config endpoint returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfigUnreachable, "read config response")
	}
	if int64(len(body)) > c.maxSize {
		return nil, dErrors.New(dErrors.CodeConfigUnreachable, "config response exceeds size cap")
	}

	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfigUnreachable, "parse runtime config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
