package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"seatwatch/internal/bootstrap/config"
	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/errs"
	"seatwatch/internal/ports"
)

var (
	// ErrBadResponse covers non-200 statuses and undecodable bodies.
	ErrBadResponse   = errors.New("bad upstream response")
	ErrNotConfigured = errors.New("upstream base url is not configured")
)

const maxBodyBytes = 16 << 20

// client is the shared GET transport of both feeds: rate limited, guarded
// by a circuit breaker that only counts connectivity failures.
type client struct {
	name    string
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	metrics ports.PipelineMetrics
}

func newClient(ctx context.Context, name string, cfg config.RemoteConfig, metrics ports.PipelineMetrics) (*client, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	var base *url.URL
	if raw := strings.TrimSpace(cfg.BaseURL); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, errs.Wrapf(err, "parse %s base url", name)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("%s base url %q must be absolute", name, raw)
		}
		base = parsed
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	logCtx := logging.Component(ctx, "remote."+name)
	breakerName := name + "-api"
	metrics.SetBreakerState(breakerName, gobreaker.StateClosed.String())

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.IsConnectivity(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logging.Warn(logCtx, "circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.SetBreakerState(name, to.String())
		},
	})

	return &client{
		name:    name,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		metrics: metrics,
	}, nil
}

func (c *client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if c.baseURL == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, c.name)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(err, "wait rate limiter")
	}

	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, target.String())
	})
	switch {
	case err == nil:
		c.metrics.ObserveRemoteRequest(c.name, "success")
		return body, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.ObserveRemoteRequest(c.name, "rejected")
		return nil, errs.Connectivity(errs.Wrapf(err, "%s circuit", c.name))
	case errs.IsConnectivity(err):
		c.metrics.ObserveRemoteRequest(c.name, "connectivity")
		return nil, err
	default:
		c.metrics.ObserveRemoteRequest(c.name, "failure")
		return nil, err
	}
}

func (c *client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "seatwatch/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		wrapped := errs.Wrapf(err, "get %s", req.URL.Path)
		if errs.IsConnectivity(err) {
			return nil, errs.Connectivity(wrapped)
		}
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		wrapped := errs.Wrapf(err, "read %s body", req.URL.Path)
		if errs.IsConnectivity(err) {
			return nil, errs.Connectivity(wrapped)
		}
		return nil, wrapped
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrBadResponse, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}
