package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/time/rate"
)

type GatewayConfig struct {
	// RequestsPerSecond caps outbound calls per platform. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// BreakerFailures consecutive transient publish failures open the
	// platform's breaker for BreakerDelay.
	BreakerFailures uint
	BreakerDelay    time.Duration

	MetricsRetries  int
	MetricsBackoff  time.Duration
	MetricsMaxDelay time.Duration

	Logger *slog.Logger
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		RequestsPerSecond: 5,
		Burst:             5,
		BreakerFailures:   5,
		BreakerDelay:      time.Minute,
		MetricsRetries:    3,
		MetricsBackoff:    200 * time.Millisecond,
		MetricsMaxDelay:   5 * time.Second,
	}
}

type connKey struct {
	owner    int64
	platform models.Platform
}

type cachedConn struct {
	conn        Conn
	accessToken string
}

// Gateway fronts the registered API clients. It enforces text limits,
// caches one Conn per (owner, platform) and drops it on any auth failure.
type Gateway struct {
	clients  map[models.Platform]Client
	breakers map[models.Platform]circuitbreaker.CircuitBreaker[string]
	limiters map[models.Platform]*rate.Limiter
	retry    retrypolicy.RetryPolicy[*models.Metrics]
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[connKey]cachedConn
}

func NewGateway(cfg GatewayConfig, clients ...Client) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = time.Minute
	}
	if cfg.MetricsBackoff <= 0 {
		cfg.MetricsBackoff = 200 * time.Millisecond
	}
	if cfg.MetricsMaxDelay < cfg.MetricsBackoff {
		cfg.MetricsMaxDelay = cfg.MetricsBackoff
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	g := &Gateway{
		clients:  make(map[models.Platform]Client, len(clients)),
		breakers: make(map[models.Platform]circuitbreaker.CircuitBreaker[string], len(clients)),
		limiters: make(map[models.Platform]*rate.Limiter, len(clients)),
		logger:   cfg.Logger,
		conns:    make(map[connKey]cachedConn),
	}

	g.retry = retrypolicy.NewBuilder[*models.Metrics]().
		HandleIf(func(_ *models.Metrics, err error) bool {
			return models.KindOf(err) == models.KindTransientPlatform
		}).
		WithBackoff(cfg.MetricsBackoff, cfg.MetricsMaxDelay).
		WithMaxRetries(cfg.MetricsRetries).
		ReturnLastFailure().
		Build()

	for _, c := range clients {
		p := c.Platform()
		g.clients[p] = c
		g.breakers[p] = circuitbreaker.NewBuilder[string]().
			HandleIf(func(_ string, err error) bool {
				return models.KindOf(err) == models.KindTransientPlatform
			}).
			WithFailureThreshold(cfg.BreakerFailures).
			WithDelay(cfg.BreakerDelay).
			OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
				cfg.Logger.Warn("publish breaker state change", "platform", p, "from", e.OldState, "to", e.NewState)
			}).
			Build()
		if cfg.RequestsPerSecond > 0 {
			g.limiters[p] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		}
	}
	return g
}

func (g *Gateway) Supports(p models.Platform) bool {
	_, ok := g.clients[p]
	return ok
}

// CheckContent rejects text over the platform's ceiling without any
// network call.
func (g *Gateway) CheckContent(p models.Platform, c Content) error {
	client, ok := g.clients[p]
	if !ok {
		return models.Errorf(models.KindContentRejected, p, "publish", "platform not supported by the API client")
	}
	if n := utf8.RuneCountInString(c.Text); n > client.MaxTextLength() {
		return models.Errorf(models.KindContentRejected, p, "publish", "text is %d characters, limit is %d", n, client.MaxTextLength())
	}
	return nil
}

// Publish validates the connection and publishes c, returning the
// platform's post id. Publishing is never retried.
func (g *Gateway) Publish(ctx context.Context, owner int64, p models.Platform, tok Token, c Content) (string, error) {
	if err := g.CheckContent(p, c); err != nil {
		return "", err
	}
	conn, err := g.conn(ctx, owner, p, tok)
	if err != nil {
		return "", err
	}

	id, err := failsafe.With[string](g.breakers[p]).WithContext(ctx).Get(func() (string, error) {
		if err := g.wait(ctx, p, "publish"); err != nil {
			return "", err
		}
		if err := conn.Validate(ctx); err != nil {
			return "", err
		}
		if err := g.wait(ctx, p, "publish"); err != nil {
			return "", err
		}
		return conn.Publish(ctx, c)
	})
	if err != nil {
		return "", g.fail(owner, p, "publish", err)
	}
	return id, nil
}

func (g *Gateway) Validate(ctx context.Context, owner int64, p models.Platform, tok Token) error {
	conn, err := g.conn(ctx, owner, p, tok)
	if err != nil {
		return err
	}
	if err := g.wait(ctx, p, "validate"); err != nil {
		return err
	}
	if err := conn.Validate(ctx); err != nil {
		return g.fail(owner, p, "validate", err)
	}
	return nil
}

// FetchMetrics reads engagement counters. Transient failures are retried
// with backoff since the read is idempotent.
func (g *Gateway) FetchMetrics(ctx context.Context, owner int64, p models.Platform, tok Token, externalID string) (*models.Metrics, error) {
	conn, err := g.conn(ctx, owner, p, tok)
	if err != nil {
		return nil, err
	}

	m, err := failsafe.With[*models.Metrics](g.retry).WithContext(ctx).Get(func() (*models.Metrics, error) {
		if err := g.wait(ctx, p, "metrics"); err != nil {
			return nil, err
		}
		return conn.FetchMetrics(ctx, externalID)
	})
	if err != nil {
		return nil, g.fail(owner, p, "metrics", err)
	}
	return m, nil
}

// Forget drops the cached connection for (owner, p).
func (g *Gateway) Forget(owner int64, p models.Platform) {
	g.mu.Lock()
	delete(g.conns, connKey{owner, p})
	g.mu.Unlock()
}

func (g *Gateway) conn(ctx context.Context, owner int64, p models.Platform, tok Token) (Conn, error) {
	client, ok := g.clients[p]
	if !ok {
		return nil, models.Errorf(models.KindContentRejected, p, "connect", "platform not supported by the API client")
	}

	key := connKey{owner, p}
	g.mu.Lock()
	cached, ok := g.conns[key]
	g.mu.Unlock()
	if ok && cached.accessToken == tok.AccessToken {
		return cached.conn, nil
	}

	conn, err := client.Connect(ctx, tok)
	if err != nil {
		return nil, classify(p, "connect", err)
	}

	g.mu.Lock()
	g.conns[key] = cachedConn{conn: conn, accessToken: tok.AccessToken}
	g.mu.Unlock()
	return conn, nil
}

func (g *Gateway) wait(ctx context.Context, p models.Platform, op string) error {
	l, ok := g.limiters[p]
	if !ok {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return models.NewPublishError(models.KindTransientPlatform, p, op, fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}

func (g *Gateway) fail(owner int64, p models.Platform, op string, err error) error {
	err = classify(p, op, err)
	if models.IsAuthFailure(err) {
		g.Forget(owner, p)
	}
	g.logger.Debug("platform call failed", "user_id", owner, "platform", p, "op", op, "error", err)
	return err
}
