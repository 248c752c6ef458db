package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crosspost"

// Collector keeps the publishing pipeline's counters on a private registry.
type Collector struct {
	registry        *prometheus.Registry
	publishAttempts *prometheus.CounterVec
	postsFinished   *prometheus.CounterVec
	engagement      *prometheus.CounterVec
	activeBrowsers  prometheus.Gauge
	requestDuration *prometheus.HistogramVec
}

func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "attempts_total",
			Help:      "Publish attempts per platform, strategy and outcome.",
		}, []string{"platform", "strategy", "outcome"}),
		postsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "posts_finished_total",
			Help:      "Posts that reached a terminal status.",
		}, []string{"status"}),
		engagement: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "engagement_upserts_total",
			Help:      "Engagement records written per platform.",
		}, []string{"platform"}),
		activeBrowsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "browser",
			Name:      "active_instances",
			Help:      "Browser instances currently open.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	for _, col := range []prometheus.Collector{
		c.publishAttempts,
		c.postsFinished,
		c.engagement,
		c.activeBrowsers,
		c.requestDuration,
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) PublishAttempt(p models.Platform, s models.AuthStrategy, outcome string) {
	c.publishAttempts.WithLabelValues(string(p), string(s), outcome).Inc()
}

func (c *Collector) PostFinished(status models.PostStatus) {
	c.postsFinished.WithLabelValues(string(status)).Inc()
}

func (c *Collector) EngagementUpserted(p models.Platform) {
	c.engagement.WithLabelValues(string(p)).Inc()
}

// ActiveBrowsers is handed to the automation engines, which Inc on launch
// and Dec on close.
func (c *Collector) ActiveBrowsers() prometheus.Gauge {
	return c.activeBrowsers
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency by route pattern.
func (c *Collector) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()

		status := ctx.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		c.requestDuration.
			WithLabelValues(ctx.Method(), ctx.Route().Path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
		return err
	}
}
