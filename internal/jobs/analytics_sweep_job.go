package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/service"
)

type AnalyticsSweepJob struct {
	an       service.AnalyticsService
	lookback time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewAnalyticsSweepJob(an service.AnalyticsService, lookback time.Duration, logger *slog.Logger) *AnalyticsSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsSweepJob{an: an, lookback: lookback, timeout: 30 * time.Minute, logger: logger}
}

// Run is the cron entry point.
func (j *AnalyticsSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.an.Sweep(ctx, j.lookback)
	if err != nil {
		j.logger.Error("analytics sweep failed", "error", err)
		return
	}
	j.logger.Info("analytics sweep done", "updated", n)
}
