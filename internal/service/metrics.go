package service

import "github.com/maheshrc27/crosspost/internal/models"

// Recorder receives pipeline counters. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	PublishAttempt(p models.Platform, s models.AuthStrategy, outcome string)
	PostFinished(status models.PostStatus)
	EngagementUpserted(p models.Platform)
}

type nopRecorder struct{}

func (nopRecorder) PublishAttempt(models.Platform, models.AuthStrategy, string) {}
func (nopRecorder) PostFinished(models.PostStatus)                              {}
func (nopRecorder) EngagementUpserted(models.Platform)                          {}

// OutcomeSuccess is the outcome label of an attempt that published.
const OutcomeSuccess = "success"

func attemptOutcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if k := models.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
