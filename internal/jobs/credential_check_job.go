package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
)

const concurrencyLimit = 10

// CredentialCheckJob validates every active api token so dead ones are
// deactivated before a scheduled post runs into them.
type CredentialCheckJob struct {
	cr     repository.CredentialRepository
	codec  *service.CredentialCodec
	tc     service.TokenChecker
	logger *slog.Logger
	now    func() time.Time
}

func NewCredentialCheckJob(
	cr repository.CredentialRepository,
	codec *service.CredentialCodec,
	tc service.TokenChecker,
	logger *slog.Logger) *CredentialCheckJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialCheckJob{cr: cr, codec: codec, tc: tc, logger: logger, now: time.Now}
}

func (c *CredentialCheckJob) CheckCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	c.run(ctx)
}

func (c *CredentialCheckJob) run(ctx context.Context) {
	creds, err := c.cr.ListActiveByStrategy(ctx, models.StrategyAPIToken)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, cred := range creds {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(cred *models.Credential) {
			defer wg.Done()
			defer func() { <-semaphore }()
			c.check(ctx, cred)
		}(cred)
	}
	wg.Wait()
}

func (c *CredentialCheckJob) check(ctx context.Context, cred *models.Credential) {
	log := c.logger.With("user_id", cred.UserID, "platform", cred.Platform)

	tok, err := c.codec.OpenToken(cred.Payload)
	if err == nil {
		err = c.tc.Validate(ctx, cred.UserID, cred.Platform, tok)
	} else {
		err = models.NewPublishError(models.KindAuthMissing, cred.Platform, "validate", err)
	}

	switch {
	case err == nil:
		if err := c.cr.MarkValidated(ctx, cred.ID, c.now()); err != nil {
			log.Error("stamp credential", "error", err)
		}
	case models.IsAuthFailure(err):
		log.Info("deactivating dead credential", "error", err)
		if err := c.cr.Invalidate(ctx, cred.ID); err != nil {
			log.Error("invalidate credential", "error", err)
		}
	default:
		log.Warn("credential check inconclusive", "error", err)
	}
}
