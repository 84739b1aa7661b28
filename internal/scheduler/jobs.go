package scheduler

import (
	"context"
	"errors"

	"github.com/pagecraft/internal/logging"
	"github.com/pagecraft/internal/service"
)

// Backfiller fills missing translations for one language.
type Backfiller interface {
	DefaultLanguage() string
	Backfill(ctx context.Context, language string) (service.BackfillResult, error)
}

// Retrier re-delivers pending form-entry notifications.
type Retrier interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

// Sweeper drops expired in-memory state.
type Sweeper interface {
	Sweep() int
}

// TranslationBackfill returns a job that backfills every non-default language.
func TranslationBackfill(translations Backfiller, languages []string) JobFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, lang := range languages {
			if lang == translations.DefaultLanguage() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := translations.Backfill(ctx, lang); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// NotificationRetry returns a job that retries up to limit undelivered entries.
func NotificationRetry(notifications Retrier, limit int) JobFunc {
	return func(ctx context.Context) error {
		_, err := notifications.RetryPending(ctx, limit)
		return err
	}
}

// LimiterSweep returns a job that releases expired login-attempt records.
func LimiterSweep(limiter Sweeper) JobFunc {
	return func(ctx context.Context) error {
		if removed := limiter.Sweep(); removed > 0 {
			logging.L().Debug().Int("removed", removed).Msg("login limiter swept")
		}
		return nil
	}
}
