package gallery

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/constants"
)

// retry runs op until it succeeds, the retry budget is spent, the error is
// permanent or ctx ends.
func (s *Store) retry(ctx context.Context, action, key string, op func() error) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(constants.WriteRetryInitialInterval),
		backoff.WithMaxElapsedTime(constants.WriteRetryMaxElapsed),
	)

	attempt := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, errPermanent) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("retrying gallery write",
			zap.String("action", action),
			zap.String("identity", key),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.opts.WriteRetries, 0))), ctx)
	return backoff.RetryNotify(attempt, policy, notify)
}
