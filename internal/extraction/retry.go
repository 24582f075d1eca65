package extraction

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retrying retries transient failures of the wrapped extractor with
// exponential backoff. Other errors are returned at once.
type Retrying struct {
	next     Extractor
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

func NewRetrying(next Extractor, attempts int, backoff time.Duration, logger *zap.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		next:     next,
		attempts: attempts,
		backoff:  backoff,
		sleep:    sleepCtx,
		logger:   logger,
	}
}

func (r *Retrying) Extract(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	wait := r.backoff
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		var res *Result
		res, err = r.next.Extract(ctx, data, mimeType)
		if err == nil || !IsRetryable(err) {
			return res, err
		}
		if attempt == r.attempts {
			break
		}

		r.logger.Warn("Extraction provider busy, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if serr := r.sleep(ctx, wait); serr != nil {
			return nil, serr
		}
		wait *= 2
	}
	return nil, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
