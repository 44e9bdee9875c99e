package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/sirupsen/logrus"
)

// Policy is the single retry rule used for every actuation and price fetch.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

func New(c config.Retry) Policy {
	return Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		Jitter:      c.Jitter,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// BackOff returns a fresh exponential backoff without attempt limit.
func (p Policy) BackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay
	bo.RandomizationFactor = p.Jitter
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Do runs op until it succeeds, returns a permanent error, ctx is done or
// MaxAttempts is reached. The last error is returned.
func (p Policy) Do(ctx context.Context, name string, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(p.BackOff(), uint64(attempts-1)), ctx)

	notify := func(err error, d time.Duration) {
		logrus.WithFields(logrus.Fields{
			"op":    name,
			"retry": d.String(),
		}).Warnf("retry: %s", err)
	}
	return backoff.RetryNotify(op, bo, notify)
}
