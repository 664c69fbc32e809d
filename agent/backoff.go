package agent

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits delay×n before the n-th retry.
type linearBackOff struct {
	delay   time.Duration
	attempt int
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return l.delay * time.Duration(l.attempt)
}

func (l *linearBackOff) Reset() { l.attempt = 0 }
