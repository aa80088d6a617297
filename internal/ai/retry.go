package ai

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"time"
)

// backoff tracks the delay between attempts of one request.
type backoff struct {
	next time.Duration
	max  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return &backoff{next: base, max: max}
}

// wait sleeps for the current delay with jitter, or for hint when it is set.
// It returns early with the context error if ctx is done.
func (b *backoff) wait(ctx context.Context, hint time.Duration) error {
	d := hint
	if d <= 0 {
		d = withJitter(b.next)
		if b.max > 0 && d > b.max {
			d = b.max
		}
		b.next *= 2
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func isRetryableStatus(code int) bool {
	return code == 429 || (code >= 500 && code <= 599)
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
