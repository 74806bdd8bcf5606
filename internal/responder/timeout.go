package responder

import (
	"context"
	"time"
)

type timeoutResponder struct {
	next    Responder
	timeout time.Duration
}

// WithTimeout bounds every Respond call on r by d. A call still running at
// the deadline is abandoned and reported as ErrUnavailable with reason
// "timeout". A non-positive d uses DefaultTimeout.
func WithTimeout(r Responder, d time.Duration) Responder {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutResponder{next: r, timeout: d}
}

type result struct {
	reply Reply
	err   error
}

func (t *timeoutResponder) Respond(ctx context.Context, req Request) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// Buffered so the worker can always deliver and exit.
	done := make(chan result, 1)
	go func() {
		reply, err := t.next.Respond(ctx, req)
		done <- result{reply, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return Reply{}, unavailable("timeout", ctx.Err())
		}
		return res.reply, res.err
	case <-ctx.Done():
		return Reply{}, unavailable("timeout", ctx.Err())
	}
}
