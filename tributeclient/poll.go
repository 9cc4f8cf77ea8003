package tributeclient

import (
	"context"
	"errors"
	"time"

	"github.com/lovepages/tribute-server/domain"
)

type State int

const (
	StateLoading State = iota
	StatePending
	StatePaid
	StateNotFound
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePending:
		return "pending"
	case StatePaid:
		return "paid"
	case StateNotFound:
		return "notFound"
	}
	return "unknown"
}

type PollOptions struct {
	// Interval between polls; the first poll fires immediately.
	Interval time.Duration
	// MaxAttempts bounds the total number of polls so an abandoned caller does
	// not hammer the store forever.
	MaxAttempts int
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = 3 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 40
	}
	return o
}

// WaitForPayment polls the record until it flips to paid or the retry budget
// runs out. A missing record counts as still pending: right after the checkout
// redirect the read may simply be ahead of the write.
func (c *Client) WaitForPayment(ctx context.Context, slug string, opts PollOptions) (state State, tribute *domain.Tribute, err error) {
	opts = opts.withDefaults()
	state = StateLoading
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return state, nil, ctx.Err()
			case <-ticker.C:
			}
		}
		tribute, err = c.GetTribute(ctx, slug)
		switch {
		case errors.Is(err, ErrNotFound):
			state = StateNotFound
		case err != nil:
			// transient transport trouble is also "still pending"
			state = StatePending
		case tribute.Paid:
			return StatePaid, tribute, nil
		default:
			state = StatePending
		}
	}
	return state, nil, ErrRetriesExhausted
}
