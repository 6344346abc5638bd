package upstream

import (
	"context"
	"sync/atomic"
	"time"
)

// Mock serves canned text with an optional simulated delay. Call counts are
// tracked so tests can assert which sources were actually exercised.
type Mock struct {
	name     string
	response string
	delay    time.Duration
	err      error
	calls    atomic.Int64
}

// NewMock builds a mock upstream named name returning response.
func NewMock(name, response string) *Mock {
	return &Mock{name: name, response: response}
}

// WithDelay makes each Fetch wait d before responding.
func (u *Mock) WithDelay(d time.Duration) *Mock {
	u.delay = d
	return u
}

// WithError makes each Fetch fail with err after any configured delay.
func (u *Mock) WithError(err error) *Mock {
	u.err = err
	return u
}

// Identifier returns a synthetic mock:// identifier.
func (u *Mock) Identifier() string {
	return "mock://" + u.name
}

// Calls reports how many Fetch calls have started.
func (u *Mock) Calls() int64 {
	return u.calls.Load()
}

// Fetch returns the canned response, honoring delay and ctx cancellation.
func (u *Mock) Fetch(ctx context.Context, _, _ map[string]string) (string, error) {
	u.calls.Add(1)
	if u.delay > 0 {
		timer := time.NewTimer(u.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if u.err != nil {
		return "", u.err
	}
	return u.response, nil
}
