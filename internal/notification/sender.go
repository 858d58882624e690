package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxInFlight = 256
)

// ErrBacklog is reported when every dispatch slot is busy and the event is
// dropped instead of queued behind a stalled broker.
var ErrBacklog = errors.New("notification backlog full")

// Sender runs dispatches in the background so a slow broker never holds up
// the transition that produced the event.
type Sender struct {
	dispatcher Dispatcher
	timeout    time.Duration
	slots      *semaphore.Weighted
	wg         sync.WaitGroup
}

type SenderOption func(*Sender)

// WithTimeout bounds each background dispatch.
func WithTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxInFlight caps concurrent dispatches.
func WithMaxInFlight(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 {
			s.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

func NewSender(d Dispatcher, opts ...SenderOption) *Sender {
	s := &Sender{
		dispatcher: d,
		timeout:    DefaultTimeout,
		slots:      semaphore.NewWeighted(DefaultMaxInFlight),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send hands ev to a background goroutine and returns at once. The dispatch
// context keeps ctx's values but not its cancellation, and is bounded by the
// sender's timeout. onErr, when set, receives delivery failures, and
// ErrBacklog when the event was dropped.
func (s *Sender) Send(ctx context.Context, ev Event, onErr func(context.Context, error)) {
	if !s.slots.TryAcquire(1) {
		if onErr != nil {
			onErr(ctx, ErrBacklog)
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer func() {
			s.slots.Release(1)
			s.wg.Done()
		}()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.dispatcher.Dispatch(dctx, ev); err != nil && onErr != nil {
			onErr(dctx, err)
		}
	}()
}

// Wait blocks until every in-flight dispatch has returned.
func (s *Sender) Wait() {
	s.wg.Wait()
}
