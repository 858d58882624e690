package notification

import (
	"context"
	"log/slog"

	"loankyc/pkg/platform/circuit"
)

// Guarded sends events to a broker-backed primary until it keeps failing,
// then diverts them to the fallback while the breaker is open. Transitions
// never wait on a broker that is known to be down.
type Guarded struct {
	primary  Dispatcher
	fallback Dispatcher
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewGuarded(primary, fallback Dispatcher, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (g *Guarded) Dispatch(ctx context.Context, ev Event) error {
	if !g.breaker.Allow() {
		return g.fallback.Dispatch(ctx, ev)
	}

	err := g.primary.Dispatch(ctx, ev)
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "notification circuit closed", "breaker", g.breaker.Name())
		}
		return nil
	}

	useFallback, change := g.breaker.RecordFailure()
	if change.Opened {
		g.logger.WarnContext(ctx, "notification circuit opened",
			"breaker", g.breaker.Name(),
			"error", err,
		)
	}
	if useFallback {
		return g.fallback.Dispatch(ctx, ev)
	}
	return err
}
