package audit

import (
	"context"
	"log/slog"

	"quizdeck/pkg/requestcontext"
)

// Store persists audit events. Implementations are append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string, limit int) ([]Event, error)
}

// Publisher is the write-side surface services depend on. The channel-backed
// implementation decouples request latency from persistence; tests use a
// synchronous store directly.
type Publisher interface {
	Emit(ctx context.Context, event Event)
}

// ChannelPublisher forwards events onto a buffered channel drained by a
// Worker. Emit never blocks a request: if the buffer is full the event is
// dropped and counted in the log.
type ChannelPublisher struct {
	outbox chan<- Event
	logger *slog.Logger
}

func NewChannelPublisher(outbox chan<- Event, logger *slog.Logger) *ChannelPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelPublisher{outbox: outbox, logger: logger}
}

func (p *ChannelPublisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	select {
	case p.outbox <- event:
	default:
		p.logger.Warn("audit outbox full, event dropped",
			"subject", event.Subject,
			"action", event.Action,
		)
	}
}

// NopPublisher discards every event. Used in tests that do not assert on the
// audit trail.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) {}
