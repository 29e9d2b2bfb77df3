package mqtt

import (
	"context"
	"log/slog"

	"github.com/Aquilesorei/talon/internal/acquisition"
)

const forwarderQueueSize = 64

type sessionPublisher interface {
	PublishSessionEvent(msg SessionMessage) error
}

// EventForwarder relays session events to the broker off the session goroutine.
type EventForwarder struct {
	pub    sessionPublisher
	logger *slog.Logger
	queue  chan SessionMessage
}

func NewEventForwarder(pub sessionPublisher, logger *slog.Logger) *EventForwarder {
	return &EventForwarder{
		pub:    pub,
		logger: logger,
		queue:  make(chan SessionMessage, forwarderQueueSize),
	}
}

// Observe never blocks. When the queue is full the event is dropped.
func (f *EventForwarder) Observe(ev acquisition.Event) {
	select {
	case f.queue <- NewSessionMessage(ev):
	default:
		f.logger.Debug("mqtt: session event dropped", "event", ev.Kind.String(), "session_id", ev.SessionID)
	}
}

// Run publishes queued events until ctx is done, then flushes what is still
// queued so the last session state reaches the broker.
func (f *EventForwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.drain()
			return
		case msg := <-f.queue:
			f.publish(msg)
		}
	}
}

func (f *EventForwarder) drain() {
	for {
		select {
		case msg := <-f.queue:
			f.publish(msg)
		default:
			return
		}
	}
}

func (f *EventForwarder) publish(msg SessionMessage) {
	if err := f.pub.PublishSessionEvent(msg); err != nil {
		f.logger.Debug("mqtt: session event not published", "event", msg.Event, "error", err)
	}
}
