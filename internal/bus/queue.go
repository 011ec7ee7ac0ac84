package bus

import (
	"context"
)

const DefaultCapacity = 100

// MessageBus is a buffered queue of inbound events.
type MessageBus struct {
	Inbound chan Event
}

// NewMessageBus creates a bus with the given buffer; capacity <= 0 uses
// DefaultCapacity.
func NewMessageBus(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageBus{Inbound: make(chan Event, capacity)}
}

// PublishInbound enqueues ev, blocking while the buffer is full. It returns
// ctx.Err() if ctx ends first.
func (b *MessageBus) PublishInbound(ctx context.Context, ev Event) error {
	select {
	case b.Inbound <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound returns the next event, or false once ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (Event, bool) {
	select {
	case ev := <-b.Inbound:
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// InboundSize returns the number of pending inbound events.
func (b *MessageBus) InboundSize() int {
	return len(b.Inbound)
}
