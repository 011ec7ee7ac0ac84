// Package channels defines the Channel interface for chat platform integrations.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/dayuer/tubebot/internal/bus"
)

// Channel is the interface that all chat platform integrations must implement.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram").
	Name() string

	// Start connects to the platform and begins listening. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop() error

	// IsRunning returns whether the channel is active.
	IsRunning() bool
}

// BaseChannel provides shared logic for all channel implementations.
type BaseChannel struct {
	ChannelName string
	Bus         *bus.MessageBus
	AllowFrom   []string

	running atomic.Bool
}

// IsRunning returns whether the channel is active.
func (b *BaseChannel) IsRunning() bool {
	return b.running.Load()
}

func (b *BaseChannel) setRunning(v bool) {
	b.running.Store(v)
}

// IsAllowed checks if a sender is permitted to interact with the bot.
// senderID may be "id|username"; either part can match.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}
	for _, allowed := range b.AllowFrom {
		if allowed == senderID {
			return true
		}
	}
	if strings.Contains(senderID, "|") {
		for _, part := range strings.Split(senderID, "|") {
			if part == "" {
				continue
			}
			for _, allowed := range b.AllowFrom {
				if allowed == part {
					return true
				}
			}
		}
	}
	return false
}

// HandleEvent checks permissions and publishes ev to the bus. It reports
// whether the event was queued.
func (b *BaseChannel) HandleEvent(ctx context.Context, senderID string, ev bus.Event) bool {
	if !b.IsAllowed(senderID) {
		return false
	}
	ev.Channel = b.ChannelName
	return b.Bus.PublishInbound(ctx, ev) == nil
}
