// Package bus carries inbound chat events from the transport to the dispatcher.
package bus

import (
	"strconv"
	"time"
)

// Kind tells the dispatcher how to route an event.
type Kind string

const (
	KindCommand  Kind = "command"
	KindText     Kind = "text"
	KindCallback Kind = "callback"
)

// Event is one inbound chat event.
type Event struct {
	Kind      Kind      `json:"kind"`
	Channel   string    `json:"channel"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Text is the raw message text for commands and free text.
	Text string `json:"text,omitempty"`
	// Command and Args are set for KindCommand; Command has no leading
	// slash and no @bot suffix.
	Command string `json:"command,omitempty"`
	Args    string `json:"args,omitempty"`

	// CallbackID and Data are set for KindCallback.
	CallbackID string `json:"callback_id,omitempty"`
	Data       string `json:"data,omitempty"`
}

// SessionKey returns the unique key for session identification.
func (e *Event) SessionKey() string {
	return e.Channel + ":" + strconv.FormatInt(e.ChatID, 10)
}
