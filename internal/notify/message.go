package notify

import (
	"context"
	"time"
)

// Field is one label/value pair in a message; Short hints a two-column
// layout.
type Field struct {
	Label string
	Value string
	Short bool
}

// Message is the channel-agnostic notification payload.
type Message struct {
	Title      string
	Link       string
	Author     string
	Color      string
	Fields     []Field
	FooterIcon string
	FooterText string
	Timestamp  time.Time
}

// Notifier delivers a rendered message to a concrete channel.
type Notifier interface {
	Send(ctx context.Context, channel string, msg Message) error
}

// Routed pairs a message with the named destination it should reach.
type Routed struct {
	Destination string
	Message     Message
}
