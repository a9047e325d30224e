package mqtt

import "context"

// MessageHandler receives every message delivered on a subscribed topic.
// It runs on the transport goroutine and must not block.
type MessageHandler func(topic string, payload []byte)

// Client keeps a broker session alive and publishes payloads.
type Client interface {
	// Run connects, subscribes the handler to the command topic and keeps the
	// session alive until ctx is done. Connection failures are retried
	// indefinitely.
	Run(ctx context.Context, h MessageHandler) error

	// Publish sends payload on topic using the current session.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Disconnect gracefully closes the session.
	Disconnect()
}
