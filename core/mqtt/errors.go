package mqtt

import "errors"

var (
	// ErrNotConnected is returned when publishing without a live session.
	ErrNotConnected = errors.New("mqtt: not connected")
	// ErrTimeout is returned when the broker does not complete an operation in time.
	ErrTimeout = errors.New("mqtt: operation timeout")
	// ErrNoReply is returned when a request receives no reply before its deadline.
	ErrNoReply = errors.New("mqtt: no reply")
)
