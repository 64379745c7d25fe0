package mqtt

import "errors"

// Sentinel errors of the broker client. Wrapped errors carry the paho
// cause; match them with errors.Is.
var (
	// ErrNotConnected means the broker connection is down. The stack bridge
	// reports it as a failed request so the controller can retry or abort.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed means the first connection did not complete.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS rejects a QoS outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects an empty topic or filter.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
