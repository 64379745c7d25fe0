package btmesh

import "errors"

// Domain errors for the mesh stack bridge.
var (
	// ErrNotConnected is returned when a request is issued while the MQTT
	// client has no broker connection.
	ErrNotConnected = errors.New("btmesh: not connected to broker")

	// ErrPublishFailed is returned when a request could not be published.
	ErrPublishFailed = errors.New("btmesh: request publish failed")

	// ErrInvalidEvent is returned when an event payload is malformed or
	// misses a field its type requires.
	ErrInvalidEvent = errors.New("btmesh: invalid event")

	// ErrUnknownEvent is returned for event types the bridge does not handle.
	ErrUnknownEvent = errors.New("btmesh: unknown event type")

	// ErrNoHandler is returned when an event arrives before SetHandler.
	ErrNoHandler = errors.New("btmesh: no event handler")
)
