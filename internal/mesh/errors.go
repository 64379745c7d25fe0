package mesh

import "errors"

// Domain errors for mesh value parsing.
var (
	// ErrInvalidAddress is returned when a mesh address string cannot be parsed.
	ErrInvalidAddress = errors.New("mesh: invalid address")

	// ErrNotGroupAddress is returned when a group address is required but a
	// unicast or virtual address was supplied.
	ErrNotGroupAddress = errors.New("mesh: not a group address")

	// ErrInvalidLinkAddress is returned when a link address string is malformed.
	ErrInvalidLinkAddress = errors.New("mesh: invalid link address")

	// ErrInvalidDeviceType is returned when a device type name is not recognised.
	ErrInvalidDeviceType = errors.New("mesh: invalid device type")

	// ErrInvalidPrefix is returned when a UUID family prefix cannot be parsed.
	ErrInvalidPrefix = errors.New("mesh: invalid uuid prefix")
)
