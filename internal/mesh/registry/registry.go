package registry

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// DefaultCapacity is the number of slots in a registry built without options.
const DefaultCapacity = 24

// DefaultFamilyPrefix is the UUID prefix written by this system's own nodes.
var DefaultFamilyPrefix = []byte{0x00, 0x00, 0x02, 0xFF}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is the outcome of a registry mutation.
type Result int

const (
	// Added means a new live record was stored.
	Added Result = iota

	// AlreadyPresent means a live record with the same link address exists.
	AlreadyPresent

	// Full means every slot holds a live record.
	Full

	// Removed means a live record was marked dead.
	Removed

	// NotFound means no live record matched.
	NotFound
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already_present"
	case Full:
		return "full"
	case Removed:
		return "removed"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Err maps a result to its sentinel error, or nil for Added and Removed.
func (r Result) Err() error {
	switch r {
	case AlreadyPresent:
		return ErrDuplicate
	case Full:
		return ErrFull
	case NotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Record is one discovered, not yet provisioned device.
type Record struct {
	UUID         uuid.UUID        `json:"uuid"`
	LinkAddress  mesh.LinkAddress `json:"link_address"`
	Family       bool             `json:"family"`
	Slot         int              `json:"slot"`
	DiscoveredAt time.Time        `json:"discovered_at"`

	alive bool
}

// Options configures a Registry.
type Options struct {
	// Capacity is the fixed number of slots. Zero means DefaultCapacity.
	Capacity int

	// FamilyPrefix is compared against the start of each UUID.
	// Nil means DefaultFamilyPrefix.
	FamilyPrefix []byte
}

// Stats contains registry occupancy figures.
type Stats struct {
	Live     int `json:"live"`
	Family   int `json:"family"`
	Dead     int `json:"dead"`
	Free     int `json:"free"`
	Capacity int `json:"capacity"`
}

// Registry is a bounded slot table of pending devices keyed by link address.
//
// Removed records are marked dead rather than deleted; Add reuses the first
// dead slot before appending. Iteration is always in slot order.
//
// A Registry is not safe for concurrent use. The commissioning controller
// owns it and serialises access.
type Registry struct {
	slots    []Record
	capacity int
	prefix   []byte
	live     int
	logger   Logger
	now      func() time.Time
}

// New creates an empty registry.
func New(opts Options) *Registry {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	prefix := opts.FamilyPrefix
	if prefix == nil {
		prefix = DefaultFamilyPrefix
	}

	return &Registry{
		slots:    make([]Record, 0, capacity),
		capacity: capacity,
		prefix:   append([]byte(nil), prefix...),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the registry. A nil logger discards output.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// IsFamily reports whether the UUID carries this system's family prefix.
func (r *Registry) IsFamily(id uuid.UUID) bool {
	return bytes.HasPrefix(id[:], r.prefix)
}

// Add stores a newly discovered device.
//
// Returns AlreadyPresent without mutation if a live record has the same link
// address, Full without mutation if no slot is free, otherwise Added.
func (r *Registry) Add(id uuid.UUID, addr mesh.LinkAddress) Result {
	if _, ok := r.indexOf(addr); ok {
		return AlreadyPresent
	}

	rec := Record{
		UUID:         id,
		LinkAddress:  addr,
		Family:       r.IsFamily(id),
		DiscoveredAt: r.now().UTC(),
		alive:        true,
	}

	slot := -1
	for i := range r.slots {
		if !r.slots[i].alive {
			slot = i
			break
		}
	}

	switch {
	case slot >= 0:
		rec.Slot = slot
		r.slots[slot] = rec
	case len(r.slots) < r.capacity:
		rec.Slot = len(r.slots)
		r.slots = append(r.slots, rec)
	default:
		r.logger.Warn("device registry full", "link_address", addr.String(), "capacity", r.capacity)
		return Full
	}

	r.live++
	r.logger.Debug("device registered",
		"uuid", id.String(),
		"link_address", addr.String(),
		"family", rec.Family,
		"slot", rec.Slot,
	)
	return Added
}

// Remove marks the live record with the given link address dead.
func (r *Registry) Remove(addr mesh.LinkAddress) Result {
	i, ok := r.indexOf(addr)
	if !ok {
		return NotFound
	}
	r.kill(i)
	return Removed
}

// RemoveByUUID marks the first live record with the given UUID dead.
func (r *Registry) RemoveByUUID(id uuid.UUID) Result {
	for i := range r.slots {
		if r.slots[i].alive && r.slots[i].UUID == id {
			r.kill(i)
			return Removed
		}
	}
	return NotFound
}

// Lookup returns the live record with the given link address.
func (r *Registry) Lookup(addr mesh.LinkAddress) (Record, bool) {
	i, ok := r.indexOf(addr)
	if !ok {
		return Record{}, false
	}
	return r.slots[i], true
}

// NextOfFamily returns the first live family record in slot order.
// It does not mutate the registry.
func (r *Registry) NextOfFamily() (Record, bool) {
	for i := range r.slots {
		if r.slots[i].alive && r.slots[i].Family {
			return r.slots[i], true
		}
	}
	return Record{}, false
}

// Count returns the number of live records.
func (r *Registry) Count() int {
	return r.live
}

// Capacity returns the fixed slot count.
func (r *Registry) Capacity() int {
	return r.capacity
}

// ListFamily returns the live family records in slot order.
func (r *Registry) ListFamily() []Record {
	out := make([]Record, 0, r.live)
	for i := range r.slots {
		if r.slots[i].alive && r.slots[i].Family {
			out = append(out, r.slots[i])
		}
	}
	return out
}

// List returns every live record in slot order, family or not.
func (r *Registry) List() []Record {
	out := make([]Record, 0, r.live)
	for i := range r.slots {
		if r.slots[i].alive {
			out = append(out, r.slots[i])
		}
	}
	return out
}

// Stats returns occupancy figures.
func (r *Registry) Stats() Stats {
	s := Stats{Capacity: r.capacity}
	for i := range r.slots {
		switch {
		case !r.slots[i].alive:
			s.Dead++
		case r.slots[i].Family:
			s.Live++
			s.Family++
		default:
			s.Live++
		}
	}
	s.Free = r.capacity - len(r.slots) + s.Dead
	return s
}

// Reset drops every record.
func (r *Registry) Reset() {
	r.slots = r.slots[:0]
	r.live = 0
	r.logger.Info("device registry cleared")
}

func (r *Registry) indexOf(addr mesh.LinkAddress) (int, bool) {
	for i := range r.slots {
		if r.slots[i].alive && r.slots[i].LinkAddress == addr {
			return i, true
		}
	}
	return -1, false
}

func (r *Registry) kill(i int) {
	r.slots[i].alive = false
	r.live--
	r.logger.Debug("device unregistered",
		"uuid", r.slots[i].UUID.String(),
		"link_address", r.slots[i].LinkAddress.String(),
		"slot", i,
	)
}
