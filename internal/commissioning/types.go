package commissioning

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/registry"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/sequencer"
)

// Mode selects whether a trigger commissions one device or keeps going
// until no family device is pending.
type Mode int

const (
	ModeOnce Mode = iota
	ModeDrainAll
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeOnce:
		return "once"
	case ModeDrainAll:
		return "drain_all"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses "once" or "drain_all". An empty string means once.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "once":
		return ModeOnce, nil
	case "drain_all", "drain-all", "all":
		return ModeDrainAll, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Phase is the controller's position in the commissioning of one device.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProvisioning
	PhaseAddingAppKey
	PhaseConfiguring
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProvisioning:
		return "provisioning"
	case PhaseAddingAppKey:
		return "adding_appkey"
	case PhaseConfiguring:
		return "configuring"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Indicator is the installer-facing status of the commissioning run.
type Indicator string

const (
	IndicatorIdle         Indicator = "idle"
	IndicatorProvisioning Indicator = "provisioning"
	IndicatorConfiguring  Indicator = "configuring"
	IndicatorSuccess      Indicator = "success"
	IndicatorFailed       Indicator = "failed"
)

// Target selects the group and configuration profile for the next device.
type Target struct {
	// Group is the publish/subscribe group. Zero means the primary group.
	Group      mesh.Address    `json:"group"`
	DeviceType mesh.DeviceType `json:"device_type"`
}

// Event types published to EventPublisher.
const (
	EventDiscovered   = "discovered"
	EventProvisioning = "provisioning"
	EventProvisioned  = "provisioned"
	EventConfiguring  = "configuring"
	EventSucceeded    = "succeeded"
	EventFailed       = "failed"
	EventReset        = "reset"
)

// Event describes a commissioning progress change.
type Event struct {
	Type        string           `json:"type"`
	Indicator   Indicator        `json:"indicator"`
	UUID        uuid.UUID        `json:"uuid"`
	LinkAddress mesh.LinkAddress `json:"link_address"`
	Address     mesh.Address     `json:"address,omitempty"`
	Group       mesh.Address     `json:"group,omitempty"`
	DeviceType  mesh.DeviceType  `json:"device_type"`
	Outcome     string           `json:"outcome,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Pending     int              `json:"pending"`
	Timestamp   time.Time        `json:"timestamp"`
}

// EventPublisher receives commissioning events. Implementations must not
// block.
type EventPublisher interface {
	PublishCommissioningEvent(ev Event)
}

// Publishers fans one event out to several publishers in order.
type Publishers []EventPublisher

// PublishCommissioningEvent implements EventPublisher.
func (p Publishers) PublishCommissioningEvent(ev Event) {
	for _, pub := range p {
		if pub != nil {
			pub.PublishCommissioningEvent(ev)
		}
	}
}

// MetricsWriter receives commissioning metrics. Implementations must not
// block.
type MetricsWriter interface {
	WriteCommissioningMetric(outcome, deviceType string, duration time.Duration, retries, elements, models int)
	WriteRegistryMetric(pending int)
}

// PendingDevice is the device currently being commissioned.
type PendingDevice struct {
	UUID        uuid.UUID        `json:"uuid"`
	LinkAddress mesh.LinkAddress `json:"link_address"`
	Address     mesh.Address     `json:"address,omitempty"`
	Group       mesh.Address     `json:"group"`
	DeviceType  mesh.DeviceType  `json:"device_type"`
	StartedAt   time.Time        `json:"started_at"`
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	Mode      Mode               `json:"mode"`
	Phase     Phase              `json:"phase"`
	Indicator Indicator          `json:"indicator"`
	Pending   *PendingDevice     `json:"pending,omitempty"`
	Registry  registry.Stats     `json:"registry"`
	Session   sequencer.Snapshot `json:"session"`
	Last      *JournalEntry      `json:"last,omitempty"`
}
