package sequencer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/composition"
)

// State is the sequencer's position in the configuration sequence.
type State int

const (
	StateIdle State = iota
	StateAwaitingComposition
	StateBinding
	StatePublishing
	StateSubscribing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingComposition:
		return "awaiting_composition"
	case StateBinding:
		return "binding"
	case StatePublishing:
		return "publishing"
	case StateSubscribing:
		return "subscribing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Action is the kind of configuration message a work item issues.
type Action int

const (
	ActionBind Action = iota
	ActionPublish
	ActionSubscribe
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionBind:
		return "bind"
	case ActionPublish:
		return "publish"
	case ActionSubscribe:
		return "subscribe"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// WorkItem is one pending configuration message.
type WorkItem struct {
	Action   Action       `json:"action"`
	Element  uint8        `json:"element"`
	Model    mesh.ModelID `json:"model_id"`
	VendorID uint16       `json:"vendor_id"`

	// Group is the publish or subscribe address. Zero for binds.
	Group mesh.Address `json:"group,omitempty"`
}

// Target identifies the node a session configures.
type Target struct {
	Address    mesh.Address    `json:"address"`
	Group      mesh.Address    `json:"group"`
	DeviceType mesh.DeviceType `json:"device_type"`
	UUID       uuid.UUID       `json:"uuid"`
}

// PublicationParams are the publication settings sent with every
// publication request.
type PublicationParams struct {
	FriendCredentials    bool
	TTL                  uint8
	Period               uint8
	RetransmitCount      uint8
	RetransmitIntervalMS uint16
}

// HeartbeatParams are the heartbeat publication settings.
type HeartbeatParams struct {
	Count     uint8
	PeriodLog uint8
	TTL       uint8
	Features  uint16
}

// Params configures a Sequencer.
type Params struct {
	NetKeyIndex uint16
	AppKeyIndex uint16

	// SecondaryGroup is the extra publish/subscribe group applied to
	// gateways.
	SecondaryGroup mesh.Address

	// RetryBudget is the number of retries allowed per step type.
	RetryBudget int

	// BufferSize caps the reassembled composition data.
	BufferSize int

	Limits      composition.Limits
	Publication PublicationParams
	Heartbeat   HeartbeatParams

	// HeartbeatModel triggers heartbeat publication when present on any
	// configured element.
	HeartbeatModel mesh.ModelID
}

// Default parameter values.
const (
	DefaultRetryBudget = 3

	DefaultPublishTTL           = 3
	DefaultRetransmitIntervalMS = 50
	DefaultHeartbeatCount       = 0xFF
	DefaultHeartbeatPeriodLog   = 3
	DefaultHeartbeatTTL         = 5
	DefaultHeartbeatFeatures    = 0x000F
)

// compositionPage is the only composition data page the sequencer reads.
const compositionPage uint8 = 0

// DefaultParams returns the standard commissioning profile.
func DefaultParams() Params {
	return Params{
		SecondaryGroup: mesh.LightGroup2,
		RetryBudget:    DefaultRetryBudget,
		BufferSize:     composition.DefaultBufferSize,
		Limits:         composition.DefaultLimits(),
		Publication: PublicationParams{
			TTL:                  DefaultPublishTTL,
			RetransmitIntervalMS: DefaultRetransmitIntervalMS,
		},
		Heartbeat: HeartbeatParams{
			Count:     DefaultHeartbeatCount,
			PeriodLog: DefaultHeartbeatPeriodLog,
			TTL:       DefaultHeartbeatTTL,
			Features:  DefaultHeartbeatFeatures,
		},
		HeartbeatModel: mesh.ModelLightLightnessServer,
	}
}

// Outcome reports how a session ended.
type Outcome struct {
	Target  Target `json:"target"`
	Success bool   `json:"success"`

	// Err is nil on success. On abort it wraps ErrStepExhausted,
	// ErrStepFailed or ErrRequestFailed together with the underlying cause.
	Err error `json:"-"`

	// Step is the state the session was in when it ended.
	Step State `json:"step"`

	Elements  int  `json:"elements"`
	Models    int  `json:"models"`
	Retries   int  `json:"retries"`
	Heartbeat bool `json:"heartbeat"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the session's wall-clock duration.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// OutcomeFunc receives the outcome of every session that reaches a terminal
// state. It runs after the sequencer has returned to idle, so it may start a
// new session.
type OutcomeFunc func(Outcome)

// Snapshot is a read-only view of the active session.
type Snapshot struct {
	State       State   `json:"state"`
	Target      *Target `json:"target,omitempty"`
	Element     int     `json:"element"`
	Elements    int     `json:"elements"`
	Bound       int     `json:"bound"`
	BindTotal   int     `json:"bind_total"`
	Published   int     `json:"published"`
	PubTotal    int     `json:"publish_total"`
	Subscribed  int     `json:"subscribed"`
	SubTotal    int     `json:"subscribe_total"`
	RetriesLeft int     `json:"retries_left"`
	BufferLen   int     `json:"buffer_len"`
	Attempt     uint64  `json:"attempt"`
}
