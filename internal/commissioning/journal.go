package commissioning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Journal outcome values.
const (
	OutcomeSuccess            = "success"
	OutcomeAborted            = "aborted"
	OutcomeProvisioningFailed = "provisioning_failed"
	OutcomeAppKeyFailed       = "appkey_failed"
)

// JournalEntry records how the commissioning of one device ended.
//
// The registry itself is not persisted. The journal is the installer's
// record of what happened to each device after it left the registry.
type JournalEntry struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	DeviceUUID uuid.UUID       `json:"device_uuid"`
	Address    mesh.Address    `json:"address,omitempty"`
	Group      mesh.Address    `json:"group"`
	DeviceType mesh.DeviceType `json:"device_type"`

	// Outcome is one of the Outcome* constants.
	Outcome string `json:"outcome"`

	// Reason is the error text for failed outcomes.
	Reason string `json:"reason,omitempty"`

	Elements   int   `json:"elements"`
	Models     int   `json:"models"`
	Retries    int   `json:"retries"`
	DurationMS int64 `json:"duration_ms"`

	// CreatedAt is when the outcome was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// JournalRepository stores and retrieves commissioning outcomes.
//
// Implementations must be thread-safe and use UTC timestamps.
type JournalRepository interface {
	// Record appends an entry. ID and CreatedAt are assigned by the store.
	Record(ctx context.Context, entry JournalEntry) error

	// Recent returns entries newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []JournalEntry: Entries ordered by created_at DESC (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)

	// Prune deletes entries older than the retention window and returns
	// the number removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
