package commissioning

import "errors"

// Domain errors for commissioning.
var (
	// ErrBusy is returned by Trigger while a device is being provisioned or
	// configured.
	ErrBusy = errors.New("commissioning: busy")

	// ErrNoDevice is returned by Trigger when no family device is pending.
	ErrNoDevice = errors.New("commissioning: no pending device")

	// ErrInvalidMode is returned when parsing an unknown trigger mode.
	ErrInvalidMode = errors.New("commissioning: invalid mode")

	// ErrJournalEntryInvalid is returned when a journal entry is missing
	// required fields.
	ErrJournalEntryInvalid = errors.New("commissioning: invalid journal entry")
)
