package mesh

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ModelID is a 16-bit model identifier. SIG models use the ID alone;
// vendor models pair it with a company identifier (see VendorModel).
type ModelID uint16

// Well-known SIG models referenced by the commissioning profile.
const (
	ModelConfigurationServer  ModelID = 0x0000
	ModelGenericOnOffServer   ModelID = 0x1000
	ModelGenericOnOffClient   ModelID = 0x1001
	ModelLightLightnessServer ModelID = 0x1300
)

// SIGVendorID is the vendor field sent in configuration messages for SIG models.
const SIGVendorID uint16 = 0xFFFF

// String returns the model ID in "0x1000" form.
func (m ModelID) String() string {
	return fmt.Sprintf("0x%04X", uint16(m))
}

// VendorModel identifies a vendor-defined model.
type VendorModel struct {
	VendorID uint16  `json:"vendor_id"`
	ModelID  ModelID `json:"model_id"`
}

// String returns "vendor:model" in hex.
func (v VendorModel) String() string {
	return fmt.Sprintf("%04X:%04X", v.VendorID, uint16(v.ModelID))
}

// DeviceType selects the configuration profile applied after provisioning.
type DeviceType int

const (
	// DeviceTypeNode is a plain node: every SIG model is bound, published
	// and subscribed to the target group.
	DeviceTypeNode DeviceType = iota

	// DeviceTypeGateway additionally publishes and subscribes every model
	// to the secondary group.
	DeviceTypeGateway
)

// String returns the lower-case device type name.
func (d DeviceType) String() string {
	switch d {
	case DeviceTypeNode:
		return "node"
	case DeviceTypeGateway:
		return "gateway"
	default:
		return fmt.Sprintf("device_type(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d DeviceType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DeviceType) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceType(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDeviceType parses "node" or "gateway". An empty string means node.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "node":
		return DeviceTypeNode, nil
	case "gateway":
		return DeviceTypeGateway, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDeviceType, s)
	}
}

// Bearer identifies the provisioning bearer a beacon was received on.
type Bearer uint8

const (
	// BearerPBADV is the advertising provisioning bearer.
	BearerPBADV Bearer = 0

	// BearerPBGATT is the GATT provisioning bearer.
	BearerPBGATT Bearer = 1
)

// String returns the bearer name.
func (b Bearer) String() string {
	switch b {
	case BearerPBADV:
		return "pb-adv"
	case BearerPBGATT:
		return "pb-gatt"
	default:
		return fmt.Sprintf("bearer(%d)", uint8(b))
	}
}

// Status is a result code carried by stack status events.
type Status uint16

// Result codes the sequencer distinguishes.
const (
	StatusOK Status = 0x0000

	// StatusAlreadyExists is reported when the requested state is already
	// present on the node. It is success for publication, and terminal
	// (never retried) for binding.
	StatusAlreadyExists Status = 0x1307

	// StatusSubscriptionExists is reported when the subscription address is
	// already in the model's list. It is success for subscription.
	StatusSubscriptionExists Status = 0x1308
)

// OK reports whether the status is StatusOK.
func (s Status) OK() bool {
	return s == StatusOK
}

// String returns the status in "0x1307" form.
func (s Status) String() string {
	return fmt.Sprintf("0x%04X", uint16(s))
}

// ParsePrefix parses a hex UUID family prefix such as "000002FF" or
// "00 00 02 FF". The prefix must be between 1 and 16 bytes.
func ParsePrefix(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, s)
	}
	if len(b) == 0 || len(b) > 16 { //nolint:mnd // UUID length
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPrefix, len(b))
	}
	return b, nil
}
