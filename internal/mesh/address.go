package mesh

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Address is a 16-bit mesh address.
//
// Ranges:
//   - 0x0000:          unassigned
//   - 0x0001 - 0x7FFF: unicast (one per element)
//   - 0x8000 - 0xBFFF: virtual
//   - 0xC000 - 0xFFFF: group (0xFF00 and above are fixed groups)
type Address uint16

// Address range boundaries.
const (
	UnassignedAddress Address = 0x0000

	virtualAddressMin Address = 0x8000
	groupAddressMin   Address = 0xC000
	fixedGroupMin     Address = 0xFF00

	// addressBits is the width of a mesh address.
	addressBits = 16
)

// Fixed group addresses used by the default commissioning profile.
const (
	// LightGroup1 is the primary lighting group.
	LightGroup1 Address = 0xC001

	// LightGroup2 is the secondary lighting group, also bound on gateways.
	LightGroup2 Address = 0xC002
)

// IsUnassigned reports whether the address is 0x0000.
func (a Address) IsUnassigned() bool {
	return a == UnassignedAddress
}

// IsUnicast reports whether the address identifies a single element.
func (a Address) IsUnicast() bool {
	return a != UnassignedAddress && a < virtualAddressMin
}

// IsVirtual reports whether the address is in the virtual range.
func (a Address) IsVirtual() bool {
	return a >= virtualAddressMin && a < groupAddressMin
}

// IsGroup reports whether the address is a group address (including fixed groups).
func (a Address) IsGroup() bool {
	return a >= groupAddressMin
}

// IsFixedGroup reports whether the address is one of the reserved fixed groups
// (all-proxies, all-friends, all-relays, all-nodes).
func (a Address) IsFixedGroup() bool {
	return a >= fixedGroupMin
}

// String returns the address in "0xC001" form.
func (a Address) String() string {
	return fmt.Sprintf("0x%04X", uint16(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a mesh address.
//
// Accepts formats:
//   - "0xC001" (hexadecimal with prefix)
//   - "49153" (decimal)
//
// Parameters:
//   - s: Address string
//
// Returns:
//   - Address: Parsed address
//   - error: ErrInvalidAddress if parsing fails
func ParseAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, addressBits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(v), nil
}

// ParseGroupAddress parses an address and requires it to be a non-fixed group.
//
// Returns:
//   - Address: Parsed group address
//   - error: ErrInvalidAddress or ErrNotGroupAddress
func ParseGroupAddress(s string) (Address, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return 0, err
	}
	if !a.IsGroup() || a.IsFixedGroup() {
		return 0, fmt.Errorf("%w: %s", ErrNotGroupAddress, a)
	}
	return a, nil
}

// linkAddressLen is the number of bytes in a link-layer address.
const linkAddressLen = 6

// LinkAddress is the 6-byte advertising address of an unprovisioned device.
// It is the Registry's deduplication key.
type LinkAddress [linkAddressLen]byte

// String returns the address as lower-case "aa:bb:cc:dd:ee:ff".
func (l LinkAddress) String() string {
	var b strings.Builder
	for i, octet := range l {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex.EncodeToString([]byte{octet}))
	}
	return b.String()
}

// IsZero reports whether every octet is zero.
func (l LinkAddress) IsZero() bool {
	return l == LinkAddress{}
}

// MarshalText implements encoding.TextMarshaler.
func (l LinkAddress) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *LinkAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseLinkAddress(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLinkAddress parses a link address in "aa:bb:cc:dd:ee:ff" or
// "aa-bb-cc-dd-ee-ff" form. Hex digits may be upper or lower case.
func ParseLinkAddress(s string) (LinkAddress, error) {
	var l LinkAddress

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != linkAddressLen {
		return l, fmt.Errorf("%w: expected 6 octets, got %q", ErrInvalidLinkAddress, s)
	}

	for i, p := range parts {
		if len(p) != 2 { //nolint:mnd // two hex digits per octet
			return l, fmt.Errorf("%w: octet %d of %q", ErrInvalidLinkAddress, i, s)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return l, fmt.Errorf("%w: octet %d of %q", ErrInvalidLinkAddress, i, s)
		}
		l[i] = byte(v)
	}
	return l, nil
}
