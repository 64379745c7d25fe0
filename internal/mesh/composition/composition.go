package composition

import (
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Wire layout constants for composition data page 0.
const (
	// HeaderSize is the fixed page header: CID, PID, VID, CRPL, features.
	HeaderSize = 10

	// ElementHeaderSize is location (2) + SIG count (1) + vendor count (1).
	ElementHeaderSize = 4

	sigModelSize    = 2
	vendorModelSize = 4
)

// Default decoding limits.
const (
	DefaultMaxSIGModels    = 25
	DefaultMaxVendorModels = 4
	DefaultMaxElements     = 3
)

// Feature bits in Header.Features.
const (
	FeatureRelay    uint16 = 0x0001
	FeatureProxy    uint16 = 0x0002
	FeatureFriend   uint16 = 0x0004
	FeatureLowPower uint16 = 0x0008
)

// Limits bounds what Decode will materialise.
type Limits struct {
	MaxSIGModels    int
	MaxVendorModels int
	MaxElements     int
}

// DefaultLimits returns the standard per-element and per-device limits.
func DefaultLimits() Limits {
	return Limits{
		MaxSIGModels:    DefaultMaxSIGModels,
		MaxVendorModels: DefaultMaxVendorModels,
		MaxElements:     DefaultMaxElements,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxSIGModels <= 0 {
		l.MaxSIGModels = d.MaxSIGModels
	}
	if l.MaxVendorModels <= 0 {
		l.MaxVendorModels = d.MaxVendorModels
	}
	if l.MaxElements <= 0 {
		l.MaxElements = d.MaxElements
	}
	return l
}

// Header is the fixed composition data header.
type Header struct {
	CompanyID      uint16 `json:"cid"`
	ProductID      uint16 `json:"pid"`
	VersionID      uint16 `json:"vid"`
	ReplayCapacity uint16 `json:"crpl"`
	Features       uint16 `json:"features"`
}

// HasFeature reports whether the feature bit is set.
func (h Header) HasFeature(bit uint16) bool {
	return h.Features&bit != 0
}

// Element is the decoded model list of one element.
type Element struct {
	Index        int                `json:"index"`
	Location     uint16             `json:"location"`
	SIGModels    []mesh.ModelID     `json:"sig_models"`
	VendorModels []mesh.VendorModel `json:"vendor_models"`

	// DeclaredSIG and DeclaredVendor are the counts from the element header.
	// They determine the element's wire size even when the model lists were
	// discarded.
	DeclaredSIG    int `json:"declared_sig"`
	DeclaredVendor int `json:"declared_vendor"`

	// Truncated is set when a declared count exceeded the limits and the
	// model lists were left empty.
	Truncated bool `json:"truncated,omitempty"`
}

// Size returns the element's length on the wire.
func (e Element) Size() int {
	return ElementHeaderSize + e.DeclaredSIG*sigModelSize + e.DeclaredVendor*vendorModelSize
}

// Composition is a decoded composition data page.
type Composition struct {
	Header   Header    `json:"header"`
	Elements []Element `json:"elements"`

	// Partial is set when bytes were left undecoded, either a trailing
	// incomplete element or elements beyond the limit.
	Partial bool `json:"partial,omitempty"`
}

// HasModel reports whether any element carries the SIG model.
func (c Composition) HasModel(id mesh.ModelID) bool {
	for _, e := range c.Elements {
		for _, m := range e.SIGModels {
			if m == id {
				return true
			}
		}
	}
	return false
}

// ModelCount returns the total number of decoded SIG and vendor models.
func (c Composition) ModelCount() int {
	n := 0
	for _, e := range c.Elements {
		n += len(e.SIGModels) + len(e.VendorModels)
	}
	return n
}

// Decode parses a reassembled composition data blob.
//
// Elements are read until limits.MaxElements have been decoded or the next
// element header does not fit in the blob. An element whose declared counts
// exceed the limits decodes with empty model lists, and decoding continues
// at the offset implied by its declared counts; this holds even when those
// counts run past the end of the blob. Any other element whose body runs
// past the end of the blob is dropped. Either way the result is Partial.
//
// Parameters:
//   - blob: Page 0 composition data, header first
//   - limits: Capacity limits; zero fields take defaults
//
// Returns:
//   - Composition: Decoded header and elements
//   - error: ErrShortHeader or ErrNoElements
func Decode(blob []byte, limits Limits) (Composition, error) {
	limits = limits.withDefaults()

	if len(blob) < HeaderSize {
		return Composition{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(blob))
	}

	c := Composition{
		Header: Header{
			CompanyID:      binary.LittleEndian.Uint16(blob[0:2]),
			ProductID:      binary.LittleEndian.Uint16(blob[2:4]),
			VersionID:      binary.LittleEndian.Uint16(blob[4:6]),
			ReplayCapacity: binary.LittleEndian.Uint16(blob[6:8]),
			Features:       binary.LittleEndian.Uint16(blob[8:10]),
		},
	}

	offset := HeaderSize
	for len(c.Elements) < limits.MaxElements && offset+ElementHeaderSize <= len(blob) {
		e, ok := decodeElement(blob[offset:], len(c.Elements), limits)
		if !ok {
			break
		}
		c.Elements = append(c.Elements, e)
		offset += e.Size()
	}

	if offset != len(blob) {
		c.Partial = true
	}

	if len(c.Elements) == 0 {
		return c, ErrNoElements
	}
	return c, nil
}

// decodeElement decodes the element at the start of b. It returns false when
// the body of an element within the limits does not fit.
func decodeElement(b []byte, index int, limits Limits) (Element, bool) {
	e := Element{
		Index:          index,
		Location:       binary.LittleEndian.Uint16(b[0:2]),
		DeclaredSIG:    int(b[2]),
		DeclaredVendor: int(b[3]),
	}

	if e.DeclaredSIG > limits.MaxSIGModels || e.DeclaredVendor > limits.MaxVendorModels {
		e.Truncated = true
		e.SIGModels = []mesh.ModelID{}
		e.VendorModels = []mesh.VendorModel{}
		return e, true
	}

	if e.Size() > len(b) {
		return Element{}, false
	}

	p := ElementHeaderSize
	e.SIGModels = make([]mesh.ModelID, 0, e.DeclaredSIG)
	for i := 0; i < e.DeclaredSIG; i++ {
		e.SIGModels = append(e.SIGModels, mesh.ModelID(binary.LittleEndian.Uint16(b[p:p+2])))
		p += sigModelSize
	}

	e.VendorModels = make([]mesh.VendorModel, 0, e.DeclaredVendor)
	for i := 0; i < e.DeclaredVendor; i++ {
		e.VendorModels = append(e.VendorModels, mesh.VendorModel{
			VendorID: binary.LittleEndian.Uint16(b[p : p+2]),
			ModelID:  mesh.ModelID(binary.LittleEndian.Uint16(b[p+2 : p+4])),
		})
		p += vendorModelSize
	}

	return e, true
}
