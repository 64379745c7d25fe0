// Package composition reassembles and decodes mesh composition data page 0.
//
// The stack delivers the page in fragments. Buffer concatenates them up to
// a fixed capacity; Decode turns the result into per-element model lists.
//
// Page layout (little-endian):
//
//	┌─────┬─────┬─────┬──────┬──────────┬───────────┬───────────┬─────┐
//	│ CID │ PID │ VID │ CRPL │ Features │ Element 0 │ Element 1 │ ... │
//	│  2  │  2  │  2  │  2   │    2     │           │           │     │
//	└─────┴─────┴─────┴──────┴──────────┴───────────┴───────────┴─────┘
//
//	Element: Loc(2) NumS(1) NumV(1) SIG[NumS]×2 Vendor[NumV]×(CID 2, MID 2)
//
// The offset of each element is computed from the declared counts of the
// one before it, so an element that is discarded for exceeding the model
// limits does not desynchronise the elements that follow.
package composition
