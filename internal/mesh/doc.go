// Package mesh defines the value types shared by the Bluetooth mesh
// commissioning packages.
//
// It holds no behaviour beyond parsing and formatting. The packages that
// do the work build on it:
//
//	┌───────────────────────────────────────────────────────────────────┐
//	│                     commissioning.Controller                      │
//	│                                                                   │
//	│   ┌────────────────┐   ┌────────────────┐   ┌─────────────────┐   │
//	│   │    registry    │   │  composition   │──▶│    sequencer    │   │
//	│   │ pending nodes  │   │  DCD decoding  │   │ bind/pub/sub    │   │
//	│   └────────────────┘   └────────────────┘   └─────────────────┘   │
//	└──────────────────────────────┬────────────────────────────────────┘
//	                               │ mesh requests / events
//	                               ▼
//	                    ┌─────────────────────┐
//	                    │   bridges/btmesh    │  MQTT ◀──▶ mesh stack host
//	                    └─────────────────────┘
//
// # Addresses
//
// Mesh addresses are 16-bit. Unicast addresses occupy 0x0001-0x7FFF,
// virtual addresses 0x8000-0xBFFF and group addresses 0xC000-0xFFFF.
// Addresses marshal to text as "0xC001" so JSON payloads stay readable.
//
// Link addresses are the 6-byte advertising addresses reported in
// unprovisioned device beacons, formatted "aa:bb:cc:dd:ee:ff".
//
// # Requests
//
// BindRequest, PublicationRequest, SubscriptionRequest and HeartbeatRequest
// carry everything the stack needs to issue one configuration message, so a
// result event can always be matched against the request that caused it.
package mesh
