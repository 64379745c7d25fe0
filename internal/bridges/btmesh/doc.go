// Package btmesh connects the commissioning service to the Bluetooth mesh
// stack host over MQTT.
//
// The stack host owns the radio, the provisioning database and the network
// keys. This package only moves requests and events between it and the
// commissioning Controller:
//
//	┌────────────────────┐          ┌─────────────┐          ┌──────────────┐
//	│  commissioning     │  Stack   │   Bridge    │   MQTT   │  mesh stack  │
//	│   Controller       │─────────▶│ (this pkg)  │◄────────►│     host     │
//	│                    │◀─────────│             │          │              │
//	└────────────────────┘  events  └─────────────┘          └──────────────┘
//
// # Topics
//
//	graylogic/request/btmesh/{action}   service → host   RequestMessage
//	graylogic/event/btmesh/{type}       host → service   EventMessage
//	graylogic/health/btmesh             retained         HealthMessage
//	graylogic/commissioning/btmesh      service → any    commissioning.Event
//
// The "btmesh" segment is configurable.
//
// # Wire format
//
// Addresses are strings ("0x0005" or "5"), link addresses use
// "aa:bb:cc:dd:ee:ff", UUIDs use the canonical string form and composition
// fragments are base64. Status codes are JSON numbers.
//
// Example beacon:
//
//	{"type":"beacon","uuid":"000002ff-0001-...","link_address":"c0:ff:ee:00:00:01","bearer":0}
//
// # Ordering
//
// Events are queued and dispatched by one goroutine, so the handler sees them
// in the order the broker delivered them. The handler may issue requests
// from inside a callback.
package btmesh
