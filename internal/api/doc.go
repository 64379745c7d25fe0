// Package api implements the installer HTTP API and WebSocket event feed
// for the mesh commissioning controller.
//
// # Routes
//
// All routes live under /api/v1:
//
//	GET  /health            component health, no auth
//	GET  /ws                WebSocket feed (token in ?token= or header)
//	GET  /mesh/devices      pending family devices (?all=true for every record)
//	GET  /mesh/session      controller snapshot
//	GET  /mesh/journal      recent commissioning outcomes (?limit=N)
//	POST /mesh/commission   start commissioning {"mode","group","device_type"}
//	POST /mesh/reset        abort and clear the registry
//	GET  /audit             operator actions (?action=, ?subject=, ?limit=, ?offset=)
//
// # Security
//
// Every /mesh and /audit route requires an HS256 installer token in the
// Authorization header. The token's role gates each route through
// auth.HasPermission: viewers read, installers also commission, admins also
// reset and read the audit trail. Commission and reset are recorded in the
// audit trail with the token's subject.
//
// # Events
//
// The Hub implements commissioning.EventPublisher. Each event is broadcast
// on the "mesh.commissioning" channel, to which clients are subscribed on
// connect. Slow clients drop events rather than stall the controller.
package api
