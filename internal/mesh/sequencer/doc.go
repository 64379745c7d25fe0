// Package sequencer drives the post-provisioning configuration of a mesh
// node: composition fetch, then per element every model bind, then every
// publication, then every subscription, then proxy and heartbeat setup.
//
// Requests are fire-and-continue. Each result arrives later as an event and
// the Sequencer resumes from its explicit session state:
//
//	           Start
//	  Idle ───────────▶ AwaitingComposition
//	   ▲                        │ composition end
//	   │                        ▼
//	   │      ┌──────────▶ Binding ──────▶ Publishing ──────▶ Subscribing
//	   │      │ next element                                       │
//	   │      └────────────────────────────────────────────────────┤
//	   │                                                           │ last element
//	   │◀──────────── proxy + heartbeat, outcome(success) ◀────────┘
//	   │
//	   └◀──────────── delete provisioning entry, outcome(aborted)
//	                  (retries exhausted or status 0x1307 in any state)
//
// Only one session exists at a time. Start returns ErrSessionBusy while a
// session is active, and events that do not match the active session's
// state and target address are ignored.
//
// The retry budget applies per step type. A failure decrements it and
// reissues the same request; moving from binding to publishing, from
// publishing to subscribing, or on to the next element, restores it.
package sequencer
