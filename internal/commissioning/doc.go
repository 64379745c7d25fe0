// Package commissioning ties the device registry and the configuration
// sequencer into the end-to-end commissioning of mesh nodes.
//
// A Controller reacts to stack events delivered by the btmesh bridge and to
// installer triggers from the API:
//
//	beacon ──▶ registry.Add
//	                                 Trigger(mode, target)
//	                                        │
//	                                        ▼
//	            registry.NextOfFamily ──▶ provision ──▶ provisioned
//	                                                        │ registry.Remove
//	                                                        ▼
//	                                    app key ──▶ sequencer.Start ──▶ ... ──▶ outcome
//	                                                                              │
//	                          journal, metrics, events ◀──────────────────────────┤
//	                                                                              │
//	                          drain_all: Trigger again ◀──── success ─────────────┘
//
// Only one device is in flight at a time. Trigger returns ErrBusy until the
// current device succeeds or fails. A failure returns the controller to
// idle and ends drain mode. A device whose provisioning failed stays in the
// registry and is picked up by the next trigger.
//
// Outcomes are appended to a JournalRepository (SQLiteJournal in
// production) and reported to optional MetricsWriter and EventPublisher
// sinks. The registry itself is held in memory only.
package commissioning
