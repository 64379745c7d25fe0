// Package registry holds the set of unprovisioned mesh devices discovered
// by beacon scanning.
//
// The registry is a fixed-size slot table. Each slot holds one Record keyed
// by the device's link address. Provisioned devices are marked dead, not
// removed, and their slots are the first to be reused:
//
//	slot:   0        1        2        3
//	      ┌────────┬────────┬────────┬────────┐
//	      │ A live │ B dead │ C live │  free  │
//	      └────────┴────────┴────────┴────────┘
//	Add(D) ──────────▲ reuses slot 1 before appending at slot 3
//
// Records whose UUID starts with the configured family prefix are tagged
// Family. NextOfFamily picks the lowest live family slot, so provisioning
// order follows slot order rather than arrival order.
//
// The table lives in memory only; pending devices are forgotten on restart
// and rediscovered from their beacons.
package registry
