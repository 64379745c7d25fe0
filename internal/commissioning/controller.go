package commissioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/registry"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/sequencer"
)

// journalTimeout bounds a single journal write.
const journalTimeout = 5 * time.Second

// Logger defines the logging interface used by the Controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Controller.
type Options struct {
	// Stack receives provisioning and configuration requests. Required.
	Stack mesh.Stack

	Registry  registry.Options
	Sequencer sequencer.Params

	// PrimaryGroup is used when a trigger does not name a group.
	PrimaryGroup mesh.Address

	// StepTimeout fails an outstanding request when no result arrives in
	// time. Zero disables the timers.
	StepTimeout time.Duration

	// Journal, Metrics and Events are optional sinks.
	Journal JournalRepository
	Metrics MetricsWriter
	Events  EventPublisher

	Logger Logger
}

// Controller drives devices from the registry through provisioning, app
// key distribution and configuration.
//
// Every exported method takes the controller lock. The registry and the
// sequencer are only touched under it.
type Controller struct {
	mu sync.Mutex

	stack       mesh.Stack
	reg         *registry.Registry
	seq         *sequencer.Sequencer
	primary     mesh.Address
	appKeyIndex uint16
	netKeyIndex uint16
	stepTimeout time.Duration

	journal JournalRepository
	metrics MetricsWriter
	events  EventPublisher
	logger  Logger
	now     func() time.Time

	mode      Mode
	phase     Phase
	target    Target
	pending   *PendingDevice
	indicator Indicator
	last      *JournalEntry

	timer        *time.Timer
	timerGen     uint64
	armedAttempt uint64
}

// New creates an idle Controller.
//
// Returns:
//   - *Controller: Controller with an empty registry
//   - error: If Stack is nil
func New(opts Options) (*Controller, error) {
	if opts.Stack == nil {
		return nil, errors.New("commissioning: stack is required")
	}

	primary := opts.PrimaryGroup
	if primary == mesh.UnassignedAddress {
		primary = mesh.LightGroup1
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Controller{
		stack:       opts.Stack,
		reg:         registry.New(opts.Registry),
		seq:         sequencer.New(opts.Stack, opts.Sequencer),
		primary:     primary,
		appKeyIndex: opts.Sequencer.AppKeyIndex,
		netKeyIndex: opts.Sequencer.NetKeyIndex,
		stepTimeout: opts.StepTimeout,
		journal:     opts.Journal,
		metrics:     opts.Metrics,
		events:      opts.Events,
		logger:      logger,
		now:         time.Now,
		indicator:   IndicatorIdle,
	}

	c.reg.SetLogger(logger)
	c.seq.SetLogger(logger)
	c.seq.SetOutcomeHandler(c.onSessionOutcome)

	return c, nil
}

// ─── Discovery ─────────────────────────────────────────────────────

// OnDiscovery records an unprovisioned device beacon.
//
// Beacons received over PB-GATT and beacons for devices the stack already
// knows are ignored and reported as NotFound.
func (c *Controller) OnDiscovery(b mesh.Beacon) registry.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b.Bearer != mesh.BearerPBADV {
		c.logger.Debug("ignoring beacon on unsupported bearer", "uuid", b.UUID, "bearer", b.Bearer)
		return registry.NotFound
	}
	if b.Known {
		c.logger.Debug("ignoring beacon for known device", "uuid", b.UUID)
		return registry.NotFound
	}

	res := c.reg.Add(b.UUID, b.LinkAddress)
	switch res {
	case registry.Added:
		c.logger.Info("device discovered",
			"uuid", b.UUID,
			"link_address", b.LinkAddress,
			"family", c.reg.IsFamily(b.UUID),
			"pending", c.reg.Count(),
		)
		c.writeRegistryMetric()
		c.publish(Event{
			Type:        EventDiscovered,
			UUID:        b.UUID,
			LinkAddress: b.LinkAddress,
		})
	case registry.Full:
		c.logger.Warn("device not registered", "uuid", b.UUID, "error", res.Err())
	}
	return res
}

// ─── Trigger ───────────────────────────────────────────────────────

// Trigger starts provisioning the first pending family device.
//
// In ModeDrainAll the controller triggers again after every successful
// configuration until no family device is left.
//
// Parameters:
//   - mode: ModeOnce or ModeDrainAll
//   - target: Group and device type applied once the device is provisioned
//
// Returns:
//   - registry.Record: The device chosen for provisioning
//   - error: ErrBusy, ErrNoDevice, mesh.ErrNotGroupAddress, or a wrapped
//     stack error if provisioning could not be requested
func (c *Controller) Trigger(mode Mode, target Target) (registry.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trigger(mode, target)
}

func (c *Controller) trigger(mode Mode, target Target) (registry.Record, error) {
	if c.phase != PhaseIdle {
		return registry.Record{}, fmt.Errorf("%w: %s", ErrBusy, c.phase)
	}

	if target.Group == mesh.UnassignedAddress {
		target.Group = c.primary
	}
	if !target.Group.IsGroup() || target.Group.IsFixedGroup() {
		return registry.Record{}, fmt.Errorf("%w: %s", mesh.ErrNotGroupAddress, target.Group)
	}

	rec, ok := c.reg.NextOfFamily()
	if !ok {
		c.mode = ModeOnce
		c.logger.Info("no family device pending", "pending", c.reg.Count())
		return registry.Record{}, ErrNoDevice
	}

	c.mode = mode
	c.target = target
	c.phase = PhaseProvisioning
	c.pending = &PendingDevice{
		UUID:        rec.UUID,
		LinkAddress: rec.LinkAddress,
		Group:       target.Group,
		DeviceType:  target.DeviceType,
		StartedAt:   c.now(),
	}

	if err := c.stack.CreateProvisioningSession(rec.UUID); err != nil {
		c.abandon(OutcomeProvisioningFailed, err.Error())
		return rec, fmt.Errorf("creating provisioning session: %w", err)
	}
	if err := c.stack.ProvisionAdvDevice(rec.UUID); err != nil {
		c.abandon(OutcomeProvisioningFailed, err.Error())
		return rec, fmt.Errorf("starting provisioning: %w", err)
	}

	c.logger.Info("provisioning device",
		"uuid", rec.UUID,
		"link_address", rec.LinkAddress,
		"mode", mode,
		"group", target.Group,
		"device_type", target.DeviceType,
	)
	c.indicator = IndicatorProvisioning
	c.publish(Event{Type: EventProvisioning})
	c.armTimer()

	return rec, nil
}

// ─── Provisioning and app key ──────────────────────────────────────

// OnProvisioned handles a completed provisioning. The device leaves the
// registry and receives the application key.
func (c *Controller) OnProvisioned(addr mesh.Address, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseProvisioning || c.pending.UUID != id {
		c.logger.Warn("ignoring unexpected provisioned event", "uuid", id, "address", addr, "phase", c.phase)
		return
	}

	if c.reg.Remove(c.pending.LinkAddress) == registry.NotFound {
		c.reg.RemoveByUUID(id)
	}
	c.writeRegistryMetric()

	c.pending.Address = addr
	c.phase = PhaseAddingAppKey
	c.logger.Info("device provisioned", "uuid", id, "address", addr)
	c.publish(Event{Type: EventProvisioned})

	if err := c.stack.AddAppKey(addr, c.appKeyIndex, c.netKeyIndex); err != nil {
		c.logger.Error("app key request not issued", "address", addr, "error", err)
		c.abandon(OutcomeAppKeyFailed, err.Error())
		return
	}
	c.armTimer()
}

// OnProvisioningFailed handles a provisioning failure. The device stays in
// the registry so a later trigger picks it up again. A nil id matches the
// pending device.
func (c *Controller) OnProvisioningFailed(id uuid.UUID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseProvisioning || (id != uuid.Nil && c.pending.UUID != id) {
		c.logger.Debug("ignoring provisioning failure", "uuid", id, "phase", c.phase)
		return
	}

	c.logger.Warn("provisioning failed", "uuid", c.pending.UUID, "reason", reason)
	c.abandon(OutcomeProvisioningFailed, reason)
}

// OnAppKeyResult handles the app key status and starts configuration.
func (c *Controller) OnAppKeyResult(addr mesh.Address, status mesh.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseAddingAppKey || c.pending.Address != addr {
		c.logger.Debug("ignoring app key status", "address", addr, "phase", c.phase)
		return
	}

	if !status.OK() {
		c.logger.Warn("app key rejected", "address", addr, "status", status)
		c.abandon(OutcomeAppKeyFailed, "status "+status.String())
		return
	}

	p := c.pending
	err := c.seq.Start(sequencer.Target{
		Address:    p.Address,
		Group:      p.Group,
		DeviceType: p.DeviceType,
		UUID:       p.UUID,
	})
	if err != nil {
		c.logger.Error("configuration not started", "address", addr, "error", err)
		if delErr := c.stack.DeleteProvisioningEntry(p.UUID); delErr != nil {
			c.logger.Error("deleting provisioning entry failed", "uuid", p.UUID, "error", delErr)
		}
		c.abandon(OutcomeAborted, err.Error())
		return
	}

	c.phase = PhaseConfiguring
	c.indicator = IndicatorConfiguring
	c.publish(Event{Type: EventConfiguring})
	c.armTimer()
}

// ─── Configuration events ──────────────────────────────────────────

// OnCompositionData forwards a composition data fragment.
func (c *Controller) OnCompositionData(addr mesh.Address, fragment []byte) {
	c.forward(func() { c.seq.OnCompositionData(addr, fragment) })
}

// OnCompositionEnd forwards the end of composition data.
func (c *Controller) OnCompositionEnd(addr mesh.Address) {
	c.forward(func() { c.seq.OnCompositionEnd(addr) })
}

// OnBindResult forwards a model app bind status.
func (c *Controller) OnBindResult(addr mesh.Address, status mesh.Status) {
	c.forward(func() { c.seq.OnBindResult(addr, status) })
}

// OnPublicationResult forwards a model publication status.
func (c *Controller) OnPublicationResult(addr mesh.Address, status mesh.Status) {
	c.forward(func() { c.seq.OnPublicationResult(addr, status) })
}

// OnSubscriptionResult forwards a model subscription status.
func (c *Controller) OnSubscriptionResult(addr mesh.Address, status mesh.Status) {
	c.forward(func() { c.seq.OnSubscriptionResult(addr, status) })
}

// OnProxyResult forwards a GATT proxy status.
func (c *Controller) OnProxyResult(addr mesh.Address, status mesh.Status) {
	c.forward(func() { c.seq.OnProxyResult(addr, status) })
}

// OnHeartbeatResult forwards a heartbeat publication status.
func (c *Controller) OnHeartbeatResult(addr mesh.Address, status mesh.Status) {
	c.forward(func() { c.seq.OnHeartbeatResult(addr, status) })
}

func (c *Controller) forward(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn()
	if c.phase == PhaseConfiguring && c.seq.Attempt() != c.armedAttempt {
		c.armTimer()
	}
}

// onSessionOutcome runs under the lock, from inside a forwarded event.
func (c *Controller) onSessionOutcome(out sequencer.Outcome) {
	if c.pending == nil {
		return
	}

	entry := c.entry(OutcomeSuccess, "")
	entry.Elements = out.Elements
	entry.Models = out.Models
	entry.Retries = out.Retries

	if !out.Success {
		entry.Outcome = OutcomeAborted
		entry.Reason = out.Err.Error()
		c.finishDevice(entry, IndicatorFailed)
		c.mode = ModeOnce
		return
	}

	c.finishDevice(entry, IndicatorSuccess)

	if c.mode == ModeDrainAll {
		if _, err := c.trigger(ModeDrainAll, c.target); err != nil {
			if errors.Is(err, ErrNoDevice) {
				c.logger.Info("drain complete")
			} else {
				c.logger.Warn("drain stopped", "error", err)
			}
			c.mode = ModeOnce
		}
	}
}

// ─── Reset and inspection ──────────────────────────────────────────

// Reset abandons any run in progress and clears the registry. It is used
// after a factory reset of the provisioner.
//
// An abandoned device is journalled as aborted. Once it holds an address
// its provisioning entry is deleted from the stack.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimer()
	if p := c.pending; p != nil {
		if p.Address != mesh.UnassignedAddress {
			if err := c.stack.DeleteProvisioningEntry(p.UUID); err != nil {
				c.logger.Error("deleting provisioning entry failed", "uuid", p.UUID, "error", err)
			}
		}
		c.finishDevice(c.entry(OutcomeAborted, "reset"), IndicatorIdle)
	}
	c.seq.Reset()
	c.reg.Reset()
	c.mode = ModeOnce
	c.phase = PhaseIdle
	c.pending = nil
	c.indicator = IndicatorIdle

	c.logger.Info("commissioning reset")
	c.writeRegistryMetric()
	c.publish(Event{Type: EventReset})
}

// Devices returns the pending family devices, or every pending device when
// all is set.
func (c *Controller) Devices(all bool) []registry.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if all {
		return c.reg.List()
	}
	return c.reg.ListFamily()
}

// Snapshot returns the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Mode:      c.mode,
		Phase:     c.phase,
		Indicator: c.indicator,
		Registry:  c.reg.Stats(),
		Session:   c.seq.Snapshot(),
	}
	if c.pending != nil {
		p := *c.pending
		snap.Pending = &p
	}
	if c.last != nil {
		l := *c.last
		snap.Last = &l
	}
	return snap
}

// ─── Internals ─────────────────────────────────────────────────────

// abandon ends the current device without configuration. The controller
// returns to idle and drain mode stops.
func (c *Controller) abandon(outcome, reason string) {
	c.finishDevice(c.entry(outcome, reason), IndicatorFailed)
	c.mode = ModeOnce
}

func (c *Controller) entry(outcome, reason string) JournalEntry {
	p := c.pending
	return JournalEntry{
		DeviceUUID: p.UUID,
		Address:    p.Address,
		Group:      p.Group,
		DeviceType: p.DeviceType,
		Outcome:    outcome,
		Reason:     reason,
		DurationMS: c.now().Sub(p.StartedAt).Milliseconds(),
		CreatedAt:  c.now().UTC(),
	}
}

// finishDevice records the outcome, publishes it and returns to idle.
func (c *Controller) finishDevice(entry JournalEntry, ind Indicator) {
	c.stopTimer()

	if c.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		if err := c.journal.Record(ctx, entry); err != nil {
			c.logger.Error("recording journal entry failed", "uuid", entry.DeviceUUID, "error", err)
		}
		cancel()
	}
	if c.metrics != nil {
		c.metrics.WriteCommissioningMetric(entry.Outcome, entry.DeviceType.String(),
			time.Duration(entry.DurationMS)*time.Millisecond, entry.Retries, entry.Elements, entry.Models)
	}

	c.indicator = ind
	evType := EventSucceeded
	if entry.Outcome != OutcomeSuccess {
		evType = EventFailed
	}
	c.publish(Event{Type: evType, Outcome: entry.Outcome, Reason: entry.Reason})

	c.logger.Info("device commissioning finished",
		"uuid", entry.DeviceUUID,
		"address", entry.Address,
		"outcome", entry.Outcome,
		"duration_ms", entry.DurationMS,
	)

	c.last = &entry
	c.pending = nil
	c.phase = PhaseIdle
}

// publish fills the device fields of ev from the pending device and sends it.
func (c *Controller) publish(ev Event) {
	if c.events == nil {
		return
	}
	if p := c.pending; p != nil {
		if ev.UUID == uuid.Nil {
			ev.UUID = p.UUID
			ev.LinkAddress = p.LinkAddress
		}
		ev.Address = p.Address
		ev.Group = p.Group
		ev.DeviceType = p.DeviceType
	}
	if ev.Indicator == "" {
		ev.Indicator = c.indicator
	}
	ev.Pending = c.reg.Count()
	ev.Timestamp = c.now().UTC()
	c.events.PublishCommissioningEvent(ev)
}

func (c *Controller) writeRegistryMetric() {
	if c.metrics != nil {
		c.metrics.WriteRegistryMetric(c.reg.Count())
	}
}

// armTimer restarts the step timer for the request just issued.
func (c *Controller) armTimer() {
	c.armedAttempt = c.seq.Attempt()
	if c.stepTimeout <= 0 {
		return
	}
	c.stopTimer()
	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(c.stepTimeout, func() { c.onTimeout(gen) })
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) onTimeout(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen {
		return
	}
	c.timer = nil

	switch c.phase {
	case PhaseProvisioning:
		c.logger.Warn("provisioning timed out", "uuid", c.pending.UUID)
		c.abandon(OutcomeProvisioningFailed, "timeout")
	case PhaseAddingAppKey:
		c.logger.Warn("app key timed out", "address", c.pending.Address)
		c.abandon(OutcomeAppKeyFailed, "timeout")
	case PhaseConfiguring:
		c.seq.Timeout(c.armedAttempt)
		if c.phase == PhaseConfiguring {
			c.armTimer()
		}
	}
}
