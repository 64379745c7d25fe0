package sequencer

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/composition"
)

// Logger defines the logging interface used by the Sequencer.
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

// Sequencer drives one configuration session at a time against a
// provisioned node.
//
// A Sequencer is not safe for concurrent use. The owner serialises calls.
type Sequencer struct {
	client    mesh.ConfigClient
	params    Params
	logger    Logger
	onOutcome OutcomeFunc
	now       func() time.Time

	state   State
	sess    *session
	buf     *composition.Buffer
	attempt uint64
}

// session is the state of the single in-flight configuration run.
type session struct {
	target Target
	comp   composition.Composition

	element int

	binds []WorkItem
	pubs  []WorkItem
	subs  []WorkItem

	bound      int
	published  int
	subscribed int

	retriesLeft int
	retriesUsed int
	models      int
	heartbeat   bool

	// discard is set after a composition overflow; remaining fragments of
	// the page are dropped until the end marker.
	discard bool

	startedAt time.Time
}

// New creates an idle Sequencer.
//
// Parameters:
//   - client: Stack configuration client that receives every request
//   - params: Commissioning profile; see DefaultParams
//
// Returns:
//   - *Sequencer: Idle sequencer with a no-op logger
func New(client mesh.ConfigClient, params Params) *Sequencer {
	if params.RetryBudget < 0 {
		params.RetryBudget = 0
	}
	return &Sequencer{
		client:    client,
		params:    params,
		logger:    noopLogger{},
		onOutcome: func(Outcome) {},
		now:       time.Now,
		buf:       composition.NewBuffer(params.BufferSize),
	}
}

// SetLogger sets the logger for the sequencer.
func (s *Sequencer) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetOutcomeHandler registers the function called when a session ends.
func (s *Sequencer) SetOutcomeHandler(fn OutcomeFunc) {
	if fn == nil {
		fn = func(Outcome) {}
	}
	s.onOutcome = fn
}

// State returns the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Active reports whether a session is in progress.
func (s *Sequencer) Active() bool {
	return s.state != StateIdle
}

// Attempt returns a counter that increases every time a request is issued.
// Timeout uses it to discard stale timers.
func (s *Sequencer) Attempt() uint64 {
	return s.attempt
}

// Start opens a session for a provisioned node and requests its
// composition data.
//
// Returns:
//   - error: ErrSessionBusy if a session is active, ErrInvalidTarget for a
//     bad address or group, ErrRequestFailed if the composition request
//     could not be issued. The sequencer stays idle on any error.
func (s *Sequencer) Start(t Target) error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: configuring %s", ErrSessionBusy, s.sess.target.Address)
	}
	if !t.Address.IsUnicast() {
		return fmt.Errorf("%w: address %s is not unicast", ErrInvalidTarget, t.Address)
	}
	if !t.Group.IsGroup() {
		return fmt.Errorf("%w: %s is not a group address", ErrInvalidTarget, t.Group)
	}

	s.sess = &session{
		target:      t,
		retriesLeft: s.params.RetryBudget,
		startedAt:   s.now(),
	}
	s.state = StateAwaitingComposition

	if err := s.requestComposition(); err != nil {
		s.clear()
		return err
	}

	s.logger.Info("configuration session started",
		"address", t.Address,
		"group", t.Group,
		"device_type", t.DeviceType,
	)
	return nil
}

// OnCompositionData accumulates one composition data fragment.
func (s *Sequencer) OnCompositionData(addr mesh.Address, fragment []byte) {
	if !s.expect(StateAwaitingComposition, addr, "composition data") {
		return
	}
	if s.sess.discard {
		return
	}
	if err := s.buf.Append(fragment); err != nil {
		s.logger.Warn("composition data overflow", "address", addr, "error", err)
		s.sess.discard = true
	}
}

// OnCompositionEnd decodes the accumulated composition data and starts
// configuring element 0.
func (s *Sequencer) OnCompositionEnd(addr mesh.Address) {
	if !s.expect(StateAwaitingComposition, addr, "composition end") {
		return
	}
	if s.sess.discard {
		s.fail(composition.ErrBlobOverflow, mesh.StatusOK)
		return
	}

	comp, err := composition.Decode(s.buf.Bytes(), s.params.Limits)
	if err != nil {
		s.logger.Warn("composition data rejected", "address", addr, "bytes", s.buf.Len(), "error", err)
		s.fail(err, mesh.StatusOK)
		return
	}

	for _, e := range comp.Elements {
		if e.Truncated {
			s.logger.Warn("element models discarded",
				"address", addr,
				"element", e.Index,
				"sig", e.DeclaredSIG,
				"vendor", e.DeclaredVendor,
				"error", composition.ErrElementOverCapacity,
			)
		}
	}

	s.logger.Debug("composition decoded",
		"address", addr,
		"cid", comp.Header.CompanyID,
		"pid", comp.Header.ProductID,
		"elements", len(comp.Elements),
		"partial", comp.Partial,
	)

	s.sess.comp = comp
	s.sess.element = 0
	s.beginElement()
}

// OnBindResult handles a model app bind status.
func (s *Sequencer) OnBindResult(addr mesh.Address, status mesh.Status) {
	s.handleResult(StateBinding, addr, status)
}

// OnPublicationResult handles a model publication status.
func (s *Sequencer) OnPublicationResult(addr mesh.Address, status mesh.Status) {
	s.handleResult(StatePublishing, addr, status)
}

// OnSubscriptionResult handles a model subscription status.
func (s *Sequencer) OnSubscriptionResult(addr mesh.Address, status mesh.Status) {
	s.handleResult(StateSubscribing, addr, status)
}

// OnProxyResult logs a GATT proxy status. Proxy enablement is never retried.
func (s *Sequencer) OnProxyResult(addr mesh.Address, status mesh.Status) {
	if status.OK() {
		s.logger.Info("gatt proxy enabled", "address", addr)
		return
	}
	s.logger.Warn("gatt proxy not enabled", "address", addr, "status", status)
}

// OnHeartbeatResult logs a heartbeat publication status. It is never retried.
func (s *Sequencer) OnHeartbeatResult(addr mesh.Address, status mesh.Status) {
	if status.OK() {
		s.logger.Info("heartbeat publication set", "address", addr)
		return
	}
	s.logger.Warn("heartbeat publication not set", "address", addr, "status", status)
}

// Timeout fails the current step if attempt still identifies the
// outstanding request.
func (s *Sequencer) Timeout(attempt uint64) {
	if s.state == StateIdle || attempt != s.attempt {
		return
	}
	s.logger.Warn("configuration step timed out",
		"address", s.sess.target.Address,
		"step", s.state,
		"retries_left", s.sess.retriesLeft,
	)
	s.fail(ErrStepTimeout, mesh.StatusOK)
}

// Reset abandons any active session without side effects.
func (s *Sequencer) Reset() {
	if s.sess != nil {
		s.logger.Info("configuration session reset", "address", s.sess.target.Address, "step", s.state)
	}
	s.clear()
}

// Snapshot returns a view of the active session.
func (s *Sequencer) Snapshot() Snapshot {
	snap := Snapshot{
		State:     s.state,
		BufferLen: s.buf.Len(),
		Attempt:   s.attempt,
	}
	if s.sess == nil {
		return snap
	}

	t := s.sess.target
	snap.Target = &t
	snap.Element = s.sess.element
	snap.Elements = len(s.sess.comp.Elements)
	snap.Bound, snap.BindTotal = s.sess.bound, len(s.sess.binds)
	snap.Published, snap.PubTotal = s.sess.published, len(s.sess.pubs)
	snap.Subscribed, snap.SubTotal = s.sess.subscribed, len(s.sess.subs)
	snap.RetriesLeft = s.sess.retriesLeft
	return snap
}

// ─── Session internals ─────────────────────────────────────────────

// expect reports whether an event for addr belongs to the active session in
// the given state. Anything else is logged and dropped.
func (s *Sequencer) expect(state State, addr mesh.Address, what string) bool {
	if s.state != state {
		s.logger.Debug("ignoring event", "event", what, "address", addr, "state", s.state)
		return false
	}
	if addr != s.sess.target.Address {
		s.logger.Debug("ignoring event for other node", "event", what, "address", addr, "target", s.sess.target.Address)
		return false
	}
	return true
}

func (s *Sequencer) requestComposition() error {
	s.attempt++
	s.buf.Reset()
	s.sess.discard = false
	if err := s.client.GetComposition(s.sess.target.Address, compositionPage); err != nil {
		return fmt.Errorf("%w: get composition: %w", ErrRequestFailed, err)
	}
	return nil
}

// beginElement builds the work lists for the current element and issues its
// first bind. Elements without configurable models are skipped.
func (s *Sequencer) beginElement() {
	for s.sess.element < len(s.sess.comp.Elements) {
		if s.buildWork() {
			s.enter(StateBinding)
			return
		}
		s.logger.Debug("element has no configurable models",
			"address", s.sess.target.Address,
			"element", s.sess.element,
		)
		s.sess.element++
	}
	s.finish()
}

// buildWork fills the bind, publish and subscribe lists for the current
// element. Publish and subscribe items for the target group come first,
// followed by the secondary group for gateways.
func (s *Sequencer) buildWork() bool {
	e := s.sess.comp.Elements[s.sess.element]
	t := s.sess.target
	idx := uint8(s.sess.element) //nolint:gosec // bounded by Limits.MaxElements

	groups := []mesh.Address{t.Group}
	if t.DeviceType == mesh.DeviceTypeGateway &&
		s.params.SecondaryGroup.IsGroup() && s.params.SecondaryGroup != t.Group {
		groups = append(groups, s.params.SecondaryGroup)
	}

	binds := make([]WorkItem, 0, len(e.SIGModels))
	for _, m := range e.SIGModels {
		if m == mesh.ModelConfigurationServer {
			continue
		}
		binds = append(binds, WorkItem{Action: ActionBind, Element: idx, Model: m, VendorID: mesh.SIGVendorID})
		if m == s.params.HeartbeatModel {
			s.sess.heartbeat = true
		}
	}

	pubs := make([]WorkItem, 0, len(binds)*len(groups))
	subs := make([]WorkItem, 0, len(binds)*len(groups))
	for _, g := range groups {
		for _, b := range binds {
			pubs = append(pubs, WorkItem{Action: ActionPublish, Element: idx, Model: b.Model, VendorID: b.VendorID, Group: g})
			subs = append(subs, WorkItem{Action: ActionSubscribe, Element: idx, Model: b.Model, VendorID: b.VendorID, Group: g})
		}
	}

	s.sess.binds, s.sess.pubs, s.sess.subs = binds, pubs, subs
	s.sess.bound, s.sess.published, s.sess.subscribed = 0, 0, 0
	s.sess.models += len(binds)
	return len(binds) > 0
}

// enter moves to a new step type with a fresh retry budget and issues its
// first item.
func (s *Sequencer) enter(state State) {
	s.state = state
	s.sess.retriesLeft = s.params.RetryBudget
	s.issue()
}

// current returns the work item the session is waiting on.
func (s *Sequencer) current() WorkItem {
	switch s.state {
	case StateBinding:
		return s.sess.binds[s.sess.bound]
	case StatePublishing:
		return s.sess.pubs[s.sess.published]
	case StateSubscribing:
		return s.sess.subs[s.sess.subscribed]
	default:
		return WorkItem{}
	}
}

// issue sends the current work item. A request that cannot be issued
// counts as a failed attempt.
func (s *Sequencer) issue() {
	s.attempt++
	item := s.current()
	if err := s.send(item); err != nil {
		s.logger.Warn("configuration request not issued",
			"address", s.sess.target.Address,
			"action", item.Action,
			"model", item.Model,
			"error", err,
		)
		s.fail(fmt.Errorf("%w: %s: %w", ErrRequestFailed, item.Action, err), mesh.StatusOK)
	}
}

func (s *Sequencer) send(item WorkItem) error {
	addr := s.sess.target.Address
	switch item.Action {
	case ActionBind:
		return s.client.BindModel(mesh.BindRequest{
			Address:     addr,
			Element:     item.Element,
			VendorID:    item.VendorID,
			Model:       item.Model,
			AppKeyIndex: s.params.AppKeyIndex,
			NetKeyIndex: s.params.NetKeyIndex,
		})
	case ActionPublish:
		p := s.params.Publication
		return s.client.SetPublication(mesh.PublicationRequest{
			Address:              addr,
			Element:              item.Element,
			VendorID:             item.VendorID,
			Model:                item.Model,
			Group:                item.Group,
			AppKeyIndex:          s.params.AppKeyIndex,
			NetKeyIndex:          s.params.NetKeyIndex,
			FriendCredentials:    p.FriendCredentials,
			TTL:                  p.TTL,
			Period:               p.Period,
			RetransmitCount:      p.RetransmitCount,
			RetransmitIntervalMS: p.RetransmitIntervalMS,
		})
	case ActionSubscribe:
		return s.client.AddSubscription(mesh.SubscriptionRequest{
			Address:     addr,
			Element:     item.Element,
			VendorID:    item.VendorID,
			Model:       item.Model,
			Group:       item.Group,
			NetKeyIndex: s.params.NetKeyIndex,
		})
	default:
		return fmt.Errorf("unknown action %s", item.Action)
	}
}

// accepted reports whether a status completes the step.
func accepted(step State, status mesh.Status) bool {
	switch {
	case status.OK():
		return true
	case step == StatePublishing && status == mesh.StatusAlreadyExists:
		return true
	case step == StateSubscribing && status == mesh.StatusSubscriptionExists:
		return true
	default:
		return false
	}
}

func (s *Sequencer) handleResult(step State, addr mesh.Address, status mesh.Status) {
	if !s.expect(step, addr, step.String()+" result") {
		return
	}

	item := s.current()
	if !accepted(step, status) {
		s.logger.Warn("configuration step failed",
			"address", addr,
			"action", item.Action,
			"element", item.Element,
			"model", item.Model,
			"group", item.Group,
			"status", status,
			"retries_left", s.sess.retriesLeft,
		)
		s.fail(fmt.Errorf("%w: %s %s status %s", ErrStepFailed, item.Action, item.Model, status), status)
		return
	}

	s.logger.Debug("configuration step done",
		"address", addr,
		"action", item.Action,
		"element", item.Element,
		"model", item.Model,
		"group", item.Group,
	)
	s.advance()
}

// advance moves the cursor of the current list and issues the next request.
func (s *Sequencer) advance() {
	switch s.state {
	case StateBinding:
		s.sess.bound++
		if s.sess.bound < len(s.sess.binds) {
			s.issue()
			return
		}
		s.enter(StatePublishing)

	case StatePublishing:
		s.sess.published++
		if s.sess.published < len(s.sess.pubs) {
			s.issue()
			return
		}
		s.enter(StateSubscribing)

	case StateSubscribing:
		s.sess.subscribed++
		if s.sess.subscribed < len(s.sess.subs) {
			s.issue()
			return
		}
		s.buf.Reset()
		s.sess.element++
		s.beginElement()
	}
}

// fail retries the current step if the budget allows, otherwise aborts.
// StatusAlreadyExists aborts without retrying.
func (s *Sequencer) fail(cause error, status mesh.Status) {
	if status == mesh.StatusAlreadyExists {
		s.abort(cause)
		return
	}
	if s.sess.retriesLeft <= 0 {
		s.abort(fmt.Errorf("%w: %s: %w", ErrStepExhausted, s.state, cause))
		return
	}

	s.sess.retriesLeft--
	s.sess.retriesUsed++
	s.logger.Info("retrying configuration step",
		"address", s.sess.target.Address,
		"step", s.state,
		"retries_left", s.sess.retriesLeft,
	)

	if s.state == StateAwaitingComposition {
		if err := s.requestComposition(); err != nil {
			s.abort(err)
		}
		return
	}
	s.issue()
}

// abort ends the session and drops the node from the provisioner database
// so it can be provisioned again.
func (s *Sequencer) abort(cause error) {
	out := s.outcome(false, cause)

	if err := s.client.DeleteProvisioningEntry(s.sess.target.UUID); err != nil {
		s.logger.Error("deleting provisioning entry failed", "uuid", s.sess.target.UUID, "error", err)
	}

	s.logger.Error("configuration session aborted",
		"address", out.Target.Address,
		"step", out.Step,
		"retries", out.Retries,
		"error", cause,
	)

	s.clear()
	s.onOutcome(out)
}

// finish reports success, then enables the proxy feature and sets up
// heartbeat publication when required. Neither follow-up request can fail
// the session; their statuses are only logged.
func (s *Sequencer) finish() {
	t := s.sess.target
	heartbeat := s.sess.heartbeat

	out := s.outcome(true, nil)
	s.logger.Info("configuration session complete",
		"address", t.Address,
		"elements", out.Elements,
		"models", out.Models,
		"retries", out.Retries,
		"duration", out.Duration(),
	)

	s.clear()
	s.onOutcome(out)

	if err := s.client.SetProxy(t.Address, true); err != nil {
		s.logger.Warn("gatt proxy request not issued", "address", t.Address, "error", err)
	}

	if heartbeat {
		hb := s.params.Heartbeat
		err := s.client.SetHeartbeatPublication(mesh.HeartbeatRequest{
			Address:     t.Address,
			Destination: t.Group,
			NetKeyIndex: s.params.NetKeyIndex,
			Count:       hb.Count,
			PeriodLog:   hb.PeriodLog,
			TTL:         hb.TTL,
			Features:    hb.Features,
		})
		if err != nil {
			s.logger.Warn("heartbeat request not issued", "address", t.Address, "error", err)
		}
	}
}

func (s *Sequencer) outcome(success bool, err error) Outcome {
	return Outcome{
		Target:     s.sess.target,
		Success:    success,
		Err:        err,
		Step:       s.state,
		Elements:   len(s.sess.comp.Elements),
		Models:     s.sess.models,
		Retries:    s.sess.retriesUsed,
		Heartbeat:  success && s.sess.heartbeat,
		StartedAt:  s.sess.startedAt,
		FinishedAt: s.now(),
	}
}

func (s *Sequencer) clear() {
	s.state = StateIdle
	s.sess = nil
	s.buf.Reset()
}
