package sequencer

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/composition"
)

// ─── Mock config client ────────────────────────────────────────────

type call struct {
	kind    string
	element uint8
	model   mesh.ModelID
	group   mesh.Address
}

type mockClient struct {
	mu        sync.Mutex
	calls     []call
	failIssue map[string]int
	heartbeat *mesh.HeartbeatRequest
	lastPub   *mesh.PublicationRequest
}

func newMockClient() *mockClient {
	return &mockClient{failIssue: make(map[string]int)}
}

var errIssue = errors.New("transport down")

func (m *mockClient) record(c call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	if m.failIssue[c.kind] > 0 {
		m.failIssue[c.kind]--
		return errIssue
	}
	return nil
}

func (m *mockClient) GetComposition(mesh.Address, uint8) error {
	return m.record(call{kind: "composition"})
}

func (m *mockClient) BindModel(req mesh.BindRequest) error {
	return m.record(call{kind: "bind", element: req.Element, model: req.Model})
}

func (m *mockClient) SetPublication(req mesh.PublicationRequest) error {
	m.mu.Lock()
	m.lastPub = &req
	m.mu.Unlock()
	return m.record(call{kind: "publish", element: req.Element, model: req.Model, group: req.Group})
}

func (m *mockClient) AddSubscription(req mesh.SubscriptionRequest) error {
	return m.record(call{kind: "subscribe", element: req.Element, model: req.Model, group: req.Group})
}

func (m *mockClient) SetProxy(mesh.Address, bool) error {
	return m.record(call{kind: "proxy"})
}

func (m *mockClient) SetHeartbeatPublication(req mesh.HeartbeatRequest) error {
	m.mu.Lock()
	m.heartbeat = &req
	m.mu.Unlock()
	return m.record(call{kind: "heartbeat"})
}

func (m *mockClient) DeleteProvisioningEntry(uuid.UUID) error {
	return m.record(call{kind: "delete"})
}

func (m *mockClient) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (m *mockClient) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.kind
	}
	return out
}

// ─── Helpers ───────────────────────────────────────────────────────

const (
	nodeAddr  mesh.Address = 0x0005
	otherAddr mesh.Address = 0x0009
)

// dcd encodes a composition page with one element per model list.
func dcd(elements ...[]mesh.ModelID) []byte {
	b := make([]byte, composition.HeaderSize)
	for _, models := range elements {
		b = append(b, 0x00, 0x00, byte(len(models)), 0x00)
		for _, m := range models {
			b = binary.LittleEndian.AppendUint16(b, uint16(m))
		}
	}
	return b
}

func newTestSequencer(t *testing.T) (*Sequencer, *mockClient, *[]Outcome) {
	t.Helper()
	client := newMockClient()
	s := New(client, DefaultParams())
	outcomes := &[]Outcome{}
	s.SetOutcomeHandler(func(o Outcome) { *outcomes = append(*outcomes, o) })
	return s, client, outcomes
}

func target(dt mesh.DeviceType) Target {
	return Target{
		Address:    nodeAddr,
		Group:      mesh.LightGroup1,
		DeviceType: dt,
		UUID:       uuid.MustParse("000002ff-0001-0000-0000-000000000001"),
	}
}

// startWith starts a session and delivers the composition in two fragments.
func startWith(t *testing.T, s *Sequencer, tgt Target, blob []byte) {
	t.Helper()
	if err := s.Start(tgt); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	half := len(blob) / 2
	s.OnCompositionData(tgt.Address, blob[:half])
	s.OnCompositionData(tgt.Address, blob[half:])
	s.OnCompositionEnd(tgt.Address)
}

// respond delivers a status for whatever step is outstanding.
func respond(s *Sequencer, addr mesh.Address, status mesh.Status) {
	switch s.State() {
	case StateBinding:
		s.OnBindResult(addr, status)
	case StatePublishing:
		s.OnPublicationResult(addr, status)
	case StateSubscribing:
		s.OnSubscriptionResult(addr, status)
	}
}

// runToIdle answers every configuration step with success until the session
// ends or a new one is waiting for composition data.
func runToIdle(t *testing.T, s *Sequencer) {
	t.Helper()
	for i := 0; s.Active() && s.State() != StateAwaitingComposition; i++ {
		if i > 1000 {
			t.Fatalf("session did not finish, state %s", s.State())
		}
		respond(s, nodeAddr, mesh.StatusOK)
	}
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestSession_SingleElementOrder(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)

	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{
		mesh.ModelConfigurationServer,
		mesh.ModelGenericOnOffServer,
		mesh.ModelGenericOnOffClient,
	}))
	runToIdle(t, s)

	want := []call{
		{kind: "composition"},
		{kind: "bind", model: 0x1000},
		{kind: "bind", model: 0x1001},
		{kind: "publish", model: 0x1000, group: mesh.LightGroup1},
		{kind: "publish", model: 0x1001, group: mesh.LightGroup1},
		{kind: "subscribe", model: 0x1000, group: mesh.LightGroup1},
		{kind: "subscribe", model: 0x1001, group: mesh.LightGroup1},
		{kind: "proxy"},
	}
	if len(client.calls) != len(want) {
		t.Fatalf("calls = %v, want %d calls", client.kinds(), len(want))
	}
	for i := range want {
		if client.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, client.calls[i], want[i])
		}
	}

	if len(*outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(*outcomes))
	}
	out := (*outcomes)[0]
	if !out.Success || out.Err != nil {
		t.Errorf("outcome = %+v, want success", out)
	}
	if out.Models != 2 || out.Elements != 1 || out.Heartbeat {
		t.Errorf("outcome counts = models %d elements %d heartbeat %v", out.Models, out.Elements, out.Heartbeat)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %s, want idle", s.State())
	}
}

func TestSession_OutcomeBeforeFollowUps(t *testing.T) {
	s, client, _ := newTestSequencer(t)
	s.SetOutcomeHandler(func(o Outcome) {
		//nolint:errcheck // Marker call
		client.record(call{kind: "outcome"})
	})

	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{mesh.ModelLightLightnessServer}))
	runToIdle(t, s)

	kinds := client.kinds()
	if len(kinds) < 3 {
		t.Fatalf("calls = %v", kinds)
	}
	tail := kinds[len(kinds)-3:]
	if tail[0] != "outcome" || tail[1] != "proxy" || tail[2] != "heartbeat" {
		t.Errorf("tail of calls = %v, want outcome, proxy, heartbeat", tail)
	}
}

func TestSession_PublicationParams(t *testing.T) {
	s, client, _ := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{mesh.ModelGenericOnOffServer}))
	runToIdle(t, s)

	p := client.lastPub
	if p == nil {
		t.Fatal("no publication request issued")
	}
	if p.TTL != 3 || p.Period != 0 || p.RetransmitCount != 0 || p.RetransmitIntervalMS != 50 || p.FriendCredentials {
		t.Errorf("publication params = %+v", p)
	}
	if p.VendorID != mesh.SIGVendorID {
		t.Errorf("VendorID = %#04x, want 0xFFFF", p.VendorID)
	}
}

func TestSession_Heartbeat(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{mesh.ModelLightLightnessServer}))
	runToIdle(t, s)

	hb := client.heartbeat
	if hb == nil {
		t.Fatal("no heartbeat request issued")
	}
	want := mesh.HeartbeatRequest{
		Address:     nodeAddr,
		Destination: mesh.LightGroup1,
		Count:       0xFF,
		PeriodLog:   3,
		TTL:         5,
		Features:    0x0F,
	}
	if *hb != want {
		t.Errorf("heartbeat = %+v, want %+v", *hb, want)
	}

	kinds := client.kinds()
	if kinds[len(kinds)-2] != "proxy" || kinds[len(kinds)-1] != "heartbeat" {
		t.Errorf("tail of calls = %v, want proxy then heartbeat", kinds)
	}
	if !(*outcomes)[0].Heartbeat {
		t.Error("Outcome.Heartbeat = false")
	}
}

func TestSession_Gateway(t *testing.T) {
	s, client, _ := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeGateway), dcd([]mesh.ModelID{0x1000, 0x1001}))
	runToIdle(t, s)

	var pubs []call
	for _, c := range client.calls {
		if c.kind == "publish" {
			pubs = append(pubs, c)
		}
	}
	want := []call{
		{kind: "publish", model: 0x1000, group: mesh.LightGroup1},
		{kind: "publish", model: 0x1001, group: mesh.LightGroup1},
		{kind: "publish", model: 0x1000, group: mesh.LightGroup2},
		{kind: "publish", model: 0x1001, group: mesh.LightGroup2},
	}
	if len(pubs) != len(want) {
		t.Fatalf("publishes = %+v", pubs)
	}
	for i := range want {
		if pubs[i] != want[i] {
			t.Errorf("publish %d = %+v, want %+v", i, pubs[i], want[i])
		}
	}
	if got := client.count("subscribe"); got != 4 {
		t.Errorf("subscribes = %d, want 4", got)
	}
	if got := client.count("bind"); got != 2 {
		t.Errorf("binds = %d, want 2", got)
	}
}

func TestSession_GatewayOnSecondaryGroup(t *testing.T) {
	s, client, _ := newTestSequencer(t)
	tgt := target(mesh.DeviceTypeGateway)
	tgt.Group = mesh.LightGroup2
	startWith(t, s, tgt, dcd([]mesh.ModelID{0x1000}))
	runToIdle(t, s)

	if got := client.count("publish"); got != 1 {
		t.Errorf("publishes = %d, want 1 when target is the secondary group", got)
	}
}

func TestSession_MultipleElements(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd(
		[]mesh.ModelID{0x0000, 0x1000},
		[]mesh.ModelID{},
		[]mesh.ModelID{0x1000, 0x1300},
	))
	runToIdle(t, s)

	var got []call
	for _, c := range client.calls {
		if c.kind == "bind" || c.kind == "subscribe" {
			got = append(got, c)
		}
	}
	want := []call{
		{kind: "bind", element: 0, model: 0x1000},
		{kind: "subscribe", element: 0, model: 0x1000, group: mesh.LightGroup1},
		{kind: "bind", element: 2, model: 0x1000},
		{kind: "bind", element: 2, model: 0x1300},
		{kind: "subscribe", element: 2, model: 0x1000, group: mesh.LightGroup1},
		{kind: "subscribe", element: 2, model: 0x1300, group: mesh.LightGroup1},
	}
	if len(got) != len(want) {
		t.Fatalf("bind/subscribe calls = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	out := (*outcomes)[0]
	if out.Elements != 3 || out.Models != 3 || !out.Heartbeat {
		t.Errorf("outcome = %+v", out)
	}
}

func TestSession_RetryExhaustion(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))

	for i := 0; s.Active(); i++ {
		if i > 10 {
			t.Fatal("session never aborted")
		}
		s.OnBindResult(nodeAddr, 0x0002)
	}

	if got := client.count("bind"); got != 1+DefaultRetryBudget {
		t.Errorf("binds = %d, want %d", got, 1+DefaultRetryBudget)
	}
	if got := client.count("delete"); got != 1 {
		t.Errorf("deletes = %d, want 1", got)
	}
	if got := client.count("proxy"); got != 0 {
		t.Errorf("proxy requests = %d after abort", got)
	}

	out := (*outcomes)[0]
	if out.Success || !errors.Is(out.Err, ErrStepExhausted) {
		t.Errorf("outcome = %+v, want ErrStepExhausted", out)
	}
	if !errors.Is(out.Err, ErrStepFailed) {
		t.Errorf("outcome error %v does not carry the step failure", out.Err)
	}
	if out.Step != StateBinding || out.Retries != DefaultRetryBudget {
		t.Errorf("outcome step %s retries %d", out.Step, out.Retries)
	}
}

func TestSession_RetryBudgetResetsOnStepChange(t *testing.T) {
	s, _, _ := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000, 0x1001}))

	s.OnBindResult(nodeAddr, 0x0002)
	s.OnBindResult(nodeAddr, 0x0002)
	if got := s.Snapshot().RetriesLeft; got != DefaultRetryBudget-2 {
		t.Fatalf("RetriesLeft = %d, want %d", got, DefaultRetryBudget-2)
	}

	// Succeeding within the step keeps the reduced budget.
	s.OnBindResult(nodeAddr, mesh.StatusOK)
	if snap := s.Snapshot(); snap.Bound != 1 || snap.RetriesLeft != DefaultRetryBudget-2 {
		t.Fatalf("after first bind: %+v", snap)
	}

	s.OnBindResult(nodeAddr, mesh.StatusOK)
	snap := s.Snapshot()
	if snap.State != StatePublishing {
		t.Fatalf("State = %s, want publishing", snap.State)
	}
	if snap.RetriesLeft != DefaultRetryBudget {
		t.Errorf("RetriesLeft = %d, want %d after step change", snap.RetriesLeft, DefaultRetryBudget)
	}
}

func TestSession_AlreadyBoundAborts(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))

	s.OnBindResult(nodeAddr, mesh.StatusAlreadyExists)

	if s.Active() {
		t.Fatal("session still active")
	}
	if got := client.count("bind"); got != 1 {
		t.Errorf("binds = %d, want 1 (no retry)", got)
	}
	if got := client.count("delete"); got != 1 {
		t.Errorf("deletes = %d, want 1", got)
	}
	out := (*outcomes)[0]
	if !errors.Is(out.Err, ErrStepFailed) || errors.Is(out.Err, ErrStepExhausted) {
		t.Errorf("outcome error = %v, want ErrStepFailed only", out.Err)
	}
}

func TestSession_AcceptsAlreadyConfigured(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))

	s.OnBindResult(nodeAddr, mesh.StatusOK)
	s.OnPublicationResult(nodeAddr, mesh.StatusAlreadyExists)
	s.OnSubscriptionResult(nodeAddr, mesh.StatusSubscriptionExists)

	if s.Active() {
		t.Fatalf("State() = %s, want idle", s.State())
	}
	if !(*outcomes)[0].Success {
		t.Error("outcome not successful")
	}
	if client.count("delete") != 0 {
		t.Error("provisioning entry deleted on success")
	}
}

func TestSession_SubscriptionAlreadyExistsStatusForPublishRetries(t *testing.T) {
	s, client, _ := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))

	s.OnBindResult(nodeAddr, mesh.StatusOK)
	s.OnPublicationResult(nodeAddr, mesh.StatusSubscriptionExists)

	if got := client.count("publish"); got != 2 {
		t.Errorf("publishes = %d, want 2 (retry)", got)
	}
}

func TestStart_Busy(t *testing.T) {
	s, client, _ := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000, 0x1001}))
	s.OnBindResult(nodeAddr, mesh.StatusOK)

	before := s.Snapshot()
	callsBefore := len(client.calls)

	other := target(mesh.DeviceTypeNode)
	other.Address = otherAddr
	if err := s.Start(other); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("Start() error = %v, want ErrSessionBusy", err)
	}

	after := s.Snapshot()
	if after.Bound != before.Bound || after.State != before.State || after.Target.Address != nodeAddr {
		t.Errorf("snapshot changed: before %+v after %+v", before, after)
	}
	if len(client.calls) != callsBefore {
		t.Error("rejected Start issued a request")
	}
}

func TestStart_InvalidTarget(t *testing.T) {
	s, _, _ := newTestSequencer(t)

	tests := []struct {
		name string
		tgt  Target
	}{
		{"unassigned address", Target{Address: 0, Group: mesh.LightGroup1}},
		{"group as address", Target{Address: mesh.LightGroup1, Group: mesh.LightGroup1}},
		{"unicast as group", Target{Address: nodeAddr, Group: 0x0010}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Start(tt.tgt); !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("Start() error = %v, want ErrInvalidTarget", err)
			}
			if s.Active() {
				t.Error("sequencer active after rejected Start")
			}
		})
	}
}

func TestStart_CompositionRequestFails(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)
	client.failIssue["composition"] = 1

	if err := s.Start(target(mesh.DeviceTypeNode)); !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("Start() error = %v, want ErrRequestFailed", err)
	}
	if s.Active() {
		t.Error("sequencer active after failed Start")
	}
	if len(*outcomes) != 0 {
		t.Error("outcome reported for a session that never started")
	}
}

func TestSpuriousEventsIgnored(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)

	s.OnBindResult(nodeAddr, mesh.StatusOK)
	s.OnPublicationResult(nodeAddr, 0x0002)
	s.OnCompositionData(nodeAddr, []byte{1, 2, 3})
	s.OnCompositionEnd(nodeAddr)
	s.Timeout(s.Attempt())

	if len(client.calls) != 0 || len(*outcomes) != 0 || s.Active() {
		t.Fatalf("idle sequencer reacted: calls %v", client.kinds())
	}

	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))
	s.OnBindResult(otherAddr, mesh.StatusOK)
	s.OnSubscriptionResult(nodeAddr, mesh.StatusOK)

	if snap := s.Snapshot(); snap.State != StateBinding || snap.Bound != 0 {
		t.Errorf("snapshot = %+v, want untouched binding", snap)
	}
}

func TestCompositionOverflowRetriesFetch(t *testing.T) {
	client := newMockClient()
	params := DefaultParams()
	params.BufferSize = 16
	s := New(client, params)

	if err := s.Start(target(mesh.DeviceTypeNode)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.OnCompositionData(nodeAddr, make([]byte, 12))
	s.OnCompositionData(nodeAddr, make([]byte, 12))
	s.OnCompositionEnd(nodeAddr)

	if got := client.count("composition"); got != 2 {
		t.Fatalf("composition requests = %d, want 2", got)
	}
	if snap := s.Snapshot(); snap.State != StateAwaitingComposition || snap.BufferLen != 0 {
		t.Errorf("snapshot = %+v, want empty buffer awaiting composition", snap)
	}

	blob := dcd([]mesh.ModelID{0x1000})
	s.OnCompositionData(nodeAddr, blob)
	s.OnCompositionEnd(nodeAddr)
	if s.State() != StateBinding {
		t.Errorf("State() = %s, want binding", s.State())
	}
}

func TestCompositionMalformedExhausts(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)
	if err := s.Start(target(mesh.DeviceTypeNode)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; s.Active(); i++ {
		if i > 10 {
			t.Fatal("session never aborted")
		}
		s.OnCompositionData(nodeAddr, []byte{1, 2})
		s.OnCompositionEnd(nodeAddr)
	}

	if got := client.count("composition"); got != 1+DefaultRetryBudget {
		t.Errorf("composition requests = %d", got)
	}
	out := (*outcomes)[0]
	if !errors.Is(out.Err, composition.ErrShortHeader) || !errors.Is(out.Err, ErrStepExhausted) {
		t.Errorf("outcome error = %v", out.Err)
	}
}

func TestIssueFailureConsumesRetry(t *testing.T) {
	s, client, _ := newTestSequencer(t)
	client.failIssue["bind"] = 1

	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))

	if got := client.count("bind"); got != 2 {
		t.Fatalf("binds = %d, want 2", got)
	}
	if got := s.Snapshot().RetriesLeft; got != DefaultRetryBudget-1 {
		t.Errorf("RetriesLeft = %d, want %d", got, DefaultRetryBudget-1)
	}

	runToIdle(t, s)
}

func TestTimeout(t *testing.T) {
	s, client, _ := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))

	stale := s.Attempt() - 1
	s.Timeout(stale)
	if got := client.count("bind"); got != 1 {
		t.Fatalf("stale timeout reissued: binds = %d", got)
	}

	s.Timeout(s.Attempt())
	if got := client.count("bind"); got != 2 {
		t.Errorf("binds = %d after timeout, want 2", got)
	}
}

func TestReset(t *testing.T) {
	s, client, outcomes := newTestSequencer(t)
	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))

	s.Reset()

	if s.Active() {
		t.Error("Active() = true after Reset")
	}
	if client.count("delete") != 0 || len(*outcomes) != 0 {
		t.Error("Reset had side effects")
	}
	if err := s.Start(target(mesh.DeviceTypeNode)); err != nil {
		t.Errorf("Start() after Reset error = %v", err)
	}
}

func TestOutcomeHandlerMayRestart(t *testing.T) {
	client := newMockClient()
	s := New(client, DefaultParams())

	restarted := false
	s.SetOutcomeHandler(func(Outcome) {
		if !restarted {
			restarted = true
			if err := s.Start(target(mesh.DeviceTypeNode)); err != nil {
				t.Errorf("Start() from outcome handler error = %v", err)
			}
		}
	})

	startWith(t, s, target(mesh.DeviceTypeNode), dcd([]mesh.ModelID{0x1000}))
	runToIdle(t, s)

	// runToIdle stops when the second session is awaiting composition.
	if s.State() != StateAwaitingComposition {
		t.Errorf("State() = %s, want awaiting_composition", s.State())
	}
}

// TestSession_OrderProperty configures random model sets with random
// retryable failures and checks that every bind precedes every publish,
// every publish precedes every subscribe, and each list has N entries.
func TestSession_OrderProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, composition.DefaultMaxSIGModels).Draw(rt, "models")
		models := make([]mesh.ModelID, n)
		for i := range models {
			models[i] = mesh.ModelID(0x1000 + i)
		}

		client := newMockClient()
		s := New(client, DefaultParams())
		var outcome *Outcome
		s.SetOutcomeHandler(func(o Outcome) { outcome = &o })

		if err := s.Start(target(mesh.DeviceTypeNode)); err != nil {
			rt.Fatalf("Start() error = %v", err)
		}
		s.OnCompositionData(nodeAddr, dcd(models))
		s.OnCompositionEnd(nodeAddr)

		for i := 0; s.Active(); i++ {
			if i > 10*n+100 {
				rt.Fatalf("session did not finish")
			}
			status := mesh.StatusOK
			if s.Snapshot().RetriesLeft > 0 && rapid.Bool().Draw(rt, "fail") {
				status = 0x0002
			}
			respond(s, nodeAddr, status)
		}

		if outcome == nil || !outcome.Success {
			rt.Fatalf("outcome = %+v, want success", outcome)
		}

		phase := map[string]int{"bind": 1, "publish": 2, "subscribe": 3}
		last := 0
		seen := map[string]map[mesh.ModelID]bool{"bind": {}, "publish": {}, "subscribe": {}}
		for _, c := range client.calls {
			p, ok := phase[c.kind]
			if !ok {
				continue
			}
			if p < last {
				rt.Fatalf("%s issued after phase %d", c.kind, last)
			}
			last = p
			seen[c.kind][c.model] = true
		}
		for kind, set := range seen {
			if len(set) != n {
				rt.Fatalf("%s covered %d models, want %d", kind, len(set), n)
			}
		}
	})
}
