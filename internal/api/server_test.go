package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-mesh/internal/audit"
	"github.com/nerrad567/gray-logic-mesh/internal/auth"
	"github.com/nerrad567/gray-logic-mesh/internal/commissioning"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/registry"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// testSecondaryGroup is the group behind {"group": "secondary"}.
const testSecondaryGroup mesh.Address = 0xC002

// ─── Mocks ─────────────────────────────────────────────────────────

type triggerCall struct {
	mode   commissioning.Mode
	target commissioning.Target
}

// mockController is a test implementation of Controller.
type mockController struct {
	mu         sync.Mutex
	triggerErr error
	triggers   []triggerCall
	resets     int
	devicesAll []bool
	devices    []registry.Record
	snapshot   commissioning.Snapshot
}

func (m *mockController) Trigger(mode commissioning.Mode, target commissioning.Target) (registry.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, triggerCall{mode: mode, target: target})
	if m.triggerErr != nil {
		return registry.Record{}, m.triggerErr
	}
	if len(m.devices) == 0 {
		return registry.Record{}, nil
	}
	return m.devices[0], nil
}

func (m *mockController) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *mockController) Devices(all bool) []registry.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devicesAll = append(m.devicesAll, all)
	return m.devices
}

func (m *mockController) Snapshot() commissioning.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *mockController) lastTrigger(t *testing.T) triggerCall {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.triggers) == 0 {
		t.Fatal("Trigger was not called")
	}
	return m.triggers[len(m.triggers)-1]
}

// mockJournal is a test implementation of Journal.
type mockJournal struct {
	mu        sync.Mutex
	entries   []commissioning.JournalEntry
	err       error
	lastLimit int
}

func (m *mockJournal) Recent(_ context.Context, limit int) ([]commissioning.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.entries) {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

// mockAudit is a test implementation of AuditLog.
type mockAudit struct {
	mu         sync.Mutex
	entries    []audit.Entry
	err        error
	lastFilter audit.Filter
}

func (m *mockAudit) Record(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return &audit.ListResult{Entries: m.entries, Total: len(m.entries), Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (m *mockAudit) recorded() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.entries...)
}

type mockChecker struct{ err error }

func (m mockChecker) HealthCheck(context.Context) error { return m.err }

// ─── Helpers ───────────────────────────────────────────────────────

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testDevice() registry.Record {
	return registry.Record{
		UUID:         uuid.MustParse("000002ff-0000-4000-8000-000000000001"),
		LinkAddress:  mesh.LinkAddress{0xAA, 0xBB, 0xCC, 0x00, 0x00, 0x01},
		Family:       true,
		DiscoveredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// testServer creates a Server around a mock controller and journal.
func testServer(t *testing.T) (*Server, *mockController, *mockJournal) {
	t.Helper()

	ctrl := &mockController{devices: []registry.Record{testDevice()}}
	journal := &mockJournal{}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		},
		Logger:         testLogger(),
		Controller:     ctrl,
		Journal:        journal,
		Audit:          &mockAudit{},
		SecondaryGroup: testSecondaryGroup,
		Checks:         map[string]HealthChecker{"database": mockChecker{}},
		Version:        "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, ctrl, journal
}

func tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.GenerateAccessToken("installer-1", role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return token
}

// do sends a request through the router. An empty token sends no
// Authorization header.
func do(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Controller: &mockController{}, Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}}},
		{"no controller", Deps{Logger: testLogger(), Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}}},
		{"no secret", Deps{Logger: testLogger(), Controller: &mockController{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	components, _ := resp["components"].(map[string]any) //nolint:errcheck // nil checked below
	if components["database"] != "ok" {
		t.Errorf("components = %v, want database ok", resp["components"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.checks["mqtt"] = mockChecker{err: errors.New("not connected")}

	w := do(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode(t, w)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	components, _ := resp["components"].(map[string]any) //nolint:errcheck // nil checked below
	if components["mqtt"] != "not connected" {
		t.Errorf("mqtt component = %v", components["mqtt"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.cfg.CORS.AllowedOrigins = []string{"http://installer.local"}

	tests := []struct {
		origin   string
		wantACAO string
	}{
		{"http://installer.local", "http://installer.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/mesh/commission", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantACAO {
				t.Errorf("ACAO = %q, want %q", got, tt.wantACAO)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRecovery(t *testing.T) {
	srv, _, _ := testServer(t)
	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestAuth_Unauthorized(t *testing.T) {
	srv, _, _ := testServer(t)

	otherSecret, err := auth.GenerateAccessToken("intruder", auth.RoleAdmin, "another-secret-that-is-long-enough!!", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", otherSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, "/api/v1/mesh/session", tt.token, "")
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if code := decode(t, w)["code"]; code != ErrCodeUnauthorized {
				t.Errorf("code = %v, want %s", code, ErrCodeUnauthorized)
			}
		})
	}
}

func TestAuth_Permissions(t *testing.T) {
	tests := []struct {
		role   auth.Role
		method string
		path   string
		want   int
	}{
		{auth.RoleViewer, http.MethodGet, "/api/v1/mesh/devices", http.StatusOK},
		{auth.RoleViewer, http.MethodGet, "/api/v1/mesh/journal", http.StatusOK},
		{auth.RoleViewer, http.MethodPost, "/api/v1/mesh/commission", http.StatusForbidden},
		{auth.RoleViewer, http.MethodPost, "/api/v1/mesh/reset", http.StatusForbidden},
		{auth.RoleInstaller, http.MethodPost, "/api/v1/mesh/commission", http.StatusAccepted},
		{auth.RoleInstaller, http.MethodPost, "/api/v1/mesh/reset", http.StatusForbidden},
		{auth.RoleAdmin, http.MethodPost, "/api/v1/mesh/reset", http.StatusOK},
		{auth.RoleInstaller, http.MethodGet, "/api/v1/audit", http.StatusForbidden},
		{auth.RoleAdmin, http.MethodGet, "/api/v1/audit", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s %s", tt.role, tt.method, tt.path), func(t *testing.T) {
			srv, _, _ := testServer(t)
			w := do(t, srv, tt.method, tt.path, tokenFor(t, tt.role), "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// ─── Mesh Handler Tests ────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	srv, ctrl, _ := testServer(t)
	token := tokenFor(t, auth.RoleViewer)

	w := do(t, srv, http.MethodGet, "/api/v1/mesh/devices", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode(t, w)
	if resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}

	do(t, srv, http.MethodGet, "/api/v1/mesh/devices?all=true", token, "")
	ctrl.mu.Lock()
	got := append([]bool(nil), ctrl.devicesAll...)
	ctrl.mu.Unlock()
	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("Devices(all) calls = %v, want [false true]", got)
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/mesh/devices?all=maybe", token, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad all status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSession(t *testing.T) {
	srv, ctrl, _ := testServer(t)
	ctrl.snapshot = commissioning.Snapshot{
		Mode:      commissioning.ModeDrainAll,
		Phase:     commissioning.PhaseConfiguring,
		Indicator: commissioning.IndicatorConfiguring,
		Registry:  registry.Stats{Live: 2, Family: 1, Free: 30, Capacity: 32},
	}

	w := do(t, srv, http.MethodGet, "/api/v1/mesh/session", tokenFor(t, auth.RoleViewer), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode(t, w)
	if resp["mode"] != "drain_all" || resp["phase"] != "configuring" || resp["indicator"] != "configuring" {
		t.Errorf("snapshot = %v", resp)
	}
}

func TestCommission(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantMode   commissioning.Mode
		wantGroup  mesh.Address
		wantDevice mesh.DeviceType
	}{
		{"empty body", "", commissioning.ModeOnce, 0, mesh.DeviceTypeNode},
		{"empty object", "{}", commissioning.ModeOnce, 0, mesh.DeviceTypeNode},
		{"primary", `{"group":"primary"}`, commissioning.ModeOnce, 0, mesh.DeviceTypeNode},
		{"drain secondary gateway", `{"mode":"drain_all","group":"secondary","device_type":"gateway"}`,
			commissioning.ModeDrainAll, testSecondaryGroup, mesh.DeviceTypeGateway},
		{"explicit group", `{"group":"0xC005"}`, commissioning.ModeOnce, 0xC005, mesh.DeviceTypeNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ctrl, _ := testServer(t)

			w := do(t, srv, http.MethodPost, "/api/v1/mesh/commission", tokenFor(t, auth.RoleInstaller), tt.body)
			if w.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusAccepted, w.Body.String())
			}

			call := ctrl.lastTrigger(t)
			if call.mode != tt.wantMode {
				t.Errorf("mode = %v, want %v", call.mode, tt.wantMode)
			}
			if call.target.Group != tt.wantGroup {
				t.Errorf("group = %v, want %v", call.target.Group, tt.wantGroup)
			}
			if call.target.DeviceType != tt.wantDevice {
				t.Errorf("device type = %v, want %v", call.target.DeviceType, tt.wantDevice)
			}

			device, _ := decode(t, w)["device"].(map[string]any) //nolint:errcheck // nil checked below
			if device["uuid"] != testDevice().UUID.String() {
				t.Errorf("device = %v", device)
			}
		})
	}
}

func TestCommission_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", "{"},
		{"unknown mode", `{"mode":"twice"}`},
		{"unicast group", `{"group":"0x0001"}`},
		{"fixed group", `{"group":"0xFFFF"}`},
		{"unparseable group", `{"group":"kitchen"}`},
		{"unknown device type", `{"device_type":"bulb"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ctrl, _ := testServer(t)

			w := do(t, srv, http.MethodPost, "/api/v1/mesh/commission", tokenFor(t, auth.RoleInstaller), tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(ctrl.triggers) != 0 {
				t.Error("Trigger should not be called for a bad request")
			}
		})
	}
}

func TestCommission_TriggerErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"busy", commissioning.ErrBusy, http.StatusConflict, ErrCodeBusy},
		{"no device", commissioning.ErrNoDevice, http.StatusNotFound, ErrCodeNotFound},
		{"stack failure", errors.New("btmesh: publish failed"), http.StatusBadGateway, ErrCodeStack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ctrl, _ := testServer(t)
			ctrl.triggerErr = tt.err

			w := do(t, srv, http.MethodPost, "/api/v1/mesh/commission", tokenFor(t, auth.RoleInstaller), "")
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if code := decode(t, w)["code"]; code != tt.wantErr {
				t.Errorf("code = %v, want %s", code, tt.wantErr)
			}
		})
	}
}

func TestReset(t *testing.T) {
	srv, ctrl, _ := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/mesh/reset", tokenFor(t, auth.RoleAdmin), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ctrl.resets != 1 {
		t.Errorf("resets = %d, want 1", ctrl.resets)
	}
}

func TestCommission_RecordsAudit(t *testing.T) {
	srv, _, _ := testServer(t)
	log := srv.audit.(*mockAudit) //nolint:forcetypeassert // set by testServer

	body := `{"mode":"drain_all","group":"secondary","device_type":"gateway"}`
	w := do(t, srv, http.MethodPost, "/api/v1/mesh/commission", tokenFor(t, auth.RoleInstaller), body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	entries := log.recorded()
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != audit.ActionCommission || e.Subject != "installer-1" || e.Role != string(auth.RoleInstaller) {
		t.Errorf("entry = %+v", e)
	}
	if e.DeviceUUID != testDevice().UUID.String() {
		t.Errorf("DeviceUUID = %q", e.DeviceUUID)
	}
	if e.Details["group"] != testSecondaryGroup.String() || e.Details["device_type"] != "gateway" {
		t.Errorf("Details = %v", e.Details)
	}
}

func TestCommission_AuditFailureIgnored(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.audit.(*mockAudit).err = errors.New("disk full") //nolint:forcetypeassert // set by testServer

	w := do(t, srv, http.MethodPost, "/api/v1/mesh/commission", tokenFor(t, auth.RoleInstaller), "")
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestReset_RecordsAudit(t *testing.T) {
	srv, _, _ := testServer(t)

	do(t, srv, http.MethodPost, "/api/v1/mesh/reset", tokenFor(t, auth.RoleAdmin), "")

	entries := srv.audit.(*mockAudit).recorded() //nolint:forcetypeassert // set by testServer
	if len(entries) != 1 || entries[0].Action != audit.ActionReset || entries[0].Role != string(auth.RoleAdmin) {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestAudit(t *testing.T) {
	srv, _, _ := testServer(t)
	log := srv.audit.(*mockAudit) //nolint:forcetypeassert // set by testServer
	log.entries = []audit.Entry{{ID: "aud-1", Action: audit.ActionReset, Subject: "carol", Role: "admin"}}
	token := tokenFor(t, auth.RoleAdmin)

	w := do(t, srv, http.MethodGet, "/api/v1/audit?action=reset&subject=carol&limit=10&offset=5", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	want := audit.Filter{Action: audit.ActionReset, Subject: "carol", Limit: 10, Offset: 5}
	if log.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", log.lastFilter, want)
	}
	if decode(t, w)["total"] != float64(1) {
		t.Errorf("total = %v, want 1", decode(t, w)["total"])
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/audit?limit=-1", token, ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	log.err = errors.New("database locked")
	if w := do(t, srv, http.MethodGet, "/api/v1/audit", token, ""); w.Code != http.StatusInternalServerError {
		t.Errorf("error status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	srv.audit = nil
	if w := do(t, srv, http.MethodGet, "/api/v1/audit", token, ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestJournal(t *testing.T) {
	srv, _, journal := testServer(t)
	journal.entries = []commissioning.JournalEntry{
		{ID: 2, Outcome: commissioning.OutcomeSuccess, Address: 0x0002},
		{ID: 1, Outcome: commissioning.OutcomeAborted, Reason: "timeout"},
	}
	token := tokenFor(t, auth.RoleViewer)

	w := do(t, srv, http.MethodGet, "/api/v1/mesh/journal", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if journal.lastLimit != defaultJournalLimit {
		t.Errorf("limit = %d, want %d", journal.lastLimit, defaultJournalLimit)
	}
	if decode(t, w)["count"] != float64(2) {
		t.Errorf("count = %v, want 2", decode(t, w)["count"])
	}

	w = do(t, srv, http.MethodGet, "/api/v1/mesh/journal?limit=1", token, "")
	if decode(t, w)["count"] != float64(1) || journal.lastLimit != 1 {
		t.Errorf("limit=1 returned %s", w.Body.String())
	}

	for _, bad := range []string{"0", "-3", "abc", "201"} {
		if w := do(t, srv, http.MethodGet, "/api/v1/mesh/journal?limit="+bad, token, ""); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want %d", bad, w.Code, http.StatusBadRequest)
		}
	}
}

func TestJournal_Errors(t *testing.T) {
	srv, _, journal := testServer(t)
	token := tokenFor(t, auth.RoleViewer)

	journal.err = errors.New("disk I/O error")
	if w := do(t, srv, http.MethodGet, "/api/v1/mesh/journal", token, ""); w.Code != http.StatusInternalServerError {
		t.Errorf("failing journal status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	srv.journal = nil
	if w := do(t, srv, http.MethodGet, "/api/v1/mesh/journal", token, ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("nil journal status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func newTestClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	return &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return WSMessage{}
	}
}

func TestHub_PublishCommissioningEvent(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	subscribed := newTestClient(hub, ChannelCommissioning)
	other := newTestClient(hub)
	hub.Register(subscribed)
	hub.Register(other)

	var pub commissioning.EventPublisher = hub
	pub.PublishCommissioningEvent(commissioning.Event{
		Type:      commissioning.EventSucceeded,
		Indicator: commissioning.IndicatorSuccess,
		Address:   0x0002,
	})

	msg := receive(t, subscribed)
	if msg.Type != WSTypeEvent || msg.Channel != ChannelCommissioning {
		t.Errorf("message = %+v, want event on %s", msg, ChannelCommissioning)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // nil checked below
	if payload["type"] != commissioning.EventSucceeded || payload["address"] != "0x0002" {
		t.Errorf("payload = %v", payload)
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newTestClient(hub)

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// Sending to a closed client must not panic.
	client.trySend([]byte("late"))
}

func TestWSClient_Subscription(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newTestClient(hub, ChannelCommissioning)

	client.handleMessage([]byte(`{"type":"unsubscribe","id":"1","payload":{"channels":["mesh.commissioning"]}}`))
	if msg := receive(t, client); msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Errorf("unsubscribe reply = %+v", msg)
	}
	if client.isSubscribed(ChannelCommissioning) {
		t.Error("client still subscribed after unsubscribe")
	}

	client.handleMessage([]byte(`{"type":"subscribe","id":"2","payload":{"channels":["device.state_changed"]}}`))
	if msg := receive(t, client); msg.Type != WSTypeError {
		t.Errorf("unknown channel reply = %+v, want error", msg)
	}

	client.handleMessage([]byte(`{"type":"ping","id":"3"}`))
	if msg := receive(t, client); msg.Type != WSTypePong || msg.ID != "3" {
		t.Errorf("ping reply = %+v", msg)
	}

	client.handleMessage([]byte(`not json`))
	if msg := receive(t, client); msg.Type != WSTypeError {
		t.Errorf("garbage reply = %+v, want error", msg)
	}
}

// ─── WebSocket Handshake Tests ─────────────────────────────────────

func TestWebSocket_RequiresToken(t *testing.T) {
	srv, _, _ := testServer(t)

	for _, path := range []string{"/api/v1/ws", "/api/v1/ws?token=garbage"} {
		if w := do(t, srv, http.MethodGet, path, "", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestWebSocket_ReceivesEvents(t *testing.T) {
	srv, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?token=" + tokenFor(t, auth.RoleViewer)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	resp.Body.Close() //nolint:errcheck // Handshake body is empty

	deadline := time.Now().Add(time.Second)
	for srv.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.Hub().PublishCommissioningEvent(commissioning.Event{Type: commissioning.EventDiscovered})

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Channel != ChannelCommissioning {
		t.Errorf("channel = %q, want %q", msg.Channel, ChannelCommissioning)
	}
}

func TestStatusWriter_Hijack(t *testing.T) {
	var _ http.Hijacker = (*statusWriter)(nil)

	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	if w.Unwrap() != rec {
		t.Error("Unwrap() should return the wrapped writer")
	}
	if _, _, err := w.Hijack(); err == nil {
		t.Error("Hijack() over a non-hijacking writer should fail")
	}
	if w.status != http.StatusOK {
		t.Errorf("status = %d after failed Hijack, want %d", w.status, http.StatusOK)
	}
}
