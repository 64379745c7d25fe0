package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-mesh/internal/audit"
	"github.com/nerrad567/gray-logic-mesh/internal/commissioning"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Journal page sizes.
const (
	defaultJournalLimit = 50
	maxJournalLimit     = 200
)

// commissionRequest is the body of POST /mesh/commission. Every field is
// optional; an empty body commissions one node into the primary group.
type commissionRequest struct {
	Mode       string `json:"mode"`
	Group      string `json:"group"`
	DeviceType string `json:"device_type"`
}

// handleListDevices returns pending family devices, or every live record
// with ?all=true.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	all := false
	if v := r.URL.Query().Get("all"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "all must be a boolean")
			return
		}
		all = parsed
	}

	devices := s.controller.Devices(all)
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleSession returns the controller snapshot.
func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handleCommission starts commissioning the next pending family device.
func (s *Server) handleCommission(w http.ResponseWriter, r *http.Request) {
	var req commissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	mode, err := commissioning.ParseMode(req.Mode)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	group, err := s.resolveGroup(req.Group)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	deviceType, err := mesh.ParseDeviceType(req.DeviceType)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	rec, err := s.controller.Trigger(mode, commissioning.Target{Group: group, DeviceType: deviceType})
	switch {
	case err == nil:
	case errors.Is(err, commissioning.ErrBusy):
		writeError(w, http.StatusConflict, ErrCodeBusy, "a device is already being commissioned")
		return
	case errors.Is(err, commissioning.ErrNoDevice):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no pending device to commission")
		return
	case errors.Is(err, mesh.ErrNotGroupAddress):
		writeBadRequest(w, err.Error())
		return
	default:
		s.logger.Error("commissioning trigger failed", "error", err, "mode", mode)
		writeError(w, http.StatusBadGateway, ErrCodeStack, err.Error())
		return
	}

	s.logger.Info("commissioning started",
		"uuid", rec.UUID,
		"mode", mode,
		"device_type", deviceType,
		"subject", claimsFromContext(r.Context()).Subject,
	)
	s.recordAudit(r, &audit.Entry{
		Action:     audit.ActionCommission,
		DeviceUUID: rec.UUID.String(),
		Details: map[string]any{
			"mode":        mode.String(),
			"group":       groupLabel(group),
			"device_type": deviceType.String(),
		},
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device":      rec,
		"mode":        mode,
		"group":       group,
		"device_type": deviceType,
	})
}

// handleReset aborts any run and clears the registry.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.controller.Reset()
	s.logger.Warn("commissioning reset", "subject", claimsFromContext(r.Context()).Subject)
	s.recordAudit(r, &audit.Entry{Action: audit.ActionReset})
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleJournal returns the most recent journal entries, newest first.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "journal not configured")
		return
	}

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxJournalLimit {
			writeBadRequest(w, "limit must be between 1 and "+strconv.Itoa(maxJournalLimit))
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading journal", "error", err)
		writeInternalError(w, "failed to read journal")
		return
	}
	if entries == nil {
		entries = []commissioning.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// resolveGroup maps the request's group field to an address. "" and
// "primary" select the configured primary group (zero), "secondary" the
// configured secondary group, and anything else must parse as a group.
func (s *Server) resolveGroup(v string) (mesh.Address, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "primary":
		return 0, nil
	case "secondary":
		return s.secondary, nil
	default:
		return mesh.ParseGroupAddress(v)
	}
}

// groupLabel names a resolved group for the audit trail. Zero selects the
// controller's primary group.
func groupLabel(g mesh.Address) string {
	if g == 0 {
		return "primary"
	}
	return g.String()
}

// recordAudit stores an operator action with the caller's identity. Audit
// failures are logged and never fail the request.
func (s *Server) recordAudit(r *http.Request, e *audit.Entry) {
	claims := claimsFromContext(r.Context())
	e.Subject = claims.Subject
	e.Role = string(claims.Role)

	if s.audit == nil {
		return
	}
	if err := s.audit.Record(r.Context(), e); err != nil {
		s.logger.Warn("recording audit entry", "action", e.Action, "error", err)
	}
}

// handleAudit lists operator actions, newest first. ?action= and ?subject=
// filter; ?limit= and ?offset= page.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  audit.Action(q.Get("action")),
		Subject: q.Get("subject"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("reading audit log", "error", err)
		writeInternalError(w, "failed to read audit log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
