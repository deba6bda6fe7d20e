package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
	"github.com/harborlight-ed/harborlight/modules/meetings/services"
	"github.com/harborlight-ed/harborlight/pkg/httperr"
)

type TenantIDGetter func(ctx context.Context) (tenantID string, ok bool)

type MeetingsController struct {
	TenantID TenantIDGetter
	// ActorID returns the authenticated actor asserted by the gateway.
	// When set and non-empty it wins over actor_user_id in the body.
	ActorID  func(ctx context.Context) string
	NowUTC   func() time.Time
	Workflow *services.Workflow
}

type meetingTransitionAPIRequest struct {
	MeetingID    string `json:"meeting_id"`
	TargetStatus string `json:"target_status"`
	ActorUserID  string `json:"actor_user_id"`
}

func (c MeetingsController) HandleMeetingsAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	meetingID := strings.TrimSpace(r.URL.Query().Get("meeting_id"))
	if meetingID == "" {
		writeError(w, r, http.StatusBadRequest, "missing_meeting_id", "meeting_id is required")
		return
	}

	m, err := c.Workflow.GetMeeting(r.Context(), tenantID, meetingID)
	if err != nil {
		writeServiceError(w, r, err, "get failed")
		return
	}
	writeJSON(w, m)
}

func (c MeetingsController) HandleMeetingTransitionAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	var req meetingTransitionAPIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.MeetingID = strings.TrimSpace(req.MeetingID)
	if req.MeetingID == "" {
		writeError(w, r, http.StatusBadRequest, "missing_meeting_id", "meeting_id is required")
		return
	}
	target := types.MeetingStatus(strings.ToUpper(strings.TrimSpace(req.TargetStatus)))

	actor := strings.TrimSpace(req.ActorUserID)
	if c.ActorID != nil {
		if v := c.ActorID(r.Context()); v != "" {
			actor = v
		}
	}

	m, err := c.Workflow.Transition(r.Context(), tenantID, req.MeetingID, target, actor)
	if err != nil {
		var gateErr *types.ComplianceGateFailedError
		if errors.As(err, &gateErr) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":             types.CodeComplianceGateFailed,
				"message":          "close blocked by compliance gates",
				"blocking_reasons": gateErr.Reasons,
			})
			return
		}
		var transErr *types.InvalidTransitionError
		if errors.As(err, &transErr) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":    types.CodeInvalidTransition,
				"message": "transition not allowed",
				"from":    transErr.From,
				"to":      transErr.To,
			})
			return
		}
		writeServiceError(w, r, err, "transition failed")
		return
	}
	writeJSON(w, m)
}

// HandleClosePreviewAPI evaluates the close gates without changing the
// meeting, so the UI can show what still blocks the close.
func (c MeetingsController) HandleClosePreviewAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	meetingID := strings.TrimSpace(r.URL.Query().Get("meeting_id"))
	if meetingID == "" {
		writeError(w, r, http.StatusBadRequest, "missing_meeting_id", "meeting_id is required")
		return
	}

	m, err := c.Workflow.GetMeeting(r.Context(), tenantID, meetingID)
	if err != nil {
		writeServiceError(w, r, err, "get failed")
		return
	}

	gates, precedence, err := c.Workflow.CloseCheck(r.Context(), tenantID, m)
	if err != nil {
		writeServiceError(w, r, err, "preview failed")
		return
	}
	writeJSON(w, map[string]any{
		"meeting_id": meetingID,
		"status":     m.Status,
		"gates":      gates,
		"resolution": precedence,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case httperr.IsBadRequest(err):
		status = http.StatusBadRequest
		code = "invalid_request"
	case httperr.IsNotFound(err):
		status = http.StatusNotFound
		code = "not_found"
	case httperr.IsConflict(err):
		status = http.StatusConflict
		code = "conflict"
	}
	writeError(w, r, status, code, message+": "+err.Error())
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    errorEnvelopeMeta `json:"meta"`
}

type errorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:    code,
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta: errorEnvelopeMeta{
			Path:   r.URL.Path,
			Method: r.Method,
		},
	})
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
