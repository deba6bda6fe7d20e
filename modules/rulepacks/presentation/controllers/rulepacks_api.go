package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
	"github.com/harborlight-ed/harborlight/modules/rulepacks/services"
	"github.com/harborlight-ed/harborlight/pkg/httperr"
)

type TenantIDGetter func(ctx context.Context) (tenantID string, ok bool)

type RulePacksController struct {
	TenantID TenantIDGetter
	NowUTC   func() time.Time
	Facade   services.PacksFacade
}

type rulePackCreateAPIRequest struct {
	ScopeType     string               `json:"scope_type"`
	ScopeID       string               `json:"scope_id"`
	PlanType      string               `json:"plan_type"`
	Name          string               `json:"name"`
	EffectiveFrom string               `json:"effective_from"`
	EffectiveTo   string               `json:"effective_to"`
	Rules         []types.RulePackRule `json:"rules"`
}

type rulePackLifecycleAPIRequest struct {
	RulePackID string `json:"rule_pack_id"`
}

func (c RulePacksController) HandleRulePacksAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if packID := strings.TrimSpace(r.URL.Query().Get("rule_pack_id")); packID != "" {
			pack, err := c.Facade.GetPack(r.Context(), tenantID, packID)
			if err != nil {
				writeServiceError(w, r, err, "get failed")
				return
			}
			writeJSON(w, pack)
			return
		}

		scope := types.ScopeRef{
			Type: types.ScopeType(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("scope_type")))),
			ID:   strings.TrimSpace(r.URL.Query().Get("scope_id")),
		}
		if scope.Type != "" && !types.ValidScopeType(scope.Type) {
			writeError(w, r, http.StatusBadRequest, "invalid_scope_type", "invalid scope_type")
			return
		}
		packs, err := c.Facade.ListPacks(r.Context(), tenantID, scope)
		if err != nil {
			writeServiceError(w, r, err, "list failed")
			return
		}
		if packs == nil {
			packs = make([]types.RulePack, 0)
		}
		writeJSON(w, map[string]any{
			"tenant":     tenantID,
			"rule_packs": packs,
		})
		return

	case http.MethodPost:
		var req rulePackCreateAPIRequest
		if !decodeBody(w, r, &req) {
			return
		}

		pack := types.RulePack{
			ScopeType: types.ScopeType(req.ScopeType),
			ScopeID:   req.ScopeID,
			PlanType:  types.PlanType(req.PlanType),
			Name:      req.Name,
			Rules:     req.Rules,
		}
		if strings.TrimSpace(req.EffectiveFrom) != "" {
			from, err := time.Parse(time.RFC3339, req.EffectiveFrom)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid_effective_from", "invalid effective_from")
				return
			}
			pack.EffectiveFrom = from
		}
		if strings.TrimSpace(req.EffectiveTo) != "" {
			to, err := time.Parse(time.RFC3339, req.EffectiveTo)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid_effective_to", "invalid effective_to")
				return
			}
			pack.EffectiveTo = &to
		}

		created, err := c.Facade.CreatePack(r.Context(), tenantID, pack)
		if err != nil {
			writeServiceError(w, r, err, "create failed")
			return
		}
		writeJSON(w, created)
		return

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
}

func (c RulePacksController) HandleRulePackActivateAPI(w http.ResponseWriter, r *http.Request) {
	c.handleLifecycle(w, r, c.Facade.ActivatePack, "activate failed")
}

func (c RulePacksController) HandleRulePackDeactivateAPI(w http.ResponseWriter, r *http.Request) {
	c.handleLifecycle(w, r, c.Facade.DeactivatePack, "deactivate failed")
}

func (c RulePacksController) handleLifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (types.RulePack, error), failMsg string) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req rulePackLifecycleAPIRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pack, err := op(r.Context(), tenantID, req.RulePackID)
	if err != nil {
		writeServiceError(w, r, err, failMsg)
		return
	}
	writeJSON(w, pack)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return false
	}
	return true
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
