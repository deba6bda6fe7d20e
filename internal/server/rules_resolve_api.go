package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/harborlight-ed/harborlight/internal/routing"
	packtypes "github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
	rulepacksvc "github.com/harborlight-ed/harborlight/modules/rulepacks/services"
	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

// rulesResolveAPI explains how rule resolution behaved for one student
// placement: the scope chain searched, the pack that matched (if any), and
// the effective config after merging overrides onto the defaults.
type rulesResolveAPI struct {
	resolver *rulepacksvc.Resolver
	nowUTC   func() time.Time
}

type rulesResolveResponse struct {
	Resolved         bool                 `json:"resolved"`
	Searched         []packtypes.ScopeRef `json:"searched"`
	Matched          *packtypes.ScopeRef  `json:"matched,omitempty"`
	RulePackID       string               `json:"rule_pack_id,omitempty"`
	RulePackVersion  int                  `json:"rule_pack_version,omitempty"`
	RulePackName     string               `json:"rule_pack_name,omitempty"`
	AsOf             string               `json:"as_of"`
	EffectiveConfig  ruleconfig.Set       `json:"effective_config"`
	RequiredEvidence []string             `json:"required_evidence,omitempty"`
}

func (api rulesResolveAPI) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	q := r.URL.Query()
	planType := packtypes.PlanType(strings.ToUpper(strings.TrimSpace(q.Get("plan_type"))))
	if planType == "" {
		planType = packtypes.PlanALL
	}
	if !packtypes.ValidPlanType(planType) {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_plan_type", "invalid plan_type")
		return
	}

	asOf, ok := asOfFromRequest(w, r, api.nowUTC)
	if !ok {
		return
	}

	chain := rulepacksvc.BuildScopeChain(q.Get("school_id"), q.Get("district_id"), q.Get("state_code"))
	result, err := api.resolver.Resolve(r.Context(), tenant.ID, chain, planType, asOf)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "resolve_failed", "rule resolution failed")
		return
	}

	effective := ruleconfig.Defaults()
	resp := rulesResolveResponse{
		Resolved: result.Resolved,
		Searched: result.Searched,
		Matched:  result.Matched,
		AsOf:     asOf.Format(time.RFC3339),
	}
	if result.Resolved {
		merged, err := ruleconfig.Merge(effective, result.Pack.Overrides())
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "merge_failed", "rule config merge failed")
			return
		}
		effective = merged
		resp.RulePackID = result.Pack.ID
		resp.RulePackVersion = result.Pack.Version
		resp.RulePackName = result.Pack.Name
		resp.RequiredEvidence = result.Pack.RequiredEvidence()
	}
	resp.EffectiveConfig = effective

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
