package types

import (
	"encoding/json"
	"time"

	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

type ScopeType string

const (
	ScopeState    ScopeType = "STATE"
	ScopeDistrict ScopeType = "DISTRICT"
	ScopeSchool   ScopeType = "SCHOOL"
)

type PlanType string

const (
	PlanIEP PlanType = "IEP"
	Plan504 PlanType = "PLAN504"
	PlanBIP PlanType = "BIP"
	PlanALL PlanType = "ALL"
)

// ScopeRef identifies one organizational level a rule pack can bind to:
// a state code, a district id, or a school id.
type ScopeRef struct {
	Type ScopeType `json:"scope_type"`
	ID   string    `json:"scope_id"`
}

type EvidenceRequirement struct {
	EvidenceTypeKey string `json:"evidence_type_key"`
	IsRequired      bool   `json:"is_required"`
}

type RulePackRule struct {
	RuleKey              ruleconfig.Key        `json:"rule_key"`
	IsEnabled            bool                  `json:"is_enabled"`
	Config               json.RawMessage       `json:"config,omitempty"`
	SortOrder            int                   `json:"sort_order"`
	EvidenceRequirements []EvidenceRequirement `json:"evidence_requirements,omitempty"`
}

// RulePack is a versioned, scope-bound bundle of compliance rules. At most
// one pack is active per (scope_type, scope_id, plan_type); the store
// deactivates siblings inside the activation transaction.
type RulePack struct {
	ID            string         `json:"rule_pack_id"`
	ScopeType     ScopeType      `json:"scope_type"`
	ScopeID       string         `json:"scope_id"`
	PlanType      PlanType       `json:"plan_type"`
	Name          string         `json:"name"`
	Version       int            `json:"version"`
	IsActive      bool           `json:"is_active"`
	EffectiveFrom time.Time      `json:"effective_from"`
	EffectiveTo   *time.Time     `json:"effective_to,omitempty"`
	Rules         []RulePackRule `json:"rules,omitempty"`
}

// EffectiveAt reports whether the pack's effective window covers now.
func (p RulePack) EffectiveAt(now time.Time) bool {
	if p.EffectiveFrom.After(now) {
		return false
	}
	return p.EffectiveTo == nil || !p.EffectiveTo.Before(now)
}

// Scope returns the pack's own scope reference.
func (p RulePack) Scope() ScopeRef {
	return ScopeRef{Type: p.ScopeType, ID: p.ScopeID}
}

// Overrides converts the pack's rule rows into merge input.
func (p RulePack) Overrides() []ruleconfig.Override {
	out := make([]ruleconfig.Override, 0, len(p.Rules))
	for _, r := range p.Rules {
		out = append(out, ruleconfig.Override{Key: r.RuleKey, Raw: r.Config, IsEnabled: r.IsEnabled})
	}
	return out
}

// RequiredEvidence collects evidence type keys required by enabled rules.
func (p RulePack) RequiredEvidence() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range p.Rules {
		if !r.IsEnabled {
			continue
		}
		for _, req := range r.EvidenceRequirements {
			if !req.IsRequired || seen[req.EvidenceTypeKey] {
				continue
			}
			seen[req.EvidenceTypeKey] = true
			out = append(out, req.EvidenceTypeKey)
		}
	}
	return out
}

// PrecedenceResult reports how resolution walked the scope chain. Searched
// always lists every candidate scope in precedence order, even past the
// match, so callers can show the full search for debugging.
type PrecedenceResult struct {
	Resolved bool       `json:"resolved"`
	Pack     *RulePack  `json:"rule_pack,omitempty"`
	Searched []ScopeRef `json:"searched"`
	Matched  *ScopeRef  `json:"matched,omitempty"`
}

func ValidScopeType(s ScopeType) bool {
	switch s {
	case ScopeState, ScopeDistrict, ScopeSchool:
		return true
	}
	return false
}

func ValidPlanType(p PlanType) bool {
	switch p {
	case PlanIEP, Plan504, PlanBIP, PlanALL:
		return true
	}
	return false
}
