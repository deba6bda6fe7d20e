package services

import (
	"context"
	"strings"
	"time"

	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/ports"
	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
)

// PlanTypeFallback controls how an ALL-plan-type pack competes with a
// specific-plan-type pack across scope levels.
type PlanTypeFallback string

const (
	// FallbackSameScopeALL checks ALL at the current scope before moving
	// to the next scope level. Default.
	FallbackSameScopeALL PlanTypeFallback = "same_scope_all"
	// FallbackNextScopeFirst exhausts every scope level for the specific
	// plan type before considering any ALL pack.
	FallbackNextScopeFirst PlanTypeFallback = "next_scope_first"
)

// BuildScopeChain builds the precedence candidate list SCHOOL -> DISTRICT ->
// STATE, truncated at the first missing link: without a school the chain is
// empty, without a district it stops after the school entry.
func BuildScopeChain(schoolID, districtID, stateCode string) []types.ScopeRef {
	schoolID = strings.TrimSpace(schoolID)
	districtID = strings.TrimSpace(districtID)
	stateCode = strings.TrimSpace(stateCode)

	if schoolID == "" {
		return nil
	}
	chain := []types.ScopeRef{{Type: types.ScopeSchool, ID: schoolID}}
	if districtID == "" {
		return chain
	}
	chain = append(chain, types.ScopeRef{Type: types.ScopeDistrict, ID: districtID})
	if stateCode == "" {
		return chain
	}
	return append(chain, types.ScopeRef{Type: types.ScopeState, ID: stateCode})
}

type Resolver struct {
	store    ports.RulePackStore
	fallback PlanTypeFallback
}

type ResolverOption func(*Resolver)

func WithPlanTypeFallback(f PlanTypeFallback) ResolverOption {
	return func(r *Resolver) { r.fallback = f }
}

func NewResolver(store ports.RulePackStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, fallback: FallbackSameScopeALL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the scope chain in order and returns the first active,
// currently effective pack for the requested plan type. No merging across
// levels: the first hit wins. Resolved=false is a valid outcome; callers
// fall back to the built-in defaults.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, chain []types.ScopeRef, planType types.PlanType, asOf time.Time) (types.PrecedenceResult, error) {
	result := types.PrecedenceResult{Searched: append([]types.ScopeRef(nil), chain...)}

	type attempt struct {
		scope types.ScopeRef
		plan  types.PlanType
	}
	var attempts []attempt
	switch {
	case planType == types.PlanALL:
		for _, scope := range chain {
			attempts = append(attempts, attempt{scope, types.PlanALL})
		}
	case r.fallback == FallbackNextScopeFirst:
		for _, scope := range chain {
			attempts = append(attempts, attempt{scope, planType})
		}
		for _, scope := range chain {
			attempts = append(attempts, attempt{scope, types.PlanALL})
		}
	default:
		for _, scope := range chain {
			attempts = append(attempts, attempt{scope, planType})
			attempts = append(attempts, attempt{scope, types.PlanALL})
		}
	}

	for _, a := range attempts {
		pack, ok, err := r.store.FindActivePack(ctx, tenantID, a.scope, a.plan, asOf)
		if err != nil {
			return types.PrecedenceResult{}, err
		}
		if !ok {
			continue
		}
		matched := a.scope
		result.Resolved = true
		result.Pack = &pack
		result.Matched = &matched
		return result, nil
	}
	return result, nil
}
