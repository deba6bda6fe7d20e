package services

import (
	"context"
	"strings"

	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/ports"
	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
	"github.com/harborlight-ed/harborlight/pkg/httperr"
	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

// PacksFacade fronts rule pack lifecycle: packs are created inactive at the
// next version for their scope and plan type, activated explicitly, and
// superseded by deactivation when a newer version activates.
type PacksFacade struct {
	store ports.RulePackStore
}

func NewPacksFacade(store ports.RulePackStore) PacksFacade {
	return PacksFacade{store: store}
}

func (f PacksFacade) CreatePack(ctx context.Context, tenantID string, pack types.RulePack) (types.RulePack, error) {
	pack.ScopeType = types.ScopeType(strings.ToUpper(strings.TrimSpace(string(pack.ScopeType))))
	pack.ScopeID = strings.TrimSpace(pack.ScopeID)
	pack.PlanType = types.PlanType(strings.ToUpper(strings.TrimSpace(string(pack.PlanType))))
	pack.Name = strings.TrimSpace(pack.Name)

	if !types.ValidScopeType(pack.ScopeType) {
		return types.RulePack{}, httperr.NewBadRequest("invalid scope_type")
	}
	if pack.ScopeID == "" {
		return types.RulePack{}, httperr.NewBadRequest("scope_id is required")
	}
	if !types.ValidPlanType(pack.PlanType) {
		return types.RulePack{}, httperr.NewBadRequest("invalid plan_type")
	}
	if pack.Name == "" {
		return types.RulePack{}, httperr.NewBadRequest("name is required")
	}
	if pack.EffectiveFrom.IsZero() {
		return types.RulePack{}, httperr.NewBadRequest("effective_from is required")
	}
	if pack.EffectiveTo != nil && pack.EffectiveTo.Before(pack.EffectiveFrom) {
		return types.RulePack{}, httperr.NewBadRequest("effective_to before effective_from")
	}
	known := map[ruleconfig.Key]bool{}
	for _, k := range ruleconfig.KnownKeys() {
		known[k] = true
	}
	for _, r := range pack.Rules {
		if !known[r.RuleKey] {
			return types.RulePack{}, httperr.NewBadRequest("unknown rule_key " + string(r.RuleKey))
		}
	}

	// Version and active flag are assigned by the store.
	pack.ID = ""
	pack.Version = 0
	pack.IsActive = false
	return f.store.CreatePack(ctx, tenantID, pack)
}

func (f PacksFacade) ActivatePack(ctx context.Context, tenantID string, packID string) (types.RulePack, error) {
	packID = strings.TrimSpace(packID)
	if packID == "" {
		return types.RulePack{}, httperr.NewBadRequest("rule_pack_id is required")
	}
	return f.store.ActivatePack(ctx, tenantID, packID)
}

func (f PacksFacade) DeactivatePack(ctx context.Context, tenantID string, packID string) (types.RulePack, error) {
	packID = strings.TrimSpace(packID)
	if packID == "" {
		return types.RulePack{}, httperr.NewBadRequest("rule_pack_id is required")
	}
	return f.store.DeactivatePack(ctx, tenantID, packID)
}

func (f PacksFacade) GetPack(ctx context.Context, tenantID string, packID string) (types.RulePack, error) {
	return f.store.GetPack(ctx, tenantID, packID)
}

func (f PacksFacade) ListPacks(ctx context.Context, tenantID string, scope types.ScopeRef) ([]types.RulePack, error) {
	return f.store.ListPacks(ctx, tenantID, scope)
}
