package ports

import (
	"context"
	"time"

	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
)

type RulePackStore interface {
	// FindActivePack returns the single active pack for the exact
	// (scope, planType) that is effective as of asOf, with rules and
	// evidence requirements loaded. ok=false when none qualifies.
	FindActivePack(ctx context.Context, tenantID string, scope types.ScopeRef, planType types.PlanType, asOf time.Time) (types.RulePack, bool, error)
	GetPack(ctx context.Context, tenantID string, packID string) (types.RulePack, error)
	ListPacks(ctx context.Context, tenantID string, scope types.ScopeRef) ([]types.RulePack, error)
	// CreatePack stores the pack inactive at the next version for its
	// (scope, planType) and returns it with id and version assigned.
	CreatePack(ctx context.Context, tenantID string, pack types.RulePack) (types.RulePack, error)
	// ActivatePack flips the pack active, deactivating any active sibling
	// for the same (scope, planType) in the same transaction.
	ActivatePack(ctx context.Context, tenantID string, packID string) (types.RulePack, error)
	DeactivatePack(ctx context.Context, tenantID string, packID string) (types.RulePack, error)
}
