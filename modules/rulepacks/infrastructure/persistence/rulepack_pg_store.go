package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/ports"
	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
	"github.com/harborlight-ed/harborlight/pkg/httperr"
	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type RulePackPGStore struct {
	pool pgBeginner
}

func NewRulePackPGStore(pool pgBeginner) ports.RulePackStore {
	return &RulePackPGStore{pool: pool}
}

func (s *RulePackPGStore) begin(ctx context.Context, tenantID string) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, err
	}
	return tx, nil
}

func scanPack(row pgx.Row) (types.RulePack, error) {
	var p types.RulePack
	var effectiveTo *time.Time
	err := row.Scan(&p.ID, &p.ScopeType, &p.ScopeID, &p.PlanType, &p.Name, &p.Version, &p.IsActive, &p.EffectiveFrom, &effectiveTo)
	if err != nil {
		return types.RulePack{}, err
	}
	p.EffectiveTo = effectiveTo
	return p, nil
}

const packColumns = `
	  rule_pack_id::text,
	  scope_type,
	  scope_id,
	  plan_type,
	  name,
	  version,
	  is_active,
	  effective_from,
	  effective_to`

func loadRules(ctx context.Context, tx pgx.Tx, tenantID string, packID string) ([]types.RulePackRule, error) {
	rows, err := tx.Query(ctx, `
	SELECT
	  rule_key,
	  is_enabled,
	  config,
	  sort_order
	FROM compliance.rule_pack_rules
	WHERE tenant_id = $1::uuid AND rule_pack_id = $2::uuid
	ORDER BY sort_order ASC, rule_key ASC
	`, tenantID, packID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.RulePackRule
	for rows.Next() {
		var r types.RulePackRule
		var cfg []byte
		if err := rows.Scan(&r.RuleKey, &r.IsEnabled, &cfg, &r.SortOrder); err != nil {
			return nil, err
		}
		if len(cfg) > 0 {
			r.Config = json.RawMessage(cfg)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	evRows, err := tx.Query(ctx, `
	SELECT
	  rule_key,
	  evidence_type_key,
	  is_required
	FROM compliance.rule_pack_rule_evidence
	WHERE tenant_id = $1::uuid AND rule_pack_id = $2::uuid
	ORDER BY rule_key ASC, evidence_type_key ASC
	`, tenantID, packID)
	if err != nil {
		return nil, err
	}
	defer evRows.Close()

	byKey := make(map[ruleconfig.Key][]types.EvidenceRequirement)
	for evRows.Next() {
		var key ruleconfig.Key
		var req types.EvidenceRequirement
		if err := evRows.Scan(&key, &req.EvidenceTypeKey, &req.IsRequired); err != nil {
			return nil, err
		}
		byKey[key] = append(byKey[key], req)
	}
	if err := evRows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].EvidenceRequirements = byKey[out[i].RuleKey]
	}
	return out, nil
}

func (s *RulePackPGStore) FindActivePack(ctx context.Context, tenantID string, scope types.ScopeRef, planType types.PlanType, asOf time.Time) (types.RulePack, bool, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.RulePack{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	p, err := scanPack(tx.QueryRow(ctx, `
	SELECT`+packColumns+`
	FROM compliance.rule_packs
	WHERE tenant_id = $1::uuid
	  AND scope_type = $2::text
	  AND scope_id = $3::text
	  AND plan_type = $4::text
	  AND is_active
	  AND effective_from <= $5::timestamptz
	  AND (effective_to IS NULL OR effective_to >= $5::timestamptz)
	`, tenantID, string(scope.Type), scope.ID, string(planType), asOf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.RulePack{}, false, nil
		}
		return types.RulePack{}, false, err
	}

	p.Rules, err = loadRules(ctx, tx, tenantID, p.ID)
	if err != nil {
		return types.RulePack{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.RulePack{}, false, err
	}
	return p, true, nil
}

func (s *RulePackPGStore) GetPack(ctx context.Context, tenantID string, packID string) (types.RulePack, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.RulePack{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	p, err := scanPack(tx.QueryRow(ctx, `
	SELECT`+packColumns+`
	FROM compliance.rule_packs
	WHERE tenant_id = $1::uuid AND rule_pack_id = $2::uuid
	`, tenantID, packID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.RulePack{}, httperr.NewNotFound("rule pack not found")
		}
		return types.RulePack{}, err
	}

	p.Rules, err = loadRules(ctx, tx, tenantID, p.ID)
	if err != nil {
		return types.RulePack{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.RulePack{}, err
	}
	return p, nil
}

func (s *RulePackPGStore) ListPacks(ctx context.Context, tenantID string, scope types.ScopeRef) ([]types.RulePack, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
	SELECT`+packColumns+`
	FROM compliance.rule_packs
	WHERE tenant_id = $1::uuid
	  AND ($2::text = '' OR scope_type = $2::text)
	  AND ($3::text = '' OR scope_id = $3::text)
	ORDER BY scope_type ASC, scope_id ASC, plan_type ASC, version DESC
	`, tenantID, string(scope.Type), scope.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.RulePack
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RulePackPGStore) CreatePack(ctx context.Context, tenantID string, pack types.RulePack) (types.RulePack, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.RulePack{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	// Next version for this (scope, plan) binding. The unique index on
	// (tenant_id, scope_type, scope_id, plan_type, version) rejects the
	// losing side of a concurrent create.
	var version int
	if err := tx.QueryRow(ctx, `
	SELECT coalesce(max(version), 0) + 1
	FROM compliance.rule_packs
	WHERE tenant_id = $1::uuid AND scope_type = $2::text AND scope_id = $3::text AND plan_type = $4::text
	`, tenantID, string(pack.ScopeType), pack.ScopeID, string(pack.PlanType)).Scan(&version); err != nil {
		return types.RulePack{}, err
	}

	var packID string
	if err := tx.QueryRow(ctx, `
	INSERT INTO compliance.rule_packs (
	  tenant_id, scope_type, scope_id, plan_type, name, version, is_active, effective_from, effective_to
	) VALUES ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::int, false, $7::timestamptz, $8::timestamptz)
	RETURNING rule_pack_id::text
	`, tenantID, string(pack.ScopeType), pack.ScopeID, string(pack.PlanType), pack.Name, version, pack.EffectiveFrom, pack.EffectiveTo).Scan(&packID); err != nil {
		return types.RulePack{}, err
	}

	for _, r := range pack.Rules {
		cfg := []byte("null")
		if len(r.Config) > 0 {
			raw := strings.TrimSpace(string(r.Config))
			if raw != "" {
				if !json.Valid([]byte(raw)) {
					return types.RulePack{}, httperr.NewBadRequest("invalid rule config for " + string(r.RuleKey))
				}
				cfg = []byte(raw)
			}
		}
		if _, err := tx.Exec(ctx, `
		INSERT INTO compliance.rule_pack_rules (tenant_id, rule_pack_id, rule_key, is_enabled, config, sort_order)
		VALUES ($1::uuid, $2::uuid, $3::text, $4::bool, $5::jsonb, $6::int)
		`, tenantID, packID, string(r.RuleKey), r.IsEnabled, cfg, r.SortOrder); err != nil {
			return types.RulePack{}, err
		}
		for _, req := range r.EvidenceRequirements {
			if _, err := tx.Exec(ctx, `
			INSERT INTO compliance.rule_pack_rule_evidence (tenant_id, rule_pack_id, rule_key, evidence_type_key, is_required)
			VALUES ($1::uuid, $2::uuid, $3::text, $4::text, $5::bool)
			`, tenantID, packID, string(r.RuleKey), req.EvidenceTypeKey, req.IsRequired); err != nil {
				return types.RulePack{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.RulePack{}, err
	}

	pack.ID = packID
	pack.Version = version
	pack.IsActive = false
	return pack, nil
}

func (s *RulePackPGStore) ActivatePack(ctx context.Context, tenantID string, packID string) (types.RulePack, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.RulePack{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	p, err := scanPack(tx.QueryRow(ctx, `
	SELECT`+packColumns+`
	FROM compliance.rule_packs
	WHERE tenant_id = $1::uuid AND rule_pack_id = $2::uuid
	FOR UPDATE
	`, tenantID, packID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.RulePack{}, httperr.NewNotFound("rule pack not found")
		}
		return types.RulePack{}, err
	}

	// At most one active pack per (scope, plan): the previous active
	// sibling is deactivated inside the same transaction.
	if _, err := tx.Exec(ctx, `
	UPDATE compliance.rule_packs
	SET is_active = false
	WHERE tenant_id = $1::uuid
	  AND scope_type = $2::text
	  AND scope_id = $3::text
	  AND plan_type = $4::text
	  AND is_active
	  AND rule_pack_id <> $5::uuid
	`, tenantID, string(p.ScopeType), p.ScopeID, string(p.PlanType), packID); err != nil {
		return types.RulePack{}, err
	}

	if _, err := tx.Exec(ctx, `
	UPDATE compliance.rule_packs
	SET is_active = true
	WHERE tenant_id = $1::uuid AND rule_pack_id = $2::uuid
	`, tenantID, packID); err != nil {
		return types.RulePack{}, err
	}

	p.Rules, err = loadRules(ctx, tx, tenantID, packID)
	if err != nil {
		return types.RulePack{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.RulePack{}, err
	}
	p.IsActive = true
	return p, nil
}

func (s *RulePackPGStore) DeactivatePack(ctx context.Context, tenantID string, packID string) (types.RulePack, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.RulePack{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
	UPDATE compliance.rule_packs
	SET is_active = false
	WHERE tenant_id = $1::uuid AND rule_pack_id = $2::uuid
	`, tenantID, packID)
	if err != nil {
		return types.RulePack{}, err
	}
	if tag.RowsAffected() == 0 {
		return types.RulePack{}, httperr.NewNotFound("rule pack not found")
	}

	p, err := scanPack(tx.QueryRow(ctx, `
	SELECT`+packColumns+`
	FROM compliance.rule_packs
	WHERE tenant_id = $1::uuid AND rule_pack_id = $2::uuid
	`, tenantID, packID))
	if err != nil {
		return types.RulePack{}, err
	}
	p.Rules, err = loadRules(ctx, tx, tenantID, packID)
	if err != nil {
		return types.RulePack{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.RulePack{}, err
	}
	return p, nil
}
