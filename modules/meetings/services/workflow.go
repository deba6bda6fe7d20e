package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborlight-ed/harborlight/modules/meetings/domain/ports"
	"github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
	rulepacktypes "github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
	rulepacksvc "github.com/harborlight-ed/harborlight/modules/rulepacks/services"
	"github.com/harborlight-ed/harborlight/pkg/httperr"
	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

var allowedTransitions = map[types.MeetingStatus]map[types.MeetingStatus]bool{
	types.MeetingScheduled: {types.MeetingHeld: true, types.MeetingCanceled: true},
	types.MeetingHeld:      {types.MeetingClosed: true, types.MeetingCanceled: true},
	types.MeetingClosed:    {},
	types.MeetingCanceled:  {},
}

var closeEventNamespace = uuid.Must(uuid.Parse("9b1f7c6e-3d42-4a8f-b6a0-5f2d8c11e47a"))

// deterministicCloseEventID gives the close audit event a stable id so a
// retried close commit stays rerunnable.
func deterministicCloseEventID(tenantID string, meetingID string, closedAt time.Time) string {
	name := fmt.Sprintf("meetings.close_event:%s:%s:%s", tenantID, meetingID, closedAt.UTC().Format("2006-01-02"))
	return uuid.NewSHA1(closeEventNamespace, []byte(name)).String()
}

// Workflow drives the legal status machine of a compliance meeting. The
// HELD -> CLOSED edge is gated: the applicable rule pack is resolved for the
// meeting's scope chain and plan type, merged over the built-in defaults,
// and every close gate must pass.
type Workflow struct {
	meetings ports.MeetingStore
	resolver *rulepacksvc.Resolver
	nowUTC   func() time.Time
}

func NewWorkflow(meetings ports.MeetingStore, resolver *rulepacksvc.Resolver) *Workflow {
	return &Workflow{meetings: meetings, resolver: resolver, nowUTC: func() time.Time { return time.Now().UTC() }}
}

// WithClock fixes the workflow clock. Test hook.
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.nowUTC = now
	return w
}

func (w *Workflow) GetMeeting(ctx context.Context, tenantID string, meetingID string) (types.Meeting, error) {
	return w.meetings.GetMeeting(ctx, tenantID, meetingID)
}

// CloseCheck resolves rules and evaluates close gates without touching the
// meeting. Backs the close-preview endpoint.
func (w *Workflow) CloseCheck(ctx context.Context, tenantID string, m types.Meeting) (GateResult, rulepacktypes.PrecedenceResult, error) {
	now := w.nowUTC()
	chain := rulepacksvc.BuildScopeChain(m.SchoolID, m.DistrictID, m.StateCode)
	precedence, err := w.resolver.Resolve(ctx, tenantID, chain, m.PlanType, now)
	if err != nil {
		return GateResult{}, rulepacktypes.PrecedenceResult{}, err
	}

	var overrides []ruleconfig.Override
	var requiredEvidence []string
	if precedence.Resolved {
		overrides = precedence.Pack.Overrides()
		requiredEvidence = precedence.Pack.RequiredEvidence()
	}
	cfg, err := ruleconfig.Merge(ruleconfig.Defaults(), overrides)
	if err != nil {
		return GateResult{}, rulepacktypes.PrecedenceResult{}, err
	}

	return EvaluateCloseGates(cfg, requiredEvidence, m), precedence, nil
}

// Transition applies one status change. Unknown or disallowed edges return
// InvalidTransitionError; a gated close that fails returns
// ComplianceGateFailedError with every blocking reason and leaves the
// meeting HELD.
func (w *Workflow) Transition(ctx context.Context, tenantID string, meetingID string, target types.MeetingStatus, actorID string) (types.Meeting, error) {
	if !types.ValidStatus(target) {
		return types.Meeting{}, httperr.NewBadRequest("invalid target status")
	}

	m, err := w.meetings.GetMeeting(ctx, tenantID, meetingID)
	if err != nil {
		return types.Meeting{}, err
	}
	if !allowedTransitions[m.Status][target] {
		return types.Meeting{}, &types.InvalidTransitionError{From: m.Status, To: target}
	}

	now := w.nowUTC()
	if target != types.MeetingClosed {
		var heldAt *time.Time
		if target == types.MeetingHeld {
			heldAt = &now
		}
		return w.meetings.UpdateStatus(ctx, tenantID, meetingID, m.Status, target, heldAt)
	}

	gates, precedence, err := w.CloseCheck(ctx, tenantID, m)
	if err != nil {
		return types.Meeting{}, err
	}
	if !gates.CanClose {
		return types.Meeting{}, &types.ComplianceGateFailedError{Reasons: gates.BlockingReasons}
	}

	stamp := ports.CloseStamp{
		ClosedAt:       now,
		ClosedByUserID: actorID,
		AuditEventID:   deterministicCloseEventID(tenantID, meetingID, now),
	}
	if precedence.Resolved {
		stamp.RulePackID = precedence.Pack.ID
		stamp.RulePackVersion = precedence.Pack.Version
	}
	return w.meetings.CloseMeeting(ctx, tenantID, meetingID, m.Status, stamp)
}
