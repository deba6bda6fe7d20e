package services

import (
	"fmt"

	"github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
	"github.com/harborlight-ed/harborlight/pkg/busday"
	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

// Gate is one evaluated close precondition. Enabled=false means the rule
// did not apply to this meeting; such gates always pass.
type Gate struct {
	Key     string `json:"rule_key"`
	Enabled bool   `json:"enabled"`
	Passed  bool   `json:"passed"`
	Reason  string `json:"reason,omitempty"`
}

type GateResult struct {
	Gates           []Gate             `json:"gates"`
	CanClose        bool               `json:"can_close"`
	BlockingReasons []types.GateReason `json:"blocking_reasons,omitempty"`
}

const evidenceGatePrefix = "EVIDENCE_REQUIRED:"

// EvaluateCloseGates checks every close gate independently against the
// meeting snapshot. CanClose is the AND of all applicable gates; a gate
// contributes a blocking reason only when it applies and fails.
func EvaluateCloseGates(cfg ruleconfig.Set, requiredEvidence []string, m types.Meeting) GateResult {
	result := GateResult{CanClose: true}

	add := func(g Gate) {
		result.Gates = append(result.Gates, g)
		if g.Enabled && !g.Passed {
			result.CanClose = false
			result.BlockingReasons = append(result.BlockingReasons, types.GateReason{
				RuleKey:     g.Key,
				Description: g.Reason,
			})
		}
	}

	add(conferenceNotesGate(cfg, m))
	add(initialConsentGate(cfg, m))
	add(continuedNoticeGate(cfg, m))
	add(mutualAgreementGate(cfg, m))
	add(audioRecordingGate(cfg, m))
	add(customExprGate(cfg, m))
	for _, g := range evidenceRequirementGates(requiredEvidence, m) {
		add(g)
	}

	return result
}

func conferenceNotesGate(cfg ruleconfig.Set, m types.Meeting) Gate {
	g := Gate{Key: string(ruleconfig.KeyConferenceNotesRequired), Passed: true}
	c := cfg[ruleconfig.KeyConferenceNotesRequired]
	if c.Disabled || c.Required == nil || !c.Required.Required {
		return g
	}
	g.Enabled = true
	if m.HasEvidence(types.EvidenceConferenceNotes) {
		return g
	}
	g.Passed = false
	g.Reason = "conference notes evidence is required before close"
	return g
}

func initialConsentGate(cfg ruleconfig.Set, m types.Meeting) Gate {
	g := Gate{Key: string(ruleconfig.KeyInitialIEPConsentGate), Passed: true}
	c := cfg[ruleconfig.KeyInitialIEPConsentGate]
	if c.Disabled || c.Enabled == nil || !c.Enabled.Enabled || m.MeetingType != types.MeetingTypeInitial {
		return g
	}
	g.Enabled = true
	if m.ConsentStatus == types.ConsentObtained || m.HasEvidence(types.EvidenceConsentForm) {
		return g
	}
	g.Passed = false
	g.Reason = "initial IEP consent not obtained and no consent form on file"
	return g
}

func continuedNoticeGate(cfg ruleconfig.Set, m types.Meeting) Gate {
	g := Gate{Key: string(ruleconfig.KeyContinuedMeetingNoticeDays), Passed: true}
	c := cfg[ruleconfig.KeyContinuedMeetingNoticeDays]
	if c.Disabled || !m.IsContinued {
		return g
	}
	g.Enabled = true

	if m.NoticeWaiverSigned != nil && *m.NoticeWaiverSigned {
		return g
	}
	if m.HasEvidence(types.EvidenceNoticeWaiver) {
		return g
	}

	required := 0
	if c.Days != nil {
		required = c.Days.Days
	}
	// Without the original session date the notice interval is unknowable;
	// fail closed rather than assume it was long enough.
	if m.ContinuedFromScheduledAt != nil {
		if busday.Between(*m.ContinuedFromScheduledAt, m.ScheduledAt) >= required {
			return g
		}
	}
	g.Passed = false
	g.Reason = fmt.Sprintf("continued meeting needs %d business days notice or a signed waiver", required)
	return g
}

func mutualAgreementGate(cfg ruleconfig.Set, m types.Meeting) Gate {
	g := Gate{Key: string(ruleconfig.KeyContinuedMeetingMutualAgree), Passed: true}
	c := cfg[ruleconfig.KeyContinuedMeetingMutualAgree]
	if c.Disabled || c.Required == nil || !c.Required.Required || !m.IsContinued {
		return g
	}
	g.Enabled = true
	if m.MutualAgreementForContinuedDate != nil {
		return g
	}
	g.Passed = false
	g.Reason = "continued meeting date lacks mutual agreement"
	return g
}

func audioRecordingGate(cfg ruleconfig.Set, m types.Meeting) Gate {
	g := Gate{Key: string(ruleconfig.KeyAudioRecordingRule), Passed: true}
	c := cfg[ruleconfig.KeyAudioRecordingRule]
	if c.Disabled || c.Recording == nil || !c.Recording.StaffMustRecordIfParentRecords || !m.ParentRecording {
		return g
	}
	g.Enabled = true
	if m.StaffRecording {
		return g
	}
	g.Passed = false
	g.Reason = "parent is recording but no staff recording was made"
	return g
}

func evidenceRequirementGates(requiredEvidence []string, m types.Meeting) []Gate {
	var out []Gate
	for _, key := range requiredEvidence {
		g := Gate{Key: evidenceGatePrefix + key, Enabled: true, Passed: true}
		if !m.HasEvidence(key) {
			g.Passed = false
			g.Reason = fmt.Sprintf("required evidence %s is missing", key)
		}
		out = append(out, g)
	}
	return out
}
