package types

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeComplianceGateFailed = "COMPLIANCE_GATE_FAILED"
)

type InvalidTransitionError struct {
	From MeetingStatus
	To   MeetingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", CodeInvalidTransition, e.From, e.To)
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	ok := errors.As(err, &target)
	return ok
}

// GateReason is one failing gate: the machine rule key plus a human-readable
// description the caller can surface as actionable feedback.
type GateReason struct {
	RuleKey     string `json:"rule_key"`
	Description string `json:"description"`
}

type ComplianceGateFailedError struct {
	Reasons []GateReason
}

func (e *ComplianceGateFailedError) Error() string {
	keys := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		keys = append(keys, r.RuleKey)
	}
	return CodeComplianceGateFailed + ": " + strings.Join(keys, ", ")
}

func IsComplianceGateFailed(err error) bool {
	var target *ComplianceGateFailedError
	ok := errors.As(err, &target)
	return ok
}
