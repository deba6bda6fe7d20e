package services

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

const (
	customGateFailedReason = "district close condition evaluated false"
	customGateErrorReason  = "district close condition could not be evaluated"
)

var newCustomGateCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("meeting", cel.MapType(cel.StringType, cel.StringType)))
}

var customGateProgramCache sync.Map

// customExprGate evaluates a district-authored CEL expression against the
// meeting context. An empty expression (the default) never applies.
// Compile or eval failures fail closed: a broken expression must not let a
// meeting close.
func customExprGate(cfg ruleconfig.Set, m types.Meeting) Gate {
	g := Gate{Key: string(ruleconfig.KeyCustomGateExpr), Passed: true}
	c := cfg[ruleconfig.KeyCustomGateExpr]
	if c.Disabled || c.Expr == nil || strings.TrimSpace(c.Expr.Expr) == "" {
		return g
	}
	g.Enabled = true

	ok, err := evalCustomGateExpr(c.Expr.Expr, meetingCELContext(m))
	if err != nil {
		g.Passed = false
		g.Reason = customGateErrorReason
		return g
	}
	if !ok {
		g.Passed = false
		g.Reason = customGateFailedReason
	}
	return g
}

func meetingCELContext(m types.Meeting) map[string]string {
	evidence := make([]string, 0, len(m.Evidence))
	for _, e := range m.Evidence {
		evidence = append(evidence, e.EvidenceTypeKey)
	}
	return map[string]string{
		"meeting_id":       m.ID,
		"status":           string(m.Status),
		"meeting_type":     string(m.MeetingType),
		"plan_type":        string(m.PlanType),
		"is_continued":     strconv.FormatBool(m.IsContinued),
		"parent_recording": strconv.FormatBool(m.ParentRecording),
		"staff_recording":  strconv.FormatBool(m.StaffRecording),
		"consent_status":   string(m.ConsentStatus),
		"evidence":         strings.Join(evidence, ","),
	}
}

func evalCustomGateExpr(expr string, meetingCtx map[string]string) (bool, error) {
	program, err := loadOrCompileCustomGate(expr)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"meeting": meetingCtx})
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("custom gate expression did not yield bool")
	}
	return v, nil
}

func loadOrCompileCustomGate(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if cached, ok := customGateProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newCustomGateCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.New("custom gate expression must be boolean")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	customGateProgramCache.Store(expr, program)
	return program, nil
}
