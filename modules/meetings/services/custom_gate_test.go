package services

import (
	"testing"

	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

func cfgWithExpr(t *testing.T, expr string) ruleconfig.Set {
	t.Helper()
	cfg, err := ruleconfig.Merge(ruleconfig.Defaults(), []ruleconfig.Override{{
		Key:       ruleconfig.KeyCustomGateExpr,
		Raw:       []byte(`{"expr":` + quote(expr) + `}`),
		IsEnabled: true,
	}})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	return cfg
}

func quote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(append(out, '"'))
}

func TestCustomGate_EmptyExprNotApplicable(t *testing.T) {
	r := EvaluateCloseGates(ruleconfig.Defaults(), nil, heldMeeting())
	for _, g := range r.Gates {
		if g.Key == "CUSTOM_GATE_EXPR" && g.Enabled {
			t.Fatalf("gate should not apply: %+v", g)
		}
	}
}

func TestCustomGate_TrueExprPasses(t *testing.T) {
	cfg := cfgWithExpr(t, `meeting["plan_type"] == "IEP"`)
	r := EvaluateCloseGates(cfg, nil, heldMeeting())
	if !r.CanClose {
		t.Fatalf("blocking=%v", blockingKeys(r))
	}
}

func TestCustomGate_FalseExprBlocks(t *testing.T) {
	cfg := cfgWithExpr(t, `meeting["consent_status"] == "OBTAINED"`)
	r := EvaluateCloseGates(cfg, nil, heldMeeting())
	if r.CanClose {
		t.Fatalf("expected blocked")
	}
	if got := blockingKeys(r); len(got) != 1 || got[0] != "CUSTOM_GATE_EXPR" {
		t.Fatalf("blocking=%v", got)
	}
}

func TestCustomGate_EvidenceVisible(t *testing.T) {
	cfg := cfgWithExpr(t, `meeting["evidence"].contains("CONFERENCE_NOTES")`)
	r := EvaluateCloseGates(cfg, nil, heldMeeting())
	if !r.CanClose {
		t.Fatalf("blocking=%v", blockingKeys(r))
	}
}

func TestCustomGate_BadExprFailsClosed(t *testing.T) {
	cases := []struct {
		name string
		expr string
	}{
		{"syntax error", `meeting[`},
		{"non-bool result", `meeting["plan_type"]`},
		{"unknown variable", `actor == "x"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := cfgWithExpr(t, tc.expr)
			r := EvaluateCloseGates(cfg, nil, heldMeeting())
			if r.CanClose {
				t.Fatalf("expected blocked")
			}
			if got := blockingKeys(r); len(got) != 1 || got[0] != "CUSTOM_GATE_EXPR" {
				t.Fatalf("blocking=%v", got)
			}
		})
	}
}

func TestCustomGate_ProgramCacheReuse(t *testing.T) {
	cfg := cfgWithExpr(t, `meeting["status"] == "HELD"`)
	for i := 0; i < 3; i++ {
		if r := EvaluateCloseGates(cfg, nil, heldMeeting()); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	}
	if _, ok := customGateProgramCache.Load(`meeting["status"] == "HELD"`); !ok {
		t.Fatalf("expected cached program")
	}
}
