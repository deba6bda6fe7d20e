package persistence

import (
	"strings"
	"testing"
	"time"

	"github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		panic("column count mismatch")
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *types.ScopeType:
			*d = types.ScopeType(v.(string))
		case *types.PlanType:
			*d = types.PlanType(v.(string))
		case *int:
			*d = v.(int)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			if v == nil {
				*d = nil
			} else {
				tt := v.(time.Time)
				*d = &tt
			}
		default:
			panic("unsupported scan target")
		}
	}
	return nil
}

func TestScanPack(t *testing.T) {
	from := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	t.Run("open ended", func(t *testing.T) {
		p, err := scanPack(fakeRow{values: []any{"pack-1", "STATE", "MD", "IEP", "Maryland IEP", 2, true, from, nil}})
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if p.ID != "pack-1" || p.ScopeType != types.ScopeState || p.PlanType != types.PlanIEP || p.Version != 2 || !p.IsActive {
			t.Fatalf("pack=%+v", p)
		}
		if p.EffectiveTo != nil {
			t.Fatalf("effective_to=%v", p.EffectiveTo)
		}
	})

	t.Run("bounded window", func(t *testing.T) {
		p, err := scanPack(fakeRow{values: []any{"pack-1", "SCHOOL", "sch-1", "ALL", "School defaults", 1, false, from, to}})
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if p.EffectiveTo == nil || !p.EffectiveTo.Equal(to) {
			t.Fatalf("effective_to=%v", p.EffectiveTo)
		}
	})
}

func TestPackColumnsCount(t *testing.T) {
	// scanPack targets nine columns; keep the projection in sync.
	if got := len(strings.Split(packColumns, ",")); got != 9 {
		t.Fatalf("columns=%d", got)
	}
}
