package persistence

import (
	"testing"
	"time"

	"github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
	rulepacktypes "github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
)

type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		panic("column count mismatch")
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
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
		case **bool:
			if v == nil {
				*d = nil
			} else {
				b := v.(bool)
				*d = &b
			}
		case *types.MeetingType:
			*d = types.MeetingType(v.(string))
		case *types.MeetingStatus:
			*d = types.MeetingStatus(v.(string))
		case *types.ConsentStatus:
			*d = types.ConsentStatus(v.(string))
		case *rulepacktypes.PlanType:
			*d = rulepacktypes.PlanType(v.(string))
		default:
			panic("unsupported scan target")
		}
	}
	return nil
}

func TestScanMeeting(t *testing.T) {
	scheduled := time.Date(2025, time.February, 3, 9, 0, 0, 0, time.UTC)
	held := scheduled.Add(time.Hour)

	m, err := scanMeeting(fakeRow{values: []any{
		"mtg-1", "stu-1", "sch-1", "dst-1", "MD",
		"INITIAL", "IEP", "HELD",
		true, "mtg-0", scheduled.AddDate(0, 0, -14),
		scheduled, held,
		false, true,
		"OBTAINED", true, nil,
		nil, "", "", 0,
	}})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m.ID != "mtg-1" || m.Status != types.MeetingHeld || m.MeetingType != types.MeetingTypeInitial {
		t.Fatalf("meeting=%+v", m)
	}
	if m.PlanType != rulepacktypes.PlanIEP {
		t.Fatalf("plan=%s", m.PlanType)
	}
	if !m.IsContinued || m.ContinuedFromMeetingID != "mtg-0" || m.ContinuedFromScheduledAt == nil {
		t.Fatalf("continuation=%+v", m)
	}
	if m.HeldAt == nil || !m.HeldAt.Equal(held) {
		t.Fatalf("heldAt=%v", m.HeldAt)
	}
	if m.ConsentStatus != types.ConsentObtained {
		t.Fatalf("consent=%s", m.ConsentStatus)
	}
	if m.NoticeWaiverSigned == nil || !*m.NoticeWaiverSigned {
		t.Fatalf("waiver=%v", m.NoticeWaiverSigned)
	}
	if m.ClosedAt != nil || m.RulePackID != "" || m.RulePackVersion != 0 {
		t.Fatalf("close stamp=%+v", m)
	}
}
