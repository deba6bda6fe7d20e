package services

import (
	"testing"
	"time"

	"github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
	rulepacktypes "github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
	"github.com/harborlight-ed/harborlight/pkg/ruleconfig"
)

func heldMeeting() types.Meeting {
	return types.Meeting{
		ID:          "mtg-1",
		StudentID:   "stu-1",
		SchoolID:    "sch-1",
		DistrictID:  "dst-1",
		StateCode:   "MD",
		MeetingType: types.MeetingTypeAnnualReview,
		PlanType:    rulepacktypes.PlanIEP,
		Status:      types.MeetingHeld,
		ScheduledAt: time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC),
		Evidence: []types.MeetingEvidence{
			{EvidenceTypeKey: types.EvidenceConferenceNotes, Note: "notes on file"},
		},
	}
}

func blockingKeys(r GateResult) []string {
	out := make([]string, 0, len(r.BlockingReasons))
	for _, b := range r.BlockingReasons {
		out = append(out, b.RuleKey)
	}
	return out
}

func TestEvaluateCloseGates_AllPass(t *testing.T) {
	r := EvaluateCloseGates(ruleconfig.Defaults(), nil, heldMeeting())
	if !r.CanClose {
		t.Fatalf("blocking=%v", blockingKeys(r))
	}
	if len(r.BlockingReasons) != 0 {
		t.Fatalf("blocking=%v", r.BlockingReasons)
	}
}

func TestEvaluateCloseGates_ConferenceNotes(t *testing.T) {
	m := heldMeeting()
	m.Evidence = nil

	r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m)
	if r.CanClose {
		t.Fatalf("expected blocked")
	}
	if got := blockingKeys(r); len(got) != 1 || got[0] != "CONFERENCE_NOTES_REQUIRED" {
		t.Fatalf("blocking=%v", got)
	}

	t.Run("rule disabled passes vacuously", func(t *testing.T) {
		cfg, err := ruleconfig.Merge(ruleconfig.Defaults(), []ruleconfig.Override{
			{Key: ruleconfig.KeyConferenceNotesRequired, IsEnabled: false},
		})
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		r := EvaluateCloseGates(cfg, nil, m)
		if !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})
}

func TestEvaluateCloseGates_InitialConsent(t *testing.T) {
	m := heldMeeting()
	m.MeetingType = types.MeetingTypeInitial

	t.Run("no consent blocks", func(t *testing.T) {
		r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m)
		if r.CanClose {
			t.Fatalf("expected blocked")
		}
		if got := blockingKeys(r); len(got) != 1 || got[0] != "INITIAL_IEP_CONSENT_GATE" {
			t.Fatalf("blocking=%v", got)
		}
	})

	t.Run("obtained consent passes", func(t *testing.T) {
		withConsent := m
		withConsent.ConsentStatus = types.ConsentObtained
		if r := EvaluateCloseGates(ruleconfig.Defaults(), nil, withConsent); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})

	t.Run("consent form evidence passes", func(t *testing.T) {
		withForm := m
		withForm.Evidence = append(append([]types.MeetingEvidence(nil), m.Evidence...),
			types.MeetingEvidence{EvidenceTypeKey: types.EvidenceConsentForm})
		if r := EvaluateCloseGates(ruleconfig.Defaults(), nil, withForm); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})

	t.Run("not applicable to annual review", func(t *testing.T) {
		annual := m
		annual.MeetingType = types.MeetingTypeAnnualReview
		if r := EvaluateCloseGates(ruleconfig.Defaults(), nil, annual); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})
}

func continuedMeeting(noticeDays int) types.Meeting {
	m := heldMeeting()
	m.IsContinued = true
	m.ContinuedFromMeetingID = "mtg-0"
	original := time.Date(2025, time.February, 3, 9, 0, 0, 0, time.UTC) // Monday
	m.ContinuedFromScheduledAt = &original
	m.ScheduledAt = original.AddDate(0, 0, noticeDays) // calendar offset, adjusted per test
	agreed := original.AddDate(0, 0, 1)
	m.MutualAgreementForContinuedDate = &agreed
	return m
}

func TestEvaluateCloseGates_ContinuedNotice(t *testing.T) {
	t.Run("five business days against ten required blocks", func(t *testing.T) {
		m := continuedMeeting(7) // Mon -> next Mon = 5 business days
		r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m)
		if r.CanClose {
			t.Fatalf("expected blocked")
		}
		if got := blockingKeys(r); len(got) != 1 || got[0] != "CONTINUED_MEETING_NOTICE_DAYS" {
			t.Fatalf("blocking=%v", got)
		}
	})

	t.Run("fourteen calendar days passes ten required", func(t *testing.T) {
		m := continuedMeeting(14) // Mon -> Mon two weeks = 10 business days
		if r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})

	t.Run("signed waiver passes regardless of interval", func(t *testing.T) {
		m := continuedMeeting(1)
		signed := true
		m.NoticeWaiverSigned = &signed
		if r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})

	t.Run("waiver evidence passes regardless of interval", func(t *testing.T) {
		m := continuedMeeting(1)
		m.Evidence = append(m.Evidence, types.MeetingEvidence{EvidenceTypeKey: types.EvidenceNoticeWaiver})
		if r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})

	t.Run("unknown original date fails closed", func(t *testing.T) {
		m := continuedMeeting(30)
		m.ContinuedFromScheduledAt = nil
		r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m)
		if r.CanClose {
			t.Fatalf("expected blocked")
		}
	})
}

func TestEvaluateCloseGates_MutualAgreement(t *testing.T) {
	m := continuedMeeting(14)
	m.MutualAgreementForContinuedDate = nil

	r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m)
	if r.CanClose {
		t.Fatalf("expected blocked")
	}
	if got := blockingKeys(r); len(got) != 1 || got[0] != "CONTINUED_MEETING_MUTUAL_AGREEMENT" {
		t.Fatalf("blocking=%v", got)
	}

	t.Run("not applicable when not continued", func(t *testing.T) {
		plain := heldMeeting()
		if r := EvaluateCloseGates(ruleconfig.Defaults(), nil, plain); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})
}

func TestEvaluateCloseGates_AudioRecording(t *testing.T) {
	m := heldMeeting()
	m.ParentRecording = true
	m.StaffRecording = false

	r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m)
	if r.CanClose {
		t.Fatalf("expected blocked")
	}
	if got := blockingKeys(r); len(got) != 1 || got[0] != "AUDIO_RECORDING_RULE" {
		t.Fatalf("blocking=%v", got)
	}

	t.Run("staff recording passes", func(t *testing.T) {
		m.StaffRecording = true
		if r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})

	t.Run("override disables the requirement", func(t *testing.T) {
		cfg, err := ruleconfig.Merge(ruleconfig.Defaults(), []ruleconfig.Override{{
			Key:       ruleconfig.KeyAudioRecordingRule,
			Raw:       []byte(`{"staffMustRecordIfParentRecords":false}`),
			IsEnabled: true,
		}})
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		noStaff := m
		noStaff.StaffRecording = false
		if r := EvaluateCloseGates(cfg, nil, noStaff); !r.CanClose {
			t.Fatalf("blocking=%v", blockingKeys(r))
		}
	})
}

func TestEvaluateCloseGates_EvidenceRequirements(t *testing.T) {
	m := heldMeeting()
	r := EvaluateCloseGates(ruleconfig.Defaults(), []string{"MEETING_NOTICE", "SERVICE_LOG"}, m)
	if r.CanClose {
		t.Fatalf("expected blocked")
	}
	got := blockingKeys(r)
	if len(got) != 2 || got[0] != "EVIDENCE_REQUIRED:MEETING_NOTICE" || got[1] != "EVIDENCE_REQUIRED:SERVICE_LOG" {
		t.Fatalf("blocking=%v", got)
	}

	m.Evidence = append(m.Evidence,
		types.MeetingEvidence{EvidenceTypeKey: "MEETING_NOTICE"},
		types.MeetingEvidence{EvidenceTypeKey: "SERVICE_LOG"},
	)
	if r := EvaluateCloseGates(ruleconfig.Defaults(), []string{"MEETING_NOTICE", "SERVICE_LOG"}, m); !r.CanClose {
		t.Fatalf("blocking=%v", blockingKeys(r))
	}
}

func TestEvaluateCloseGates_ANDSemantics(t *testing.T) {
	// Every applicable gate failing at once: one reason per gate.
	m := heldMeeting()
	m.Evidence = nil
	m.MeetingType = types.MeetingTypeInitial
	m.IsContinued = true
	m.ParentRecording = true

	r := EvaluateCloseGates(ruleconfig.Defaults(), nil, m)
	if r.CanClose {
		t.Fatalf("expected blocked")
	}
	want := []string{
		"CONFERENCE_NOTES_REQUIRED",
		"INITIAL_IEP_CONSENT_GATE",
		"CONTINUED_MEETING_NOTICE_DAYS",
		"CONTINUED_MEETING_MUTUAL_AGREEMENT",
		"AUDIO_RECORDING_RULE",
	}
	got := blockingKeys(r)
	if len(got) != len(want) {
		t.Fatalf("blocking=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("blocking[%d]=%s want=%s", i, got[i], want[i])
		}
	}
}
