package types

import (
	"time"

	rulepacktypes "github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
)

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingHeld      MeetingStatus = "HELD"
	MeetingClosed    MeetingStatus = "CLOSED"
	MeetingCanceled  MeetingStatus = "CANCELED"
)

type MeetingType string

const (
	MeetingTypeInitial      MeetingType = "INITIAL"
	MeetingTypeAnnualReview MeetingType = "ANNUAL_REVIEW"
	MeetingTypeReevaluation MeetingType = "REEVALUATION"
	MeetingTypeAmendment    MeetingType = "AMENDMENT"
)

type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "PENDING"
	ConsentObtained ConsentStatus = "OBTAINED"
	ConsentRefused  ConsentStatus = "REFUSED"
)

const (
	EvidenceConferenceNotes = "CONFERENCE_NOTES"
	EvidenceConsentForm     = "CONSENT_FORM"
	EvidenceNoticeWaiver    = "NOTICE_WAIVER"
)

type MeetingEvidence struct {
	EvidenceTypeKey string `json:"evidence_type_key"`
	Note            string `json:"note,omitempty"`
}

// Meeting is the compliance snapshot of one plan meeting, including the
// student's organizational chain so rule resolution needs no extra lookup.
// Audit fields at the bottom are written once, at close time.
type Meeting struct {
	ID         string `json:"meeting_id"`
	StudentID  string `json:"student_id"`
	SchoolID   string `json:"school_id,omitempty"`
	DistrictID string `json:"district_id,omitempty"`
	StateCode  string `json:"state_code,omitempty"`

	MeetingType MeetingType            `json:"meeting_type"`
	PlanType    rulepacktypes.PlanType `json:"plan_type"`
	Status      MeetingStatus          `json:"status"`

	IsContinued              bool       `json:"is_continued"`
	ContinuedFromMeetingID   string     `json:"continued_from_meeting_id,omitempty"`
	ContinuedFromScheduledAt *time.Time `json:"continued_from_scheduled_at,omitempty"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	HeldAt      *time.Time `json:"held_at,omitempty"`

	ParentRecording bool `json:"parent_recording"`
	StaffRecording  bool `json:"staff_recording"`

	ConsentStatus                   ConsentStatus `json:"consent_status,omitempty"`
	NoticeWaiverSigned              *bool         `json:"notice_waiver_signed,omitempty"`
	MutualAgreementForContinuedDate *time.Time    `json:"mutual_agreement_for_continued_date,omitempty"`

	Evidence []MeetingEvidence `json:"evidence,omitempty"`

	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ClosedByUserID  string     `json:"closed_by_user_id,omitempty"`
	RulePackID      string     `json:"rule_pack_id,omitempty"`
	RulePackVersion int        `json:"rule_pack_version,omitempty"`
}

// HasEvidence reports whether the meeting carries evidence of the given type.
func (m Meeting) HasEvidence(evidenceTypeKey string) bool {
	for _, e := range m.Evidence {
		if e.EvidenceTypeKey == evidenceTypeKey {
			return true
		}
	}
	return false
}

func ValidStatus(s MeetingStatus) bool {
	switch s {
	case MeetingScheduled, MeetingHeld, MeetingClosed, MeetingCanceled:
		return true
	}
	return false
}
