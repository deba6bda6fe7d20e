package ports

import (
	"context"
	"time"

	"github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
)

// CloseStamp is the audit record written with the HELD -> CLOSED transition.
// RulePackID is empty and RulePackVersion zero when no pack resolved and the
// built-in defaults governed the decision.
type CloseStamp struct {
	ClosedAt        time.Time
	ClosedByUserID  string
	RulePackID      string
	RulePackVersion int
	AuditEventID    string
}

type MeetingStore interface {
	// GetMeeting loads the meeting snapshot with evidence attached.
	GetMeeting(ctx context.Context, tenantID string, meetingID string) (types.Meeting, error)
	// UpdateStatus moves the meeting from `from` to `to`, failing if the
	// stored status no longer equals `from`. heldAt is set on the HELD
	// transition and nil otherwise.
	UpdateStatus(ctx context.Context, tenantID string, meetingID string, from, to types.MeetingStatus, heldAt *time.Time) (types.Meeting, error)
	// CloseMeeting writes CLOSED plus the audit stamp in one transaction.
	CloseMeeting(ctx context.Context, tenantID string, meetingID string, from types.MeetingStatus, stamp CloseStamp) (types.Meeting, error)
}
