package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/harborlight-ed/harborlight/modules/meetings/domain/ports"
	"github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
	"github.com/harborlight-ed/harborlight/pkg/httperr"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type MeetingPGStore struct {
	pool pgBeginner
}

func NewMeetingPGStore(pool pgBeginner) ports.MeetingStore {
	return &MeetingPGStore{pool: pool}
}

func (s *MeetingPGStore) begin(ctx context.Context, tenantID string) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, err
	}
	return tx, nil
}

const meetingColumns = `
	  meeting_id::text,
	  student_id::text,
	  coalesce(school_id::text, ''),
	  coalesce(district_id::text, ''),
	  coalesce(state_code, ''),
	  meeting_type,
	  plan_type,
	  status,
	  is_continued,
	  coalesce(continued_from_meeting_id::text, ''),
	  continued_from_scheduled_at,
	  scheduled_at,
	  held_at,
	  parent_recording,
	  staff_recording,
	  coalesce(consent_status, ''),
	  notice_waiver_signed,
	  mutual_agreement_for_continued_date,
	  closed_at,
	  coalesce(closed_by_user_id, ''),
	  coalesce(rule_pack_id::text, ''),
	  coalesce(rule_pack_version, 0)`

func scanMeeting(row pgx.Row) (types.Meeting, error) {
	var m types.Meeting
	err := row.Scan(
		&m.ID, &m.StudentID, &m.SchoolID, &m.DistrictID, &m.StateCode,
		&m.MeetingType, &m.PlanType, &m.Status,
		&m.IsContinued, &m.ContinuedFromMeetingID, &m.ContinuedFromScheduledAt,
		&m.ScheduledAt, &m.HeldAt,
		&m.ParentRecording, &m.StaffRecording,
		&m.ConsentStatus, &m.NoticeWaiverSigned, &m.MutualAgreementForContinuedDate,
		&m.ClosedAt, &m.ClosedByUserID, &m.RulePackID, &m.RulePackVersion,
	)
	if err != nil {
		return types.Meeting{}, err
	}
	return m, nil
}

func loadEvidence(ctx context.Context, tx pgx.Tx, tenantID string, meetingID string) ([]types.MeetingEvidence, error) {
	rows, err := tx.Query(ctx, `
	SELECT
	  evidence_type_key,
	  coalesce(note, '')
	FROM meetings.meeting_evidence
	WHERE tenant_id = $1::uuid AND meeting_id = $2::uuid
	ORDER BY evidence_type_key ASC
	`, tenantID, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.MeetingEvidence
	for rows.Next() {
		var e types.MeetingEvidence
		if err := rows.Scan(&e.EvidenceTypeKey, &e.Note); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *MeetingPGStore) GetMeeting(ctx context.Context, tenantID string, meetingID string) (types.Meeting, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Meeting{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	m, err := scanMeeting(tx.QueryRow(ctx, `
	SELECT`+meetingColumns+`
	FROM meetings.meetings
	WHERE tenant_id = $1::uuid AND meeting_id = $2::uuid
	`, tenantID, meetingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Meeting{}, httperr.NewNotFound("meeting not found")
		}
		return types.Meeting{}, err
	}

	m.Evidence, err = loadEvidence(ctx, tx, tenantID, meetingID)
	if err != nil {
		return types.Meeting{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Meeting{}, err
	}
	return m, nil
}

func (s *MeetingPGStore) UpdateStatus(ctx context.Context, tenantID string, meetingID string, from, to types.MeetingStatus, heldAt *time.Time) (types.Meeting, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Meeting{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	// The status predicate is the optimistic guard: a concurrent
	// transition makes this a zero-row update.
	tag, err := tx.Exec(ctx, `
	UPDATE meetings.meetings
	SET status = $4::text,
	    held_at = coalesce($5::timestamptz, held_at)
	WHERE tenant_id = $1::uuid AND meeting_id = $2::uuid AND status = $3::text
	`, tenantID, meetingID, string(from), string(to), heldAt)
	if err != nil {
		return types.Meeting{}, err
	}
	if tag.RowsAffected() == 0 {
		return types.Meeting{}, s.staleOrMissing(ctx, tx, tenantID, meetingID)
	}

	m, err := scanMeeting(tx.QueryRow(ctx, `
	SELECT`+meetingColumns+`
	FROM meetings.meetings
	WHERE tenant_id = $1::uuid AND meeting_id = $2::uuid
	`, tenantID, meetingID))
	if err != nil {
		return types.Meeting{}, err
	}
	m.Evidence, err = loadEvidence(ctx, tx, tenantID, meetingID)
	if err != nil {
		return types.Meeting{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Meeting{}, err
	}
	return m, nil
}

func (s *MeetingPGStore) CloseMeeting(ctx context.Context, tenantID string, meetingID string, from types.MeetingStatus, stamp ports.CloseStamp) (types.Meeting, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Meeting{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var packID any
	var packVersion any
	if stamp.RulePackID != "" {
		packID = stamp.RulePackID
		packVersion = stamp.RulePackVersion
	}

	tag, err := tx.Exec(ctx, `
	UPDATE meetings.meetings
	SET status = $4::text,
	    closed_at = $5::timestamptz,
	    closed_by_user_id = $6::text,
	    rule_pack_id = $7::uuid,
	    rule_pack_version = $8::int
	WHERE tenant_id = $1::uuid AND meeting_id = $2::uuid AND status = $3::text
	`, tenantID, meetingID, string(from), string(types.MeetingClosed),
		stamp.ClosedAt, stamp.ClosedByUserID, packID, packVersion)
	if err != nil {
		return types.Meeting{}, err
	}
	if tag.RowsAffected() == 0 {
		return types.Meeting{}, s.staleOrMissing(ctx, tx, tenantID, meetingID)
	}

	// Rerunnable by event_id: a retried close of the same meeting on the
	// same day lands on the conflict path.
	if _, err := tx.Exec(ctx, `
	INSERT INTO meetings.meeting_close_events (
	  event_id, tenant_id, meeting_id, closed_at, closed_by_user_id, rule_pack_id, rule_pack_version
	) VALUES ($1::uuid, $2::uuid, $3::uuid, $4::timestamptz, $5::text, $6::uuid, $7::int)
	ON CONFLICT (event_id) DO NOTHING
	`, stamp.AuditEventID, tenantID, meetingID, stamp.ClosedAt, stamp.ClosedByUserID, packID, packVersion); err != nil {
		return types.Meeting{}, err
	}

	m, err := scanMeeting(tx.QueryRow(ctx, `
	SELECT`+meetingColumns+`
	FROM meetings.meetings
	WHERE tenant_id = $1::uuid AND meeting_id = $2::uuid
	`, tenantID, meetingID))
	if err != nil {
		return types.Meeting{}, err
	}
	m.Evidence, err = loadEvidence(ctx, tx, tenantID, meetingID)
	if err != nil {
		return types.Meeting{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Meeting{}, err
	}
	return m, nil
}

func (s *MeetingPGStore) staleOrMissing(ctx context.Context, tx pgx.Tx, tenantID string, meetingID string) error {
	var current string
	err := tx.QueryRow(ctx, `
	SELECT status FROM meetings.meetings
	WHERE tenant_id = $1::uuid AND meeting_id = $2::uuid
	`, tenantID, meetingID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return httperr.NewNotFound("meeting not found")
	}
	if err != nil {
		return err
	}
	return httperr.NewConflict("meeting status changed, now " + current)
}
