package server

import (
	"context"
	"sort"
	"sync"
	"time"

	meetingports "github.com/harborlight-ed/harborlight/modules/meetings/domain/ports"
	meetingtypes "github.com/harborlight-ed/harborlight/modules/meetings/domain/types"
	packports "github.com/harborlight-ed/harborlight/modules/rulepacks/domain/ports"
	packtypes "github.com/harborlight-ed/harborlight/modules/rulepacks/domain/types"
	"github.com/harborlight-ed/harborlight/pkg/httperr"
	"github.com/harborlight-ed/harborlight/pkg/uuidv7"
)

// memoryRulePackStore backs the server when no database is configured.
// Good enough for local development and handler tests; state is per process.
type memoryRulePackStore struct {
	mu    sync.Mutex
	packs map[string]map[string]packtypes.RulePack // tenant -> pack id -> pack
}

func newMemoryRulePackStore() *memoryRulePackStore {
	return &memoryRulePackStore{packs: map[string]map[string]packtypes.RulePack{}}
}

var _ packports.RulePackStore = (*memoryRulePackStore)(nil)

func (s *memoryRulePackStore) FindActivePack(_ context.Context, tenantID string, scope packtypes.ScopeRef, planType packtypes.PlanType, asOf time.Time) (packtypes.RulePack, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pack := range s.packs[tenantID] {
		if pack.IsActive && pack.ScopeType == scope.Type && pack.ScopeID == scope.ID && pack.PlanType == planType && pack.EffectiveAt(asOf) {
			return pack, true, nil
		}
	}
	return packtypes.RulePack{}, false, nil
}

func (s *memoryRulePackStore) GetPack(_ context.Context, tenantID string, packID string) (packtypes.RulePack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pack, ok := s.packs[tenantID][packID]
	if !ok {
		return packtypes.RulePack{}, httperr.NewNotFound("rule pack not found")
	}
	return pack, nil
}

func (s *memoryRulePackStore) ListPacks(_ context.Context, tenantID string, scope packtypes.ScopeRef) ([]packtypes.RulePack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []packtypes.RulePack
	for _, pack := range s.packs[tenantID] {
		if scope.Type != "" && pack.ScopeType != scope.Type {
			continue
		}
		if scope.ID != "" && pack.ScopeID != scope.ID {
			continue
		}
		out = append(out, pack)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScopeID != out[j].ScopeID {
			return out[i].ScopeID < out[j].ScopeID
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (s *memoryRulePackStore) CreatePack(_ context.Context, tenantID string, pack packtypes.RulePack) (packtypes.RulePack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packs[tenantID] == nil {
		s.packs[tenantID] = map[string]packtypes.RulePack{}
	}
	version := 0
	for _, existing := range s.packs[tenantID] {
		if existing.ScopeType == pack.ScopeType && existing.ScopeID == pack.ScopeID && existing.PlanType == pack.PlanType && existing.Version > version {
			version = existing.Version
		}
	}
	id, err := uuidv7.NewString()
	if err != nil {
		return packtypes.RulePack{}, err
	}
	pack.ID = id
	pack.Version = version + 1
	pack.IsActive = false
	s.packs[tenantID][pack.ID] = pack
	return pack, nil
}

func (s *memoryRulePackStore) ActivatePack(_ context.Context, tenantID string, packID string) (packtypes.RulePack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pack, ok := s.packs[tenantID][packID]
	if !ok {
		return packtypes.RulePack{}, httperr.NewNotFound("rule pack not found")
	}
	for id, sibling := range s.packs[tenantID] {
		if id == packID || !sibling.IsActive {
			continue
		}
		if sibling.ScopeType == pack.ScopeType && sibling.ScopeID == pack.ScopeID && sibling.PlanType == pack.PlanType {
			sibling.IsActive = false
			s.packs[tenantID][id] = sibling
		}
	}
	pack.IsActive = true
	s.packs[tenantID][packID] = pack
	return pack, nil
}

func (s *memoryRulePackStore) DeactivatePack(_ context.Context, tenantID string, packID string) (packtypes.RulePack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pack, ok := s.packs[tenantID][packID]
	if !ok {
		return packtypes.RulePack{}, httperr.NewNotFound("rule pack not found")
	}
	pack.IsActive = false
	s.packs[tenantID][packID] = pack
	return pack, nil
}

type memoryMeetingStore struct {
	mu       sync.Mutex
	meetings map[string]map[string]meetingtypes.Meeting // tenant -> meeting id -> meeting
}

func newMemoryMeetingStore() *memoryMeetingStore {
	return &memoryMeetingStore{meetings: map[string]map[string]meetingtypes.Meeting{}}
}

var _ meetingports.MeetingStore = (*memoryMeetingStore)(nil)

// put seeds a meeting, used by the dev fixtures and handler tests.
func (s *memoryMeetingStore) put(tenantID string, m meetingtypes.Meeting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meetings[tenantID] == nil {
		s.meetings[tenantID] = map[string]meetingtypes.Meeting{}
	}
	s.meetings[tenantID][m.ID] = m
}

func (s *memoryMeetingStore) GetMeeting(_ context.Context, tenantID string, meetingID string) (meetingtypes.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[tenantID][meetingID]
	if !ok {
		return meetingtypes.Meeting{}, httperr.NewNotFound("meeting not found")
	}
	return m, nil
}

func (s *memoryMeetingStore) UpdateStatus(_ context.Context, tenantID string, meetingID string, from, to meetingtypes.MeetingStatus, heldAt *time.Time) (meetingtypes.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[tenantID][meetingID]
	if !ok {
		return meetingtypes.Meeting{}, httperr.NewNotFound("meeting not found")
	}
	if m.Status != from {
		return meetingtypes.Meeting{}, httperr.NewConflict("meeting status changed, now " + string(m.Status))
	}
	m.Status = to
	if heldAt != nil {
		m.HeldAt = heldAt
	}
	s.meetings[tenantID][meetingID] = m
	return m, nil
}

func (s *memoryMeetingStore) CloseMeeting(_ context.Context, tenantID string, meetingID string, from meetingtypes.MeetingStatus, stamp meetingports.CloseStamp) (meetingtypes.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[tenantID][meetingID]
	if !ok {
		return meetingtypes.Meeting{}, httperr.NewNotFound("meeting not found")
	}
	if m.Status != from {
		return meetingtypes.Meeting{}, httperr.NewConflict("meeting status changed, now " + string(m.Status))
	}
	m.Status = meetingtypes.MeetingClosed
	closedAt := stamp.ClosedAt
	m.ClosedAt = &closedAt
	m.ClosedByUserID = stamp.ClosedByUserID
	m.RulePackID = stamp.RulePackID
	m.RulePackVersion = stamp.RulePackVersion
	s.meetings[tenantID][meetingID] = m
	return m, nil
}
