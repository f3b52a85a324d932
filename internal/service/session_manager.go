package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/logger"
	"github.com/ledgerline/ledgerlog/internal/pkg/metrics"
)

const (
	DefaultSessionTimeout = 24 * time.Hour
	DefaultSessionSweep   = time.Hour
)

// SessionInfo is the request-side detail recorded when a session starts.
type SessionInfo struct {
	SessionID string
	UserType  string
	IPAddress string
	UserAgent string
}

// SessionManager is a process-local registry of user sessions. Nothing here is persisted;
// a restart forgets every session.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	timeout         time.Duration
	sweepEvery      time.Duration
	concurrentLimit int
	clock           clockwork.Clock
}

func NewSessionManager(timeout, sweepEvery time.Duration, concurrentLimit int, clock clockwork.Clock) *SessionManager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if sweepEvery <= 0 {
		sweepEvery = DefaultSessionSweep
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionManager{
		sessions:        make(map[string]*model.Session),
		timeout:         timeout,
		sweepEvery:      sweepEvery,
		concurrentLimit: concurrentLimit,
		clock:           clock,
	}
}

func (m *SessionManager) Start(ctx context.Context) {
	go m.Run(ctx)
}

// Run sweeps expired sessions on every tick until ctx is cancelled.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := m.Sweep(); n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

func (m *SessionManager) expired(s *model.Session, now time.Time) bool {
	return now.Sub(s.LastActivity) > m.timeout
}

func (m *SessionManager) CreateSession(username string, info SessionInfo) string {
	id := info.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	now := m.clock.Now().UTC()

	m.mu.Lock()
	m.sessions[id] = &model.Session{
		SessionID:    id,
		Username:     username,
		UserType:     info.UserType,
		IPAddress:    info.IPAddress,
		UserAgent:    info.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}
	total := len(m.sessions)
	active := m.activeLocked(now)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(total))
	if m.concurrentLimit > 0 && active > m.concurrentLimit {
		logger.Warn("concurrent session threshold exceeded", "active", active, "threshold", m.concurrentLimit)
	}
	return id
}

// GetSession returns a copy of the session, refreshing its last activity. A session past
// its inactivity timeout is removed and reported as missing.
func (m *SessionManager) GetSession(id string) (*model.Session, bool) {
	now := m.clock.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.expired(s, now) {
		delete(m.sessions, id)
		return nil, false
	}
	s.LastActivity = now
	cp := *s
	return &cp, true
}

// UpdateSessionActivity records the latest tracked activity; unknown ids are ignored.
func (m *SessionManager) UpdateSessionActivity(id, activityType, description string) bool {
	if id == "" {
		return false
	}
	now := m.clock.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || m.expired(s, now) {
		return false
	}
	s.LastActivity = now
	s.LastActivityType = activityType
	s.LastActivityDescription = description
	return true
}

func (m *SessionManager) EndSession(id string) bool {
	now := m.clock.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.IsActive = false
	s.EndedAt = &now
	return true
}

func (m *SessionManager) GetUserSessions(username string) []model.Session {
	now := m.clock.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Session
	for _, s := range m.sessions {
		if s.Username == username && !m.expired(s, now) {
			out = append(out, *s)
		}
	}
	sortSessions(out)
	return out
}

func (m *SessionManager) GetAllActiveSessions() []model.Session {
	now := m.clock.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Session
	for _, s := range m.sessions {
		if s.IsActive && !m.expired(s, now) {
			out = append(out, *s)
		}
	}
	sortSessions(out)
	return out
}

func (m *SessionManager) GetSessionStats() model.SessionStats {
	now := m.clock.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	st := model.SessionStats{Total: len(m.sessions)}
	for _, s := range m.sessions {
		switch {
		case m.expired(s, now):
			st.Expired++
		case !s.IsActive:
			st.Inactive++
		default:
			st.Active++
		}
	}
	return st
}

// Sweep removes every session past its inactivity timeout and returns how many went.
func (m *SessionManager) Sweep() int {
	now := m.clock.Now().UTC()
	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	total := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(total))
	return removed
}

func (m *SessionManager) activeLocked(now time.Time) int {
	n := 0
	for _, s := range m.sessions {
		if s.IsActive && !m.expired(s, now) {
			n++
		}
	}
	return n
}

func sortSessions(s []model.Session) {
	sort.Slice(s, func(i, j int) bool { return s[i].LastActivity.After(s[j].LastActivity) })
}
