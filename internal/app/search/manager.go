// Package search manages interactive, paginated search result sessions.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/domain/track"
)

// Errors
var (
	ErrSessionExpired      = errors.New("search session expired")
	ErrSessionUnauthorized = errors.New("search session belongs to another user")
	ErrNoMorePages         = errors.New("no more pages")
	ErrInvalidSelection    = errors.New("invalid selection")
)

const (
	// PageSize is the number of results shown per page.
	PageSize = 3
	// MaxResults caps how many results one session holds.
	MaxResults = 15

	sweepInterval = 30 * time.Second
)

// Session is one user's paginated result set. Only the owner may act on
// it, and a successful selection consumes it.
type Session struct {
	ID          string
	OwnerID     snowflake.ID
	Query       string
	Results     []*track.Track
	CurrentPage int
	CreatedAt   time.Time
}

// PageCount returns the number of pages.
func (s *Session) PageCount() int {
	return (len(s.Results) + PageSize - 1) / PageSize
}

// Page returns the results of the current page.
func (s *Session) Page() []*track.Track {
	start := s.CurrentPage * PageSize
	if start >= len(s.Results) {
		return nil
	}
	end := start + PageSize
	if end > len(s.Results) {
		end = len(s.Results)
	}
	return s.Results[start:end]
}

// Manager owns all live sessions. Expired sessions are reclaimed both by
// the periodic sweep and opportunistically after selections.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewManager creates a session manager.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create stores a new session and returns a snapshot of it. Results
// beyond MaxResults are dropped.
func (m *Manager) Create(ownerID snowflake.ID, query string, results []*track.Track) *Session {
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := fmt.Sprintf("%s_%d", ownerID, time.Now().UnixMilli())
	if _, taken := m.sessions[id]; taken {
		id = id + "_" + uuid.NewString()[:8]
	}

	s := &Session{
		ID:        id,
		OwnerID:   ownerID,
		Query:     query,
		Results:   results,
		CreatedAt: time.Now(),
	}
	m.sessions[id] = s
	return snapshot(s)
}

// Get returns a snapshot of a live session owned by the caller.
func (m *Manager) Get(id string, callerID snowflake.ID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.liveLocked(id, callerID)
	if err != nil {
		return nil, err
	}
	return snapshot(s), nil
}

// Paginate moves the current page by delta pages. An out-of-range request
// fails and leaves the page untouched.
func (m *Manager) Paginate(id string, callerID snowflake.ID, delta int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.liveLocked(id, callerID)
	if err != nil {
		return nil, err
	}

	next := s.CurrentPage + delta
	if next < 0 || next >= s.PageCount() {
		return nil, errors.Wrapf(ErrNoMorePages, "page %d of %d", next+1, s.PageCount())
	}
	s.CurrentPage = next
	return snapshot(s), nil
}

// Select consumes the session and returns the result at the given
// 0-based index into the full result list. The session is gone once a
// track has been handed out, so a stale button press cannot double-queue.
func (m *Manager) Select(id string, callerID snowflake.ID, index int) (*track.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.liveLocked(id, callerID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.Results) {
		return nil, errors.Wrapf(ErrInvalidSelection, "index %d of %d results", index, len(s.Results))
	}

	t := s.Results[index]
	delete(m.sessions, id)
	m.sweepLocked()
	return t, nil
}

// Cancel removes the session.
func (m *Manager) Cancel(id string, callerID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.liveLocked(id, callerID); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

// SweepExpired drops every expired session and returns how many were
// removed.
func (m *Manager) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

// Run sweeps periodically until the context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepExpired(); n > 0 {
				zlog.Debug().Msgf("search: swept expired sessions: count=%d", n)
			}
		}
	}
}

// liveLocked fetches a session, enforcing expiry and ownership.
// Must be called with lock held.
func (m *Manager) liveLocked(id string, callerID snowflake.ID) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrSessionExpired, "session %s", id)
	}
	if time.Since(s.CreatedAt) > m.ttl {
		delete(m.sessions, id)
		return nil, errors.Wrapf(ErrSessionExpired, "session %s", id)
	}
	if s.OwnerID != callerID {
		return nil, errors.Wrapf(ErrSessionUnauthorized, "session %s", id)
	}
	return s, nil
}

func (m *Manager) sweepLocked() int {
	removed := 0
	for id, s := range m.sessions {
		if time.Since(s.CreatedAt) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func snapshot(s *Session) *Session {
	cp := *s
	cp.Results = make([]*track.Track, len(s.Results))
	copy(cp.Results, s.Results)
	return &cp
}
