package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayasaka/discbox/internal/domain/track"
)

const (
	owner    = snowflake.ID(100)
	stranger = snowflake.ID(200)
)

func mkResults(n int) []*track.Track {
	ts := make([]*track.Track, n)
	for i := range ts {
		ts[i] = &track.Track{
			Title: fmt.Sprintf("result %d", i+1),
			URL:   fmt.Sprintf("https://www.youtube.com/watch?v=%011d", i),
		}
	}
	return ts
}

func TestManager_PaginationWalk(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(owner, "test query", mkResults(7))

	require.Equal(t, 3, s.PageCount())
	require.Len(t, s.Page(), 3)
	assert.Equal(t, "result 1", s.Page()[0].Title)

	s, err := m.Paginate(s.ID, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentPage)
	assert.Equal(t, "result 4", s.Page()[0].Title)

	s, err = m.Paginate(s.ID, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentPage)
	require.Len(t, s.Page(), 1)
	assert.Equal(t, "result 7", s.Page()[0].Title)

	_, err = m.Paginate(s.ID, owner, 1)
	require.ErrorIs(t, err, ErrNoMorePages)

	// Failed pagination must not move the page.
	s, err = m.Get(s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentPage)

	s, err = m.Paginate(s.ID, owner, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentPage)

	_, err = m.Paginate(s.ID, owner, -2)
	require.ErrorIs(t, err, ErrNoMorePages)
}

func TestManager_CreateCapsResults(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(owner, "broad query", mkResults(40))
	assert.Len(t, s.Results, MaxResults)
	assert.Equal(t, 5, s.PageCount())
}

func TestManager_OwnerGating(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(owner, "q", mkResults(4))

	_, err := m.Paginate(s.ID, stranger, 1)
	assert.ErrorIs(t, err, ErrSessionUnauthorized)

	_, err = m.Select(s.ID, stranger, 0)
	assert.ErrorIs(t, err, ErrSessionUnauthorized)

	err = m.Cancel(s.ID, stranger)
	assert.ErrorIs(t, err, ErrSessionUnauthorized)

	// The owner can still use the session afterwards.
	_, err = m.Get(s.ID, owner)
	assert.NoError(t, err)
}

func TestManager_SelectIsSingleUse(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(owner, "q", mkResults(5))

	got, err := m.Select(s.ID, owner, 3)
	require.NoError(t, err)
	assert.Equal(t, "result 4", got.Title)

	_, err = m.Select(s.ID, owner, 3)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestManager_SelectValidatesIndex(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(owner, "q", mkResults(3))

	_, err := m.Select(s.ID, owner, -1)
	assert.ErrorIs(t, err, ErrInvalidSelection)

	_, err = m.Select(s.ID, owner, 3)
	assert.ErrorIs(t, err, ErrInvalidSelection)

	// The session survives a bad index.
	_, err = m.Get(s.ID, owner)
	assert.NoError(t, err)
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(owner, "q", mkResults(3))

	require.NoError(t, m.Cancel(s.ID, owner))

	_, err := m.Get(s.ID, owner)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestManager_Expiry(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	s := m.Create(owner, "q", mkResults(3))

	time.Sleep(30 * time.Millisecond)

	_, err := m.Get(s.ID, owner)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = m.Select(s.ID, owner, 0)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestManager_SweepExpired(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	m.Create(owner, "a", mkResults(2))
	m.Create(stranger, "b", mkResults(2))

	time.Sleep(30 * time.Millisecond)
	kept := m.Create(owner, "c", mkResults(2))

	assert.Equal(t, 2, m.SweepExpired())

	_, err := m.Get(kept.ID, owner)
	assert.NoError(t, err)
}

func TestManager_DistinctIDs(t *testing.T) {
	m := NewManager(time.Minute)
	a := m.Create(owner, "q", mkResults(1))
	b := m.Create(owner, "q", mkResults(1))
	assert.NotEqual(t, a.ID, b.ID)
}
