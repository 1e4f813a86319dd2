package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildID   = snowflake.ID(1)
	channelID = snowflake.ID(2)
)

type fakeOccupancy struct {
	mu     sync.Mutex
	humans int
}

func (f *fakeOccupancy) HumanCount(_, _ snowflake.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.humans
}

func (f *fakeOccupancy) set(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.humans = n
}

type fakeStopper struct {
	mu        sync.Mutex
	destroyed []snowflake.ID
}

func (f *fakeStopper) Destroy(_ context.Context, guildID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, guildID)
	return nil
}

func (f *fakeStopper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.destroyed)
}

func TestReaper_DestroysAfterGrace(t *testing.T) {
	occ := &fakeOccupancy{}
	st := &fakeStopper{}
	r := New(occ, st, 10*time.Millisecond)

	r.Observe(guildID, channelID)

	require.Eventually(t, func() bool { return st.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, guildID, st.destroyed[0])
}

func TestReaper_ReturningListenerDisarms(t *testing.T) {
	occ := &fakeOccupancy{}
	st := &fakeStopper{}
	r := New(occ, st, 50*time.Millisecond)

	r.Observe(guildID, channelID)

	occ.set(1)
	r.Observe(guildID, channelID)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, st.count())
}

func TestReaper_RecheckAtExpiry(t *testing.T) {
	occ := &fakeOccupancy{}
	st := &fakeStopper{}
	r := New(occ, st, 20*time.Millisecond)

	r.Observe(guildID, channelID)

	// Someone joins but no voice event reaches the reaper before expiry.
	occ.set(1)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, st.count())

	// The timer is spent. Emptying the channel again arms a fresh one.
	occ.set(0)
	r.Observe(guildID, channelID)
	require.Eventually(t, func() bool { return st.count() == 1 }, time.Second, time.Millisecond)
}

func TestReaper_ObserveDoesNotRestartTimer(t *testing.T) {
	occ := &fakeOccupancy{}
	st := &fakeStopper{}
	r := New(occ, st, 50*time.Millisecond)

	// Repeated empty-channel events must not push the deadline out.
	start := time.Now()
	r.Observe(guildID, channelID)
	for i := 0; i < 4; i++ {
		time.Sleep(15 * time.Millisecond)
		r.Observe(guildID, channelID)
	}

	require.Eventually(t, func() bool { return st.count() == 1 }, time.Second, time.Millisecond)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestReaper_OccupiedChannelNeverArms(t *testing.T) {
	occ := &fakeOccupancy{humans: 2}
	st := &fakeStopper{}
	r := New(occ, st, 10*time.Millisecond)

	r.Observe(guildID, channelID)

	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, st.count())
}

func TestReaper_CancelDisarms(t *testing.T) {
	occ := &fakeOccupancy{}
	st := &fakeStopper{}
	r := New(occ, st, 20*time.Millisecond)

	r.Observe(guildID, channelID)
	r.Cancel(guildID)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, st.count())
}

func TestReaper_IndependentGuilds(t *testing.T) {
	occ := &fakeOccupancy{}
	st := &fakeStopper{}
	r := New(occ, st, 10*time.Millisecond)

	other := snowflake.ID(9)
	r.Observe(guildID, channelID)
	r.Observe(other, channelID)
	r.Cancel(other)

	require.Eventually(t, func() bool { return st.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, guildID, st.destroyed[0])
}
