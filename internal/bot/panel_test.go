package bot

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayasaka/discbox/internal/app/playback"
	"github.com/hayasaka/discbox/internal/app/player"
	"github.com/hayasaka/discbox/internal/domain/track"
)

func TestPanelText(t *testing.T) {
	cur := sampleTrack("current", time.Minute)

	t.Run("no queue", func(t *testing.T) {
		got := panelText(nil)
		assert.Contains(t, got, "## Control panel")
		assert.Contains(t, got, "Nothing is playing")
	})

	t.Run("idle queue", func(t *testing.T) {
		got := panelText(&player.QueueView{State: playback.StateIdle, Volume: 50})
		assert.Contains(t, got, "Nothing is playing")
	})

	t.Run("playing with upcoming", func(t *testing.T) {
		next := sampleTrack("next", time.Minute)
		view := &player.QueueView{
			State:   playback.StatePlaying,
			Current: &cur,
			Tracks:  []track.Track{cur, next},
			Volume:  70,
			Loop:    true,
		}
		got := panelText(view)

		assert.Contains(t, got, "Now playing: [current]")
		assert.Contains(t, got, "Requested by alice")
		assert.Contains(t, got, "1 upcoming")
		assert.Contains(t, got, "Volume 70%")
		assert.Contains(t, got, "Loop on")
	})

	t.Run("paused marker", func(t *testing.T) {
		view := &player.QueueView{
			State:   playback.StatePaused,
			Current: &cur,
			Tracks:  []track.Track{cur},
			Volume:  50,
		}
		got := panelText(view)

		assert.Contains(t, got, "Paused: [current]")
		assert.Contains(t, got, "0 upcoming")
		assert.NotContains(t, got, "Loop on")
	})
}

func TestPanelStore(t *testing.T) {
	const (
		guildA = snowflake.ID(1)
		guildB = snowflake.ID(2)
	)
	s := newPanelStore()

	_, ok := s.unbind(guildA)
	assert.False(t, ok)

	_, replaced := s.bind(guildA, panelBinding{channelID: 10, messageID: 100})
	assert.False(t, replaced)

	// Rebinding hands back the old panel so it can be deleted.
	prev, replaced := s.bind(guildA, panelBinding{channelID: 11, messageID: 101})
	require.True(t, replaced)
	assert.Equal(t, snowflake.ID(10), prev.channelID)
	assert.Equal(t, snowflake.ID(100), prev.messageID)

	s.bind(guildB, panelBinding{channelID: 20, messageID: 200})
	all := s.all()
	require.Len(t, all, 2)
	assert.Equal(t, snowflake.ID(11), all[guildA].channelID)

	bd, ok := s.unbind(guildA)
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(101), bd.messageID)
	assert.Len(t, s.all(), 1)
}
