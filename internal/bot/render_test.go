package bot

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/hayasaka/discbox/internal/app/playback"
	"github.com/hayasaka/discbox/internal/app/player"
	"github.com/hayasaka/discbox/internal/app/resolver"
	"github.com/hayasaka/discbox/internal/app/search"
	"github.com/hayasaka/discbox/internal/domain/track"
)

func sampleTrack(title string, dur time.Duration) track.Track {
	return track.Track{
		Title:       title,
		URL:         "https://youtube.com/watch?v=" + title,
		Duration:    dur,
		Uploader:    "Uploader",
		RequestedBy: track.Requester{ID: 1, Name: "alice"},
	}
}

func TestPlayText(t *testing.T) {
	t.Run("single track", func(t *testing.T) {
		tr := sampleTrack("abc", 3*time.Minute)
		got := playText(&player.PlayResult{Tracks: []*track.Track{&tr}, Position: 4})

		assert.Contains(t, got, "**Queued**")
		assert.Contains(t, got, "[abc](https://youtube.com/watch?v=abc)")
		assert.Contains(t, got, "`3:00`")
		assert.Contains(t, got, "Position 4")
		assert.Contains(t, got, "requested by alice")
	})

	t.Run("playlist with skips", func(t *testing.T) {
		a := sampleTrack("a", time.Minute)
		b := sampleTrack("b", time.Minute)
		got := playText(&player.PlayResult{Tracks: []*track.Track{&a, &b}, Position: 1, Skipped: 3})

		assert.Contains(t, got, "Added 2 tracks starting at position 1")
		assert.Contains(t, got, "Skipped 3 track(s)")
	})

	t.Run("playlist without skips omits the skip note", func(t *testing.T) {
		a := sampleTrack("a", time.Minute)
		b := sampleTrack("b", time.Minute)
		got := playText(&player.PlayResult{Tracks: []*track.Track{&a, &b}, Position: 1})

		assert.NotContains(t, got, "Skipped")
	})
}

func TestNowPlayingText(t *testing.T) {
	tr := sampleTrack("abc", 90*time.Second)

	got := nowPlayingText(&tr, playback.StatePlaying)
	assert.Contains(t, got, "**Now playing**")
	assert.Contains(t, got, "`1:30`")
	assert.Contains(t, got, "by Uploader")
	assert.Contains(t, got, "Requested by alice")

	got = nowPlayingText(&tr, playback.StatePaused)
	assert.Contains(t, got, "**Paused**")
}

func TestNowPlayingText_LiveTrack(t *testing.T) {
	tr := sampleTrack("stream", 0)
	got := nowPlayingText(&tr, playback.StatePlaying)
	assert.Contains(t, got, "`LIVE`")
}

func TestQueueText(t *testing.T) {
	cur := sampleTrack("current", time.Minute)

	t.Run("current plus upcoming", func(t *testing.T) {
		a := sampleTrack("next", time.Minute)
		view := &player.QueueView{
			State:   playback.StatePlaying,
			Current: &cur,
			Tracks:  []track.Track{cur, a},
			Volume:  50,
		}
		got := queueText(view)

		assert.Contains(t, got, "Now playing: [current]")
		assert.Contains(t, got, "`2.` [next]")
		assert.Contains(t, got, "Volume 50%")
		assert.NotContains(t, got, "Loop on")
	})

	t.Run("idle queue numbers from one", func(t *testing.T) {
		a := sampleTrack("first", time.Minute)
		view := &player.QueueView{
			State:  playback.StateIdle,
			Tracks: []track.Track{a},
			Volume: 50,
		}
		got := queueText(view)

		assert.NotContains(t, got, "Now playing")
		assert.Contains(t, got, "`1.` [first]")
	})

	t.Run("empty upcoming", func(t *testing.T) {
		view := &player.QueueView{
			State:   playback.StatePaused,
			Current: &cur,
			Tracks:  []track.Track{cur},
			Volume:  70,
			Loop:    true,
		}
		got := queueText(view)

		assert.Contains(t, got, "Paused: [current]")
		assert.Contains(t, got, "No upcoming tracks.")
		assert.Contains(t, got, "Volume 70%")
		assert.Contains(t, got, "Loop on")
	})

	t.Run("long queue is truncated", func(t *testing.T) {
		tracks := []track.Track{cur}
		for i := 0; i < 14; i++ {
			tracks = append(tracks, sampleTrack("t", time.Minute))
		}
		view := &player.QueueView{
			State:   playback.StatePlaying,
			Current: &cur,
			Tracks:  tracks,
			Volume:  50,
		}
		got := queueText(view)

		assert.Contains(t, got, "`11.`")
		assert.NotContains(t, got, "`12.`")
		assert.Contains(t, got, "... and 4 more")
	})
}

func TestSearchPageText(t *testing.T) {
	results := make([]*track.Track, 5)
	for i := range results {
		tr := sampleTrack(string(rune('a'+i)), time.Duration(i+1)*time.Minute)
		results[i] = &tr
	}
	results[4].Duration = 0
	s := &search.Session{Query: "some song", Results: results, CurrentPage: 1}

	got := searchPageText(s)
	assert.Contains(t, got, "Results for **some song** (page 2/2)")
	// Absolute numbering carries across pages.
	assert.Contains(t, got, "`4.` [d]")
	assert.Contains(t, got, "`5.` [e]")
	assert.NotContains(t, got, "`1.`")
	// Zero duration renders as unknown.
	assert.Contains(t, got, "`?:??`")
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no voice channel", player.ErrNoVoiceChannel, "Join a voice channel first."},
		{"wrapped sentinel", errors.Wrap(playback.ErrQueueEmpty, "skip"), "The queue is empty."},
		{"resolver not found", resolver.ErrNotFound, "No results found."},
		{"expired session", search.ErrSessionExpired, "That search has expired, run /search again."},
		{"unknown error", errors.New("astiav exploded"), "Something went wrong, try again in a moment."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userMessage(tt.err))
		})
	}
}
