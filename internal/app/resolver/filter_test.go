package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayasaka/discbox/internal/domain/track"
)

func TestIsShortForm(t *testing.T) {
	tests := []struct {
		name     string
		track    track.Track
		expected bool
	}{
		{
			name:     "under a minute by duration",
			track:    track.Track{Title: "clip", Duration: 45 * time.Second},
			expected: true,
		},
		{
			name:     "exactly sixty seconds",
			track:    track.Track{Title: "clip", Duration: 60 * time.Second},
			expected: true,
		},
		{
			name:     "just over a minute",
			track:    track.Track{Title: "song", Duration: 61 * time.Second},
			expected: false,
		},
		{
			name:     "unknown duration with shorts marker",
			track:    track.Track{Title: "crazy moment #shorts"},
			expected: true,
		},
		{
			name:     "unknown duration with tiktok marker",
			track:    track.Track{Title: "viral TikTok compilation"},
			expected: true,
		},
		{
			name:     "unknown duration, clean title",
			track:    track.Track{Title: "late night radio stream"},
			expected: false,
		},
		{
			name:     "known long duration overrides title marker",
			track:    track.Track{Title: "best #shorts of the year", Duration: 10 * time.Minute},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isShortForm(&tt.track))
		})
	}
}

func TestApplySearchFilters(t *testing.T) {
	mk := func(title string, d time.Duration) *track.Track {
		return &track.Track{Title: title, URL: WatchURL("xxxxxxxxxxx"), Duration: d}
	}

	t.Run("short form excluded", func(t *testing.T) {
		in := []*track.Track{
			mk("real song", 3*time.Minute),
			mk("clip #shorts", 0),
			mk("teaser", 30*time.Second),
		}
		out := applySearchFilters(in, SearchOptions{Limit: 10, ExcludeShortForm: true})
		require.Len(t, out, 1)
		assert.Equal(t, "real song", out[0].Title)
	})

	t.Run("min duration skips unknown durations", func(t *testing.T) {
		in := []*track.Track{
			mk("known short", 90*time.Second),
			mk("unknown length", 0),
			mk("long enough", 4*time.Minute),
		}
		out := applySearchFilters(in, SearchOptions{Limit: 10, MinDuration: 2 * time.Minute})
		require.Len(t, out, 2)
		assert.Equal(t, "unknown length", out[0].Title)
		assert.Equal(t, "long enough", out[1].Title)
	})

	t.Run("long form preferred but order otherwise stable", func(t *testing.T) {
		in := []*track.Track{
			mk("live cover", 3*time.Minute),
			mk("remix", 3*time.Minute),
			mk("Song Title (Official Audio)", 3*time.Minute),
			mk("another take", 3*time.Minute),
		}
		out := applySearchFilters(in, SearchOptions{Limit: 10, PreferLongForm: true})
		require.Len(t, out, 4)
		assert.Equal(t, "Song Title (Official Audio)", out[0].Title)
		assert.Equal(t, "live cover", out[1].Title)
		assert.Equal(t, "remix", out[2].Title)
		assert.Equal(t, "another take", out[3].Title)
	})

	t.Run("limit trims after filtering", func(t *testing.T) {
		in := []*track.Track{
			mk("a", 3*time.Minute),
			mk("b", 3*time.Minute),
			mk("c", 3*time.Minute),
		}
		out := applySearchFilters(in, SearchOptions{Limit: 2})
		assert.Len(t, out, 2)
	})
}
