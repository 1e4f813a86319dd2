package ytdl

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntries(t *testing.T) {
	stdout := "https://www.youtube.com/watch?v=aaaaaaaaaaa\tSong A\tChannel A\t215\n" +
		"https://www.youtube.com/watch?v=bbbbbbbbbbb\tSong B\tChannel B\t90\n" +
		"malformed line without tabs\n" +
		"https://www.youtube.com/watch?v=ccccccccccc\tLive C\tChannel C\tNA\n"

	entries := parseEntries(stdout)
	require.Len(t, entries, 3)

	assert.Equal(t, "Song A", entries[0].Title)
	assert.Equal(t, "Channel A", entries[0].Uploader)
	assert.Equal(t, 215*time.Second, entries[0].Duration)

	assert.Equal(t, 90*time.Second, entries[1].Duration)

	// Unparseable duration (live streams print NA) degrades to unknown.
	assert.Equal(t, time.Duration(0), entries[2].Duration)
}

func TestParseEntries_Empty(t *testing.T) {
	assert.Empty(t, parseEntries(""))
	assert.Empty(t, parseEntries("\n\n"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		expected error
	}{
		{
			name:     "private video",
			stderr:   "ERROR: [youtube] abc: Private video. Sign in if you've been granted access",
			expected: ErrRestricted,
		},
		{
			name:     "region block",
			stderr:   "ERROR: The uploader has not made this video available in your country",
			expected: ErrRestricted,
		},
		{
			name:     "drm",
			stderr:   "ERROR: This video is DRM protected",
			expected: ErrRestricted,
		},
		{
			name:     "missing video",
			stderr:   "ERROR: [youtube] abc: This video does not exist",
			expected: ErrNotFound,
		},
		{
			name:     "unavailable",
			stderr:   "ERROR: [youtube] abc: Video unavailable",
			expected: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(&ytdlp.Result{Stderr: tt.stderr}, errors.New("exit status 1"))
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestClassify_UnknownPassesThrough(t *testing.T) {
	cause := errors.New("exit status 1")
	err := classify(&ytdlp.Result{Stderr: "something else"}, cause)
	assert.ErrorIs(t, err, cause)
}
