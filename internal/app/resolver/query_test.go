package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
		ok       bool
	}{
		{
			name:     "watch URL",
			query:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
			ok:       true,
		},
		{
			name:     "watch URL without scheme",
			query:    "youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
			ok:       true,
		},
		{
			name:     "mobile host",
			query:    "https://m.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
			ok:       true,
		},
		{
			name:     "music host",
			query:    "https://music.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
			ok:       true,
		},
		{
			name:     "watch URL with extra params before v",
			query:    "https://www.youtube.com/watch?feature=shared&v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
			ok:       true,
		},
		{
			name:     "short link",
			query:    "https://youtu.be/dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
			ok:       true,
		},
		{
			name:     "embed URL",
			query:    "https://www.youtube.com/embed/dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
			ok:       true,
		},
		{
			name:  "free text",
			query: "never gonna give you up",
			ok:    false,
		},
		{
			name:  "bare playlist URL",
			query: "https://www.youtube.com/playlist?list=PLabc123",
			ok:    false,
		},
		{
			name:  "other site",
			query: "https://example.com/watch?v=dQw4w9WgXcQ",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ExtractVideoID(tt.query)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, id)
				assert.True(t, IsVideoURL(tt.query))
			}
		})
	}
}

func TestIsPlaylistURL(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected bool
	}{
		{
			name:     "bare playlist",
			query:    "https://www.youtube.com/playlist?list=PLabc123",
			expected: true,
		},
		{
			name:     "watch URL carrying a list param",
			query:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLabc123",
			expected: true,
		},
		{
			name:     "music playlist",
			query:    "https://music.youtube.com/playlist?list=PLabc123",
			expected: true,
		},
		{
			name:     "plain watch URL",
			query:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: false,
		},
		{
			name:     "free text mentioning list=",
			query:    "my favourite list=things",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPlaylistURL(tt.query))
		})
	}
}

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", WatchURL("dQw4w9WgXcQ"))
}
