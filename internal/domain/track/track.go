// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track represents a playable audio track.
// Duration of zero means unknown length (typically a live stream).
type Track struct {
	Title        string        // Track title
	URL          string        // Canonical page URL
	Duration     time.Duration // Track length (0 = unknown / live)
	ThumbnailURL string        // Thumbnail image URL (optional)
	Uploader     string        // Channel or uploader name (optional)
	RequestedBy  Requester     // Who queued the track
	AddedAt      time.Time     // Time when added to queue
}

// Requester identifies the user who requested a track.
type Requester struct {
	ID   snowflake.ID // Discord user ID
	Name string       // Display name
}

// IsLive reports whether the track has no known duration.
func (t *Track) IsLive() bool {
	return t.Duration == 0
}

// Enrich fills in metadata fields that are still empty.
// Existing values are never overwritten.
func (t *Track) Enrich(thumbnailURL, uploader string) {
	if t.ThumbnailURL == "" {
		t.ThumbnailURL = thumbnailURL
	}
	if t.Uploader == "" {
		t.Uploader = uploader
	}
}

// FormatDuration renders a duration as M:SS, or H:MM:SS for tracks of an
// hour or longer. Zero (unknown) renders as "0:00".
func FormatDuration(d time.Duration) string {
	total := int(d / time.Second)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
