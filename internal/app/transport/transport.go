// Package transport abstracts the voice connection and audio delivery.
package transport

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// AudioSource describes a resolved, directly playable audio stream.
type AudioSource struct {
	StreamURL string // Direct media URL handed to the decoder
	MimeType  string // Reported content type (optional)
	Live      bool   // True when the source has no known end
}

// Connector establishes voice connections.
type Connector interface {
	// Connect joins the given voice channel and returns a playback handle.
	// Callers hold on to the handle; repeat joins to the same channel are
	// short-circuited above this layer.
	Connect(ctx context.Context, guildID snowflake.ID, channelID snowflake.ID) (Handle, error)
}

// Handle controls audio playback on one voice connection.
// A handle plays at most one stream at a time; Play replaces any stream
// already in flight.
type Handle interface {
	Play(ctx context.Context, src *AudioSource) error
	Pause()
	Resume()
	// StopPlayback aborts the current stream. The handle emits EventIdle
	// through Events once the stream has drained, same as natural end.
	StopPlayback()
	// SetVolume applies a gain level in [0,100] to the live stream.
	SetVolume(level int)
	// Events delivers playback lifecycle events until Close.
	Events() <-chan Event
	Close(ctx context.Context) error
}
