package transport

// EventType represents a transport playback event type.
type EventType int

const (
	EventPlaying EventType = iota // Stream accepted and audible
	EventIdle                     // Stream finished or was stopped
	EventPaused                   // Stream paused
	EventError                    // Stream failed mid-play
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPlaying:
		return "playing"
	case EventIdle:
		return "idle"
	case EventPaused:
		return "paused"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a transport playback event.
type Event struct {
	Type EventType
	Err  error // Set for EventError
}
