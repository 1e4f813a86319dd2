// Package playback provides the per-guild playback queue state machine.
package playback

// State represents the queue playback state.
type State int

const (
	StateIdle       State = iota // Nothing playing (queue empty or stopped)
	StateConnecting              // Voice connection being established
	StateResolving               // Head track being resolved to an audio source
	StatePlaying                 // Track is playing
	StatePaused                  // Track is paused
	StateDestroyed               // Queue torn down, terminal
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
