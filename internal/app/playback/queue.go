package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/app/transport"
	"github.com/hayasaka/discbox/internal/domain/track"
)

// Errors
var (
	ErrQueueEmpty       = errors.New("queue is empty")
	ErrNotPlaying       = errors.New("not playing")
	ErrNotPaused        = errors.New("not paused")
	ErrNotEnoughTracks  = errors.New("not enough tracks")
	ErrInvalidPosition  = errors.New("invalid queue position")
	ErrConnectionDenied = errors.New("voice connection denied")
	ErrDestroyed        = errors.New("queue destroyed")
)

// SourceResolver turns a track into a playable audio source.
type SourceResolver interface {
	ResolveAudioSource(ctx context.Context, t *track.Track) (*transport.AudioSource, error)
}

// Config holds queue configuration.
type Config struct {
	DefaultVolume int           // Initial volume level (0-100)
	AdvanceDelay  time.Duration // Gap between one track ending and the next starting
}

// Queue manages playback for a single guild. The head of the track list is
// the current track while anything is playing; all control operations and
// track-end transitions serialize on the queue mutex.
type Queue struct {
	mu sync.Mutex

	guildID   snowflake.ID
	channelID snowflake.ID

	tracks   []*track.Track
	state    State
	loop     bool
	volume   int
	skipping bool

	connector transport.Connector
	resolver  SourceResolver
	handle    transport.Handle

	// gen invalidates in-flight resolutions and pending timers after Stop.
	gen           uint64
	resolveCancel context.CancelFunc
	advanceCancel func()

	// pendingEnd holds an end-of-track signal that raced ahead of the
	// Resolving->Playing transition, so a stream that finishes before the
	// play handoff completes is not lost.
	pendingEnd    bool
	pendingEndErr error

	cfg Config
}

// NewQueue creates a queue for one guild.
func NewQueue(guildID snowflake.ID, connector transport.Connector, resolver SourceResolver, cfg Config) *Queue {
	if cfg.DefaultVolume <= 0 || cfg.DefaultVolume > 100 {
		cfg.DefaultVolume = 50
	}
	return &Queue{
		guildID:   guildID,
		state:     StateIdle,
		volume:    cfg.DefaultVolume,
		connector: connector,
		resolver:  resolver,
		cfg:       cfg,
	}
}

// Connect joins the given voice channel. Connecting to the channel the
// queue already occupies is a no-op; a different channel moves the
// connection. Tracks are never touched on failure.
func (q *Queue) Connect(ctx context.Context, channelID snowflake.ID) error {
	q.mu.Lock()
	if q.state == StateDestroyed {
		q.mu.Unlock()
		return ErrDestroyed
	}
	if q.handle != nil && q.channelID == channelID {
		q.mu.Unlock()
		return nil
	}
	first := q.handle == nil
	if first {
		q.state = StateConnecting
	}
	q.mu.Unlock()

	h, err := q.connector.Connect(ctx, q.guildID, channelID)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return ErrDestroyed
	}
	if err != nil {
		if first {
			q.state = StateIdle
		}
		return errors.Wrapf(ErrConnectionDenied, "join channel %s: %v", channelID, err)
	}
	q.channelID = channelID
	if first {
		q.handle = h
		q.state = StateIdle
		h.SetVolume(q.volume)
		go q.consumeEvents(h)
	}
	if q.state == StateIdle && len(q.tracks) > 0 {
		q.spawnResolveLocked()
	}
	return nil
}

// Enqueue appends a track and starts playback when the queue is idle and
// connected. It returns the 1-based position of the track in the queue;
// the caller keeps its pointer to the stored track, but ownership moves
// to the queue and the track must not be mutated afterwards.
func (q *Queue) Enqueue(t *track.Track) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return 0, ErrDestroyed
	}
	q.tracks = append(q.tracks, t)
	pos := len(q.tracks)
	if q.state == StateIdle && q.handle != nil {
		q.spawnResolveLocked()
	}
	return pos, nil
}

// EnqueueAll appends tracks in order and starts playback when idle and
// connected. It returns the 1-based position of the first appended track.
func (q *Queue) EnqueueAll(ts []*track.Track) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return 0, ErrDestroyed
	}
	if len(ts) == 0 {
		return 0, ErrQueueEmpty
	}
	pos := len(q.tracks) + 1
	q.tracks = append(q.tracks, ts...)
	if q.state == StateIdle && q.handle != nil {
		q.spawnResolveLocked()
	}
	return pos, nil
}

// Pause pauses the current track.
func (q *Queue) Pause() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return ErrDestroyed
	}
	if q.state != StatePlaying {
		return ErrNotPlaying
	}
	q.handle.Pause()
	q.state = StatePaused
	return nil
}

// Resume resumes a paused track.
func (q *Queue) Resume() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return ErrDestroyed
	}
	if q.state != StatePaused {
		return ErrNotPaused
	}
	q.handle.Resume()
	q.state = StatePlaying
	return nil
}

// Skip aborts the current track. Completion is observed through the
// transport event stream, so a skip advances exactly like a natural end
// except that loop mode does not replay the skipped track.
func (q *Queue) Skip() (*track.Track, error) {
	q.mu.Lock()
	if q.state == StateDestroyed {
		q.mu.Unlock()
		return nil, ErrDestroyed
	}
	if q.state != StatePlaying && q.state != StatePaused {
		q.mu.Unlock()
		return nil, ErrNotPlaying
	}
	skipped := q.tracks[0]
	q.skipping = true
	h := q.handle
	q.mu.Unlock()

	h.StopPlayback()
	return skipped, nil
}

// Stop tears the queue down: pending work is cancelled, all tracks are
// dropped and the voice connection is released. Idempotent and terminal.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.state == StateDestroyed {
		q.mu.Unlock()
		return nil
	}
	q.gen++
	if q.resolveCancel != nil {
		q.resolveCancel()
		q.resolveCancel = nil
	}
	q.cancelAdvanceLocked()
	q.tracks = nil
	q.pendingEnd = false
	q.pendingEndErr = nil
	h := q.handle
	q.handle = nil
	q.state = StateDestroyed
	q.mu.Unlock()

	if h != nil {
		h.StopPlayback()
		if err := h.Close(ctx); err != nil {
			zlog.Warn().Msgf("playback: closing voice connection for guild %s: %v", q.guildID, err)
		}
	}
	return nil
}

// Clear drops every upcoming track, keeping whatever is currently playing.
// It returns the number of tracks removed.
func (q *Queue) Clear() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return 0, ErrDestroyed
	}
	switch q.state {
	case StatePlaying, StatePaused, StateResolving:
		removed := len(q.tracks) - 1
		q.tracks = q.tracks[:1]
		return removed, nil
	default:
		removed := len(q.tracks)
		q.tracks = nil
		return removed, nil
	}
}

// Remove deletes the track at the given 1-based position. Position 1 is
// the current track and cannot be removed; use Skip for that.
func (q *Queue) Remove(pos int) (*track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return nil, ErrDestroyed
	}
	if pos <= 1 || pos > len(q.tracks) {
		return nil, errors.Wrapf(ErrInvalidPosition, "position %d of %d", pos, len(q.tracks))
	}
	removed := q.tracks[pos-1]
	q.tracks = append(q.tracks[:pos-1], q.tracks[pos:]...)
	return removed, nil
}

// Shuffle randomizes the order of the upcoming tracks. The current track
// keeps its place. At least one upcoming track is required; a single
// upcoming track succeeds as a no-op.
func (q *Queue) Shuffle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return ErrDestroyed
	}
	if len(q.tracks) < 2 {
		return ErrNotEnoughTracks
	}
	upcoming := q.tracks[1:]
	for i := len(upcoming) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		upcoming[i], upcoming[j] = upcoming[j], upcoming[i]
	}
	return nil
}

// SetVolume clamps the level to [0,100], stores it and applies it to the
// live stream. It returns the clamped value.
func (q *Queue) SetVolume(level int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateDestroyed {
		return 0, ErrDestroyed
	}
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	q.volume = level
	if q.handle != nil {
		q.handle.SetVolume(level)
	}
	return level, nil
}

// SetLoop enables or disables replaying the current track on completion.
func (q *Queue) SetLoop(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = enabled
}

// ToggleLoop flips loop mode and returns the new value.
func (q *Queue) ToggleLoop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = !q.loop
	return q.loop
}

// State returns the current playback state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Current returns the track at the head of the queue while one is being
// resolved, playing or paused.
func (q *Queue) Current() (*track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch q.state {
	case StateResolving, StatePlaying, StatePaused:
		if len(q.tracks) > 0 {
			return q.tracks[0], true
		}
	}
	return nil, false
}

// Tracks returns a snapshot of the full track list, head first.
func (q *Queue) Tracks() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]track.Track, len(q.tracks))
	for i, t := range q.tracks {
		out[i] = *t
	}
	return out
}

// Volume returns the current volume level.
func (q *Queue) Volume() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.volume
}

// LoopEnabled reports whether loop mode is on.
func (q *Queue) LoopEnabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loop
}

// ChannelID returns the voice channel the queue is connected to, if any.
func (q *Queue) ChannelID() (snowflake.ID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handle == nil {
		return 0, false
	}
	return q.channelID, true
}

// consumeEvents drives track-end transitions from the transport stream.
// Runs until the handle closes its event channel.
func (q *Queue) consumeEvents(h transport.Handle) {
	for ev := range h.Events() {
		switch ev.Type {
		case transport.EventIdle:
			q.handleTrackEnd(nil)
		case transport.EventError:
			q.handleTrackEnd(ev.Err)
		}
	}
}

// handleTrackEnd processes one end-of-track signal. Loop mode replays the
// current track after a clean finish; failures and skips always drop it.
func (q *Queue) handleTrackEnd(playErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == StateResolving {
		// The stream already ended but resolveAndPlay has not finished the
		// play handoff yet. Hold the signal for the handoff to consume.
		q.pendingEnd = true
		q.pendingEndErr = playErr
		return
	}
	if q.state != StatePlaying && q.state != StatePaused {
		return
	}
	q.endTrackLocked(playErr)
}

// endTrackLocked advances past the current track. Must be called with
// lock held in StatePlaying or StatePaused.
func (q *Queue) endTrackLocked(playErr error) {
	skipped := q.skipping
	q.skipping = false
	if playErr != nil {
		zlog.Warn().Msgf("playback: track failed mid-play, dropping: guild=%s track=%s: %v",
			q.guildID, q.tracks[0].Title, playErr)
	}
	if playErr != nil || skipped || !q.loop {
		q.tracks = q.tracks[1:]
	}
	if len(q.tracks) == 0 {
		q.state = StateIdle
		return
	}
	q.state = StateResolving
	q.scheduleAdvanceLocked(q.cfg.AdvanceDelay)
}

// scheduleAdvanceLocked arms the between-track delay timer.
// Must be called with lock held.
func (q *Queue) scheduleAdvanceLocked(d time.Duration) {
	q.cancelAdvanceLocked()
	gen := q.gen
	tm := time.AfterFunc(d, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.advanceCancel = nil
		if q.gen != gen || q.state != StateResolving || len(q.tracks) == 0 {
			return
		}
		q.spawnResolveLocked()
	})
	q.advanceCancel = func() { tm.Stop() }
}

func (q *Queue) cancelAdvanceLocked() {
	if q.advanceCancel != nil {
		q.advanceCancel()
		q.advanceCancel = nil
	}
}

// spawnResolveLocked starts resolving the head track in the background.
// Must be called with lock held and a non-empty track list.
func (q *Queue) spawnResolveLocked() {
	if q.resolveCancel != nil {
		q.resolveCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.resolveCancel = cancel
	q.state = StateResolving
	go q.resolveAndPlay(ctx, q.gen, q.tracks[0])
}

// resolveAndPlay resolves the head track to a source and hands it to the
// transport. Resolution failures drop the track and move to the next one,
// so a queue of broken tracks drains to idle rather than looping.
func (q *Queue) resolveAndPlay(ctx context.Context, gen uint64, t *track.Track) {
	src, err := q.resolver.ResolveAudioSource(ctx, t)

	q.mu.Lock()
	if q.gen != gen || q.state != StateResolving {
		q.mu.Unlock()
		return
	}
	if err != nil {
		zlog.Warn().Msgf("playback: dropping unresolvable track: guild=%s track=%s: %v",
			q.guildID, t.Title, err)
		q.advanceAfterFailureLocked()
		q.mu.Unlock()
		return
	}
	h := q.handle
	q.mu.Unlock()

	playErr := h.Play(ctx, src)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen || q.state != StateResolving {
		return
	}
	if playErr != nil {
		zlog.Warn().Msgf("playback: transport rejected track: guild=%s track=%s: %v",
			q.guildID, t.Title, playErr)
		q.advanceAfterFailureLocked()
		return
	}
	q.state = StatePlaying
	if q.pendingEnd {
		q.pendingEnd = false
		endErr := q.pendingEndErr
		q.pendingEndErr = nil
		q.endTrackLocked(endErr)
	}
}

// advanceAfterFailureLocked drops the head track and tries the next one.
// Must be called with lock held in StateResolving.
func (q *Queue) advanceAfterFailureLocked() {
	q.tracks = q.tracks[1:]
	if len(q.tracks) == 0 {
		q.state = StateIdle
		return
	}
	q.spawnResolveLocked()
}
