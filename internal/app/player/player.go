// Package player coordinates per-guild playback. It owns the queue of
// each guild, funnels every command through voice channel authorization,
// and glues the resolver and search sessions to the playback layer.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/app/playback"
	"github.com/hayasaka/discbox/internal/app/resolver"
	"github.com/hayasaka/discbox/internal/app/search"
	"github.com/hayasaka/discbox/internal/app/transport"
	"github.com/hayasaka/discbox/internal/domain/track"
)

// Errors
var (
	ErrNoVoiceChannel     = errors.New("join a voice channel first")
	ErrNotInSameChannel   = errors.New("you must be in the same voice channel as the bot")
	ErrNoQueue            = errors.New("nothing is playing in this guild")
	ErrDurationExceeded   = errors.New("track is longer than the allowed maximum")
	ErrPlaylistAllTooLong = errors.New("every playlist track is longer than the allowed maximum")
)

// TrackResolver is the resolution surface the manager needs.
type TrackResolver interface {
	playback.SourceResolver
	Resolve(ctx context.Context, query string, requester track.Requester) (*track.Track, error)
	ExpandPlaylist(ctx context.Context, url string, requester track.Requester) ([]*track.Track, error)
	Search(ctx context.Context, query string, opts resolver.SearchOptions) ([]*track.Track, error)
}

// Config carries playback tunables shared by every guild.
type Config struct {
	DefaultVolume   int
	MaxSongDuration time.Duration
	AdvanceDelay    time.Duration
}

// PlayResult describes what a play request did.
type PlayResult struct {
	// Tracks that were added to the queue.
	Tracks []*track.Track
	// Position of the first added track, 1-based. 1 means it is playing
	// now or about to.
	Position int
	// Skipped counts playlist members dropped for exceeding the
	// duration cap.
	Skipped int
}

// QueueView is a read-only snapshot of a guild's queue.
type QueueView struct {
	State   playback.State
	Current *track.Track
	Tracks  []track.Track
	Loop    bool
	Volume  int
}

// Manager owns one playback queue per guild.
type Manager struct {
	mu     sync.Mutex
	queues map[snowflake.ID]*playback.Queue

	resolver  TrackResolver
	connector transport.Connector
	sessions  *search.Manager
	cfg       Config
}

// New creates a manager around the given resolver and voice connector.
func New(r TrackResolver, connector transport.Connector, sessions *search.Manager, cfg Config) *Manager {
	return &Manager{
		queues:    make(map[snowflake.ID]*playback.Queue),
		resolver:  r,
		connector: connector,
		sessions:  sessions,
		cfg:       cfg,
	}
}

// Play resolves a query and queues the result. Playlist URLs are
// expanded; members over the duration cap are skipped, single tracks
// over the cap are rejected.
func (m *Manager) Play(ctx context.Context, guildID, userChannelID snowflake.ID, query string, requester track.Requester) (*PlayResult, error) {
	if err := m.checkJoin(guildID, userChannelID); err != nil {
		return nil, err
	}

	var (
		tracks  []*track.Track
		skipped int
	)
	if resolver.IsPlaylistURL(query) {
		all, err := m.resolver.ExpandPlaylist(ctx, query, requester)
		if err != nil {
			return nil, err
		}
		for _, t := range all {
			if m.overCap(t) {
				skipped++
				continue
			}
			tracks = append(tracks, t)
		}
		if len(tracks) == 0 {
			return nil, errors.Wrapf(ErrPlaylistAllTooLong, "%d tracks skipped", skipped)
		}
	} else {
		t, err := m.resolver.Resolve(ctx, query, requester)
		if err != nil {
			return nil, err
		}
		if m.overCap(t) {
			return nil, errors.Wrapf(ErrDurationExceeded, "%s is %s, cap is %s",
				t.Title, track.FormatDuration(t.Duration), track.FormatDuration(m.cfg.MaxSongDuration))
		}
		tracks = []*track.Track{t}
	}

	return m.enqueue(ctx, guildID, userChannelID, tracks, skipped)
}

// Search resolves a query into a browsable result session owned by the
// requesting user.
func (m *Manager) Search(ctx context.Context, ownerID snowflake.ID, query string) (*search.Session, error) {
	results, err := m.resolver.Search(ctx, query, resolver.SearchOptions{
		Limit:            search.MaxResults,
		ExcludeShortForm: true,
	})
	if err != nil {
		return nil, err
	}
	return m.sessions.Create(ownerID, query, results), nil
}

// PaginateSearch moves a search session by delta pages.
func (m *Manager) PaginateSearch(sessionID string, callerID snowflake.ID, delta int) (*search.Session, error) {
	return m.sessions.Paginate(sessionID, callerID, delta)
}

// SearchSession returns a snapshot of a live search session.
func (m *Manager) SearchSession(sessionID string, callerID snowflake.ID) (*search.Session, error) {
	return m.sessions.Get(sessionID, callerID)
}

// CancelSearch discards a search session.
func (m *Manager) CancelSearch(sessionID string, callerID snowflake.ID) error {
	return m.sessions.Cancel(sessionID, callerID)
}

// SelectSearchResult queues the chosen result and consumes the session.
func (m *Manager) SelectSearchResult(ctx context.Context, guildID, userChannelID snowflake.ID, sessionID string, callerID snowflake.ID, index int, requester track.Requester) (*PlayResult, error) {
	if err := m.checkJoin(guildID, userChannelID); err != nil {
		return nil, err
	}

	t, err := m.sessions.Select(sessionID, callerID, index)
	if err != nil {
		return nil, err
	}
	if m.overCap(t) {
		return nil, errors.Wrapf(ErrDurationExceeded, "%s is %s, cap is %s",
			t.Title, track.FormatDuration(t.Duration), track.FormatDuration(m.cfg.MaxSongDuration))
	}
	t.RequestedBy = requester
	t.AddedAt = time.Now()

	return m.enqueue(ctx, guildID, userChannelID, []*track.Track{t}, 0)
}

// Pause pauses the current track.
func (m *Manager) Pause(guildID, userChannelID snowflake.ID) error {
	q, err := m.authorizedQueue(guildID, userChannelID)
	if err != nil {
		return err
	}
	return q.Pause()
}

// Resume continues a paused track.
func (m *Manager) Resume(guildID, userChannelID snowflake.ID) error {
	q, err := m.authorizedQueue(guildID, userChannelID)
	if err != nil {
		return err
	}
	return q.Resume()
}

// Skip drops the current track and returns it.
func (m *Manager) Skip(guildID, userChannelID snowflake.ID) (*track.Track, error) {
	q, err := m.authorizedQueue(guildID, userChannelID)
	if err != nil {
		return nil, err
	}
	return q.Skip()
}

// Stop tears the guild's playback down on user request.
func (m *Manager) Stop(ctx context.Context, guildID, userChannelID snowflake.ID) error {
	if _, err := m.authorizedQueue(guildID, userChannelID); err != nil {
		return err
	}
	return m.Destroy(ctx, guildID)
}

// Destroy tears the guild's playback down unconditionally. It is also
// the reaper's entry point, so it must work without a requesting user.
func (m *Manager) Destroy(ctx context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	q, ok := m.queues[guildID]
	delete(m.queues, guildID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	zlog.Info().Msgf("player: destroying queue: guild=%s", guildID)
	return q.Stop(ctx)
}

// Shutdown destroys every queue. Used on process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	queues := make([]*playback.Queue, 0, len(m.queues))
	for guildID, q := range m.queues {
		queues = append(queues, q)
		delete(m.queues, guildID)
	}
	m.mu.Unlock()

	for _, q := range queues {
		if err := q.Stop(ctx); err != nil {
			zlog.Error().Msgf("player: shutdown stop failed: error=%+v", err)
		}
	}
}

// Queue returns a snapshot of the guild's queue.
func (m *Manager) Queue(guildID snowflake.ID) (*QueueView, error) {
	q, err := m.queue(guildID)
	if err != nil {
		return nil, err
	}
	cur, _ := q.Current()
	return &QueueView{
		State:   q.State(),
		Current: cur,
		Tracks:  q.Tracks(),
		Loop:    q.LoopEnabled(),
		Volume:  q.Volume(),
	}, nil
}

// NowPlaying returns the current track.
func (m *Manager) NowPlaying(guildID snowflake.ID) (*track.Track, playback.State, error) {
	q, err := m.queue(guildID)
	if err != nil {
		return nil, playback.StateIdle, err
	}
	cur, ok := q.Current()
	st := q.State()
	if !ok || (st != playback.StatePlaying && st != playback.StatePaused) {
		return nil, st, errors.Wrap(playback.ErrNotPlaying, "now playing")
	}
	return cur, st, nil
}

// Clear empties the upcoming queue, keeping the current track.
func (m *Manager) Clear(guildID, userChannelID snowflake.ID) (int, error) {
	q, err := m.authorizedQueue(guildID, userChannelID)
	if err != nil {
		return 0, err
	}
	return q.Clear()
}

// Remove drops the track at a 1-based queue position. Position 1 is the
// current track and cannot be removed this way.
func (m *Manager) Remove(guildID, userChannelID snowflake.ID, position int) (*track.Track, error) {
	q, err := m.authorizedQueue(guildID, userChannelID)
	if err != nil {
		return nil, err
	}
	return q.Remove(position)
}

// Shuffle randomizes the upcoming queue.
func (m *Manager) Shuffle(guildID, userChannelID snowflake.ID) error {
	q, err := m.authorizedQueue(guildID, userChannelID)
	if err != nil {
		return err
	}
	return q.Shuffle()
}

// ToggleLoop flips single-track looping and returns the new setting.
func (m *Manager) ToggleLoop(guildID, userChannelID snowflake.ID) (bool, error) {
	q, err := m.authorizedQueue(guildID, userChannelID)
	if err != nil {
		return false, err
	}
	return q.ToggleLoop(), nil
}

// SetVolume adjusts playback volume, clamped to [0, 100].
func (m *Manager) SetVolume(guildID, userChannelID snowflake.ID, volume int) (int, error) {
	q, err := m.authorizedQueue(guildID, userChannelID)
	if err != nil {
		return 0, err
	}
	return q.SetVolume(volume)
}

// ChannelID returns the voice channel the guild's queue is bound to.
func (m *Manager) ChannelID(guildID snowflake.ID) (snowflake.ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[guildID]
	if !ok {
		return 0, false
	}
	return q.ChannelID()
}

// enqueue materializes the guild queue, connects it and appends the
// tracks. The queue is only created here, after resolution succeeded,
// so a failed resolve leaves no empty queue in the map.
func (m *Manager) enqueue(ctx context.Context, guildID, channelID snowflake.ID, tracks []*track.Track, skipped int) (*PlayResult, error) {
	q, err := m.queueForJoin(guildID, channelID)
	if err != nil {
		return nil, err
	}
	if err := q.Connect(ctx, channelID); err != nil {
		m.discardIfUnused(guildID, q)
		return nil, err
	}
	pos, err := q.EnqueueAll(tracks)
	if err != nil {
		return nil, err
	}
	return &PlayResult{Tracks: tracks, Position: pos, Skipped: skipped}, nil
}

// checkJoin validates the caller may use or create the guild queue. It
// never creates one, so callers can run slow resolution first.
func (m *Manager) checkJoin(guildID, userChannelID snowflake.ID) error {
	if userChannelID == 0 {
		return errors.Wrap(ErrNoVoiceChannel, "play")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[guildID]; ok {
		if ch, connected := q.ChannelID(); connected && ch != userChannelID {
			return errors.Wrap(ErrNotInSameChannel, "play")
		}
	}
	return nil
}

// queueForJoin returns the guild's queue, creating one bound to the
// user's channel. The user must be in voice, and if the bot already
// serves another channel the request is refused.
func (m *Manager) queueForJoin(guildID, userChannelID snowflake.ID) (*playback.Queue, error) {
	if userChannelID == 0 {
		return nil, errors.Wrap(ErrNoVoiceChannel, "play")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[guildID]
	if !ok {
		q = playback.NewQueue(guildID, m.connector, m.resolver, playback.Config{
			DefaultVolume: m.cfg.DefaultVolume,
			AdvanceDelay:  m.cfg.AdvanceDelay,
		})
		m.queues[guildID] = q
		return q, nil
	}
	if ch, connected := q.ChannelID(); connected && ch != userChannelID {
		return nil, errors.Wrap(ErrNotInSameChannel, "play")
	}
	return q, nil
}

// discardIfUnused drops a queue that never got a connection or a track,
// keeping the map free of dead entries after a failed join.
func (m *Manager) discardIfUnused(guildID snowflake.ID, q *playback.Queue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queues[guildID] != q {
		return
	}
	if _, connected := q.ChannelID(); connected {
		return
	}
	if len(q.Tracks()) == 0 {
		delete(m.queues, guildID)
	}
}

// authorizedQueue returns an existing queue after checking the caller
// shares its voice channel.
func (m *Manager) authorizedQueue(guildID, userChannelID snowflake.ID) (*playback.Queue, error) {
	q, err := m.queue(guildID)
	if err != nil {
		return nil, err
	}
	if userChannelID == 0 {
		return nil, errors.Wrap(ErrNoVoiceChannel, "control")
	}
	if ch, connected := q.ChannelID(); connected && ch != userChannelID {
		return nil, errors.Wrap(ErrNotInSameChannel, "control")
	}
	return q, nil
}

func (m *Manager) queue(guildID snowflake.ID) (*playback.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[guildID]
	if !ok {
		return nil, errors.Wrapf(ErrNoQueue, "guild %s", guildID)
	}
	return q, nil
}

func (m *Manager) overCap(t *track.Track) bool {
	return m.cfg.MaxSongDuration > 0 && t.Duration > m.cfg.MaxSongDuration
}
