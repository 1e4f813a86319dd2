// Package resolver turns user queries into playable tracks through an
// ordered chain of resolution strategies.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/app/transport"
	"github.com/hayasaka/discbox/internal/domain/track"
)

// Errors
var (
	ErrInvalidQuery        = errors.New("invalid query")
	ErrUnavailable         = errors.New("track unavailable")
	ErrRestricted          = errors.New("track is private or region blocked")
	ErrNotFound            = errors.New("no results found")
	ErrShortForm           = errors.New("short-form content rejected")
	ErrTimeout             = errors.New("resolution timed out")
	ErrStrategyUnsupported = errors.New("operation not supported by strategy")
)

// Strategy is one way of resolving tracks. A strategy may support only a
// subset of operations; unsupported ones return ErrStrategyUnsupported and
// the chain moves on without recording a cause.
type Strategy interface {
	// Name returns the strategy name (used in config).
	Name() string

	// Timeout bounds a single call into this strategy.
	Timeout() time.Duration

	// ResolveInfo fetches track metadata for a direct video URL.
	ResolveInfo(ctx context.Context, url string) (*track.Track, error)

	// ResolveSource produces a playable audio source for a track.
	ResolveSource(ctx context.Context, t *track.Track) (*transport.AudioSource, error)
}

// PlaylistExpander is implemented by strategies that can list playlist
// members.
type PlaylistExpander interface {
	ExpandPlaylist(ctx context.Context, url string, limit int) ([]*track.Track, error)
}

// Searcher finds tracks for free-text queries.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]*track.Track, error)
}

// SearchOptions tune free-text search behavior.
type SearchOptions struct {
	Limit            int           // Max results to return
	ExcludeShortForm bool          // Drop clips shorter than a minute and short-form uploads
	PreferLongForm   bool          // Rank full songs above other matches
	MinDuration      time.Duration // Drop results with a known duration below this
}

// StrategyWithMetadata pairs a strategy with its configured display name.
type StrategyWithMetadata struct {
	Strategy    Strategy
	DisplayName string
}

// Resolver resolves queries through an ordered strategy chain. Strategies
// are tried in order; when every one fails the most specific recorded
// failure is returned.
type Resolver struct {
	strategies      []StrategyWithMetadata
	searchers       []Searcher
	maxPlaylistSize int
}

// New creates a resolver. Strategies are tried in the given order;
// searchers likewise.
func New(strategies []StrategyWithMetadata, searchers []Searcher, maxPlaylistSize int) *Resolver {
	if maxPlaylistSize <= 0 {
		maxPlaylistSize = 50
	}
	return &Resolver{
		strategies:      strategies,
		searchers:       searchers,
		maxPlaylistSize: maxPlaylistSize,
	}
}

// Resolve turns a query (direct video URL or free text) into a track.
// Playlist URLs are not accepted here; use ExpandPlaylist.
func (r *Resolver) Resolve(ctx context.Context, query string, requester track.Requester) (*track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(ErrInvalidQuery, "empty query")
	}

	var (
		t   *track.Track
		err error
	)
	switch {
	case IsPlaylistURL(query):
		return nil, errors.Wrap(ErrInvalidQuery, "playlist URL given where a single track was expected")
	case IsVideoURL(query):
		t, err = r.resolveInfo(ctx, query)
	default:
		t, err = r.searchOne(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	// Search filters work on reported durations; the resolved metadata is
	// authoritative, so re-check it.
	if isShortDuration(t.Duration) {
		return nil, errors.Wrapf(ErrShortForm, "%s runs %s", t.Title, track.FormatDuration(t.Duration))
	}

	t.RequestedBy = requester
	t.AddedAt = time.Now()
	return t, nil
}

// ResolveAudioSource produces a playable source for a resolved track.
func (r *Resolver) ResolveAudioSource(ctx context.Context, t *track.Track) (*transport.AudioSource, error) {
	var best error
	for _, sm := range r.strategies {
		sctx, cancel := context.WithTimeout(ctx, sm.Strategy.Timeout())
		src, err := sm.Strategy.ResolveSource(sctx, t)
		cancel()
		if err == nil {
			zlog.Debug().Msgf("resolver: source resolved: strategy=%s track=%s", sm.DisplayName, t.Title)
			return src, nil
		}
		if errors.Is(err, ErrStrategyUnsupported) {
			continue
		}
		err = normalizeTimeout(err)
		zlog.Warn().Msgf("resolver: strategy failed, trying next: strategy=%s track=%s error=%v", sm.DisplayName, t.Title, err)
		best = moreSpecific(best, err)
	}
	return nil, exhausted(best)
}

// ExpandPlaylist lists the members of a playlist URL, capped at the
// configured maximum. Unresolvable members are skipped; only a playlist
// that cannot be listed at all fails.
func (r *Resolver) ExpandPlaylist(ctx context.Context, url string, requester track.Requester) ([]*track.Track, error) {
	if !IsPlaylistURL(url) {
		return nil, errors.Wrap(ErrInvalidQuery, "not a playlist URL")
	}

	var best error
	for _, sm := range r.strategies {
		exp, ok := sm.Strategy.(PlaylistExpander)
		if !ok {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, sm.Strategy.Timeout())
		tracks, err := exp.ExpandPlaylist(sctx, url, r.maxPlaylistSize)
		cancel()
		if err != nil {
			if errors.Is(err, ErrStrategyUnsupported) {
				continue
			}
			err = normalizeTimeout(err)
			zlog.Warn().Msgf("resolver: playlist expansion failed, trying next: strategy=%s error=%v", sm.DisplayName, err)
			best = moreSpecific(best, err)
			continue
		}
		if len(tracks) == 0 {
			best = moreSpecific(best, errors.Wrap(ErrNotFound, "playlist has no playable entries"))
			continue
		}
		if len(tracks) > r.maxPlaylistSize {
			tracks = tracks[:r.maxPlaylistSize]
		}
		now := time.Now()
		for _, t := range tracks {
			t.RequestedBy = requester
			t.AddedAt = now
		}
		return tracks, nil
	}
	return nil, exhausted(best)
}

// Search runs a free-text search and returns up to opts.Limit filtered
// results.
func (r *Resolver) Search(ctx context.Context, query string, opts SearchOptions) ([]*track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(ErrInvalidQuery, "empty query")
	}
	if opts.Limit <= 0 {
		opts.Limit = 1
	}

	var best error
	for i, s := range r.searchers {
		results, err := s.Search(ctx, query, opts)
		if err != nil {
			err = normalizeTimeout(err)
			zlog.Warn().Msgf("resolver: searcher %d failed, trying next: error=%v", i+1, err)
			best = moreSpecific(best, err)
			continue
		}
		results = applySearchFilters(results, opts)
		if len(results) == 0 {
			continue
		}
		return results, nil
	}
	if best == nil {
		best = ErrNotFound
	}
	return nil, exhausted(best)
}

// MaxPlaylistSize returns the playlist expansion cap.
func (r *Resolver) MaxPlaylistSize() int {
	return r.maxPlaylistSize
}

func (r *Resolver) resolveInfo(ctx context.Context, url string) (*track.Track, error) {
	var best error
	for _, sm := range r.strategies {
		sctx, cancel := context.WithTimeout(ctx, sm.Strategy.Timeout())
		t, err := sm.Strategy.ResolveInfo(sctx, url)
		cancel()
		if err == nil {
			zlog.Debug().Msgf("resolver: info resolved: strategy=%s track=%s", sm.DisplayName, t.Title)
			return t, nil
		}
		if errors.Is(err, ErrStrategyUnsupported) {
			continue
		}
		err = normalizeTimeout(err)
		zlog.Warn().Msgf("resolver: strategy failed, trying next: strategy=%s url=%s error=%v", sm.DisplayName, url, err)
		best = moreSpecific(best, err)
	}
	return nil, exhausted(best)
}

func (r *Resolver) searchOne(ctx context.Context, query string) (*track.Track, error) {
	opts := SearchOptions{
		Limit:            1,
		ExcludeShortForm: true,
		PreferLongForm:   true,
		MinDuration:      61 * time.Second,
	}
	results, err := r.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// severity ranks failures so the chain reports the most informative cause
// when everything fails. A privacy block explains more than a timeout.
func severity(err error) int {
	switch {
	case err == nil:
		return -1
	case errors.Is(err, ErrRestricted):
		return 4
	case errors.Is(err, ErrNotFound):
		return 3
	case errors.Is(err, ErrUnavailable):
		return 2
	case errors.Is(err, ErrTimeout):
		return 1
	default:
		return 0
	}
}

func moreSpecific(best, candidate error) error {
	if severity(candidate) > severity(best) {
		return candidate
	}
	return best
}

func normalizeTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return errors.Wrapf(ErrTimeout, "%v", err)
	}
	return err
}

func exhausted(best error) error {
	if best == nil {
		return errors.Wrap(ErrUnavailable, "no strategy could handle the request")
	}
	return best
}
