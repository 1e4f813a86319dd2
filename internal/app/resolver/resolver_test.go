package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayasaka/discbox/internal/app/transport"
	"github.com/hayasaka/discbox/internal/domain/track"
)

type stubStrategy struct {
	name        string
	info        *track.Track
	infoErr     error
	src         *transport.AudioSource
	srcErr      error
	infoCalls   int
	sourceCalls int
}

func (s *stubStrategy) Name() string           { return s.name }
func (s *stubStrategy) Timeout() time.Duration { return time.Second }

func (s *stubStrategy) ResolveInfo(context.Context, string) (*track.Track, error) {
	s.infoCalls++
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	cp := *s.info
	return &cp, nil
}

func (s *stubStrategy) ResolveSource(context.Context, *track.Track) (*transport.AudioSource, error) {
	s.sourceCalls++
	if s.srcErr != nil {
		return nil, s.srcErr
	}
	return s.src, nil
}

type stubExpander struct {
	stubStrategy
	playlist    []*track.Track
	playlistErr error
}

func (s *stubExpander) ExpandPlaylist(context.Context, string, int) ([]*track.Track, error) {
	if s.playlistErr != nil {
		return nil, s.playlistErr
	}
	return s.playlist, nil
}

type stubSearcher struct {
	results []*track.Track
	err     error
	calls   int
}

func (s *stubSearcher) Search(context.Context, string, SearchOptions) ([]*track.Track, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func chainOf(strategies ...Strategy) *Resolver {
	sms := make([]StrategyWithMetadata, len(strategies))
	for i, s := range strategies {
		sms[i] = StrategyWithMetadata{Strategy: s, DisplayName: s.Name()}
	}
	return New(sms, nil, 50)
}

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func songTrack(title string) *track.Track {
	return &track.Track{Title: title, URL: videoURL, Duration: 3 * time.Minute}
}

func TestResolver_FirstSuccessWins(t *testing.T) {
	first := &stubStrategy{name: "first", info: songTrack("from first")}
	second := &stubStrategy{name: "second", info: songTrack("from second")}
	r := chainOf(first, second)

	got, err := r.Resolve(context.Background(), videoURL, track.Requester{Name: "user"})
	require.NoError(t, err)
	assert.Equal(t, "from first", got.Title)
	assert.Equal(t, 1, first.infoCalls)
	assert.Zero(t, second.infoCalls, "chain must stop at the first success")
}

func TestResolver_FallsThroughFailures(t *testing.T) {
	first := &stubStrategy{name: "first", infoErr: errors.Wrap(ErrUnavailable, "nope")}
	second := &stubStrategy{name: "second", info: songTrack("from second")}
	r := chainOf(first, second)

	got, err := r.Resolve(context.Background(), videoURL, track.Requester{})
	require.NoError(t, err)
	assert.Equal(t, "from second", got.Title)
}

func TestResolver_UnsupportedSkipsWithoutRecordingCause(t *testing.T) {
	first := &stubStrategy{name: "first", infoErr: ErrStrategyUnsupported}
	second := &stubStrategy{name: "second", infoErr: errors.Wrap(ErrTimeout, "slow")}
	r := chainOf(first, second)

	_, err := r.Resolve(context.Background(), videoURL, track.Requester{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestResolver_MostSpecificErrorWins(t *testing.T) {
	tests := []struct {
		name     string
		first    error
		second   error
		expected error
	}{
		{
			name:     "restricted beats timeout",
			first:    errors.Wrap(ErrTimeout, "slow"),
			second:   errors.Wrap(ErrRestricted, "private video"),
			expected: ErrRestricted,
		},
		{
			name:     "order does not matter",
			first:    errors.Wrap(ErrRestricted, "private video"),
			second:   errors.Wrap(ErrTimeout, "slow"),
			expected: ErrRestricted,
		},
		{
			name:     "not found beats unavailable",
			first:    errors.Wrap(ErrUnavailable, "gone"),
			second:   errors.Wrap(ErrNotFound, "missing"),
			expected: ErrNotFound,
		},
		{
			name:     "deadline is normalized to timeout",
			first:    context.DeadlineExceeded,
			second:   context.DeadlineExceeded,
			expected: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chainOf(
				&stubStrategy{name: "first", infoErr: tt.first},
				&stubStrategy{name: "second", infoErr: tt.second},
			)
			_, err := r.Resolve(context.Background(), videoURL, track.Requester{})
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestResolver_AllUnsupported(t *testing.T) {
	r := chainOf(
		&stubStrategy{name: "first", infoErr: ErrStrategyUnsupported},
		&stubStrategy{name: "second", infoErr: ErrStrategyUnsupported},
	)
	_, err := r.Resolve(context.Background(), videoURL, track.Requester{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestResolver_EmptyQuery(t *testing.T) {
	r := chainOf(&stubStrategy{name: "first", info: songTrack("x")})
	_, err := r.Resolve(context.Background(), "   ", track.Requester{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestResolver_PlaylistURLRejectedForSingleResolve(t *testing.T) {
	r := chainOf(&stubStrategy{name: "first", info: songTrack("x")})
	_, err := r.Resolve(context.Background(),
		"https://www.youtube.com/playlist?list=PLabc123", track.Requester{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestResolver_ShortFormRecheckAfterResolution(t *testing.T) {
	short := &track.Track{Title: "clip", URL: videoURL, Duration: 45 * time.Second}
	r := chainOf(&stubStrategy{name: "first", info: short})

	_, err := r.Resolve(context.Background(), videoURL, track.Requester{})
	assert.ErrorIs(t, err, ErrShortForm)
}

func TestResolver_RequesterStamped(t *testing.T) {
	r := chainOf(&stubStrategy{name: "first", info: songTrack("song")})
	req := track.Requester{ID: 42, Name: "someone"}

	got, err := r.Resolve(context.Background(), videoURL, req)
	require.NoError(t, err)
	assert.Equal(t, req, got.RequestedBy)
	assert.False(t, got.AddedAt.IsZero())
}

func TestResolver_ResolveAudioSource(t *testing.T) {
	src := &transport.AudioSource{StreamURL: "https://media.example.com/a.webm"}
	first := &stubStrategy{name: "first", srcErr: ErrStrategyUnsupported}
	second := &stubStrategy{name: "second", srcErr: errors.Wrap(ErrUnavailable, "down")}
	third := &stubStrategy{name: "third", src: src}
	r := chainOf(first, second, third)

	got, err := r.ResolveAudioSource(context.Background(), songTrack("song"))
	require.NoError(t, err)
	assert.Equal(t, src, got)
	assert.Equal(t, 1, third.sourceCalls)
}

func TestResolver_ExpandPlaylist(t *testing.T) {
	members := make([]*track.Track, 60)
	for i := range members {
		members[i] = songTrack("member")
	}

	nonExpander := &stubStrategy{name: "plain"}
	expander := &stubExpander{stubStrategy: stubStrategy{name: "exp"}, playlist: members}
	sms := []StrategyWithMetadata{
		{Strategy: nonExpander, DisplayName: "plain"},
		{Strategy: expander, DisplayName: "exp"},
	}
	r := New(sms, nil, 50)

	got, err := r.ExpandPlaylist(context.Background(),
		"https://www.youtube.com/playlist?list=PLabc123", track.Requester{Name: "user"})
	require.NoError(t, err)
	assert.Len(t, got, 50, "expansion must honor the cap")
	assert.Equal(t, "user", got[0].RequestedBy.Name)
}

func TestResolver_ExpandPlaylistRejectsNonPlaylist(t *testing.T) {
	r := chainOf(&stubStrategy{name: "first"})
	_, err := r.ExpandPlaylist(context.Background(), videoURL, track.Requester{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestResolver_ExpandPlaylistEmptyListing(t *testing.T) {
	expander := &stubExpander{stubStrategy: stubStrategy{name: "exp"}}
	r := New([]StrategyWithMetadata{{Strategy: expander, DisplayName: "exp"}}, nil, 50)

	_, err := r.ExpandPlaylist(context.Background(),
		"https://www.youtube.com/playlist?list=PLabc123", track.Requester{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_SearchFallsBackAcrossSearchers(t *testing.T) {
	failing := &stubSearcher{err: errors.New("backend down")}
	working := &stubSearcher{results: []*track.Track{songTrack("hit")}}
	r := New(nil, []Searcher{failing, working}, 50)

	got, err := r.Search(context.Background(), "some song", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hit", got[0].Title)
	assert.Equal(t, 1, failing.calls)
}

func TestResolver_SearchNoResultsAnywhere(t *testing.T) {
	empty := &stubSearcher{}
	r := New(nil, []Searcher{empty}, 50)

	_, err := r.Search(context.Background(), "obscure", SearchOptions{Limit: 3})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_SearchRejectsEmptyQuery(t *testing.T) {
	r := New(nil, []Searcher{&stubSearcher{}}, 50)
	_, err := r.Search(context.Background(), "", SearchOptions{Limit: 3})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
