package resolver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/hayasaka/discbox/internal/app/transport"
	"github.com/hayasaka/discbox/internal/domain/track"
	"github.com/hayasaka/discbox/internal/infra/ytdl"
)

// YtdlClient defines the yt-dlp operations used by the strategy.
type YtdlClient interface {
	FetchMedia(ctx context.Context, pageURL string) (*ytdl.Media, error)
	Search(ctx context.Context, query string, limit int, music bool) ([]ytdl.Entry, error)
	ExpandPlaylist(ctx context.Context, playlistURL string, limit int) ([]ytdl.Entry, error)
}

type YtdlStrategyConfig struct {
	TimeoutSec   int    `yaml:"timeout_sec" mapstructure:"timeout_sec" default:"25" validate:"gte=1"`
	Proxy        string `yaml:"proxy" mapstructure:"proxy"`
	PlayerClient string `yaml:"player_client" mapstructure:"player_client"`
}

// YtdlStrategy resolves tracks by running the yt-dlp extractor locally.
// The heaviest strategy in the chain but the only one that handles every
// operation, including playlist expansion and ranked search.
type YtdlStrategy struct {
	client  YtdlClient
	timeout time.Duration
}

// NewYtdlStrategy creates a yt-dlp backed strategy.
func NewYtdlStrategy(settings map[string]any) (*YtdlStrategy, error) {
	var config YtdlStrategyConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client := ytdl.New(ytdl.Config{
		Proxy:        config.Proxy,
		PlayerClient: config.PlayerClient,
	})
	return &YtdlStrategy{
		client:  client,
		timeout: time.Duration(config.TimeoutSec) * time.Second,
	}, nil
}

// NewYtdlStrategyWithClient wires a custom client, used in tests.
func NewYtdlStrategyWithClient(client YtdlClient, timeout time.Duration) *YtdlStrategy {
	return &YtdlStrategy{client: client, timeout: timeout}
}

// Name returns the strategy name.
func (s *YtdlStrategy) Name() string {
	return "ytdlp"
}

// Timeout bounds a single extractor run.
func (s *YtdlStrategy) Timeout() time.Duration {
	return s.timeout
}

// ResolveInfo extracts full metadata for a video URL.
func (s *YtdlStrategy) ResolveInfo(ctx context.Context, url string) (*track.Track, error) {
	media, err := s.client.FetchMedia(ctx, url)
	if err != nil {
		return nil, mapYtdlError(err)
	}
	return &track.Track{
		Title:        media.Title,
		URL:          url,
		Duration:     media.Duration,
		Uploader:     media.Uploader,
		ThumbnailURL: media.ThumbnailURL,
	}, nil
}

// ResolveSource extracts a direct audio stream URL for the track.
func (s *YtdlStrategy) ResolveSource(ctx context.Context, t *track.Track) (*transport.AudioSource, error) {
	media, err := s.client.FetchMedia(ctx, t.URL)
	if err != nil {
		return nil, mapYtdlError(err)
	}
	t.Enrich(media.ThumbnailURL, media.Uploader)
	return &transport.AudioSource{
		StreamURL: media.StreamURL,
		Live:      media.Duration == 0 && t.Duration == 0,
	}, nil
}

// ExpandPlaylist lists playlist members without resolving each one.
func (s *YtdlStrategy) ExpandPlaylist(ctx context.Context, url string, limit int) ([]*track.Track, error) {
	entries, err := s.client.ExpandPlaylist(ctx, url, limit)
	if err != nil {
		return nil, mapYtdlError(err)
	}
	tracks := make([]*track.Track, 0, len(entries))
	for _, e := range entries {
		if e.URL == "" || e.Title == "" {
			continue
		}
		tracks = append(tracks, &track.Track{
			Title:    e.Title,
			URL:      e.URL,
			Uploader: e.Uploader,
			Duration: e.Duration,
		})
	}
	return tracks, nil
}

// Search runs a ranked extractor search. Results carry durations, so the
// short-form filters downstream have real data to work with.
func (s *YtdlStrategy) Search(ctx context.Context, query string, opts SearchOptions) ([]*track.Track, error) {
	// Over-fetch so post-filtering still fills the requested page.
	fetch := opts.Limit * 2
	if fetch < 5 {
		fetch = 5
	}
	entries, err := s.client.Search(ctx, query, fetch, false)
	if err != nil {
		return nil, mapYtdlError(err)
	}
	tracks := make([]*track.Track, 0, len(entries))
	for _, e := range entries {
		if !IsVideoURL(e.URL) {
			continue
		}
		tracks = append(tracks, &track.Track{
			Title:    e.Title,
			URL:      e.URL,
			Uploader: e.Uploader,
			Duration: e.Duration,
		})
	}
	return tracks, nil
}

func mapYtdlError(err error) error {
	switch {
	case errors.Is(err, ytdl.ErrRestricted):
		return errors.Wrapf(ErrRestricted, "%v", err)
	case errors.Is(err, ytdl.ErrNotFound):
		return errors.Wrapf(ErrNotFound, "%v", err)
	case errors.Is(err, ytdl.ErrUnavailable), errors.Is(err, ytdl.ErrNoOutput):
		return errors.Wrapf(ErrUnavailable, "%v", err)
	default:
		return err
	}
}
