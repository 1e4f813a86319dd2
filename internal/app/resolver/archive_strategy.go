package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/hayasaka/discbox/internal/app/transport"
	"github.com/hayasaka/discbox/internal/domain/track"
	"github.com/hayasaka/discbox/internal/infra/archive"
)

// ArchiveClient defines the archive.org operations used by the strategy.
type ArchiveClient interface {
	FindAudio(ctx context.Context, query string) (string, error)
}

type ArchiveStrategyConfig struct {
	TimeoutSec int `yaml:"timeout_sec" mapstructure:"timeout_sec" default:"20" validate:"gte=1"`
}

// ArchiveStrategy finds a best-effort replacement recording on archive.org
// when no primary source can stream the track. Last resort only; the match
// is by title, not by exact recording.
type ArchiveStrategy struct {
	client  ArchiveClient
	timeout time.Duration
}

// NewArchiveStrategy creates an archive.org backed strategy.
func NewArchiveStrategy(settings map[string]any) (*ArchiveStrategy, error) {
	var config ArchiveStrategyConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &ArchiveStrategy{
		client:  archive.New(archive.Config{Timeout: time.Duration(config.TimeoutSec) * time.Second}),
		timeout: time.Duration(config.TimeoutSec) * time.Second,
	}, nil
}

// NewArchiveStrategyWithClient wires a custom client, used in tests.
func NewArchiveStrategyWithClient(client ArchiveClient, timeout time.Duration) *ArchiveStrategy {
	return &ArchiveStrategy{client: client, timeout: timeout}
}

// Name returns the strategy name.
func (s *ArchiveStrategy) Name() string {
	return "archive"
}

// Timeout bounds the search plus file verification round trips.
func (s *ArchiveStrategy) Timeout() time.Duration {
	return s.timeout
}

// ResolveInfo is not supported; archive items are matched, not identified.
func (s *ArchiveStrategy) ResolveInfo(context.Context, string) (*track.Track, error) {
	return nil, ErrStrategyUnsupported
}

// ResolveSource searches for a verified audio file matching the track
// title.
func (s *ArchiveStrategy) ResolveSource(ctx context.Context, t *track.Track) (*transport.AudioSource, error) {
	query := strings.TrimSpace(t.Title)
	if query == "" {
		return nil, ErrStrategyUnsupported
	}
	streamURL, err := s.client.FindAudio(ctx, query)
	if err != nil {
		if errors.Is(err, archive.ErrNoAudio) {
			return nil, errors.Wrapf(ErrUnavailable, "%v", err)
		}
		return nil, err
	}
	return &transport.AudioSource{StreamURL: streamURL}, nil
}
