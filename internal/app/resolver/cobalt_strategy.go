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
	"github.com/hayasaka/discbox/internal/infra/cobalt"
)

// CobaltClient defines the cobalt API operations used by the strategy.
type CobaltClient interface {
	FetchStream(ctx context.Context, videoURL string) (string, error)
}

type CobaltStrategyConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSec     int     `yaml:"timeout_sec" mapstructure:"timeout_sec" default:"15" validate:"gte=1"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec" default:"2" validate:"gt=0"`
}

// CobaltStrategy resolves audio sources through a hosted cobalt instance.
// It cannot produce metadata, only streams, so it sits first in the chain
// as the cheap path and defers everything else.
type CobaltStrategy struct {
	client  CobaltClient
	timeout time.Duration
}

// NewCobaltStrategy creates a cobalt backed strategy.
func NewCobaltStrategy(settings map[string]any) (*CobaltStrategy, error) {
	var config CobaltStrategyConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client := cobalt.New(cobalt.Config{
		BaseURL:        config.BaseURL,
		RequestsPerSec: config.RequestsPerSec,
		Timeout:        time.Duration(config.TimeoutSec) * time.Second,
	})
	return &CobaltStrategy{
		client:  client,
		timeout: time.Duration(config.TimeoutSec) * time.Second,
	}, nil
}

// NewCobaltStrategyWithClient wires a custom client, used in tests.
func NewCobaltStrategyWithClient(client CobaltClient, timeout time.Duration) *CobaltStrategy {
	return &CobaltStrategy{client: client, timeout: timeout}
}

// Name returns the strategy name.
func (s *CobaltStrategy) Name() string {
	return "cobalt"
}

// Timeout bounds a single API call.
func (s *CobaltStrategy) Timeout() time.Duration {
	return s.timeout
}

// ResolveInfo is not supported; the API returns streams, not metadata.
func (s *CobaltStrategy) ResolveInfo(context.Context, string) (*track.Track, error) {
	return nil, ErrStrategyUnsupported
}

// ResolveSource asks the API for a direct stream URL.
func (s *CobaltStrategy) ResolveSource(ctx context.Context, t *track.Track) (*transport.AudioSource, error) {
	if !IsVideoURL(t.URL) {
		return nil, ErrStrategyUnsupported
	}
	streamURL, err := s.client.FetchStream(ctx, t.URL)
	if err != nil {
		return nil, mapCobaltError(err)
	}
	return &transport.AudioSource{
		StreamURL: streamURL,
		Live:      t.IsLive(),
	}, nil
}

func mapCobaltError(err error) error {
	switch {
	case errors.Is(err, cobalt.ErrRestricted):
		return errors.Wrapf(ErrRestricted, "%v", err)
	case errors.Is(err, cobalt.ErrNotFound):
		return errors.Wrapf(ErrNotFound, "%v", err)
	case errors.Is(err, cobalt.ErrUnavailable), errors.Is(err, cobalt.ErrBadResponse):
		return errors.Wrapf(ErrUnavailable, "%v", err)
	default:
		return err
	}
}
