package resolver

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/infra/config"
)

// NewFromConfig creates a resolver from configuration. Strategies keep
// their configured order; every strategy that can also search is wired
// into the searcher fallback list in the same order.
func NewFromConfig(cfg *config.Config) (*Resolver, error) {
	if len(cfg.Resolver.Strategies) == 0 {
		return nil, errors.New("no resolution strategies configured")
	}

	var (
		strategies []StrategyWithMetadata
		searchers  []Searcher
	)

	for i, scfg := range cfg.Resolver.Strategies {
		var strategy Strategy
		var err error
		zlog.Debug().Msgf("creating resolution strategy: index=%d type=%s settings=%+v", i+1, scfg.Type, scfg.Settings)
		switch scfg.Type {
		case "cobalt":
			strategy, err = NewCobaltStrategy(scfg.Settings)

		case "ytdlp":
			strategy, err = NewYtdlStrategy(scfg.Settings)

		case "ytsearch":
			strategy, err = NewYtAPIStrategy(scfg.Settings)

		case "archive":
			strategy, err = NewArchiveStrategy(scfg.Settings)

		default:
			return nil, errors.Newf("unsupported strategy type: %s (strategy index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create strategy (index %d, type %s)", i, scfg.Type)
		}

		strategies = append(strategies, StrategyWithMetadata{
			Strategy:    strategy,
			DisplayName: scfg.DisplayName,
		})
		if s, ok := strategy.(Searcher); ok {
			searchers = append(searchers, s)
		}

		zlog.Info().Msgf("registered resolution strategy: index=%d type=%s display_name=%s", i+1, scfg.Type, scfg.DisplayName)
	}

	return New(strategies, searchers, cfg.Playback.MaxPlaylistSize), nil
}
