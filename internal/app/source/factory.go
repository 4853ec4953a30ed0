package source

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/infra/config"
)

// Dependencies holds the clients sources are built on.
// A nil client is only an error when a configured source needs it.
type Dependencies struct {
	Spotify   SpotifyClient
	Catalog   CatalogRepository
	Presigner Presigner
	Store     Store
}

// NewChainFromConfig creates a source chain from configuration.
func NewChainFromConfig(cfg *config.Config, deps Dependencies) (*Chain, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("no sources configured")
	}

	var sources []SourceWithMetadata

	for i, scfg := range cfg.Sources {
		var src Source
		var err error
		zlog.Debug().Msgf("creating source: index=%d type=%s", i+1, scfg.Type)
		switch scfg.Type {
		case config.SourceSpotify:
			src, err = NewSpotifySource(deps.Spotify, scfg.Settings)

		case config.SourceLastFm:
			src, err = NewLastFmSource(deps.Spotify, scfg.Settings)

		case config.SourceCatalog:
			src, err = NewCatalogSource(deps.Catalog, deps.Presigner, scfg.Settings)

		default:
			return nil, errors.Newf("unsupported source type: %s (source index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create source (index %d, type %s)", i, scfg.Type)
		}

		if scfg.Cache && cfg.Cache.Enabled && deps.Store != nil {
			src = NewCachedSource(src, deps.Store, cfg.Cache.TTL())
		}

		displayName := scfg.DisplayName
		if displayName == "" {
			displayName = scfg.Type
		}

		sources = append(sources, SourceWithMetadata{
			Source:      src,
			DisplayName: displayName,
		})

		zlog.Info().Msgf("registered source: index=%d type=%s display_name=%s cached=%t",
			i+1, scfg.Type, displayName, scfg.Cache && cfg.Cache.Enabled && deps.Store != nil)
	}

	return NewChain(sources), nil
}
