package source

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/domain/collection"
)

// SourceWithMetadata wraps a source with its metadata.
type SourceWithMetadata struct {
	Source      Source
	DisplayName string
}

// Chain tries multiple sources in order until one returns a non-empty collection.
type Chain struct {
	sources []SourceWithMetadata
}

// NewChain creates a new source chain.
func NewChain(sources []SourceWithMetadata) *Chain {
	return &Chain{
		sources: sources,
	}
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "source_chain"
}

// Supports reports whether any source in the chain supports typ.
func (c *Chain) Supports(typ collection.Type) bool {
	for _, sm := range c.sources {
		if sm.Source.Supports(typ) {
			return true
		}
	}
	return false
}

// Fetch retrieves the collection from the first supporting source that returns tracks.
// Failing sources are logged and skipped.
func (c *Chain) Fetch(ctx context.Context, ref collection.Ref) (*collection.Collection, error) {
	var lastErr error
	tried := 0

	for i, sm := range c.sources {
		if !sm.Source.Supports(ref.Type) {
			continue
		}
		tried++

		zlog.Debug().Msgf("trying source: index=%d total=%d name=%s source_type=%s ref=%s",
			i+1, len(c.sources), sm.DisplayName, sm.Source.Name(), ref)

		result, err := sm.Source.Fetch(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "fetch cancelled")
			}
			if !errors.Is(err, ErrNotFound) {
				lastErr = err
			}
			zlog.Warn().Msgf("source failed, trying next: source=%s ref=%s error=%v", sm.DisplayName, ref, err)
			continue
		}

		if result == nil || len(result.Tracks) == 0 {
			zlog.Debug().Msgf("source returned no tracks: source=%s ref=%s", sm.DisplayName, ref)
			continue
		}

		zlog.Info().Msgf("source returned collection: source=%s ref=%s name=%q tracks=%d",
			sm.DisplayName, ref, result.Name, len(result.Tracks))
		return result, nil
	}

	if tried == 0 {
		return nil, errors.Wrapf(ErrUnsupportedType, "no source supports %s", ref.Type)
	}
	if lastErr != nil {
		return nil, errors.Wrapf(lastErr, "all sources failed for %s", ref)
	}
	return nil, errors.Wrapf(ErrNotFound, "%s", ref)
}
