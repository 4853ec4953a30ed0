package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/domain/track"
	"github.com/osa030/19deck/internal/infra/config"
)

// Rejection records why a track was left out of a collection.
type Rejection struct {
	TrackID string `json:"trackId"`
	Filter  string `json:"filter"`
	Code    string `json:"code"`
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig creates a chain with the playable filter for market
// followed by every registered filter enabled in cfg, in name order.
func NewChainFromConfig(cfg *config.Config, market string) (*Chain, error) {
	c := NewChain()
	c.Add(NewPlayableFilter(market))

	for _, name := range RegisteredNames() {
		if name == playableFilterName || !cfg.IsFilterEnabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(cfg.FilterSettings(name)); err != nil {
			return nil, errors.Wrapf(err, "invalid config for filter %s", name)
		}
		c.Add(f)
		zlog.Info().Msgf("registered filter: name=%s", name)
	}
	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Check runs all filters on a single track.
// Returns immediately if any filter rejects it.
func (c *Chain) Check(ctx context.Context, t track.Track, accepted []track.Track) (Result, string) {
	for _, f := range c.filters {
		result := f.Check(ctx, t, accepted)
		if !result.Accepted {
			return result, f.Name()
		}
	}
	return Accept(), ""
}

// Apply runs the chain over tracks in order and returns the admitted tracks
// and the rejections. The input slice is not modified.
func (c *Chain) Apply(ctx context.Context, tracks []track.Track) ([]track.Track, []Rejection) {
	accepted := make([]track.Track, 0, len(tracks))
	var rejected []Rejection

	for _, t := range tracks {
		result, name := c.Check(ctx, t, accepted)
		if !result.Accepted {
			zlog.Debug().Msgf("track rejected: track=%s filter=%s code=%s", t.ID, name, result.Code)
			rejected = append(rejected, Rejection{TrackID: t.ID, Filter: name, Code: result.Code})
			continue
		}
		accepted = append(accepted, t)
	}
	return accepted, rejected
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
