package filter

import (
	"context"

	"github.com/osa030/19deck/internal/domain/track"
)

const playableFilterName = "playable_filter"

// PlayableFilterConfig represents the configuration for PlayableFilter.
type PlayableFilterConfig struct {
	Market string `yaml:"market" mapstructure:"market" validate:"omitempty,len=2"`
}

// PlayableFilter rejects tracks the media element cannot play:
// tracks without an audio source and tracks unavailable in the market.
type PlayableFilter struct {
	market string
}

// NewPlayableFilter creates a new PlayableFilter for the specified market.
// An empty market disables the market check.
func NewPlayableFilter(market string) *PlayableFilter {
	return &PlayableFilter{market: market}
}

func (f *PlayableFilter) Name() string {
	return playableFilterName
}

func (f *PlayableFilter) Description() string {
	return "Rejects tracks without an audio source or unavailable in the configured market (always on)"
}

func (f *PlayableFilter) ReturnCodes() []string {
	return []string{"no_audio_source", "market_restriction"}
}

func (f *PlayableFilter) ValidateConfig(settings map[string]any) error {
	var config PlayableFilterConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	if config.Market != "" {
		f.market = config.Market
	}
	return nil
}

func (f *PlayableFilter) Check(ctx context.Context, t track.Track, accepted []track.Track) Result {
	if !t.HasSource() {
		return Reject("no_audio_source")
	}
	if !t.IsAvailableInMarket(f.market) {
		return Reject("market_restriction")
	}
	return Accept()
}

func init() {
	Register(playableFilterName, func() Filter {
		return &PlayableFilter{}
	})
}
