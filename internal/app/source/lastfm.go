package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/domain/track"
	"github.com/osa030/19deck/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
}

type LastFmSourceConfig struct {
	APIKey      string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	TrackCount  int    `yaml:"track_count" mapstructure:"track_count" default:"30" validate:"gte=1,lte=100"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency" default:"4" validate:"gte=1,lte=16"`
}

// LastFmSource builds tag collections from Last.fm tag charts.
// Each chart entry is resolved to a playable Spotify track by search.
type LastFmSource struct {
	lastfm  LastFmClient
	spotify SpotifyClient

	// Cache for Spotify search results
	searchCache map[string]*track.Track
	cacheMutex  sync.RWMutex

	config *LastFmSourceConfig
}

// NewLastFmSource creates a new LastFmSource.
func NewLastFmSource(spotify SpotifyClient, settings map[string]any) (*LastFmSource, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmSourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}

	lastfmClient, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return newLastFmSource(lastfmClient, spotify, &config), nil
}

func newLastFmSource(lastfmClient LastFmClient, spotify SpotifyClient, config *LastFmSourceConfig) *LastFmSource {
	return &LastFmSource{
		lastfm:      lastfmClient,
		spotify:     spotify,
		searchCache: make(map[string]*track.Track),
		config:      config,
	}
}

// Name returns the source name.
func (s *LastFmSource) Name() string {
	return "lastfm"
}

// Supports reports whether the source can fetch collections of the given type.
func (s *LastFmSource) Supports(typ collection.Type) bool {
	return typ == collection.TypeTag
}

// Fetch retrieves the tag chart identified by ref, in chart order.
func (s *LastFmSource) Fetch(ctx context.Context, ref collection.Ref) (*collection.Collection, error) {
	if ref.Type != collection.TypeTag {
		return nil, errors.Wrapf(ErrUnsupportedType, "lastfm: %s", ref.Type)
	}

	chart, err := s.lastfm.GetTopTracks(ctx, ref.ID, s.config.TrackCount)
	if err != nil {
		return nil, errors.Wrapf(err, "lastfm: failed to fetch tag %s", ref.ID)
	}
	if len(chart) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "lastfm: tag %s", ref.ID)
	}

	// Resolve in parallel, keeping chart order through the indexed slice
	resolved := make([]*track.Track, len(chart))
	sem := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup

	for i, entry := range chart {
		wg.Add(1)
		go func(i int, entry lastfm.TopTrack) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			resolved[i] = s.searchOnSpotify(ctx, entry.Name, entry.Artist)
		}(i, entry)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "lastfm: resolve cancelled")
	}

	tracks := lo.UniqBy(
		lo.FilterMap(resolved, func(t *track.Track, _ int) (track.Track, bool) {
			if t == nil {
				return track.Track{}, false
			}
			return *t, true
		}),
		func(t track.Track) string { return t.ID },
	)

	zlog.Debug().Msgf("lastfm: resolved tag chart: tag=%s chart=%d resolved=%d", ref.ID, len(chart), len(tracks))

	if len(tracks) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "lastfm: no chart entry of tag %s found on spotify", ref.ID)
	}

	return &collection.Collection{Ref: ref, Name: ref.ID, Tracks: tracks}, nil
}

// searchOnSpotify searches for a track on Spotify with caching.
func (s *LastFmSource) searchOnSpotify(ctx context.Context, trackName, artistName string) *track.Track {
	key := fmt.Sprintf("%s:%s", trackName, artistName)

	// Check cache
	s.cacheMutex.RLock()
	if cached, ok := s.searchCache[key]; ok {
		s.cacheMutex.RUnlock()
		return cached
	}
	s.cacheMutex.RUnlock()

	query := fmt.Sprintf("track:%s artist:%s", trackName, artistName)
	results, err := s.spotify.Search(ctx, query, 1)
	if err != nil {
		// Transient failures are not cached
		zlog.Debug().Msgf("lastfm: spotify search failed: query=%q error=%v", query, err)
		return nil
	}

	var found *track.Track
	if len(results) > 0 {
		found = &results[0]
	}

	// Cache misses as nil to avoid repeated failed searches
	s.cacheMutex.Lock()
	s.searchCache[key] = found
	s.cacheMutex.Unlock()

	return found
}
