// Package source provides collection sources: the catalogs a queue is seeded from.
package source

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/domain/track"
)

// Errors
var (
	ErrUnsupportedType = errors.New("collection type not supported")
	ErrNotFound        = errors.New("collection not found")
)

// Source is the interface for collection sources.
// Different implementations fetch collections from different catalogs
// (e.g., Spotify, a local MySQL catalog, Last.fm tag charts).
type Source interface {
	// Name returns the source name (used in config).
	Name() string

	// Supports reports whether the source can fetch collections of the given type.
	Supports(typ collection.Type) bool

	// Fetch retrieves the collection identified by ref.
	Fetch(ctx context.Context, ref collection.Ref) (*collection.Collection, error)
}

// SpotifyClient defines the interface for Spotify operations needed by sources.
type SpotifyClient interface {
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
	GetAlbum(ctx context.Context, albumID string) (string, []track.Track, error)
	GetArtistTopTracks(ctx context.Context, artistID string) (string, []track.Track, error)
	GetPlaylist(ctx context.Context, playlistURL string) (string, []track.Track, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// decodeSettings applies defaults, decodes source settings over them and validates.
// Explicit zero values in settings are kept and validated.
func decodeSettings(settings map[string]any, config any) error {
	if err := defaults.Set(config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := mapstructure.Decode(settings, config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
