package source

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/domain/track"
)

type SpotifySourceConfig struct {
	MaxTracks int `yaml:"max_tracks" mapstructure:"max_tracks" default:"500" validate:"gte=1"`
}

// SpotifySource fetches albums, artist top tracks, playlists and single tracks from Spotify.
type SpotifySource struct {
	spotify SpotifyClient
	config  *SpotifySourceConfig
}

// NewSpotifySource creates a new SpotifySource.
func NewSpotifySource(spotify SpotifyClient, settings map[string]any) (*SpotifySource, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}

	var config SpotifySourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("spotify source config: %+v", config)

	return &SpotifySource{spotify: spotify, config: &config}, nil
}

// Name returns the source name.
func (s *SpotifySource) Name() string {
	return "spotify"
}

// Supports reports whether the source can fetch collections of the given type.
func (s *SpotifySource) Supports(typ collection.Type) bool {
	switch typ {
	case collection.TypeAlbum, collection.TypeArtist, collection.TypePlaylist, collection.TypeTrack:
		return true
	default:
		return false
	}
}

// Fetch retrieves the collection identified by ref.
func (s *SpotifySource) Fetch(ctx context.Context, ref collection.Ref) (*collection.Collection, error) {
	var (
		name   string
		tracks []track.Track
		err    error
	)

	switch ref.Type {
	case collection.TypeAlbum:
		name, tracks, err = s.spotify.GetAlbum(ctx, ref.ID)
	case collection.TypeArtist:
		name, tracks, err = s.spotify.GetArtistTopTracks(ctx, ref.ID)
	case collection.TypePlaylist:
		name, tracks, err = s.spotify.GetPlaylist(ctx, ref.ID)
	case collection.TypeTrack:
		var t *track.Track
		t, err = s.spotify.GetTrack(ctx, ref.ID)
		if err == nil {
			name, tracks = t.Title, []track.Track{*t}
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "spotify: %s", ref.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "spotify: failed to fetch %s", ref)
	}

	if len(tracks) > s.config.MaxTracks {
		zlog.Debug().Msgf("spotify: truncating collection: ref=%s tracks=%d max=%d", ref, len(tracks), s.config.MaxTracks)
		tracks = tracks[:s.config.MaxTracks]
	}

	return &collection.Collection{Ref: ref, Name: name, Tracks: tracks}, nil
}
