package source

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/domain/track"
	"github.com/osa030/19deck/internal/infra/catalog"
)

// CatalogRepository defines the catalog reads needed by the catalog source.
type CatalogRepository interface {
	Track(ctx context.Context, id uint) (*catalog.Track, error)
	Album(ctx context.Context, id uint) (*catalog.Album, []catalog.Track, error)
	ArtistTracks(ctx context.Context, id uint, limit int) (*catalog.Artist, []catalog.Track, error)
	Playlist(ctx context.Context, id uint) (*catalog.Playlist, []catalog.Track, error)
	GenreTracks(ctx context.Context, genre string, limit int) ([]catalog.Track, error)
}

// Presigner turns object keys into playable URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, key string) (string, error)
}

type CatalogSourceConfig struct {
	ArtistLimit int `yaml:"artist_limit" mapstructure:"artist_limit" default:"100" validate:"gte=1"`
	TagLimit    int `yaml:"tag_limit" mapstructure:"tag_limit" default:"50" validate:"gte=1"`
}

// CatalogSource fetches collections from the local MySQL catalog.
// Audio and cover object keys are presigned so the media element can stream them.
type CatalogSource struct {
	repo      CatalogRepository
	presigner Presigner
	config    *CatalogSourceConfig
}

// NewCatalogSource creates a new CatalogSource.
func NewCatalogSource(repo CatalogRepository, presigner Presigner, settings map[string]any) (*CatalogSource, error) {
	if repo == nil || presigner == nil {
		return nil, errors.New("catalog repository and presigner are required")
	}

	var config CatalogSourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}

	return &CatalogSource{repo: repo, presigner: presigner, config: &config}, nil
}

// Name returns the source name.
func (s *CatalogSource) Name() string {
	return "catalog"
}

// Supports reports whether the source can fetch collections of the given type.
func (s *CatalogSource) Supports(typ collection.Type) bool {
	return typ.Valid()
}

// Fetch retrieves the collection identified by ref.
func (s *CatalogSource) Fetch(ctx context.Context, ref collection.Ref) (*collection.Collection, error) {
	var (
		name string
		rows []catalog.Track
		err  error
	)

	if ref.Type == collection.TypeTag {
		name = ref.ID
		rows, err = s.repo.GenreTracks(ctx, ref.ID, s.config.TagLimit)
	} else {
		id, perr := strconv.ParseUint(ref.ID, 10, 64)
		if perr != nil {
			// Not a catalog ID; let the next source try
			return nil, errors.Wrapf(ErrNotFound, "catalog: %s", ref)
		}
		name, rows, err = s.fetchByID(ctx, ref.Type, uint(id))
	}
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "catalog: %s", ref)
		}
		return nil, errors.Wrapf(err, "catalog: failed to fetch %s", ref)
	}

	tracks := make([]track.Track, 0, len(rows))
	for _, row := range rows {
		tracks = append(tracks, s.convertTrack(ctx, row))
	}

	return &collection.Collection{Ref: ref, Name: name, Tracks: tracks}, nil
}

func (s *CatalogSource) fetchByID(ctx context.Context, typ collection.Type, id uint) (string, []catalog.Track, error) {
	switch typ {
	case collection.TypeAlbum:
		album, rows, err := s.repo.Album(ctx, id)
		if err != nil {
			return "", nil, err
		}
		return album.Title, rows, nil
	case collection.TypeArtist:
		artist, rows, err := s.repo.ArtistTracks(ctx, id, s.config.ArtistLimit)
		if err != nil {
			return "", nil, err
		}
		return artist.Name, rows, nil
	case collection.TypePlaylist:
		playlist, rows, err := s.repo.Playlist(ctx, id)
		if err != nil {
			return "", nil, err
		}
		return playlist.Name, rows, nil
	case collection.TypeTrack:
		row, err := s.repo.Track(ctx, id)
		if err != nil {
			return "", nil, err
		}
		return row.Title, []catalog.Track{*row}, nil
	default:
		return "", nil, errors.Wrapf(ErrUnsupportedType, "catalog: %s", typ)
	}
}

// convertTrack converts a catalog row to a domain track.
// A row whose audio cannot be presigned is kept without a source.
func (s *CatalogSource) convertTrack(ctx context.Context, row catalog.Track) track.Track {
	t := track.Track{
		ID:       strconv.FormatUint(uint64(row.ID), 10),
		Title:    row.Title,
		Album:    row.Album.Title,
		Duration: row.Duration(),
		Liked:    row.Liked,
		Explicit: row.Explicit,
	}
	if row.Artist.Name != "" {
		t.Artists = []string{row.Artist.Name}
	}

	if u, err := s.presigner.PresignedURL(ctx, row.AudioKey); err != nil {
		zlog.Warn().Msgf("catalog: failed to presign audio: track=%d error=%v", row.ID, err)
	} else {
		t.AudioURL = u
	}

	if row.Album.CoverKey != "" {
		if u, err := s.presigner.PresignedURL(ctx, row.Album.CoverKey); err != nil {
			zlog.Debug().Msgf("catalog: failed to presign cover: album=%d error=%v", row.AlbumID, err)
		} else {
			t.AlbumArtURL = u
		}
	}

	return t
}
