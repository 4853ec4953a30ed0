package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
)

// Errors
var (
	ErrNotFound = errors.New("catalog record not found")
)

// Repository reads the catalog. Soft-deleted rows are never returned.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a catalog repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Track returns a single track.
func (r *Repository) Track(ctx context.Context, id uint) (*Track, error) {
	var t Track
	err := withTrackRelations(r.db.WithContext(ctx)).First(&t, id).Error
	if err != nil {
		return nil, notFound(err, "track %d", id)
	}
	return &t, nil
}

// Album returns an album and its tracks in album order.
func (r *Repository) Album(ctx context.Context, id uint) (*Album, []Track, error) {
	var album Album
	if err := r.db.WithContext(ctx).First(&album, id).Error; err != nil {
		return nil, nil, notFound(err, "album %d", id)
	}

	var tracks []Track
	if err := albumTracks(r.db.WithContext(ctx), id).Find(&tracks).Error; err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list tracks of album %d", id)
	}
	return &album, tracks, nil
}

// ArtistTracks returns an artist and all of the artist's tracks, newest album first.
func (r *Repository) ArtistTracks(ctx context.Context, id uint, limit int) (*Artist, []Track, error) {
	var artist Artist
	if err := r.db.WithContext(ctx).First(&artist, id).Error; err != nil {
		return nil, nil, notFound(err, "artist %d", id)
	}

	var tracks []Track
	if err := artistTracks(r.db.WithContext(ctx), id, limit).Find(&tracks).Error; err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list tracks of artist %d", id)
	}
	return &artist, tracks, nil
}

// Playlist returns a playlist and its tracks in playlist order.
func (r *Repository) Playlist(ctx context.Context, id uint) (*Playlist, []Track, error) {
	var playlist Playlist
	if err := r.db.WithContext(ctx).First(&playlist, id).Error; err != nil {
		return nil, nil, notFound(err, "playlist %d", id)
	}

	var tracks []Track
	if err := playlistTracks(r.db.WithContext(ctx), id).Find(&tracks).Error; err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list tracks of playlist %d", id)
	}
	return &playlist, tracks, nil
}

// GenreTracks returns tracks whose album carries the given genre.
func (r *Repository) GenreTracks(ctx context.Context, genre string, limit int) ([]Track, error) {
	var tracks []Track
	if err := genreTracks(r.db.WithContext(ctx), genre, limit).Find(&tracks).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to list tracks of genre %s", genre)
	}
	return tracks, nil
}

func withTrackRelations(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Artist").Preload("Album")
}

func albumTracks(tx *gorm.DB, albumID uint) *gorm.DB {
	return withTrackRelations(tx).
		Where("album_id = ?", albumID).
		Order("position").Order("id")
}

func artistTracks(tx *gorm.DB, artistID uint, limit int) *gorm.DB {
	q := withTrackRelations(tx).
		Joins("JOIN albums ON albums.id = tracks.album_id AND albums.deleted_at IS NULL").
		Where("tracks.artist_id = ?", artistID).
		Order("albums.created_at DESC").Order("tracks.position")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

func playlistTracks(tx *gorm.DB, playlistID uint) *gorm.DB {
	return withTrackRelations(tx).
		Joins("JOIN playlist_items ON playlist_items.track_id = tracks.id").
		Where("playlist_items.playlist_id = ?", playlistID).
		Order("playlist_items.position")
}

func genreTracks(tx *gorm.DB, genre string, limit int) *gorm.DB {
	q := withTrackRelations(tx).
		Joins("JOIN albums ON albums.id = tracks.album_id AND albums.deleted_at IS NULL").
		Where("albums.genre = ?", genre).
		Order("tracks.liked DESC").Order("tracks.id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, "failed to load "+format, args...)
}
