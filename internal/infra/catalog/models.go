// Package catalog provides read access to the local music catalog stored in MySQL.
package catalog

import (
	"time"

	"gorm.io/gorm"
)

// Artist is a catalog artist.
type Artist struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	Name      string         `gorm:"size:255;not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Album is a catalog album. Genre doubles as the tag used for tag collections.
type Album struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Title     string `gorm:"size:255;not null"`
	ArtistID  uint   `gorm:"index;not null"`
	Artist    Artist
	Genre     string `gorm:"size:64;index"`
	CoverKey  string `gorm:"size:512"` // Object key of the cover image
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Track is a catalog track.
type Track struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Title      string `gorm:"size:255;not null"`
	ArtistID   uint   `gorm:"index;not null"`
	Artist     Artist
	AlbumID    uint `gorm:"index"`
	Album      Album
	Position   int    `gorm:"default:0"` // Position within the album
	DurationMs int64  `gorm:"not null"`
	AudioKey   string `gorm:"size:512;not null"` // Object key of the audio file
	Explicit   bool   `gorm:"default:false"`
	Liked      bool   `gorm:"default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// Duration returns the track duration.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// Playlist is a user-curated list of tracks.
type Playlist struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:255;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// PlaylistItem places a track in a playlist.
type PlaylistItem struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	PlaylistID uint `gorm:"index;not null"`
	TrackID    uint `gorm:"index;not null"`
	Position   int  `gorm:"not null"`
	CreatedAt  time.Time
}

// Models lists every catalog model, for migrations.
func Models() []any {
	return []any{&Artist{}, &Album{}, &Track{}, &Playlist{}, &PlaylistItem{}}
}
