// Package collection provides the Collection domain entity: a track list
// (album, artist, playlist, tag chart or single track) fetched to seed the queue.
package collection

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19deck/internal/domain/track"
)

// Type represents the kind of collection.
type Type string

const (
	TypeAlbum    Type = "album"
	TypeArtist   Type = "artist"
	TypePlaylist Type = "playlist"
	TypeTag      Type = "tag"
	TypeTrack    Type = "track"
)

// ErrInvalidRef is returned when a collection key cannot be parsed.
var ErrInvalidRef = errors.New("invalid collection reference")

// Valid reports whether t is a known collection type.
func (t Type) Valid() bool {
	switch t {
	case TypeAlbum, TypeArtist, TypePlaylist, TypeTag, TypeTrack:
		return true
	default:
		return false
	}
}

// Ref identifies a collection.
type Ref struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}

// Key returns the "type:id" form used for in-flight tracking and caching.
func (r Ref) Key() string {
	return string(r.Type) + ":" + r.ID
}

// String implements fmt.Stringer.
func (r Ref) String() string {
	return r.Key()
}

// ParseRef parses a "type:id" key.
// The ID may itself contain colons (e.g. Spotify URIs).
func ParseRef(key string) (Ref, error) {
	typ, id, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok || id == "" {
		return Ref{}, errors.Wrapf(ErrInvalidRef, "%q", key)
	}
	ref := Ref{Type: Type(strings.ToLower(typ)), ID: id}
	if !ref.Type.Valid() {
		return Ref{}, errors.Wrapf(ErrInvalidRef, "unknown type %q", typ)
	}
	return ref, nil
}

// Collection represents a fetched track list.
type Collection struct {
	Ref    Ref           `json:"ref"`
	Name   string        `json:"name"`
	Tracks []track.Track `json:"tracks"`
}

// TrackIDs returns all track IDs in the collection.
func (c *Collection) TrackIDs() []string {
	ids := make([]string, len(c.Tracks))
	for i, t := range c.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks.
func (c *Collection) TotalDuration() time.Duration {
	return track.TotalDuration(c.Tracks)
}
