// Package track provides the Track domain entity.
package track

import "time"

// Track represents a playable catalog track.
// Contains only what is needed to display and play it.
type Track struct {
	ID          string        `json:"id"`                    // Catalog track ID
	Title       string        `json:"title"`                 // Track title
	Artists     []string      `json:"artists,omitempty"`     // Artist names
	Album       string        `json:"album,omitempty"`       // Album name
	AlbumArtURL string        `json:"albumArtUrl,omitempty"` // Album art URL
	AudioURL    string        `json:"audioUrl"`              // Audio source URL handed to the media element
	Duration    time.Duration `json:"duration"`              // Track duration
	Liked       bool          `json:"liked"`                 // Liked by the current user
	Explicit    bool          `json:"explicit,omitempty"`    // Explicit content flag
	Markets     []string      `json:"markets,omitempty"`     // Available markets (empty = everywhere)
	IsPlayable  *bool         `json:"isPlayable,omitempty"`  // Playable in the configured market (nil if unknown)
}

// HasSource reports whether the track carries an audio source.
func (t *Track) HasSource() bool {
	return t.AudioURL != ""
}

// MainArtist returns the first artist name, or "" if none.
func (t *Track) MainArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// IsAvailableInMarket checks if the track is available in the specified market.
func (t *Track) IsAvailableInMarket(market string) bool {
	// IsPlayable, when reported by the catalog, wins over the market list
	if t.IsPlayable != nil {
		return *t.IsPlayable
	}

	// No market restrictions recorded
	if len(t.Markets) == 0 || market == "" {
		return true
	}

	for _, m := range t.Markets {
		if m == market {
			return true
		}
	}
	return false
}

// TotalDuration sums the durations of the given tracks.
func TotalDuration(tracks []Track) time.Duration {
	var total time.Duration
	for _, t := range tracks {
		total += t.Duration
	}
	return total
}

// IndexOf returns the position of the track with the given ID, or -1.
func IndexOf(tracks []Track, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
