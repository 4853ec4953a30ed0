package playback

import (
	"time"

	"github.com/osa030/19deck/internal/domain/track"
)

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	Queue        []track.Track `json:"queue"`
	CurrentIndex int           `json:"currentIndex"`
	IsPlaying    bool          `json:"isPlaying"`
	CurrentTime  time.Duration `json:"currentTime"`
	Duration     time.Duration `json:"duration"`
	Volume       float64       `json:"volume"`
	IsMuted      bool          `json:"isMuted"`
	IsShuffled   bool          `json:"isShuffled"`
	RepeatMode   RepeatMode    `json:"repeatMode"`
	IsMinimized  bool          `json:"isMinimized"`
	IsQueueOpen  bool          `json:"isQueueOpen"`
	Error        string        `json:"error,omitempty"`
}

// State returns the coarse playback state.
func (s Snapshot) State() State {
	switch {
	case len(s.Queue) == 0:
		return StateIdle
	case s.IsPlaying:
		return StatePlaying
	default:
		return StatePaused
	}
}

// CurrentTrack returns the current track, or nil when the queue is empty.
func (s Snapshot) CurrentTrack() *track.Track {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return nil
	}
	t := s.Queue[s.CurrentIndex]
	return &t
}

// Progress returns the playback position as a percentage of the duration.
// Returns 0 when the duration is unknown.
func (s Snapshot) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.CurrentTime) / float64(s.Duration) * 100
}

// RemainingTime returns the time left in the current track.
func (s Snapshot) RemainingTime() time.Duration {
	return s.Duration - s.CurrentTime
}

// QueueDuration returns the summed duration of every queue entry.
func (s Snapshot) QueueDuration() time.Duration {
	return track.TotalDuration(s.Queue)
}

// RemainingQueueTime returns the remaining time of the current track plus the
// durations of all entries after it.
func (s Snapshot) RemainingQueueTime() time.Duration {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return 0
	}
	return s.RemainingTime() + track.TotalDuration(s.Queue[s.CurrentIndex+1:])
}

// IsTrackInQueue reports whether a track with the given ID is queued.
func (s Snapshot) IsTrackInQueue(trackID string) bool {
	return track.IndexOf(s.Queue, trackID) >= 0
}

// IsCurrentTrack reports whether the current track has the given ID.
func (s Snapshot) IsCurrentTrack(trackID string) bool {
	cur := s.CurrentTrack()
	return cur != nil && cur.ID == trackID
}

// TrackPosition returns the queue position of the track with the given ID, or -1.
func (s Snapshot) TrackPosition(trackID string) int {
	return track.IndexOf(s.Queue, trackID)
}
