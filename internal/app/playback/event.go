package playback

import "time"

// EventType represents a session event type.
type EventType int

const (
	EventTrackChanged EventType = iota // A different queue entry became current (or restarted)
	EventStateChanged                  // Play/pause, volume or mute changed
	EventQueueChanged                  // Queue contents or order changed
	EventModeChanged                   // Shuffle or repeat changed
	EventProgress                      // Current time or duration changed
	EventError                         // A playback error was recorded or cleared
	EventViewChanged                   // Minimized / queue panel flags changed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventModeChanged:
		return "mode_changed"
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	case EventViewChanged:
		return "view_changed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e EventType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Event represents a session event.
type Event struct {
	Type     EventType
	Snapshot Snapshot // Session state right after the transition
}

// MediaEventType represents an event reported by the media element.
type MediaEventType int

const (
	MediaMetadataLoaded MediaEventType = iota // Duration of the loaded source is known
	MediaTimeUpdate                           // Playback position advanced
	MediaEnded                                // Playback reached the end of the source
	MediaError                                // Source failed to load or play
)

// String returns the string representation of the media event type.
func (e MediaEventType) String() string {
	switch e {
	case MediaMetadataLoaded:
		return "metadata_loaded"
	case MediaTimeUpdate:
		return "time_update"
	case MediaEnded:
		return "ended"
	case MediaError:
		return "error"
	default:
		return "unknown"
	}
}

// MediaEvent is a callback from the media element.
// Token is the token of the Source the event belongs to.
type MediaEvent struct {
	Type     MediaEventType
	Token    uint64
	Position time.Duration // MediaTimeUpdate
	Duration time.Duration // MediaMetadataLoaded
	Message  string        // MediaError
}
