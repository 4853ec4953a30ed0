package playback

import "time"

// Source is an audio source handed to the media element.
type Source struct {
	Token    uint64        // Increases with every load; echoed back in MediaEvent
	URL      string        // Audio URL
	Duration time.Duration // Duration hint from the catalog
}

// Media is the command side of a media element.
// Implementations must not block and must not call back into the session
// synchronously; progress is reported through MediaEvents.
type Media interface {
	Load(src Source) error
	Play() error
	Pause() error
	Stop() error
	Seek(pos time.Duration) error
	SetVolume(volume float64) error
	SetMuted(muted bool) error
}

// MediaElement is a Media that also reports events.
type MediaElement interface {
	Media
	Events() <-chan MediaEvent
}
