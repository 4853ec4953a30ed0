// Package media provides a headless media element that advances playback
// against the wall clock.
package media

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/app/playback"
)

// Errors
var (
	ErrNotLoaded = errors.New("no source loaded")
)

// Config holds clock configuration.
type Config struct {
	TickInterval time.Duration // Interval between time updates (default 250ms)
	EventBuffer  int           // Capacity of the event channel (default 64)
}

// Clock is a playback.MediaElement with no audio output.
// Position is derived from the wall clock while playing.
type Clock struct {
	mu sync.Mutex

	config Config
	now    func() time.Time

	src       playback.Source
	loaded    bool
	playing   bool
	offset    time.Duration // Position when startedAt was taken
	startedAt time.Time
	volume    float64
	muted     bool

	// Events waiting to be delivered by Run
	pending []playback.MediaEvent
	wake    chan struct{}
	eventCh chan playback.MediaEvent
}

// NewClock creates a clock media element.
func NewClock(config Config) *Clock {
	if config.TickInterval <= 0 {
		config.TickInterval = 250 * time.Millisecond
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	return &Clock{
		config:  config,
		now:     func() time.Time { return toWallTime(time.Now()) },
		volume:  1,
		wake:    make(chan struct{}, 1),
		eventCh: make(chan playback.MediaEvent, config.EventBuffer),
	}
}

// Events returns the event channel. It is closed when Run returns.
func (c *Clock) Events() <-chan playback.MediaEvent {
	return c.eventCh
}

// Run advances the clock and delivers events until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	defer close(c.eventCh)

	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.advance()
		case <-c.wake:
		}

		// Deliver outside the lock; the receiver may call back into the clock.
		for _, ev := range c.takePending() {
			select {
			case c.eventCh <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Load replaces the current source. Playback is paused at position 0.
func (c *Clock) Load(src playback.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.src = src
	c.playing = false
	c.offset = 0
	c.startedAt = time.Time{}

	switch {
	case src.URL == "":
		c.loaded = false
		c.queueLocked(playback.MediaEvent{Type: playback.MediaError, Token: src.Token, Message: "track has no audio source"})
	case src.Duration <= 0:
		c.loaded = false
		c.queueLocked(playback.MediaEvent{Type: playback.MediaError, Token: src.Token, Message: "track duration is unknown"})
	default:
		c.loaded = true
		zlog.Debug().Msgf("media: loaded source: token=%d url=%s duration=%v", src.Token, src.URL, src.Duration)
		c.queueLocked(playback.MediaEvent{Type: playback.MediaMetadataLoaded, Token: src.Token, Duration: src.Duration})
	}
	return nil
}

// Play starts or resumes playback.
func (c *Clock) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return ErrNotLoaded
	}
	if c.playing {
		return nil
	}
	c.playing = true
	c.startedAt = c.now()
	return nil
}

// Pause freezes the position.
func (c *Clock) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return nil
	}
	c.offset = c.positionLocked()
	c.playing = false
	return nil
}

// Stop unloads the current source.
func (c *Clock) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.src = playback.Source{}
	c.loaded = false
	c.playing = false
	c.offset = 0
	return nil
}

// Seek moves the position, clamped to the source duration.
func (c *Clock) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return ErrNotLoaded
	}
	c.offset = clamp(pos, c.src.Duration)
	if c.playing {
		c.startedAt = c.now()
	}
	return nil
}

// SetVolume stores the output volume.
func (c *Clock) SetVolume(volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = volume
	return nil
}

// SetMuted stores the mute flag.
func (c *Clock) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	return nil
}

// Position returns the current playback position.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// IsPlaying reports whether the clock is running.
func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// advance emits a time update for the current position, or Ended once the
// position reaches the duration.
func (c *Clock) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return
	}

	pos := c.positionLocked()
	if pos >= c.src.Duration {
		c.offset = c.src.Duration
		c.playing = false
		zlog.Debug().Msgf("media: source ended: token=%d", c.src.Token)
		c.queueLocked(playback.MediaEvent{Type: playback.MediaTimeUpdate, Token: c.src.Token, Position: c.src.Duration})
		c.queueLocked(playback.MediaEvent{Type: playback.MediaEnded, Token: c.src.Token})
		return
	}
	c.queueLocked(playback.MediaEvent{Type: playback.MediaTimeUpdate, Token: c.src.Token, Position: pos})
}

func (c *Clock) takePending() []playback.MediaEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.pending
	c.pending = nil
	return events
}

// queueLocked schedules an event for delivery and wakes Run.
// Must be called with lock held.
func (c *Clock) queueLocked(ev playback.MediaEvent) {
	c.pending = append(c.pending, ev)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// positionLocked computes the current position.
// Must be called with lock held.
func (c *Clock) positionLocked() time.Duration {
	if !c.playing {
		return c.offset
	}
	return clamp(c.offset+c.now().Sub(c.startedAt), c.src.Duration)
}

func clamp(pos, limit time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if pos > limit {
		return limit
	}
	return pos
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
