// Package player provides the player service: the owner of the playback
// session, its media element, the collection loader and subscriber notifications.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/app/keymap"
	"github.com/osa030/19deck/internal/app/loader"
	"github.com/osa030/19deck/internal/app/notification"
	"github.com/osa030/19deck/internal/app/playback"
	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/domain/track"
)

var (
	ErrAlreadyRunning = errors.New("player service is already running")
)

// MediaRunner is a media element driven by its own loop.
type MediaRunner interface {
	playback.MediaElement
	Run(ctx context.Context) error
}

// Config holds player service configuration.
type Config struct {
	Session     playback.Config
	Loader      loader.Config
	SendTimeout time.Duration // Per-subscriber notification timeout
}

// Status describes the service outside of the session state.
type Status struct {
	SessionID   string
	StartedAt   time.Time
	Loading     []string
	Subscribers int
}

// Service manages the playback session.
type Service struct {
	id        string
	startedAt time.Time

	// Components
	media        MediaRunner
	session      *playback.Session
	loader       *loader.Loader
	notification *notification.Manager

	mu      sync.Mutex
	running bool
}

// New creates a player service. filter may be nil.
func New(media MediaRunner, fetcher loader.Fetcher, filter loader.Filter, cfg Config) *Service {
	session := playback.NewSession(media, cfg.Session)
	notifications := notification.NewManager()
	notifications.SetSendTimeout(cfg.SendTimeout)

	return &Service{
		id:           uuid.New().String(),
		startedAt:    time.Now(),
		media:        media,
		session:      session,
		loader:       loader.New(fetcher, filter, session, cfg.Loader),
		notification: notifications,
	}
}

// Run runs the media element, pumps media events into the session and
// forwards session events to subscribers until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	zlog.Info().Msgf("player service started: session_id=%s", s.id)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.media.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error().Msgf("media element stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.notificationLoop(ctx)
	}()

	s.mediaLoop(ctx)
	cancel()
	wg.Wait()

	zlog.Info().Msgf("player service stopped: session_id=%s", s.id)
	return nil
}

// mediaLoop feeds media events to the session in arrival order.
func (s *Service) mediaLoop(ctx context.Context) {
	events := s.media.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleMediaEvent(ev)
		}
	}
}

func (s *Service) handleMediaEvent(ev playback.MediaEvent) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("media event handler panicked: type=%s panic=%v", ev.Type, r)
		}
	}()
	if ev.Type != playback.MediaTimeUpdate {
		zlog.Debug().Msgf("media event: type=%s token=%d", ev.Type, ev.Token)
	}
	s.session.HandleMediaEvent(ev)
}

// notificationLoop broadcasts session events.
func (s *Service) notificationLoop(ctx context.Context) {
	events := s.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.notification.Broadcast(ev.Type.String(), ev.Snapshot)
		}
	}
}

// Close releases the session and drops all subscribers.
func (s *Service) Close() {
	s.session.Close()
	s.notification.Close()
}

// ID returns the session ID.
func (s *Service) ID() string {
	return s.id
}

// Session returns the playback session.
func (s *Service) Session() *playback.Session {
	return s.session
}

// Loader returns the collection loader.
func (s *Service) Loader() *loader.Loader {
	return s.loader
}

// Notifications returns the notification manager.
func (s *Service) Notifications() *notification.Manager {
	return s.notification
}

// Status returns the service status.
func (s *Service) Status() Status {
	return Status{
		SessionID:   s.id,
		StartedAt:   s.startedAt,
		Loading:     s.loader.Loading(),
		Subscribers: s.notification.SubscriberCount(),
	}
}

// PlayCollection loads a collection into the queue and starts playing it.
func (s *Service) PlayCollection(ctx context.Context, req loader.Request) (*loader.Result, error) {
	return s.loader.Play(ctx, req)
}

// Enqueue resolves ref and adds its tracks to the queue.
// With next set, the tracks are inserted right after the current one, in order.
// On an empty queue both modes seed the queue without starting playback.
func (s *Service) Enqueue(ctx context.Context, ref collection.Ref, next bool) ([]track.Track, error) {
	tracks, _, err := s.loader.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	if next {
		s.session.PlayNextAll(tracks)
	} else {
		s.session.AddAllToQueue(tracks)
	}
	return tracks, nil
}

// PressKey applies a keyboard shortcut to the session.
func (s *Service) PressKey(key string) (string, error) {
	action, err := keymap.Handle(s.session, key)
	if err != nil {
		return "", err
	}
	zlog.Debug().Msgf("key pressed: key=%q action=%s", key, action)
	return action, nil
}
