package playback

import (
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/domain/track"
)

// Errors
var (
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrTrackNotFound   = errors.New("track not in queue")
)

// Config holds session configuration.
type Config struct {
	InitialVolume    float64       // Volume of a fresh session, clamped to [0,1]
	RestartThreshold time.Duration // PreviousTrack restarts the current track past this position (0 disables)
	EventBuffer      int           // Capacity of the event channel
	Rand             *rand.Rand    // Source for shuffling (nil = time seeded)
}

// entry is a queue slot. serial distinguishes repeated tracks.
type entry struct {
	serial uint64
	track  track.Track
}

// Session is the single source of truth for what is playing and what comes next.
// Every method is one atomic transition; concurrent callers are serialized.
type Session struct {
	mu sync.Mutex

	media  Media
	config Config
	rng    *rand.Rand

	// Queue management
	queue        []entry
	original     []entry // Unshuffled order while shuffle is on
	currentIndex int
	nextSerial   uint64

	// Transport state
	isPlaying   bool
	currentTime time.Duration
	duration    time.Duration
	volume      float64
	isMuted     bool
	isShuffled  bool
	repeatMode  RepeatMode
	errMsg      string

	// View flags
	isMinimized bool
	isQueueOpen bool

	// Token of the source currently loaded in the media element
	token uint64

	// Events
	eventCh chan Event
	closed  bool
}

// NewSession creates an empty session bound to the given media element.
func NewSession(media Media, config Config) *Session {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	rng := config.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Session{
		media:        media,
		config:       config,
		rng:          rng,
		queue:        make([]entry, 0),
		currentIndex: NoIndex,
		volume:       clamp01(config.InitialVolume),
		eventCh:      make(chan Event, config.EventBuffer),
	}
	s.mediaCall("set volume", media.SetVolume(s.volume))
	return s
}

// Events returns the event channel.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// Close closes the event channel. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.eventCh)
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LoadQueue replaces the queue and starts playing the track at startIndex.
// An empty track list is ignored. startIndex is clamped to the queue.
func (s *Session) LoadQueue(tracks []track.Track, startIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tracks) == 0 {
		return
	}

	s.queue = make([]entry, 0, len(tracks))
	for _, t := range tracks {
		s.queue = append(s.queue, s.newEntry(t))
	}
	start := clampIndex(startIndex, len(s.queue))

	s.original = nil
	if s.isShuffled {
		s.original = append([]entry(nil), s.queue...)
		s.shuffleTailLocked(start)
	}

	zlog.Debug().Msgf("playback: queue loaded: tracks=%d start=%d shuffled=%v", len(s.queue), start, s.isShuffled)
	s.emitLocked(EventQueueChanged)
	s.startLocked(start, true)
}

// TogglePlay flips between playing and paused. No-op on an empty queue.
func (s *Session) TogglePlay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return
	}

	if s.isPlaying {
		s.isPlaying = false
		s.mediaCall("pause", s.media.Pause())
		s.emitLocked(EventStateChanged)
		return
	}

	// Stopped at the end of the track: play it again from the top
	if s.duration > 0 && s.currentTime >= s.duration {
		s.currentTime = 0
		s.mediaCall("seek", s.media.Seek(0))
	}
	s.playLocked()
	s.emitLocked(EventStateChanged)
}

// NextTrack advances the cursor according to the repeat mode.
func (s *Session) NextTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLocked()
}

// PreviousTrack moves the cursor back. At the start of the queue it wraps
// only when repeating all; otherwise it restarts the first track.
func (s *Session) PreviousTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return
	}

	if s.config.RestartThreshold > 0 && s.currentTime > s.config.RestartThreshold {
		s.startLocked(s.currentIndex, true)
		return
	}

	switch {
	case s.currentIndex > 0:
		s.startLocked(s.currentIndex-1, true)
	case s.repeatMode == RepeatAll:
		s.startLocked(len(s.queue)-1, true)
	default:
		s.startLocked(0, true)
	}
}

// SeekTo moves the playback position, clamped to [0, duration].
func (s *Session) SeekTo(pos time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return
	}

	s.currentTime = s.clampTime(pos)
	s.mediaCall("seek", s.media.Seek(s.currentTime))
	s.emitLocked(EventProgress)
}

// SetVolume sets the volume, clamped to [0,1]. Mute is left untouched.
func (s *Session) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = clamp01(volume)
	s.mediaCall("set volume", s.media.SetVolume(s.volume))
	s.emitLocked(EventStateChanged)
}

// ToggleMute flips mute without touching the stored volume.
func (s *Session) ToggleMute() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isMuted = !s.isMuted
	s.mediaCall("set muted", s.media.SetMuted(s.isMuted))
	s.emitLocked(EventStateChanged)
}

// ToggleShuffle flips shuffle.
// Enabling permutes the entries after the current one; the played prefix and
// the current entry stay in place. Disabling restores the original order.
func (s *Session) ToggleShuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isShuffled {
		s.isShuffled = false
		s.restoreOrderLocked()
	} else {
		s.isShuffled = true
		s.original = append(make([]entry, 0, len(s.queue)), s.queue...)
		s.shuffleTailLocked(s.currentIndex)
	}

	s.emitLocked(EventModeChanged)
	if len(s.queue) > 1 {
		s.emitLocked(EventQueueChanged)
	}
}

// ToggleRepeat cycles the repeat mode off -> all -> one -> off.
func (s *Session) ToggleRepeat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repeatMode = s.repeatMode.Next()
	s.emitLocked(EventModeChanged)
}

// SetRepeatMode sets the repeat mode directly.
func (s *Session) SetRepeatMode(mode RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repeatMode = mode
	s.emitLocked(EventModeChanged)
}

// AddToQueue appends a track. The cursor and playback state are unchanged,
// except that a track added to an empty queue becomes current (paused).
func (s *Session) AddToQueue(t track.Track) {
	s.AddAllToQueue([]track.Track{t})
}

// AddAllToQueue appends tracks in order as one transition.
func (s *Session) AddAllToQueue(tracks []track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(len(s.queue), NoIndex, tracks)
}

// PlayNext inserts a track right after the current entry.
func (s *Session) PlayNext(t track.Track) {
	s.PlayNextAll([]track.Track{t})
}

// PlayNextAll inserts tracks right after the current entry, keeping their
// order, as one transition.
func (s *Session) PlayNextAll(tracks []track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentIndex < 0 || s.currentIndex >= len(s.queue) {
		s.insertLocked(len(s.queue), NoIndex, tracks)
		return
	}
	s.insertLocked(s.currentIndex+1, s.currentIndex, tracks)
}

// insertLocked inserts tracks at pos. While shuffled, the unshuffled order
// gets them right after the queue entry at anchor, or at its end for NoIndex.
// A queue that was empty starts paused at its first entry.
// Must be called with lock held.
func (s *Session) insertLocked(pos, anchor int, tracks []track.Track) {
	if len(tracks) == 0 {
		return
	}
	wasEmpty := len(s.queue) == 0

	entries := make([]entry, len(tracks))
	for i, t := range tracks {
		entries[i] = s.newEntry(t)
	}

	if s.isShuffled {
		origPos := len(s.original)
		if anchor != NoIndex {
			origPos = indexOfSerial(s.original, s.queue[anchor].serial) + 1
		}
		s.original = slices.Insert(s.original, origPos, entries...)
	}
	s.queue = slices.Insert(s.queue, pos, entries...)

	s.emitLocked(EventQueueChanged)
	if wasEmpty {
		s.startLocked(0, false)
	}
}

// RemoveFromQueue removes the entry at index.
// Removing the current entry moves on as the end of the track would; removing
// the last remaining entry stops playback and empties the session.
func (s *Session) RemoveFromQueue(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.queue) {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d (queue length %d)", index, len(s.queue))
	}

	removed := s.queue[index]
	s.queue = append(s.queue[:index], s.queue[index+1:]...)
	if s.original != nil {
		if i := indexOfSerial(s.original, removed.serial); i >= 0 {
			s.original = append(s.original[:i], s.original[i+1:]...)
		}
	}
	s.emitLocked(EventQueueChanged)

	switch {
	case len(s.queue) == 0:
		s.stopLocked()
	case index < s.currentIndex:
		s.currentIndex--
	case index == s.currentIndex:
		s.replaceRemovedCurrentLocked()
	}
	return nil
}

// ReorderQueue moves the entry at from to position to. The current track
// stays current.
func (s *Session) ReorderQueue(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.queue)
	if from < 0 || from >= n || to < 0 || to >= n {
		return errors.Wrapf(ErrIndexOutOfRange, "move %d -> %d (queue length %d)", from, to, n)
	}
	if from == to {
		return nil
	}

	moved := s.queue[from]
	s.queue = append(s.queue[:from], s.queue[from+1:]...)
	s.queue = insertAt(s.queue, to, moved)
	if s.original != nil {
		s.reorderOriginalLocked(moved, to)
	}

	switch {
	case from == s.currentIndex:
		s.currentIndex = to
	case from < s.currentIndex && to >= s.currentIndex:
		s.currentIndex--
	case from > s.currentIndex && to <= s.currentIndex:
		s.currentIndex++
	}

	s.emitLocked(EventQueueChanged)
	return nil
}

// JumpToTrack makes the first entry with the given track ID current and plays
// it from the start.
func (s *Session) JumpToTrack(trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.queue {
		if e.track.ID == trackID {
			s.startLocked(i, true)
			return nil
		}
	}
	return errors.Wrapf(ErrTrackNotFound, "track %s", trackID)
}

// ClearQueue stops playback and empties the queue.
func (s *Session) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return
	}
	s.queue = s.queue[:0]
	if s.original != nil {
		s.original = s.original[:0]
	}
	s.emitLocked(EventQueueChanged)
	s.stopLocked()
}

// ClearError dismisses the last playback error.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.errMsg == "" {
		return
	}
	s.errMsg = ""
	s.emitLocked(EventError)
}

// ToggleMinimized flips the minimized view flag.
func (s *Session) ToggleMinimized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isMinimized = !s.isMinimized
	s.emitLocked(EventViewChanged)
}

// ToggleQueueOpen flips the queue panel view flag.
func (s *Session) ToggleQueueOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isQueueOpen = !s.isQueueOpen
	s.emitLocked(EventViewChanged)
}

// HandleMediaEvent applies an event reported by the media element.
// Events for a source other than the one currently loaded are ignored.
func (s *Session) HandleMediaEvent(ev MediaEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Token != s.token || len(s.queue) == 0 {
		zlog.Debug().Msgf("playback: ignoring stale media event: type=%s token=%d current=%d", ev.Type, ev.Token, s.token)
		return
	}

	switch ev.Type {
	case MediaMetadataLoaded:
		if ev.Duration > 0 {
			s.duration = ev.Duration
			s.currentTime = s.clampTime(s.currentTime)
		}
		s.emitLocked(EventProgress)

	case MediaTimeUpdate:
		s.currentTime = s.clampTime(ev.Position)
		s.emitLocked(EventProgress)

	case MediaEnded:
		s.currentTime = s.duration
		zlog.Debug().Msgf("playback: track ended: index=%d repeat=%s", s.currentIndex, s.repeatMode)
		if s.repeatMode == RepeatOne {
			s.startLocked(s.currentIndex, true)
			return
		}
		s.nextLocked()

	case MediaError:
		msg := ev.Message
		if msg == "" {
			msg = "playback failed"
		}
		s.failLocked(msg)
	}
}

// Progress returns the position as a percentage of the duration.
func (s *Session) Progress() float64 { return s.Snapshot().Progress() }

// RemainingTime returns the time left in the current track.
func (s *Session) RemainingTime() time.Duration { return s.Snapshot().RemainingTime() }

// QueueDuration returns the summed duration of the queue.
func (s *Session) QueueDuration() time.Duration { return s.Snapshot().QueueDuration() }

// RemainingQueueTime returns the time left in the current track and everything after it.
func (s *Session) RemainingQueueTime() time.Duration { return s.Snapshot().RemainingQueueTime() }

// IsTrackInQueue reports whether the track is queued.
func (s *Session) IsTrackInQueue(trackID string) bool { return s.Snapshot().IsTrackInQueue(trackID) }

// IsCurrentTrack reports whether the track is the current one.
func (s *Session) IsCurrentTrack(trackID string) bool { return s.Snapshot().IsCurrentTrack(trackID) }

// TrackPosition returns the queue position of the track, or -1.
func (s *Session) TrackPosition(trackID string) int { return s.Snapshot().TrackPosition(trackID) }

// nextLocked advances the cursor according to the repeat mode.
// Must be called with lock held.
func (s *Session) nextLocked() {
	if len(s.queue) == 0 {
		return
	}

	switch {
	case s.repeatMode == RepeatOne:
		s.startLocked(s.currentIndex, true)
	case s.currentIndex < len(s.queue)-1:
		s.startLocked(s.currentIndex+1, true)
	case s.repeatMode == RepeatAll:
		s.startLocked(0, true)
	default:
		// End of queue: stay on the last track, stopped
		if s.isPlaying {
			s.isPlaying = false
			s.mediaCall("pause", s.media.Pause())
		}
		zlog.Debug().Msg("playback: reached end of queue")
		s.emitLocked(EventStateChanged)
	}
}

// replaceRemovedCurrentLocked picks the entry that takes over after the
// current entry was removed. s.currentIndex still holds the removed position.
// Must be called with lock held and a non-empty queue.
func (s *Session) replaceRemovedCurrentLocked() {
	if s.currentIndex < len(s.queue) {
		s.startLocked(s.currentIndex, true)
		return
	}
	if s.repeatMode == RepeatAll {
		s.startLocked(0, true)
		return
	}
	s.startLocked(len(s.queue)-1, false)
}

// startLocked makes the entry at index current, loads it from the start and
// plays it if autoplay is set.
// Must be called with lock held.
func (s *Session) startLocked(index int, autoplay bool) {
	cur := s.queue[index].track

	s.currentIndex = index
	s.currentTime = 0
	s.duration = cur.Duration
	s.errMsg = ""
	s.isPlaying = false
	s.token++

	zlog.Debug().Msgf("playback: loading track: index=%d id=%s title=%s token=%d autoplay=%v",
		index, cur.ID, cur.Title, s.token, autoplay)

	if err := s.media.Load(Source{Token: s.token, URL: cur.AudioURL, Duration: cur.Duration}); err != nil {
		s.failLocked(errors.Wrap(err, "failed to load track").Error())
		s.emitLocked(EventTrackChanged)
		return
	}
	if autoplay {
		s.playLocked()
	}
	s.emitLocked(EventTrackChanged)
}

// playLocked starts the media element and records the outcome.
// Must be called with lock held.
func (s *Session) playLocked() {
	if err := s.media.Play(); err != nil {
		s.failLocked(errors.Wrap(err, "failed to start playback").Error())
		return
	}
	s.isPlaying = true
}

// stopLocked unloads the media element and resets the cursor.
// Must be called with lock held.
func (s *Session) stopLocked() {
	s.currentIndex = NoIndex
	s.isPlaying = false
	s.currentTime = 0
	s.duration = 0
	s.token++
	s.mediaCall("stop", s.media.Stop())
	s.emitLocked(EventTrackChanged)
}

// failLocked records a playback error. No retry is attempted.
// Must be called with lock held.
func (s *Session) failLocked(msg string) {
	zlog.Warn().Msgf("playback: %s", msg)
	s.errMsg = msg
	s.isPlaying = false
	s.emitLocked(EventError)
}

// shuffleTailLocked permutes the entries after index.
// Must be called with lock held.
func (s *Session) shuffleTailLocked(index int) {
	tail := s.queue[index+1:]
	s.rng.Shuffle(len(tail), func(i, j int) {
		tail[i], tail[j] = tail[j], tail[i]
	})
}

// restoreOrderLocked puts the queue back in its unshuffled order and keeps the
// current entry current.
// Must be called with lock held.
func (s *Session) restoreOrderLocked() {
	if s.original == nil {
		return
	}
	var currentSerial uint64
	hasCurrent := s.currentIndex >= 0 && s.currentIndex < len(s.queue)
	if hasCurrent {
		currentSerial = s.queue[s.currentIndex].serial
	}

	s.queue = s.original
	s.original = nil

	if hasCurrent {
		s.currentIndex = indexOfSerial(s.queue, currentSerial)
	}
}

// reorderOriginalLocked repeats a move made while shuffled on the unshuffled
// order: the moved entry follows the same entry it now follows in the queue.
// Must be called with lock held.
func (s *Session) reorderOriginalLocked(moved entry, to int) {
	if i := indexOfSerial(s.original, moved.serial); i >= 0 {
		s.original = append(s.original[:i], s.original[i+1:]...)
	}
	pos := 0
	if to > 0 {
		pos = indexOfSerial(s.original, s.queue[to-1].serial) + 1
	}
	s.original = insertAt(s.original, pos, moved)
}

// mediaCall logs a failed media command that does not affect playback state.
func (s *Session) mediaCall(op string, err error) {
	if err != nil {
		zlog.Warn().Msgf("playback: media %s failed: %v", op, err)
	}
}

func (s *Session) newEntry(t track.Track) entry {
	s.nextSerial++
	return entry{serial: s.nextSerial, track: t}
}

func (s *Session) clampTime(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if pos > s.duration {
		return s.duration
	}
	return pos
}

// snapshotLocked copies the state.
// Must be called with lock held.
func (s *Session) snapshotLocked() Snapshot {
	tracks := make([]track.Track, len(s.queue))
	for i, e := range s.queue {
		tracks[i] = e.track
	}
	return Snapshot{
		Queue:        tracks,
		CurrentIndex: s.currentIndex,
		IsPlaying:    s.isPlaying,
		CurrentTime:  s.currentTime,
		Duration:     s.duration,
		Volume:       s.volume,
		IsMuted:      s.isMuted,
		IsShuffled:   s.isShuffled,
		RepeatMode:   s.repeatMode,
		IsMinimized:  s.isMinimized,
		IsQueueOpen:  s.isQueueOpen,
		Error:        s.errMsg,
	}
}

// emitLocked sends an event without blocking.
// Must be called with lock held.
func (s *Session) emitLocked(t EventType) {
	if s.closed {
		return
	}
	select {
	case s.eventCh <- Event{Type: t, Snapshot: s.snapshotLocked()}:
	default:
		// Channel full, drop event
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func indexOfSerial(entries []entry, serial uint64) int {
	for i, e := range entries {
		if e.serial == serial {
			return i
		}
	}
	return -1
}

func insertAt(entries []entry, pos int, e entry) []entry {
	entries = append(entries, entry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = e
	return entries
}
