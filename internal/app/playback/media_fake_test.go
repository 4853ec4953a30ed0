package playback

import (
	"math/rand"
	"time"

	"github.com/osa030/19deck/internal/domain/track"
)

// fakeMedia records commands issued by the session.
type fakeMedia struct {
	loaded   []Source
	playing  bool
	position time.Duration
	volume   float64
	muted    bool
	stopped  int

	loadErr error
	playErr error
}

func (m *fakeMedia) Load(src Source) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = append(m.loaded, src)
	m.position = 0
	m.playing = false
	return nil
}

func (m *fakeMedia) Play() error {
	if m.playErr != nil {
		return m.playErr
	}
	m.playing = true
	return nil
}

func (m *fakeMedia) Pause() error {
	m.playing = false
	return nil
}

func (m *fakeMedia) Stop() error {
	m.playing = false
	m.stopped++
	return nil
}

func (m *fakeMedia) Seek(pos time.Duration) error {
	m.position = pos
	return nil
}

func (m *fakeMedia) SetVolume(v float64) error {
	m.volume = v
	return nil
}

func (m *fakeMedia) SetMuted(muted bool) error {
	m.muted = muted
	return nil
}

func (m *fakeMedia) lastSource() Source {
	if len(m.loaded) == 0 {
		return Source{}
	}
	return m.loaded[len(m.loaded)-1]
}

func newTestSession(media *fakeMedia) *Session {
	return NewSession(media, Config{
		InitialVolume: 0.8,
		Rand:          rand.New(rand.NewSource(42)),
	})
}

func testTrack(id string, seconds int) track.Track {
	return track.Track{
		ID:       id,
		Title:    "Track " + id,
		AudioURL: "https://cdn.example.com/" + id + ".mp3",
		Duration: time.Duration(seconds) * time.Second,
	}
}

func abc() []track.Track {
	return []track.Track{testTrack("A", 180), testTrack("B", 200), testTrack("C", 150)}
}

func queueIDs(s Snapshot) []string {
	ids := make([]string, len(s.Queue))
	for i, t := range s.Queue {
		ids[i] = t.ID
	}
	return ids
}
