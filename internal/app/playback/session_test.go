package playback

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19deck/internal/domain/track"
)

func TestNewSession_Empty(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)

	snap := s.Snapshot()
	assert.Empty(t, snap.Queue)
	assert.Equal(t, NoIndex, snap.CurrentIndex)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 0.8, snap.Volume)
	assert.Equal(t, 0.8, media.volume)
	assert.Equal(t, RepeatOff, snap.RepeatMode)
	assert.Equal(t, StateIdle, snap.State())
	assert.Nil(t, snap.CurrentTrack())
}

func TestSession_LoadQueue(t *testing.T) {
	tests := []struct {
		name          string
		startIndex    int
		expectedIndex int
	}{
		{name: "first track", startIndex: 0, expectedIndex: 0},
		{name: "middle track", startIndex: 1, expectedIndex: 1},
		{name: "last track", startIndex: 2, expectedIndex: 2},
		{name: "negative index clamps to first", startIndex: -3, expectedIndex: 0},
		{name: "index past end clamps to last", startIndex: 10, expectedIndex: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := &fakeMedia{}
			s := newTestSession(media)

			s.LoadQueue(abc(), tt.startIndex)

			snap := s.Snapshot()
			assert.Equal(t, tt.expectedIndex, snap.CurrentIndex)
			assert.True(t, snap.IsPlaying)
			assert.Equal(t, StatePlaying, snap.State())
			assert.Equal(t, time.Duration(0), snap.CurrentTime)
			assert.Equal(t, abc()[tt.expectedIndex].Duration, snap.Duration)

			require.Len(t, media.loaded, 1)
			assert.Equal(t, abc()[tt.expectedIndex].AudioURL, media.lastSource().URL)
			assert.True(t, media.playing)
		})
	}
}

func TestSession_LoadQueue_EmptyIsNoop(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 1)

	s.LoadQueue(nil, 0)
	s.LoadQueue([]track.Track{}, 0)

	snap := s.Snapshot()
	assert.Equal(t, []string{"A", "B", "C"}, queueIDs(snap))
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Len(t, media.loaded, 1)
}

func TestSession_LoadQueue_ReplacesQueue(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 2)

	s.LoadQueue([]track.Track{testTrack("X", 100), testTrack("Y", 120)}, 0)

	snap := s.Snapshot()
	assert.Equal(t, []string{"X", "Y"}, queueIDs(snap))
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Greater(t, media.lastSource().Token, media.loaded[0].Token)
}

func TestSession_TogglePlay(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)

	// Empty queue: no-op
	s.TogglePlay()
	assert.False(t, s.Snapshot().IsPlaying)
	assert.False(t, media.playing)

	s.LoadQueue(abc(), 0)
	require.True(t, s.Snapshot().IsPlaying)

	s.TogglePlay()
	assert.False(t, s.Snapshot().IsPlaying)
	assert.False(t, media.playing)
	assert.Equal(t, StatePaused, s.Snapshot().State())

	s.TogglePlay()
	assert.True(t, s.Snapshot().IsPlaying)
	assert.True(t, media.playing)
}

func TestSession_TogglePlay_RestartsFinishedTrack(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 2)

	// Natural end of the last track with repeat off
	s.HandleMediaEvent(MediaEvent{Type: MediaEnded, Token: media.lastSource().Token})
	require.False(t, s.Snapshot().IsPlaying)
	require.Equal(t, 150*time.Second, s.Snapshot().CurrentTime)

	s.TogglePlay()

	snap := s.Snapshot()
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, time.Duration(0), snap.CurrentTime)
	assert.Equal(t, time.Duration(0), media.position)
}

func TestSession_NextTrack(t *testing.T) {
	tests := []struct {
		name            string
		repeat          RepeatMode
		startIndex      int
		expectedIndex   int
		expectedPlaying bool
	}{
		{name: "middle advances", repeat: RepeatOff, startIndex: 0, expectedIndex: 1, expectedPlaying: true},
		{name: "end with repeat off stops", repeat: RepeatOff, startIndex: 2, expectedIndex: 2, expectedPlaying: false},
		{name: "end with repeat all wraps", repeat: RepeatAll, startIndex: 2, expectedIndex: 0, expectedPlaying: true},
		{name: "repeat one replays middle", repeat: RepeatOne, startIndex: 1, expectedIndex: 1, expectedPlaying: true},
		{name: "repeat one replays last", repeat: RepeatOne, startIndex: 2, expectedIndex: 2, expectedPlaying: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := &fakeMedia{}
			s := newTestSession(media)
			s.SetRepeatMode(tt.repeat)
			s.LoadQueue(abc(), tt.startIndex)

			s.NextTrack()

			snap := s.Snapshot()
			assert.Equal(t, tt.expectedIndex, snap.CurrentIndex)
			assert.Equal(t, tt.expectedPlaying, snap.IsPlaying)
			assert.Equal(t, tt.expectedPlaying, media.playing)
		})
	}
}

func TestSession_NextTrack_EmptyIsNoop(t *testing.T) {
	s := newTestSession(&fakeMedia{})
	s.NextTrack()
	s.PreviousTrack()

	snap := s.Snapshot()
	assert.Equal(t, NoIndex, snap.CurrentIndex)
	assert.False(t, snap.IsPlaying)
}

func TestSession_PreviousTrack(t *testing.T) {
	tests := []struct {
		name          string
		repeat        RepeatMode
		startIndex    int
		expectedIndex int
	}{
		{name: "middle retreats", repeat: RepeatOff, startIndex: 2, expectedIndex: 1},
		{name: "start with repeat off clamps", repeat: RepeatOff, startIndex: 0, expectedIndex: 0},
		{name: "start with repeat one clamps", repeat: RepeatOne, startIndex: 0, expectedIndex: 0},
		{name: "start with repeat all wraps", repeat: RepeatAll, startIndex: 0, expectedIndex: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(&fakeMedia{})
			s.SetRepeatMode(tt.repeat)
			s.LoadQueue(abc(), tt.startIndex)

			s.PreviousTrack()

			snap := s.Snapshot()
			assert.Equal(t, tt.expectedIndex, snap.CurrentIndex)
			assert.True(t, snap.IsPlaying)
			assert.Equal(t, time.Duration(0), snap.CurrentTime)
		})
	}
}

func TestSession_PreviousTrack_RestartThreshold(t *testing.T) {
	media := &fakeMedia{}
	s := NewSession(media, Config{InitialVolume: 1, RestartThreshold: 3 * time.Second})
	s.LoadQueue(abc(), 1)

	s.HandleMediaEvent(MediaEvent{Type: MediaTimeUpdate, Token: media.lastSource().Token, Position: 10 * time.Second})
	s.PreviousTrack()

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CurrentIndex, "past the threshold the current track restarts")
	assert.Equal(t, time.Duration(0), snap.CurrentTime)

	s.PreviousTrack()
	assert.Equal(t, 0, s.Snapshot().CurrentIndex, "at the start of the track it moves back")
}

func TestSession_SeekTo(t *testing.T) {
	tests := []struct {
		name     string
		seek     time.Duration
		expected time.Duration
	}{
		{name: "within range", seek: 60 * time.Second, expected: 60 * time.Second},
		{name: "zero", seek: 0, expected: 0},
		{name: "negative clamps to zero", seek: -5 * time.Second, expected: 0},
		{name: "past end clamps to duration", seek: 10 * time.Minute, expected: 180 * time.Second},
		{name: "exactly duration", seek: 180 * time.Second, expected: 180 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := &fakeMedia{}
			s := newTestSession(media)
			s.LoadQueue(abc(), 0)

			s.SeekTo(tt.seek)

			assert.Equal(t, tt.expected, s.Snapshot().CurrentTime)
			assert.Equal(t, tt.expected, media.position)
		})
	}
}

func TestSession_SetVolume(t *testing.T) {
	tests := []struct {
		name     string
		volume   float64
		expected float64
	}{
		{name: "within range", volume: 0.5, expected: 0.5},
		{name: "zero", volume: 0, expected: 0},
		{name: "one", volume: 1, expected: 1},
		{name: "negative clamps", volume: -0.3, expected: 0},
		{name: "above one clamps", volume: 1.7, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := &fakeMedia{}
			s := newTestSession(media)

			s.SetVolume(tt.volume)

			assert.Equal(t, tt.expected, s.Snapshot().Volume)
			assert.Equal(t, tt.expected, media.volume)
		})
	}
}

func TestSession_SetVolume_DoesNotUnmute(t *testing.T) {
	s := newTestSession(&fakeMedia{})
	s.ToggleMute()

	s.SetVolume(0.4)

	snap := s.Snapshot()
	assert.True(t, snap.IsMuted)
	assert.Equal(t, 0.4, snap.Volume)
}

func TestSession_ToggleMute_Involution(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.SetVolume(0.35)

	s.ToggleMute()
	snap := s.Snapshot()
	assert.True(t, snap.IsMuted)
	assert.True(t, media.muted)
	assert.Equal(t, 0.35, snap.Volume)

	s.ToggleMute()
	snap = s.Snapshot()
	assert.False(t, snap.IsMuted)
	assert.False(t, media.muted)
	assert.Equal(t, 0.35, snap.Volume)
}

func TestSession_ToggleRepeat_Cycles(t *testing.T) {
	s := newTestSession(&fakeMedia{})

	expected := []RepeatMode{RepeatAll, RepeatOne, RepeatOff, RepeatAll}
	for _, want := range expected {
		s.ToggleRepeat()
		assert.Equal(t, want, s.Snapshot().RepeatMode)
	}
}

func TestSession_ToggleShuffle_KeepsPlayedPrefixAndCurrent(t *testing.T) {
	tracks := []track.Track{
		testTrack("A", 100), testTrack("B", 100), testTrack("C", 100),
		testTrack("D", 100), testTrack("E", 100), testTrack("F", 100),
	}
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(tracks, 1)
	loads := len(media.loaded)

	s.ToggleShuffle()

	snap := s.Snapshot()
	assert.True(t, snap.IsShuffled)
	ids := queueIDs(snap)
	assert.Equal(t, "A", ids[0], "played prefix stays in place")
	assert.Equal(t, "B", ids[1], "current track stays in place")
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.ElementsMatch(t, []string{"C", "D", "E", "F"}, ids[2:])
	assert.Len(t, media.loaded, loads, "shuffling must not reload the current track")
	assert.True(t, snap.IsPlaying)
}

func TestSession_ToggleShuffle_RestoresOriginalOrder(t *testing.T) {
	tracks := []track.Track{
		testTrack("A", 100), testTrack("B", 100), testTrack("C", 100),
		testTrack("D", 100), testTrack("E", 100),
	}
	s := newTestSession(&fakeMedia{})
	s.LoadQueue(tracks, 0)
	s.ToggleShuffle()

	// Move to some other entry while shuffled
	s.NextTrack()
	s.NextTrack()
	current := s.Snapshot().CurrentTrack()
	require.NotNil(t, current)

	s.ToggleShuffle()

	snap := s.Snapshot()
	assert.False(t, snap.IsShuffled)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, queueIDs(snap))
	assert.True(t, snap.IsCurrentTrack(current.ID), "current track survives un-shuffle")
	assert.Equal(t, snap.TrackPosition(current.ID), snap.CurrentIndex)
}

func TestSession_ToggleShuffle_RestoreKeepsQueueEdits(t *testing.T) {
	s := newTestSession(&fakeMedia{})
	s.LoadQueue([]track.Track{testTrack("A", 100), testTrack("B", 100), testTrack("C", 100), testTrack("D", 100)}, 0)
	s.ToggleShuffle()

	s.AddToQueue(testTrack("X", 100))
	s.PlayNext(testTrack("N", 100))
	pos := s.TrackPosition("C")
	require.NoError(t, s.RemoveFromQueue(pos))

	s.ToggleShuffle()

	assert.Equal(t, []string{"A", "N", "B", "D", "X"}, queueIDs(s.Snapshot()))
	assert.Equal(t, 0, s.Snapshot().CurrentIndex)
}

func TestSession_ToggleShuffle_RestoreKeepsReorder(t *testing.T) {
	s := newTestSession(&fakeMedia{})
	s.LoadQueue([]track.Track{testTrack("A", 100), testTrack("B", 100), testTrack("C", 100), testTrack("D", 100)}, 0)
	s.ToggleShuffle()

	// Move the last shuffled entry right after the current track
	moved := s.Snapshot().Queue[3].ID
	require.NoError(t, s.ReorderQueue(3, 1))
	require.Equal(t, moved, s.Snapshot().Queue[1].ID)

	s.ToggleShuffle()

	want := []string{"A", moved}
	for _, id := range []string{"B", "C", "D"} {
		if id != moved {
			want = append(want, id)
		}
	}
	assert.Equal(t, want, queueIDs(s.Snapshot()))
	assert.Equal(t, 0, s.Snapshot().CurrentIndex)

	// Moving to the front keeps the entry first
	s.ToggleShuffle()
	require.NoError(t, s.ReorderQueue(2, 0))
	front := s.Snapshot().Queue[0].ID
	s.ToggleShuffle()
	assert.Equal(t, front, s.Snapshot().Queue[0].ID)
	assert.Equal(t, "A", s.Snapshot().Queue[s.Snapshot().CurrentIndex].ID)
}

func TestSession_ToggleShuffle_LoadQueueWhileShuffled(t *testing.T) {
	s := newTestSession(&fakeMedia{})
	s.ToggleShuffle()

	s.LoadQueue([]track.Track{testTrack("A", 100), testTrack("B", 100), testTrack("C", 100), testTrack("D", 100)}, 1)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, "B", snap.Queue[1].ID)
	assert.Equal(t, "A", snap.Queue[0].ID)

	s.ToggleShuffle()
	assert.Equal(t, []string{"A", "B", "C", "D"}, queueIDs(s.Snapshot()))
	assert.Equal(t, 1, s.Snapshot().CurrentIndex)
}

func TestSession_AddToQueue(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 1)

	s.AddToQueue(testTrack("D", 90))

	snap := s.Snapshot()
	assert.Equal(t, []string{"A", "B", "C", "D"}, queueIDs(snap))
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.True(t, snap.IsPlaying)
	assert.Len(t, media.loaded, 1)
}

func TestSession_PlayNext(t *testing.T) {
	s := newTestSession(&fakeMedia{})
	s.LoadQueue(abc(), 1)
	s.TogglePlay()

	s.PlayNext(testTrack("N", 90))

	snap := s.Snapshot()
	assert.Equal(t, []string{"A", "B", "N", "C"}, queueIDs(snap))
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.False(t, snap.IsPlaying, "play next does not change playback state")
}

func TestSession_BatchInsert(t *testing.T) {
	batch := []track.Track{testTrack("X", 60), testTrack("Y", 60)}

	tests := []struct {
		name    string
		start   int
		shuffle bool
		insert  func(s *Session)
		want    []string
	}{
		{name: "play next all", start: 1, insert: func(s *Session) { s.PlayNextAll(batch) }, want: []string{"A", "B", "X", "Y", "C"}},
		{name: "play next all at last entry", start: 2, insert: func(s *Session) { s.PlayNextAll(batch) }, want: []string{"A", "B", "C", "X", "Y"}},
		{name: "add all", start: 1, insert: func(s *Session) { s.AddAllToQueue(batch) }, want: []string{"A", "B", "C", "X", "Y"}},
		{name: "play next all while shuffled", start: 2, shuffle: true, insert: func(s *Session) { s.PlayNextAll(batch) }, want: []string{"A", "B", "C", "X", "Y"}},
		{name: "empty batch", start: 1, insert: func(s *Session) { s.PlayNextAll(nil) }, want: []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(&fakeMedia{})
			s.LoadQueue(abc(), tt.start)
			if tt.shuffle {
				s.ToggleShuffle()
			}
			for len(s.Events()) > 0 {
				<-s.Events()
			}

			tt.insert(s)

			var changes int
			for len(s.Events()) > 0 {
				if ev := <-s.Events(); ev.Type == EventQueueChanged {
					changes++
				}
			}
			if len(tt.want) > 3 {
				assert.Equal(t, 1, changes, "one transition per batch")
			}

			if tt.shuffle {
				s.ToggleShuffle()
			}
			snap := s.Snapshot()
			assert.Equal(t, tt.want, queueIDs(snap))
			assert.Equal(t, "ABC"[tt.start:tt.start+1], snap.Queue[snap.CurrentIndex].ID)
		})
	}
}

func TestSession_AddToEmptyQueue(t *testing.T) {
	tests := []struct {
		name string
		add  func(s *Session, tr track.Track)
	}{
		{name: "add to queue", add: func(s *Session, tr track.Track) { s.AddToQueue(tr) }},
		{name: "play next", add: func(s *Session, tr track.Track) { s.PlayNext(tr) }},
		{name: "play next all", add: func(s *Session, tr track.Track) { s.PlayNextAll([]track.Track{tr}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := &fakeMedia{}
			s := newTestSession(media)

			tt.add(s, testTrack("A", 100))

			snap := s.Snapshot()
			assert.Equal(t, []string{"A"}, queueIDs(snap))
			assert.Equal(t, 0, snap.CurrentIndex)
			assert.False(t, snap.IsPlaying)
			require.Len(t, media.loaded, 1, "the new current track is loaded")
			assert.False(t, media.playing)
		})
	}
}

func TestSession_RemoveFromQueue(t *testing.T) {
	tests := []struct {
		name            string
		repeat          RepeatMode
		startIndex      int
		remove          int
		expectedIDs     []string
		expectedIndex   int
		expectedPlaying bool
		expectedCurrent string
	}{
		{
			name: "before current shifts index", startIndex: 2, remove: 0,
			expectedIDs: []string{"B", "C"}, expectedIndex: 1, expectedPlaying: true, expectedCurrent: "C",
		},
		{
			name: "after current keeps index", startIndex: 0, remove: 2,
			expectedIDs: []string{"A", "B"}, expectedIndex: 0, expectedPlaying: true, expectedCurrent: "A",
		},
		{
			name: "current in middle moves to next", startIndex: 1, remove: 1,
			expectedIDs: []string{"A", "C"}, expectedIndex: 1, expectedPlaying: true, expectedCurrent: "C",
		},
		{
			name: "current at end with repeat off stops on last", repeat: RepeatOff, startIndex: 2, remove: 2,
			expectedIDs: []string{"A", "B"}, expectedIndex: 1, expectedPlaying: false, expectedCurrent: "B",
		},
		{
			name: "current at end with repeat all wraps", repeat: RepeatAll, startIndex: 2, remove: 2,
			expectedIDs: []string{"A", "B"}, expectedIndex: 0, expectedPlaying: true, expectedCurrent: "A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(&fakeMedia{})
			s.SetRepeatMode(tt.repeat)
			s.LoadQueue(abc(), tt.startIndex)

			require.NoError(t, s.RemoveFromQueue(tt.remove))

			snap := s.Snapshot()
			assert.Equal(t, tt.expectedIDs, queueIDs(snap))
			assert.Equal(t, tt.expectedIndex, snap.CurrentIndex)
			assert.Equal(t, tt.expectedPlaying, snap.IsPlaying)
			assert.True(t, snap.IsCurrentTrack(tt.expectedCurrent))
		})
	}
}

func TestSession_RemoveFromQueue_LastEntry(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue([]track.Track{testTrack("A", 100)}, 0)

	require.NoError(t, s.RemoveFromQueue(0))

	snap := s.Snapshot()
	assert.Empty(t, snap.Queue)
	assert.Equal(t, NoIndex, snap.CurrentIndex)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 1, media.stopped)
	assert.Equal(t, StateIdle, snap.State())
}

func TestSession_RemoveFromQueue_OutOfRange(t *testing.T) {
	s := newTestSession(&fakeMedia{})
	s.LoadQueue(abc(), 0)

	for _, idx := range []int{-1, 3, 100} {
		err := s.RemoveFromQueue(idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	}
	assert.Len(t, s.Snapshot().Queue, 3)
}

func TestSession_ReorderQueue(t *testing.T) {
	tests := []struct {
		name          string
		startIndex    int
		from, to      int
		expectedIDs   []string
		expectedIndex int
	}{
		{name: "move current forward", startIndex: 0, from: 0, to: 2, expectedIDs: []string{"B", "C", "A"}, expectedIndex: 2},
		{name: "move current backward", startIndex: 2, from: 2, to: 0, expectedIDs: []string{"C", "A", "B"}, expectedIndex: 0},
		{name: "move before current to after", startIndex: 1, from: 0, to: 2, expectedIDs: []string{"B", "C", "A"}, expectedIndex: 0},
		{name: "move after current to before", startIndex: 1, from: 2, to: 0, expectedIDs: []string{"C", "A", "B"}, expectedIndex: 2},
		{name: "move unrelated entries", startIndex: 0, from: 1, to: 2, expectedIDs: []string{"A", "C", "B"}, expectedIndex: 0},
		{name: "same position", startIndex: 1, from: 1, to: 1, expectedIDs: []string{"A", "B", "C"}, expectedIndex: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(&fakeMedia{})
			s.LoadQueue(abc(), tt.startIndex)
			current := s.Snapshot().CurrentTrack().ID

			require.NoError(t, s.ReorderQueue(tt.from, tt.to))

			snap := s.Snapshot()
			assert.Equal(t, tt.expectedIDs, queueIDs(snap))
			assert.Equal(t, tt.expectedIndex, snap.CurrentIndex)
			assert.True(t, snap.IsCurrentTrack(current))
		})
	}
}

func TestSession_ReorderQueue_OutOfRange(t *testing.T) {
	s := newTestSession(&fakeMedia{})
	s.LoadQueue(abc(), 0)

	err := s.ReorderQueue(0, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	assert.Equal(t, []string{"A", "B", "C"}, queueIDs(s.Snapshot()))
}

func TestSession_JumpToTrack(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 0)
	s.SeekTo(42 * time.Second)
	s.TogglePlay()

	require.NoError(t, s.JumpToTrack("C"))

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, time.Duration(0), snap.CurrentTime)
	assert.Equal(t, abc()[2].AudioURL, media.lastSource().URL)

	err := s.JumpToTrack("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTrackNotFound))
	assert.Equal(t, 2, s.Snapshot().CurrentIndex)
}

func TestSession_ClearQueue(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 1)

	s.ClearQueue()

	snap := s.Snapshot()
	assert.Empty(t, snap.Queue)
	assert.Equal(t, NoIndex, snap.CurrentIndex)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 1, media.stopped)
}

func TestSession_MediaEnded(t *testing.T) {
	tests := []struct {
		name            string
		repeat          RepeatMode
		startIndex      int
		expectedIndex   int
		expectedPlaying bool
		expectedTime    time.Duration
	}{
		{name: "repeat one restarts the same track", repeat: RepeatOne, startIndex: 1, expectedIndex: 1, expectedPlaying: true, expectedTime: 0},
		{name: "repeat off advances", repeat: RepeatOff, startIndex: 0, expectedIndex: 1, expectedPlaying: true, expectedTime: 0},
		{name: "repeat off at end stops", repeat: RepeatOff, startIndex: 2, expectedIndex: 2, expectedPlaying: false, expectedTime: 150 * time.Second},
		{name: "repeat all at end wraps", repeat: RepeatAll, startIndex: 2, expectedIndex: 0, expectedPlaying: true, expectedTime: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := &fakeMedia{}
			s := newTestSession(media)
			s.SetRepeatMode(tt.repeat)
			s.LoadQueue(abc(), tt.startIndex)
			token := media.lastSource().Token
			s.HandleMediaEvent(MediaEvent{Type: MediaTimeUpdate, Token: token, Position: 100 * time.Second})

			s.HandleMediaEvent(MediaEvent{Type: MediaEnded, Token: token})

			snap := s.Snapshot()
			assert.Equal(t, tt.expectedIndex, snap.CurrentIndex)
			assert.Equal(t, tt.expectedPlaying, snap.IsPlaying)
			assert.Equal(t, tt.expectedTime, snap.CurrentTime)
		})
	}
}

func TestSession_MediaEvents_StaleTokenIgnored(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 0)
	oldToken := media.lastSource().Token

	s.NextTrack()
	require.Equal(t, 1, s.Snapshot().CurrentIndex)

	s.HandleMediaEvent(MediaEvent{Type: MediaEnded, Token: oldToken})
	s.HandleMediaEvent(MediaEvent{Type: MediaTimeUpdate, Token: oldToken, Position: 50 * time.Second})
	s.HandleMediaEvent(MediaEvent{Type: MediaError, Token: oldToken, Message: "boom"})

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, time.Duration(0), snap.CurrentTime)
	assert.Empty(t, snap.Error)
	assert.True(t, snap.IsPlaying)
}

func TestSession_MediaMetadataAndTimeUpdate(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 0)
	token := media.lastSource().Token

	s.HandleMediaEvent(MediaEvent{Type: MediaMetadataLoaded, Token: token, Duration: 181 * time.Second})
	assert.Equal(t, 181*time.Second, s.Snapshot().Duration)

	s.HandleMediaEvent(MediaEvent{Type: MediaTimeUpdate, Token: token, Position: 30 * time.Second})
	assert.Equal(t, 30*time.Second, s.Snapshot().CurrentTime)

	s.HandleMediaEvent(MediaEvent{Type: MediaTimeUpdate, Token: token, Position: time.Hour})
	assert.Equal(t, 181*time.Second, s.Snapshot().CurrentTime, "time updates are clamped to the duration")
}

func TestSession_MediaError(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 0)

	s.HandleMediaEvent(MediaEvent{Type: MediaError, Token: media.lastSource().Token, Message: "decode failed"})

	snap := s.Snapshot()
	assert.Equal(t, "decode failed", snap.Error)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Len(t, media.loaded, 1, "no automatic retry")

	s.ClearError()
	assert.Empty(t, s.Snapshot().Error)

	// Picking another track works after an error
	require.NoError(t, s.JumpToTrack("B"))
	assert.True(t, s.Snapshot().IsPlaying)
}

func TestSession_MediaCommandFailures(t *testing.T) {
	t.Run("load failure", func(t *testing.T) {
		media := &fakeMedia{loadErr: errors.New("unsupported format")}
		s := newTestSession(media)

		s.LoadQueue(abc(), 0)

		snap := s.Snapshot()
		assert.Equal(t, 0, snap.CurrentIndex)
		assert.False(t, snap.IsPlaying)
		assert.Contains(t, snap.Error, "unsupported format")
	})

	t.Run("play failure", func(t *testing.T) {
		media := &fakeMedia{playErr: errors.New("autoplay blocked")}
		s := newTestSession(media)

		s.LoadQueue(abc(), 0)

		snap := s.Snapshot()
		assert.False(t, snap.IsPlaying)
		assert.Contains(t, snap.Error, "autoplay blocked")
	})
}

func TestSession_ViewFlags(t *testing.T) {
	s := newTestSession(&fakeMedia{})

	s.ToggleMinimized()
	s.ToggleQueueOpen()
	snap := s.Snapshot()
	assert.True(t, snap.IsMinimized)
	assert.True(t, snap.IsQueueOpen)

	s.ToggleMinimized()
	assert.False(t, s.Snapshot().IsMinimized)
}

func TestSession_DerivedHelpers(t *testing.T) {
	media := &fakeMedia{}
	s := newTestSession(media)
	s.LoadQueue(abc(), 0)
	s.HandleMediaEvent(MediaEvent{Type: MediaTimeUpdate, Token: media.lastSource().Token, Position: 60 * time.Second})

	assert.Equal(t, 470*time.Second, s.RemainingQueueTime())
	assert.Equal(t, 530*time.Second, s.QueueDuration())
	assert.Equal(t, 120*time.Second, s.RemainingTime())
	assert.InDelta(t, 33.333, s.Progress(), 0.01)

	assert.True(t, s.IsTrackInQueue("B"))
	assert.False(t, s.IsTrackInQueue("Z"))
	assert.True(t, s.IsCurrentTrack("A"))
	assert.False(t, s.IsCurrentTrack("B"))
	assert.Equal(t, 2, s.TrackPosition("C"))
	assert.Equal(t, -1, s.TrackPosition("Z"))
}

func TestSnapshot_ProgressWithZeroDuration(t *testing.T) {
	snap := Snapshot{CurrentIndex: 0, Queue: []track.Track{{ID: "A"}}, CurrentTime: 10 * time.Second}
	assert.Equal(t, float64(0), snap.Progress())

	empty := Snapshot{CurrentIndex: NoIndex}
	assert.Equal(t, time.Duration(0), empty.RemainingQueueTime())
}

func TestSession_Events(t *testing.T) {
	s := newTestSession(&fakeMedia{})

	s.LoadQueue(abc(), 0)
	s.ToggleRepeat()

	var types []EventType
	for len(s.Events()) > 0 {
		ev := <-s.Events()
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventQueueChanged, EventTrackChanged, EventModeChanged}, types)

	s.Close()
	s.ToggleMute() // must not panic after close
	_, ok := <-s.Events()
	assert.False(t, ok)
}
