package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19deck/internal/app/playback"
)

// fakeStream records notifications; it can fail or block.
type fakeStream struct {
	mu       sync.Mutex
	received []*Notification
	err      error
	block    chan struct{}
}

func (s *fakeStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, n)
	return nil
}

func (s *fakeStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager()
	a, b := &fakeStream{}, &fakeStream{}
	m.Subscribe(a)
	m.Subscribe(b)
	require.Equal(t, 2, m.SubscriberCount())

	snap := playback.Snapshot{CurrentIndex: 1, IsPlaying: true}
	first := m.Broadcast("track_changed", snap)
	second := m.Broadcast("state_changed", snap)

	assert.Equal(t, uint64(1), first.SequenceNo)
	assert.Equal(t, uint64(2), second.SequenceNo)
	for _, s := range []*fakeStream{a, b} {
		require.Equal(t, 2, s.count())
		assert.Equal(t, "track_changed", s.received[0].Type)
		assert.Equal(t, snap, s.received[0].Snapshot)
		assert.Equal(t, uint64(2), s.received[1].SequenceNo)
	}
}

func TestManager_DropsFailingSubscribers(t *testing.T) {
	m := NewManager()
	m.SetSendTimeout(20 * time.Millisecond)

	healthy := &fakeStream{}
	broken := &fakeStream{err: errors.New("stream closed")}
	slow := &fakeStream{block: make(chan struct{})}
	defer close(slow.block)

	m.Subscribe(healthy)
	m.Subscribe(broken)
	m.Subscribe(slow)

	m.Broadcast("queue_changed", playback.Snapshot{})

	assert.Equal(t, 1, m.SubscriberCount())
	assert.Equal(t, 1, healthy.count())
}

func TestManager_SendAndUnsubscribe(t *testing.T) {
	m := NewManager()
	s := &fakeStream{}
	id := m.Subscribe(s)

	require.NoError(t, m.Send(id, "snapshot", playback.Snapshot{}))
	assert.Equal(t, 1, s.count())

	assert.NoError(t, m.Send("unknown", "snapshot", playback.Snapshot{}))

	m.Unsubscribe(id)
	assert.Zero(t, m.SubscriberCount())

	m.Subscribe(&fakeStream{})
	m.Close()
	assert.Zero(t, m.SubscriberCount())
}

func TestManager_Done(t *testing.T) {
	m := NewManager()
	select {
	case <-m.Done():
		t.Fatal("done before close")
	default:
	}

	m.Close()
	m.Close()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
}

func TestManager_Closed(t *testing.T) {
	isClosed := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}

	t.Run("dropped by broadcast", func(t *testing.T) {
		m := NewManager()
		healthy := m.Subscribe(&fakeStream{})
		broken := m.Subscribe(&fakeStream{err: errors.New("stream closed")})
		require.False(t, isClosed(m.Closed(broken)))

		m.Broadcast("queue_changed", playback.Snapshot{})

		assert.True(t, isClosed(m.Closed(broken)))
		assert.False(t, isClosed(m.Closed(healthy)))
	})

	t.Run("unsubscribe", func(t *testing.T) {
		m := NewManager()
		id := m.Subscribe(&fakeStream{})
		closed := m.Closed(id)

		m.Unsubscribe(id)
		m.Unsubscribe(id)

		assert.True(t, isClosed(closed))
	})

	t.Run("manager close", func(t *testing.T) {
		m := NewManager()
		closed := m.Closed(m.Subscribe(&fakeStream{}))

		m.Close()

		assert.True(t, isClosed(closed))
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.True(t, isClosed(NewManager().Closed("unknown")))
	})
}
