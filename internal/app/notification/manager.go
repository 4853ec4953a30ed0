// Package notification provides the notification manager for broadcasting session snapshots.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/app/playback"
)

// DefaultSendTimeout bounds a single subscriber send.
const DefaultSendTimeout = 500 * time.Millisecond

// Notification is a session change delivered to subscribers.
type Notification struct {
	SequenceNo uint64            `json:"sequenceNo"`
	Type       string            `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Snapshot   playback.Snapshot `json:"snapshot"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
	closed chan struct{}
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   DefaultSendTimeout,
		done:          make(chan struct{}),
	}
}

// SetSendTimeout overrides the per-subscriber send timeout.
func (m *Manager) SetSendTimeout(d time.Duration) {
	if d > 0 {
		m.mu.Lock()
		m.sendTimeout = d
		m.mu.Unlock()
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
		closed: make(chan struct{}),
	}
	return id
}

// Closed returns a channel that is closed once the subscription is removed,
// either by Unsubscribe, by a failed broadcast or by Close.
// Unknown subscription IDs yield an already closed channel.
func (m *Manager) Closed(subscriptionID string) <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subscriptions[subscriptionID]; ok {
		return sub.closed
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subscriptions[subscriptionID]; ok {
		delete(m.subscriptions, subscriptionID)
		close(sub.closed)
	}
}

// Broadcast sends a snapshot notification to all subscribers and returns it.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
// Subscribers whose send fails or times out are dropped.
func (m *Manager) Broadcast(typ string, snap playback.Snapshot) *Notification {
	n := &Notification{
		SequenceNo: m.NextSequenceNo(),
		Type:       typ,
		Timestamp:  time.Now(),
		Snapshot:   snap,
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	timeout := m.sendTimeout
	m.mu.RUnlock()

	// Send to each subscriber in parallel with timeout
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: dropping subscriber: id=%s error=%v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: dropping slow subscriber: id=%s", s.id)
				m.Unsubscribe(s.id)
			}
		}(sub)
	}

	// Wait for all sends to complete or timeout
	wg.Wait()
	return n
}

// Send sends a snapshot notification to a specific subscriber.
// Unknown subscription IDs are ignored.
func (m *Manager) Send(subscriptionID, typ string, snap playback.Snapshot) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	return sub.stream.Send(&Notification{
		SequenceNo: m.NextSequenceNo(),
		Type:       typ,
		Timestamp:  time.Now(),
		Snapshot:   snap,
	})
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Done is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	// done first, so a woken subscriber can tell shutdown from a drop
	m.closeOnce.Do(func() { close(m.done) })
	for _, sub := range m.subscriptions {
		close(sub.closed)
	}
	m.subscriptions = make(map[string]*subscription)
}
