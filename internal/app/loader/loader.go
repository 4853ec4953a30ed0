// Package loader sequences collection loads into the playback queue.
package loader

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/19deck/internal/app/filter"
	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/domain/track"
)

// Errors
var (
	ErrAlreadyLoading   = errors.New("collection is already loading")
	ErrStale            = errors.New("superseded by a newer load")
	ErrNoPlayableTracks = errors.New("collection has no playable tracks")
)

// Fetcher fetches collections.
type Fetcher interface {
	Fetch(ctx context.Context, ref collection.Ref) (*collection.Collection, error)
}

// Filter admits tracks of a fetched collection.
type Filter interface {
	Apply(ctx context.Context, tracks []track.Track) ([]track.Track, []filter.Rejection)
}

// Queue receives loaded collections.
type Queue interface {
	LoadQueue(tracks []track.Track, startIndex int)
}

// Config holds loader configuration.
type Config struct {
	Timeout time.Duration // Per-load fetch timeout (0 = none)
}

// Request asks for a collection to be played.
type Request struct {
	Ref          collection.Ref
	StartIndex   int    // Index into the fetched collection
	StartTrackID string // Takes precedence over StartIndex when found
}

// Result describes a completed load.
type Result struct {
	Collection *collection.Collection // As fetched, before filtering
	Tracks     []track.Track          // Tracks handed to the queue
	Rejected   []filter.Rejection
	StartIndex int // Index into Tracks
	Sequence   uint64
}

// Loader fetches collections and loads the newest one into the queue.
// Loads of the same collection never overlap; a response is dropped when a
// newer load has already reached the queue. Failed loads never supersede.
type Loader struct {
	mu sync.Mutex

	fetcher Fetcher
	filter  Filter
	queue   Queue
	config  Config

	sequence  uint64            // Last issued sequence number
	committed uint64            // Sequence of the last load handed to the queue
	loading   map[string]uint64 // Collection key -> sequence of the in-flight load
}

// New creates a loader. filter may be nil.
func New(fetcher Fetcher, filter Filter, queue Queue, config Config) *Loader {
	return &Loader{
		fetcher: fetcher,
		filter:  filter,
		queue:   queue,
		config:  config,
		loading: make(map[string]uint64),
	}
}

// Play fetches the requested collection and loads it into the queue.
// The queue is untouched on any error.
func (l *Loader) Play(ctx context.Context, req Request) (*Result, error) {
	if !req.Ref.Type.Valid() || req.Ref.ID == "" {
		return nil, errors.Wrapf(collection.ErrInvalidRef, "%s", req.Ref)
	}
	key := req.Ref.Key()

	l.mu.Lock()
	if _, ok := l.loading[key]; ok {
		l.mu.Unlock()
		return nil, errors.Wrapf(ErrAlreadyLoading, "%s", key)
	}
	l.sequence++
	seq := l.sequence
	l.loading[key] = seq
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.loading, key)
		l.mu.Unlock()
	}()

	zlog.Debug().Msgf("loader: load started: key=%s seq=%d", key, seq)

	c, tracks, rejected, err := l.fetch(ctx, req.Ref)
	if err != nil {
		zlog.Warn().Msgf("loader: load failed: key=%s seq=%d error=%v", key, seq, err)
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if seq < l.committed {
		zlog.Debug().Msgf("loader: dropping stale load: key=%s seq=%d committed=%d", key, seq, l.committed)
		return nil, errors.Wrapf(ErrStale, "%s", key)
	}

	start := startIndex(c.Tracks, tracks, req)
	l.queue.LoadQueue(tracks, start)
	l.committed = seq

	zlog.Info().Msgf("loader: collection loaded: key=%s name=%q tracks=%d rejected=%d start=%d",
		key, c.Name, len(tracks), len(rejected), start)

	return &Result{
		Collection: c,
		Tracks:     tracks,
		Rejected:   rejected,
		StartIndex: start,
		Sequence:   seq,
	}, nil
}

// Resolve fetches and filters a collection without touching the queue.
func (l *Loader) Resolve(ctx context.Context, ref collection.Ref) ([]track.Track, []filter.Rejection, error) {
	if !ref.Type.Valid() || ref.ID == "" {
		return nil, nil, errors.Wrapf(collection.ErrInvalidRef, "%s", ref)
	}
	_, tracks, rejected, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	return tracks, rejected, nil
}

// IsLoading reports whether the collection with the given key is in flight.
func (l *Loader) IsLoading(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.loading[key]
	return ok
}

// Loading returns the keys of all in-flight collections, sorted.
func (l *Loader) Loading() []string {
	l.mu.Lock()
	keys := lo.Keys(l.loading)
	l.mu.Unlock()
	slices.Sort(keys)
	return keys
}

func (l *Loader) fetch(ctx context.Context, ref collection.Ref) (*collection.Collection, []track.Track, []filter.Rejection, error) {
	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()
	}

	c, err := l.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "failed to fetch %s", ref)
	}
	if c == nil {
		c = &collection.Collection{Ref: ref}
	}

	tracks := c.Tracks
	var rejected []filter.Rejection
	if l.filter != nil {
		tracks, rejected = l.filter.Apply(ctx, c.Tracks)
	}
	if len(tracks) == 0 {
		return nil, nil, nil, errors.Wrapf(ErrNoPlayableTracks, "%s (%d rejected)", ref, len(rejected))
	}
	return c, tracks, rejected, nil
}

// startIndex maps the request onto the filtered track list.
// A start track that was filtered out falls through to the next admitted one.
func startIndex(all, admitted []track.Track, req Request) int {
	if req.StartTrackID != "" {
		if i := track.IndexOf(admitted, req.StartTrackID); i >= 0 {
			return i
		}
		if i := track.IndexOf(all, req.StartTrackID); i >= 0 {
			req.StartIndex = i
		}
	}
	if req.StartIndex <= 0 || req.StartIndex >= len(all) {
		return 0
	}
	for _, t := range all[req.StartIndex:] {
		if i := track.IndexOf(admitted, t.ID); i >= 0 {
			return i
		}
	}
	return 0
}
