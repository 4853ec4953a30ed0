package source

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/domain/track"
	"github.com/osa030/19deck/internal/infra/cache"
	"github.com/osa030/19deck/internal/infra/lastfm"
)

func testTrack(id string) track.Track {
	return track.Track{
		ID:       id,
		Title:    "Title " + id,
		Artists:  []string{"Artist"},
		AudioURL: "https://cdn.example.com/" + id + ".mp3",
		Duration: 3 * time.Minute,
	}
}

// fakeSpotify is an in-memory SpotifyClient.
type fakeSpotify struct {
	mu        sync.Mutex
	albums    map[string][]track.Track
	search    map[string][]track.Track // query -> results
	searchErr error
	searches  int
}

func (f *fakeSpotify) GetTrack(_ context.Context, id string) (*track.Track, error) {
	if id == "missing" {
		return nil, errors.New("404 not found")
	}
	t := testTrack(id)
	return &t, nil
}

func (f *fakeSpotify) GetAlbum(_ context.Context, id string) (string, []track.Track, error) {
	tracks, ok := f.albums[id]
	if !ok {
		return "", nil, errors.New("404 not found")
	}
	return "Album " + id, tracks, nil
}

func (f *fakeSpotify) GetArtistTopTracks(_ context.Context, id string) (string, []track.Track, error) {
	return "Artist " + id, []track.Track{testTrack(id + "-1"), testTrack(id + "-2")}, nil
}

func (f *fakeSpotify) GetPlaylist(_ context.Context, id string) (string, []track.Track, error) {
	return "Playlist " + id, []track.Track{testTrack(id + "-1")}, nil
}

func (f *fakeSpotify) Search(_ context.Context, query string, _ int) ([]track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.search[query], nil
}

func (f *fakeSpotify) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

// fakeLastFm is an in-memory LastFmClient.
type fakeLastFm struct {
	charts map[string][]lastfm.TopTrack
	err    error
}

func (f *fakeLastFm) GetTopTracks(_ context.Context, tag string, _ int) ([]lastfm.TopTrack, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.charts[tag], nil
}

// fakeSource is a scripted Source.
type fakeSource struct {
	name   string
	types  []collection.Type
	result *collection.Collection
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Supports(typ collection.Type) bool {
	for _, t := range f.types {
		if t == typ {
			return true
		}
	}
	return false
}

func (f *fakeSource) Fetch(_ context.Context, ref collection.Ref) (*collection.Collection, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return nil, nil
	}
	c := *f.result
	c.Ref = ref
	return &c, nil
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}
