package source

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/domain/track"
)

func TestCachedSource_Fetch(t *testing.T) {
	inner := &fakeSource{
		name:   "spotify",
		types:  []collection.Type{collection.TypeAlbum},
		result: &collection.Collection{Name: "Loveless", Tracks: []track.Track{testTrack("a"), testTrack("b")}},
	}
	store := newFakeStore()
	src := NewCachedSource(inner, store, 10*time.Minute)
	ref := collection.Ref{Type: collection.TypeAlbum, ID: "42"}

	first, err := src.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Contains(t, store.data, "collection:spotify:album:42")
	assert.Equal(t, 10*time.Minute, store.ttls["collection:spotify:album:42"])

	second, err := src.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "served from cache")
	assert.Equal(t, first, second)
}

func TestCachedSource_StoreFailures(t *testing.T) {
	tests := []struct {
		name   string
		store  *fakeStore
		preset []byte
	}{
		{name: "read error", store: &fakeStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}, getErr: errors.New("down")}},
		{name: "write error", store: &fakeStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}, setErr: errors.New("down")}},
		{name: "corrupted entry", store: newFakeStore(), preset: []byte("{not json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &fakeSource{
				name:   "catalog",
				types:  []collection.Type{collection.TypeAlbum},
				result: &collection.Collection{Name: "x", Tracks: []track.Track{testTrack("a")}},
			}
			ref := collection.Ref{Type: collection.TypeAlbum, ID: "1"}
			if tt.preset != nil {
				tt.store.data[cacheKey("catalog", ref)] = tt.preset
			}

			got, err := NewCachedSource(inner, tt.store, time.Minute).Fetch(context.Background(), ref)
			require.NoError(t, err)
			assert.Equal(t, "x", got.Name)
			assert.Equal(t, 1, inner.calls)
		})
	}
}

func TestCachedSource_FetchErrorNotCached(t *testing.T) {
	inner := &fakeSource{name: "spotify", types: []collection.Type{collection.TypeAlbum}, err: ErrNotFound}
	store := newFakeStore()

	_, err := NewCachedSource(inner, store, time.Minute).Fetch(context.Background(), collection.Ref{Type: collection.TypeAlbum, ID: "1"})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, store.data)
}
