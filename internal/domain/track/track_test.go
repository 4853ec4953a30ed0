package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrack_IsAvailableInMarket(t *testing.T) {
	trueVal := true
	falseVal := false

	tests := []struct {
		name       string
		markets    []string
		isPlayable *bool
		market     string
		expected   bool
	}{
		{
			name:     "available in market using markets list",
			markets:  []string{"JP", "US", "UK"},
			market:   "JP",
			expected: true,
		},
		{
			name:     "not available in market using markets list",
			markets:  []string{"US", "UK"},
			market:   "JP",
			expected: false,
		},
		{
			name:       "isPlayable true takes precedence",
			markets:    []string{"US"},
			isPlayable: &trueVal,
			market:     "JP",
			expected:   true,
		},
		{
			name:       "isPlayable false takes precedence",
			markets:    []string{"JP", "US"},
			isPlayable: &falseVal,
			market:     "JP",
			expected:   false,
		},
		{
			name:     "no markets recorded means unrestricted",
			markets:  []string{},
			market:   "JP",
			expected: true,
		},
		{
			name:     "no market configured",
			markets:  []string{"US"},
			market:   "",
			expected: true,
		},
		{
			name:     "case sensitivity",
			markets:  []string{"jp"},
			market:   "JP",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := &Track{
				ID:         "test-id",
				Markets:    tt.markets,
				IsPlayable: tt.isPlayable,
			}

			assert.Equal(t, tt.expected, track.IsAvailableInMarket(tt.market))
		})
	}
}

func TestTrack_HasSourceAndMainArtist(t *testing.T) {
	tr := Track{ID: "a", Title: "Song"}
	assert.False(t, tr.HasSource())
	assert.Equal(t, "", tr.MainArtist())

	tr.AudioURL = "https://cdn.example.com/a.mp3"
	tr.Artists = []string{"First", "Second"}
	assert.True(t, tr.HasSource())
	assert.Equal(t, "First", tr.MainArtist())
}

func TestTotalDurationAndIndexOf(t *testing.T) {
	tracks := []Track{
		{ID: "a", Duration: 180 * time.Second},
		{ID: "b", Duration: 200 * time.Second},
		{ID: "c", Duration: 150 * time.Second},
	}

	assert.Equal(t, 530*time.Second, TotalDuration(tracks))
	assert.Equal(t, time.Duration(0), TotalDuration(nil))

	assert.Equal(t, 1, IndexOf(tracks, "b"))
	assert.Equal(t, -1, IndexOf(tracks, "z"))
}
