// Package keymap maps keyboard shortcuts onto playback session operations.
package keymap

import (
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19deck/internal/app/playback"
)

// Errors
var (
	ErrUnknownKey = errors.New("unknown key")
)

const (
	SeekStep   = 10 * time.Second
	VolumeStep = 0.1
)

// Controls is the subset of the session driven by the keyboard.
type Controls interface {
	TogglePlay()
	NextTrack()
	PreviousTrack()
	SeekTo(pos time.Duration)
	SetVolume(volume float64)
	ToggleMute()
	ToggleShuffle()
	ToggleRepeat()
	ToggleQueueOpen()
	ToggleMinimized()
	Snapshot() playback.Snapshot
}

// Binding describes a key and the action it triggers.
type Binding struct {
	Keys   []string
	Action string
}

// Bindings lists every shortcut, for help output.
var Bindings = []Binding{
	{Keys: []string{"space"}, Action: "toggle_play"},
	{Keys: []string{"right"}, Action: "seek_forward"},
	{Keys: []string{"left"}, Action: "seek_backward"},
	{Keys: []string{"shift+right"}, Action: "next_track"},
	{Keys: []string{"shift+left"}, Action: "previous_track"},
	{Keys: []string{"up"}, Action: "volume_up"},
	{Keys: []string{"down"}, Action: "volume_down"},
	{Keys: []string{"0-9"}, Action: "seek_percent"},
	{Keys: []string{"m"}, Action: "toggle_mute"},
	{Keys: []string{"s"}, Action: "toggle_shuffle"},
	{Keys: []string{"r"}, Action: "toggle_repeat"},
	{Keys: []string{"q"}, Action: "toggle_queue"},
	{Keys: []string{"esc"}, Action: "toggle_minimized"},
}

// Normalize returns the canonical name of a key.
// Accepts browser key names ("ArrowRight", " ") as well as terminal ones ("right", "space").
func Normalize(key string) string {
	if key == " " {
		return "space"
	}
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.ReplaceAll(k, "arrow", "")
	if k == "escape" {
		k = "esc"
	}
	return k
}

// Handle applies the operation bound to key and returns the action name.
// Unbound keys return ErrUnknownKey and leave the session untouched.
func Handle(c Controls, key string) (string, error) {
	k := Normalize(key)

	switch k {
	case "space":
		c.TogglePlay()
		return "toggle_play", nil
	case "right":
		snap := c.Snapshot()
		c.SeekTo(snap.CurrentTime + SeekStep)
		return "seek_forward", nil
	case "left":
		snap := c.Snapshot()
		c.SeekTo(snap.CurrentTime - SeekStep)
		return "seek_backward", nil
	case "shift+right":
		c.NextTrack()
		return "next_track", nil
	case "shift+left":
		c.PreviousTrack()
		return "previous_track", nil
	case "up":
		c.SetVolume(stepVolume(c.Snapshot().Volume, VolumeStep))
		return "volume_up", nil
	case "down":
		c.SetVolume(stepVolume(c.Snapshot().Volume, -VolumeStep))
		return "volume_down", nil
	case "m":
		c.ToggleMute()
		return "toggle_mute", nil
	case "s":
		c.ToggleShuffle()
		return "toggle_shuffle", nil
	case "r":
		c.ToggleRepeat()
		return "toggle_repeat", nil
	case "q":
		c.ToggleQueueOpen()
		return "toggle_queue", nil
	case "esc":
		c.ToggleMinimized()
		return "toggle_minimized", nil
	}

	if len(k) == 1 && k[0] >= '0' && k[0] <= '9' {
		n := time.Duration(k[0] - '0')
		c.SeekTo(c.Snapshot().Duration * n / 10)
		return "seek_percent", nil
	}

	return "", errors.Wrapf(ErrUnknownKey, "%q", key)
}

// stepVolume rounds to hundredths so repeated steps land on exact values.
func stepVolume(v, delta float64) float64 {
	return math.Round((v+delta)*100) / 100
}
