package connect

import (
	"time"

	"github.com/osa030/19deck/internal/app/filter"
	"github.com/osa030/19deck/internal/app/playback"
)

// Empty is the request of procedures without arguments.
type Empty struct{}

// StateResponse is the session state together with its derived values.
type StateResponse struct {
	SessionID          string            `json:"sessionId"`
	State              string            `json:"state"`
	Snapshot           playback.Snapshot `json:"snapshot"`
	Progress           float64           `json:"progress"`
	RemainingTime      time.Duration     `json:"remainingTime"`
	QueueDuration      time.Duration     `json:"queueDuration"`
	RemainingQueueTime time.Duration     `json:"remainingQueueTime"`
	Loading            []string          `json:"loading,omitempty"`
	Subscribers        int               `json:"subscribers"`
}

// PlayCollectionRequest asks for a collection ("type:id") to replace the queue.
type PlayCollectionRequest struct {
	Collection   string `json:"collection"`
	StartIndex   int    `json:"startIndex,omitempty"`
	StartTrackID string `json:"startTrackId,omitempty"`
}

// PlayCollectionResponse describes the loaded collection.
type PlayCollectionResponse struct {
	Name       string             `json:"name"`
	Loaded     int                `json:"loaded"`
	StartIndex int                `json:"startIndex"`
	Rejected   []filter.Rejection `json:"rejected,omitempty"`
}

// EnqueueRequest asks for the tracks of a collection to be queued.
type EnqueueRequest struct {
	Collection string `json:"collection"`
}

// EnqueueResponse lists the queued track IDs.
type EnqueueResponse struct {
	TrackIDs []string `json:"trackIds"`
}

// SeekRequest carries the target position in milliseconds.
type SeekRequest struct {
	PositionMs int64 `json:"positionMs"`
}

// VolumeRequest carries a volume in [0,1].
type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

// RemoveRequest identifies a queue position.
type RemoveRequest struct {
	Index int `json:"index"`
}

// ReorderRequest moves a queue entry.
type ReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// JumpRequest identifies a queued track.
type JumpRequest struct {
	TrackID string `json:"trackId"`
}

// PressKeyRequest carries a keyboard key name.
type PressKeyRequest struct {
	Key string `json:"key"`
}

// PressKeyResponse names the action the key triggered.
type PressKeyResponse struct {
	Action string `json:"action"`
}
