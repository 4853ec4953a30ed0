package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/app/loader"
	"github.com/osa030/19deck/internal/app/notification"
	"github.com/osa030/19deck/internal/app/player"
	"github.com/osa030/19deck/internal/domain/collection"
)

// ServiceName is the fully-qualified name of the player service.
const ServiceName = "deck.v1.PlayerService"

// Procedure paths
const (
	GetStateProcedure        = "/" + ServiceName + "/GetState"
	PlayCollectionProcedure  = "/" + ServiceName + "/PlayCollection"
	TogglePlayProcedure      = "/" + ServiceName + "/TogglePlay"
	NextTrackProcedure       = "/" + ServiceName + "/NextTrack"
	PreviousTrackProcedure   = "/" + ServiceName + "/PreviousTrack"
	SeekToProcedure          = "/" + ServiceName + "/SeekTo"
	SetVolumeProcedure       = "/" + ServiceName + "/SetVolume"
	ToggleMuteProcedure      = "/" + ServiceName + "/ToggleMute"
	ToggleShuffleProcedure   = "/" + ServiceName + "/ToggleShuffle"
	ToggleRepeatProcedure    = "/" + ServiceName + "/ToggleRepeat"
	AddToQueueProcedure      = "/" + ServiceName + "/AddToQueue"
	PlayNextProcedure        = "/" + ServiceName + "/PlayNext"
	RemoveFromQueueProcedure = "/" + ServiceName + "/RemoveFromQueue"
	ReorderQueueProcedure    = "/" + ServiceName + "/ReorderQueue"
	JumpToTrackProcedure     = "/" + ServiceName + "/JumpToTrack"
	ClearErrorProcedure      = "/" + ServiceName + "/ClearError"
	PressKeyProcedure        = "/" + ServiceName + "/PressKey"
	ClearQueueProcedure      = "/" + ServiceName + "/ClearQueue"
	SubscribeProcedure       = "/" + ServiceName + "/Subscribe"
)

// ErrSubscriptionDropped ends a stream whose subscriber fell behind or failed.
var ErrSubscriptionDropped = errors.New("subscription dropped")

// NotificationTypeSnapshot is the type of the first notification of a subscription.
const NotificationTypeSnapshot = "snapshot"

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player *player.Service
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(p *player.Service) *PlayerService {
	return &PlayerService{player: p}
}

// NewPlayerServiceHandler builds an HTTP handler serving every procedure of
// the service. It returns the path to mount the handler on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(PlayCollectionProcedure, connect.NewUnaryHandler(PlayCollectionProcedure, svc.PlayCollection, opts...))
	mux.Handle(TogglePlayProcedure, connect.NewUnaryHandler(TogglePlayProcedure, svc.TogglePlay, opts...))
	mux.Handle(NextTrackProcedure, connect.NewUnaryHandler(NextTrackProcedure, svc.NextTrack, opts...))
	mux.Handle(PreviousTrackProcedure, connect.NewUnaryHandler(PreviousTrackProcedure, svc.PreviousTrack, opts...))
	mux.Handle(SeekToProcedure, connect.NewUnaryHandler(SeekToProcedure, svc.SeekTo, opts...))
	mux.Handle(SetVolumeProcedure, connect.NewUnaryHandler(SetVolumeProcedure, svc.SetVolume, opts...))
	mux.Handle(ToggleMuteProcedure, connect.NewUnaryHandler(ToggleMuteProcedure, svc.ToggleMute, opts...))
	mux.Handle(ToggleShuffleProcedure, connect.NewUnaryHandler(ToggleShuffleProcedure, svc.ToggleShuffle, opts...))
	mux.Handle(ToggleRepeatProcedure, connect.NewUnaryHandler(ToggleRepeatProcedure, svc.ToggleRepeat, opts...))
	mux.Handle(AddToQueueProcedure, connect.NewUnaryHandler(AddToQueueProcedure, svc.AddToQueue, opts...))
	mux.Handle(PlayNextProcedure, connect.NewUnaryHandler(PlayNextProcedure, svc.PlayNext, opts...))
	mux.Handle(RemoveFromQueueProcedure, connect.NewUnaryHandler(RemoveFromQueueProcedure, svc.RemoveFromQueue, opts...))
	mux.Handle(ReorderQueueProcedure, connect.NewUnaryHandler(ReorderQueueProcedure, svc.ReorderQueue, opts...))
	mux.Handle(JumpToTrackProcedure, connect.NewUnaryHandler(JumpToTrackProcedure, svc.JumpToTrack, opts...))
	mux.Handle(ClearErrorProcedure, connect.NewUnaryHandler(ClearErrorProcedure, svc.ClearError, opts...))
	mux.Handle(PressKeyProcedure, connect.NewUnaryHandler(PressKeyProcedure, svc.PressKey, opts...))
	mux.Handle(ClearQueueProcedure, connect.NewUnaryHandler(ClearQueueProcedure, svc.ClearQueue, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))

	return "/" + ServiceName + "/", mux
}

// state builds the state response from the current snapshot.
func (s *PlayerService) state() *connect.Response[StateResponse] {
	snap := s.player.Session().Snapshot()
	status := s.player.Status()
	return connect.NewResponse(&StateResponse{
		SessionID:          status.SessionID,
		State:              snap.State().String(),
		Snapshot:           snap,
		Progress:           snap.Progress(),
		RemainingTime:      snap.RemainingTime(),
		QueueDuration:      snap.QueueDuration(),
		RemainingQueueTime: snap.RemainingQueueTime(),
		Loading:            status.Loading,
		Subscribers:        status.Subscribers,
	})
}

// GetState returns the current session state.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	return s.state(), nil
}

// PlayCollection replaces the queue with a collection and starts playing it.
func (s *PlayerService) PlayCollection(
	ctx context.Context,
	req *connect.Request[PlayCollectionRequest],
) (*connect.Response[PlayCollectionResponse], error) {
	ref, err := collection.ParseRef(req.Msg.Collection)
	if err != nil {
		return nil, toConnectError(PlayCollectionProcedure, err)
	}

	result, err := s.player.PlayCollection(ctx, loader.Request{
		Ref:          ref,
		StartIndex:   req.Msg.StartIndex,
		StartTrackID: req.Msg.StartTrackID,
	})
	if err != nil {
		return nil, toConnectError(PlayCollectionProcedure, err)
	}

	if id, ok := IdentityFromContext(ctx); ok {
		zlog.Info().Msgf("collection played: user=%s collection=%s", id.UserID, ref)
	}

	return connect.NewResponse(&PlayCollectionResponse{
		Name:       result.Collection.Name,
		Loaded:     len(result.Tracks),
		StartIndex: result.StartIndex,
		Rejected:   result.Rejected,
	}), nil
}

// TogglePlay toggles between playing and paused.
func (s *PlayerService) TogglePlay(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.player.Session().TogglePlay()
	return s.state(), nil
}

// NextTrack skips to the next track.
func (s *PlayerService) NextTrack(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.player.Session().NextTrack()
	return s.state(), nil
}

// PreviousTrack restarts the current track or goes back one.
func (s *PlayerService) PreviousTrack(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.player.Session().PreviousTrack()
	return s.state(), nil
}

// SeekTo moves the playback position.
func (s *PlayerService) SeekTo(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[StateResponse], error) {
	s.player.Session().SeekTo(time.Duration(req.Msg.PositionMs) * time.Millisecond)
	return s.state(), nil
}

// SetVolume sets the volume.
func (s *PlayerService) SetVolume(
	ctx context.Context,
	req *connect.Request[VolumeRequest],
) (*connect.Response[StateResponse], error) {
	s.player.Session().SetVolume(req.Msg.Volume)
	return s.state(), nil
}

// ToggleMute toggles mute.
func (s *PlayerService) ToggleMute(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.player.Session().ToggleMute()
	return s.state(), nil
}

// ToggleShuffle toggles shuffle.
func (s *PlayerService) ToggleShuffle(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.player.Session().ToggleShuffle()
	return s.state(), nil
}

// ToggleRepeat cycles the repeat mode.
func (s *PlayerService) ToggleRepeat(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.player.Session().ToggleRepeat()
	return s.state(), nil
}

// AddToQueue appends the tracks of a collection to the queue.
func (s *PlayerService) AddToQueue(
	ctx context.Context,
	req *connect.Request[EnqueueRequest],
) (*connect.Response[EnqueueResponse], error) {
	return s.enqueue(ctx, AddToQueueProcedure, req.Msg.Collection, false)
}

// PlayNext inserts the tracks of a collection after the current track.
func (s *PlayerService) PlayNext(
	ctx context.Context,
	req *connect.Request[EnqueueRequest],
) (*connect.Response[EnqueueResponse], error) {
	return s.enqueue(ctx, PlayNextProcedure, req.Msg.Collection, true)
}

func (s *PlayerService) enqueue(ctx context.Context, procedure, key string, next bool) (*connect.Response[EnqueueResponse], error) {
	ref, err := collection.ParseRef(key)
	if err != nil {
		return nil, toConnectError(procedure, err)
	}
	tracks, err := s.player.Enqueue(ctx, ref, next)
	if err != nil {
		return nil, toConnectError(procedure, err)
	}

	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return connect.NewResponse(&EnqueueResponse{TrackIDs: ids}), nil
}

// RemoveFromQueue removes a queue entry.
func (s *PlayerService) RemoveFromQueue(
	ctx context.Context,
	req *connect.Request[RemoveRequest],
) (*connect.Response[StateResponse], error) {
	if err := s.player.Session().RemoveFromQueue(req.Msg.Index); err != nil {
		return nil, toConnectError(RemoveFromQueueProcedure, err)
	}
	return s.state(), nil
}

// ReorderQueue moves a queue entry.
func (s *PlayerService) ReorderQueue(
	ctx context.Context,
	req *connect.Request[ReorderRequest],
) (*connect.Response[StateResponse], error) {
	if err := s.player.Session().ReorderQueue(req.Msg.From, req.Msg.To); err != nil {
		return nil, toConnectError(ReorderQueueProcedure, err)
	}
	return s.state(), nil
}

// JumpToTrack plays a queued track.
func (s *PlayerService) JumpToTrack(
	ctx context.Context,
	req *connect.Request[JumpRequest],
) (*connect.Response[StateResponse], error) {
	if err := s.player.Session().JumpToTrack(req.Msg.TrackID); err != nil {
		return nil, toConnectError(JumpToTrackProcedure, err)
	}
	return s.state(), nil
}

// ClearError dismisses the last playback error.
func (s *PlayerService) ClearError(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.player.Session().ClearError()
	return s.state(), nil
}

// PressKey applies a keyboard shortcut.
func (s *PlayerService) PressKey(
	ctx context.Context,
	req *connect.Request[PressKeyRequest],
) (*connect.Response[PressKeyResponse], error) {
	action, err := s.player.PressKey(req.Msg.Key)
	if err != nil {
		return nil, toConnectError(PressKeyProcedure, err)
	}
	return connect.NewResponse(&PressKeyResponse{Action: action}), nil
}

// ClearQueue stops playback and empties the queue.
func (s *PlayerService) ClearQueue(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	s.player.Session().ClearQueue()
	return s.state(), nil
}

// Subscribe streams session changes, starting with the current snapshot.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[notification.Notification],
) error {
	notifications := s.player.Notifications()

	initial := &notification.Notification{
		SequenceNo: notifications.NextSequenceNo(),
		Type:       NotificationTypeSnapshot,
		Timestamp:  time.Now(),
		Snapshot:   s.player.Session().Snapshot(),
	}

	adapter := &notificationStreamAdapter{stream: stream}
	defer adapter.close()
	if err := adapter.Send(initial); err != nil {
		return err
	}

	subscriptionID := notifications.Subscribe(adapter)
	defer notifications.Unsubscribe(subscriptionID)
	closed := notifications.Closed(subscriptionID)

	if id, ok := IdentityFromContext(ctx); ok {
		zlog.Debug().Msgf("subscriber joined: user=%s subscription=%s", id.UserID, subscriptionID)
	}

	// Wait for context cancellation, service shutdown or a dropped subscription
	select {
	case <-ctx.Done():
	case <-notifications.Done():
	case <-closed:
		select {
		case <-notifications.Done():
			return nil
		default:
		}
		zlog.Debug().Msgf("subscriber dropped: subscription=%s", subscriptionID)
		return connect.NewError(connect.CodeUnavailable, ErrSubscriptionDropped)
	}
	return nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends after close fail, so late broadcasts never write to a finished stream.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[notification.Notification]
	closed bool
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrSubscriptionDropped
	}
	return a.stream.Send(n)
}

func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
