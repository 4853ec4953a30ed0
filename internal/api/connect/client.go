package connect

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/osa030/19deck/internal/app/notification"
)

// Client calls the player service.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	options    []connect.ClientOption
}

// NewClient creates a client for the server at baseURL authenticating with token.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		options: append([]connect.ClientOption{
			connect.WithCodec(jsonCodec{}),
			connect.WithInterceptors(&tokenInterceptor{token: token}),
		}, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *Client, procedure string, msg *Req) (*Res, error) {
	client := connect.NewClient[Req, Res](c.httpClient, c.baseURL+procedure, c.options...)
	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetState(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, GetStateProcedure, &Empty{})
}

func (c *Client) PlayCollection(ctx context.Context, req *PlayCollectionRequest) (*PlayCollectionResponse, error) {
	return call[PlayCollectionRequest, PlayCollectionResponse](ctx, c, PlayCollectionProcedure, req)
}

func (c *Client) TogglePlay(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, TogglePlayProcedure, &Empty{})
}

func (c *Client) NextTrack(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, NextTrackProcedure, &Empty{})
}

func (c *Client) PreviousTrack(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, PreviousTrackProcedure, &Empty{})
}

func (c *Client) SeekTo(ctx context.Context, pos time.Duration) (*StateResponse, error) {
	return call[SeekRequest, StateResponse](ctx, c, SeekToProcedure, &SeekRequest{PositionMs: pos.Milliseconds()})
}

func (c *Client) SetVolume(ctx context.Context, volume float64) (*StateResponse, error) {
	return call[VolumeRequest, StateResponse](ctx, c, SetVolumeProcedure, &VolumeRequest{Volume: volume})
}

func (c *Client) ToggleMute(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, ToggleMuteProcedure, &Empty{})
}

func (c *Client) ToggleShuffle(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, ToggleShuffleProcedure, &Empty{})
}

func (c *Client) ToggleRepeat(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, ToggleRepeatProcedure, &Empty{})
}

func (c *Client) AddToQueue(ctx context.Context, key string) (*EnqueueResponse, error) {
	return call[EnqueueRequest, EnqueueResponse](ctx, c, AddToQueueProcedure, &EnqueueRequest{Collection: key})
}

func (c *Client) PlayNext(ctx context.Context, key string) (*EnqueueResponse, error) {
	return call[EnqueueRequest, EnqueueResponse](ctx, c, PlayNextProcedure, &EnqueueRequest{Collection: key})
}

func (c *Client) RemoveFromQueue(ctx context.Context, index int) (*StateResponse, error) {
	return call[RemoveRequest, StateResponse](ctx, c, RemoveFromQueueProcedure, &RemoveRequest{Index: index})
}

func (c *Client) ReorderQueue(ctx context.Context, from, to int) (*StateResponse, error) {
	return call[ReorderRequest, StateResponse](ctx, c, ReorderQueueProcedure, &ReorderRequest{From: from, To: to})
}

func (c *Client) JumpToTrack(ctx context.Context, trackID string) (*StateResponse, error) {
	return call[JumpRequest, StateResponse](ctx, c, JumpToTrackProcedure, &JumpRequest{TrackID: trackID})
}

func (c *Client) ClearError(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, ClearErrorProcedure, &Empty{})
}

func (c *Client) PressKey(ctx context.Context, key string) (*PressKeyResponse, error) {
	return call[PressKeyRequest, PressKeyResponse](ctx, c, PressKeyProcedure, &PressKeyRequest{Key: key})
}

func (c *Client) ClearQueue(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, ClearQueueProcedure, &Empty{})
}

// Subscribe opens the notification stream. The caller must close it.
func (c *Client) Subscribe(ctx context.Context) (*connect.ServerStreamForClient[notification.Notification], error) {
	client := connect.NewClient[Empty, notification.Notification](c.httpClient, c.baseURL+SubscribeProcedure, c.options...)
	return client.CallServerStream(ctx, connect.NewRequest(&Empty{}))
}
