// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/19deck/internal/domain/track"
)

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopeUserLibraryRead,
		),
	)

	// Create token from refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, token)

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     spotify.New(httpClient),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Market returns the market used for track relinking.
func (c *Client) Market() string {
	return c.market
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractID(trackID, "track")

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	return c.convertTrack(result), nil
}

// GetAlbum retrieves an album name and all of its tracks.
func (c *Client) GetAlbum(ctx context.Context, albumID string) (string, []track.Track, error) {
	id := extractID(albumID, "album")

	var album *spotify.FullAlbum
	err := c.retry(func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to get album")
	}

	tracks := make([]track.Track, 0, album.Tracks.Total)
	for _, st := range album.Tracks.Tracks {
		tracks = append(tracks, c.convertSimpleTrack(st, album.SimpleAlbum))
	}

	// Album responses embed the first page only
	offset := len(album.Tracks.Tracks)
	limit := 50
	for offset < int(album.Tracks.Total) {
		var page *spotify.SimpleTrackPage
		err := c.retry(func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(id),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to get album tracks")
		}
		if len(page.Tracks) == 0 {
			break
		}
		for _, st := range page.Tracks {
			tracks = append(tracks, c.convertSimpleTrack(st, album.SimpleAlbum))
		}
		offset += len(page.Tracks)
	}

	return album.Name, tracks, nil
}

// GetArtistTopTracks retrieves an artist name and the artist's top tracks in
// the configured market.
func (c *Client) GetArtistTopTracks(ctx context.Context, artistID string) (string, []track.Track, error) {
	id := spotify.ID(extractID(artistID, "artist"))

	var artist *spotify.FullArtist
	err := c.retry(func() error {
		a, err := c.client.GetArtist(ctx, id)
		if err != nil {
			return err
		}
		artist = a
		return nil
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to get artist")
	}

	var top []spotify.FullTrack
	err = c.retry(func() error {
		t, err := c.client.GetArtistsTopTracks(ctx, id, c.market)
		if err != nil {
			return err
		}
		top = t
		return nil
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to get artist top tracks")
	}

	tracks := make([]track.Track, 0, len(top))
	for i := range top {
		tracks = append(tracks, *c.convertTrack(&top[i]))
	}
	return artist.Name, tracks, nil
}

// GetPlaylist retrieves a playlist name and all of its tracks.
// Episodes are skipped.
func (c *Client) GetPlaylist(ctx context.Context, playlistURL string) (string, []track.Track, error) {
	playlistID := extractID(playlistURL, "playlist")
	if playlistID == "" {
		return "", nil, errors.New("invalid playlist URL")
	}

	var playlist *spotify.FullPlaylist
	err := c.retry(func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Fields("name"))
		if err != nil {
			return err
		}
		playlist = p
		return nil
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to get playlist")
	}

	var tracks []track.Track
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, *c.convertTrack(item.Track.Track))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return playlist.Name, tracks, nil
}

// Search searches for tracks on Spotify.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, *c.convertTrack(&result.Tracks.Tracks[i]))
	}

	return tracks, nil
}

// convertTrack converts a Spotify FullTrack to domain Track.
func (c *Client) convertTrack(t *spotify.FullTrack) *track.Track {
	tr := c.convertSimpleTrack(t.SimpleTrack, t.Album)
	tr.IsPlayable = t.IsPlayable
	return &tr
}

// convertSimpleTrack converts a track listed without album details.
func (c *Client) convertSimpleTrack(t spotify.SimpleTrack, album spotify.SimpleAlbum) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(album.Images) > 0 {
		albumArt = album.Images[0].URL
	}

	markets := make([]string, len(t.AvailableMarkets))
	copy(markets, t.AvailableMarkets)

	// Requests carry the market, so an empty list means relinked for it
	if len(markets) == 0 && c.market != "" {
		markets = append(markets, c.market)
	}

	return track.Track{
		ID:          string(t.ID),
		Title:       t.Name,
		Artists:     artists,
		Album:       album.Name,
		AlbumArtURL: albumArt,
		AudioURL:    t.PreviewURL,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		Explicit:    t.Explicit,
		Markets:     markets,
	}
}

// retry retries an operation with exponential backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractID extracts a Spotify ID of the given kind ("track", "album",
// "artist", "playlist") from a URL, a URI, or a bare ID.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)

	// spotify:<kind>:<id>
	uriPrefix := "spotify:" + kind + ":"
	if strings.HasPrefix(input, uriPrefix) {
		return strings.TrimPrefix(input, uriPrefix)
	}

	// https://open.spotify.com/<kind>/<id> or https://open.spotify.com/intl-XX/<kind>/<id>
	segment := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
