// Package main provides the remote controller CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/19deck/internal/api/connect"
)

var (
	app     = kingpin.New("deckctl", "19deck remote controller")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "API token (or set DECK_TOKEN env)").Envar("DECK_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("30s").Duration()

	// state command
	stateCmd = app.Command("state", "Show the session state").Default()

	// queue command
	queueCmd = app.Command("queue", "Show the queue")

	// play command
	playCmd        = app.Command("play", "Replace the queue with a collection and play it")
	playCollection = playCmd.Arg("collection", "Collection (type:id, e.g. album:1, tag:jazz)").Required().String()
	playStartIndex = playCmd.Flag("start-index", "Index of the first track to play").Int()
	playStartTrack = playCmd.Flag("start-track", "ID of the first track to play").String()

	// transport commands
	toggleCmd  = app.Command("toggle", "Toggle play/pause")
	nextCmd    = app.Command("next", "Skip to the next track")
	prevCmd    = app.Command("prev", "Restart or go to the previous track")
	seekCmd    = app.Command("seek", "Seek within the current track")
	seekPos    = seekCmd.Arg("position", "Position (e.g. 1m30s)").Required().Duration()
	volumeCmd  = app.Command("volume", "Set the volume")
	volumeVal  = volumeCmd.Arg("volume", "Volume between 0 and 1").Required().Float64()
	muteCmd    = app.Command("mute", "Toggle mute")
	shuffleCmd = app.Command("shuffle", "Toggle shuffle")
	repeatCmd  = app.Command("repeat", "Cycle the repeat mode (off, all, one)")

	// queue editing commands
	addCmd        = app.Command("add", "Append a collection to the queue")
	addCollection = addCmd.Arg("collection", "Collection (type:id)").Required().String()
	upNextCmd     = app.Command("play-next", "Insert a collection after the current track")
	upNextColl    = upNextCmd.Arg("collection", "Collection (type:id)").Required().String()
	removeCmd     = app.Command("remove", "Remove a queue entry")
	removeIndex   = removeCmd.Arg("index", "Queue index").Required().Int()
	moveCmd       = app.Command("move", "Move a queue entry")
	moveFrom      = moveCmd.Arg("from", "Current index").Required().Int()
	moveTo        = moveCmd.Arg("to", "New index").Required().Int()
	jumpCmd       = app.Command("jump", "Play a queued track")
	jumpTrack     = jumpCmd.Arg("track-id", "Track ID").Required().String()
	clearCmd      = app.Command("clear", "Stop playback and empty the queue")
	clearErrorCmd = app.Command("clear-error", "Dismiss the last playback error")

	// key command
	keyCmd  = app.Command("key", "Press a keyboard shortcut")
	keyName = keyCmd.Arg("key", "Key name (space, right, shift+left, 0-9, ...)").Required().String()

	// watch command
	watchCmd = app.Command("watch", "Follow session notifications")

	// token command
	tokenCmd    = app.Command("token", "Issue a JWT for the server's jwt_secret")
	tokenSecret = tokenCmd.Flag("secret", "JWT secret (or set DECK_JWT_SECRET env)").Envar("DECK_JWT_SECRET").Required().String()
	tokenUser   = tokenCmd.Flag("user", "User ID").Required().String()
	tokenRole   = tokenCmd.Flag("role", "Role").Default("viewer").Enum("admin", "viewer")
	tokenTTL    = tokenCmd.Flag("ttl", "Token lifetime (0 = never expires)").Default("24h").Duration()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == tokenCmd.FullCommand() {
		issueToken()
		return
	}

	if *token == "" {
		fmt.Println("Error: token is required (use --token or DECK_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	if command == watchCmd.FullCommand() {
		watch(client)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := execute(ctx, client, command); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs a unary command and prints its result.
func execute(ctx context.Context, client *apiconnect.Client, command string) error {
	var (
		st  *apiconnect.StateResponse
		err error
	)

	switch command {
	case stateCmd.FullCommand():
		st, err = client.GetState(ctx)
	case queueCmd.FullCommand():
		st, err = client.GetState(ctx)
		if err != nil {
			return err
		}
		renderQueue(os.Stdout, st.Snapshot)
		return nil
	case playCmd.FullCommand():
		return play(ctx, client)
	case toggleCmd.FullCommand():
		st, err = client.TogglePlay(ctx)
	case nextCmd.FullCommand():
		st, err = client.NextTrack(ctx)
	case prevCmd.FullCommand():
		st, err = client.PreviousTrack(ctx)
	case seekCmd.FullCommand():
		st, err = client.SeekTo(ctx, *seekPos)
	case volumeCmd.FullCommand():
		st, err = client.SetVolume(ctx, *volumeVal)
	case muteCmd.FullCommand():
		st, err = client.ToggleMute(ctx)
	case shuffleCmd.FullCommand():
		st, err = client.ToggleShuffle(ctx)
	case repeatCmd.FullCommand():
		st, err = client.ToggleRepeat(ctx)
	case addCmd.FullCommand():
		return enqueue(ctx, client, *addCollection, false)
	case upNextCmd.FullCommand():
		return enqueue(ctx, client, *upNextColl, true)
	case removeCmd.FullCommand():
		st, err = client.RemoveFromQueue(ctx, *removeIndex)
	case moveCmd.FullCommand():
		st, err = client.ReorderQueue(ctx, *moveFrom, *moveTo)
	case jumpCmd.FullCommand():
		st, err = client.JumpToTrack(ctx, *jumpTrack)
	case clearCmd.FullCommand():
		st, err = client.ClearQueue(ctx)
	case clearErrorCmd.FullCommand():
		st, err = client.ClearError(ctx)
	case keyCmd.FullCommand():
		resp, err := client.PressKey(ctx, *keyName)
		if err != nil {
			return err
		}
		fmt.Printf("Action: %s\n", resp.Action)
		return nil
	default:
		return fmt.Errorf("unknown command %s", command)
	}

	if err != nil {
		return err
	}
	renderState(os.Stdout, st)
	return nil
}

func play(ctx context.Context, client *apiconnect.Client) error {
	resp, err := client.PlayCollection(ctx, &apiconnect.PlayCollectionRequest{
		Collection:   *playCollection,
		StartIndex:   *playStartIndex,
		StartTrackID: *playStartTrack,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Playing %q: %d tracks, starting at #%d\n", resp.Name, resp.Loaded, resp.StartIndex)
	if len(resp.Rejected) > 0 {
		fmt.Printf("%d tracks were filtered out:\n", len(resp.Rejected))
		renderRejections(os.Stdout, resp.Rejected)
	}
	return nil
}

func enqueue(ctx context.Context, client *apiconnect.Client, collection string, next bool) error {
	var (
		resp *apiconnect.EnqueueResponse
		err  error
	)
	if next {
		resp, err = client.PlayNext(ctx, collection)
	} else {
		resp, err = client.AddToQueue(ctx, collection)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Queued %d tracks\n", len(resp.TrackIDs))
	return nil
}

// watch prints notifications until interrupted.
func watch(client *apiconnect.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := client.Subscribe(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()

	fmt.Println("Watching session notifications (Ctrl+C to stop)...")
	for stream.Receive() {
		renderNotification(os.Stdout, stream.Msg())
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}

func issueToken() {
	signed, err := apiconnect.IssueToken(*tokenSecret, apiconnect.Identity{
		UserID: *tokenUser,
		Role:   *tokenRole,
	}, *tokenTTL)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(signed)
	if *tokenTTL > 0 {
		fmt.Fprintf(os.Stderr, "Expires at %s\n", time.Now().Add(*tokenTTL).Format(time.RFC3339))
	}
}
