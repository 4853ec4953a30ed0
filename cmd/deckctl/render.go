package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	apiconnect "github.com/osa030/19deck/internal/api/connect"
	"github.com/osa030/19deck/internal/app/filter"
	"github.com/osa030/19deck/internal/app/notification"
	"github.com/osa030/19deck/internal/app/playback"
)

const currentMarker = "▶"

// formatDuration formats d as m:ss, or h:mm:ss from one hour up.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// stateColor colors the coarse playback state.
func stateColor(state string) func(a ...interface{}) string {
	switch state {
	case "playing":
		return text.FgGreen.Sprint
	case "paused":
		return text.FgYellow.Sprint
	default:
		return text.FgHiBlack.Sprint
	}
}

// renderState prints the transport state followed by the queue.
func renderState(w io.Writer, st *apiconnect.StateResponse) {
	snap := st.Snapshot

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendRow(table.Row{"Session", st.SessionID})
	t.AppendRow(table.Row{"State", stateColor(st.State)(st.State)})
	if cur := snap.CurrentTrack(); cur != nil {
		t.AppendRow(table.Row{"Track", fmt.Sprintf("%s - %s", cur.Title, strings.Join(cur.Artists, ", "))})
		t.AppendRow(table.Row{"Position", fmt.Sprintf("%s / %s (%.0f%%)",
			formatDuration(snap.CurrentTime), formatDuration(snap.Duration), st.Progress)})
	}
	t.AppendRow(table.Row{"Volume", formatVolume(snap)})
	t.AppendRow(table.Row{"Shuffle", onOff(snap.IsShuffled)})
	t.AppendRow(table.Row{"Repeat", snap.RepeatMode.String()})
	t.AppendRow(table.Row{"Remaining", formatDuration(st.RemainingQueueTime)})
	if len(st.Loading) > 0 {
		t.AppendRow(table.Row{"Loading", strings.Join(st.Loading, ", ")})
	}
	if snap.Error != "" {
		t.AppendRow(table.Row{"Error", text.FgHiRed.Sprint(snap.Error)})
	}
	fmt.Fprintln(w, t.Render())

	if len(snap.Queue) > 0 {
		renderQueue(w, snap)
	}
}

// renderQueue prints the queue with the current entry marked.
func renderQueue(w io.Writer, snap playback.Snapshot) {
	if len(snap.Queue) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "#", "Title", "Artists", "Album", "Duration"})
	for i, tr := range snap.Queue {
		marker := ""
		if i == snap.CurrentIndex {
			marker = currentMarker
		}
		t.AppendRow(table.Row{
			marker,
			i,
			tr.Title,
			strings.Join(tr.Artists, ", "),
			tr.Album,
			formatDuration(tr.Duration),
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d tracks", len(snap.Queue)), "", "", formatDuration(snap.QueueDuration())})
	fmt.Fprintln(w, t.Render())
}

// renderRejections prints the tracks a load left out.
func renderRejections(w io.Writer, rejected []filter.Rejection) {
	if len(rejected) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Track ID", "Filter", "Code"})
	for _, r := range rejected {
		t.AppendRow(table.Row{r.TrackID, r.Filter, r.Code})
	}
	fmt.Fprintln(w, t.Render())
}

// renderNotification prints a one-line summary of a notification.
func renderNotification(w io.Writer, n *notification.Notification) {
	snap := n.Snapshot
	line := fmt.Sprintf("[%s] #%d %-14s %s", n.Timestamp.Local().Format(time.TimeOnly), n.SequenceNo, n.Type,
		stateColor(snap.State().String())(snap.State().String()))
	if cur := snap.CurrentTrack(); cur != nil {
		line += fmt.Sprintf(" %s %s (%s/%s)", currentMarker, cur.Title,
			formatDuration(snap.CurrentTime), formatDuration(snap.Duration))
	}
	if snap.Error != "" {
		line += " " + text.FgHiRed.Sprint("error: "+snap.Error)
	}
	fmt.Fprintln(w, line)
}

func formatVolume(snap playback.Snapshot) string {
	v := fmt.Sprintf("%d%%", int(snap.Volume*100+0.5))
	if snap.IsMuted {
		v += " (muted)"
	}
	return v
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
