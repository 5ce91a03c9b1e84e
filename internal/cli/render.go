// Package cli implements the interactive console and the table renderers
// used by the run and decode commands.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/flailbot/flailbot/internal/api"
	"github.com/flailbot/flailbot/internal/db"
	"github.com/flailbot/flailbot/internal/events"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

// RenderEntities prints one row per entity.
func RenderEntities(w io.Writer, entities []api.EntitySnapshot) {
	tw := newTable(w, []string{"ID", "Kind", "Nick", "X", "Y", "Angle", "Hue", "Energy"})
	for _, e := range entities {
		energy := "-"
		if e.Flags != nil {
			energy = strconv.FormatUint(uint64(e.Energy), 10)
		}
		tw.Append([]string{
			strconv.Itoa(int(e.ID)),
			e.Kind.String(),
			e.Nick,
			fmt.Sprintf("%.1f", e.X),
			fmt.Sprintf("%.1f", e.Y),
			fmt.Sprintf("%.2f", e.Angle),
			strconv.Itoa(int(e.Hue)),
			energy,
		})
	}
	tw.Render()
}

// RenderLeaderboard prints the leaderboard. The viewer's own row shows its
// rank instead of its position.
func RenderLeaderboard(w io.Writer, lb events.Leaderboard) {
	tw := newTable(w, []string{"#", "ID", "Nick", "Score"})
	for i, e := range lb.Entries {
		pos := strconv.Itoa(i + 1)
		if e.Me {
			pos = fmt.Sprintf("%d (me)", e.Rank)
		}
		tw.Append([]string{pos, strconv.Itoa(int(e.ID)), e.Nick, strconv.FormatUint(uint64(e.Score), 10)})
	}
	tw.Render()
}

// RenderStatus prints the connection summary.
func RenderStatus(w io.Writer, s api.Status, king *api.King) {
	tw := newTable(w, []string{"Field", "Value"})
	tw.Append([]string{"Connected", strconv.FormatBool(s.Connected)})
	tw.Append([]string{"Self ID", strconv.FormatUint(uint64(s.SelfID), 10)})
	tw.Append([]string{"Entities", strconv.Itoa(s.Entities)})
	tw.Append([]string{"Frames", strconv.FormatUint(s.Frames, 10)})
	tw.Append([]string{"Kills", strconv.Itoa(s.Kills)})
	tw.Append([]string{"Deaths", strconv.Itoa(s.Deaths)})
	if !s.LastFrameAt.IsZero() {
		tw.Append([]string{"Last frame", s.LastFrameAt.Format(time.RFC3339)})
	}
	if s.CloseReason != "" {
		tw.Append([]string{"Close reason", s.CloseReason})
	}
	if king != nil {
		tw.Append([]string{"King", fmt.Sprintf("%d %s (%.1f, %.1f)", king.ID, king.Nick, king.X, king.Y)})
	}
	tw.Render()
}

// RenderFeed prints recorded kill feed lines.
func RenderFeed(w io.Writer, feed []db.FeedEntry) {
	tw := newTable(w, []string{"Time", "Kind", "ID", "Nick"})
	for _, f := range feed {
		tw.Append([]string{
			f.CreatedAt.Format("15:04:05"),
			f.Kind,
			strconv.Itoa(int(f.EntityID)),
			f.Nick,
		})
	}
	tw.Render()
}

// RenderEvents prints an event log in emission order.
func RenderEvents(w io.Writer, rows []EventRow) {
	tw := newTable(w, []string{"Seq", "Event", "Detail"})
	for _, r := range rows {
		tw.Append([]string{strconv.Itoa(r.Seq), string(r.Type), r.Detail})
	}
	tw.Render()
}
