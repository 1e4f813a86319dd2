package bot

import (
	"fmt"
	"strings"

	"github.com/hayasaka/discbox/internal/app/playback"
	"github.com/hayasaka/discbox/internal/app/player"
	"github.com/hayasaka/discbox/internal/domain/track"
)

// queueTextLimit caps how many upcoming tracks a queue panel lists.
const queueTextLimit = 10

func playText(res *player.PlayResult) string {
	if len(res.Tracks) == 1 {
		t := res.Tracks[0]
		return fmt.Sprintf("**Queued** [%s](%s) `%s`\nPosition %d, requested by %s",
			t.Title, t.URL, durationLabel(t), res.Position, t.RequestedBy.Name)
	}

	s := fmt.Sprintf("**Playlist queued**\nAdded %d tracks starting at position %d.", len(res.Tracks), res.Position)
	if res.Skipped > 0 {
		s += fmt.Sprintf("\nSkipped %d track(s) over the duration limit.", res.Skipped)
	}
	return s
}

func nowPlayingText(t *track.Track, state playback.State) string {
	marker := "Now playing"
	if state == playback.StatePaused {
		marker = "Paused"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** [%s](%s) `%s`", marker, t.Title, t.URL, durationLabel(t))
	if t.Uploader != "" {
		fmt.Fprintf(&sb, "\nby %s", t.Uploader)
	}
	if t.RequestedBy.Name != "" {
		fmt.Fprintf(&sb, "\nRequested by %s", t.RequestedBy.Name)
	}
	return sb.String()
}

func queueText(view *player.QueueView) string {
	var sb strings.Builder
	sb.WriteString("## Queue\n")

	if view.Current != nil {
		marker := "Now playing"
		if view.State == playback.StatePaused {
			marker = "Paused"
		}
		fmt.Fprintf(&sb, "%s: [%s](%s) `%s`\n\n", marker, view.Current.Title, view.Current.URL, durationLabel(view.Current))
	}

	// Position 1 is the playing track, so upcoming numbering starts at 2
	// while something is playing.
	upcoming := view.Tracks
	first := 1
	if view.Current != nil && len(upcoming) > 0 {
		upcoming = upcoming[1:]
		first = 2
	}
	if len(upcoming) == 0 {
		sb.WriteString("No upcoming tracks.\n")
	}
	for i, t := range upcoming {
		if i >= queueTextLimit {
			fmt.Fprintf(&sb, "... and %d more\n", len(upcoming)-queueTextLimit)
			break
		}
		fmt.Fprintf(&sb, "`%d.` [%s](%s) `%s`\n", i+first, t.Title, t.URL, durationLabel(&t))
	}

	fmt.Fprintf(&sb, "\nVolume %d%%", view.Volume)
	if view.Loop {
		sb.WriteString(" | Loop on")
	}
	return sb.String()
}

func durationLabel(t *track.Track) string {
	if t.IsLive() {
		return "LIVE"
	}
	return track.FormatDuration(t.Duration)
}
