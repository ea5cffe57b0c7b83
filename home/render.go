package home

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
)

const (
	queuePreview   = 10
	pickerTitleMax = 40
	historyLimit   = 10
)

// FormatDuration renders d as HH:MM:SS when it spans an hour, MM:SS otherwise.
func FormatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// ===========================
// Outcome Text
// ===========================

// OutcomeText is the plain message for every outcome except Playing, which is
// rendered as a card.
func OutcomeText(o player.Outcome, maxQueue int) string {
	switch o.Kind {
	case player.KindPlaying:
		return fmt.Sprintf("**%s**\n%s", sys.MsgPlayerNowPlaying, o.Track.Title)
	case player.KindQueued:
		return fmt.Sprintf(sys.MsgPlayerQueued, o.Position, o.Track.Title, FormatDuration(o.Track.Duration))
	case player.KindStopped:
		return sys.MsgPlayerStopped
	case player.KindToggled:
		if o.Loop {
			return sys.MsgPlayerLoopOn
		}
		return sys.MsgPlayerLoopOff
	case player.KindQueueFinished:
		return sys.MsgPlayerQueueFinished
	case player.KindPaused:
		if o.Track.Title == "" {
			return sys.MsgPlayerPausedNoTitle
		}
		return fmt.Sprintf(sys.MsgPlayerPaused, o.Track.Title)
	case player.KindResumed:
		if o.Track.Title == "" {
			return sys.MsgPlayerResumedNoTitle
		}
		return fmt.Sprintf(sys.MsgPlayerResumed, o.Track.Title)
	case player.KindVolumeSet:
		return fmt.Sprintf(sys.MsgPlayerVolumeSet, o.Volume)
	case player.KindCleared:
		return fmt.Sprintf(sys.MsgPlayerCleared, o.QueueLength)
	case player.KindError:
		return ErrorText(o, maxQueue)
	default:
		return ""
	}
}

// ErrorText maps an error outcome onto its user message.
func ErrorText(o player.Outcome, maxQueue int) string {
	subject := o.Track.Title
	if subject == "" {
		subject = o.Query
	}
	err := o.Err
	switch {
	case errors.Is(err, player.ErrNoActiveSession):
		return sys.ErrPlayerNoSession
	case errors.Is(err, player.ErrVolumeDeferred):
		return fmt.Sprintf(sys.ErrPlayerVolumeDeferred, o.Volume)
	case errors.Is(err, player.ErrQueueFull):
		return fmt.Sprintf(sys.ErrPlayerQueueFull, maxQueue)
	case errors.Is(err, player.ErrQueueEmpty):
		return sys.ErrPlayerQueueEmpty
	case errors.Is(err, player.ErrInvalidVolume):
		return sys.ErrPlayerInvalidVolume
	case errors.Is(err, player.ErrNothingPlaying), errors.Is(err, player.ErrNotPlaying):
		return sys.ErrPlayerNothingPlaying
	case errors.Is(err, player.ErrNotFound):
		return fmt.Sprintf(sys.ErrPlayerNotFound, subject)
	case errors.Is(err, player.ErrResolution):
		return fmt.Sprintf(sys.ErrPlayerResolution, subject)
	case errors.Is(err, player.ErrTransport), errors.Is(err, player.ErrStaleStream):
		return fmt.Sprintf(sys.ErrPlayerTransport, subject)
	default:
		return fmt.Sprintf(sys.ErrPlayerGeneric, err)
	}
}

// ===========================
// Components
// ===========================

func textContainer(text string) []discord.LayoutComponent {
	return []discord.LayoutComponent{
		discord.NewContainer(discord.NewTextDisplay(text)),
	}
}

// RenderOutcome builds the message for o.
func RenderOutcome(o player.Outcome, maxQueue int) []discord.LayoutComponent {
	if o.Kind == player.KindPlaying {
		return NowPlayingCard(o.Track, o.Loop, o.Volume)
	}
	return textContainer(OutcomeText(o, maxQueue))
}

// NowPlayingText is the body of the now-playing card.
func NowPlayingText(t player.Track, loop bool, volume int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n**%s**\n", sys.MsgPlayerNowPlaying, t.Title)
	if t.Duration > 0 {
		fmt.Fprintf(&sb, "Duration: %s\n", FormatDuration(t.Duration))
	}
	fmt.Fprintf(&sb, "Channel: %s\n", t.ChannelOrUnknown())
	if t.Views > 0 {
		fmt.Fprintf(&sb, "Views: %s\n", humanize.Comma(t.Views))
	}
	if t.RequestedBy != 0 {
		fmt.Fprintf(&sb, "Requested by <@%s>\n", t.RequestedBy)
	}
	if loop {
		sb.WriteString("Loop: on\n")
	}
	if volume > 0 {
		fmt.Fprintf(&sb, "Volume: %d%%\n", volume)
	}
	if t.Locator != "" {
		fmt.Fprintf(&sb, "[Watch on YouTube](%s)", t.Locator)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// NowPlayingCard renders the track with the playback control buttons.
func NowPlayingCard(t player.Track, loop bool, volume int) []discord.LayoutComponent {
	subs := []discord.ContainerSubComponent{
		discord.NewTextDisplay(NowPlayingText(t, loop, volume)),
	}
	if t.Thumbnail != "" {
		subs = append(subs, discord.NewMediaGallery(discord.MediaGalleryItem{
			Media: discord.UnfurledMediaItem{URL: t.Thumbnail},
		}))
	}
	subs = append(subs,
		discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "⏸️ Pause", "music:pause", "", 0),
			discord.NewButton(discord.ButtonStyleSecondary, "▶️ Resume", "music:resume", "", 0),
			discord.NewButton(discord.ButtonStylePrimary, "⏭️ Skip", "music:skip", "", 0),
			discord.NewButton(discord.ButtonStyleSecondary, "🔁 Loop", "music:loop", "", 0),
		),
		discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSecondary, "📜 Queue", "music:queue", "", 0),
			discord.NewButton(discord.ButtonStyleSecondary, "🔊 Volume", "music:volume", "", 0),
			discord.NewButton(discord.ButtonStyleDanger, "⏹️ Stop", "music:stop", "", 0),
		),
	)
	return []discord.LayoutComponent{discord.NewContainer(subs...)}
}

// VolumeMenu renders the volume picker opened from the card.
func VolumeMenu(volume int) []discord.LayoutComponent {
	return []discord.LayoutComponent{
		discord.NewContainer(
			discord.NewTextDisplay(fmt.Sprintf(sys.MsgPlayerVolumeMenu, volume)),
			discord.NewActionRow(
				discord.NewButton(discord.ButtonStyleSecondary, "-10", "music:vol:down", "", 0),
				discord.NewButton(discord.ButtonStyleSecondary, "+10", "music:vol:up", "", 0),
				discord.NewButton(discord.ButtonStyleSecondary, "50%", "music:vol:50", "", 0),
				discord.NewButton(discord.ButtonStyleSecondary, "100%", "music:vol:100", "", 0),
				discord.NewButton(discord.ButtonStyleSecondary, "150%", "music:vol:150", "", 0),
			),
		),
	}
}

// QueueText lists the current track and the first queued ones.
func QueueText(v player.QueueView) string {
	if !v.Playing() && len(v.Queue) == 0 {
		return sys.MsgPlayerQueueEmpty
	}

	var sb strings.Builder
	if v.NowPlaying != nil {
		fmt.Fprintf(&sb, "**%s:** %s (%s)\n", sys.MsgPlayerNowPlaying, v.NowPlaying.Title, FormatDuration(v.NowPlaying.Duration))
	}
	if len(v.Queue) > 0 {
		sb.WriteString("\n" + sys.MsgPlayerQueueUpNext + "\n")
		for i, t := range v.Queue {
			if i == queuePreview {
				break
			}
			fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, t.Title, FormatDuration(t.Duration))
		}
		if extra := len(v.Queue) - queuePreview; extra > 0 {
			sb.WriteString(fmt.Sprintf(sys.MsgPlayerQueueMore, extra) + "\n")
		}
	}
	sb.WriteString("\n" + fmt.Sprintf(sys.MsgPlayerQueueTotal, len(v.Queue)))
	return sb.String()
}

// PickerLabel is the button label of a search result.
func PickerLabel(i int, t player.Track) string {
	label := fmt.Sprintf("%d. %s", i+1, truncate(t.Title, pickerTitleMax))
	if t.Duration > 0 {
		label += fmt.Sprintf(" (%s)", FormatDuration(t.Duration))
	}
	return label
}

// SearchPicker renders one button per result plus Cancel. Results without a
// recognisable video id are skipped.
func SearchPicker(query string, results []player.Track, videoID func(string) string) []discord.LayoutComponent {
	subs := []discord.ContainerSubComponent{
		discord.NewTextDisplay(fmt.Sprintf(sys.MsgPlayerSearchResults, query)),
	}
	for i, t := range results {
		id := videoID(t.Locator)
		if id == "" {
			continue
		}
		subs = append(subs, discord.NewActionRow(
			discord.NewButton(discord.ButtonStylePrimary, PickerLabel(i, t), "play:"+id, "", 0),
		))
	}
	subs = append(subs, discord.NewActionRow(
		discord.NewButton(discord.ButtonStyleDanger, "❌ Cancel", "cancel_search", "", 0),
	))
	return []discord.LayoutComponent{discord.NewContainer(subs...)}
}

// HistoryText lists recent plays, newest first.
func HistoryText(entries []*sys.HistoryEntry, total int, now time.Time) string {
	if len(entries) == 0 {
		return sys.MsgPlayerHistoryEmpty
	}
	var sb strings.Builder
	sb.WriteString(sys.MsgPlayerHistoryHeader + "\n")
	for i, e := range entries {
		when := humanize.RelTime(e.PlayedAt, now, "ago", "from now")
		fmt.Fprintf(&sb, sys.MsgPlayerHistoryItem+"\n", i+1, e.Title, FormatDuration(e.Duration), when)
	}
	fmt.Fprintf(&sb, "\n%s plays in total", humanize.Comma(int64(total)))
	return sb.String()
}
