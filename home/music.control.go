package home

import (
	"context"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
)

const volumeStep = 10

func handleMusicPause(event *events.ApplicationCommandInteractionCreate) {
	runDeferred(event, func(ctx context.Context, guildID snowflake.ID) {
		Player.Pause(ctx, guildID)
	})
}

func handleMusicResume(event *events.ApplicationCommandInteractionCreate) {
	runDeferred(event, func(ctx context.Context, guildID snowflake.ID) {
		Player.Resume(ctx, guildID)
	})
}

func handleMusicSkip(event *events.ApplicationCommandInteractionCreate) {
	runDeferred(event, func(ctx context.Context, guildID snowflake.ID) {
		Player.Skip(ctx, guildID)
	})
}

func handleMusicStop(event *events.ApplicationCommandInteractionCreate) {
	runDeferred(event, func(ctx context.Context, guildID snowflake.ID) {
		cancelSleep(guildID)
		Player.Stop(ctx, guildID)
	})
}

func handleMusicLoop(event *events.ApplicationCommandInteractionCreate) {
	runDeferred(event, func(ctx context.Context, guildID snowflake.ID) {
		Player.SetLoop(ctx, guildID)
	})
}

func handleMusicClear(event *events.ApplicationCommandInteractionCreate) {
	runDeferred(event, func(ctx context.Context, guildID snowflake.ID) {
		Player.Clear(ctx, guildID)
	})
}

func handleMusicVolume(event *events.ApplicationCommandInteractionCreate) {
	level := event.SlashCommandInteractionData().Int("level")
	runDeferred(event, func(ctx context.Context, guildID snowflake.ID) {
		Player.SetVolume(ctx, guildID, level)
	})
}

// ===========================
// Card Buttons
// ===========================

// handleMusicButton serves the now-playing card and the volume menu. Replies
// are ephemeral so the card stays the only shared message.
func handleMusicButton(event *events.ComponentInteractionCreate) {
	if event.GuildID() == nil || Player == nil {
		return
	}
	guildID := *event.GuildID()
	action := strings.TrimPrefix(event.Data.CustomID(), "music:")

	switch action {
	case "pause", "resume", "skip", "loop", "stop":
		_ = event.DeferCreateMessage(true)
		ctx := commandContext(event.Client(), event.ApplicationID(), event.Token(), guildID, event.Channel().ID())
		switch action {
		case "pause":
			Player.Pause(ctx, guildID)
		case "resume":
			Player.Resume(ctx, guildID)
		case "skip":
			Player.Skip(ctx, guildID)
		case "loop":
			Player.SetLoop(ctx, guildID)
		case "stop":
			cancelSleep(guildID)
			Player.Stop(ctx, guildID)
			if err := event.Client().Rest.DeleteMessage(event.Channel().ID(), event.Message.ID); err != nil {
				sys.LogCommand(sys.MsgCommandDeleteFail, "now-playing card", err)
			}
		}

	case "queue":
		answerLater(
			func() error { return event.DeferCreateMessage(true) },
			editResponse(event.Client(), event.ApplicationID(), event.Token()),
			func() []discord.LayoutComponent { return textContainer(QueueText(Player.QueueView(guildID))) },
		)

	case "volume":
		answerLater(
			func() error { return event.DeferCreateMessage(true) },
			editResponse(event.Client(), event.ApplicationID(), event.Token()),
			func() []discord.LayoutComponent { return VolumeMenu(Player.QueueView(guildID).Volume) },
		)

	default:
		if step, ok := strings.CutPrefix(action, "vol:"); ok {
			handleVolumeStep(event, guildID, step)
		}
	}
}

// handleVolumeStep applies a volume menu button and redraws the menu with the
// outcome underneath.
func handleVolumeStep(event *events.ComponentInteractionCreate, guildID snowflake.ID, step string) {
	if _, ok := nextVolume(player.DefaultVolume, step); !ok {
		return
	}
	if err := event.DeferUpdateMessage(); err != nil {
		sys.LogCommand(sys.MsgCommandDeferFail, err)
		return
	}
	if Notifier != nil {
		Notifier.Track(guildID, event.Channel().ID())
	}

	target, _ := nextVolume(Player.QueueView(guildID).Volume, step)
	edit := editResponse(event.Client(), event.ApplicationID(), event.Token())
	r := &Responder{edit: func(components []discord.LayoutComponent) error {
		return edit(append(VolumeMenu(target), components...))
	}}
	Player.SetVolume(WithResponder(sys.AppContext, r), guildID, target)
	if !r.Claimed() {
		if err := edit(VolumeMenu(target)); err != nil {
			sys.LogCommand(sys.MsgCommandEditFail, guildID, err)
		}
	}
}

// nextVolume maps a menu step onto a volume, clamped to the accepted range.
func nextVolume(current int, step string) (int, bool) {
	var v int
	switch step {
	case "down":
		v = current - volumeStep
	case "up":
		v = current + volumeStep
	default:
		n, err := strconv.Atoi(step)
		if err != nil {
			return 0, false
		}
		v = n
	}
	return max(player.MinVolume, min(player.MaxVolume, v)), true
}
