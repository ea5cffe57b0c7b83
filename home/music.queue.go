package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/melody/sys"
)

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate) {
	guildID, ok := requireGuild(event)
	if !ok {
		return
	}
	answerLater(
		func() error { return event.DeferCreateMessage(false) },
		editResponse(event.Client(), event.ApplicationID(), event.Token()),
		func() []discord.LayoutComponent { return textContainer(QueueText(Player.QueueView(guildID))) },
	)
}

func handleMusicNowPlaying(event *events.ApplicationCommandInteractionCreate) {
	guildID, ok := requireGuild(event)
	if !ok {
		return
	}
	if Notifier != nil {
		Notifier.Track(guildID, event.Channel().ID())
	}
	answerLater(
		func() error { return event.DeferCreateMessage(false) },
		editResponse(event.Client(), event.ApplicationID(), event.Token()),
		func() []discord.LayoutComponent {
			v := Player.QueueView(guildID)
			if !v.Playing() {
				return textContainer(sys.MsgPlayerNothingPlaying)
			}
			return NowPlayingCard(*v.NowPlaying, v.Loop, v.Volume)
		},
	)
}
