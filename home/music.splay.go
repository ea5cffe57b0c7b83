package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/melody/proc"
	"github.com/leeineian/melody/sys"
)

func handleMusicSearchPlay(event *events.ApplicationCommandInteractionCreate) {
	guildID, ok := requireGuild(event)
	if !ok {
		return
	}
	data := event.SlashCommandInteractionData()
	query, _ := data.OptString("query")

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(textContainer(fmt.Sprintf(sys.MsgPlayerSearching, query))...).
		Build())
	if Notifier != nil {
		Notifier.Track(guildID, event.Channel().ID())
	}

	limit := sys.DefaultSearchLimit
	if sys.GlobalConfig != nil {
		limit = sys.GlobalConfig.Search.Limit
	}
	results, err := Resolver.Search(sys.AppContext, query, limit)

	var components []discord.LayoutComponent
	if err != nil || len(results) == 0 {
		components = textContainer(fmt.Sprintf(sys.ErrPlayerNotFound, query))
	} else {
		components = SearchPicker(query, results, proc.ExtractVideoID)
	}
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(components...).
		Build())
}

// handleSearchPick plays the picked result in place of the picker.
func handleSearchPick(event *events.ComponentInteractionCreate) {
	if event.GuildID() == nil || Player == nil {
		return
	}
	guildID := *event.GuildID()
	id := strings.TrimPrefix(event.Data.CustomID(), "play:")
	if id == "" {
		return
	}
	userID := event.User().ID

	_ = event.DeferUpdateMessage()
	bindRequester(event.Client(), guildID, userID)
	ctx := commandContext(event.Client(), event.ApplicationID(), event.Token(), guildID, event.Channel().ID())
	Player.Play(ctx, guildID, userID, proc.WatchURL(id))
}

func handleSearchCancel(event *events.ComponentInteractionCreate) {
	_ = event.DeferUpdateMessage()
	if err := event.Client().Rest.DeleteMessage(event.Channel().ID(), event.Message.ID); err != nil {
		sys.LogCommand(sys.MsgCommandDeleteFail, "search picker", err)
	}
}
