package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
)

const autocompleteBudget = 2500 * time.Millisecond

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	query, _ := data.OptString("query")
	userID := event.User().ID

	runDeferred(event, func(ctx context.Context, guildID snowflake.ID) {
		bindRequester(event.Client(), guildID, userID)
		sys.LogCommand(sys.MsgCommandPlay, query, guildID)
		Player.Play(ctx, guildID, userID, query)
	})
}

// handleMusicAutocomplete suggests search results, or the guild's recent plays
// while the query is still empty.
func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	query := focused.String()

	var choices []discord.AutocompleteChoice
	if query == "" {
		if event.GuildID() != nil && sys.DB != nil {
			ctx, cancel := context.WithTimeout(sys.AppContext, autocompleteBudget)
			defer cancel()
			entries, err := sys.GetRecentHistory(ctx, *event.GuildID(), 25)
			if err == nil {
				for _, e := range entries {
					choices = append(choices, choice(e.Title, e.Locator))
				}
			}
		}
		_ = event.AutocompleteResult(choices)
		return
	}

	if Resolver == nil {
		_ = event.AutocompleteResult(nil)
		return
	}
	ctx, cancel := context.WithTimeout(sys.AppContext, autocompleteBudget)
	defer cancel()
	results, err := Resolver.Search(ctx, query, 25)
	if err != nil {
		_ = event.AutocompleteResult(nil)
		return
	}
	for _, r := range results {
		choices = append(choices, trackChoice(r))
	}
	_ = event.AutocompleteResult(choices)
}

func trackChoice(t player.Track) discord.AutocompleteChoice {
	name := t.Title
	if t.Channel != "" {
		name += " - " + t.Channel
	}
	return choice(name, t.Locator)
}

// choice builds an autocomplete entry that plays value directly. Discord caps
// both fields at 100 characters; a value that does not fit falls back to the
// name, which is then searched.
func choice(name, value string) discord.AutocompleteChoice {
	name = truncate(name, 100)
	if len(value) > 100 || value == "" {
		value = truncate(name, 100)
	}
	return discord.AutocompleteChoiceString{Name: name, Value: value}
}
