package home

import (
	"context"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/proc"
	"github.com/leeineian/melody/sys"
)

var (
	Player   *player.Coordinator
	Voice    *proc.VoiceSystem
	Resolver *proc.Resolver
	Notifier *ChatNotifier
)

// Setup hands the running services to the command handlers.
func Setup(c *player.Coordinator, v *proc.VoiceSystem, r *proc.Resolver, n *ChatNotifier) {
	Player, Voice, Resolver, Notifier = c, v, r, n
}

var guildOnly = []discord.InteractionContextType{discord.InteractionContextTypeGuild}

func intPtr(i int) *int { return &i }

func simpleCommand(name, description string) discord.SlashCommandCreate {
	return discord.SlashCommandCreate{
		Name:        name,
		Description: description,
		Contexts:    guildOnly,
	}
}

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "play",
		Description: "Play a song from a YouTube link or search",
		Contexts:    guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:         "query",
				Description:  "A YouTube URL or what to search for",
				Required:     true,
				Autocomplete: true,
			},
		},
	}, handleMusicPlay)
	sys.RegisterAutocompleteHandler("play", handleMusicAutocomplete)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "splay",
		Description: "Search and pick from the top results",
		Contexts:    guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "query",
				Description: "What to search for",
				Required:    true,
			},
		},
	}, handleMusicSearchPlay)
	sys.RegisterComponentHandler("play:", handleSearchPick)
	sys.RegisterComponentHandler("cancel_search", handleSearchCancel)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "volume",
		Description: "Set the playback volume",
		Contexts:    guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "level",
				Description: "Volume from 1 to 200",
				Required:    true,
				MinValue:    intPtr(player.MinVolume),
				MaxValue:    intPtr(player.MaxVolume),
			},
		},
	}, handleMusicVolume)

	sys.RegisterCommand(simpleCommand("queue", "Show the queue"), handleMusicQueue)
	sys.RegisterCommand(simpleCommand("pause", "Pause playback"), handleMusicPause)
	sys.RegisterCommand(simpleCommand("resume", "Resume playback"), handleMusicResume)
	sys.RegisterCommand(simpleCommand("skip", "Skip the current song"), handleMusicSkip)
	sys.RegisterCommand(simpleCommand("stop", "Stop playback, clear the queue and leave"), handleMusicStop)
	sys.RegisterCommand(simpleCommand("loop", "Toggle looping of the current song"), handleMusicLoop)
	sys.RegisterCommand(simpleCommand("clear", "Remove every queued song"), handleMusicClear)
	sys.RegisterCommand(simpleCommand("nowplaying", "Show the current song"), handleMusicNowPlaying)
	sys.RegisterCommand(simpleCommand("np", "Show the current song"), handleMusicNowPlaying)

	sys.RegisterComponentHandler("music:", handleMusicButton)
}

// ===========================
// Helpers
// ===========================

// bindRequester points the guild's voice session at the channel the user is
// in. It reports false when the user is not in voice.
func bindRequester(client *bot.Client, guildID, userID snowflake.ID) bool {
	if Voice == nil {
		return false
	}
	vs, ok := client.Caches.VoiceState(guildID, userID)
	if !ok || vs.ChannelID == nil {
		return false
	}
	Voice.Bind(guildID, *vs.ChannelID)
	return true
}

// commandContext prepares the context for a coordinator call made from an
// interaction: the guild's message channel is remembered and the first
// outcome edits the deferred response.
func commandContext(client *bot.Client, appID snowflake.ID, token string, guildID, channelID snowflake.ID) context.Context {
	if Notifier != nil {
		Notifier.Track(guildID, channelID)
	}
	return WithResponder(sys.AppContext, NewInteractionResponder(client, appID, token))
}

func respond(event *events.ApplicationCommandInteractionCreate, text string, ephemeral bool) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		SetEphemeral(ephemeral).
		AddComponents(textContainer(text)...).
		Build())
}

func requireGuild(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, bool) {
	if event.GuildID() == nil || Player == nil {
		respond(event, sys.ErrPlayerGuildOnly, true)
		return 0, false
	}
	return *event.GuildID(), true
}

// answerLater acknowledges the interaction before build runs, since build may
// wait on a chat whose track is still starting.
func answerLater(ack func() error, fill func([]discord.LayoutComponent) error, build func() []discord.LayoutComponent) {
	if err := ack(); err != nil {
		sys.LogCommand(sys.MsgCommandDeferFail, err)
		return
	}
	if err := fill(build()); err != nil {
		sys.LogCommand(sys.MsgCommandEditFail, "deferred reply", err)
	}
}

// editResponse fills in the deferred response of an interaction.
func editResponse(client *bot.Client, appID snowflake.ID, token string) func([]discord.LayoutComponent) error {
	return NewInteractionResponder(client, appID, token).edit
}

// HandleDisconnect resets a guild whose voice connection was dropped from
// outside: the pending sleep timer goes and the player stops.
func HandleDisconnect(ctx context.Context, guildID snowflake.ID) {
	cancelSleep(guildID)
	if Player != nil {
		Player.Stop(ctx, guildID)
	}
}

// runDeferred defers the reply and runs op with a context whose first outcome
// fills it in.
func runDeferred(event *events.ApplicationCommandInteractionCreate, op func(ctx context.Context, guildID snowflake.ID)) {
	guildID, ok := requireGuild(event)
	if !ok {
		return
	}
	_ = event.DeferCreateMessage(false)
	ctx := commandContext(event.Client(), event.ApplicationID(), event.Token(), guildID, event.Channel().ID())
	op(ctx, guildID)
}
