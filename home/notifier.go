package home

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
)

// ===========================
// Responder
// ===========================

type responderKey struct{}

// Responder edits the reply of the interaction that triggered an operation.
// It is used for the first outcome only; later ones go to the channel.
type Responder struct {
	edit func(components []discord.LayoutComponent) error
	used atomic.Bool
}

// NewInteractionResponder edits the deferred response identified by appID and
// token.
func NewInteractionResponder(client *bot.Client, appID snowflake.ID, token string) *Responder {
	return &Responder{edit: func(components []discord.LayoutComponent) error {
		_, err := client.Rest.UpdateInteractionResponse(appID, token, discord.NewMessageUpdateBuilder().
			SetIsComponentsV2(true).
			SetComponents(components...).
			Build())
		return err
	}}
}

func WithResponder(ctx context.Context, r *Responder) context.Context {
	return context.WithValue(ctx, responderKey{}, r)
}

func responderFrom(ctx context.Context) *Responder {
	r, _ := ctx.Value(responderKey{}).(*Responder)
	return r
}

func (r *Responder) claim() bool {
	return r != nil && r.edit != nil && r.used.CompareAndSwap(false, true)
}

// Claimed reports whether an outcome already went through the responder.
func (r *Responder) Claimed() bool {
	return r.used.Load()
}

// ===========================
// Notifier
// ===========================

// ChatNotifier renders coordinator outcomes into Discord messages. It answers
// the triggering interaction when there is one and otherwise posts to the
// channel the guild last used a music command in.
type ChatNotifier struct {
	mu       sync.Mutex
	channels map[snowflake.ID]snowflake.ID
	maxQueue int

	send   func(ctx context.Context, channelID snowflake.ID, components []discord.LayoutComponent) error
	status func(guildID snowflake.ID, status string)
	record func(ctx context.Context, guildID snowflake.ID, t player.Track) error
}

func NewChatNotifier(maxQueue int) *ChatNotifier {
	return &ChatNotifier{
		channels: make(map[snowflake.ID]snowflake.ID),
		maxQueue: maxQueue,
		record:   recordHistory,
	}
}

// Attach routes channel messages through client and voice status through
// setStatus.
func (n *ChatNotifier) Attach(client *bot.Client, setStatus func(guildID snowflake.ID, status string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = setStatus
	n.send = func(ctx context.Context, channelID snowflake.ID, components []discord.LayoutComponent) error {
		_, err := client.Rest.CreateMessage(channelID, discord.NewMessageCreateBuilder().
			SetIsComponentsV2(true).
			AddComponents(components...).
			Build(), rest.WithCtx(ctx))
		return err
	}
}

// Track remembers channelID as the place for unsolicited messages of guildID.
func (n *ChatNotifier) Track(guildID, channelID snowflake.ID) {
	if channelID == 0 {
		return
	}
	n.mu.Lock()
	n.channels[guildID] = channelID
	n.mu.Unlock()
}

func (n *ChatNotifier) Notify(ctx context.Context, guildID snowflake.ID, o player.Outcome) {
	if o.Kind == player.KindNone {
		return
	}
	n.sideEffects(ctx, guildID, o)

	components := RenderOutcome(o, n.maxQueue)
	if r := responderFrom(ctx); r.claim() {
		err := r.edit(components)
		if err == nil {
			return
		}
		sys.LogCommand(sys.MsgCommandEditFail, guildID, err)
	}

	n.post(ctx, guildID, components)
}

// Announce posts text to the guild's music channel.
func (n *ChatNotifier) Announce(ctx context.Context, guildID snowflake.ID, text string) {
	n.post(ctx, guildID, textContainer(text))
}

func (n *ChatNotifier) post(ctx context.Context, guildID snowflake.ID, components []discord.LayoutComponent) {
	n.mu.Lock()
	send := n.send
	ch := n.channels[guildID]
	n.mu.Unlock()
	if send == nil || ch == 0 {
		return
	}
	if err := send(context.WithoutCancel(ctx), ch, components); err != nil {
		sys.LogCommand(sys.MsgCommandNotifyFail, guildID, err)
	}
}

func (n *ChatNotifier) sideEffects(ctx context.Context, guildID snowflake.ID, o player.Outcome) {
	n.mu.Lock()
	status, record := n.status, n.record
	n.mu.Unlock()

	switch o.Kind {
	case player.KindPlaying:
		if status != nil {
			status(guildID, "🎵 "+o.Track.Title+" · "+o.Track.ChannelOrUnknown())
		}
		if record != nil {
			if err := record(context.WithoutCancel(ctx), guildID, o.Track); err != nil {
				sys.LogDatabase(sys.MsgHistoryRecordFail, guildID, err)
			}
		}
	case player.KindQueueFinished:
		if status != nil {
			status(guildID, "")
		}
	}
}

func recordHistory(ctx context.Context, guildID snowflake.ID, t player.Track) error {
	if sys.DB == nil {
		return nil
	}
	return sys.AddPlayHistory(ctx, &sys.HistoryEntry{
		GuildID:   guildID,
		UserID:    t.RequestedBy,
		Title:     t.Title,
		Locator:   t.Locator,
		Channel:   t.Channel,
		Thumbnail: t.Thumbnail,
		Duration:  t.Duration,
	})
}
