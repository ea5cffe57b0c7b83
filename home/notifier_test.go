package home

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	channel    snowflake.ID
	components []discord.LayoutComponent
}

type notifierRecorder struct {
	mu       sync.Mutex
	sent     []sentMessage
	statuses []string
	recorded []player.Track
}

func newTestNotifier(rec *notifierRecorder) *ChatNotifier {
	n := NewChatNotifier(100)
	n.send = func(_ context.Context, ch snowflake.ID, c []discord.LayoutComponent) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.sent = append(rec.sent, sentMessage{ch, c})
		return nil
	}
	n.status = func(_ snowflake.ID, s string) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.statuses = append(rec.statuses, s)
	}
	n.record = func(_ context.Context, _ snowflake.ID, t player.Track) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.recorded = append(rec.recorded, t)
		return nil
	}
	return n
}

func TestNotifierFirstOutcomeEditsResponse(t *testing.T) {
	rec := &notifierRecorder{}
	n := newTestNotifier(rec)
	n.Track(1, 10)

	var edits int
	r := &Responder{edit: func([]discord.LayoutComponent) error {
		edits++
		return nil
	}}
	ctx := WithResponder(context.Background(), r)

	n.Notify(ctx, 1, player.Outcome{Kind: player.KindQueued, Track: player.Track{Title: "A"}, Position: 1})
	n.Notify(ctx, 1, player.Outcome{Kind: player.KindQueueFinished})

	assert.Equal(t, 1, edits)
	assert.True(t, r.Claimed())
	require.Len(t, rec.sent, 1)
	assert.Equal(t, snowflake.ID(10), rec.sent[0].channel)
}

func TestNotifierFallsBackToChannelWhenEditFails(t *testing.T) {
	rec := &notifierRecorder{}
	n := newTestNotifier(rec)
	n.Track(1, 10)

	r := &Responder{edit: func([]discord.LayoutComponent) error { return errors.New("unknown interaction") }}
	n.Notify(WithResponder(context.Background(), r), 1, player.Outcome{Kind: player.KindStopped})

	assert.Len(t, rec.sent, 1)
}

func TestNotifierWithoutChannelDropsMessage(t *testing.T) {
	rec := &notifierRecorder{}
	n := newTestNotifier(rec)

	n.Notify(context.Background(), 1, player.Outcome{Kind: player.KindStopped})
	n.Notify(context.Background(), 1, player.Outcome{Kind: player.KindNone})
	n.Track(1, 0)
	n.Notify(context.Background(), 1, player.Outcome{Kind: player.KindStopped})

	assert.Empty(t, rec.sent)
}

func TestNotifierSideEffects(t *testing.T) {
	rec := &notifierRecorder{}
	n := newTestNotifier(rec)
	n.Track(1, 10)

	song := player.Track{Title: "Song", Channel: "Artist"}
	n.Notify(context.Background(), 1, player.Outcome{Kind: player.KindPlaying, Track: song})
	n.Notify(context.Background(), 1, player.Outcome{Kind: player.KindQueueFinished})
	n.Notify(context.Background(), 1, player.Outcome{Kind: player.KindNone, Track: song})

	assert.Equal(t, []string{"🎵 Song · Artist", ""}, rec.statuses)
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "Song", rec.recorded[0].Title)
	assert.Len(t, rec.sent, 2)
}

func TestNotifierAnnounce(t *testing.T) {
	rec := &notifierRecorder{}
	n := newTestNotifier(rec)
	n.Track(7, 70)
	n.Track(7, 71)

	n.Announce(context.Background(), 7, "hello")

	require.Len(t, rec.sent, 1)
	assert.Equal(t, snowflake.ID(71), rec.sent[0].channel)
}

func TestResponderClaimOnce(t *testing.T) {
	var nilResponder *Responder
	assert.False(t, nilResponder.claim())
	assert.False(t, (&Responder{}).claim())

	r := &Responder{edit: func([]discord.LayoutComponent) error { return nil }}
	assert.True(t, r.claim())
	assert.False(t, r.claim())
	assert.Nil(t, responderFrom(context.Background()))
	assert.Same(t, r, responderFrom(WithResponder(context.Background(), r)))
}
