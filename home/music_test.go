package home

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heldTransport blocks JoinOrChange until release is closed.
type heldTransport struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	leaves int
}

func newHeldTransport() *heldTransport {
	return &heldTransport{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (h *heldTransport) JoinOrChange(context.Context, snowflake.ID, string, int) (uint64, error) {
	h.entered <- struct{}{}
	<-h.release
	return 1, nil
}

func (h *heldTransport) Leave(context.Context, snowflake.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaves++
	return nil
}

func (h *heldTransport) SetVolume(context.Context, snowflake.ID, int) error { return nil }
func (h *heldTransport) Pause(context.Context, snowflake.ID) error          { return nil }
func (h *heldTransport) Resume(context.Context, snowflake.ID) error         { return nil }

func usePlayer(t *testing.T, tr player.Transport) {
	t.Helper()
	prev := Player
	Player = player.New(player.Config{}, nil, tr, nil)
	t.Cleanup(func() { Player = prev })
}

func TestAnswerLaterAcknowledgesWhileTrackStarts(t *testing.T) {
	tr := newHeldTransport()
	usePlayer(t, tr)
	guild := snowflake.ID(42)

	started := make(chan struct{})
	go func() {
		defer close(started)
		Player.EnqueueOrPlay(context.Background(), guild, player.Track{Title: "slow", StreamURL: "https://stream/slow"})
	}()
	<-tr.entered

	acked := make(chan struct{})
	filled := make(chan []discord.LayoutComponent, 1)
	go answerLater(
		func() error { close(acked); return nil },
		func(c []discord.LayoutComponent) error { filled <- c; return nil },
		func() []discord.LayoutComponent { return textContainer(QueueText(Player.QueueView(guild))) },
	)

	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("interaction not acknowledged while the chat was busy")
	}
	select {
	case <-filled:
		t.Fatal("reply filled before the chat was released")
	default:
	}

	close(tr.release)
	<-started
	select {
	case c := <-filled:
		assert.NotEmpty(t, c)
	case <-time.After(time.Second):
		t.Fatal("reply never filled")
	}
}

func TestAnswerLaterStopsWhenAckFails(t *testing.T) {
	built := false
	answerLater(
		func() error { return assert.AnError },
		func([]discord.LayoutComponent) error { return nil },
		func() []discord.LayoutComponent { built = true; return nil },
	)
	assert.False(t, built)
}

func TestHandleDisconnectCancelsSleep(t *testing.T) {
	tr := newHeldTransport()
	close(tr.release)
	usePlayer(t, tr)
	guild := snowflake.ID(77)

	fired := make(chan struct{}, 1)
	scheduleSleep(guild, time.Hour, func(snowflake.ID) { fired <- struct{}{} })

	HandleDisconnect(context.Background(), guild)

	assert.False(t, cancelSleep(guild))
	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Equal(t, 1, tr.leaves)
}
