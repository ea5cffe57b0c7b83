package home

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{59 * time.Second, "00:59"},
		{3*time.Minute + 7*time.Second, "03:07"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{25 * time.Hour, "25:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), tt.in.String())
	}
}

func TestOutcomeText(t *testing.T) {
	song := player.Track{Title: "Song", Duration: 125 * time.Second}
	tests := []struct {
		name string
		o    player.Outcome
		want string
	}{
		{"queued", player.Outcome{Kind: player.KindQueued, Track: song, Position: 3}, fmt.Sprintf(sys.MsgPlayerQueued, 3, "Song", "02:05")},
		{"stopped", player.Outcome{Kind: player.KindStopped}, sys.MsgPlayerStopped},
		{"loop on", player.Outcome{Kind: player.KindToggled, Loop: true}, sys.MsgPlayerLoopOn},
		{"loop off", player.Outcome{Kind: player.KindToggled}, sys.MsgPlayerLoopOff},
		{"finished", player.Outcome{Kind: player.KindQueueFinished}, sys.MsgPlayerQueueFinished},
		{"paused", player.Outcome{Kind: player.KindPaused, Track: song}, fmt.Sprintf(sys.MsgPlayerPaused, "Song")},
		{"paused untitled", player.Outcome{Kind: player.KindPaused}, sys.MsgPlayerPausedNoTitle},
		{"resumed", player.Outcome{Kind: player.KindResumed, Track: song}, fmt.Sprintf(sys.MsgPlayerResumed, "Song")},
		{"volume", player.Outcome{Kind: player.KindVolumeSet, Volume: 120}, fmt.Sprintf(sys.MsgPlayerVolumeSet, 120)},
		{"cleared", player.Outcome{Kind: player.KindCleared, QueueLength: 4}, fmt.Sprintf(sys.MsgPlayerCleared, 4)},
		{"none", player.Outcome{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeText(tt.o, 100))
		})
	}
}

func TestErrorText(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("%w: boom", err) }
	tests := []struct {
		name string
		o    player.Outcome
		want string
	}{
		{"no session", player.Outcome{Err: player.ErrNoActiveSession}, sys.ErrPlayerNoSession},
		{"deferred volume", player.Outcome{Err: wrap(player.ErrVolumeDeferred), Volume: 90}, fmt.Sprintf(sys.ErrPlayerVolumeDeferred, 90)},
		{"queue full", player.Outcome{Err: player.ErrQueueFull}, fmt.Sprintf(sys.ErrPlayerQueueFull, 50)},
		{"queue empty", player.Outcome{Err: player.ErrQueueEmpty}, sys.ErrPlayerQueueEmpty},
		{"invalid volume", player.Outcome{Err: wrap(player.ErrInvalidVolume)}, sys.ErrPlayerInvalidVolume},
		{"nothing playing", player.Outcome{Err: wrap(player.ErrNothingPlaying)}, sys.ErrPlayerNothingPlaying},
		{"not found uses query", player.Outcome{Err: player.ErrNotFound, Query: "lofi"}, fmt.Sprintf(sys.ErrPlayerNotFound, "lofi")},
		{"resolution uses title", player.Outcome{Err: player.ErrResolution, Track: player.Track{Title: "T"}, Query: "q"}, fmt.Sprintf(sys.ErrPlayerResolution, "T")},
		{"stale stream", player.Outcome{Err: wrap(player.ErrStaleStream), Track: player.Track{Title: "T"}}, fmt.Sprintf(sys.ErrPlayerTransport, "T")},
		{"unknown", player.Outcome{Err: errors.New("weird")}, fmt.Sprintf(sys.ErrPlayerGeneric, "weird")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.o.Kind = player.KindError
			assert.Equal(t, tt.want, OutcomeText(tt.o, 50))
		})
	}
}

func TestQueueText(t *testing.T) {
	assert.Equal(t, sys.MsgPlayerQueueEmpty, QueueText(player.QueueView{}))

	now := player.Track{Title: "Current", Duration: 61 * time.Second}
	var queue []player.Track
	for i := 1; i <= 12; i++ {
		queue = append(queue, player.Track{Title: fmt.Sprintf("Song %d", i), Duration: 30 * time.Second})
	}
	text := QueueText(player.QueueView{NowPlaying: &now, Queue: queue})

	assert.Contains(t, text, "Current (01:01)")
	assert.Contains(t, text, sys.MsgPlayerQueueUpNext)
	assert.Contains(t, text, "10. Song 10 (00:30)")
	assert.NotContains(t, text, "Song 11")
	assert.Contains(t, text, fmt.Sprintf(sys.MsgPlayerQueueMore, 2))
	assert.True(t, strings.HasSuffix(text, fmt.Sprintf(sys.MsgPlayerQueueTotal, 12)))

	text = QueueText(player.QueueView{NowPlaying: &now})
	assert.NotContains(t, text, sys.MsgPlayerQueueUpNext)
	assert.Contains(t, text, fmt.Sprintf(sys.MsgPlayerQueueTotal, 0))
}

func TestNowPlayingText(t *testing.T) {
	tr := player.Track{
		Title:       "Song",
		Duration:    200 * time.Second,
		Views:       1234567,
		Locator:     "https://www.youtube.com/watch?v=abc",
		RequestedBy: 42,
	}
	text := NowPlayingText(tr, true, 90)
	assert.Contains(t, text, "**Song**")
	assert.Contains(t, text, "Duration: 03:20")
	assert.Contains(t, text, "Channel: "+player.UnknownChannel)
	assert.Contains(t, text, "Views: 1,234,567")
	assert.Contains(t, text, "<@42>")
	assert.Contains(t, text, "Loop: on")
	assert.Contains(t, text, "Volume: 90%")
	assert.Contains(t, text, "[Watch on YouTube](https://www.youtube.com/watch?v=abc)")

	text = NowPlayingText(player.Track{Title: "Bare", Channel: "Uploader"}, false, 0)
	assert.NotContains(t, text, "Duration")
	assert.NotContains(t, text, "Views")
	assert.NotContains(t, text, "Loop")
	assert.Contains(t, text, "Channel: Uploader")
}

func TestPickerLabel(t *testing.T) {
	long := strings.Repeat("a", 60)
	label := PickerLabel(0, player.Track{Title: long, Duration: 90 * time.Second})
	assert.Equal(t, "1. "+strings.Repeat("a", 37)+"... (01:30)", label)

	assert.Equal(t, "3. Short", PickerLabel(2, player.Track{Title: "Short"}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "he...", truncate("hello!", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "日本...", truncate("日本語のタイトル", 5))
}

func TestHistoryText(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, sys.MsgPlayerHistoryEmpty, HistoryText(nil, 0, now))

	entries := []*sys.HistoryEntry{
		{Title: "Newest", Duration: 65 * time.Second, PlayedAt: now.Add(-3 * time.Minute)},
		{Title: "Older", Duration: 10 * time.Second, PlayedAt: now.Add(-2 * time.Hour)},
	}
	text := HistoryText(entries, 1500, now)
	lines := strings.Split(text, "\n")
	assert.Equal(t, sys.MsgPlayerHistoryHeader, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1. **Newest** (01:05)"))
	assert.Contains(t, lines[1], "ago")
	assert.True(t, strings.HasPrefix(lines[2], "2. **Older** (00:10)"))
	assert.Contains(t, text, "1,500 plays in total")
}

func TestNextVolume(t *testing.T) {
	tests := []struct {
		current int
		step    string
		want    int
		ok      bool
	}{
		{80, "up", 90, true},
		{80, "down", 70, true},
		{5, "down", player.MinVolume, true},
		{195, "up", player.MaxVolume, true},
		{80, "150", 150, true},
		{80, "999", player.MaxVolume, true},
		{80, "loud", 0, false},
	}
	for _, tt := range tests {
		got, ok := nextVolume(tt.current, tt.step)
		assert.Equal(t, tt.ok, ok, tt.step)
		assert.Equal(t, tt.want, got, tt.step)
	}
}

func TestHelpText(t *testing.T) {
	text := HelpText(25)
	for _, cmd := range []string{"/play", "/splay", "/queue", "/volume", "/history", "/sleep"} {
		assert.Contains(t, text, cmd)
	}
	assert.Contains(t, text, "up to 25 songs")
}
