package player

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// Kind identifies what an Outcome reports.
type Kind int

const (
	KindNone Kind = iota
	KindPlaying
	KindQueued
	KindError
	KindStopped
	KindToggled
	KindQueueFinished
	KindPaused
	KindResumed
	KindVolumeSet
	KindCleared
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindPlaying:
		return "Playing"
	case KindQueued:
		return "Queued"
	case KindError:
		return "Error"
	case KindStopped:
		return "Stopped"
	case KindToggled:
		return "Toggled"
	case KindQueueFinished:
		return "QueueFinished"
	case KindPaused:
		return "Paused"
	case KindResumed:
		return "Resumed"
	case KindVolumeSet:
		return "VolumeSet"
	case KindCleared:
		return "Cleared"
	default:
		return "Unknown"
	}
}

// Outcome is the structured result of a coordinator operation. Formatting it
// for users is the notifier's job.
type Outcome struct {
	Kind        Kind
	Track       Track
	Position    int // 1-based queue position for KindQueued
	QueueLength int
	Loop        bool
	Volume      int
	Query       string
	Err         error
}

// Notifier receives every outcome the coordinator emits, in order, per chat.
// Notify is called while the chat's section is held, so it must not call back
// into the coordinator for the same chat.
type Notifier interface {
	Notify(ctx context.Context, chatID snowflake.ID, o Outcome)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, chatID snowflake.ID, o Outcome)

func (f NotifierFunc) Notify(ctx context.Context, chatID snowflake.ID, o Outcome) {
	f(ctx, chatID, o)
}

// Resolver finds and resolves tracks.
type Resolver interface {
	Search(ctx context.Context, query string, limit int) ([]Track, error)
	Resolve(ctx context.Context, locatorOrQuery string) (Track, error)
}

// Transport drives the live audio session of a chat. JoinOrChange returns a
// generation that is unique per started stream; the transport passes it back
// with that stream's end.
type Transport interface {
	JoinOrChange(ctx context.Context, chatID snowflake.ID, audioURL string, volume int) (uint64, error)
	Leave(ctx context.Context, chatID snowflake.ID) error
	SetVolume(ctx context.Context, chatID snowflake.ID, volume int) error
	Pause(ctx context.Context, chatID snowflake.ID) error
	Resume(ctx context.Context, chatID snowflake.ID) error
}
