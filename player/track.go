package player

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const (
	DefaultMaxQueueSize = 100
	DefaultVolume       = 80
	MinVolume           = 1
	MaxVolume           = 200

	UnknownChannel = "Unknown"
)

// Track is a resolved playable item. It is passed around by value; nothing
// outside the coordinator ever holds a pointer into chat state.
type Track struct {
	Title       string
	Duration    time.Duration // whole seconds, 0 when unknown
	Channel     string
	Thumbnail   string
	Locator     string // canonical watch URL
	StreamURL   string // may expire, refreshed through the resolver when stale
	Views       int64
	RequestedBy snowflake.ID
}

// ChannelOrUnknown returns the uploader name, or UnknownChannel when the
// resolver had none.
func (t Track) ChannelOrUnknown() string {
	if t.Channel == "" || t.Channel == "NA" {
		return UnknownChannel
	}
	return t.Channel
}

// QueueView is a point-in-time copy of a chat's playback state for display.
type QueueView struct {
	NowPlaying *Track
	Queue      []Track
	Loop       bool
	Volume     int
}

// Playing reports whether the chat was in the Playing state when the view was
// taken.
func (v QueueView) Playing() bool {
	return v.NowPlaying != nil
}

type chatState struct {
	queue      []Track
	nowPlaying *Track
	loop       bool
	volume     int
	// gen identifies the stream started for nowPlaying.
	gen uint64
}

func (s *chatState) popHead() Track {
	t := s.queue[0]
	s.queue[0] = Track{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return t
}

func (s *chatState) view() QueueView {
	v := QueueView{
		Loop:   s.loop,
		Volume: s.volume,
	}
	if s.nowPlaying != nil {
		np := *s.nowPlaying
		v.NowPlaying = &np
	}
	if len(s.queue) > 0 {
		v.Queue = make([]Track, len(s.queue))
		copy(v.Queue, s.queue)
	}
	return v
}
