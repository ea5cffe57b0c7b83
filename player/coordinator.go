package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Config holds the coordinator limits.
type Config struct {
	MaxQueueSize  int
	DefaultVolume int
	// ApplyTimeout bounds the asynchronous volume push to the transport.
	ApplyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.DefaultVolume < MinVolume || c.DefaultVolume > MaxVolume {
		c.DefaultVolume = DefaultVolume
	}
	if c.ApplyTimeout <= 0 {
		c.ApplyTimeout = 5 * time.Second
	}
	return c
}

type chatEntry struct {
	mu    sync.Mutex
	state chatState
}

// Coordinator owns the playback state of every chat. All operations on one
// chat run under that chat's mutex; different chats never wait on each other.
type Coordinator struct {
	cfg       Config
	resolver  Resolver
	transport Transport
	notifier  Notifier
	log       *slog.Logger

	chats   sync.Map // snowflake.ID -> *chatEntry
	pending sync.WaitGroup
}

type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func New(cfg Config, resolver Resolver, transport Transport, notifier Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg.withDefaults(),
		resolver:  resolver,
		transport: transport,
		notifier:  notifier,
		log:       slog.Default().With(slog.String("component", "player")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective limits after defaults were applied.
func (c *Coordinator) Config() Config {
	return c.cfg
}

func (c *Coordinator) entry(chatID snowflake.ID) *chatEntry {
	if e, ok := c.chats.Load(chatID); ok {
		return e.(*chatEntry)
	}
	e, _ := c.chats.LoadOrStore(chatID, &chatEntry{state: chatState{volume: c.cfg.DefaultVolume}})
	return e.(*chatEntry)
}

func (c *Coordinator) notify(ctx context.Context, chatID snowflake.ID, o Outcome) Outcome {
	if c.notifier != nil {
		c.notifier.Notify(ctx, chatID, o)
	}
	return o
}

// ===========================
// Operations
// ===========================

// Play resolves a locator or free-text query and hands the track to
// EnqueueOrPlay. Resolution touches no chat state, so it runs outside the
// chat's section.
func (c *Coordinator) Play(ctx context.Context, chatID, requester snowflake.ID, query string) Outcome {
	if c.resolver == nil {
		return c.notify(ctx, chatID, Outcome{Kind: KindError, Query: query, Err: ErrResolution})
	}
	t, err := c.resolver.Resolve(ctx, query)
	if err != nil {
		c.log.Debug("resolve failed", slog.String("query", query), slog.Any("chat", chatID), slog.Any("error", err))
		return c.notify(ctx, chatID, Outcome{Kind: KindError, Query: query, Err: classifyResolveErr(err)})
	}
	if t.RequestedBy == 0 {
		t.RequestedBy = requester
	}
	return c.EnqueueOrPlay(ctx, chatID, t)
}

// EnqueueOrPlay starts t when the chat is idle, otherwise appends it to the
// queue. A full queue rejects t without touching the queue.
func (c *Coordinator) EnqueueOrPlay(ctx context.Context, chatID snowflake.ID, t Track) Outcome {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &e.state

	if st.nowPlaying == nil {
		return c.runLocked(ctx, chatID, st, &t)
	}

	if len(st.queue) >= c.cfg.MaxQueueSize {
		return c.notify(ctx, chatID, Outcome{
			Kind:        KindError,
			Track:       t,
			QueueLength: len(st.queue),
			Err:         fmt.Errorf("%w: max %d tracks", ErrQueueFull, c.cfg.MaxQueueSize),
		})
	}

	st.queue = append(st.queue, t)
	return c.notify(ctx, chatID, Outcome{
		Kind:        KindQueued,
		Track:       t,
		Position:    len(st.queue),
		QueueLength: len(st.queue),
	})
}

// Skip advances past the current track.
func (c *Coordinator) Skip(ctx context.Context, chatID snowflake.ID) Outcome {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.nowPlaying == nil {
		return c.notify(ctx, chatID, Outcome{Kind: KindError, Err: ErrNothingPlaying})
	}
	return c.runLocked(ctx, chatID, &e.state, nil)
}

// OnStreamEnded is called by the transport when a stream finishes on its own.
// gen is the value JoinOrChange returned for that stream. An idle chat, or one
// that has started another stream since, ignores it without notifying anyone.
func (c *Coordinator) OnStreamEnded(ctx context.Context, chatID snowflake.ID, gen uint64) Outcome {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.nowPlaying == nil {
		c.log.Debug("ignoring stream end for idle chat", slog.Any("chat", chatID))
		return Outcome{}
	}
	if gen != e.state.gen {
		c.log.Debug("ignoring stale stream end", slog.Any("chat", chatID), slog.Uint64("gen", gen), slog.Uint64("current", e.state.gen))
		return Outcome{}
	}
	return c.runLocked(ctx, chatID, &e.state, nil)
}

// Stop leaves the session and resets the chat to idle whatever it was doing.
func (c *Coordinator) Stop(ctx context.Context, chatID snowflake.ID) Outcome {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	c.resetLocked(ctx, chatID, &e.state)
	return c.notify(ctx, chatID, Outcome{Kind: KindStopped})
}

func (c *Coordinator) resetLocked(ctx context.Context, chatID snowflake.ID, st *chatState) {
	if err := c.transport.Leave(ctx, chatID); err != nil {
		c.log.Warn("leave failed", slog.Any("chat", chatID), slog.Any("error", err))
	}
	st.queue = nil
	st.nowPlaying = nil
	st.loop = false
}

// Pause forwards to the transport; the transport owns the paused flag.
func (c *Coordinator) Pause(ctx context.Context, chatID snowflake.ID) Outcome {
	return c.passThrough(ctx, chatID, KindPaused, c.transport.Pause)
}

// Resume forwards to the transport.
func (c *Coordinator) Resume(ctx context.Context, chatID snowflake.ID) Outcome {
	return c.passThrough(ctx, chatID, KindResumed, c.transport.Resume)
}

func (c *Coordinator) passThrough(ctx context.Context, chatID snowflake.ID, kind Kind, call func(context.Context, snowflake.ID) error) Outcome {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := call(ctx, chatID); err != nil {
		if errors.Is(err, ErrNotPlaying) {
			err = fmt.Errorf("%w: %w", ErrNothingPlaying, err)
		} else {
			err = classifyPlayErr(err)
		}
		return c.notify(ctx, chatID, Outcome{Kind: KindError, Err: err})
	}

	o := Outcome{Kind: kind}
	if e.state.nowPlaying != nil {
		o.Track = *e.state.nowPlaying
	}
	return c.notify(ctx, chatID, o)
}

// SetVolume stores v for the chat. When a track is playing the new level is
// pushed to the transport in the background; a failed push keeps the stored
// value and reports that it applies from the next track.
func (c *Coordinator) SetVolume(ctx context.Context, chatID snowflake.ID, v int) Outcome {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &e.state

	if v < MinVolume || v > MaxVolume {
		return c.notify(ctx, chatID, Outcome{
			Kind:   KindError,
			Volume: st.volume,
			Err:    fmt.Errorf("%w: got %d", ErrInvalidVolume, v),
		})
	}

	st.volume = v
	out := c.notify(ctx, chatID, Outcome{Kind: KindVolumeSet, Volume: v})

	if st.nowPlaying != nil {
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ApplyTimeout)
			defer cancel()
			if err := c.transport.SetVolume(actx, chatID, v); err != nil {
				c.log.Warn("volume not applied live", slog.Int("volume", v), slog.Any("chat", chatID), slog.Any("error", err))
				c.notify(actx, chatID, Outcome{
					Kind:   KindError,
					Volume: v,
					Err:    fmt.Errorf("%w: %w", ErrVolumeDeferred, err),
				})
			}
		}()
	}
	return out
}

// SetLoop flips the loop flag and reports the new value.
func (c *Coordinator) SetLoop(ctx context.Context, chatID snowflake.ID) Outcome {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.loop = !e.state.loop
	return c.notify(ctx, chatID, Outcome{Kind: KindToggled, Loop: e.state.loop})
}

// Clear drops every queued track but leaves the current one playing.
func (c *Coordinator) Clear(ctx context.Context, chatID snowflake.ID) Outcome {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.state.queue)
	if n == 0 {
		return c.notify(ctx, chatID, Outcome{Kind: KindError, Err: ErrQueueEmpty})
	}
	e.state.queue = nil
	return c.notify(ctx, chatID, Outcome{Kind: KindCleared, QueueLength: n})
}

// QueueView returns a copy of the chat's state.
func (c *Coordinator) QueueView(chatID snowflake.ID) QueueView {
	e := c.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.view()
}

// NowPlaying returns a copy of the current track, if any.
func (c *Coordinator) NowPlaying(chatID snowflake.ID) (Track, bool) {
	v := c.QueueView(chatID)
	if v.NowPlaying == nil {
		return Track{}, false
	}
	return *v.NowPlaying, true
}

// Shutdown leaves every active session without notifying chats and waits for
// background volume pushes to finish.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.chats.Range(func(key, value any) bool {
		chatID := key.(snowflake.ID)
		e := value.(*chatEntry)
		e.mu.Lock()
		if e.state.nowPlaying != nil || len(e.state.queue) > 0 {
			c.resetLocked(ctx, chatID, &e.state)
		}
		e.mu.Unlock()
		return true
	})
	c.Wait()
}

// Wait blocks until asynchronous volume pushes have returned.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

// ===========================
// Advance
// ===========================

// runLocked plays first when given, otherwise picks the next track the way an
// advance does: loop replays the current track, else the queue head is popped.
// Transport faults report the failed track and move on to the next queued one;
// the loop ends at the first success, when the queue runs dry, or at a missing
// session, which puts a popped track back at the head. A failed first is
// reported and not followed by the queue. A failed track is never replayed by
// loop.
func (c *Coordinator) runLocked(ctx context.Context, chatID snowflake.ID, st *chatState, first *Track) Outcome {
	replay := first == nil && st.loop && st.nowPlaying != nil
	next := first

	var last Outcome
	failed := false

	for {
		var t Track
		fromQueue, direct := false, false
		switch {
		case next != nil:
			t, next, direct = *next, nil, true
		case replay:
			t, replay = *st.nowPlaying, false
		case len(st.queue) > 0:
			t, fromQueue = st.popHead(), true
		default:
			st.nowPlaying = nil
			if failed {
				return last
			}
			c.log.Debug("queue finished", slog.Any("chat", chatID))
			return c.notify(ctx, chatID, Outcome{Kind: KindQueueFinished})
		}

		st.nowPlaying = &t
		gen, err := c.start(ctx, chatID, st, &t)
		if err == nil {
			st.gen = gen
			c.log.Debug("playing", slog.String("title", t.Title), slog.Any("chat", chatID), slog.Uint64("gen", gen))
			return c.notify(ctx, chatID, Outcome{
				Kind:        KindPlaying,
				Track:       t,
				QueueLength: len(st.queue),
				Loop:        st.loop,
				Volume:      st.volume,
			})
		}

		st.nowPlaying = nil
		last = c.notify(ctx, chatID, Outcome{Kind: KindError, Track: t, QueueLength: len(st.queue), Err: err})
		if errors.Is(err, ErrNoActiveSession) {
			if fromQueue {
				st.queue = append([]Track{t}, st.queue...)
			}
			return last
		}
		if direct {
			return last
		}
		c.log.Warn("play failed, trying next", slog.String("title", t.Title), slog.Any("chat", chatID), slog.Any("error", err))
		failed = true
	}
}

// start asks the transport to stream t, resolving the stream URL first when
// the track has none and once more when the transport flags it stale. The
// refreshed URL is written back into t. On success it returns the generation
// the transport assigned to the stream.
func (c *Coordinator) start(ctx context.Context, chatID snowflake.ID, st *chatState, t *Track) (uint64, error) {
	if t.StreamURL == "" {
		if err := c.refresh(ctx, t); err != nil {
			return 0, err
		}
	}

	gen, err := c.transport.JoinOrChange(ctx, chatID, t.StreamURL, st.volume)
	if errors.Is(err, ErrStaleStream) && c.resolver != nil && t.Locator != "" {
		c.log.Debug("stream url expired, re-resolving", slog.String("title", t.Title))
		if rerr := c.refresh(ctx, t); rerr != nil {
			return 0, rerr
		}
		gen, err = c.transport.JoinOrChange(ctx, chatID, t.StreamURL, st.volume)
	}
	if err != nil {
		return 0, classifyPlayErr(err)
	}
	return gen, nil
}

func (c *Coordinator) refresh(ctx context.Context, t *Track) error {
	if c.resolver == nil || t.Locator == "" {
		return fmt.Errorf("%w: no stream url for %q", ErrResolution, t.Title)
	}
	fresh, err := c.resolver.Resolve(ctx, t.Locator)
	if err != nil {
		return classifyResolveErr(err)
	}
	t.StreamURL = fresh.StreamURL
	return nil
}
