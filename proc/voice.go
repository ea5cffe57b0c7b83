package proc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
)

var (
	// System
	VoiceManager *VoiceSystem
	OnceVoice    sync.Once

	// Audio
	OpusSilence     = []byte{0xf8, 0xff, 0xfe}
	SilenceDuration = 1 * time.Second

	joinAttempts    = 5
	stopStreamWait  = 2 * time.Second
	frameWait       = 500 * time.Millisecond
	maxStatusLength = 128
)

// ===========================
// Structs
// ===========================

// VoiceSystem is the session transport: one voice connection and at most one
// live stream per guild.
type VoiceSystem struct {
	mu           sync.Mutex
	sessions     map[snowflake.ID]*VoiceSession
	client       *bot.Client
	bitrate      int
	onEnded      func(guildID snowflake.ID, gen uint64)
	onDisconnect func(guildID snowflake.ID)
}

// VoiceSession is the voice state of one guild.
type VoiceSession struct {
	GuildID    snowflake.ID
	ChannelID  snowflake.ID
	channelMu  sync.RWMutex
	Conn       voice.Conn
	client     *bot.Client
	joinedTo   snowflake.ID // channel the connection is open on, 0 when closed
	joinMu     sync.Mutex
	streamMu   sync.Mutex
	stream     *activeStream
	streamGen  uint64
	pauseChan  chan struct{}
	pauseMu    sync.RWMutex
	Volume     atomic.Int32
	cancelCtx  context.Context
	cancelFunc context.CancelFunc
}

type activeStream struct {
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	provider *StreamProvider
}

// StreamProvider feeds transcoded Opus frames to the voice connection.
type StreamProvider struct {
	frames        chan []byte
	OnFinish      func()
	once          sync.Once
	ctx           context.Context
	gate          func() <-chan struct{}
	draining      bool
	silenceFrames int
}

// ===========================
// Voice Manager
// ===========================

// GetVoiceManager returns the singleton VoiceSystem instance
func GetVoiceManager() *VoiceSystem {
	OnceVoice.Do(func() {
		VoiceManager = NewVoiceSystem(sys.DefaultBitrate)
	})
	return VoiceManager
}

func NewVoiceSystem(bitrate int) *VoiceSystem {
	return &VoiceSystem{
		sessions: make(map[snowflake.ID]*VoiceSession),
		bitrate:  bitrate,
	}
}

// Attach sets the client used to open connections and registers the voice
// state listener.
func (vs *VoiceSystem) Attach(client *bot.Client, bitrate int) {
	vs.mu.Lock()
	vs.client = client
	if bitrate > 0 {
		vs.bitrate = bitrate
	}
	vs.mu.Unlock()
	sys.RegisterVoiceStateUpdateHandler(vs.onVoiceStateUpdate)
}

// OnStreamEnded registers the callback fired when a stream finishes by itself.
// gen is the value JoinOrChange returned when the stream started.
func (vs *VoiceSystem) OnStreamEnded(fn func(guildID snowflake.ID, gen uint64)) {
	vs.mu.Lock()
	vs.onEnded = fn
	vs.mu.Unlock()
}

// OnDisconnect registers the callback fired when the bot is removed from voice
// by someone else.
func (vs *VoiceSystem) OnDisconnect(fn func(guildID snowflake.ID)) {
	vs.mu.Lock()
	vs.onDisconnect = fn
	vs.mu.Unlock()
}

// GetSession retrieves the voice session for a guild
func (vs *VoiceSystem) GetSession(guildID snowflake.ID) *VoiceSession {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.sessions[guildID]
}

// Bind records the channel the guild should play in. The connection itself is
// opened lazily by JoinOrChange.
func (vs *VoiceSystem) Bind(guildID, channelID snowflake.ID) *VoiceSession {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if sess, ok := vs.sessions[guildID]; ok && sess.cancelCtx.Err() == nil {
		sess.channelMu.Lock()
		old := sess.ChannelID
		sess.ChannelID = channelID
		sess.channelMu.Unlock()
		if old != 0 && old != channelID && sess.isJoined() {
			go sess.setVoiceStatus(old, "")
		}
		return sess
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &VoiceSession{
		GuildID:    guildID,
		ChannelID:  channelID,
		client:     vs.client,
		cancelCtx:  ctx,
		cancelFunc: cancel,
		pauseChan:  make(chan struct{}),
	}
	if vs.client != nil {
		sess.Conn = vs.client.VoiceManager.CreateConn(guildID)
	}
	sess.Volume.Store(player.DefaultVolume)
	close(sess.pauseChan)
	vs.sessions[guildID] = sess
	return sess
}

// JoinOrChange connects to the bound channel if needed and replaces whatever
// is playing with audioURL. The old stream is stopped first, so a failure
// leaves the guild silent. It returns the generation of the new stream.
func (vs *VoiceSystem) JoinOrChange(ctx context.Context, guildID snowflake.ID, audioURL string, volume int) (uint64, error) {
	sess := vs.GetSession(guildID)
	if sess == nil || sess.channel() == 0 {
		return 0, player.ErrNoActiveSession
	}

	sess.stopStream()
	if err := sess.ensureJoined(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", player.ErrTransport, err)
	}
	sess.resume()
	sess.Volume.Store(int32(volume))

	vs.mu.Lock()
	bitrate := vs.bitrate
	vs.mu.Unlock()

	t := NewAstiavTranscoder(bitrate, &sess.Volume)
	if err := t.OpenInput(audioURL); err != nil {
		t.Close()
		if isStaleStreamErr(err) {
			return 0, fmt.Errorf("%w: %w", player.ErrStaleStream, err)
		}
		return 0, fmt.Errorf("%w: %w", player.ErrTransport, err)
	}
	if err := t.SetupDecoder(); err != nil {
		t.Close()
		return 0, fmt.Errorf("%w: decoder: %w", player.ErrTransport, err)
	}
	if err := t.SetupEncoder(); err != nil {
		t.Close()
		return 0, fmt.Errorf("%w: encoder: %w", player.ErrTransport, err)
	}

	gen := sess.startStream(t, vs.streamEnded)
	sys.LogVoice(sys.MsgVoiceStreamStarted, guildID, volume)
	return gen, nil
}

func (vs *VoiceSystem) streamEnded(guildID snowflake.ID, gen uint64) {
	vs.mu.Lock()
	fn := vs.onEnded
	vs.mu.Unlock()
	sys.LogVoice(sys.MsgVoiceStreamEnded, guildID)
	if fn != nil {
		fn(guildID, gen)
	}
}

// Leave stops the stream and closes the connection. Leaving a guild with no
// session is a no-op.
func (vs *VoiceSystem) Leave(ctx context.Context, guildID snowflake.ID) error {
	vs.mu.Lock()
	sess, ok := vs.sessions[guildID]
	if !ok {
		vs.mu.Unlock()
		return nil
	}
	delete(vs.sessions, guildID)
	vs.mu.Unlock()

	sess.stopStream()
	if sess.isJoined() {
		sess.setVoiceStatus(sess.channel(), "")
	}
	sess.joinMu.Lock()
	sess.joinedTo = 0
	sess.joinMu.Unlock()
	if !isNilConn(sess.Conn) {
		sess.Conn.Close(ctx)
	}
	sess.cancelFunc()
	sys.LogVoice(sys.MsgVoiceLeft, guildID)
	return nil
}

// Shutdown leaves every guild.
func (vs *VoiceSystem) Shutdown(ctx context.Context) {
	vs.mu.Lock()
	ids := make([]snowflake.ID, 0, len(vs.sessions))
	for id := range vs.sessions {
		ids = append(ids, id)
	}
	vs.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(guildID snowflake.ID) {
			defer wg.Done()
			_ = vs.Leave(ctx, guildID)
		}(id)
	}
	wg.Wait()
}

func (vs *VoiceSystem) SetVolume(_ context.Context, guildID snowflake.ID, volume int) error {
	sess := vs.GetSession(guildID)
	if sess == nil || !sess.streaming() {
		return player.ErrNotPlaying
	}
	sess.Volume.Store(int32(volume))
	return nil
}

func (vs *VoiceSystem) Pause(_ context.Context, guildID snowflake.ID) error {
	sess := vs.GetSession(guildID)
	if sess == nil || !sess.streaming() {
		return player.ErrNotPlaying
	}
	sess.pause()
	return nil
}

func (vs *VoiceSystem) Resume(_ context.Context, guildID snowflake.ID) error {
	sess := vs.GetSession(guildID)
	if sess == nil || !sess.streaming() {
		return player.ErrNotPlaying
	}
	sess.resume()
	return nil
}

// SetStatus updates the voice channel status of the guild's bound channel.
func (vs *VoiceSystem) SetStatus(guildID snowflake.ID, status string) {
	sess := vs.GetSession(guildID)
	if sess == nil || !sess.isJoined() {
		return
	}
	go sess.setVoiceStatus(sess.channel(), status)
}

// onVoiceStateUpdate follows the bot's own voice state: a disconnect from
// outside stops playback, a move rebinds the session.
func (vs *VoiceSystem) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.UserID != event.Client().ID() {
		return
	}
	guildID := event.VoiceState.GuildID
	s := vs.GetSession(guildID)
	if s == nil {
		return
	}

	if event.VoiceState.ChannelID == nil {
		if !s.isJoined() {
			return
		}
		sys.LogVoice(sys.MsgVoiceDisconnected, guildID)
		vs.mu.Lock()
		fn := vs.onDisconnect
		vs.mu.Unlock()
		if fn != nil {
			fn(guildID)
		} else {
			_ = vs.Leave(context.Background(), guildID)
		}
		return
	}

	if newID := *event.VoiceState.ChannelID; newID != s.channel() {
		old := s.channel()
		s.channelMu.Lock()
		s.ChannelID = newID
		s.channelMu.Unlock()
		s.joinMu.Lock()
		if s.joinedTo != 0 {
			s.joinedTo = newID
		}
		s.joinMu.Unlock()
		if old != 0 {
			go s.setVoiceStatus(old, "")
		}
	}
}

// ===========================
// Session
// ===========================

func (s *VoiceSession) channel() snowflake.ID {
	s.channelMu.RLock()
	defer s.channelMu.RUnlock()
	return s.ChannelID
}

func (s *VoiceSession) isJoined() bool {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()
	return s.joinedTo != 0
}

func (s *VoiceSession) streaming() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.stream != nil
}

// ensureJoined opens the connection on the bound channel, retrying with
// exponential backoff.
func (s *VoiceSession) ensureJoined(ctx context.Context) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	channelID := s.channel()
	if s.joinedTo == channelID {
		return nil
	}
	if isNilConn(s.Conn) {
		return fmt.Errorf("no voice connection for guild %s", s.GuildID)
	}

	var lastErr error
	for i := range joinAttempts {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 1000 * time.Millisecond
			sys.LogVoice(sys.MsgVoiceJoinRetry, i, joinAttempts, s.GuildID, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := s.Conn.Open(ctx, channelID, false, false); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		s.Conn.Close(ctx)
		s.joinedTo = 0
		return lastErr
	}
	s.joinedTo = channelID
	sys.LogVoice(sys.MsgVoiceJoined, channelID, s.GuildID)
	return nil
}

// startStream takes ownership of t and pumps it into the connection. ended is
// called once, on a fresh goroutine, when the stream runs out by itself. The
// returned generation is passed to ended.
func (s *VoiceSession) startStream(t *AstiavTranscoder, ended func(snowflake.ID, uint64)) uint64 {
	ctx, cancel := context.WithCancel(s.cancelCtx)
	p := NewStreamProvider(ctx, s.gate)
	finished := make(chan struct{})
	p.OnFinish = func() { close(finished) }

	st := &activeStream{cancel: cancel, done: make(chan struct{}), provider: p}
	s.streamMu.Lock()
	s.streamGen++
	st.gen = s.streamGen
	s.stream = st
	s.streamMu.Unlock()

	go func() {
		defer t.Close()
		if err := t.Transcode(ctx, p.PushFrame); err != nil && ctx.Err() == nil {
			sys.LogVoice(sys.MsgVoiceStreamFailed, s.GuildID, err)
		}
	}()

	go func() {
		s.setOpusFrameProviderSafe(p)
		s.setSpeakingSafe(voice.SpeakingFlagMicrophone)

		natural := false
		select {
		case <-finished:
			natural = true
		case <-ctx.Done():
		}
		cancel()

		s.streamMu.Lock()
		current := s.stream == st
		if current {
			s.stream = nil
		}
		s.streamMu.Unlock()

		if current {
			s.setOpusFrameProviderSafe(nil)
			s.setSpeakingSafe(0)
		}
		close(st.done)

		if natural && current && ended != nil {
			go ended(s.GuildID, st.gen)
		}
	}()
	return st.gen
}

// stopStream cancels the live stream without reporting its end.
func (s *VoiceSession) stopStream() {
	s.streamMu.Lock()
	st := s.stream
	s.stream = nil
	s.streamMu.Unlock()
	if st == nil {
		return
	}
	st.cancel()
	select {
	case <-st.done:
	case <-time.After(stopStreamWait):
	}
}

func (s *VoiceSession) gate() <-chan struct{} {
	s.pauseMu.RLock()
	defer s.pauseMu.RUnlock()
	return s.pauseChan
}

func (s *VoiceSession) pause() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	select {
	case <-s.pauseChan:
		s.pauseChan = make(chan struct{})
	default:
	}
}

func (s *VoiceSession) resume() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	select {
	case <-s.pauseChan:
	default:
		close(s.pauseChan)
	}
}

func (s *VoiceSession) paused() bool {
	select {
	case <-s.gate():
		return false
	default:
		return true
	}
}

func (s *VoiceSession) setVoiceStatus(channelID snowflake.ID, status string) {
	if s.client == nil || channelID == 0 {
		return
	}
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	if err := s.client.Rest.Do(route.Compile(nil), map[string]string{"status": truncateCenter(status, maxStatusLength)}, nil); err != nil {
		sys.LogVoice("Failed to update status for %s: %v", channelID, err)
	}
}

func isNilConn(c voice.Conn) bool {
	return c == nil || (reflect.ValueOf(c).Kind() == reflect.Ptr && reflect.ValueOf(c).IsNil())
}

// setOpusFrameProviderSafe sets the opus frame provider safely, recovering from any potential panics
func (s *VoiceSession) setOpusFrameProviderSafe(provider voice.OpusFrameProvider) {
	if s.cancelCtx.Err() != nil || isNilConn(s.Conn) {
		return
	}
	for i := range 3 {
		if s.trySetOpusFrameProvider(provider) {
			return
		}
		if i < 2 {
			select {
			case <-time.After(150 * time.Millisecond):
			case <-s.cancelCtx.Done():
				return
			}
		}
	}
	sys.LogVoice("Exhausted retries for SetOpusFrameProvider in guild %s", s.GuildID)
}

func (s *VoiceSession) trySetOpusFrameProvider(provider voice.OpusFrameProvider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	s.Conn.SetOpusFrameProvider(provider)
	return true
}

func (s *VoiceSession) setSpeakingSafe(flags voice.SpeakingFlags) {
	if s.cancelCtx.Err() != nil || isNilConn(s.Conn) {
		return
	}
	for i := range 3 {
		if s.trySetSpeaking(flags) {
			return
		}
		if i < 2 {
			select {
			case <-time.After(150 * time.Millisecond):
			case <-s.cancelCtx.Done():
				return
			}
		}
	}
	sys.LogVoice("Exhausted retries for SetSpeaking in guild %s", s.GuildID)
}

func (s *VoiceSession) trySetSpeaking(flags voice.SpeakingFlags) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	s.Conn.SetSpeaking(s.cancelCtx, flags)
	return true
}

// ===========================
// Stream Provider
// ===========================

// NewStreamProvider builds a provider that stops at ctx and only hands out
// frames while gate returns a closed channel.
func NewStreamProvider(ctx context.Context, gate func() <-chan struct{}) *StreamProvider {
	return &StreamProvider{
		frames: make(chan []byte, 100),
		ctx:    ctx,
		gate:   gate,
	}
}

func (p *StreamProvider) Close() {
	p.once.Do(func() {
		if p.OnFinish != nil {
			p.OnFinish()
		}
	})
}

// PushFrame queues a frame. A nil frame marks the end of the input.
func (p *StreamProvider) PushFrame(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

// ProvideOpusFrame pads the end of the stream with a second of silence so the
// tail is not clipped, then reports io.EOF.
func (p *StreamProvider) ProvideOpusFrame() ([]byte, error) {
	if p.gate != nil {
		select {
		case <-p.gate():
		case <-p.ctx.Done():
			return nil, io.EOF
		}
	}

	if p.draining {
		target := int(SilenceDuration.Milliseconds() / 20)
		if p.silenceFrames < target {
			p.silenceFrames++
			return OpusSilence, nil
		}
		p.Close()
		return nil, io.EOF
	}

	select {
	case f := <-p.frames:
		if f == nil {
			p.draining = true
			return OpusSilence, nil
		}
		return f, nil
	case <-p.ctx.Done():
		return nil, io.EOF
	case <-time.After(frameWait):
		return OpusSilence, nil
	}
}

func truncateCenter(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	k := (maxLen - 3) / 2
	return string(r[:k]) + "..." + string(r[len(r)-k:])
}
