package proc

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamProviderDrainsWithSilence(t *testing.T) {
	p := NewStreamProvider(context.Background(), nil)
	finished := 0
	p.OnFinish = func() { finished++ }

	p.PushFrame([]byte{1, 2, 3})
	p.PushFrame(nil)

	f, err := p.ProvideOpusFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, f)

	silent := 0
	for {
		f, err = p.ProvideOpusFrame()
		if err != nil {
			break
		}
		assert.Equal(t, OpusSilence, f)
		silent++
		require.Less(t, silent, 1000)
	}
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1+int(SilenceDuration.Milliseconds()/20), silent)
	assert.Equal(t, 1, finished)

	p.Close()
	assert.Equal(t, 1, finished)
}

func TestStreamProviderStarvedReturnsSilence(t *testing.T) {
	saved := frameWait
	frameWait = 5 * time.Millisecond
	t.Cleanup(func() { frameWait = saved })

	p := NewStreamProvider(context.Background(), nil)
	f, err := p.ProvideOpusFrame()
	require.NoError(t, err)
	assert.Equal(t, OpusSilence, f)
}

func TestStreamProviderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewStreamProvider(ctx, nil)
	cancel()

	_, err := p.ProvideOpusFrame()
	assert.ErrorIs(t, err, io.EOF)

	done := make(chan struct{})
	go func() {
		p.PushFrame([]byte{1})
		for range cap(p.frames) {
			p.PushFrame([]byte{1})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PushFrame blocked after cancel")
	}
}

func TestStreamProviderPauseGate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &VoiceSession{pauseChan: make(chan struct{})}
	close(s.pauseChan)
	p := NewStreamProvider(ctx, s.gate)
	p.PushFrame([]byte{7})

	s.pause()
	got := make(chan []byte, 1)
	go func() {
		f, _ := p.ProvideOpusFrame()
		got <- f
	}()

	select {
	case <-got:
		t.Fatal("frame delivered while paused")
	case <-time.After(50 * time.Millisecond):
	}

	s.resume()
	select {
	case f := <-got:
		assert.Equal(t, []byte{7}, f)
	case <-time.After(time.Second):
		t.Fatal("frame not delivered after resume")
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	s := &VoiceSession{pauseChan: make(chan struct{})}
	close(s.pauseChan)
	assert.False(t, s.paused())

	s.pause()
	s.pause()
	assert.True(t, s.paused())

	s.resume()
	s.resume()
	assert.False(t, s.paused())
}

func TestVoiceSystemWithoutSession(t *testing.T) {
	vs := NewVoiceSystem(0)
	ctx := context.Background()
	guild := snowflake.ID(1)

	_, err := vs.JoinOrChange(ctx, guild, "https://stream/a", 80)
	assert.ErrorIs(t, err, player.ErrNoActiveSession)
	assert.ErrorIs(t, vs.Pause(ctx, guild), player.ErrNotPlaying)
	assert.ErrorIs(t, vs.Resume(ctx, guild), player.ErrNotPlaying)
	assert.ErrorIs(t, vs.SetVolume(ctx, guild, 50), player.ErrNotPlaying)
	assert.NoError(t, vs.Leave(ctx, guild))
	assert.NoError(t, vs.Leave(ctx, guild))
}

func TestVoiceSystemBind(t *testing.T) {
	vs := NewVoiceSystem(0)
	ctx := context.Background()
	guild := snowflake.ID(1)

	s := vs.Bind(guild, 10)
	require.NotNil(t, s)
	assert.Equal(t, snowflake.ID(10), s.channel())
	assert.EqualValues(t, player.DefaultVolume, s.Volume.Load())

	again := vs.Bind(guild, 11)
	assert.Same(t, s, again)
	assert.Equal(t, snowflake.ID(11), s.channel())

	// without a gateway client there is no connection to open
	gen, err := vs.JoinOrChange(ctx, guild, "https://stream/a", 80)
	assert.ErrorIs(t, err, player.ErrTransport)
	assert.Zero(t, gen)

	require.NoError(t, vs.Leave(ctx, guild))
	assert.Nil(t, vs.GetSession(guild))
	assert.Error(t, s.cancelCtx.Err())

	fresh := vs.Bind(guild, 12)
	assert.NotSame(t, s, fresh)
}

func TestVoiceSystemUnboundChannel(t *testing.T) {
	vs := NewVoiceSystem(0)
	vs.Bind(1, 0)
	_, err := vs.JoinOrChange(context.Background(), 1, "https://stream/a", 80)
	assert.ErrorIs(t, err, player.ErrNoActiveSession)
}

type failingConn struct {
	voice.Conn
	opens  atomic.Int32
	closes atomic.Int32
}

func (c *failingConn) Open(context.Context, snowflake.ID, bool, bool) error {
	c.opens.Add(1)
	return errors.New("voice gateway timed out")
}

func (c *failingConn) Close(context.Context) {
	c.closes.Add(1)
}

func TestJoinOrChangeFailedMoveSilencesOldStream(t *testing.T) {
	saved := joinAttempts
	joinAttempts = 1
	t.Cleanup(func() { joinAttempts = saved })

	vs := NewVoiceSystem(0)
	ctx := context.Background()
	guild := snowflake.ID(5)

	sess := vs.Bind(guild, 20)
	conn := &failingConn{}
	sess.Conn = conn
	sess.joinedTo = 20

	streamCtx, streamCancel := context.WithCancel(sess.cancelCtx)
	st := &activeStream{gen: 1, cancel: streamCancel, done: make(chan struct{})}
	sess.stream = st
	go func() {
		<-streamCtx.Done()
		close(st.done)
	}()

	vs.Bind(guild, 21)
	gen, err := vs.JoinOrChange(ctx, guild, "https://stream/b", 80)

	assert.ErrorIs(t, err, player.ErrTransport)
	assert.Zero(t, gen)
	assert.EqualValues(t, 1, conn.opens.Load())
	assert.False(t, sess.streaming())
	assert.Error(t, streamCtx.Err())
	assert.False(t, sess.isJoined())

	require.NoError(t, vs.Leave(ctx, guild))
}

func TestStreamEndedCarriesGeneration(t *testing.T) {
	vs := NewVoiceSystem(0)
	type end struct {
		guild snowflake.ID
		gen   uint64
	}
	got := make(chan end, 1)
	vs.OnStreamEnded(func(guildID snowflake.ID, gen uint64) { got <- end{guildID, gen} })

	vs.streamEnded(7, 3)

	assert.Equal(t, end{7, 3}, <-got)
}

func TestStopStreamWaitsForStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &VoiceSession{cancelCtx: ctx, pauseChan: make(chan struct{})}
	close(s.pauseChan)

	streamCtx, streamCancel := context.WithCancel(ctx)
	st := &activeStream{cancel: streamCancel, done: make(chan struct{})}
	s.stream = st
	go func() {
		<-streamCtx.Done()
		close(st.done)
	}()

	s.stopStream()
	assert.False(t, s.streaming())
	select {
	case <-st.done:
	default:
		t.Fatal("stopStream returned before the stream finished")
	}

	s.stopStream()
}

func TestIsStaleStreamErr(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Server returned 403 Forbidden (access denied)"), true},
		{errors.New("HTTP error 410 Gone"), true},
		{errors.New("Connection refused"), false},
		{errors.New("Invalid data found when processing input"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isStaleStreamErr(tt.err), "%v", tt.err)
	}
}

func TestScalePCM(t *testing.T) {
	le := func(v int16) []byte { return []byte{byte(v), byte(uint16(v) >> 8)} }
	read := func(b []byte) int16 { return int16(b[0]) | int16(b[1])<<8 }

	tests := []struct {
		name string
		in   int16
		vol  int32
		want int16
	}{
		{"half", 1000, 50, 500},
		{"negative", -1000, 50, -500},
		{"double", 1000, 200, 2000},
		{"clamp high", 30000, 200, 32767},
		{"clamp low", -30000, 200, -32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := le(tt.in)
			scalePCM(b, tt.vol)
			assert.Equal(t, tt.want, read(b))
		})
	}
}

func TestTruncateCenter(t *testing.T) {
	assert.Equal(t, "short", truncateCenter("short", 10))
	assert.Equal(t, "abc...hij", truncateCenter("abcdefghij", 9))
	assert.Len(t, []rune(truncateCenter(string(make([]rune, 300)), maxStatusLength)), maxStatusLength-1)
}
