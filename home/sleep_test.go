package home

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubNaturalParse(t *testing.T, fn func(string, time.Time) (*time.Time, error)) {
	t.Helper()
	prev := naturalParse
	naturalParse = fn
	t.Cleanup(func() { naturalParse = prev })
}

func TestParseNaturalTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	tonight := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)

	stubNaturalParse(t, func(in string, _ time.Time) (*time.Time, error) {
		if in == "at 11pm" {
			return &tonight, nil
		}
		return nil, errors.New("no match")
	})

	got, err := parseNaturalTime("at 11pm", now)
	require.NoError(t, err)
	assert.Equal(t, tonight, got)

	got, err = parseNaturalTime("1h15m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(75*time.Minute), got)

	_, err = parseNaturalTime("whenever", now)
	assert.Error(t, err)
}

func TestParseNaturalTimeNilResult(t *testing.T) {
	stubNaturalParse(t, func(string, time.Time) (*time.Time, error) { return nil, nil })

	_, err := parseNaturalTime("someday", time.Now())
	assert.Error(t, err)
}

func TestScheduleSleepReplacesTimer(t *testing.T) {
	guild := snowflake.ID(900)
	t.Cleanup(func() { cancelSleep(guild) })

	var first, second atomic.Int32
	fired := make(chan struct{})
	scheduleSleep(guild, time.Hour, func(snowflake.ID) { first.Add(1) })
	scheduleSleep(guild, 10*time.Millisecond, func(snowflake.ID) {
		second.Add(1)
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("sleep timer did not fire")
	}
	assert.EqualValues(t, 0, first.Load())
	assert.EqualValues(t, 1, second.Load())
	assert.False(t, cancelSleep(guild), "fired timer should be forgotten")
}

func TestCancelSleep(t *testing.T) {
	guild := snowflake.ID(901)
	var fired atomic.Bool
	scheduleSleep(guild, 50*time.Millisecond, func(snowflake.ID) { fired.Store(true) })

	assert.True(t, cancelSleep(guild))
	assert.False(t, cancelSleep(guild))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestStopAllSleep(t *testing.T) {
	var fired atomic.Int32
	for _, g := range []snowflake.ID{910, 911} {
		scheduleSleep(g, 50*time.Millisecond, func(snowflake.ID) { fired.Add(1) })
	}
	stopAllSleep()
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 0, fired.Load())
	assert.False(t, cancelSleep(910))
}
