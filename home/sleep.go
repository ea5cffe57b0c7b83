package home

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/melody/sys"
	"github.com/sho0pi/naturaltime"
)

var (
	sleepParserOnce sync.Once
	sleepParser     *naturaltime.Parser

	// naturalParse is swapped in tests so they do not need the JS runtime.
	naturalParse = func(input string, now time.Time) (*time.Time, error) {
		sleepParserOnce.Do(func() {
			p, err := naturaltime.New()
			if err != nil {
				sys.LogSleep(sys.MsgSleepParserInitFail, err)
				return
			}
			sleepParser = p
		})
		if sleepParser == nil {
			return nil, fmt.Errorf("natural time parser unavailable")
		}
		return sleepParser.ParseDate(input, now)
	}
)

var sleepTimers = struct {
	sync.Mutex
	m map[snowflake.ID]*time.Timer
}{m: make(map[snowflake.ID]*time.Timer)}

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "sleep",
		Description: "Stop playback at a later time",
		Contexts:    guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "when",
				Description: "When to stop (e.g., 'in 30 minutes', '1h15m', 'at 11pm')",
				Required:    true,
			},
		},
	}, handleSleep)

	sys.RegisterDaemon(sys.LogSleep, func(ctx context.Context) (bool, func(), func()) {
		return true, func() { <-ctx.Done() }, stopAllSleep
	})
}

func handleSleep(event *events.ApplicationCommandInteractionCreate) {
	guildID, ok := requireGuild(event)
	if !ok {
		return
	}
	when := event.SlashCommandInteractionData().String("when")

	now := time.Now().UTC()
	at, err := parseNaturalTime(when, now)
	if err != nil {
		respond(event, sys.ErrPlayerSleepParseFailed, true)
		return
	}
	if !at.After(now) {
		respond(event, sys.ErrPlayerSleepPast, true)
		return
	}

	if Notifier != nil {
		Notifier.Track(guildID, event.Channel().ID())
	}
	scheduleSleep(guildID, at.Sub(now), fireSleep)
	sys.LogSleep(sys.MsgSleepScheduled, guildID, at.Format(time.RFC3339))
	respond(event, fmt.Sprintf(sys.MsgPlayerSleepSet, humanize.RelTime(at, now, "ago", "from now"), at.Format("15:04 MST")), false)
}

// parseNaturalTime accepts natural language ("in 30 minutes") and falls back
// to Go durations ("1h15m").
func parseNaturalTime(input string, now time.Time) (time.Time, error) {
	result, err := naturalParse(input, now)
	if err == nil && result != nil {
		return *result, nil
	}
	if d, err := time.ParseDuration(input); err == nil {
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("could not parse time: %s", input)
}

// scheduleSleep arms fire for guildID after d, replacing any earlier timer.
func scheduleSleep(guildID snowflake.ID, d time.Duration, fire func(snowflake.ID)) {
	sleepTimers.Lock()
	defer sleepTimers.Unlock()
	if t, ok := sleepTimers.m[guildID]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		sleepTimers.Lock()
		current := sleepTimers.m[guildID] == t
		if current {
			delete(sleepTimers.m, guildID)
		}
		sleepTimers.Unlock()
		if current {
			fire(guildID)
		}
	})
	sleepTimers.m[guildID] = t
}

// cancelSleep disarms the guild's timer. It reports whether one was pending.
func cancelSleep(guildID snowflake.ID) bool {
	sleepTimers.Lock()
	defer sleepTimers.Unlock()
	t, ok := sleepTimers.m[guildID]
	if ok {
		t.Stop()
		delete(sleepTimers.m, guildID)
	}
	return ok
}

func stopAllSleep() {
	sleepTimers.Lock()
	defer sleepTimers.Unlock()
	for id, t := range sleepTimers.m {
		t.Stop()
		delete(sleepTimers.m, id)
	}
}

func fireSleep(guildID snowflake.ID) {
	sys.LogSleep(sys.MsgSleepFired, guildID)
	if Notifier != nil {
		Notifier.Announce(sys.AppContext, guildID, sys.MsgPlayerSleepFired)
	}
	if Player != nil {
		Player.Stop(sys.AppContext, guildID)
	}
}
