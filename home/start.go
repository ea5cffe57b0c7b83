package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
)

var helpLines = []string{
	"`/play <query>` play a YouTube link or the top search result",
	"`/splay <query>` pick from the top search results",
	"`/queue` show the queue",
	"`/nowplaying` or `/np` show the current song",
	"`/pause` and `/resume` pause or resume playback",
	"`/skip` skip the current song",
	"`/stop` stop, clear the queue and leave",
	"`/loop` repeat the current song",
	"`/volume <1-200>` set the volume",
	"`/clear` empty the queue",
	"`/history` recently played songs",
	"`/sleep <when>` stop playback later",
}

func init() {
	sys.RegisterCommand(simpleCommand("start", "Say hello"), func(event *events.ApplicationCommandInteractionCreate) {
		respond(event, sys.MsgPlayerWelcome, false)
	})
	sys.RegisterCommand(simpleCommand("help", "List every command"), func(event *events.ApplicationCommandInteractionCreate) {
		respond(event, HelpText(maxQueueSize()), true)
	})
}

// HelpText lists the commands and the queue limit.
func HelpText(maxQueue int) string {
	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	for _, l := range helpLines {
		sb.WriteString("• " + l + "\n")
	}
	fmt.Fprintf(&sb, "\nThe queue holds up to %d songs.", maxQueue)
	return sb.String()
}

func maxQueueSize() int {
	if Player != nil {
		return Player.Config().MaxQueueSize
	}
	return player.DefaultMaxQueueSize
}
