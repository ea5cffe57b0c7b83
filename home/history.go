package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/melody/sys"
)

const (
	historyRetention  = 90 * 24 * time.Hour
	historyPruneEvery = 6 * time.Hour
	cacheGCEvery      = time.Minute
)

func init() {
	sys.RegisterCommand(simpleCommand("history", "Show the songs played here recently"), handleHistory)

	sys.RegisterDaemon(sys.LogDatabase, startHistoryPruner)
	sys.RegisterDaemon(sys.LogResolver, startSearchCacheGC)
}

func handleHistory(event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		respond(event, sys.ErrPlayerGuildOnly, true)
		return
	}
	if sys.DB == nil {
		respond(event, sys.MsgPlayerHistoryEmpty, true)
		return
	}
	guildID := *event.GuildID()

	entries, err := sys.GetRecentHistory(sys.AppContext, guildID, historyLimit)
	if err != nil {
		sys.LogDatabase(sys.MsgHistoryLoadFail, guildID, err)
		respond(event, sys.MsgPlayerHistoryEmpty, true)
		return
	}
	total, err := sys.CountPlayHistory(sys.AppContext, guildID)
	if err != nil {
		total = len(entries)
	}

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(textContainer(HistoryText(entries, total, time.Now().UTC()))...).
		Build())
}

// startHistoryPruner trims old play history so the table does not grow
// forever.
func startHistoryPruner(ctx context.Context) (bool, func(), func()) {
	if sys.DB == nil {
		return false, nil, nil
	}
	run := func() {
		ticker := time.NewTicker(historyPruneEvery)
		defer ticker.Stop()
		for {
			pruneHistory(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
	return true, run, nil
}

func pruneHistory(ctx context.Context) {
	n, err := sys.PrunePlayHistory(ctx, time.Now().Add(-historyRetention))
	if err != nil {
		sys.LogDatabase(sys.MsgHistoryPruneFail, err)
		return
	}
	if n > 0 {
		sys.LogDatabase(sys.MsgHistoryPruned, n)
	}
}

func startSearchCacheGC(ctx context.Context) (bool, func(), func()) {
	if Resolver == nil {
		return false, nil, nil
	}
	cache := Resolver.Cache()
	return true, func() { cache.StartGC(ctx, cacheGCEvery) }, nil
}
