package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/melody/home"
	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/proc"
	"github.com/leeineian/melody/sys"
)

const pidFile = ".bot.pid"

func main() {
	// LogFatal panics so that deferred cleanup still runs
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	clearAll := flag.Bool("clear-all", false, "Force clear guild commands (scan all guilds)")
	flag.Parse()

	cfg, err := sys.LoadConfig()
	if err != nil {
		sys.InitLogger(*silent, false)
		sys.LogFatal(sys.MsgConfigFailedToLoad, err)
	}
	sys.InitLogger(*silent || cfg.Silent, true)

	if err := sys.InitDatabase(context.Background(), cfg.DatabasePath); err != nil {
		sys.LogFatal("Failed to initialize database: %v", err)
	}
	defer sys.CloseDatabase()

	botName := sys.GetProjectName()
	if name, _, err := sys.GetBotUsername(context.Background(), cfg.Token); err == nil {
		botName = name
	} else {
		sys.LogError("Failed to get bot username: %v", err)
	}
	sys.LogInfo(sys.MsgBotStarting, botName)

	f := acquirePIDLock()
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(pidFile)
	}()

	if err := run(cfg, *silent, *skipReg, *clearAll); err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
}

// acquirePIDLock takes an exclusive flock on the PID file, terminating a
// previous instance that still holds it.
func acquirePIDLock() *os.File {
	f, err := os.OpenFile(pidFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		sys.LogFatal("Failed to open PID file: %v", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			sys.LogFatal("Failed to lock PID file: %v", err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil || oldPid == os.Getpid() {
			<-ticker.C
			continue
		}

		process, procErr := os.FindProcess(oldPid)
		if procErr != nil {
			<-ticker.C
			continue
		}

		sys.LogInfo(sys.MsgBotKillingOld, oldPid)
		_ = process.Signal(syscall.SIGTERM)
		if !waitForExit(process, 5*time.Second) {
			sys.LogWarn("Old process %d is stubborn. Sending SIGKILL...", oldPid)
			_ = process.Signal(syscall.SIGKILL)
			if !waitForExit(process, 2*time.Second) {
				sys.LogWarn("Process %d still exists after SIGKILL", oldPid)
			}
		}
		sys.LogInfo(sys.MsgBotOldTerminated)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()
	return f
}

func waitForExit(process *os.Process, timeout time.Duration) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		select {
		case <-ticker.C:
			if err := process.Signal(syscall.Signal(0)); err != nil {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func run(cfg *sys.Config, silent, skipReg, clearAll bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	sys.SetAppContext(ctx)

	client, err := sys.CreateClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}
	defer client.Close(context.Background())

	voice := proc.GetVoiceManager()
	voice.Attach(client, cfg.Music.Bitrate)

	resolver := proc.NewResolver(proc.ResolverOptions{
		Proxy:         cfg.Search.Proxy,
		AudioFormat:   cfg.Music.AudioFormat,
		CacheTTL:      time.Duration(cfg.Search.CacheTTLSeconds) * time.Second,
		RatePerSecond: cfg.Search.RatePerSecond,
	})

	notifier := home.NewChatNotifier(cfg.Music.MaxQueueSize)
	notifier.Attach(client, voice.SetStatus)

	coord := player.New(player.Config{
		MaxQueueSize:  cfg.Music.MaxQueueSize,
		DefaultVolume: cfg.Music.DefaultVolume,
	}, resolver, voice, notifier, player.WithLogger(sys.ComponentLogger("player")))

	home.Setup(coord, voice, resolver, notifier)

	voice.OnStreamEnded(func(guildID snowflake.ID, gen uint64) {
		coord.OnStreamEnded(sys.AppContext, guildID, gen)
	})
	voice.OnDisconnect(func(guildID snowflake.ID) {
		sys.SafeGo(func() { home.HandleDisconnect(sys.AppContext, guildID) })
	})

	if !skipReg {
		if err := sys.RegisterCommands(client, cfg.GuildID, clearAll); err != nil {
			sys.LogError(sys.MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo("Skipping command registration as requested.")
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sys.LogInfo("Stopping all players...")
	coord.Shutdown(shutdownCtx)
	voice.Shutdown(shutdownCtx)

	sys.LogInfo("Shutting down all daemons...")
	sys.ShutdownDaemons(shutdownCtx)

	if botUser, ok := client.Caches.SelfUser(); ok {
		sys.LogInfo(sys.MsgBotShutdown, botUser.Username)
	} else {
		sys.LogInfo(sys.MsgBotShutdown, sys.GetProjectName())
	}
	return nil
}
