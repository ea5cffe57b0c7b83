package sys

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidInt    = "%s must be an integer, got %q"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgGenericError        = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderUpToDate           = "[LOADER] Commands are up to date. (Hash: %s)"
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Voice ---
	MsgVoiceJoined          = "Joined voice channel %s in guild %s"
	MsgVoiceJoinRetry       = "Voice join attempt %d/%d failed for guild %s: %v"
	MsgVoiceLeft            = "Left voice in guild %s"
	MsgVoiceStreamStarted   = "Streaming in guild %s (volume %d%%)"
	MsgVoiceStreamEnded     = "Stream ended in guild %s"
	MsgVoiceStreamFailed    = "Stream failed in guild %s: %v"
	MsgVoiceDisconnected    = "Disconnected from voice in guild %s, stopping playback"
	MsgVoiceTranscoderError = "Transcoder error: %v"

	// --- Resolver ---
	MsgResolverSearch       = "Search %q returned %d results"
	MsgResolverSearchFail   = "%s search failed: %v"
	MsgResolverResolveFail  = "Failed to resolve %q: %v"
	MsgResolverCacheCleaned = "Cleaned %d expired search entries"

	// --- Commands & Notifications ---
	MsgCommandPlay         = "/play %q in %s"
	MsgCommandEditFail     = "Failed to edit interaction response in %s: %v"
	MsgCommandDeferFail    = "Failed to acknowledge interaction: %v"
	MsgCommandNotifyFail   = "Failed to notify %s: %v"
	MsgCommandDeleteFail   = "Failed to delete %s: %v"
	MsgHistoryRecordFail   = "Failed to record play in %s: %v"
	MsgHistoryLoadFail     = "Failed to load history for %s: %v"
	MsgHistoryPruneFail    = "Failed to prune play history: %v"
	MsgHistoryPruned       = "Pruned %d old plays"
	MsgSleepParserInitFail = "Failed to initialize naturaltime parser: %v"
	MsgSleepScheduled      = "Sleep timer for %s set to %s"
	MsgSleepFired          = "Sleep timer fired for %s"

	// --- Player (user facing) ---
	MsgPlayerNowPlaying       = "Now Playing"
	MsgPlayerQueued           = "**Added to queue** (#%d)\n**%s**\nDuration: %s"
	MsgPlayerStopped          = "Stopped playback and cleared the queue."
	MsgPlayerPaused           = "Paused **%s**"
	MsgPlayerPausedNoTitle    = "Paused."
	MsgPlayerResumed          = "Resumed **%s**"
	MsgPlayerResumedNoTitle   = "Resumed."
	MsgPlayerLoopOn           = "Loop enabled. The current track will repeat."
	MsgPlayerLoopOff          = "Loop disabled."
	MsgPlayerVolumeSet        = "Volume set to **%d%%**"
	MsgPlayerCleared          = "Cleared **%d** song(s) from the queue."
	MsgPlayerQueueFinished    = "Queue finished. Add more songs with `/play`!"
	MsgPlayerQueueEmpty       = "Queue is empty"
	MsgPlayerQueueUpNext      = "**Up Next:**"
	MsgPlayerQueueMore        = "... and %d more songs"
	MsgPlayerQueueTotal       = "Total: %d songs"
	MsgPlayerNothingPlaying   = "Nothing is playing"
	MsgPlayerSearching        = "Searching for **%s**..."
	MsgPlayerSearchResults    = "**Search results for:** %s"
	MsgPlayerSearchCancelled  = "Search cancelled."
	MsgPlayerHistoryHeader    = "**Recently Played**"
	MsgPlayerHistoryEmpty     = "Nothing has been played here yet."
	MsgPlayerHistoryItem      = "%d. **%s** (%s) %s"
	MsgPlayerVolumeMenu       = "**Volume:** %d%%"
	MsgPlayerSleepSet         = "Playback will stop %s (%s)."
	MsgPlayerSleepFired       = "Sleep timer reached. Stopping playback."
	MsgPlayerWelcome          = "**Welcome!** I play music from YouTube in your voice channel.\nJoin a voice channel and use `/play` to start. See `/help` for every command."
	ErrPlayerNotFound         = "No results found for **%s**."
	ErrPlayerResolution       = "Could not load **%s**. Try another link or search."
	ErrPlayerNoSession        = "Join a voice channel first, then try again."
	ErrPlayerTransport        = "Playback failed for **%s**. Skipping ahead."
	ErrPlayerQueueFull        = "The queue is full (max %d songs)."
	ErrPlayerNothingPlaying   = "Nothing is playing right now."
	ErrPlayerInvalidVolume    = "Volume must be between 1 and 200."
	ErrPlayerVolumeDeferred   = "Volume saved as **%d%%**. It will apply on the next track."
	ErrPlayerQueueEmpty       = "Queue is already empty"
	ErrPlayerGuildOnly        = "This command can only be used in a server."
	ErrPlayerSleepParseFailed = "Could not understand that time. Try 'in 30 minutes' or '1h15m'."
	ErrPlayerSleepPast        = "The sleep time must be in the future!"
	ErrPlayerGeneric          = "Something went wrong: %v"
)
