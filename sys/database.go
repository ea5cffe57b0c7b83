package sys

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

// --- Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			user_id TEXT,
			title TEXT NOT NULL,
			locator TEXT NOT NULL,
			channel TEXT,
			duration INTEGER DEFAULT 0,
			played_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_guild ON play_history (guild_id, played_at)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE play_history ADD COLUMN thumbnail TEXT",
	}

	for _, m := range migrations {
		if _, err := DB.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Play History ---

type HistoryEntry struct {
	ID        int64
	GuildID   snowflake.ID
	UserID    snowflake.ID
	Title     string
	Locator   string
	Channel   string
	Thumbnail string
	Duration  time.Duration
	PlayedAt  time.Time
}

func AddPlayHistory(ctx context.Context, e *HistoryEntry) error {
	if e.PlayedAt.IsZero() {
		e.PlayedAt = time.Now().UTC()
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO play_history (guild_id, user_id, title, locator, channel, thumbnail, duration, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.GuildID.String(), e.UserID.String(), e.Title, e.Locator, e.Channel, e.Thumbnail, int64(e.Duration/time.Second), e.PlayedAt)
	return err
}

// GetRecentHistory returns the latest plays of a guild, newest first, one row
// per locator.
func GetRecentHistory(ctx context.Context, guildID snowflake.ID, limit int) ([]*HistoryEntry, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, guild_id, COALESCE(user_id, ''), title, locator, COALESCE(channel, ''),
			COALESCE(thumbnail, ''), duration, played_at
		FROM play_history
		WHERE id IN (SELECT MAX(id) FROM play_history WHERE guild_id = ? GROUP BY locator)
		ORDER BY id DESC
		LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		var gid, uid string
		var secs int64
		if err := rows.Scan(&e.ID, &gid, &uid, &e.Title, &e.Locator, &e.Channel, &e.Thumbnail, &secs, &e.PlayedAt); err != nil {
			return nil, err
		}
		e.GuildID, err = snowflake.Parse(gid)
		if err != nil {
			return nil, fmt.Errorf("failed to parse guild ID '%s' for history %d: %w", gid, e.ID, err)
		}
		if uid != "" {
			e.UserID, _ = snowflake.Parse(uid)
		}
		e.Duration = time.Duration(secs) * time.Second
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func CountPlayHistory(ctx context.Context, guildID snowflake.ID) (int, error) {
	var count int
	err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM play_history WHERE guild_id = ?", guildID.String()).Scan(&count)
	return count, err
}

// PrunePlayHistory deletes plays older than the cutoff.
func PrunePlayHistory(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := DB.ExecContext(ctx, "DELETE FROM play_history WHERE played_at < ?", olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
