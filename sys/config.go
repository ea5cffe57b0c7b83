package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// --- Configuration & Environment ---

type Config struct {
	Token        string `koanf:"-"`
	GuildID      string `koanf:"guild_id"`
	DatabasePath string `koanf:"database_path"`
	Silent       bool   `koanf:"silent"`

	Music  MusicConfig  `koanf:"music"`
	Search SearchConfig `koanf:"search"`
}

// MusicConfig holds playback limits.
type MusicConfig struct {
	MaxQueueSize  int    `koanf:"max_queue_size"`
	DefaultVolume int    `koanf:"default_volume"` // 1-200
	AudioFormat   string `koanf:"audio_format"`   // yt-dlp -f selector
	Bitrate       int    `koanf:"bitrate"`        // opus bitrate in bits per second
}

// SearchConfig holds track resolution settings.
type SearchConfig struct {
	Limit           int    `koanf:"limit"`
	Proxy           string `koanf:"proxy"`
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds"`
	RatePerSecond   int    `koanf:"rate_per_second"`
}

const (
	EnvToken         = "DISCORD_TOKEN"
	EnvGuildID       = "GUILD_ID"
	EnvDatabasePath  = "DATABASE_PATH"
	EnvSilent        = "SILENT"
	EnvMaxQueueSize  = "MAX_QUEUE_SIZE"
	EnvDefaultVolume = "DEFAULT_VOLUME"
	EnvYoutubeProxy  = "YOUTUBE_PROXY"
	EnvAudioFormat   = "AUDIO_FORMAT"
	EnvSearchLimit   = "SEARCH_LIMIT"
)

const (
	DefaultAudioFormat  = "bestaudio[acodec=opus]/bestaudio/best"
	DefaultBitrate      = 128000
	DefaultSearchLimit  = 5
	DefaultCacheTTL     = 300
	DefaultRatePerSec   = 4
	DefaultMaxQueueSize = 100
	DefaultVolume       = 80
)

var GlobalConfig *Config

// LoadConfig reads config.toml files (home, then working directory) and lets
// the environment override them.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	k := koanf.New(".")
	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		}
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Token = os.Getenv(EnvToken)
	if v := os.Getenv(EnvGuildID); v != "" {
		cfg.GuildID = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv(EnvSilent); v != "" {
		cfg.Silent, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv(EnvYoutubeProxy); v != "" {
		cfg.Search.Proxy = v
	}
	if v := os.Getenv(EnvAudioFormat); v != "" {
		cfg.Music.AudioFormat = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvMaxQueueSize, &cfg.Music.MaxQueueSize},
		{EnvDefaultVolume, &cfg.Music.DefaultVolume},
		{EnvSearchLimit, &cfg.Search.Limit},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf(MsgConfigInvalidInt, e.key, v)
		}
		*e.dst = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DatabasePath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		c.DatabasePath = filepath.Join(folder, GetProjectName()+".db")
	}
	if c.Music.MaxQueueSize == 0 {
		c.Music.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.Music.DefaultVolume == 0 {
		c.Music.DefaultVolume = DefaultVolume
	}
	if c.Music.AudioFormat == "" {
		c.Music.AudioFormat = DefaultAudioFormat
	}
	if c.Music.Bitrate <= 0 {
		c.Music.Bitrate = DefaultBitrate
	}
	if c.Search.Limit <= 0 {
		c.Search.Limit = DefaultSearchLimit
	}
	if c.Search.CacheTTLSeconds <= 0 {
		c.Search.CacheTTLSeconds = DefaultCacheTTL
	}
	if c.Search.RatePerSecond <= 0 {
		c.Search.RatePerSecond = DefaultRatePerSec
	}
}

// Validate ensures the configuration is valid and meets requirements.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.Music.MaxQueueSize <= 0 {
		return fmt.Errorf("invalid max_queue_size %d: must be positive", c.Music.MaxQueueSize)
	}
	if c.Music.DefaultVolume < 1 || c.Music.DefaultVolume > 200 {
		return fmt.Errorf("invalid default_volume %d: must be between 1 and 200", c.Music.DefaultVolume)
	}
	return nil
}

func getConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", GetProjectName(), "config.toml"))
	}
	return append(paths, "config.toml")
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "melody"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			projectName = "melody"
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
