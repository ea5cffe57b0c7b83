package sys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Token:  "token",
			Music:  MusicConfig{MaxQueueSize: 100, DefaultVolume: 80},
			Search: SearchConfig{Limit: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"valid guild", func(c *Config) { c.GuildID = "123456789012345678" }, false},
		{"missing token", func(c *Config) { c.Token = "" }, true},
		{"short guild", func(c *Config) { c.GuildID = "1234" }, true},
		{"zero queue", func(c *Config) { c.Music.MaxQueueSize = 0 }, true},
		{"volume too high", func(c *Config) { c.Music.DefaultVolume = 201 }, true},
		{"volume zero", func(c *Config) { c.Music.DefaultVolume = 0 }, true},
		{"volume max", func(c *Config) { c.Music.DefaultVolume = 200 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvToken, EnvGuildID, EnvDatabasePath, EnvSilent, EnvMaxQueueSize,
		EnvDefaultVolume, EnvYoutubeProxy, EnvAudioFormat, EnvSearchLimit} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	clearConfigEnv(t)

	toml := `
database_path = "music.db"

[music]
max_queue_size = 25
default_volume = 120

[search]
limit = 3
proxy = "socks5://file:1080"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))

	t.Setenv(EnvToken, "secret")
	t.Setenv(EnvYoutubeProxy, "socks5://env:1080")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, "music.db", cfg.DatabasePath)
	assert.Equal(t, 25, cfg.Music.MaxQueueSize)
	assert.Equal(t, 120, cfg.Music.DefaultVolume)
	assert.Equal(t, 3, cfg.Search.Limit)
	assert.Equal(t, "socks5://env:1080", cfg.Search.Proxy, "environment wins over files")
	assert.Equal(t, DefaultAudioFormat, cfg.Music.AudioFormat)
	assert.Equal(t, DefaultCacheTTL, cfg.Search.CacheTTLSeconds)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	clearConfigEnv(t)
	t.Setenv(EnvToken, "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxQueueSize, cfg.Music.MaxQueueSize)
	assert.Equal(t, DefaultVolume, cfg.Music.DefaultVolume)
	assert.Equal(t, DefaultSearchLimit, cfg.Search.Limit)
	assert.Equal(t, DefaultBitrate, cfg.Music.Bitrate)
	assert.Equal(t, filepath.Join(".", GetProjectName()+".db"), cfg.DatabasePath)
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non numeric queue", EnvMaxQueueSize, "lots"},
		{"volume out of range", EnvDefaultVolume, "250"},
		{"negative queue", EnvMaxQueueSize, "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			t.Setenv("HOME", dir)
			clearConfigEnv(t)
			t.Setenv(EnvToken, "secret")
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingToken(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	clearConfigEnv(t)

	_, err := LoadConfig()
	assert.EqualError(t, err, MsgConfigMissingToken)
}
