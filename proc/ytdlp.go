package proc

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
	"github.com/lrstanley/go-ytdlp"
)

var (
	cachedJSArgs []string
	jsOnce       sync.Once
)

const (
	metadataFormat = "%(title)s\t%(duration)s\t%(uploader)s\t%(thumbnail)s\t%(webpage_url)s\t%(view_count)s\t%(url)s"
	searchFormat   = "%(url)s\t%(title)s\t%(uploader)s\t%(duration)s"
)

type ytdlpSearchResult struct {
	URL, Title, Uploader string
	Duration             time.Duration
}

func newYtdlp(proxy string) *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()
	if proxy != "" {
		cmd.Proxy(proxy)
	}
	return cmd
}

// buildYtdlpArgs returns common args for yt-dlp commands
func buildYtdlpArgs() []string {
	jsOnce.Do(func() {
		for _, rt := range []string{"node", "deno", "quickjs"} {
			if path, err := exec.LookPath(rt); err == nil {
				cachedJSArgs = append(cachedJSArgs, "--js-runtimes", rt+":"+path)
				break
			}
		}
	})

	args := append([]string(nil), cachedJSArgs...)
	args = append(args,
		"--no-playlist",
		"--no-check-certificates",
		"--extractor-args", "youtube:player_client=android,web",
		"--socket-timeout", "30",
		"--retries", "10",
	)
	return args
}

func ytdlpSearch(ctx context.Context, proxy, q string, m int) ([]ytdlpSearchResult, error) {
	res, err := newYtdlp(proxy).
		FlatPlaylist().
		Print(searchFormat).
		PlaylistItems(fmt.Sprintf("1-%d", m)).
		IgnoreConfig().
		PreferFreeFormats().
		Run(ctx, append(buildYtdlpArgs(), fmt.Sprintf("ytsearch%d:%s", m, q))...)
	if err != nil {
		return nil, err
	}
	return parseSearchOutput(res.Stdout), nil
}

func parseSearchOutput(out string) []ytdlpSearchResult {
	var rs []ytdlpSearchResult
	for l := range strings.SplitSeq(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 {
			continue
		}
		if ExtractVideoID(ps[0]) == "" {
			continue
		}
		rs = append(rs, ytdlpSearchResult{
			URL:      ps[0],
			Title:    ps[1],
			Uploader: ps[2],
			Duration: parseSeconds(ps[3]),
		})
	}
	return rs
}

// ytdlpResolve prints the metadata and the direct audio URL of a single video.
func ytdlpResolve(ctx context.Context, proxy, format, u string) (player.Track, error) {
	u = strings.Replace(u, "music.youtube.com", "www.youtube.com", 1)

	res, err := newYtdlp(proxy).
		Format(format).
		Print(metadataFormat).
		NoSimulate().
		IgnoreConfig().
		Run(ctx, append(buildYtdlpArgs(), "--skip-download", u)...)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		if isUnavailable(stderr) {
			return player.Track{}, fmt.Errorf("%w: %s", player.ErrNotFound, u)
		}
		sys.LogResolver(sys.MsgResolverResolveFail, u, err)
		return player.Track{}, fmt.Errorf("%w: %w", player.ErrResolution, err)
	}

	t, ok := parseMetadataOutput(res.Stdout)
	if !ok {
		return player.Track{}, fmt.Errorf("%w: %s", player.ErrNotFound, u)
	}
	if t.Locator == "" {
		t.Locator = u
	}
	return t, nil
}

func parseMetadataOutput(out string) (player.Track, bool) {
	for l := range strings.SplitSeq(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 7 || ps[6] == "" || ps[6] == "NA" {
			continue
		}
		views, _ := strconv.ParseInt(ps[5], 10, 64)
		return player.Track{
			Title:     ps[0],
			Duration:  parseSeconds(ps[1]),
			Channel:   ps[2],
			Thumbnail: naToEmpty(ps[3]),
			Locator:   naToEmpty(ps[4]),
			Views:     views,
			StreamURL: ps[6],
		}, true
	}
	return player.Track{}, false
}

// parseSeconds reads yt-dlp's duration field, which may be fractional or "NA".
// The result is truncated to whole seconds.
func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(int64(f)) * time.Second
}

func naToEmpty(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}

func isUnavailable(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "video unavailable") ||
		strings.Contains(s, "private video") ||
		strings.Contains(s, "does not exist")
}
