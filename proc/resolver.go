package proc

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/melody/player"
	"github.com/leeineian/melody/sys"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"golang.org/x/time/rate"
)

var (
	videoIDRegex = regexp.MustCompile(`(?:\?|&)v=([^&#]+)`)
	searchBudget = 2300 * time.Millisecond
)

const (
	watchURL      = "https://www.youtube.com/watch?v="
	musicWatchURL = "https://music.youtube.com/watch?v="
	maxSearchHits = 25
)

// ResolverOptions tune the resolver. Zero values fall back to sys defaults.
type ResolverOptions struct {
	Proxy         string
	AudioFormat   string
	CacheTTL      time.Duration
	RatePerSecond int
}

// Resolver turns URLs and free text into playable tracks through YouTube
// Music, YouTube search and yt-dlp.
type Resolver struct {
	opts    ResolverOptions
	cache   *QueryCache
	limiter *rate.Limiter

	// swappable in tests
	searchYTM    func(ctx context.Context, q string) []player.Track
	searchYT     func(ctx context.Context, q string) []player.Track
	searchYtdlp  func(ctx context.Context, q string, limit int) ([]player.Track, error)
	resolveYtdlp func(ctx context.Context, u string) (player.Track, error)
}

func NewResolver(opts ResolverOptions) *Resolver {
	if opts.AudioFormat == "" {
		opts.AudioFormat = sys.DefaultAudioFormat
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = sys.DefaultCacheTTL * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = sys.DefaultRatePerSec
	}
	r := &Resolver{
		opts:    opts,
		cache:   NewQueryCache(opts.CacheTTL),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 10),
	}
	r.searchYTM = searchYouTubeMusic
	r.searchYT = searchYouTube
	r.searchYtdlp = func(ctx context.Context, q string, limit int) ([]player.Track, error) {
		rs, err := ytdlpSearch(ctx, r.opts.Proxy, q, limit)
		if err != nil {
			return nil, err
		}
		out := make([]player.Track, 0, len(rs))
		for _, s := range rs {
			out = append(out, player.Track{Title: s.Title, Channel: s.Uploader, Duration: s.Duration, Locator: s.URL})
		}
		return out, nil
	}
	r.resolveYtdlp = func(ctx context.Context, u string) (player.Track, error) {
		return ytdlpResolve(ctx, r.opts.Proxy, r.opts.AudioFormat, u)
	}
	return r
}

// Cache exposes the search cache so its GC can be scheduled as a daemon.
func (r *Resolver) Cache() *QueryCache {
	return r.cache
}

// Search returns up to limit candidates for q. Stream URLs are left empty;
// Resolve fills them in.
func (r *Resolver) Search(ctx context.Context, q string, limit int) ([]player.Track, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: empty query", player.ErrNotFound)
	}
	if limit <= 0 {
		limit = sys.DefaultSearchLimit
	}

	if hits, ok := r.cache.Get(q); ok {
		return clip(hits, limit), nil
	}
	if hits, ok := r.cache.Get(fallbackKey(q, limit)); ok {
		return clip(hits, limit), nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", player.ErrResolution, err)
	}

	key := q
	hits := r.searchCatalogs(ctx, q)
	if len(hits) == 0 {
		fallback, err := r.searchYtdlp(ctx, q, limit)
		if err != nil {
			sys.LogResolver(sys.MsgResolverSearchFail, "yt-dlp", err)
			return nil, fmt.Errorf("%w: %w", player.ErrResolution, err)
		}
		// yt-dlp only fetched limit hits, so a larger limit must search again
		hits, key = fallback, fallbackKey(q, limit)
	}
	sys.LogResolver(sys.MsgResolverSearch, q, len(hits))
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: %s", player.ErrNotFound, q)
	}

	r.cache.Set(key, hits)
	return clip(hits, limit), nil
}

func fallbackKey(q string, limit int) string {
	return fmt.Sprintf("%s\x00%d", q, limit)
}

// searchCatalogs queries YouTube Music and YouTube at the same time, keeping
// whatever came back within the search budget. Music results come first.
func (r *Resolver) searchCatalogs(ctx context.Context, q string) []player.Track {
	ctx, cancel := context.WithTimeout(ctx, searchBudget)
	defer cancel()

	var (
		mu      sync.Mutex
		ytm, yt []player.Track
		wg      sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		res := r.searchYTM(ctx, q)
		mu.Lock()
		ytm = res
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		res := r.searchYT(ctx, q)
		mu.Lock()
		yt = res
		mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	return dedupe(append(append([]player.Track(nil), ytm...), yt...), maxSearchHits)
}

// Resolve accepts a URL or free text. Text is searched and the first hit is
// resolved.
func (r *Resolver) Resolve(ctx context.Context, q string) (player.Track, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return player.Track{}, fmt.Errorf("%w: empty query", player.ErrNotFound)
	}

	locator := q
	if !isURL(q) {
		hits, err := r.Search(ctx, q, 1)
		if err != nil {
			return player.Track{}, err
		}
		locator = hits[0].Locator
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return player.Track{}, fmt.Errorf("%w: %w", player.ErrResolution, err)
	}
	t, err := r.resolveYtdlp(ctx, locator)
	if err != nil {
		return player.Track{}, err
	}
	if t.Locator == "" {
		t.Locator = locator
	}
	return t, nil
}

// searchYouTubeMusic returns when ctx ends even though the ytmusic client
// takes no context; a late response is dropped.
func searchYouTubeMusic(ctx context.Context, q string) []player.Track {
	ch := make(chan []player.Track, 1)
	go func() { ch <- trackSearchYTM(q) }()
	select {
	case out := <-ch:
		return out
	case <-ctx.Done():
		return nil
	}
}

func trackSearchYTM(q string) []player.Track {
	r, err := ytmusic.TrackSearch(q).Next()
	if err != nil {
		sys.LogResolver(sys.MsgResolverSearchFail, "ytmusic", err)
		return nil
	}
	out := make([]player.Track, 0, len(r.Tracks))
	for _, v := range r.Tracks {
		if v.VideoID == "" {
			continue
		}
		t := player.Track{Title: v.Title, Locator: musicWatchURL + v.VideoID}
		if len(v.Artists) > 0 {
			t.Channel = v.Artists[0].Name
		}
		out = append(out, t)
	}
	return out
}

func searchYouTube(ctx context.Context, q string) []player.Track {
	r, err := ytsearch.NewClient(nil).Search(ctx, q)
	if err != nil {
		sys.LogResolver(sys.MsgResolverSearchFail, "youtube", err)
		return nil
	}
	out := make([]player.Track, 0, len(r.Results))
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		out = append(out, player.Track{Title: v.Title, Locator: watchURL + v.VideoID})
	}
	return out
}

// dedupe drops repeated videos, keeping the first occurrence.
func dedupe(ts []player.Track, max int) []player.Track {
	seen := make(map[string]bool, len(ts))
	out := make([]player.Track, 0, len(ts))
	for _, t := range ts {
		key := ExtractVideoID(t.Locator)
		if key == "" {
			key = t.Locator
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}

func clip(ts []player.Track, limit int) []player.Track {
	if len(ts) > limit {
		ts = ts[:limit]
	}
	return append([]player.Track(nil), ts...)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ExtractVideoID returns the YouTube video id of u, or "" when u is not a
// recognised YouTube link.
func ExtractVideoID(u string) string {
	if m := videoIDRegex.FindStringSubmatch(u); len(m) > 1 {
		return m[1]
	}
	for _, marker := range []string{"youtu.be/", "shorts/"} {
		if _, rest, ok := strings.Cut(u, marker); ok {
			id, _, _ := strings.Cut(rest, "?")
			return id
		}
	}
	return ""
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return watchURL + videoID
}

// ===========================
// Query Cache
// ===========================

// QueryCache keeps search results for a while so autocomplete keystrokes do
// not hit the catalogs again.
type QueryCache struct {
	sync.RWMutex
	items map[string]cachedItem
	ttl   time.Duration
	now   func() time.Time
}

type cachedItem struct {
	results   []player.Track
	expiresAt time.Time
}

func NewQueryCache(ttl time.Duration) *QueryCache {
	return &QueryCache{
		items: make(map[string]cachedItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *QueryCache) Get(q string) ([]player.Track, bool) {
	key := strings.ToLower(q)
	c.RLock()
	defer c.RUnlock()
	item, ok := c.items[key]
	if !ok || !c.now().Before(item.expiresAt) {
		return nil, false
	}
	return item.results, true
}

func (c *QueryCache) Set(q string, results []player.Track) {
	c.Lock()
	defer c.Unlock()
	c.items[strings.ToLower(q)] = cachedItem{results: results, expiresAt: c.now().Add(c.ttl)}
}

func (c *QueryCache) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.items)
}

// Clean drops expired entries and reports how many went.
func (c *QueryCache) Clean() int {
	c.Lock()
	defer c.Unlock()
	now := c.now()
	n := 0
	for q, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, q)
			n++
		}
	}
	return n
}

// StartGC cleans the cache on every tick until ctx is done.
func (c *QueryCache) StartGC(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Clean(); n > 0 {
				sys.LogResolver(sys.MsgResolverCacheCleaned, n)
			}
		}
	}
}
