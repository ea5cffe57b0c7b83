package player

import (
	"context"
	"errors"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

type fakeTransport struct {
	mu sync.Mutex

	// joinErrs pops one error per JoinOrChange for the url.
	joinErrs  map[string][]error
	noSession bool
	joins     []string
	gen       uint64
	joinVols  []int
	leaves    int
	volumes   []int
	volumeErr error
	pauseErr  error
	resumeErr error

	// gate, when set, blocks JoinOrChange for chat gateChat until closed.
	gate     chan struct{}
	gateChat snowflake.ID
	entered  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{joinErrs: map[string][]error{}}
}

func (f *fakeTransport) failJoin(url string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinErrs[url] = append(f.joinErrs[url], errs...)
}

func (f *fakeTransport) JoinOrChange(ctx context.Context, chatID snowflake.ID, audioURL string, volume int) (uint64, error) {
	if f.gate != nil && chatID == f.gateChat {
		if f.entered != nil {
			f.entered <- struct{}{}
		}
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, audioURL)
	f.joinVols = append(f.joinVols, volume)
	if f.noSession {
		return 0, ErrNoActiveSession
	}
	if errs := f.joinErrs[audioURL]; len(errs) > 0 {
		f.joinErrs[audioURL] = errs[1:]
		return 0, errs[0]
	}
	f.gen++
	return f.gen, nil
}

// current is the generation of the last stream that started.
func (f *fakeTransport) current() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

func (f *fakeTransport) Leave(ctx context.Context, chatID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *fakeTransport) SetVolume(ctx context.Context, chatID snowflake.ID, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, volume)
	return f.volumeErr
}

func (f *fakeTransport) Pause(ctx context.Context, chatID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauseErr
}

func (f *fakeTransport) Resume(ctx context.Context, chatID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumeErr
}

func (f *fakeTransport) joined() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...)
}

type fakeResolver struct {
	mu       sync.Mutex
	tracks   map[string]Track
	err      error
	resolves int
	// fresh is returned as StreamURL on re-resolution when set.
	fresh string
}

func (r *fakeResolver) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if t, ok := r.tracks[query]; ok {
		return []Track{t}, nil
	}
	return nil, nil
}

func (r *fakeResolver) Resolve(ctx context.Context, q string) (Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves++
	if r.err != nil {
		return Track{}, r.err
	}
	t, ok := r.tracks[q]
	if !ok {
		return Track{}, ErrNotFound
	}
	if r.fresh != "" {
		t.StreamURL = r.fresh
	}
	return t, nil
}

type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recorder) Notify(ctx context.Context, chatID snowflake.ID, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.outcomes))
	for i, o := range r.outcomes {
		out[i] = o.Kind
	}
	return out
}

func (r *recorder) errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for _, o := range r.outcomes {
		if o.Kind == KindError {
			out = append(out, o.Err)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = nil
}

var errBoom = errors.New("boom")

func track(name string) Track {
	return Track{
		Title:     name,
		Locator:   "https://www.youtube.com/watch?v=" + name,
		StreamURL: "https://stream/" + name,
	}
}
