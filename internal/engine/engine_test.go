package engine_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hostprowl/prowl/internal/candidate"
	"github.com/hostprowl/prowl/internal/classify"
	"github.com/hostprowl/prowl/internal/engine"
	"github.com/hostprowl/prowl/internal/model"
	"github.com/hostprowl/prowl/internal/outcome"
	"github.com/hostprowl/prowl/internal/probe"
	"github.com/hostprowl/prowl/internal/results"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFetcher serves canned responses and records which candidates were
// actually probed.
type fakeFetcher struct {
	mx    sync.Mutex
	calls map[string]int
	resp  map[string]probe.Response
	errs  map[string]error

	delay       time.Duration
	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls: make(map[string]int),
		resp:  make(map[string]probe.Response),
		errs:  make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (probe.Response, error) {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		old := f.maxInflight.Load()
		if cur <= old || f.maxInflight.CompareAndSwap(old, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return probe.Response{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mx.Lock()
	f.calls[url]++
	resp, okResp := f.resp[url]
	err, okErr := f.errs[url]
	f.mx.Unlock()

	if okErr {
		return probe.Response{}, err
	}
	if !okResp {
		return probe.Response{}, errors.New("connection refused")
	}
	return resp, nil
}

func (f *fakeFetcher) called(url string) int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.calls[url]
}

func stores(t *testing.T) (*outcome.Store, *results.Store) {
	t.Helper()
	dir := t.TempDir()
	notLive, err := outcome.Open(filepath.Join(dir, "empty_domains.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = notLive.Close() })
	found, err := results.Open(filepath.Join(dir, "domains.json"))
	require.NoError(t, err)
	return notLive, found
}

func dict(t *testing.T, words ...string) iter.Seq2[string, error] {
	t.Helper()
	return candidate.Dictionary(t.Context(), strings.NewReader(strings.Join(words, "\n")), []string{"com"})
}

func rules() classify.Rules {
	return classify.Rules{MinContentLength: 100, ParkedPhrases: []string{"for sale"}}
}

func TestRun(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	f := newFakeFetcher()
	f.resp["http://foo.com"] = probe.Response{Status: 200, Body: strings.Repeat("x", 150)}
	f.resp["http://bar.com"] = probe.Response{Status: 200, Body: "this domain is for sale"}
	f.errs["http://baz.com"] = errors.New("dial tcp: i/o timeout")

	e := engine.New(engine.Config{Workers: 4}, f, rules(), notLive, found, nil, "run-1")
	require.NoError(t, e.Run(t.Context(), dict(t, "foo", "bar", "baz")))

	require.Equal(t, []string{"http://foo.com"}, found.All())
	require.True(t, notLive.Contains("http://bar.com"))
	require.True(t, notLive.Contains("http://baz.com"))
	require.Equal(t, 2, notLive.Len())

	stats := e.Stats()
	require.Equal(t, uint64(3), stats.Generated)
	require.Equal(t, uint64(3), stats.Probed)
	require.Equal(t, uint64(1), stats.Live)
	require.Equal(t, uint64(2), stats.NotLive)
	require.Zero(t, stats.Skipped)
}

func TestRun_SkipsKnownOutcomes(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	require.NoError(t, notLive.RecordNotLive("http://dead.com"))
	require.NoError(t, found.MergeAndPersist("http://alive.com"))

	f := newFakeFetcher()
	f.resp["http://new.com"] = probe.Response{Status: 200, Body: strings.Repeat("x", 150)}

	e := engine.New(engine.Config{Workers: 2}, f, rules(), notLive, found, nil, "run-1")
	require.NoError(t, e.Run(t.Context(), dict(t, "dead", "alive", "new")))

	require.Zero(t, f.called("http://dead.com"))
	require.Zero(t, f.called("http://alive.com"))
	require.Equal(t, 1, f.called("http://new.com"))
	require.Equal(t, uint64(2), e.Stats().Skipped)
}

func TestRun_ResumeSuffix(t *testing.T) {
	t.Parallel()

	words := []string{"c1", "c2", "c3", "c4", "c5"}
	all := make([]string, len(words))
	for i, w := range words {
		all[i] = candidate.URL(w, "com")
	}

	for _, k := range []int{0, 1, len(words) - 1} {
		t.Run(fmt.Sprintf("%d classified", k), func(t *testing.T) {
			t.Parallel()

			notLive, found := stores(t)
			// a previous run classified the first k in generation order
			for _, c := range all[:k] {
				require.NoError(t, notLive.RecordNotLive(c))
			}

			f := newFakeFetcher() // everything errors, so order is stable
			e := engine.New(engine.Config{Workers: 1}, f, rules(), notLive, found, nil, "run-2")
			require.NoError(t, e.Run(t.Context(), dict(t, words...)))

			// exactly the suffix after the cursor was probed
			for _, c := range all[:k] {
				require.Zero(t, f.called(c), c)
			}
			for _, c := range all[k:] {
				require.Equal(t, 1, f.called(c), c)
			}
			require.Equal(t, "http://c5.com", notLive.Cursor())
		})
	}
}

func TestRun_ReprobeNotLive(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	require.NoError(t, notLive.RecordNotLive("http://dead.com"))

	f := newFakeFetcher()
	e := engine.New(engine.Config{Workers: 1, ReprobeNotLive: true}, f, rules(), notLive, found, nil, "run-1")
	require.NoError(t, e.Run(t.Context(), dict(t, "dead")))

	require.Equal(t, 1, f.called("http://dead.com"))
	// the log did not grow a duplicate line
	require.Equal(t, 1, notLive.Len())
}

func TestRun_InRunDuplicate(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	f := newFakeFetcher()

	// two generators may emit the same candidate within one run
	seq := candidate.Join(dict(t, "dup"), dict(t, "dup"))
	e := engine.New(engine.Config{Workers: 2}, f, rules(), notLive, found, nil, "run-1")
	require.NoError(t, e.Run(t.Context(), seq))

	require.Equal(t, 1, f.called("http://dup.com"))
}

func TestRun_GenerationError(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	f := newFakeFetcher()

	boom := errors.New("disk gone")
	seq := func(yield func(string, error) bool) {
		if !yield("http://ok.com", nil) {
			return
		}
		yield("", boom)
	}

	e := engine.New(engine.Config{Workers: 2}, f, rules(), notLive, found, nil, "run-1")
	err := e.Run(t.Context(), seq)
	require.ErrorIs(t, err, model.ErrGeneration)
	require.ErrorIs(t, err, boom)
}

func TestRun_PersistenceError(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	require.NoError(t, notLive.Close()) // appends will fail from now on

	f := newFakeFetcher()
	e := engine.New(engine.Config{Workers: 2}, f, rules(), notLive, found, nil, "run-1")
	err := e.Run(t.Context(), dict(t, "foo"))
	require.ErrorIs(t, err, model.ErrPersistence)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	f := newFakeFetcher()
	f.delay = 20 * time.Millisecond

	words := make([]string, 20)
	for i := range words {
		words[i] = "w" + string(rune('a'+i))
	}

	const workers = 3
	e := engine.New(engine.Config{Workers: workers}, f, rules(), notLive, found, nil, "run-1")
	require.NoError(t, e.Run(t.Context(), dict(t, words...)))

	require.Equal(t, uint64(len(words)), e.Stats().Probed)
	require.LessOrEqual(t, f.maxInflight.Load(), int64(workers))
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	f := newFakeFetcher()
	f.delay = time.Hour // probes block until canceled

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	e := engine.New(engine.Config{Workers: 2}, f, rules(), notLive, found, nil, "run-1")
	err := e.Run(ctx, dict(t, "a", "b", "c"))
	require.ErrorIs(t, err, context.Canceled)
	// interrupted in-flight probes reported nothing, nothing persisted
	require.Zero(t, notLive.Len())
	require.Zero(t, found.Len())
}

func TestRun_IndexRecordsDiscoveries(t *testing.T) {
	t.Parallel()

	notLive, found := stores(t)
	ix, err := results.OpenIndex(t.Context(), filepath.Join(t.TempDir(), "discoveries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	f := newFakeFetcher()
	f.resp["http://foo.com"] = probe.Response{Status: 200, Body: strings.Repeat("x", 200)}

	e := engine.New(engine.Config{Workers: 1}, f, rules(), notLive, found, ix, "run-42")
	require.NoError(t, e.Run(t.Context(), dict(t, "foo")))

	got, err := ix.Search(t.Context(), "foo")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "run-42", got[0].RunID)
}
