package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/listing"
	"github.com/shpitdev/listing-enricher/internal/metrics"
	"github.com/shpitdev/listing-enricher/internal/pipeline"
	"github.com/shpitdev/listing-enricher/internal/store"
)

type fakeFetcher struct {
	total   int
	fetched []int
	errs    map[int][]error // queued errors per page
}

func (f *fakeFetcher) FetchPage(_ context.Context, n int) (*core.Page, error) {
	f.fetched = append(f.fetched, n)
	if q := f.errs[n]; len(q) > 0 {
		f.errs[n] = q[1:]
		return nil, q[0]
	}
	return &core.Page{Number: n, URL: fmt.Sprintf("https://listings.test/c?page=%d", n), HTML: fmt.Sprintf("<html>page %d</html>", n), TotalPages: f.total}, nil
}

type fakeExtractor struct {
	perPage map[int]int
	fail    map[int]bool
}

func (e *fakeExtractor) Extract(p *core.Page) ([]listing.Listing, error) {
	if e.fail[p.Number] {
		return nil, &core.ExtractionError{Page: p.Number, Selector: "#results", Reason: "results container not found"}
	}
	n, ok := e.perPage[p.Number]
	if !ok {
		n = 12
	}
	out := make([]listing.Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, listing.Listing{Name: fmt.Sprintf("p%d-%02d", p.Number, i)})
	}
	return out, nil
}

func phoneResolver() core.ResolveFunc {
	return func(_ context.Context, l listing.Listing) listing.EnrichedListing {
		return listing.Enrich(l, "(908) 555-0100", "")
	}
}

type memAppender struct {
	rows   [][]string
	clears int
	fails  int
}

func (m *memAppender) Clear(context.Context) error {
	m.clears++
	m.rows = nil
	return nil
}

func (m *memAppender) AppendRows(_ context.Context, rows [][]string) error {
	if m.fails > 0 {
		m.fails--
		return errors.New("backend unavailable")
	}
	m.rows = append(m.rows, rows...)
	return nil
}

type harness struct {
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	dest      *memAppender
	writer    *store.BatchWriter
	metrics   *metrics.Metrics
	states    []pipeline.State
	sleeps    []time.Duration
}

func newHarness(total int) *harness {
	dest := &memAppender{}
	return &harness{
		fetcher:   &fakeFetcher{total: total, errs: map[int][]error{}},
		extractor: &fakeExtractor{perPage: map[int]int{}, fail: map[int]bool{}},
		dest:      dest,
		writer:    store.NewBatchWriter(dest),
		metrics:   metrics.New(),
	}
}

func (h *harness) orchestrator(t *testing.T, cfg pipeline.Config, resolver core.ContactResolver) *pipeline.Orchestrator {
	t.Helper()
	if cfg.StartPage == 0 {
		cfg.StartPage = 1
	}
	o, err := pipeline.New(cfg, h.fetcher, h.extractor, resolver, h.writer,
		pipeline.WithMetrics(h.metrics),
		pipeline.WithLogger(zaptest.NewLogger(t)),
		pipeline.WithSleep(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
		pipeline.WithTransitionHook(func(_, to pipeline.State) { h.states = append(h.states, to) }),
	)
	require.NoError(t, err)
	return o
}

func TestRun_AllPages(t *testing.T) {
	h := newHarness(3)
	o := h.orchestrator(t, pipeline.Config{}, phoneResolver())

	sum, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateDone, sum.State)
	assert.Equal(t, 3, sum.Pages)
	assert.Equal(t, 36, sum.Listings)
	assert.Equal(t, 36, sum.Written)
	assert.Zero(t, sum.Lost)
	assert.Zero(t, sum.ResumePage)
	assert.Equal(t, []int{1, 2, 3}, h.fetcher.fetched)

	require.Len(t, h.dest.rows, 37)
	assert.Equal(t, listing.Header(), h.dest.rows[0])
	assert.Equal(t, "p1-00", h.dest.rows[1][0])
	assert.Equal(t, "p3-11", h.dest.rows[36][0])

	assert.Equal(t, pipeline.StateFetchingPage, h.states[0])
	assert.Contains(t, h.states, pipeline.StateFlushing)
	assert.Equal(t, pipeline.StateDone, h.states[len(h.states)-1])
	assert.Equal(t, float64(36), testutil.ToFloat64(h.metrics.Contacts.WithLabelValues("phone_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RunState.WithLabelValues("done")))
}

func TestRun_ResumeSkipsHeaderAndStartsAtPage(t *testing.T) {
	h := newHarness(5)
	h.dest.rows = [][]string{listing.Header(), {"from an earlier run"}}
	o := h.orchestrator(t, pipeline.Config{StartPage: 4}, phoneResolver())

	sum, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{4, 5}, h.fetcher.fetched)
	assert.Zero(t, h.dest.clears)
	require.Len(t, h.dest.rows, 2+24)
	assert.Equal(t, "from an earlier run", h.dest.rows[1][0])
	assert.Equal(t, "p4-00", h.dest.rows[2][0])
	assert.Equal(t, 2, sum.Pages)
}

func TestRun_StartPagePastLastPageWritesNothing(t *testing.T) {
	h := newHarness(3)
	h.dest.rows = [][]string{listing.Header()}
	o := h.orchestrator(t, pipeline.Config{StartPage: 5}, phoneResolver())

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateDone, sum.State)
	assert.Equal(t, []int{5}, h.fetcher.fetched)
	assert.Zero(t, sum.Pages)
	assert.Zero(t, sum.Listings)
	assert.Len(t, h.dest.rows, 1)
	assert.NotContains(t, h.states, pipeline.StateExtracting)
}

func TestRun_EmptyPageEndsRun(t *testing.T) {
	h := newHarness(10)
	h.extractor.perPage[2] = 0
	o := h.orchestrator(t, pipeline.Config{}, phoneResolver())

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateDone, sum.State)
	assert.Equal(t, []int{1, 2}, h.fetcher.fetched)
	assert.Equal(t, 1, sum.Pages)
	assert.Len(t, h.dest.rows, 13)
}

func TestRun_MaxPagesBoundsRun(t *testing.T) {
	h := newHarness(105)
	o := h.orchestrator(t, pipeline.Config{StartPage: 10, MaxPages: 2}, phoneResolver())

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11}, h.fetcher.fetched)
	assert.Equal(t, 2, sum.Pages)
}

func TestRun_InterruptFlushesBuffer(t *testing.T) {
	h := newHarness(3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolved := 0
	resolver := core.ResolveFunc(func(ctx context.Context, l listing.Listing) listing.EnrichedListing {
		resolved++
		if resolved == 14 {
			cancel()
		}
		return listing.Enrich(l, "", "")
	})
	o := h.orchestrator(t, pipeline.Config{}, resolver)

	sum, err := o.Run(ctx)
	require.ErrorIs(t, err, pipeline.ErrInterrupted)

	assert.Equal(t, pipeline.StateInterrupted, sum.State)
	// 13 accepted rows: 10 flushed at threshold, 3 flushed on interrupt. The 14th was cut short.
	assert.Equal(t, 13, sum.Written)
	assert.Zero(t, sum.Lost)
	assert.Equal(t, 2, sum.ResumePage)
	assert.Len(t, h.dest.rows, 14)
	assert.Equal(t, pipeline.StateInterrupted, h.states[len(h.states)-1])
}

func TestRun_CaptchaCooldownThenRecover(t *testing.T) {
	h := newHarness(1)
	h.fetcher.errs[1] = []error{&core.CaptchaBlockedError{URL: "https://listings.test/c", Page: 1}}
	o := h.orchestrator(t, pipeline.Config{CaptchaRetries: 1, CaptchaCooldown: time.Minute}, phoneResolver())

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateDone, sum.State)
	assert.Equal(t, []int{1, 1}, h.fetcher.fetched)
	assert.Equal(t, []time.Duration{time.Minute}, h.sleeps)
}

func TestRun_RepeatedCaptchaAborts(t *testing.T) {
	h := newHarness(3)
	blocked := &core.CaptchaBlockedError{URL: "https://listings.test/c?page=2", Page: 2}
	h.fetcher.errs[2] = []error{blocked, blocked}
	o := h.orchestrator(t, pipeline.Config{CaptchaRetries: 1, CaptchaCooldown: time.Second}, phoneResolver())

	sum, err := o.Run(context.Background())
	var cb *core.CaptchaBlockedError
	require.ErrorAs(t, err, &cb)
	assert.Equal(t, pipeline.StateAborted, sum.State)
	assert.Equal(t, 2, sum.ResumePage)
	// Page 1's two leftover rows are flushed before giving up.
	assert.Equal(t, 12, sum.Written)
	assert.Len(t, h.dest.rows, 13)
}

func TestRun_NavigationErrorAborts(t *testing.T) {
	h := newHarness(3)
	h.fetcher.errs[1] = []error{&core.NavigationError{URL: "https://listings.test/c", Page: 1, Attempts: 3, Err: errors.New("net::ERR_TIMED_OUT")}}
	o := h.orchestrator(t, pipeline.Config{CaptchaRetries: 3}, phoneResolver())

	sum, err := o.Run(context.Background())
	var ne *core.NavigationError
	require.ErrorAs(t, err, &ne)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, pipeline.StateAborted, sum.State)
	assert.Equal(t, []int{1}, h.fetcher.fetched)
	assert.Len(t, h.dest.rows, 1)
}

func TestRun_ExtractionErrorSavesMarkup(t *testing.T) {
	h := newHarness(3)
	h.extractor.fail[2] = true
	dir := filepath.Join(t.TempDir(), "debug")
	o := h.orchestrator(t, pipeline.Config{DebugDir: dir}, phoneResolver())

	sum, err := o.Run(context.Background())
	var ee *core.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, pipeline.StateAborted, sum.State)

	b, err := os.ReadFile(filepath.Join(dir, "page-002.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>page 2</html>", string(b))
}

func TestRun_HeaderWriteFailureAborts(t *testing.T) {
	h := newHarness(1)
	h.dest.fails = 1
	o := h.orchestrator(t, pipeline.Config{}, phoneResolver())

	sum, err := o.Run(context.Background())
	var pe *core.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, pipeline.StateAborted, sum.State)
	assert.Empty(t, h.fetcher.fetched)
}

func TestRun_FlushFailureRecovers(t *testing.T) {
	h := newHarness(1)
	// Header goes through, the first batch fails once and its retry succeeds.
	h.writer = store.NewBatchWriter(&failAfter{memAppender: h.dest, okCalls: 1, fails: 1})
	o := h.orchestrator(t, pipeline.Config{FlushRetryDelay: 2 * time.Second}, phoneResolver())

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Written)
	assert.Equal(t, []time.Duration{2 * time.Second}, h.sleeps)
	assert.Len(t, h.dest.rows, 13)
}

func TestRun_FlushFailsTwiceLosesBatch(t *testing.T) {
	h := newHarness(1)
	failing := &failAfter{memAppender: h.dest, okCalls: 1, fails: 2}
	h.writer = store.NewBatchWriter(failing)
	o := h.orchestrator(t, pipeline.Config{}, phoneResolver())

	sum, err := o.Run(context.Background())
	var pe *core.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, pipeline.StateAborted, sum.State)
	assert.Equal(t, 10, sum.Lost)
	assert.Equal(t, 1, sum.ResumePage)
	assert.Len(t, h.dest.rows, 1)
}

// failAfter lets okCalls appends through, then fails the next fails appends.
type failAfter struct {
	*memAppender
	okCalls int
	fails   int
	calls   int
}

func (f *failAfter) AppendRows(ctx context.Context, rows [][]string) error {
	f.calls++
	if f.calls > f.okCalls && f.fails > 0 {
		f.fails--
		return errors.New("backend unavailable")
	}
	return f.memAppender.AppendRows(ctx, rows)
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(1)
	_, err := pipeline.New(pipeline.Config{StartPage: 0}, h.fetcher, h.extractor, phoneResolver(), h.writer)
	require.Error(t, err)
	_, err = pipeline.New(pipeline.Config{StartPage: 1}, nil, h.extractor, phoneResolver(), h.writer)
	require.Error(t, err)
}
