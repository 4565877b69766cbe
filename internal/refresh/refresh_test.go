package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/docs-hub/internal/docstore"
	"github.com/any-hub/docs-hub/internal/store"
)

type fakeFetcher struct {
	bodies   map[string]string
	inflight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(f.delay)
	body, ok := f.bodies[url]
	if !ok {
		return "", errors.New("upstream unavailable")
	}
	return body, nil
}

func TestRunSavesAndRecordsAttempts(t *testing.T) {
	ds, err := docstore.New(docstore.Options{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Destroy() })
	ctx := context.Background()

	// 先保存一次，使失败的刷新能记录尝试时间。
	_, err = ds.SaveDoc(ctx, "https://example.com/b", "# Old B", nil)
	require.NoError(t, err)
	before, err := ds.ReadDoc(ctx, "https://example.com/b")
	require.NoError(t, err)

	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://example.com/a": "# Alpha\n\nfirst",
	}}
	sources := []Source{
		{URL: "https://example.com/a", Category: "guide", Tags: []string{"x"}},
		{URL: "https://example.com/b", Name: "Bravo"},
		{URL: "https://example.com/c"},
	}

	report := Run(ctx, sources, fetcher, ds, Options{Concurrency: 2})
	assert.Equal(t, 1, report.Saved)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Results, 3)
	assert.True(t, report.Results[0].Saved)
	assert.Equal(t, "Alpha", report.Results[0].Name)
	assert.Error(t, report.Results[1].Err())

	a, err := ds.GetDoc(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, store.CategoryGuide, a.Category)
	assert.Equal(t, []string{"x"}, a.Tags)

	after, err := ds.ReadDoc(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.Equal(t, before.Metadata.Version, after.Metadata.Version)
	assert.True(t, after.Metadata.LastAttemptedUpdate.After(before.Metadata.LastAttemptedUpdate))

	c, err := ds.GetDoc(ctx, "https://example.com/c")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	bodies := map[string]string{}
	var sources []Source
	for _, u := range []string{"a", "b", "c", "d", "e", "f"} {
		url := "https://example.com/" + u
		bodies[url] = "# " + u
		sources = append(sources, Source{URL: url})
	}
	fetcher := &fakeFetcher{bodies: bodies, delay: 20 * time.Millisecond}
	dst := &recordingStore{}

	report := Run(context.Background(), sources, fetcher, dst, Options{Concurrency: 2})
	assert.Equal(t, 6, report.Saved)
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(2))
	assert.Len(t, dst.saved, 6)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dst := &recordingStore{}

	report := Run(ctx, []Source{{URL: "https://example.com/a"}}, &fakeFetcher{}, dst, Options{})
	assert.True(t, report.Canceled)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, dst.saved)
}

type recordingStore struct {
	mu    sync.Mutex
	saved []string
}

func (r *recordingStore) SaveDoc(_ context.Context, url, content string, _ *docstore.PartialDocMetadata) (docstore.DocSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, url)
	return docstore.DocSource{URL: url, Name: content}, nil
}

func (r *recordingStore) RecordAttempt(context.Context, string) error {
	return nil
}
