package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/docs-hub/internal/docstore"
	"github.com/any-hub/docs-hub/internal/fetcher"
	"github.com/any-hub/docs-hub/internal/refresh"
)

const guideURL = "https://example.com/docs/guide"

func TestRouterSetsRequestID(t *testing.T) {
	app := newTestApp(t, testAppOptions{})

	resp := doRequest(t, app.App, http.MethodGet, "/-/healthz", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/-/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "trace-123", resp.Header.Get("X-Request-ID"))
}

func TestSaveAndLookupDoc(t *testing.T) {
	app := newTestApp(t, testAppOptions{})

	resp := doRequest(t, app.App, http.MethodPut, "/docs", `{"url":"`+guideURL+`","content":"# Guide\n\nbody","category":"guide","tags":["b","a"]}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, readBody(t, resp))

	resp = doRequest(t, app.App, http.MethodGet, "/docs/lookup?url="+guideURL, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var src docstore.DocSource
	decodeJSON(t, resp, &src)
	assert.Equal(t, "Guide", src.Name)
	assert.Equal(t, "guide", string(src.Category))
	assert.Equal(t, []string{"a", "b"}, src.Tags)

	resp = doRequest(t, app.App, http.MethodGet, "/docs/lookup?content=true&url="+guideURL, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var doc docstore.Document
	decodeJSON(t, resp, &doc)
	assert.Equal(t, "# Guide\n\nbody", doc.Content)
	assert.NotEmpty(t, doc.Metadata.Version)

	resp = doRequest(t, app.App, http.MethodGet, "/docs", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Guide")
}

func TestErrorEnvelope(t *testing.T) {
	app := newTestApp(t, testAppOptions{})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing doc", http.MethodGet, "/docs/lookup?url=https://example.com/none", "", fiber.StatusNotFound, "doc_not_found"},
		{"missing url", http.MethodGet, "/docs/lookup", "", fiber.StatusBadRequest, "url_required"},
		{"invalid url", http.MethodPut, "/docs", `{"url":"not a url","content":"x"}`, fiber.StatusBadRequest, "invalid_url"},
		{"invalid category", http.MethodPut, "/docs", `{"url":"` + guideURL + `","content":"x","category":"poem"}`, fiber.StatusBadRequest, "invalid_metadata"},
		{"bad json", http.MethodPut, "/docs", `{`, fiber.StatusBadRequest, "invalid_request"},
		{"no backup", http.MethodPost, "/-/backups/restore", `{"timestamp":"20000101T000000.000000000Z"}`, fiber.StatusNotFound, "backup_not_found"},
		{"unknown route", http.MethodGet, "/nope", "", fiber.StatusNotFound, "route_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, app.App, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			var env errorEnvelope
			decodeJSON(t, resp, &env)
			assert.Equal(t, tc.code, env.Error)
			assert.NotEmpty(t, env.Message)
			assert.Equal(t, resp.Header.Get("X-Request-ID"), env.RequestID)
		})
	}

	resp := doRequest(t, app.App, http.MethodPost, "/-/backups/restore", "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Backup not found")
}

func TestBackupRestoreRoutes(t *testing.T) {
	app := newTestApp(t, testAppOptions{})

	resp := doRequest(t, app.App, http.MethodPut, "/docs", `{"url":"`+guideURL+`","content":"# Before"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app.App, http.MethodPost, "/-/backups", "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var snap struct {
		Name      string `json:"name"`
		Timestamp string `json:"timestamp"`
	}
	decodeJSON(t, resp, &snap)
	require.NotEmpty(t, snap.Timestamp)

	resp = doRequest(t, app.App, http.MethodPut, "/docs", `{"url":"`+guideURL+`","content":"# After","name":"After"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app.App, http.MethodPost, "/-/backups/restore", `{"timestamp":"`+snap.Timestamp+`"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, readBody(t, resp))

	resp = doRequest(t, app.App, http.MethodGet, "/docs/lookup?url="+guideURL, "")
	var src docstore.DocSource
	decodeJSON(t, resp, &src)
	assert.Equal(t, "Before", src.Name)

	resp = doRequest(t, app.App, http.MethodGet, "/-/backups", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), snap.Name)
}

func TestCacheRoutes(t *testing.T) {
	app := newTestApp(t, testAppOptions{})

	resp := doRequest(t, app.App, http.MethodPut, "/docs", `{"url":"`+guideURL+`","content":"# Guide"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app.App, http.MethodGet, "/-/cache", "")
	var stats struct {
		Entries int `json:"entries"`
	}
	decodeJSON(t, resp, &stats)
	assert.Equal(t, 1, stats.Entries)

	resp = doRequest(t, app.App, http.MethodDelete, "/-/cache", "")
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, app.store.CacheStats().Entries)
}

func TestDestroyedStoreReturns503(t *testing.T) {
	app := newTestApp(t, testAppOptions{})
	require.NoError(t, app.store.Destroy())

	resp := doRequest(t, app.App, http.MethodGet, "/docs", "")
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	var env errorEnvelope
	decodeJSON(t, resp, &env)
	assert.Equal(t, "store_destroyed", env.Error)
}

func TestFetchAndRefreshRoutes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("# Fetched " + r.URL.Path))
	}))
	defer upstream.Close()

	app := newTestApp(t, testAppOptions{
		fetcher: fetcher.New(fetcher.Options{}),
		sources: []refresh.Source{
			{URL: upstream.URL + "/one", Category: "api"},
			{URL: upstream.URL + "/missing"},
		},
	})

	resp := doRequest(t, app.App, http.MethodPost, "/docs/fetch", `{"url":"`+upstream.URL+`/page"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var src docstore.DocSource
	decodeJSON(t, resp, &src)
	assert.Equal(t, "Fetched /page", src.Name)

	resp = doRequest(t, app.App, http.MethodPost, "/docs/fetch", `{"url":"`+upstream.URL+`/missing"}`)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	resp = doRequest(t, app.App, http.MethodPost, "/-/refresh", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var report refresh.Report
	decodeJSON(t, resp, &report)
	assert.Equal(t, 1, report.Saved)
	assert.Equal(t, 1, report.Failed)
}

func TestFetchWithoutFetcherNotImplemented(t *testing.T) {
	app := newTestApp(t, testAppOptions{})
	resp := doRequest(t, app.App, http.MethodPost, "/docs/fetch", `{"url":"`+guideURL+`"}`)
	assert.Equal(t, fiber.StatusNotImplemented, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, testAppOptions{withMetrics: true})

	resp := doRequest(t, app.App, http.MethodGet, "/docs", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doRequest(t, app.App, http.MethodGet, "/-/metrics", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "docs_http_requests_total")
	assert.Contains(t, body, `path="/docs"`)
}

func TestNewAppValidatesOptions(t *testing.T) {
	logger := logrus.New()
	_, err := NewApp(AppOptions{Logger: logger, ListenPort: 5000})
	assert.Error(t, err)
	_, err = NewApp(AppOptions{Store: &docstore.Store{}, ListenPort: 5000})
	assert.Error(t, err)
	_, err = NewApp(AppOptions{Logger: logger, Store: &docstore.Store{}})
	assert.Error(t, err)
}

type testAppOptions struct {
	fetcher     refresh.Fetcher
	sources     []refresh.Source
	withMetrics bool
}

type testApp struct {
	*fiber.App
	store *docstore.Store
}

func newTestApp(t *testing.T, opts testAppOptions) *testApp {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := docstore.New(docstore.Options{Root: t.TempDir(), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Destroy() })

	appOpts := AppOptions{
		Logger:     logger,
		Store:      store,
		Sources:    opts.sources,
		ListenPort: 5000,
	}
	if opts.fetcher != nil {
		appOpts.Fetcher = opts.fetcher
	}
	if opts.withMetrics {
		reg := prometheus.NewRegistry()
		appOpts.Registerer = reg
		appOpts.Gatherer = reg
	}

	app, err := NewApp(appOpts)
	require.NoError(t, err)
	return &testApp{App: app, store: store}
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
