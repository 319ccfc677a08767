package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"budsjett/internal/core"
	"budsjett/internal/services"
	"budsjett/internal/storage"
)

const sampleExport = `{
  "meta": {"exportedAt": "2024-06-01T12:00:00Z"},
  "categories": [{"id":"a","name":"Mat","icon":"🍎"},{"id":"b","name":"Bil"}],
  "byCategory": [{"categoryId":"a","sum":-1200},{"categoryId":"b","sum":-300},{"categoryId":"ghost","sum":-99}],
  "byMonthByCategory": {"2024-05": {"a": -600}},
  "byMonthBudget": {"2024-05": {"a": 500, "b": 100}}
}`

func newTestServer(t *testing.T) (*Server, *services.LoaderService) {
	t.Helper()
	loader := services.NewLoaderService(storage.NewMemoryStore(), nil, 0)
	srv := NewServer(":0", loader, Options{
		Formatter: core.NewFormatter(language.MustParse("nb-NO"), "kr", time.UTC),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, loader
}

func uploadRequest(t *testing.T, field, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "budget-export.json")
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/load", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("HX-Request", "true")
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func triggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]map[string]any {
	t.Helper()
	var events map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &events), "HX-Trigger not JSON")
	return events
}

func TestIndexWithoutDocumentShowsNoData(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	for _, want := range []string{`id="no-data"`, `<div id="has-data" hidden>`, `id="load-form"`, `name="file"`} {
		assert.Contains(t, body, want)
	}
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestLoadRendersViewAndTriggersEvent(t *testing.T) {
	srv, loader := newTestServer(t)

	rr := serve(srv, uploadRequest(t, "file", sampleExport))
	require.Equal(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())
	require.NotNil(t, loader.Current(), "document not made current")

	assert.Equal(t, true, triggers(t, rr)[EventDocumentLoaded]["hasData"])

	body := rr.Body.String()
	for _, want := range []string{`id="view"`, "🍎 Mat", "Bil", "Totalt", "Sist oppdatert: ", "Mai 2024", `class="sum over"`, `<div id="no-data" class="no-data" hidden>`, `<div id="has-data" >`} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "ghost", "unmatched category id rendered")
	assert.NotContains(t, body, "Ingen månedsdata.", "month notice shown although months exist")

	partial := serve(srv, httptest.NewRequest(http.MethodGet, "/ui/view", nil))
	require.Equal(t, http.StatusOK, partial.Code)
	assert.Equal(t, body, partial.Body.String(), "/ui/view differs from the load response for the same document")
}

func TestLoadRendersOddlyTypedDocument(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := serve(srv, uploadRequest(t, "file", `{
		"meta":{"exportedAt":1700000000000},
		"categories":[{"id":"a","name":"Mat"}],
		"byCategory":[{"categoryId":"a","sum":-1200}],
		"byMonthBudget":{"2024-01":{"a":true}}
	}`))
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, true, triggers(t, rr)[EventDocumentLoaded]["hasData"])
	body := rr.Body.String()
	assert.Contains(t, body, "Sist oppdatert: 14. nov. 2023, 22:13")
	assert.Contains(t, body, "Januar 2024")
	assert.Contains(t, body, `class="sum under"`)
}

func TestLoadParseErrorKeepsPage(t *testing.T) {
	srv, loader := newTestServer(t)

	require.Equal(t, http.StatusOK, serve(srv, uploadRequest(t, "file", sampleExport)).Code)
	before := loader.Current()

	rr := serve(srv, uploadRequest(t, "file", `{"categories": [`))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "none", rr.Header().Get("HX-Reswap"))

	note := triggers(t, rr)[EventShowNotification]
	assert.Equal(t, "error", note["type"])
	assert.Equal(t, LoadFailedMessage, note["message"])
	assert.EqualValues(t, StickyNotification, note["duration"])
	assert.Equal(t, before, loader.Current(), "current document changed after a failed load")
}

func TestLoadWithoutFileField(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := serve(srv, uploadRequest(t, "other", sampleExport))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), EventShowNotification)
}

func TestLoadAcceptsDocumentWithoutData(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := serve(srv, uploadRequest(t, "file", `[1, 2, 3]`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), `"hasData":false`)
	assert.Contains(t, rr.Body.String(), `<div id="has-data" hidden>`, "has-data section should be hidden")
}

func TestMonthlessDocumentShowsNotice(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := serve(srv, uploadRequest(t, "file", `{"categories":[{"id":"a","name":"Mat"}],"byCategory":[{"categoryId":"a","sum":-1200}]}`))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "Ingen månedsdata.")
	assert.Contains(t, body, "Sist oppdatert: –")
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method, path, allow string
	}{
		{http.MethodGet, "/load", "POST"},
		{http.MethodPost, "/ui/view", "GET"},
		{http.MethodDelete, "/", "GET, HEAD"},
	}
	for _, tt := range tests {
		rr := serve(srv, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, "%s %s", tt.method, tt.path)
		assert.Equal(t, tt.allow, rr.Header().Get("Allow"), "%s %s", tt.method, tt.path)
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, serve(srv, httptest.NewRequest(http.MethodGet, "/nope", nil)).Code)
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/static/app.js", "/static/style.css", "/static/sw.js"} {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/sw.js", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Service-Worker-Allowed"))
}

type stubLoader struct{ pingErr error }

func (stubLoader) Load(context.Context, io.Reader) (core.Raw, error) { return nil, nil }
func (stubLoader) Current() core.Raw                                 { return nil }
func (s stubLoader) Ping(context.Context) error                      { return s.pingErr }

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), path)
	}

	failing := NewServer(":0", stubLoader{pingErr: errors.New("database is locked")}, Options{})
	defer failing.Shutdown(context.Background())

	rr := serve(failing, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "database is locked")
}

func TestMetricsCountLoads(t *testing.T) {
	srv, _ := newTestServer(t)

	serve(srv, uploadRequest(t, "file", sampleExport))
	serve(srv, uploadRequest(t, "file", "not json"))

	body := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Body.String()
	for _, want := range []string{"documents_loaded_total 1", "document_load_failures_total 1", "# TYPE uptime_seconds gauge"} {
		assert.Contains(t, body, want)
	}
}

func TestPostRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < rateLimitRequests; i++ {
		rr := serve(srv, uploadRequest(t, "file", "{}"))
		require.NotEqual(t, http.StatusTooManyRequests, rr.Code, "request %d rate limited too early", i+1)
	}
	rr := serve(srv, uploadRequest(t, "file", "{}"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// GETs are never limited.
	assert.Equal(t, http.StatusOK, serve(srv, httptest.NewRequest(http.MethodGet, "/ui/view", nil)).Code)
}
