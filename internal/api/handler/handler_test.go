package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuckyman/url-portal/internal/api/dto"
	"github.com/yuckyman/url-portal/internal/catalog"
	"github.com/yuckyman/url-portal/internal/dispatch"
	"github.com/yuckyman/url-portal/internal/jobstore"
	"github.com/yuckyman/url-portal/internal/portal/domain"
	"github.com/yuckyman/url-portal/shared/clock"
	"github.com/yuckyman/url-portal/shared/logger"
)

const testSecret = "s3cret"

var epoch = time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	portals map[string]catalog.Portal
	err     error
	lookups int
}

func (f *fakeCatalog) Lookup(key string) (catalog.Portal, error) {
	f.lookups++
	if f.err != nil {
		return catalog.Portal{}, f.err
	}
	p, ok := f.portals[key]
	if !ok {
		return catalog.Portal{}, errors.Wrapf(domain.ErrPortalNotFound, "portal %s", key)
	}
	return p, nil
}

func (f *fakeCatalog) List() ([]catalog.Portal, error) {
	if f.err != nil {
		return nil, f.err
	}
	portals := make([]catalog.Portal, 0, len(f.portals))
	for _, p := range f.portals {
		portals = append(portals, p)
	}
	sort.Slice(portals, func(i, j int) bool { return portals[i].Key < portals[j].Key })
	return portals, nil
}

type testEnv struct {
	engine     *gin.Engine
	dispatcher *dispatch.Dispatcher
	store      *jobstore.Store
	queue      *jobstore.Queue
	clock      *clock.MockClock
	catalog    *fakeCatalog
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewMockClock(epoch)
	store := jobstore.NewStore()
	queue := jobstore.NewQueue()
	d := dispatch.NewDispatcher(store, queue, dispatch.Options{
		Secret:      secret,
		ReplayTTL:   300 * time.Second,
		DedupWindow: 60 * time.Second,
		Clock:       clk,
		Logger:      logger.NewDiscard(),
	})
	cat := &fakeCatalog{portals: map[string]catalog.Portal{
		"dly": {
			Key:    "dly",
			Action: "open_daily",
			Label:  "Daily note",
			Config: map[string]any{"action": "open_daily", "label": "Daily note"},
		},
	}}

	h := NewJobHandler(&Dependencies{
		Logger:     logger.NewDiscard(),
		Dispatcher: d,
		Store:      store,
		Catalog:    cat,
	})

	tmpl, err := Templates()
	require.NoError(t, err)

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.GET("/wm/p/:portal_id", h.PortalPage)
	r.POST("/wm/hooks/portal", h.Trigger)
	r.GET("/wm/jobs", h.ListJobs)
	r.GET("/wm/jobs/:job_id", h.GetJob)
	r.GET("/wm/endpoints", h.Endpoints)

	return &testEnv{engine: r, dispatcher: d, store: store, queue: queue, clock: clk, catalog: cat}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) signedBody(key string) map[string]any {
	ts := e.clock.Now().Unix()
	return map[string]any{
		"portal_id": key,
		"timestamp": ts,
		"signature": e.dispatcher.Sign(key, ts),
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestTrigger_AcceptsSignedRequest(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodPost, "/wm/hooks/portal", env.signedBody("dly"))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	resp := decode[dto.TriggerResponse](t, w)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, domain.JobStatusQueued, resp.Status)
	assert.Equal(t, "dly", resp.DispatchKey)
	assert.Equal(t, "dly", resp.PortalID)
	assert.Equal(t, "open_daily", resp.Action)
	assert.NotEmpty(t, resp.AcceptedAt)
	assert.Empty(t, resp.Message)
	assert.Equal(t, 1, env.queue.Len())

	job, err := env.queue.Pop(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "dly", job.Payload["portal_id"])
	assert.Equal(t, "open_daily", job.Payload["action"])
	assert.Equal(t, "Daily note", job.Payload["config"].(map[string]any)["label"])
}

func TestTrigger_DedupedWithinWindow(t *testing.T) {
	env := newTestEnv(t, testSecret)

	first := decode[dto.TriggerResponse](t, env.do(http.MethodPost, "/wm/hooks/portal", env.signedBody("dly")))

	env.clock.Add(10 * time.Second)
	w := env.do(http.MethodPost, "/wm/hooks/portal", env.signedBody("dly"))
	require.Equal(t, http.StatusAccepted, w.Code)

	second := decode[dto.TriggerResponse](t, w)
	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, domain.JobStatusDeduped, second.Status)
	assert.Equal(t, "Duplicate request ignored", second.Message)
	assert.Equal(t, 1, env.queue.Len())

	env.clock.Add(60 * time.Second)
	third := decode[dto.TriggerResponse](t, env.do(http.MethodPost, "/wm/hooks/portal", env.signedBody("dly")))
	assert.NotEqual(t, first.JobID, third.JobID)
	assert.Equal(t, domain.JobStatusQueued, third.Status)
}

func TestTrigger_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		body        func(env *testEnv) any
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{
			name:       "empty body",
			body:       func(env *testEnv) any { return "" },
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request",
		},
		{
			name:        "missing portal id",
			body:        func(env *testEnv) any { return map[string]any{"timestamp": 1} },
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Missing portal_id",
		},
		{
			name:       "invalid key",
			body:       func(env *testEnv) any { return map[string]any{"portal_id": "Not-Valid"} },
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid portal ID format",
		},
		{
			name: "invalid key wins over bad timestamp",
			body: func(env *testEnv) any {
				return map[string]any{"portal_id": "x", "timestamp": "soon"}
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid portal ID format",
		},
		{
			name: "non-integer timestamp",
			body: func(env *testEnv) any {
				return map[string]any{"portal_id": "dly", "timestamp": 1.5, "signature": "x"}
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "timestamp must be an integer",
		},
		{
			name:        "missing signature",
			body:        func(env *testEnv) any { return map[string]any{"portal_id": "dly"} },
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Missing signature or timestamp",
		},
		{
			name: "stale timestamp",
			body: func(env *testEnv) any {
				ts := env.clock.Now().Add(-10 * time.Minute).Unix()
				return map[string]any{"portal_id": "dly", "timestamp": ts, "signature": env.dispatcher.Sign("dly", ts)}
			},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Signature timestamp expired",
		},
		{
			name: "bad signature",
			body: func(env *testEnv) any {
				b := env.signedBody("dly")
				b["signature"] = strings.Repeat("0", 64)
				return b
			},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid signature",
		},
		{
			name:       "unknown portal",
			body:       func(env *testEnv) any { return env.signedBody("zzz") },
			wantStatus: http.StatusNotFound,
			wantError:  "Portal not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testSecret)

			w := env.do(http.MethodPost, "/wm/hooks/portal", tt.body(env))
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			body := decode[map[string]string](t, w)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			}
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body["message"])
			}
			assert.Equal(t, 0, env.queue.Len())
		})
	}
}

func TestTrigger_AuthenticatesBeforeCatalogLookup(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodPost, "/wm/hooks/portal", map[string]any{"portal_id": "dly"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, env.catalog.lookups)
}

func TestTrigger_TimestampAsString(t *testing.T) {
	env := newTestEnv(t, testSecret)

	ts := env.clock.Now().Unix()
	w := env.do(http.MethodPost, "/wm/hooks/portal", map[string]any{
		"dispatch_key": "dly",
		"timestamp":    fmt.Sprintf(" %d ", ts),
		"signature":    env.dispatcher.Sign("dly", ts),
	})
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func TestTrigger_NoSecretAcceptsUnsigned(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodPost, "/wm/hooks/portal", map[string]any{"portal_id": "dly"})
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func TestTrigger_CatalogUnavailable(t *testing.T) {
	env := newTestEnv(t, "")
	env.catalog.err = errors.Mark(errors.New("open portals.json: no such file"), domain.ErrCatalogUnavailable)

	w := env.do(http.MethodPost, "/wm/hooks/portal", map[string]any{"portal_id": "dly"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	body := decode[map[string]string](t, w)
	assert.Equal(t, "Configuration error", body["error"])
	assert.Equal(t, 0, env.queue.Len())
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t, "")

	accepted := decode[dto.TriggerResponse](t, env.do(http.MethodPost, "/wm/hooks/portal", map[string]any{"portal_id": "dly"}))

	_, err := env.store.MarkInProgress(accepted.JobID, epoch.Add(time.Second))
	require.NoError(t, err)
	_, err = env.store.MarkSucceeded(accepted.JobID, map[string]any{"success": true, "gitea_url": "https://git/x"}, epoch.Add(2*time.Second))
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/wm/jobs/"+accepted.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	job := decode[dto.JobDTO](t, w)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, "https://git/x", job.Result["gitea_url"])
	assert.Empty(t, job.Error)

	w = env.do(http.MethodGet, "/wm/jobs/doesnotexist", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Job not found", decode[map[string]string](t, w)["error"])
}

func TestListJobs_Pagination(t *testing.T) {
	env := newTestEnv(t, "")
	env.catalog.portals["wtr"] = catalog.Portal{Key: "wtr", Action: "hydration", Label: "hydration"}

	for i := 0; i < 3; i++ {
		env.do(http.MethodPost, "/wm/hooks/portal", map[string]any{"portal_id": "dly"})
		env.do(http.MethodPost, "/wm/hooks/portal", map[string]any{"portal_id": "wtr"})
		env.clock.Add(2 * time.Minute)
	}

	page := decode[dto.ListJobsResponse](t, env.do(http.MethodGet, "/wm/jobs?page_size=4", nil))
	require.Len(t, page.Jobs, 4)
	require.NotEmpty(t, page.NextCursor)
	for i := 1; i < len(page.Jobs); i++ {
		assert.GreaterOrEqual(t, page.Jobs[i-1].CreatedAt, page.Jobs[i].CreatedAt)
	}

	rest := decode[dto.ListJobsResponse](t, env.do(http.MethodGet, "/wm/jobs?page_size=4&cursor="+page.NextCursor, nil))
	require.Len(t, rest.Jobs, 2)
	assert.Empty(t, rest.NextCursor)

	seen := map[string]bool{}
	for _, j := range append(page.Jobs, rest.Jobs...) {
		assert.False(t, seen[j.JobID], "job %s listed twice", j.JobID)
		seen[j.JobID] = true
	}

	filtered := decode[dto.ListJobsResponse](t, env.do(http.MethodGet, "/wm/jobs?dispatch_key=wtr&status=queued", nil))
	require.Len(t, filtered.Jobs, 3)
	for _, j := range filtered.Jobs {
		assert.Equal(t, "wtr", j.DispatchKey)
	}
}

func TestListJobs_BadQuery(t *testing.T) {
	env := newTestEnv(t, "")

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/wm/jobs?cursor=bm9waXBl", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/wm/jobs?status=deduped", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/wm/jobs?page_size=many", nil).Code)
}

func TestPortalPage(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodGet, "/wm/p/dly", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	page := w.Body.String()
	ts := env.clock.Now().Unix()
	assert.Contains(t, page, "Daily note")
	assert.Contains(t, page, env.dispatcher.Sign("dly", ts))
	assert.Contains(t, page, "/wm/hooks/portal")

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/wm/p/A", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/wm/p/zzz", nil).Code)
}

func TestPortalPage_UnsignedWithoutSecret(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/wm/p/dly", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "signature")
}

type endpointsBody struct {
	Endpoints []dto.Endpoint    `json:"endpoints"`
	Portals   []dto.PortalEntry `json:"portals"`
}

func TestEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/wm/endpoints", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[endpointsBody](t, w)
	paths := make([]string, 0, len(body.Endpoints))
	for _, e := range body.Endpoints {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "/wm/hooks/portal")
	assert.Contains(t, paths, "/wm/jobs/:job_id")

	require.Len(t, body.Portals, 1)
	assert.Equal(t, dto.PortalEntry{
		Key:    "dly",
		Action: "open_daily",
		Label:  "Daily note",
		Path:   "/wm/p/dly",
	}, body.Portals[0])
}

func TestEndpoints_CatalogUnavailableOmitsPortals(t *testing.T) {
	env := newTestEnv(t, "")
	env.catalog.err = errors.Wrap(domain.ErrCatalogUnavailable, "read portals.json")

	w := env.do(http.MethodGet, "/wm/endpoints", nil)
	require.Equal(t, http.StatusOK, w.Code)

	raw := decode[map[string]json.RawMessage](t, w)
	assert.Contains(t, raw, "endpoints")
	assert.NotContains(t, raw, "portals")
}

func TestCursorRoundTrip(t *testing.T) {
	c := jobstore.Cursor{CreatedAt: time.Unix(0, epoch.UnixNano()), JobID: "abc"}

	decoded, err := DecodeJobCursor(EncodeJobCursor(c))
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, "abc", decoded.JobID)

	none, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, none)
}
