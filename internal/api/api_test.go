package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/almanac/internal/autosave"
	"github.com/starford/almanac/internal/memoservice"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/sse"
	"github.com/starford/almanac/internal/storage"
	"github.com/starford/almanac/internal/testutil"
)

type testEnv struct {
	svc      *memoservice.Service
	sessions *Sessions
	router   http.Handler

	mu       sync.Mutex
	failures []string
}

func newEnv(t *testing.T, token string, backend storage.Backend) *testEnv {
	t.Helper()
	if backend == nil {
		backend = testutil.TestDB(t)
	}
	env := &testEnv{}
	broker := sse.NewBroker(time.Hour)
	t.Cleanup(broker.Close)

	env.svc = memoservice.New(backend)
	env.sessions = NewSessions(context.Background(), env.svc, func(_, msg string) {
		env.mu.Lock()
		env.failures = append(env.failures, msg)
		env.mu.Unlock()
	}, nil, autosave.WithQuietPeriod(50*time.Millisecond))
	env.svc.SetNotifier(memoservice.Notifiers{broker, env.sessions})
	t.Cleanup(func() { env.sessions.CloseAll(context.Background()) })

	env.router = NewRouter(env.svc, env.sessions, token != "", token, broker)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) window(t *testing.T, title string) models.Window {
	t.Helper()
	w := e.do(t, http.MethodPost, "/windows", WindowRequest{Title: title})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Window](t, w)
}

func TestWindows(t *testing.T) {
	env := newEnv(t, "", nil)
	work := env.window(t, "Work")

	w := env.do(t, http.MethodGet, "/windows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[WindowListResponse](t, w)
	require.Len(t, list.Windows, 2)
	assert.Equal(t, models.AllWindowID, list.Windows[0].ID)
	assert.Equal(t, "Work", list.Windows[1].Title)

	w = env.do(t, http.MethodPost, "/windows", WindowRequest{Title: "Work"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate title")

	w = env.do(t, http.MethodPut, "/windows/"+work.ID, WindowRequest{Color: "#ef4444"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "#ef4444", decode[models.Window](t, w).Color)

	w = env.do(t, http.MethodPut, "/windows/all", WindowRequest{Title: "Everything"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do(t, http.MethodDelete, "/windows/all", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/windows/"+work.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/windows/"+work.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemoWithOptimisticLocking(t *testing.T) {
	env := newEnv(t, "", nil)
	work := env.window(t, "Work")
	path := "/memos/2025/" + work.ID

	w := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[MemoResponse](t, w)
	assert.Equal(t, "", empty.Body)
	assert.Equal(t, `"`+empty.Checksum+`"`, w.Header().Get("ETag"))

	w = env.do(t, http.MethodPut, path, MemoRequest{Body: "v1"}, "If-Match", `"`+empty.Checksum+`"`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v1 := decode[MemoResponse](t, w)
	assert.Equal(t, "v1", v1.Body)

	w = env.do(t, http.MethodPut, path, MemoRequest{Body: "v2"}, "If-Match", empty.Checksum)
	assert.Equal(t, http.StatusConflict, w.Code, "stale checksum")

	w = env.do(t, http.MethodPut, path, MemoRequest{Body: "v2"})
	assert.Equal(t, http.StatusOK, w.Code, "no If-Match, no locking")

	w = env.do(t, http.MethodGet, "/memos/abc/"+work.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCombinedMemo(t *testing.T) {
	env := newEnv(t, "", nil)
	work := env.window(t, "Work")
	home := env.window(t, "Home")

	w := env.do(t, http.MethodPut, "/memos/2025/combined", MemoRequest{Body: "[Work]\nBuy milk\n[Home]\n"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "[Work]\nBuy milk\n\n[Home]", decode[MemoResponse](t, w).Body)

	w = env.do(t, http.MethodGet, "/memos/2025/"+work.ID, nil)
	assert.Equal(t, "Buy milk", decode[MemoResponse](t, w).Body)
	w = env.do(t, http.MethodGet, "/memos/2025/"+home.ID, nil)
	assert.Equal(t, "", decode[MemoResponse](t, w).Body)

	w = env.do(t, http.MethodGet, "/memos/2025/all", nil)
	assert.Equal(t, "[Work]\nBuy milk\n\n[Home]", decode[MemoResponse](t, w).Body)
}

func TestSessionLifecycle(t *testing.T) {
	env := newEnv(t, "", nil)
	work := env.window(t, "Work")
	home := env.window(t, "Home")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/memos/2025/"+home.ID, MemoRequest{Body: "home"}).Code)

	w := env.do(t, http.MethodPost, "/sessions", OpenSessionRequest{Year: 2025, WindowID: work.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[SessionResponse](t, w).ID

	w = env.do(t, http.MethodPut, "/sessions/"+id+"/draft", DraftRequest{Text: "typed"})
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[SessionResponse](t, w).State
	assert.True(t, st.Dirty)
	assert.Equal(t, "typed", st.Draft)

	require.Eventually(t, func() bool {
		body, _ := env.svc.GetBody(context.Background(), work.ID, 2025)
		return body == "typed"
	}, 2*time.Second, 10*time.Millisecond, "quiet period save")

	w = env.do(t, http.MethodPost, "/sessions/"+id+"/switch", SwitchRequest{WindowID: autosave.CombinedID})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/sessions/"+id, nil)
		st := decode[SessionResponse](t, w).State
		return !st.Loading && st.Draft == "[Work]\ntyped\n\n[Home]\nhome"
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(t, http.MethodPut, "/sessions/"+id+"/draft", DraftRequest{Text: "[Home]\nchanged"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Eventually(t, func() bool {
		wb, _ := env.svc.GetBody(context.Background(), work.ID, 2025)
		hb, _ := env.svc.GetBody(context.Background(), home.ID, 2025)
		return wb == "" && hb == "changed"
	}, 2*time.Second, 10*time.Millisecond, "teardown flush")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/sessions/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/sessions/"+id, nil).Code)
}

func TestSessionRefreshOnOutsideWrite(t *testing.T) {
	env := newEnv(t, "", nil)
	work := env.window(t, "Work")

	w := env.do(t, http.MethodPost, "/sessions", OpenSessionRequest{Year: 2025, WindowID: work.ID})
	id := decode[SessionResponse](t, w).ID

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/memos/2025/"+work.ID, MemoRequest{Body: "from elsewhere"}).Code)

	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/sessions/"+id, nil)
		return decode[SessionResponse](t, w).State.Draft == "from elsewhere"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionValidation(t *testing.T) {
	env := newEnv(t, "", nil)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/sessions", OpenSessionRequest{Year: 2025}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/sessions/nope/draft", DraftRequest{Text: "x"}).Code)
}

func TestPlans(t *testing.T) {
	env := newEnv(t, "", nil)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	w := env.do(t, http.MethodPost, "/plans", PlanRequest{Title: "Dentist", WindowID: "w", Date: day})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[models.Plan](t, w)

	w = env.do(t, http.MethodPost, "/plans", PlanRequest{Title: "", Date: day})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/plans?from=2025-06-01&to=2025-07-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[PlanListResponse](t, w).Plans, 1)

	w = env.do(t, http.MethodGet, "/plans?from=2025-07-01", nil)
	assert.Empty(t, decode[PlanListResponse](t, w).Plans)

	w = env.do(t, http.MethodGet, "/plans?from=junk", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/plans/"+p.ID, PlanRequest{Title: "Dentist", Date: day, Done: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.Plan](t, w).Done)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/plans/"+p.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/plans/"+p.ID, nil).Code)
}

func TestPlans_FileDriverUnsupported(t *testing.T) {
	env := newEnv(t, "", testutil.TestVault(t))
	assert.Equal(t, http.StatusNotImplemented, env.do(t, http.MethodGet, "/plans", nil).Code)
}

func TestAuthMiddleware(t *testing.T) {
	env := newEnv(t, "secret", nil)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/windows", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/windows", nil, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/windows", nil, "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/windows?access_token=secret", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/windows?access_token=secret", WindowRequest{Title: "x"}).Code)
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := newEnv(t, "", nil)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/windows", nil).Code)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newEnv(t, "secret", nil)
	w := env.do(t, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSSEEvents_Stream(t *testing.T) {
	env := newEnv(t, "", nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	env.window(t, "Work")

	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	assert.Contains(t, string(buf[:n]), "event: window.changed")
}
