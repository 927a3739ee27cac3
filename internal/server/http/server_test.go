package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/warden/internal/config"
	"github.com/rzbill/warden/internal/runtime"
	pebblestore "github.com/rzbill/warden/internal/storage/pebble"
	logpkg "github.com/rzbill/warden/pkg/log"
)

func newTestServer(t *testing.T, mutate func(*cfgpkg.Config)) *Server {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Intruder.User = cfgpkg.PolicyConfig{ResetMs: 60_000, MaxAttempts: 3}
	cfg.Alerts.Log = false
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(context.Background(), runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text", Outputs: []logpkg.OutputConfig{{Type: "null"}}})
	return New(rt, logger)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealthHandlers(t *testing.T) {
	s := newTestServer(t, nil)
	if w := do(t, s, http.MethodGet, "/v1/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz status: %d", w.Code)
	}
	w := do(t, s, http.MethodGet, "/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status: %d body=%s", w.Code, w.Body.String())
	}
	var h runtime.Health
	decode(t, w, &h)
	if !h.Healthy || h.Intruder.Status != "OPEN" {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/v1/intruders/attempts", `{"username":"alice"}`)
	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `warden_statistic_total{statistic="failed_logins"} 1`) {
		t.Fatalf("missing failed_logins counter:\n%s", w.Body.String())
	}
}

func TestWriteAndSearchEvents(t *testing.T) {
	s := newTestServer(t, nil)
	w := do(t, s, http.MethodPost, "/v1/events", `{"level":"warn","topic":"auth","message":"password changed","actor":"alice"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("write status: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/events", `{"level":"LOUD"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad level status: %d", w.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w := do(t, s, http.MethodGet, "/v1/events?actor=alice&level=WARN", "")
		if w.Code != http.StatusOK {
			t.Fatalf("search status: %d", w.Code)
		}
		var resp searchRespBody
		decode(t, w, &resp)
		if len(resp.Events) == 1 {
			if resp.Events[0].Message != "password changed" {
				t.Fatalf("unexpected event %+v", resp.Events[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("event never became searchable")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w = do(t, s, http.MethodGet, "/v1/events?maxQueryMs=0", "")
	var bounded searchRespBody
	decode(t, w, &bounded)
	if !bounded.TimeBounded || len(bounded.Events) != 0 {
		t.Fatalf("zero query time should return at once: %+v", bounded)
	}

	if w := do(t, s, http.MethodGet, "/v1/events?filter=level+%3E", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid filter status: %d", w.Code)
	}
}

type searchRespBody struct {
	Events []struct {
		Message string `json:"message"`
		Actor   string `json:"actor"`
	} `json:"events"`
	TimeBounded bool `json:"timeBounded"`
}

func TestIntruderLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	for rep := 0; rep < 3; rep++ {
		if w := do(t, s, http.MethodPost, "/v1/intruders/attempts", `{"username":"bob","address":"10.0.0.7"}`); w.Code != http.StatusNoContent {
			t.Fatalf("attempt status: %d", w.Code)
		}
	}

	w := do(t, s, http.MethodGet, "/v1/intruders/check?username=bob&address=10.0.0.7", "")
	if w.Code != http.StatusLocked {
		t.Fatalf("check status: %d", w.Code)
	}
	var locked struct {
		Code      string `json:"code"`
		Dimension string `json:"dimension"`
		Attempts  int    `json:"attempts"`
	}
	decode(t, w, &locked)
	if locked.Code != "ERROR_INTRUDER_USER" || locked.Dimension != "user" || locked.Attempts != 3 {
		t.Fatalf("unexpected body %+v", locked)
	}

	w = do(t, s, http.MethodGet, "/v1/intruders/user/bob", "")
	if w.Code != http.StatusOK {
		t.Fatalf("show status: %d", w.Code)
	}
	var rec struct {
		Count  int  `json:"count"`
		Locked bool `json:"locked"`
	}
	decode(t, w, &rec)
	if rec.Count != 3 || !rec.Locked {
		t.Fatalf("unexpected record %+v", rec)
	}

	if w := do(t, s, http.MethodDelete, "/v1/intruders/user/bob", ""); w.Code != http.StatusNoContent {
		t.Fatalf("clear status: %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/intruders/check?username=bob", ""); w.Code != http.StatusOK {
		t.Fatalf("check after clear: %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/intruders/user/bob", ""); w.Code != http.StatusNotFound {
		t.Fatalf("show after clear: %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/intruders/device/x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown dimension: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/intruders/attempts", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty attempt: %d", w.Code)
	}
}

func TestSuccessfulAttemptClearsRecord(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/v1/intruders/attempts", `{"username":"carol","address":"10.0.0.8"}`)
	if w := do(t, s, http.MethodGet, "/v1/intruders/address/10.0.0.8", ""); w.Code != http.StatusOK {
		t.Fatalf("show status: %d", w.Code)
	}
	do(t, s, http.MethodPost, "/v1/intruders/attempts", `{"username":"carol","address":"10.0.0.8","success":true}`)
	if w := do(t, s, http.MethodGet, "/v1/intruders/address/10.0.0.8", ""); w.Code != http.StatusNotFound {
		t.Fatalf("address record should be gone: %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/intruders/user/carol", ""); w.Code != http.StatusNotFound {
		t.Fatalf("user record should be gone: %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *cfgpkg.Config) { c.HTTPRateLimit = 2 })
	for i := 0; i < 2; i++ {
		if w := do(t, s, http.MethodGet, "/v1/healthz", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status: %d", i, w.Code)
		}
	}
	if w := do(t, s, http.MethodGet, "/v1/healthz", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestListenAndServe(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr().String() + "/v1/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}
