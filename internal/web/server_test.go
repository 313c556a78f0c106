package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"turnstile/internal/api"
	"turnstile/internal/config"
	"turnstile/internal/engine"
	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/store"
	"turnstile/internal/testsupport"
	"turnstile/internal/web"
)

// openServer builds a server against a fresh temp store with auth disabled.
// The auth tests configure their own secret.
func openServer(t *testing.T, opts ...web.Option) (*web.Server, *store.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Web.AuthSecret = ""
	st := testsupport.MustOpenStore(t, cfg)
	srv, err := web.NewServer(cfg, st, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, st, cfg
}

func do(t *testing.T, srv *web.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, srv *web.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, srv, http.MethodGet, path, nil)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
}

// fakeSidecar answers the face engine routes the handlers exercise.
func fakeSidecar(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for path, handler := range routes {
		mux.HandleFunc(path, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHealthReportsDegradedWithoutFaceEngine(t *testing.T) {
	srv, _, _ := openServer(t)

	rec := get(t, srv, "/api/v1/health")
	wantStatus(t, rec, http.StatusOK)

	var resp struct {
		Success    bool   `json:"success"`
		Status     string `json:"status"`
		FaceEngine string `json:"faceEngine"`
		Database   struct {
			DatabaseExists bool `json:"databaseExists"`
			IntegrityCheck bool `json:"integrityCheck"`
		} `json:"database"`
	}
	decodeJSON(t, rec, &resp)

	if !resp.Success {
		t.Fatal("expected success")
	}
	if resp.Status != "degraded" || resp.FaceEngine != "unreachable" {
		t.Errorf("status=%q faceEngine=%q, want degraded/unreachable", resp.Status, resp.FaceEngine)
	}
	if !resp.Database.DatabaseExists || !resp.Database.IntegrityCheck {
		t.Errorf("unexpected database health: %+v", resp.Database)
	}
}

func TestHealthOKWithLiveFaceEngine(t *testing.T) {
	sidecar := fakeSidecar(t, nil)

	cfg := testsupport.NewConfig(t, testsupport.WithFaceEngineURL(sidecar.URL))
	cfg.Web.AuthSecret = ""
	st := testsupport.MustOpenStore(t, cfg)
	srv, err := web.NewServer(cfg, st, logging.NewNop(),
		web.WithFaceClient(faceclient.New(cfg)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := get(t, srv, "/api/v1/health")
	wantStatus(t, rec, http.StatusOK)

	var resp struct {
		Status     string `json:"status"`
		FaceEngine string `json:"faceEngine"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Status != "ok" || resp.FaceEngine != "ok" {
		t.Errorf("status=%q faceEngine=%q, want ok/ok", resp.Status, resp.FaceEngine)
	}
}

func TestStatusReportsDaemonInfo(t *testing.T) {
	started := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	srv, _, cfg := openServer(t, web.WithDaemonInfo(api.DaemonInfo{
		PID:       4242,
		RunID:     "run-1",
		StartedAt: started,
	}))

	rec := get(t, srv, "/api/v1/status")
	wantStatus(t, rec, http.StatusOK)

	var resp struct {
		Success      bool   `json:"success"`
		PID          int    `json:"pid"`
		RunID        string `json:"runId"`
		StartedAt    string `json:"startedAt"`
		DatabasePath string `json:"databasePath"`
		SocketPath   string `json:"socketPath"`
		Engine       struct {
			Running bool   `json:"running"`
			Mode    string `json:"mode"`
		} `json:"engine"`
	}
	decodeJSON(t, rec, &resp)

	if !resp.Success || resp.PID != 4242 || resp.RunID != "run-1" {
		t.Errorf("unexpected daemon identity: %+v", resp)
	}
	if resp.StartedAt != "2025-06-02T08:00:00.000Z" {
		t.Errorf("startedAt = %q", resp.StartedAt)
	}
	if resp.DatabasePath != cfg.DatabasePath() || resp.SocketPath != cfg.SocketPath() {
		t.Errorf("paths = %q / %q", resp.DatabasePath, resp.SocketPath)
	}
	// No engine attached: the pipeline section reports not running.
	if resp.Engine.Running {
		t.Error("expected engine running=false without an attached engine")
	}
}

func TestMetricsEndpointWithEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Web.AuthSecret = ""
	st := testsupport.MustOpenStore(t, cfg)
	eng, err := engine.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	srv, err := web.NewServer(cfg, st, logging.NewNop(), web.WithEngine(eng))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := get(t, srv, "/metrics")
	wantStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "turnstile_frames_processed_total") {
		t.Error("expected engine metric families in /metrics output")
	}
}

func TestBearerAuthGatesAPIRoutes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	srv, err := web.NewServer(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	// Health stays open.
	rec := get(t, srv, "/api/v1/health")
	wantStatus(t, rec, http.StatusOK)

	rec = get(t, srv, "/api/v1/status")
	wantStatus(t, rec, http.StatusUnauthorized)
	var errResp struct {
		Success bool   `json:"success"`
		Kind    string `json:"kind"`
	}
	decodeJSON(t, rec, &errResp)
	if errResp.Success || errResp.Kind != "unauthorized" {
		t.Errorf("unexpected error envelope: %+v", errResp)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	bad := httptest.NewRecorder()
	srv.Router().ServeHTTP(bad, req)
	wantStatus(t, bad, http.StatusUnauthorized)

	token, expires, err := web.MintToken(cfg, "ops", 0)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if time.Until(expires) < time.Hour {
		t.Fatalf("token expiry too soon: %v", expires)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	ok := httptest.NewRecorder()
	srv.Router().ServeHTTP(ok, req)
	wantStatus(t, ok, http.StatusOK)
}

func TestMintTokenRequiresSecret(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Web.AuthSecret = ""
	if _, _, err := web.MintToken(cfg, "ops", time.Hour); err == nil {
		t.Fatal("expected error without an auth secret")
	}
}
