package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fentz26/drover/internal/actions"
	"github.com/fentz26/drover/internal/device"
	"github.com/fentz26/drover/internal/engine"
	"github.com/fentz26/drover/internal/jobs"
	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/orchestrator"
	"github.com/fentz26/drover/internal/screen"
	"github.com/fentz26/drover/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	provider := device.NewStaticProvider()
	eng := engine.New(engine.Deps{
		Store:      s,
		Jobs:       jobs.New(s, slog.Default()),
		Registry:   actions.NewRegistry(),
		Classifier: screen.NewMarkerClassifier("com.example.app"),
		Provider:   provider,
		Logger:     slog.Default(),
		AppPackage: "com.example.app",
	})
	orch := orchestrator.New(s, eng, provider, orchestrator.DefaultConfig(), slog.Default())

	return New("127.0.0.1:0", Deps{Store: s, Orchestrator: orch, Logger: slog.Default()}), s
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doGet(t, srv, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDevicesEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	if _, err := s.CreateDevice("", "bench"); err != nil {
		t.Fatalf("create device: %v", err)
	}

	rec := doGet(t, srv, "/v1/devices")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Devices []models.Device `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Devices) != 1 || body.Devices[0].Name != "bench" {
		t.Errorf("unexpected devices payload: %+v", body.Devices)
	}
}

func TestJobsEndpointFiltersByStatus(t *testing.T) {
	srv, s := newTestServer(t)
	if _, err := s.CreateJob(store.CreateJobParams{Kind: models.ActionFollow, Target: "account:brand"}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	rec := doGet(t, srv, "/v1/jobs?status=active")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Jobs []models.JobDefinition `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Jobs) != 1 {
		t.Fatalf("expected one active job, got %+v", body.Jobs)
	}

	rec = doGet(t, srv, "/v1/jobs?status=completed")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Jobs) != 0 {
		t.Errorf("expected no completed jobs, got %+v", body.Jobs)
	}
}

func TestStatusEndpointEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doGet(t, srv, "/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Devices map[string]orchestrator.DeviceStatus `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Devices) != 0 {
		t.Errorf("expected no running workers, got %+v", body.Devices)
	}
}
