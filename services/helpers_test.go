package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"service-nanny/internal/config"
	"service-nanny/internal/manifest"
	"service-nanny/internal/models"
	"service-nanny/internal/runtime"

	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (m *memSink) Record(ctx context.Context, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memSink) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Event, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *memSink) has(service string, action models.EventAction, outcome models.EventOutcome) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.Service == service && ev.Action == action && ev.Outcome == outcome {
			return true
		}
	}
	return false
}

type testEnv struct {
	root      string
	rt        *runtime.Fake
	registry  *Registry
	arbiter   *Arbiter
	health    *HealthMonitor
	sm        *ServiceManager
	events    *memSink
	healthSrv *httptest.Server
}

// newHealthServer answers 200 on /ok and 503 on /bad.
func newHealthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeManifest(t *testing.T, root, name string, exclusive bool, healthURL string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	content := fmt.Sprintf("name: %s\ngpu_required: %t\nhealth_endpoint: %s\nhealth_timeout: 1s\n", name, exclusive, healthURL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "service.yaml"), []byte(content), 0644))
}

// newTestEnv discovers one service per entry, the value says whether it needs the exclusive resource.
func newTestEnv(t *testing.T, services map[string]bool) *testEnv {
	t.Helper()
	env := &testEnv{
		root:      t.TempDir(),
		rt:        runtime.NewFake(),
		arbiter:   NewArbiter(),
		events:    &memSink{},
		healthSrv: newHealthServer(t),
	}
	for name, exclusive := range services {
		writeManifest(t, env.root, name, exclusive, env.healthSrv.URL+"/ok")
	}
	env.registry = NewRegistry(&manifest.Loader{DefaultTimeout: time.Second}, []string{"service-nanny"})
	_, err := env.registry.Discover(env.root)
	require.NoError(t, err)

	env.health = NewHealthMonitor(config.HealthConfig{Concurrency: 2}, nil)
	env.sm = NewServiceManager(env.registry, env.arbiter, env.rt, env.health, env.events, Timeouts{})
	return env
}

func (e *testEnv) dir(name string) string {
	return filepath.Join(e.root, name)
}

func (e *testEnv) holder() string {
	h, _ := e.arbiter.CurrentHolder()
	return h
}
