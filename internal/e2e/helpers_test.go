package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/adapters"
	"lorad/internal/httpapi"
	"lorad/internal/inference"
	"lorad/internal/manager"
)

// fakeOllama is a stateful stand-in for the inference service's REST API.
type fakeOllama struct {
	mu      sync.Mutex
	models  []string
	calls   []string
	failGen string // model whose generation breaks after two tokens
}

func newFakeOllama(t *testing.T, models ...string) (*fakeOllama, *httptest.Server) {
	t.Helper()
	f := &fakeOllama{models: append([]string(nil), models...)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOllama) has(name string) bool {
	name = strings.TrimSuffix(name, ":latest")
	for _, m := range f.models {
		if strings.TrimSuffix(m, ":latest") == name {
			return true
		}
	}
	return false
}

func (f *fakeOllama) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeOllama) count(prefix string) int {
	n := 0
	for _, c := range f.callLog() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeOllama) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		_ = json.Unmarshal(b, &body)
	}
	str := func(k string) string { s, _ := body[k].(string); return s }

	f.mu.Lock()
	defer f.mu.Unlock()
	notFound := func(name string) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model '`+name+`' not found"}`)
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/tags":
		f.calls = append(f.calls, "tags")
		type entry struct {
			Name string `json:"name"`
		}
		out := struct {
			Models []entry `json:"models"`
		}{Models: []entry{}}
		for _, m := range f.models {
			out.Models = append(out.Models, entry{Name: m})
		}
		_ = json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodPost && r.URL.Path == "/api/create":
		f.calls = append(f.calls, "create "+str("model"))
		f.models = append(f.models, str("model")+":latest")
		_, _ = io.WriteString(w, `{"status":"success"}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/api/delete":
		name := str("model")
		f.calls = append(f.calls, "delete "+name)
		if !f.has(name) {
			notFound(name)
			return
		}
		out := f.models[:0]
		for _, m := range f.models {
			if strings.TrimSuffix(m, ":latest") != name {
				out = append(out, m)
			}
		}
		f.models = out
	case r.Method == http.MethodPost && r.URL.Path == "/api/generate":
		name := str("model")
		if !f.has(name) {
			f.calls = append(f.calls, "generate "+name)
			notFound(name)
			return
		}
		if stream, ok := body["stream"].(bool); ok && !stream {
			if _, unload := body["keep_alive"]; unload {
				f.calls = append(f.calls, "unload "+name)
			} else if str("prompt") == "" {
				f.calls = append(f.calls, "confirm "+name)
			} else {
				f.calls = append(f.calls, "generate_once "+name)
			}
			_, _ = io.WriteString(w, `{"model":"`+name+`","response":"once:`+name+`","done":true}`)
			return
		}
		f.calls = append(f.calls, "generate "+name)
		w.Header().Set("Content-Type", "application/x-ndjson")
		for i, tok := range []string{"Hello", " from ", name} {
			if name == f.failGen && i == 2 {
				_, _ = io.WriteString(w, `{"error":"runner crashed"}`+"\n")
				return
			}
			_, _ = io.WriteString(w, `{"model":"`+name+`","response":"`+tok+`","done":false}`+"\n")
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
		_, _ = io.WriteString(w, `{"model":"`+name+`","response":"","done":true}`+"\n")
	default:
		http.NotFound(w, r)
	}
}

// newStack wires a real adapter store, HTTP inference client, manager and
// router against upstream. Files maps adapter names to sizes in bytes.
func newStack(t *testing.T, upstream string, files map[string]int) (*httptest.Server, *manager.Manager) {
	t.Helper()
	dir := t.TempDir()
	for name, size := range files {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatalf("write adapter %s: %v", name, err)
		}
	}
	store, err := adapters.New(dir, "/srv/loras", 1024)
	if err != nil {
		t.Fatalf("adapter store: %v", err)
	}
	client := inference.NewHTTPClient(inference.Options{BaseURL: upstream, RequestTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Store:          store,
		Client:         client,
		DefaultModel:   "llama3",
		UnloadPrevious: true,
		Logger:         zerolog.Nop(),
	})
	t.Cleanup(func() { _ = mgr.Close() })
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpPostJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	buf, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}
