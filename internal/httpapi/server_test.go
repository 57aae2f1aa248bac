package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lorad/pkg/types"
)

type mockService struct {
	models    []types.ModelInfo
	adapters  []types.AdapterInfo
	status    types.StatusResponse
	readyErr  error
	listErr   error
	ensureErr error
	loadRes   types.LoadResult
	// deltas are relayed by Generate before genErr is returned
	deltas  []string
	genErr  error
	text    string
	lastRef types.ModelRef
	lastMax int
}

func (m *mockService) ListModels(ctx context.Context) ([]types.ModelInfo, error) {
	return m.models, m.listErr
}

func (m *mockService) ListAdapters() ([]types.AdapterInfo, error) { return m.adapters, nil }

func (m *mockService) Ensure(ctx context.Context, ref types.ModelRef) (types.LoadResult, error) {
	m.lastRef = ref
	if m.ensureErr != nil {
		return types.LoadResult{}, m.ensureErr
	}
	return m.loadRes, nil
}

func (m *mockService) Generate(ctx context.Context, ref types.ModelRef, prompt string, maxTokens int, onDelta func(types.TextDelta) error) (types.LoadResult, error) {
	m.lastRef, m.lastMax = ref, maxTokens
	if m.ensureErr != nil {
		return types.LoadResult{}, m.ensureErr
	}
	for _, d := range m.deltas {
		if err := onDelta(types.TextDelta{Response: d}); err != nil {
			return m.loadRes, err
		}
	}
	if m.genErr == nil {
		_ = onDelta(types.TextDelta{Done: true})
	}
	return m.loadRes, m.genErr
}

func (m *mockService) Complete(ctx context.Context, ref types.ModelRef, prompt string, maxTokens int) (string, types.LoadResult, error) {
	m.lastRef, m.lastMax = ref, maxTokens
	if m.genErr != nil {
		return "", types.LoadResult{}, m.genErr
	}
	return m.text, m.loadRes, nil
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready(ctx context.Context) error { return m.readyErr }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func ndjsonRecords(t *testing.T, body string) []types.StreamRecord {
	t.Helper()
	var out []types.StreamRecord
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var rec types.StreamRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.ModelInfo{{Name: "llama3"}, {Name: "mistral:latest", Size: 10}}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/models/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body) != 2 || body[0]["name"] != "llama3" || len(body[1]) != 1 {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestModelsHandler_UpstreamDown(t *testing.T) {
	svc := &mockService{listErr: unreachable()}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/models/", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestAdaptersHandler(t *testing.T) {
	svc := &mockService{adapters: []types.AdapterInfo{{Name: "fin.safetensors", SizeBytes: 1 << 24, Classification: "real"}}}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/loras/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"classification":"real"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", ActiveModel: "llama3", SwapsTotal: 3}}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.ActiveModel != "llama3" || body.SwapsTotal != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{readyErr: errors.New("connection refused")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestLoadHandler(t *testing.T) {
	svc := &mockService{loadRes: types.LoadResult{Status: types.LoadSuccess, Loaded: "llama3-with-fin", Composite: true}}
	w := postJSON(t, NewMux(svc), "/api/models/load", `{"model_name":"llama3","adapter_name":"fin.safetensors"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var res types.LoadResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("json: %v", err)
	}
	if res.Status != types.LoadSuccess || res.Loaded != "llama3-with-fin" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if svc.lastRef.BaseModel != "llama3" || svc.lastRef.Adapter.Name != "fin.safetensors" {
		t.Fatalf("unexpected ref: %+v", svc.lastRef)
	}
}

func TestLoadHandler_Validation(t *testing.T) {
	h := NewMux(&mockService{})
	if w := postJSON(t, h, "/api/models/load", `{"adapter_name":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing model_name: status=%d", w.Code)
	}
	if w := postJSON(t, h, "/api/models/load", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status=%d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/models/load", strings.NewReader(`{"model_name":"m"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type: status=%d", w.Code)
	}
}

func TestPromptStreamsNDJSON(t *testing.T) {
	svc := &mockService{deltas: []string{"Hel", "lo"}}
	w := postJSON(t, NewMux(svc), "/api/models/prompt", `{"model_name":"llama3","prompt_text":"hi","max_tokens":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	recs := ndjsonRecords(t, w.Body.String())
	if len(recs) != 2 || recs[0].Response != "Hel" || recs[1].Response != "lo" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if svc.lastMax != 7 {
		t.Fatalf("max_tokens not forwarded: %d", svc.lastMax)
	}
}

func TestPromptMidStreamErrorEndsWithErrorRecord(t *testing.T) {
	svc := &mockService{deltas: []string{"a", "b", "c"}, genErr: errors.New("generation interrupted")}
	w := postJSON(t, NewMux(svc), "/api/models/prompt", `{"model_name":"llama3","prompt_text":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	recs := ndjsonRecords(t, w.Body.String())
	if len(recs) != 4 || recs[2].Response != "c" || recs[3].Error != "generation interrupted" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestPromptErrorBeforeFirstByteIsJSON(t *testing.T) {
	svc := &mockService{ensureErr: mockHTTPError{msg: "nope", code: http.StatusTeapot}}
	w := postJSON(t, NewMux(svc), "/api/models/prompt", `{"model_name":"llama3","prompt_text":"hi"}`)
	if w.Code != http.StatusTeapot {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error != "nope" || body.Code != http.StatusTeapot {
		t.Fatalf("body=%s err=%v", w.Body.String(), err)
	}
}

func TestPromptValidation(t *testing.T) {
	h := NewMux(&mockService{})
	if w := postJSON(t, h, "/api/models/prompt", `{"model_name":"llama3","prompt_text":"  "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt: status=%d", w.Code)
	}
	if w := postJSON(t, h, "/api/models/prompt", `{"prompt_text":"hi"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing model: status=%d", w.Code)
	}
}

func TestChatHandler(t *testing.T) {
	svc := &mockService{text: "a LoRA adapter is..."}
	w := postJSON(t, NewMux(svc), "/api/chatbot/message", `{"message":"what is lora?","max_tokens":32}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var res types.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Text != "a LoRA adapter is..." {
		t.Fatalf("body=%s err=%v", w.Body.String(), err)
	}
	if svc.lastRef != (types.ModelRef{}) || svc.lastMax != 32 {
		t.Fatalf("chat must target the default model: %+v max=%d", svc.lastRef, svc.lastMax)
	}
	if w := postJSON(t, NewMux(svc), "/api/chatbot/message", `{"message":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty message: status=%d", w.Code)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(0)
	w := postJSON(t, NewMux(&mockService{}), "/api/models/load", `{"model_name":"`+strings.Repeat("x", 64)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}
