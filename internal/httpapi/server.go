package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lorad/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels(ctx context.Context) ([]types.ModelInfo, error)
	ListAdapters() ([]types.AdapterInfo, error)
	Ensure(ctx context.Context, ref types.ModelRef) (types.LoadResult, error)
	Generate(ctx context.Context, ref types.ModelRef, prompt string, maxTokens int, onDelta func(types.TextDelta) error) (types.LoadResult, error)
	Complete(ctx context.Context, ref types.ModelRef, prompt string, maxTokens int) (string, types.LoadResult, error)
	Status() types.StatusResponse
	Ready(ctx context.Context) error
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedMethods:   corsAllowedMethods,
			AllowedHeaders:   corsAllowedHeaders,
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Route("/api", func(r chi.Router) {
		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.listModels)
			r.Post("/load", h.load)
			r.Post("/prompt", h.prompt)
		})
		r.Get("/loras/", h.listAdapters)
		r.Post("/chatbot/message", h.chat)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ready(r.Context()); err != nil {
			zlog.Debug().Err(err).Msg("not ready")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("error"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

type handlers struct {
	svc Service
}

// listModels godoc
// @Summary      List models
// @Description  Models known to the inference service, default model first when missing upstream.
// @Tags         models
// @Produce      json
// @Success      200  {array}   types.ModelName
// @Failure      502  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /api/models/ [get]
func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.ListModels(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]types.ModelName, 0, len(models))
	for _, m := range models {
		out = append(out, types.ModelName{Name: m.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

// listAdapters godoc
// @Summary      List adapters
// @Tags         adapters
// @Produce      json
// @Success      200  {array}   types.AdapterInfo
// @Router       /api/loras/ [get]
func (h *handlers) listAdapters(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListAdapters()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// load godoc
// @Summary      Load a model
// @Description  Makes base model (+ optional adapter) the active model, swapping if needed.
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        request  body      types.LoadRequest  true  "model to load"
// @Success      200      {object}  types.LoadResult
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /api/models/load [post]
func (h *handlers) load(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ModelName) == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	res, err := h.svc.Ensure(ctx, modelRef(req.ModelName, req.AdapterName))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// prompt godoc
// @Summary      Stream a generation
// @Description  Ensures the model, then streams NDJSON records {"response": "..."}. A failure after the first record ends the stream with {"error": "..."}.
// @Tags         models
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request  body      types.PromptRequest  true  "prompt"
// @Success      200      {object}  types.StreamRecord
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /api/models/prompt [post]
func (h *handlers) prompt(w http.ResponseWriter, r *http.Request) {
	var req types.PromptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ModelName) == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	if strings.TrimSpace(req.PromptText) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt_text is required")
		return
	}

	start := time.Now()
	if ev := requestEvent(r, LevelInfo); ev != nil {
		ev.Str("model", req.ModelName).Str("adapter", req.AdapterName).Msg("prompt start")
	}
	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := h.promptContext(r)
	defer cancel()

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	out := io.Writer(w)
	if requestLogLevel(r) >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{reqID: middleware.GetReqID(r.Context())})
	}
	enc := json.NewEncoder(out)
	started := false
	_, err := h.svc.Generate(ctx, modelRef(req.ModelName, req.AdapterName), req.PromptText, req.MaxTokens, func(d types.TextDelta) error {
		if d.Response == "" {
			return nil
		}
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(types.StreamRecord{Response: d.Response}); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	})
	switch {
	case err == nil:
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
		}
	case started && (r.Context().Err() != nil || serverBaseCtx.Err() != nil):
		// client went away or shutting down
		countStreamTermination("canceled")
		return
	case started:
		countStreamTermination("upstream")
		_ = enc.Encode(types.StreamRecord{Error: err.Error()})
		if flush != nil {
			flush()
		}
	default:
		h.fail(w, r, err)
		return
	}
	if ev := requestEvent(r, LevelInfo); ev != nil {
		ev.Bool("stream_error", err != nil).Dur("dur", time.Since(start)).Msg("prompt end")
	}
}

// chat godoc
// @Summary      Chatbot message
// @Description  Single-shot generation against the default model.
// @Tags         chatbot
// @Accept       json
// @Produce      json
// @Param        request  body      types.ChatRequest  true  "message"
// @Success      200      {object}  types.ChatResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /api/chatbot/message [post]
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	ctx, cancel := h.promptContext(r)
	defer cancel()
	text, _, err := h.svc.Complete(ctx, types.ModelRef{}, req.Message, req.MaxTokens)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ChatResponse{Text: text})
}

func (h *handlers) promptContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if promptTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, time.Duration(promptTimeout)*time.Second)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

// fail maps err to a JSON error response unless the client already left.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	if serverBaseCtx.Err() != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	status := statusFor(err)
	if ev := requestEvent(r, LevelError); ev != nil {
		ev.Int("status", status).Err(err).Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
}

func modelRef(model, adapter string) types.ModelRef {
	return types.ModelRef{BaseModel: strings.TrimSpace(model), Adapter: types.AdapterRef{Name: strings.TrimSpace(adapter)}}
}

// decodeJSON enforces the content type and body limit and decodes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// oversize bodies also land here; do not leak the limit
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Err(err).Msg("failed to encode response")
	}
}
