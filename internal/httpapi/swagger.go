//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// swaggerDoc is a trimmed OpenAPI 2 document; `swag init` output can replace
// it by registering under the same name.
const swaggerDoc = `{
  "swagger": "2.0",
  "info": {"title": "lorad API", "version": "1.0", "description": "LoRA model session manager in front of an Ollama-compatible inference service."},
  "basePath": "/",
  "paths": {
    "/api/models/": {"get": {"tags": ["models"], "summary": "List models", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/api/models/load": {"post": {"tags": ["models"], "summary": "Load a model", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "404": {"description": "adapter not found"}, "502": {"description": "swap failed"}, "503": {"description": "inference service unreachable"}}}},
    "/api/models/prompt": {"post": {"tags": ["models"], "summary": "Stream a generation", "consumes": ["application/json"], "produces": ["application/x-ndjson"], "responses": {"200": {"description": "NDJSON stream"}}}},
    "/api/loras/": {"get": {"tags": ["adapters"], "summary": "List adapters", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/api/chatbot/message": {"post": {"tags": ["chatbot"], "summary": "Chatbot message", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/status": {"get": {"summary": "Session status", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}}
  }
}`

type staticDoc string

func (d staticDoc) ReadDoc() string { return string(d) }

func init() {
	if _, err := swag.ReadDoc(); err != nil {
		swag.Register(swag.Name, staticDoc(swaggerDoc))
	}
}

// MountSwagger serves the swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
