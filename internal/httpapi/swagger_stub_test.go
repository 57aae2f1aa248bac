//go:build !swagger

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMountSwagger_NoOp(t *testing.T) {
	r := chi.NewRouter()
	MountSwagger(r)
	if n := len(r.Routes()); n != 0 {
		t.Fatalf("expected no routes without the swagger tag, got %d", n)
	}
}

func TestSwaggerNotServedByDefault(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for /swagger without the swagger tag, got %d", rec.Code)
	}
}
