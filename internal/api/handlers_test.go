package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"tabula/pkg/logger"
)

func newTestRouter(a *API) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, a)
	return router
}

func TestTextHandlerRejectsMissingFields(t *testing.T) {
	a := NewAPI(nil, nil, logger.New("test", "", ""))
	router := newTestRouter(a)

	cases := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"missing uid", `{"text": "hello"}`},
		{"missing text", `{"uid": "m1"}`},
		{"not json", `hello`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/text", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body["error"] == "" {
				t.Error("error body missing an error message")
			}
		})
	}
}

func TestHealthHandlerAllHealthy(t *testing.T) {
	checks := []HealthCheck{
		{Name: "milvus", Check: func(ctx context.Context) error { return nil }},
		{Name: "mysql", Check: func(ctx context.Context) error { return nil }},
	}
	a := NewAPI(nil, checks, logger.New("test", "", ""))
	router := newTestRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Dependencies["milvus"] != "ok" || body.Dependencies["mysql"] != "ok" {
		t.Errorf("dependencies = %v", body.Dependencies)
	}
}

func TestHealthHandlerFailingDependency(t *testing.T) {
	checks := []HealthCheck{
		{Name: "milvus", Check: func(ctx context.Context) error { return nil }},
		{Name: "redis", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
	}
	a := NewAPI(nil, checks, logger.New("test", "", ""))
	router := newTestRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Dependencies["milvus"] != "ok" {
		t.Errorf("healthy dependency reported as %q", body.Dependencies["milvus"])
	}
	if !strings.Contains(body.Dependencies["redis"], "connection refused") {
		t.Errorf("failing dependency detail = %q", body.Dependencies["redis"])
	}
}
