package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/ordna/internal/adapters/server/common"
	"github.com/hylla/ordna/internal/app"
)

func newTestService(t *testing.T) common.EngineService {
	t.Helper()
	var seq int
	idGen := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	clock := func() time.Time {
		return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	}
	engine := app.NewEngine(app.Config{}, idGen, clock, charmLog.New(io.Discard))
	t.Cleanup(engine.Close)
	return common.NewEngineAdapter(engine)
}

func TestNewHandlerServesHealthAndAPI(t *testing.T) {
	handler, cfg, err := NewHandler(Config{}, newTestService(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/nodes",
		strings.NewReader(`{"id":"a","duration":"1h"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit node: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/order", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("order: status %d", rec.Code)
	}
	var payload struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if len(payload.Order) != 1 || payload.Order[0] != "a" {
		t.Fatalf("unexpected order %v", payload.Order)
	}
}

func TestNewHandlerRejectsEndpointCollision(t *testing.T) {
	_, _, err := NewHandler(Config{APIEndpoint: "/same", MCPEndpoint: "/same"}, newTestService(t))
	if err == nil {
		t.Fatal("expected endpoint collision error")
	}
}

func TestNewHandlerRequiresService(t *testing.T) {
	if _, _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("expected error for nil engine service")
	}
}
