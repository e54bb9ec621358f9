package httpapi

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

func newTestHandler(t *testing.T) *Handler {
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
	return NewHandler(common.NewEngineAdapter(engine))
}

func doRequest(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var envelope ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error
}

func seedChain(t *testing.T, h *Handler) {
	t.Helper()
	for _, node := range []string{
		`{"id":"design","title":"Design","duration":"2h"}`,
		`{"id":"build","title":"Build","duration":"4h"}`,
		`{"id":"review","title":"Review","duration":"1h"}`,
	} {
		if rec := doRequest(t, h, http.MethodPost, "/nodes", node); rec.Code != http.StatusCreated {
			t.Fatalf("seed node: status %d body %s", rec.Code, rec.Body.String())
		}
	}
	for _, edge := range []string{
		`{"from":"design","to":"build"}`,
		`{"from":"build","to":"review"}`,
	} {
		if rec := doRequest(t, h, http.MethodPost, "/edges", edge); rec.Code != http.StatusCreated {
			t.Fatalf("seed edge: status %d body %s", rec.Code, rec.Body.String())
		}
	}
}

func TestSubmitNodeAndOrderEndpoint(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodGet, "/order", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	want := []string{"design", "build", "review"}
	if len(payload.Order) != 3 || payload.Order[0] != want[0] || payload.Order[2] != want[2] {
		t.Fatalf("unexpected order %v", payload.Order)
	}
}

func TestSubmitEdgeCycleConflict(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodPost, "/edges", `{"from":"review","to":"design"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	if apiErr := decodeError(t, rec); apiErr.Code != "cycle_rejected" {
		t.Fatalf("unexpected error code %q", apiErr.Code)
	}
}

func TestCriticalPathEndpoint(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodGet, "/critical_path", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var view common.CriticalPathView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode critical path: %v", err)
	}
	if len(view.Path) != 3 {
		t.Fatalf("chain nodes are all critical, got %v", view.Path)
	}
	if got := view.ProjectFinish.Sub(view.Anchor); got != 7*time.Hour {
		t.Fatalf("unexpected project span %v", got)
	}
}

func TestNodeScheduleEndpoint(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodGet, "/nodes/build/schedule", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var sched common.ScheduleView
	if err := json.NewDecoder(rec.Body).Decode(&sched); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if !sched.OnCriticalPath || sched.Slack != "0s" {
		t.Fatalf("unexpected schedule %+v", sched)
	}

	rec = doRequest(t, h, http.MethodGet, "/nodes/ghost/schedule", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown node: status %d", rec.Code)
	}
}

func TestOverrideEndpoints(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodPost, "/edges/id-4/override", `{"actor":"sam","reason":"spike"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("override: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodDelete, "/edges/id-4/override", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear override: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodDelete, "/edges/ghost/override", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown edge: status %d", rec.Code)
	}
}

func TestRemoveNodeCascade(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodDelete, "/nodes/build", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("incident edges must block plain delete, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodDelete, "/nodes/build?cascade=true", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cascade delete: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateNodeEndpoint(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodPatch, "/nodes/design", `{"duration":"3h"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", rec.Code, rec.Body.String())
	}
	var node common.NodeView
	if err := json.NewDecoder(rec.Body).Decode(&node); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	if node.Duration != "3h0m0s" {
		t.Fatalf("unexpected duration %q", node.Duration)
	}

	rec = doRequest(t, h, http.MethodPatch, "/nodes/design", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: status %d", rec.Code)
	}
}

func TestRiskAndRankingEndpoints(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodPost, "/risk", `{"node_id":"build","value":0.9}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("risk: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodPost, "/risk", `{"node_id":"build","value":1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range risk: status %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/ranking", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ranking: status %d", rec.Code)
	}
	var payload struct {
		Ranking []common.ScoreView `json:"ranking"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode ranking: %v", err)
	}
	if len(payload.Ranking) != 3 || payload.Ranking[0].Rank != 1 {
		t.Fatalf("unexpected ranking %+v", payload.Ranking)
	}
}

func TestEventsEndpoint(t *testing.T) {
	h := newTestHandler(t)
	seedChain(t, h)

	rec := doRequest(t, h, http.MethodGet, "/events?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events: status %d", rec.Code)
	}
	var payload struct {
		Events []common.EventView `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(payload.Events) == 0 || len(payload.Events) > 5 {
		t.Fatalf("unexpected event count %d", len(payload.Events))
	}

	rec = doRequest(t, h, http.MethodGet, "/events?limit=zero", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d", rec.Code)
	}
}

func TestMethodGuards(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(t, h, http.MethodDelete, "/order", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("unexpected Allow header %q", allow)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(t, h, http.MethodGet, "/boards", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMalformedBodyFailsClosed(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/nodes", `{"id":"a","duration":"1h"} trailing`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("trailing content: status %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/nodes", `{"id":"a","surprise":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", rec.Code)
	}
}
