package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountWritesByOperation(t *testing.T) {
	f := newFixture(t, testTokens)

	f.do(t, http.MethodPost, "/layouts", "tok-alice", input("dashboard", `{"v":1}`))
	f.do(t, http.MethodPut, "/layouts/dashboard", "tok-alice", map[string]any{"layout_config": map[string]int{"v": 2}})
	f.do(t, http.MethodPost, "/layouts/sync", "tok-alice", []any{input("editor", `{}`), input("sidebar", `{}`)})
	f.do(t, http.MethodDelete, "/layouts/editor", "tok-alice", nil)

	m := f.srv.metrics
	for op, want := range map[string]float64{"upsert": 1, "update": 1, "sync": 2, "delete": 1} {
		if got := testutil.ToFloat64(m.layoutWrites.WithLabelValues(op)); got != want {
			t.Errorf("writes{op=%q} = %v, want %v", op, got, want)
		}
	}
}

func TestMetricsRejectedBatchIsNotCounted(t *testing.T) {
	f := newFixture(t, testTokens)
	w := f.do(t, http.MethodPost, "/layouts/sync", "tok-alice", []any{input("editor", `{}`), input("", `{}`)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := testutil.ToFloat64(f.srv.metrics.layoutWrites.WithLabelValues("sync")); got != 0 {
		t.Fatalf("rejected batch counted %v writes", got)
	}
}

func TestMetricsRequestsLabelledByRoute(t *testing.T) {
	f := newFixture(t, testTokens)
	f.do(t, http.MethodGet, "/layouts/missing", "tok-alice", nil)
	f.do(t, http.MethodGet, "/layouts/other", "tok-alice", nil)

	got := testutil.ToFloat64(f.srv.metrics.requestTotal.WithLabelValues("GET /layouts/{type}", "404"))
	if got != 2 {
		t.Fatalf("requests{route=GET /layouts/{type},status=404} = %v, want 2", got)
	}
}

func TestMetricsEndpointIsExemptFromAuth(t *testing.T) {
	f := newFixture(t, testTokens)
	f.do(t, http.MethodPost, "/layouts", "tok-alice", input("dashboard", `{}`))

	w := f.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"layouts_writes_total", "layouts_http_requests_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
