package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/organizations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/organizations/"+id, nil))
	}

	want := `pinovara_http_requests_total{method="GET",route="/organizations/{id}",status="404"} 2`
	if body := scrape(t, m); !strings.Contains(body, want) {
		t.Fatalf("linha ausente: %s", want)
	}
}

func TestSyncAndAuditCounters(t *testing.T) {
	m := New()
	m.SyncFinished("foto", 3, 1, time.Second, false)
	m.SyncFinished("foto", 0, 0, time.Second, true)
	m.AuditWrite(true)
	m.AuditWrite(false)

	body := scrape(t, m)
	for _, want := range []string{
		`pinovara_sync_downloads_total{tipo="foto"} 3`,
		`pinovara_sync_item_errors_total{tipo="foto"} 1`,
		`pinovara_sync_runs_total{resultado="falha",tipo="foto"} 1`,
		`pinovara_audit_writes_total{resultado="falha"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("linha ausente: %s", want)
		}
	}

	var nilMetrics *Metrics
	nilMetrics.SyncFinished("foto", 1, 0, 0, false)
	nilMetrics.AuditWrite(true)
}
