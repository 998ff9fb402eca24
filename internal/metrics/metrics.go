package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa os coletores da API em um registro próprio.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	syncRuns       *prometheus.CounterVec
	syncDownloads  *prometheus.CounterVec
	syncItemErrors *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec

	auditWrites *prometheus.CounterVec
}

// New cria e registra todos os coletores.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pinovara_http_in_flight_requests",
			Help: "Requisições HTTP em andamento.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinovara_http_requests_total",
			Help: "Total de requisições HTTP.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pinovara_http_request_duration_seconds",
			Help:    "Latência das requisições HTTP.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinovara_sync_runs_total",
			Help: "Execuções de sincronização por tipo e resultado.",
		}, []string{"tipo", "resultado"}),
		syncDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinovara_sync_downloads_total",
			Help: "Anexos baixados do ODK.",
		}, []string{"tipo"}),
		syncItemErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinovara_sync_item_errors_total",
			Help: "Falhas individuais de anexos durante a sincronização.",
		}, []string{"tipo"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pinovara_sync_duration_seconds",
			Help:    "Duração da reconciliação de uma organização.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"tipo"}),
		auditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinovara_audit_writes_total",
			Help: "Gravações do log de auditoria por resultado.",
		}, []string{"resultado"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.syncRuns, m.syncDownloads, m.syncItemErrors, m.syncDuration,
		m.auditWrites,
	)
	return m
}

// Registry expõe o registro para testes e exportação.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler publica o registro no formato do Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument mede volume, latência e requisições em voo usando o padrão de rota do chi.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, route, strconv.Itoa(status)}
		m.httpRequestsTotal.WithLabelValues(labels...).Inc()
		m.httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// SyncFinished registra uma reconciliação concluída.
func (m *Metrics) SyncFinished(tipo string, baixadas, erros int, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "falha"
	}
	m.syncRuns.WithLabelValues(tipo, result).Inc()
	m.syncDownloads.WithLabelValues(tipo).Add(float64(baixadas))
	m.syncItemErrors.WithLabelValues(tipo).Add(float64(erros))
	m.syncDuration.WithLabelValues(tipo).Observe(elapsed.Seconds())
}

// AuditWrite contabiliza uma gravação de auditoria.
func (m *Metrics) AuditWrite(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.auditWrites.WithLabelValues("ok").Inc()
		return
	}
	m.auditWrites.WithLabelValues("falha").Inc()
}
