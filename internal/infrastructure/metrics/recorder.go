// Package metrics expone contadores Prometheus del flujo de autorización de CAE.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config etiquetas constantes de todas las series.
type Config struct {
	ServiceName string
	Environment string
}

// Recorder implementa billing.Recorder sobre un Registerer.
type Recorder struct {
	caeAttempts   *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	batchRuns     *prometheus.CounterVec
	batchItems    *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewRecorder registra las series en registerer (DefaultRegisterer si es nil).
func NewRecorder(registerer prometheus.Registerer, cfg Config) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "arca-facturacion"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	constLabels := prometheus.Labels{"service": service, "env": env}

	r := &Recorder{
		caeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "arca_cae_attempts_total",
			Help:        "Intentos de autorización de CAE por origen y resultado.",
			ConstLabels: constLabels,
		}, []string{"source", "outcome"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "arca_wsaa_token_refresh_total",
			Help:        "Renovaciones del ticket de acceso del WSAA.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		batchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "arca_cae_batch_runs_total",
			Help:        "Ejecuciones del reintento masivo por modo.",
			ConstLabels: constLabels,
		}, []string{"mode"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "arca_cae_batch_items_total",
			Help:        "Facturas procesadas por el reintento masivo por resultado.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "arca_cae_batch_duration_seconds",
			Help:        "Duración del reintento masivo.",
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}),
	}
	registerer.MustRegister(r.caeAttempts, r.tokenRefresh, r.batchRuns, r.batchItems, r.batchDuration)
	return r
}

// CAEAttempt cuenta un intento terminado.
func (r *Recorder) CAEAttempt(source, outcome string) {
	r.caeAttempts.WithLabelValues(source, outcome).Inc()
}

// TokenRefresh cuenta una renovación del ticket, exitosa o no.
func (r *Recorder) TokenRefresh(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.tokenRefresh.WithLabelValues(result).Inc()
}

// BatchRun registra una corrida completa del reintento masivo.
func (r *Recorder) BatchRun(mock bool, authorized, rejected, skipped, errors int, elapsed time.Duration) {
	mode := "live"
	if mock {
		mode = "mock"
	}
	r.batchRuns.WithLabelValues(mode).Inc()
	r.batchItems.WithLabelValues("authorized").Add(float64(authorized))
	r.batchItems.WithLabelValues("rejected").Add(float64(rejected))
	r.batchItems.WithLabelValues("skipped").Add(float64(skipped))
	r.batchItems.WithLabelValues("error").Add(float64(errors))
	r.batchDuration.Observe(elapsed.Seconds())
}
