package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/predictsh/predictd/internal/apierr"
)

// promGauges are the unified dashboard's numbers re-exposed in Prometheus
// format, grounded on kraklabs-cie/pkg/ingestion/metrics.go's sync.Once
// registration pattern. Unlike that package's per-event counters (one Inc
// call per pipeline step), these are gauges refreshed wholesale on every
// /metrics/prom scrape, since the dashboard numbers they mirror are
// themselves computed from KV state rather than accumulated in-process.
type promGauges struct {
	once sync.Once

	rollingHitAt5   prometheus.Gauge
	legacyHits      prometheus.Gauge
	legacyMisses    prometheus.Gauge
	legacyPending   prometheus.Gauge
	tunerBestMean   prometheus.Gauge
	tokensSaved     prometheus.Gauge
	timeSavedSecond prometheus.Gauge
}

var gauges promGauges

func (g *promGauges) init() {
	g.once.Do(func() {
		g.rollingHitAt5 = prometheus.NewGauge(prometheus.GaugeOpts{Name: "predictd_rolling_hit_at_5", Help: "Rolling Hit@5 ratio over the evaluation window"})
		g.legacyHits = prometheus.NewGauge(prometheus.GaugeOpts{Name: "predictd_eval_hits", Help: "Resolved prediction batches marked hit in the current window"})
		g.legacyMisses = prometheus.NewGauge(prometheus.GaugeOpts{Name: "predictd_eval_misses", Help: "Resolved prediction batches marked miss in the current window"})
		g.legacyPending = prometheus.NewGauge(prometheus.GaugeOpts{Name: "predictd_eval_pending", Help: "Prediction batches still awaiting resolution"})
		g.tunerBestMean = prometheus.NewGauge(prometheus.GaugeOpts{Name: "predictd_tuner_best_mean", Help: "Posterior mean of the Weight Tuner's best-performing arm"})
		g.tokensSaved = prometheus.NewGauge(prometheus.GaugeOpts{Name: "predictd_tokens_saved", Help: "Estimated tokens saved via Intent Graph replay"})
		g.timeSavedSecond = prometheus.NewGauge(prometheus.GaugeOpts{Name: "predictd_time_saved_seconds", Help: "Estimated wall-clock seconds saved via Intent Graph replay"})

		prometheus.MustRegister(
			g.rollingHitAt5, g.legacyHits, g.legacyMisses, g.legacyPending,
			g.tunerBestMean, g.tokensSaved, g.timeSavedSecond,
		)
	})
}

func registerMetricsRoutes(r chi.Router, m *Manager) {
	r.Get("/metrics", serveMetrics(m))
	r.Get("/metrics/prom", serveMetricsProm(m))
}

// dashboard is the unified /metrics response: rolling Hit@5, the legacy
// cumulative hit/miss/pending breakdown, tuner arm state, and Intent
// Graph savings, all in one payload so an operator doesn't have to poll
// four endpoints to build one chart.
type dashboard struct {
	RollingHitAt5   float64 `json:"rolling_hit_at_5"`
	Hits            int     `json:"hits"`
	Misses          int     `json:"misses"`
	Pending         int     `json:"pending"`
	Total           int     `json:"total"`
	TunerBestArm    string  `json:"tuner_best_arm"`
	TunerBestMean   float64 `json:"tuner_best_mean"`
	TokensSaved     float64 `json:"tokens_saved"`
	TimeSavedSecond float64 `json:"time_saved_seconds"`
}

func buildDashboard(r *http.Request, m *Manager) (dashboard, error) {
	q := r.URL.Query()
	b, err := m.Resolve(r.Context(), q.Get("project"))
	if err != nil {
		return dashboard{}, err
	}

	window := m.cfg.EvaluationWindow()
	stats, err := b.Evaluator().Stats(r.Context(), window)
	if err != nil {
		return dashboard{}, err
	}

	arms := b.Tuner.Stats()
	bestIdx, _ := b.Tuner.Best()
	bestName := ""
	bestMean := 0.0
	if bestIdx >= 0 && bestIdx < len(arms) {
		bestName = arms[bestIdx].Name
		bestMean = arms[bestIdx].Mean
	}

	graphStats, err := b.IntentGraph().Stats(r.Context())
	if err != nil {
		return dashboard{}, err
	}

	return dashboard{
		RollingHitAt5:   stats.HitAt5,
		Hits:            stats.Hits,
		Misses:          stats.Misses,
		Pending:         stats.Pending,
		Total:           stats.Total,
		TunerBestArm:    bestName,
		TunerBestMean:   bestMean,
		TokensSaved:     graphStats.TokensSaved,
		TimeSavedSecond: graphStats.TimeSavedSecond,
	}, nil
}

func serveMetrics(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		d, err := buildDashboard(r, m)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		apierr.WriteTimed(w, http.StatusOK, start, d)
	}
}

// serveMetricsProm refreshes the package-level gauges from the same
// dashboard computation serveMetrics uses, then delegates to
// promhttp.Handler(), matching kraklabs-cie's cmd/cie/index.go wiring of
// promhttp.Handler() onto a dedicated mux route.
func serveMetricsProm(m *Manager) http.HandlerFunc {
	gauges.init()
	handler := promhttp.Handler()
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := buildDashboard(r, m)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		gauges.rollingHitAt5.Set(d.RollingHitAt5)
		gauges.legacyHits.Set(float64(d.Hits))
		gauges.legacyMisses.Set(float64(d.Misses))
		gauges.legacyPending.Set(float64(d.Pending))
		gauges.tunerBestMean.Set(d.TunerBestMean)
		gauges.tokensSaved.Set(d.TokensSaved)
		gauges.timeSavedSecond.Set(d.TimeSavedSecond)
		handler.ServeHTTP(w, r)
	}
}
