package metrics

import (
	"time"

	"github.com/blackmichael/profile-sync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exposes pipeline outcomes as Prometheus metrics. It implements
// domain.ReportSink and domain.UpsertObserver.
type Recorder struct {
	profilesTotal  *prometheus.CounterVec
	upsertDuration *prometheus.HistogramVec
	upsertTotal    *prometheus.CounterVec
	lastSuccessTS  *prometheus.GaugeVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		profilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profile_sync",
			Name:      "profiles_processed_total",
			Help:      "Profiles processed, by terminal status and record type",
		}, []string{"status", "record_type"}),
		upsertDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "profile_sync",
			Name:      "upsert_duration_seconds",
			Help:      "Time spent executing record upserts",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		upsertTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profile_sync",
			Name:      "upserts_total",
			Help:      "Record upserts, by table and result",
		}, []string{"table", "result"}),
		lastSuccessTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "profile_sync",
			Name:      "last_persisted_timestamp_seconds",
			Help:      "Unix time of the last successful persistence per profile",
		}, []string{"handle"}),
	}
	reg.MustRegister(r.profilesTotal, r.upsertDuration, r.upsertTotal, r.lastSuccessTS)
	return r
}

// Publish counts a pipeline report.
func (r *Recorder) Publish(report domain.Report) {
	r.profilesTotal.WithLabelValues(string(report.Status), string(report.RecordType)).Inc()
	if report.Status == domain.StatusPersisted {
		r.lastSuccessTS.WithLabelValues(report.ProfileHandle).Set(float64(report.ProcessedAt.Unix()))
	}
}

// ObserveUpsert records the latency and result of an upsert.
func (r *Recorder) ObserveUpsert(table string, elapsed time.Duration, success bool) {
	r.upsertDuration.WithLabelValues(table).Observe(elapsed.Seconds())
	result := "success"
	if !success {
		result = "failure"
	}
	r.upsertTotal.WithLabelValues(table, result).Inc()
}
