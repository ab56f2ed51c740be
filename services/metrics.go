package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RunKindSync     = "sync"
	RunKindInvoices = "invoices"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	recordsInserted   prometheus.Counter
	duplicatesSkipped prometheus.Counter
	entriesSkipped    prometheus.Counter
	invoicesGenerated prometheus.Counter
	invoiceFailures   prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zaptec_invoices_runs_total",
			Help: "Sync and invoice runs by kind and result.",
		}, []string{"kind", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zaptec_invoices_run_duration_seconds",
			Help:    "Duration of sync and invoice runs.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		recordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zaptec_invoices_consumption_records_inserted_total",
			Help: "Consumption records stored by sync.",
		}),
		duplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zaptec_invoices_consumption_duplicates_total",
			Help: "Sessions skipped because the same charger and dates were already stored.",
		}),
		entriesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zaptec_invoices_sessions_skipped_total",
			Help: "Malformed sessions skipped by sync.",
		}),
		invoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zaptec_invoices_generated_total",
			Help: "Invoices generated.",
		}),
		invoiceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zaptec_invoices_generation_failures_total",
			Help: "Owners whose invoice could not be rendered or stored.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.runs, m.runDuration, m.recordsInserted, m.duplicatesSkipped,
			m.entriesSkipped, m.invoicesGenerated, m.invoiceFailures,
		)
	}
	return m
}

func (m *Metrics) observeRun(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(kind, result).Inc()
	m.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) observeSync(res *SyncResult) {
	if m == nil || res == nil {
		return
	}
	m.recordsInserted.Add(float64(res.RecordsInserted))
	m.duplicatesSkipped.Add(float64(res.DuplicatesSkipped))
	m.entriesSkipped.Add(float64(res.EntriesSkipped))
}

func (m *Metrics) invoiceGenerated() {
	if m != nil {
		m.invoicesGenerated.Inc()
	}
}

func (m *Metrics) invoiceFailed() {
	if m != nil {
		m.invoiceFailures.Inc()
	}
}
