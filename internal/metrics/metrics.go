// Package metrics keeps run counters on a private Prometheus registry and writes them
// to a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "listing_scraper"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	reg *prometheus.Registry

	PagesFetched      prometheus.Counter
	ListingsExtracted prometheus.Counter
	Contacts          *prometheus.CounterVec
	RowsFlushed       prometheus.Counter
	FlushFailures     prometheus.Counter
	Captchas          *prometheus.CounterVec
	SearchQueries     *prometheus.CounterVec
	RunState          *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Listing pages loaded successfully.",
		}),
		ListingsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_extracted_total",
			Help:      "Listings parsed from loaded pages.",
		}),
		Contacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_total",
			Help:      "Contact resolutions by outcome.",
		}, []string{"outcome"}),
		RowsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_flushed_total",
			Help:      "Data rows appended to the output.",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Failed batch flushes.",
		}),
		Captchas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_events_total",
			Help:      "Challenge events by result.",
		}, []string{"result"}),
		SearchQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Search fallback queries by result.",
		}, []string{"result"}),
		RunState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_state",
			Help:      "1 for the state the last run ended in.",
		}, []string{"state"}),
	}
	m.reg.MustRegister(
		m.PagesFetched,
		m.ListingsExtracted,
		m.Contacts,
		m.RowsFlushed,
		m.FlushFailures,
		m.Captchas,
		m.SearchQueries,
		m.RunState,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) PageFetched() {
	if m != nil {
		m.PagesFetched.Inc()
	}
}

func (m *Metrics) Extracted(n int) {
	if m != nil && n > 0 {
		m.ListingsExtracted.Add(float64(n))
	}
}

func (m *Metrics) Contact(outcome string) {
	if m != nil {
		m.Contacts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Flushed(rows int) {
	if m != nil && rows > 0 {
		m.RowsFlushed.Add(float64(rows))
	}
}

func (m *Metrics) FlushFailed() {
	if m != nil {
		m.FlushFailures.Inc()
	}
}

func (m *Metrics) Captcha(result string) {
	if m != nil {
		m.Captchas.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Search(result string) {
	if m != nil {
		m.SearchQueries.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Finished(state string) {
	if m != nil {
		m.RunState.Reset()
		m.RunState.WithLabelValues(state).Set(1)
	}
}

// WriteTextfile writes all metrics to path in the text exposition format. The file is
// replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
