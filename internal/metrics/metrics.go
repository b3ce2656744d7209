// Package metrics exposes node state as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yanode/internal/job"
	"yanode/internal/node"
	"yanode/internal/notify"
	"yanode/internal/supervisor"
)

const namespace = "yanode"

// Source is the node state the metrics follow.
type Source interface {
	SubscribeStatus(buffer int) (<-chan notify.Update[node.Status], func())
	SubscribeJob(buffer int) (<-chan notify.Update[*job.Job], func())
}

// Metrics owns a registry and the node collectors.
type Metrics struct {
	registry *prometheus.Registry

	nodeStatus       *prometheus.GaugeVec
	jobsStarted      prometheus.Counter
	jobsFinished     prometheus.Counter
	jobStatus        *prometheus.GaugeVec
	jobReward        prometheus.Gauge
	paymentsReceived prometheus.Counter
	paymentStates    *prometheus.CounterVec
	daemonExits      *prometheus.CounterVec
	pollFailures     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		nodeStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_status",
			Help:      "1 for the node's current status, 0 otherwise",
		}, []string{"status"}),
		jobsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Jobs observed starting",
		}),
		jobsFinished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs cleared from the node",
		}),
		jobStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_status",
			Help:      "1 for the current job's status, 0 otherwise",
		}, []string{"status"}),
		jobReward: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_reward",
			Help:      "Reward accrued by the current job",
		}),
		paymentsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_received_total",
			Help:      "Sum of confirmed payments",
		}),
		paymentStates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_events_total",
			Help:      "Invoice state changes by resulting state",
		}, []string{"state"}),
		daemonExits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daemon_exits_total",
			Help:      "Daemon process exits",
		}, []string{"role", "solicited"}),
		pollFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Failed polling cycles",
		}, []string{"loop"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Local API requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Local API request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PollFailed counts one failed polling cycle.
func (m *Metrics) PollFailed(loop string) {
	m.pollFailures.WithLabelValues(loop).Inc()
}

// DaemonExited counts a daemon exit.
func (m *Metrics) DaemonExited(exit supervisor.Exit) {
	m.daemonExits.WithLabelValues(string(exit.Role), strconv.FormatBool(exit.Solicited)).Inc()
}

// SetStatus marks status as current.
func (m *Metrics) SetStatus(status node.Status) {
	for _, s := range []node.Status{node.Off, node.Starting, node.Ready, node.Error} {
		v := 0.0
		if s == status {
			v = 1
		}
		m.nodeStatus.WithLabelValues(s.String()).Set(v)
	}
}

// ObserveJob records the change from prev to next.
func (m *Metrics) ObserveJob(prev, next *job.Job) {
	c := job.Compare(prev, next)
	if c.Finished != nil {
		m.jobsFinished.Inc()
	}
	if c.Started != nil {
		m.jobsStarted.Inc()
	}
	if c.PaymentState != nil {
		m.paymentStates.WithLabelValues(string(c.PaymentState.State)).Inc()
	}
	for _, p := range c.Payments {
		m.paymentsReceived.Add(p.Amount.InexactFloat64())
	}

	for _, s := range []job.Status{job.Idle, job.DownloadingModel, job.Computing} {
		v := 0.0
		if next != nil && next.Status() == s {
			v = 1
		}
		m.jobStatus.WithLabelValues(s.String()).Set(v)
	}
	if next == nil {
		m.jobReward.Set(0)
		return
	}
	m.jobReward.Set(next.Reward().InexactFloat64())
}

// Watch follows src until ctx ends.
func (m *Metrics) Watch(ctx context.Context, src Source) {
	statuses, stopStatus := src.SubscribeStatus(8)
	defer stopStatus()
	jobs, stopJobs := src.SubscribeJob(8)
	defer stopJobs()

	var prev *job.Job
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-statuses:
			if !ok {
				return
			}
			m.SetStatus(u.Value)
		case u, ok := <-jobs:
			if !ok {
				return
			}
			m.ObserveJob(prev, u.Value)
			prev = u.Value
		}
	}
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
