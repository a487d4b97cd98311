package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Metrics struct {
	apiRequests    *CounterVec
	apiLatency     *HistogramVec
	apiInflight    *Gauge
	llmRequests    *CounterVec
	llmLatency     *HistogramVec
	jobRuns        *CounterVec
	jobDuration    *HistogramVec
	queueDepth     *GaugeVec
	stageOutcomes  *CounterVec
	aggregateOps   *HistogramVec
	aggregateConfl *CounterVec
	pushFailures   *CounterVec
	vectorOps      *HistogramVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process metrics, or nil when metrics are disabled.
// Every method is safe on a nil receiver.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics builds an unregistered set. Tests use it directly.
func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("coursegen_api_requests_total", "API requests", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("coursegen_api_latency_seconds", "API latency", []string{"method", "route", "status"}, nil),
		apiInflight: NewGauge("coursegen_api_inflight", "API requests in flight"),
		llmRequests: NewCounterVec("coursegen_llm_requests_total", "LLM requests", []string{"model", "endpoint", "status"}),
		llmLatency: NewHistogramVec("coursegen_llm_latency_seconds", "LLM latency", []string{"model", "endpoint"},
			[]float64{0.5, 1, 2, 5, 10, 20, 40, 80}),
		jobRuns: NewCounterVec("coursegen_job_runs_total", "Job executions by outcome", []string{"job_type", "status"}),
		jobDuration: NewHistogramVec("coursegen_job_duration_seconds", "Job execution time", []string{"job_type", "status"},
			[]float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}),
		queueDepth:     NewGaugeVec("coursegen_job_queue_depth", "Jobs by status", []string{"status"}),
		stageOutcomes:  NewCounterVec("coursegen_generation_stage_total", "Generation stage outcomes", []string{"stage", "status"}),
		aggregateOps:   NewHistogramVec("coursegen_aggregate_op_seconds", "Aggregate write time", []string{"op", "status"}, nil),
		aggregateConfl: NewCounterVec("coursegen_aggregate_conflicts_total", "Aggregate write conflicts", []string{"op"}),
		pushFailures:   NewCounterVec("coursegen_realtime_push_failures_total", "Realtime push failures", []string{"event"}),
		vectorOps:      NewHistogramVec("coursegen_vector_op_seconds", "Vector index call time", []string{"provider", "op", "status"}, nil),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, metric := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.jobRuns, m.jobDuration, m.queueDepth,
		m.stageOutcomes,
		m.aggregateOps, m.aggregateConfl,
		m.pushFailures, m.vectorOps,
	} {
		if err := metric.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orUnknown(method)
	route = orUnknown(route)
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(orUnknown(model), orUnknown(endpoint), orUnknown(status))
	m.llmLatency.Observe(dur.Seconds(), orUnknown(model), orUnknown(endpoint))
}

// ObserveJob records one executor pass. status is the job status it left
// the row in (succeeded, retrying, failed).
func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Inc(orUnknown(jobType), orUnknown(status))
	m.jobDuration.Observe(dur.Seconds(), orUnknown(jobType), orUnknown(status))
}

func (m *Metrics) JobRuns(jobType, status string) float64 {
	if m == nil {
		return 0
	}
	return m.jobRuns.Value(jobType, status)
}

func (m *Metrics) IncStage(stage, status string) {
	if m == nil {
		return
	}
	m.stageOutcomes.Inc(orUnknown(stage), orUnknown(status))
}

func (m *Metrics) ObserveAggregate(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(dur.Seconds(), orUnknown(op), orUnknown(status))
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConfl.Inc(orUnknown(op))
}

func (m *Metrics) IncPushFailure(event string) {
	if m == nil {
		return
	}
	m.pushFailures.Inc(orUnknown(event))
}

func (m *Metrics) ObserveVectorOp(provider, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Observe(dur.Seconds(), orUnknown(provider), orUnknown(op), orUnknown(status))
}

// StartJobQueueCollector samples job counts by status every interval.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.CollectJobQueue(ctx, db); err != nil && log != nil {
					log.Warn("metrics: job queue depth query failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) CollectJobQueue(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	for _, s := range []string{
		types.JobStatusQueued,
		types.JobStatusRunning,
		types.JobStatusRetrying,
		types.JobStatusSucceeded,
		types.JobStatusFailed,
	} {
		m.queueDepth.Set(0, s)
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		m.queueDepth.Set(float64(row.Count), orUnknown(strings.TrimSpace(row.Status)))
	}
	return nil
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
