package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	DBOperation    string
	RedisOperation string
	SkipReason     string
)

const (
	DBOperationInsert        DBOperation    = "insert"
	RedisOperationRead       RedisOperation = "read"
	RedisOperationReclaim    RedisOperation = "reclaim"
	RedisOperationAck        RedisOperation = "ack"
	RedisOperationTrim       RedisOperation = "trim"
	SkipReasonInvalidPayload SkipReason     = "invalid_payload"
	SkipReasonPoison         SkipReason     = "poison"
)

const MetricsPrefix = "connectstorm_consumer_"

type Metrics struct {
	eventsProcessed  prometheus.Counter
	eventsReclaimed  prometheus.Counter
	eventsSkipped    *prometheus.CounterVec
	dbErrors         *prometheus.CounterVec
	redisErrors      *prometheus.CounterVec
	backlogSize      prometheus.Gauge
	pendingSize      prometheus.Gauge
	lastCycleSuccess prometheus.Gauge
}

func NewMetrics(prefix string) *Metrics {
	return &Metrics{
		eventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "events_processed",
			Help: "Number of events confirmed durable and acknowledged",
		}),
		eventsReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "events_reclaimed",
			Help: "Number of pending events reclaimed from other consumers",
		}),
		eventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "events_skipped",
			Help: "Number of events retired without a database row, grouped by reason",
		}, []string{"reason"}),
		dbErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "db_errors",
			Help: "Number of database errors grouped by database operation",
		}, []string{"operation"}),
		redisErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "redis_errors",
			Help: "Number of event log errors grouped by operation",
		}, []string{"operation"}),
		backlogSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "backlog_size",
			Help: "Number of entries currently in the stream",
		}),
		pendingSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "pending_size",
			Help: "Number of delivered but unacknowledged entries",
		}),
		lastCycleSuccess: promauto.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "last_successful_cycle_timestamp_seconds",
			Help: "Unix timestamp of the last fully successful worker cycle",
		}),
	}
}

var m = NewMetrics(MetricsPrefix)

func Get() *Metrics {
	return m
}

func (m *Metrics) RecordEventsProcessed(count int) {
	m.eventsProcessed.Add(float64(count))
}

func (m *Metrics) RecordEventsReclaimed(count int) {
	m.eventsReclaimed.Add(float64(count))
}

func (m *Metrics) RecordEventSkipped(reason SkipReason) {
	m.eventsSkipped.With(map[string]string{"reason": string(reason)}).Inc()
}

func (m *Metrics) RecordDBError(operation DBOperation) {
	m.dbErrors.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordRedisError(operation RedisOperation) {
	m.redisErrors.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordBacklogSize(size int64) {
	m.backlogSize.Set(float64(size))
}

func (m *Metrics) RecordPendingSize(size int64) {
	m.pendingSize.Set(float64(size))
}

func (m *Metrics) RecordCycleSuccess(unixSeconds int64) {
	m.lastCycleSuccess.Set(float64(unixSeconds))
}
