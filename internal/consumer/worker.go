package consumer

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer/configuration"
	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer/convert"
	"github.com/bhumitschaudhry/ConnectStorm/internal/consumer/metrics"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventdb"
	"github.com/bhumitschaudhry/ConnectStorm/internal/eventlog"
)

const initialBackoff = time.Second

// Log is the slice of the event log the worker drives.
type Log interface {
	ReadBatch(ctx context.Context, consumer string, maxCount int64, maxWait time.Duration) ([]eventlog.Entry, error)
	ReclaimStale(ctx context.Context, consumer string, minIdle time.Duration, maxCount int64) ([]eventlog.ClaimedEntry, error)
	Ack(ctx context.Context, ids []string) error
	Trim(ctx context.Context, maxLen int64) (int64, error)
	Backlog(ctx context.Context) (int64, error)
	Pending(ctx context.Context) (*eventlog.PendingSummary, error)
}

// Store persists converted rows and reports which of them are durable.
type Store interface {
	InsertBatch(ctx context.Context, rows []eventdb.EventRow) ([]string, error)
}

// Worker runs the ingestion cycle: reclaim stale entries, read new ones,
// insert rows, acknowledge whatever is confirmed durable, and occasionally
// trim the stream. An entry is only ever acknowledged after its row is
// confirmed in the store, or after it has been classified as unprocessable.
type Worker struct {
	log     Log
	store   Store
	metrics *metrics.Metrics
	config  *configuration.ConsumerConfiguration
	name    string

	trigger     chan struct{}
	lastTrim    time.Time
	lastSuccess atomic.Int64
}

func NewWorker(eventLog Log, store Store, m *metrics.Metrics, config *configuration.ConsumerConfiguration) *Worker {
	name := config.ConsumerName
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "consumer"
		}
		name = hostname + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}
	return &Worker{
		log:     eventLog,
		store:   store,
		metrics: m,
		config:  config,
		name:    name,
		trigger: make(chan struct{}, 1),
	}
}

func (w *Worker) Name() string {
	return w.name
}

// Run executes cycles until the context is cancelled. A failed cycle backs
// off with doubling delay up to the configured cap; any successful cycle
// resets the delay.
func (w *Worker) Run(ctx context.Context) error {
	log.Infof("Upload consumer %s starting", w.name)
	backoffCap := w.config.BackoffCap
	if backoffCap <= 0 {
		backoffCap = 30 * time.Second
	}
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			log.Infof("Upload consumer %s stopping", w.name)
			return nil
		case <-w.trigger:
		default:
		}

		if err := w.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				log.Infof("Upload consumer %s stopping", w.name)
				return nil
			}
			log.Warnf("Consumer cycle failed, backing off for %s. Error was %+v", backoff, err)
			select {
			case <-ctx.Done():
			case <-w.trigger:
			case <-time.After(backoff):
			}
			backoff = min(2*backoff, backoffCap)
		} else {
			backoff = initialBackoff
		}
	}
}

// TriggerCycle requests an immediate cycle, cutting short any backoff. It
// never blocks; a trigger while one is already queued is coalesced.
func (w *Worker) TriggerCycle() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// LastSuccess returns the time of the last fully successful cycle, or the
// zero time if none has completed yet.
func (w *Worker) LastSuccess() time.Time {
	unix := w.lastSuccess.Load()
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func (w *Worker) runCycle(ctx context.Context) error {
	claimed, err := w.log.ReclaimStale(ctx, w.name, w.config.MinIdleTime, w.config.BatchSize)
	if err != nil {
		w.metrics.RecordRedisError(metrics.RedisOperationReclaim)
		return err
	}

	// Entries delivered too many times are poisoned: every consumer that
	// picked them up failed to get a row confirmed. They are retired
	// without an insert so they cannot wedge the group forever.
	entries := make([]eventlog.Entry, 0, len(claimed))
	var poisonIds []string
	for _, c := range claimed {
		if c.DeliveryCount > w.config.PoisonDeliveryLimit {
			log.Errorf("Entry %s delivered %d times without a confirmed row, retiring it", c.ID, c.DeliveryCount)
			w.metrics.RecordEventSkipped(metrics.SkipReasonPoison)
			poisonIds = append(poisonIds, c.ID)
			continue
		}
		entries = append(entries, c.Entry)
	}
	if len(claimed) > 0 {
		log.Infof("Reclaimed %d stale entries", len(claimed))
		w.metrics.RecordEventsReclaimed(len(claimed))
	}

	read, err := w.log.ReadBatch(ctx, w.name, w.config.BatchSize, w.config.BlockDuration)
	if err != nil {
		w.metrics.RecordRedisError(metrics.RedisOperationRead)
		return err
	}
	entries = append(entries, read...)

	rows, invalidIds := convert.Rows(entries)
	for _, id := range invalidIds {
		log.Warnf("Entry %s has no usable payload, retiring it", id)
		w.metrics.RecordEventSkipped(metrics.SkipReasonInvalidPayload)
	}

	confirmed, insertErr := w.store.InsertBatch(ctx, rows)
	if insertErr != nil {
		w.metrics.RecordDBError(metrics.DBOperationInsert)
	}

	// Acknowledge confirmed rows even when the cycle is about to fail:
	// partial progress must not be replayed.
	ackIds := make([]string, 0, len(confirmed)+len(invalidIds)+len(poisonIds))
	ackIds = append(ackIds, confirmed...)
	ackIds = append(ackIds, invalidIds...)
	ackIds = append(ackIds, poisonIds...)
	if err := w.log.Ack(ctx, ackIds); err != nil {
		w.metrics.RecordRedisError(metrics.RedisOperationAck)
		return err
	}
	w.metrics.RecordEventsProcessed(len(confirmed))

	if insertErr != nil {
		return insertErr
	}

	if w.config.TrimTarget > 0 && time.Since(w.lastTrim) >= w.config.TrimInterval {
		w.lastTrim = time.Now()
		if _, err := w.log.Trim(ctx, w.config.TrimTarget); err != nil {
			// Trimming is housekeeping; a failure must not stall ingestion.
			w.metrics.RecordRedisError(metrics.RedisOperationTrim)
			log.Warnf("Trimming event log failed: %v", err)
		}
	}

	if backlog, err := w.log.Backlog(ctx); err == nil {
		w.metrics.RecordBacklogSize(backlog)
	}
	if pending, err := w.log.Pending(ctx); err == nil {
		w.metrics.RecordPendingSize(pending.Count)
	}

	now := time.Now().Unix()
	w.lastSuccess.Store(now)
	w.metrics.RecordCycleSuccess(now)
	return nil
}
