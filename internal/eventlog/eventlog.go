// Package eventlog adapts a Redis Stream plus a consumer group to the
// durable event log contract used by the upload pipeline: append, long-poll
// group reads, stale-claim recovery, acknowledgment and bounded trimming.
package eventlog

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Entry is an immutable record read from the stream. ID is the log-assigned,
// monotonically ordered entry id; Values is the flat field map appended by
// the producer.
type Entry struct {
	ID     string
	Values map[string]string
}

// ClaimedEntry is an entry re-owned from another consumer's pending list.
// DeliveryCount is the number of times the log has handed the entry to any
// consumer; it drives poison-entry detection.
type ClaimedEntry struct {
	Entry
	DeliveryCount int64
}

// PendingSummary describes the group's pending-entries list.
type PendingSummary struct {
	Count     int64
	OldestID  string
	Consumers map[string]int64
}

type EventLog struct {
	db     redis.UniversalClient
	stream string
	group  string
}

func New(db redis.UniversalClient, stream string, group string) *EventLog {
	return &EventLog{db: db, stream: stream, group: group}
}

func (l *EventLog) Stream() string {
	return l.stream
}

// EnsureGroup creates the stream and consumer group if they do not exist.
// Re-running against an existing group is a no-op.
func (l *EventLog) EnsureGroup(ctx context.Context) error {
	err := l.db.XGroupCreateMkStream(ctx, l.stream, l.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.WithMessagef(err, "error creating consumer group %s", l.group)
	}
	return nil
}

// Append adds a payload to the stream and returns the log-assigned entry id.
func (l *EventLog) Append(ctx context.Context, values map[string]string) (string, error) {
	args := make(map[string]interface{}, len(values))
	for k, v := range values {
		args[k] = v
	}
	id, err := l.db.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: args,
	}).Result()
	if err != nil {
		return "", errors.WithMessage(err, "error appending to event log")
	}
	return id, nil
}

// ReadBatch pulls up to maxCount undelivered entries for the given consumer,
// blocking up to maxWait if none are immediately available. Every returned
// entry is simultaneously recorded in the group's pending list under the
// consumer's name.
func (l *EventLog) ReadBatch(ctx context.Context, consumer string, maxCount int64, maxWait time.Duration) ([]Entry, error) {
	streams, err := l.db.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.group,
		Consumer: consumer,
		Streams:  []string{l.stream, ">"},
		Count:    maxCount,
		Block:    maxWait,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithMessage(err, "error reading from event log")
	}

	var entries []Entry
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			entries = append(entries, Entry{ID: msg.ID, Values: stringValues(msg.Values)})
		}
	}
	return entries, nil
}

// ReclaimStale scans the group's pending list across all consumers for
// entries idle longer than minIdle, re-assigns up to maxCount of them to the
// given consumer and returns them for reprocessing. An entry claimed here
// whose row was already inserted is harmless: the store's uniqueness
// constraint absorbs the duplicate.
func (l *EventLog) ReclaimStale(ctx context.Context, consumer string, minIdle time.Duration, maxCount int64) ([]ClaimedEntry, error) {
	pending, err := l.db.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: l.stream,
		Group:  l.group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  maxCount,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.WithMessage(err, "error listing pending entries")
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
		deliveries[p.ID] = p.RetryCount
	}

	claimed, err := l.db.XClaim(ctx, &redis.XClaimArgs{
		Stream:   l.stream,
		Group:    l.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.WithMessage(err, "error claiming pending entries")
	}

	// XCLAIM silently drops ids that were deleted from the stream while
	// still pending; whatever comes back is what we own now.
	entries := make([]ClaimedEntry, 0, len(claimed))
	for _, msg := range claimed {
		entries = append(entries, ClaimedEntry{
			Entry:         Entry{ID: msg.ID, Values: stringValues(msg.Values)},
			DeliveryCount: deliveries[msg.ID],
		})
	}
	return entries, nil
}

// Ack acknowledges the given entries for the group and deletes them from the
// stream. Only ids whose rows are confirmed durable may be passed here.
func (l *EventLog) Ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := l.db.Pipeline()
	pipe.XAck(ctx, l.stream, l.group, ids...)
	pipe.XDel(ctx, l.stream, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.WithMessage(err, "error acknowledging entries")
	}
	return nil
}

// Trim discards fully retired entries once the stream exceeds maxLen.
// XTRIM MAXLEN would discard pending and unread entries, so the boundary is
// computed from the group low-water marks instead and maxLen acts only as
// the trigger threshold.
func (l *EventLog) Trim(ctx context.Context, maxLen int64) (int64, error) {
	length, err := l.db.XLen(ctx, l.stream).Result()
	if err != nil {
		return 0, errors.WithMessage(err, "error reading stream length")
	}
	if maxLen <= 0 || length <= maxLen {
		return 0, nil
	}

	groups, err := l.db.XInfoGroups(ctx, l.stream).Result()
	if err != nil {
		return 0, errors.WithMessage(err, "error reading group info")
	}

	lastDelivered := make([]string, 0, len(groups))
	oldestPending := make([]string, 0, len(groups))
	for _, g := range groups {
		lastDelivered = append(lastDelivered, g.LastDeliveredID)
		summary, err := l.db.XPending(ctx, l.stream, g.Name).Result()
		if err != nil && err != redis.Nil {
			return 0, errors.WithMessage(err, "error reading pending summary")
		}
		if summary != nil && summary.Count > 0 {
			oldestPending = append(oldestPending, summary.Lower)
		}
	}

	boundary := safeTrimBoundary(lastDelivered, oldestPending)
	if boundary == "" {
		return 0, nil
	}
	removed, err := l.db.XTrimMinID(ctx, l.stream, boundary).Result()
	if err != nil {
		return 0, errors.WithMessage(err, "error trimming event log")
	}
	if removed > 0 {
		log.Infof("Trimmed %d retired entries from %s", removed, l.stream)
	}
	return removed, nil
}

// Backlog returns the number of entries currently in the stream.
func (l *EventLog) Backlog(ctx context.Context) (int64, error) {
	length, err := l.db.XLen(ctx, l.stream).Result()
	if err != nil {
		return 0, errors.WithMessage(err, "error reading stream length")
	}
	return length, nil
}

// Pending summarises the group's pending-entries list for observability.
func (l *EventLog) Pending(ctx context.Context) (*PendingSummary, error) {
	summary, err := l.db.XPending(ctx, l.stream, l.group).Result()
	if err == redis.Nil {
		return &PendingSummary{Consumers: map[string]int64{}}, nil
	}
	if err != nil {
		return nil, errors.WithMessage(err, "error reading pending summary")
	}
	return &PendingSummary{
		Count:     summary.Count,
		OldestID:  summary.Lower,
		Consumers: summary.Consumers,
	}, nil
}

// Reset deletes the stream and recreates an empty consumer group. This is an
// administrative operation only.
func (l *EventLog) Reset(ctx context.Context) error {
	if err := l.db.Del(ctx, l.stream).Err(); err != nil {
		return errors.WithMessage(err, "error deleting stream")
	}
	return l.EnsureGroup(ctx)
}

// Check implements health.Checker.
func (l *EventLog) Check() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.db.Ping(ctx).Err()
}

// safeTrimBoundary computes the highest MINID that is guaranteed not to
// discard any entry that is still pending for, or unread by, any group.
// Entries strictly below min(first unread id, oldest pending id) over all
// groups have been delivered and acknowledged everywhere.
func safeTrimBoundary(lastDelivered []string, oldestPending []string) string {
	boundary := ""
	for _, id := range lastDelivered {
		unread := nextStreamID(id)
		if boundary == "" || compareStreamIDs(unread, boundary) < 0 {
			boundary = unread
		}
	}
	for _, id := range oldestPending {
		if boundary == "" || compareStreamIDs(id, boundary) < 0 {
			boundary = id
		}
	}
	return boundary
}

// nextStreamID returns the smallest valid stream id strictly greater than id.
func nextStreamID(id string) string {
	ms, seq := splitStreamID(id)
	return strconv.FormatUint(ms, 10) + "-" + strconv.FormatUint(seq+1, 10)
}

func compareStreamIDs(a, b string) int {
	aMs, aSeq := splitStreamID(a)
	bMs, bSeq := splitStreamID(b)
	if aMs != bMs {
		if aMs < bMs {
			return -1
		}
		return 1
	}
	if aSeq != bSeq {
		if aSeq < bSeq {
			return -1
		}
		return 1
	}
	return 0
}

func splitStreamID(id string) (uint64, uint64) {
	msString, seqString, found := strings.Cut(id, "-")
	ms, _ := strconv.ParseUint(msString, 10, 64)
	if !found {
		return ms, 0
	}
	seq, _ := strconv.ParseUint(seqString, 10, 64)
	return ms, seq
}

func stringValues(values map[string]interface{}) map[string]string {
	result := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}
