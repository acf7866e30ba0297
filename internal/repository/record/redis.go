// Package record stores catalog records and the pending work set the
// batch indexer drains.
package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/catrec-io/catrec/internal/db"
	"github.com/catrec-io/catrec/internal/domain"
)

var (
	recordKeyPrefix = domain.KeyPrefix + "record:"
	pendingKey      = domain.KeyPrefix + "pending"
)

// store is the consumer interface for record persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SPop(ctx context.Context, key string, count int) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SCard(ctx context.Context, key string) (int64, error)
}

// Redis persists records as hashes plus a pending-ID set.
//
// The pending set is the indexer's work queue: SPOP hands each member to
// exactly one caller, which is what makes parallel workers safe without
// any extra locking.
type Redis struct {
	store store
}

// NewRedis creates a record repository over the database facade.
func NewRedis(s store) *Redis {
	return &Redis{store: s}
}

// Save writes one record; a Pending record is also enqueued for indexing.
func (r *Redis) Save(ctx context.Context, rec domain.Record) error {
	return r.SaveAll(ctx, []domain.Record{rec})
}

// SaveAll writes records in one pipeline and enqueues the Pending ones.
func (r *Redis) SaveAll(ctx context.Context, recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(recs))
	var pending []string
	for i := range recs {
		items = append(items, db.HashSetItem{
			Key:    recordKey(recs[i].ID()),
			Fields: buildHashFields(&recs[i]),
		})
		if recs[i].Status() == domain.StatusPending {
			pending = append(pending, recs[i].ID())
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	if err := r.store.SAdd(ctx, pendingKey, pending...); err != nil {
		return fmt.Errorf("enqueue pending: %w", err)
	}
	return nil
}

// Update rewrites a record hash without touching the pending set.
// Used by the indexer for Embedded/Failed transitions.
func (r *Redis) Update(ctx context.Context, rec domain.Record) error {
	if err := r.store.HSet(ctx, recordKey(rec.ID()), buildHashFields(&rec)); err != nil {
		return fmt.Errorf("update record %s: %w", rec.ID(), err)
	}
	return nil
}

// Get returns one record by ID.
func (r *Redis) Get(ctx context.Context, id string) (domain.Record, error) {
	fields, err := r.store.HGetAll(ctx, recordKey(id))
	if err != nil {
		return domain.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Record{}, fmt.Errorf("record %s: %w", id, domain.ErrRecordNotFound)
	}
	return parseHashFields(id, fields), nil
}

// ClaimPending atomically claims up to n pending record IDs and loads
// their records. Concurrent callers never receive the same ID.
func (r *Redis) ClaimPending(ctx context.Context, n int) ([]domain.Record, error) {
	ids, err := r.store.SPop(ctx, pendingKey, n)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	return r.loadClaimed(ctx, ids)
}

// ClaimIDs claims the given record IDs from the pending set, skipping any
// not currently pending. Backs the record-ID filter on index runs.
func (r *Redis) ClaimIDs(ctx context.Context, ids []string) ([]domain.Record, error) {
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		removed, err := r.store.SRem(ctx, pendingKey, id)
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", id, err)
		}
		if removed == 1 {
			claimed = append(claimed, id)
		}
	}
	return r.loadClaimed(ctx, claimed)
}

func (r *Redis) loadClaimed(ctx context.Context, ids []string) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load claimed records: %w", err)
	}

	recs := make([]domain.Record, 0, len(ids))
	for i, fields := range hashes {
		// A claimed ID without a hash is an orphan (record archived while
		// still enqueued); dropping it here clears the queue entry.
		if len(fields) == 0 {
			continue
		}
		recs = append(recs, parseHashFields(ids[i], fields))
	}
	return recs, nil
}

// PendingCount returns the size of the pending queue.
func (r *Redis) PendingCount(ctx context.Context) (int64, error) {
	n, err := r.store.SCard(ctx, pendingKey)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// RequeueFailed flips every Failed record back to Pending and re-enqueues
// it. Returns the number of requeued records.
func (r *Redis) RequeueFailed(ctx context.Context, now time.Time) (int, error) {
	keys, err := r.store.Scan(ctx, recordKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan records: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}

	var items []db.HashSetItem
	var ids []string
	for i, fields := range hashes {
		if len(fields) == 0 || domain.Status(fields[fieldStatus]) != domain.StatusFailed {
			continue
		}
		id := idFromKey(keys[i])
		rec := parseHashFields(id, fields)
		requeued := rec.WithPending(now)
		items = append(items, db.HashSetItem{Key: keys[i], Fields: buildHashFields(&requeued)})
		ids = append(ids, id)
	}
	if len(items) == 0 {
		return 0, nil
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return 0, fmt.Errorf("requeue records: %w", err)
	}
	if err := r.store.SAdd(ctx, pendingKey, ids...); err != nil {
		return 0, fmt.Errorf("requeue enqueue: %w", err)
	}
	return len(ids), nil
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}

func idFromKey(key string) string {
	return strings.TrimPrefix(key, recordKeyPrefix)
}
