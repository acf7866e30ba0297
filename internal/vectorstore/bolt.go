package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
)

var bucketVectors = []byte("vectors")

// storedEntry is the bbolt value format, keyed by record ID.
type storedEntry struct {
	CatalogID   string    `json:"c"`
	CatalogPath string    `json:"p"`
	Vector      []float32 `json:"v"`
}

// Bolt persists the index in a bbolt file and serves queries from an
// in-memory Memory index loaded at startup. Writes go through to disk
// before the in-memory index is updated.
type Bolt struct {
	db     *bbolt.DB
	mem    *Memory
	logger *zap.Logger
}

// NewBolt opens (or creates) the index file at path and loads it.
// Entries whose dimension no longer matches dim are dropped with a
// warning; they get re-embedded on the next index run.
func NewBolt(path string, dim int, logger *zap.Logger) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open index file %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create vectors bucket: %w", err)
	}

	b := &Bolt{db: db, mem: NewMemory(dim), logger: logger}
	if err := b.load(dim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}

	logger.Info("Vector index loaded",
		zap.String("path", path),
		zap.Int("entries", b.mem.Len()),
		zap.Int("dimensions", dim),
	)
	return b, nil
}

func (b *Bolt) load(dim int) error {
	var skipped int
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedEntry
			if err := json.Unmarshal(v, &stored); err != nil || len(stored.Vector) != dim {
				skipped++
				return nil
			}
			return b.mem.Upsert(context.Background(), []Entry{{
				RecordID:    string(k),
				CatalogID:   stored.CatalogID,
				CatalogPath: stored.CatalogPath,
				Embedding:   stored.Vector,
			}})
		})
	})
	if skipped > 0 {
		b.logger.Warn("Skipped stale index entries", zap.Int("count", skipped))
	}
	return err
}

// Upsert persists entries and then updates the in-memory index.
func (b *Bolt) Upsert(ctx context.Context, entries []Entry) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketVectors)
		for _, e := range entries {
			data, err := json.Marshal(storedEntry{
				CatalogID:   e.CatalogID,
				CatalogPath: e.CatalogPath,
				Vector:      e.Embedding,
			})
			if err != nil {
				return fmt.Errorf("encode %s: %w", e.RecordID, err)
			}
			if err := bucket.Put([]byte(e.RecordID), data); err != nil {
				return fmt.Errorf("put %s: %w", e.RecordID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist vectors: %w", err)
	}

	return b.mem.Upsert(ctx, entries)
}

// Delete removes entries from disk and the in-memory index.
func (b *Bolt) Delete(ctx context.Context, ids []string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := bucket.Delete([]byte(id)); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}

	return b.mem.Delete(ctx, ids)
}

// Query serves nearest-neighbor lookups from the in-memory index.
func (b *Bolt) Query(ctx context.Context, vec []float32, k int) ([]domain.NeighborHit, error) {
	return b.mem.Query(ctx, vec, k)
}

// Len returns the number of indexed entries.
func (b *Bolt) Len() int { return b.mem.Len() }

// Close closes the underlying index file.
func (b *Bolt) Close() error { return b.db.Close() }
