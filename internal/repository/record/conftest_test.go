package record

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/catrec-io/catrec/internal/db"
	"github.com/catrec-io/catrec/internal/domain"
)

// fakeStore is a map-backed stand-in for the database facade with real
// hash and set semantics, so repository tests exercise actual data flow.
type fakeStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]struct{}{},
	}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hsetLocked(key, fields)
	return nil
}

func (f *fakeStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		f.hsetLocked(it.Key, it.Fields)
	}
	return nil
}

func (f *fakeStore) hsetLocked(key string, fields map[string]string) {
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		h, _ := f.HGetAll(ctx, k)
		out[i] = h
	}
	return out, nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeStore) SAdd(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sets[key]
	if !ok {
		s = map[string]struct{}{}
		f.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (f *fakeStore) SPop(_ context.Context, key string, count int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var popped []string
	var members []string
	for m := range f.sets[key] {
		members = append(members, m)
	}
	sort.Strings(members)
	for _, m := range members {
		if len(popped) >= count {
			break
		}
		delete(f.sets[key], m)
		popped = append(popped, m)
	}
	return popped, nil
}

func (f *fakeStore) SRem(_ context.Context, key string, members ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for _, m := range members {
		if _, ok := f.sets[key][m]; ok {
			delete(f.sets[key], m)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeStore) SCard(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sets[key])), nil
}

func testRecord(t *testing.T, id, catalogID, path string) domain.Record {
	t.Helper()
	rec, err := domain.NewRecord(id, catalogID, path, "user cannot connect to the vpn", testTime())
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	return rec
}

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}
