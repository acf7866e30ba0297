package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/catrec-io/catrec/internal/domain"
)

// BudgetAction defines behavior when the token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore is the persistence interface for budget counters.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetTracker enforces a daily token budget for one embedding provider.
// The hot path (Check) is in-memory; Record updates the in-memory counter
// first and then write-behind persists to the store, so a restart resumes
// near the true spend instead of zero.
type BudgetTracker struct {
	mu        sync.Mutex
	used      int64
	limit     int64
	action    BudgetAction
	provider  string
	lastReset time.Time
	now       func() time.Time
	store     BudgetStore
	logger    *zap.Logger
}

// NewBudgetTracker creates a tracker with the given daily limit (0 = unlimited).
func NewBudgetTracker(provider string, dailyLimit int64, action BudgetAction, logger *zap.Logger) *BudgetTracker {
	b := &BudgetTracker{
		limit:    dailyLimit,
		action:   action,
		provider: provider,
		now:      time.Now,
		logger:   logger,
	}
	b.lastReset = truncateToDay(b.now().UTC())
	return b
}

// WithClock overrides the time source (tests).
func (b *BudgetTracker) WithClock(now func() time.Time) *BudgetTracker {
	b.now = now
	b.lastReset = truncateToDay(now().UTC())
	return b
}

// WithStore attaches a persistence store and loads today's counter.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	key := b.key(b.now().UTC())
	val, err := store.Get(ctx, key)
	if err != nil {
		b.logger.Warn("Failed to load token budget from store", zap.String("key", key), zap.Error(err))
		return b
	}
	b.used = val
	b.logger.Info("Token budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("used", b.used),
		zap.Int64("limit", b.limit),
	)
	return b
}

// Check verifies the budget allows a new request. In-memory only (hot path).
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()

	if b.limit == 0 || b.used < b.limit {
		return nil
	}

	if b.action == BudgetActionReject {
		return fmt.Errorf("provider %s: %w", b.provider, domain.ErrEmbeddingQuotaExceeded)
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("used", b.used),
		zap.Int64("limit", b.limit),
	)
	return nil
}

// Record registers consumed tokens after a request. The in-memory counter
// updates inline; the store increment runs on its own goroutine so a slow
// store never blocks the request path. A write lost to a crash only costs
// accuracy of the resumed counter, never correctness of Check.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	b.resetIfNeeded()
	b.used += tokens
	store := b.store
	key := b.key(b.now().UTC())
	b.mu.Unlock()

	if store == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := store.IncrBy(ctx, key, tokens); err != nil {
			b.logger.Warn("Failed to persist token budget", zap.String("key", key), zap.Error(err))
		}
	}()
}

// Remaining returns tokens left today (-1 if unlimited).
func (b *BudgetTracker) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()
	if b.limit == 0 {
		return -1
	}
	remaining := b.limit - b.used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Used returns tokens consumed today.
func (b *BudgetTracker) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return b.used
}

func (b *BudgetTracker) key(t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s", domain.KeyPrefix, b.provider, t.Format("2006-01-02"))
}

// resetIfNeeded zeroes the counter when the UTC day rolls over.
func (b *BudgetTracker) resetIfNeeded() {
	today := truncateToDay(b.now().UTC())
	if today.After(b.lastReset) {
		b.used = 0
		b.lastReset = today
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
