package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/dividend-exchange/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// state and account reads. Commits go to the primary and invalidate every
// key they touched; lots and events always read from the primary.
//
// A fill racing a commit can leave an entry older than the primary until it
// expires, so cached reads are for queries only. Trades load through
// Primary.
type CachedStore struct {
	primary Store
	rdb     redis.UniversalClient
	ttl     time.Duration
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// Primary returns the uncached store.
func (s *CachedStore) Primary() Store { return s.primary }

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Commit(ctx context.Context, cs *model.ChangeSet, settle SettleFunc) error {
	if err := s.primary.Commit(ctx, cs, settle); err != nil {
		return err
	}
	keys := make([]string, 0, len(cs.Accounts)+1)
	keys = append(keys, stateKeyName)
	for _, a := range cs.Accounts {
		keys = append(keys, accountKey(a.ID))
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadState(ctx context.Context) (*model.GlobalState, error) {
	var st model.GlobalState
	if s.get(ctx, stateKeyName, &st) {
		return &st, nil
	}

	// Cache miss: read from primary.
	loaded, err := s.primary.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	s.set(ctx, stateKeyName, loaded)
	return loaded, nil
}

func (s *CachedStore) LoadAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	var a model.Account
	if s.get(ctx, accountKey(id), &a) {
		return &a, nil
	}

	loaded, err := s.primary.LoadAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, accountKey(id), loaded)
	return loaded, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) LoadLots(ctx context.Context, id model.AccountID) ([]model.Lot, error) {
	return s.primary.LoadLots(ctx, id)
}

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) EventsByAccount(ctx context.Context, id model.AccountID) ([]model.Event, error) {
	return s.primary.EventsByAccount(ctx, id)
}

// --- Cache helpers ---

func (s *CachedStore) get(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (s *CachedStore) set(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const stateKeyName = "exchange:state"

func accountKey(id model.AccountID) string { return fmt.Sprintf("exchange:account:%s", id) }
