// Package store defines the persistence interface for the exchange ledger.
// Implementations include PostgreSQL (source of truth), bbolt (embedded
// single-node), Redis (read-through cache) and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/dividend-exchange/internal/model"
)

var (
	// ErrVersionConflict is returned by Commit when the stored state moved
	// on since the change set's state was loaded.
	ErrVersionConflict = errors.New("store: state version conflict")

	// ErrLotSequence is returned by Commit when a lot would leave a gap in
	// its account's sequence.
	ErrLotSequence = errors.New("store: lot out of sequence")
)

// SettleFunc performs the external side effects of a trade. Commit runs it
// after the change set is written and before the write becomes durable; a
// non-nil error aborts the commit.
type SettleFunc func(ctx context.Context) error

// Store is the persistence interface. Reads return copies; the only write
// path is Commit.
type Store interface {
	// LoadState returns the global state, or a zero state at version 0 when
	// none was ever committed.
	LoadState(ctx context.Context) (*model.GlobalState, error)

	// LoadAccount returns the account, or a fresh zero account carrying only
	// its ID when it does not exist yet.
	LoadAccount(ctx context.Context, id model.AccountID) (*model.Account, error)

	// LoadLots returns every lot of an account ordered by ID, sold lots
	// included.
	LoadLots(ctx context.Context, id model.AccountID) ([]model.Lot, error)

	// ListAccounts returns all accounts ordered by ID.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// EventsByAccount returns the account's events in commit order. Events
	// where the account is the counterparty are included.
	EventsByAccount(ctx context.Context, id model.AccountID) ([]model.Event, error)

	// Commit atomically applies cs and runs settle inside the same unit of
	// work. cs.State.Version must be exactly one above the stored version.
	Commit(ctx context.Context, cs *model.ChangeSet, settle SettleFunc) error
}

func involves(e model.Event, id model.AccountID) bool {
	return e.Account == id || e.Counterparty == id
}

// Uncached returns the store behind any caching wrappers around s. Reads
// that a commit builds on go there, since a cache entry may predate the
// last commit.
func Uncached(s Store) Store {
	for {
		c, ok := s.(interface{ Primary() Store })
		if !ok {
			return s
		}
		s = c.Primary()
	}
}
