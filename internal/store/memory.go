package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/dividend-exchange/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	state    model.GlobalState
	accounts map[model.AccountID]model.Account
	lots     map[model.AccountID][]model.Lot
	events   []model.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[model.AccountID]model.Account),
		lots:     make(map[model.AccountID][]model.Lot),
	}
}

func (s *MemoryStore) LoadState(_ context.Context) (*model.GlobalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	return &st, nil
}

func (s *MemoryStore) LoadAccount(_ context.Context, id model.AccountID) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return &model.Account{ID: id}, nil
	}
	return &a, nil
}

func (s *MemoryStore) LoadLots(_ context.Context, id model.AccountID) ([]model.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lots := make([]model.Lot, len(s.lots[id]))
	copy(lots, s.lots[id])
	return lots, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *MemoryStore) EventsByAccount(_ context.Context, id model.AccountID) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.events {
		if involves(e, id) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Commit stages the touched lot sequences aside and applies the change set
// only after settle succeeds. Untouched accounts and lots are never copied.
func (s *MemoryStore) Commit(ctx context.Context, cs *model.ChangeSet, settle SettleFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.State.Version != s.state.Version+1 {
		return fmt.Errorf("%w: stored %d, commit %d", ErrVersionConflict, s.state.Version, cs.State.Version)
	}

	staged := make(map[model.AccountID][]model.Lot)
	for _, l := range cs.Lots {
		ls, ok := staged[l.Account]
		if !ok {
			// Copy before the first write so the live slice stays intact.
			ls = append([]model.Lot(nil), s.lots[l.Account]...)
		}
		switch {
		case l.ID >= 1 && l.ID <= uint64(len(ls)):
			ls[l.ID-1] = l
		case l.ID == uint64(len(ls))+1:
			ls = append(ls, l)
		default:
			return fmt.Errorf("%w: %s/%d after %d lots", ErrLotSequence, l.Account, l.ID, len(ls))
		}
		staged[l.Account] = ls
	}

	if settle != nil {
		if err := settle(ctx); err != nil {
			return err
		}
	}

	s.state = cs.State
	for _, a := range cs.Accounts {
		s.accounts[a.ID] = a
	}
	for id, ls := range staged {
		s.lots[id] = ls
	}
	s.events = append(s.events, cs.Events...)
	return nil
}
