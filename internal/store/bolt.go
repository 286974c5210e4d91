package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/atmx/dividend-exchange/internal/model"
)

var (
	bucketState    = []byte("state")
	bucketAccounts = []byte("accounts")
	bucketLots     = []byte("lots")
	bucketEvents   = []byte("events")

	stateKey = []byte("current")
)

// BoltStore implements Store on a single bbolt file. Lots live under
// "{account}\x00{id}" with an 8-byte big-endian id so a prefix scan yields
// them in sequence; events are keyed by the bucket sequence.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the database at path. The parent directory
// is created if it does not exist.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("boltstore: create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketState, bucketAccounts, bucketLots, bucketEvents} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) LoadState(_ context.Context) (*model.GlobalState, error) {
	var st model.GlobalState
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketState).Get(stateKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: load state: %w", err)
	}
	return &st, nil
}

func (s *BoltStore) LoadAccount(_ context.Context, id model.AccountID) (*model.Account, error) {
	a := model.Account{ID: id}
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get([]byte(id))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: load account %s: %w", id, err)
	}
	return &a, nil
}

func (s *BoltStore) LoadLots(_ context.Context, id model.AccountID) ([]model.Lot, error) {
	var lots []model.Lot
	prefix := lotPrefix(id)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketLots).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var l model.Lot
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			lots = append(lots, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: load lots %s: %w", id, err)
	}
	return lots, nil
}

func (s *BoltStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			var a model.Account
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			accounts = append(accounts, a)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: list accounts: %w", err)
	}
	return accounts, nil
}

func (s *BoltStore) EventsByAccount(_ context.Context, id model.AccountID) ([]model.Event, error) {
	var events []model.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(_, v []byte) error {
			var e model.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if involves(e, id) {
				events = append(events, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: events %s: %w", id, err)
	}
	return events, nil
}

// Commit writes cs and runs settle inside one bbolt read-write transaction.
// Returning an error from settle rolls the transaction back.
func (s *BoltStore) Commit(ctx context.Context, cs *model.ChangeSet, settle SettleFunc) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sb := tx.Bucket(bucketState)
		var stored model.GlobalState
		if data := sb.Get(stateKey); data != nil {
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("boltstore: decode state: %w", err)
			}
		}
		if cs.State.Version != stored.Version+1 {
			return fmt.Errorf("%w: stored %d, commit %d", ErrVersionConflict, stored.Version, cs.State.Version)
		}
		if err := putJSON(sb, stateKey, cs.State); err != nil {
			return err
		}

		ab := tx.Bucket(bucketAccounts)
		for _, a := range cs.Accounts {
			if err := putJSON(ab, []byte(a.ID), a); err != nil {
				return err
			}
		}

		lb := tx.Bucket(bucketLots)
		for _, l := range cs.Lots {
			if l.ID > 1 && lb.Get(lotKey(l.Account, l.ID-1)) == nil {
				return fmt.Errorf("%w: %s/%d", ErrLotSequence, l.Account, l.ID)
			}
			if err := putJSON(lb, lotKey(l.Account, l.ID), l); err != nil {
				return err
			}
		}

		eb := tx.Bucket(bucketEvents)
		for _, e := range cs.Events {
			seq, err := eb.NextSequence()
			if err != nil {
				return fmt.Errorf("boltstore: event sequence: %w", err)
			}
			if err := putJSON(eb, seqKey(seq), e); err != nil {
				return err
			}
		}

		if settle != nil {
			return settle(ctx)
		}
		return nil
	})
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("boltstore: encode %s: %w", key, err)
	}
	return b.Put(key, data)
}

func lotPrefix(id model.AccountID) []byte {
	return append([]byte(id), 0)
}

func lotKey(id model.AccountID, lot uint64) []byte {
	return binary.BigEndian.AppendUint64(lotPrefix(id), lot)
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
