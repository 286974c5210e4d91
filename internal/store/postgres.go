package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All amounts are stored as NUMERIC(78,0), wide enough for any 256-bit value,
// and cross the wire as decimal text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const accountColumns = `id, balance::TEXT, payouts_to::TEXT, unclaimed::TEXT, invested::TEXT,
		        withdrawn::TEXT, last_lot_id, open_lots, created_at, updated_at`

const lotColumns = `account_id, lot_id, purchase_price::TEXT, value_cost::TEXT, tokens::TEXT,
		        sold, created_at, sold_at`

const eventColumns = `id::TEXT, kind, account_id, counterparty, value::TEXT, tokens::TEXT,
		        fee::TEXT, dividends::TEXT, lot_id, supply::TEXT, timestamp`

func (s *PostgresStore) LoadState(ctx context.Context) (*model.GlobalState, error) {
	return loadState(ctx, s.pool, false)
}

func (s *PostgresStore) LoadAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, string(id))
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	defer rows.Close()

	accounts, err := scanAccounts(rows)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	if len(accounts) == 0 {
		return &model.Account{ID: id}, nil
	}
	return &accounts[0], nil
}

func (s *PostgresStore) LoadLots(ctx context.Context, id model.AccountID) ([]model.Lot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE account_id = $1 ORDER BY lot_id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLots(rows)
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAccounts(rows)
}

func (s *PostgresStore) EventsByAccount(ctx context.Context, id model.AccountID) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE account_id = $1 OR counterparty = $1 ORDER BY seq`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Commit writes cs and runs settle inside one transaction. The state row is
// locked with FOR UPDATE so concurrent processes serialize on it.
func (s *PostgresStore) Commit(ctx context.Context, cs *model.ChangeSet, settle SettleFunc) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	stored, err := loadState(ctx, tx, true)
	if err != nil {
		return err
	}
	if cs.State.Version != stored.Version+1 {
		return fmt.Errorf("%w: stored %d, commit %d", ErrVersionConflict, stored.Version, cs.State.Version)
	}

	st := cs.State
	_, err = tx.Exec(ctx,
		`INSERT INTO exchange_state (id, total_supply, profit_per_share, profit_remainder, pending_fees,
		        curve_reserve, dividend_pool, fees_collected, dividends_paid, paused, version, updated_at)
		 VALUES (1, $1::NUMERIC, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC,
		         $7::NUMERIC, $8::NUMERIC, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		        total_supply = EXCLUDED.total_supply, profit_per_share = EXCLUDED.profit_per_share,
		        profit_remainder = EXCLUDED.profit_remainder, pending_fees = EXCLUDED.pending_fees,
		        curve_reserve = EXCLUDED.curve_reserve, dividend_pool = EXCLUDED.dividend_pool,
		        fees_collected = EXCLUDED.fees_collected, dividends_paid = EXCLUDED.dividends_paid,
		        paused = EXCLUDED.paused, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		st.TotalSupply.String(), st.ProfitPerShare.String(), st.ProfitRemainder.String(),
		st.PendingFees.String(), st.CurveReserve.String(), st.DividendPool.String(),
		st.FeesCollected.String(), st.DividendsPaid.String(),
		st.Paused, int64(st.Version), st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	for _, a := range cs.Accounts {
		_, err = tx.Exec(ctx,
			`INSERT INTO accounts (id, balance, payouts_to, unclaimed, invested, withdrawn,
			        last_lot_id, open_lots, created_at, updated_at)
			 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET
			        balance = EXCLUDED.balance, payouts_to = EXCLUDED.payouts_to,
			        unclaimed = EXCLUDED.unclaimed, invested = EXCLUDED.invested,
			        withdrawn = EXCLUDED.withdrawn, last_lot_id = EXCLUDED.last_lot_id,
			        open_lots = EXCLUDED.open_lots, updated_at = EXCLUDED.updated_at`,
			string(a.ID), a.Balance.String(), a.PayoutsTo.String(), a.Unclaimed.String(),
			a.Invested.String(), a.Withdrawn.String(),
			int64(a.LastLotID), int64(a.OpenLots), a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("write account %s: %w", a.ID, err)
		}
	}

	for _, l := range cs.Lots {
		_, err = tx.Exec(ctx,
			`INSERT INTO lots (account_id, lot_id, purchase_price, value_cost, tokens, sold, created_at, sold_at)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)
			 ON CONFLICT (account_id, lot_id) DO UPDATE SET
			        sold = EXCLUDED.sold, sold_at = EXCLUDED.sold_at`,
			string(l.Account), int64(l.ID), l.PurchasePrice.String(), l.ValueCost.String(),
			l.Tokens.String(), l.Sold, l.CreatedAt, l.SoldAt,
		)
		if err != nil {
			return fmt.Errorf("write lot %s/%d: %w", l.Account, l.ID, err)
		}
	}

	for _, e := range cs.Events {
		_, err = tx.Exec(ctx,
			`INSERT INTO events (id, kind, account_id, counterparty, value, tokens, fee, dividends,
			        lot_id, supply, timestamp)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10::NUMERIC, $11)`,
			e.ID, string(e.Kind), string(e.Account), string(e.Counterparty),
			e.Value.String(), e.Tokens.String(), e.Fee.String(), e.Dividends.String(),
			int64(e.LotID), e.Supply.String(), e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("write event %s: %w", e.ID, err)
		}
	}

	if settle != nil {
		if err := settle(ctx); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadState(ctx context.Context, q querier, forUpdate bool) (*model.GlobalState, error) {
	query := `SELECT total_supply::TEXT, profit_per_share::TEXT, profit_remainder::TEXT,
	                 pending_fees::TEXT, curve_reserve::TEXT, dividend_pool::TEXT,
	                 fees_collected::TEXT, dividends_paid::TEXT, paused, version, updated_at
	          FROM exchange_state WHERE id = 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var st model.GlobalState
	var supply, pps, rem, pending, reserve, pool, fees, paid string
	var version int64
	err := q.QueryRow(ctx, query).Scan(&supply, &pps, &rem, &pending, &reserve, &pool,
		&fees, &paid, &st.Paused, &version, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.GlobalState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	p := parser{}
	st.TotalSupply = p.uint(supply)
	st.ProfitPerShare = p.uint(pps)
	st.ProfitRemainder = p.uint(rem)
	st.PendingFees = p.uint(pending)
	st.CurveReserve = p.uint(reserve)
	st.DividendPool = p.uint(pool)
	st.FeesCollected = p.uint(fees)
	st.DividendsPaid = p.uint(paid)
	st.Version = uint64(version)
	if p.err != nil {
		return nil, fmt.Errorf("decode state: %w", p.err)
	}
	return &st, nil
}

// pgxRows reads pgx rows into domain slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanAccounts(rows pgxRows) ([]model.Account, error) {
	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var id, bal, payouts, unclaimed, invested, withdrawn string
		var lastLot, openLots int64

		if err := rows.Scan(&id, &bal, &payouts, &unclaimed, &invested, &withdrawn,
			&lastLot, &openLots, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}

		p := parser{}
		a.ID = model.AccountID(id)
		a.Balance = p.uint(bal)
		a.PayoutsTo = p.int(payouts)
		a.Unclaimed = p.uint(unclaimed)
		a.Invested = p.uint(invested)
		a.Withdrawn = p.uint(withdrawn)
		a.LastLotID, a.OpenLots = uint64(lastLot), uint64(openLots)
		if p.err != nil {
			return nil, fmt.Errorf("decode account %s: %w", id, p.err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanLots(rows pgxRows) ([]model.Lot, error) {
	var lots []model.Lot
	for rows.Next() {
		var l model.Lot
		var account, price, cost, tokens string
		var id int64

		if err := rows.Scan(&account, &id, &price, &cost, &tokens,
			&l.Sold, &l.CreatedAt, &l.SoldAt); err != nil {
			return nil, err
		}

		p := parser{}
		l.Account, l.ID = model.AccountID(account), uint64(id)
		l.PurchasePrice = p.uint(price)
		l.ValueCost = p.uint(cost)
		l.Tokens = p.uint(tokens)
		if p.err != nil {
			return nil, fmt.Errorf("decode lot %s/%d: %w", account, id, p.err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func scanEvents(rows pgxRows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var kind, account, counterparty, value, tokens, fee, dividends, supply string
		var lotID int64

		if err := rows.Scan(&e.ID, &kind, &account, &counterparty, &value, &tokens,
			&fee, &dividends, &lotID, &supply, &e.Timestamp); err != nil {
			return nil, err
		}

		p := parser{}
		e.Kind = model.EventKind(kind)
		e.Account, e.Counterparty = model.AccountID(account), model.AccountID(counterparty)
		e.Value = p.uint(value)
		e.Tokens = p.uint(tokens)
		e.Fee = p.uint(fee)
		e.Dividends = p.uint(dividends)
		e.Supply = p.uint(supply)
		e.LotID = uint64(lotID)
		if p.err != nil {
			return nil, fmt.Errorf("decode event %s: %w", e.ID, p.err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// parser keeps the first decode error so a row can be decoded field by field.
type parser struct {
	err error
}

func (p *parser) uint(s string) num.Uint {
	v, err := num.ParseUint(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *parser) int(s string) num.Int {
	v, err := num.ParseInt(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}
