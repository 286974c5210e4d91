// Package model defines the core domain types shared across the exchange.
// All amounts are integer base units carried in num.Uint and num.Int, never
// float64.
package model

import (
	"time"

	"github.com/atmx/dividend-exchange/internal/num"
)

// AccountID is the opaque caller identity supplied by the host.
type AccountID string

// GlobalState is the process-wide ledger singleton.
type GlobalState struct {
	TotalSupply num.Uint `json:"total_supply"`

	// ProfitPerShare is the cumulative dividend per token base unit, scaled
	// by dividend.Magnitude. It never decreases.
	ProfitPerShare num.Uint `json:"profit_per_share"`

	// ProfitRemainder carries the scaled fraction of the last fee credit that
	// did not divide evenly across the eligible supply.
	ProfitRemainder num.Uint `json:"profit_remainder"`

	// PendingFees holds fees collected while no eligible holder existed.
	PendingFees num.Uint `json:"pending_fees"`

	CurveReserve  num.Uint `json:"curve_reserve"`  // value backing circulating supply
	DividendPool  num.Uint `json:"dividend_pool"`  // value owed to accounts (fees + proceeds)
	FeesCollected num.Uint `json:"fees_collected"` // cumulative
	DividendsPaid num.Uint `json:"dividends_paid"` // cumulative withdrawals + reinvestments

	Paused    bool      `json:"paused"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is created lazily on first interaction and never destroyed.
type Account struct {
	ID      AccountID `json:"id"`
	Balance num.Uint  `json:"balance"`

	// PayoutsTo is subtracted from ProfitPerShare*Balance to yield the
	// account's outstanding scaled dividend share. It may go negative.
	PayoutsTo num.Int  `json:"payouts_to"`
	Unclaimed num.Uint `json:"unclaimed"`

	Invested  num.Uint `json:"invested"`
	Withdrawn num.Uint `json:"withdrawn"`

	LastLotID uint64 `json:"last_lot_id"` // lot sequence; never decreases
	OpenLots  uint64 `json:"open_lots"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lot is an individually tracked purchase. IDs start at 1 per account and
// are never reused; sold lots stay in place as tombstones.
type Lot struct {
	Account       AccountID  `json:"account"`
	ID            uint64     `json:"id"`
	PurchasePrice num.Uint   `json:"purchase_price"` // average value per whole token
	ValueCost     num.Uint   `json:"value_cost"`
	Tokens        num.Uint   `json:"tokens"`
	Sold          bool       `json:"sold"`
	CreatedAt     time.Time  `json:"created_at"`
	SoldAt        *time.Time `json:"sold_at,omitempty"`
}

// EventKind names a settled trade record.
type EventKind string

const (
	EventPurchase     EventKind = "purchase"
	EventSale         EventKind = "sale"
	EventWithdrawal   EventKind = "withdrawal"
	EventReinvestment EventKind = "reinvestment"
	EventTransfer     EventKind = "transfer"
)

// Event is an immutable record of one settled trade leg.
// Once committed, events are never modified or deleted.
type Event struct {
	ID           string    `json:"id"`
	Kind         EventKind `json:"kind"`
	Account      AccountID `json:"account"`
	Counterparty AccountID `json:"counterparty,omitempty"`
	Value        num.Uint  `json:"value"`  // value in (buy) or out (sale, withdrawal)
	Tokens       num.Uint  `json:"tokens"` // tokens minted, burnt or moved
	Fee          num.Uint  `json:"fee"`
	Dividends    num.Uint  `json:"dividends"` // fee value distributed to holders by this leg
	LotID        uint64    `json:"lot_id,omitempty"`
	Supply       num.Uint  `json:"supply"` // total supply after the leg
	Timestamp    time.Time `json:"timestamp"`
}

// ChangeSet is everything one trade writes. Stores apply it atomically.
type ChangeSet struct {
	State    GlobalState
	Accounts []Account
	Lots     []Lot
	Events   []Event
}
