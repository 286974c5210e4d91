// Package trade provides the HTTP handlers for trading against the exchange
// and querying accounts, lots and prices.
//
// Amounts travel as base-10 strings of base units; num.Uint never passes
// through float64.
package trade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/dividend-exchange/internal/exchange"
	"github.com/atmx/dividend-exchange/internal/identity"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
	"github.com/atmx/dividend-exchange/internal/units"
)

// Service adapts the exchange to HTTP.
type Service struct {
	ex            *exchange.Exchange
	valueDecimals uint
}

// NewService creates a new trade service. valueDecimals is used only for the
// display fields of price responses.
func NewService(ex *exchange.Exchange, valueDecimals uint) *Service {
	return &Service{ex: ex, valueDecimals: valueDecimals}
}

// Register mounts the API routes on r.
func (s *Service) Register(r chi.Router) {
	r.Get("/state", s.GetState)
	r.Get("/price", s.GetPrice)
	r.Get("/quote/buy", s.QuoteBuy)
	r.Get("/quote/sell", s.QuoteSell)

	r.Post("/buy", s.Buy)
	r.Post("/sell", s.Sell)
	r.Post("/transfer", s.Transfer)
	r.Post("/withdraw", s.Withdraw)
	r.Post("/reinvest", s.Reinvest)
	r.Post("/exit", s.Exit)

	r.Get("/accounts/{accountID}", s.GetAccount)
	r.Get("/accounts/{accountID}/lots", s.GetLots)
	r.Get("/accounts/{accountID}/lots/{lotID}", s.GetLot)
	r.Get("/accounts/{accountID}/history", s.GetHistory)

	r.Post("/admin/pause", s.SetPaused)
}

// --- Request/Response types ---

// BuyRequest is the JSON body for POST /buy.
type BuyRequest struct {
	Account string `json:"account"`
	Value   string `json:"value"`
}

// SellRequest is the JSON body for POST /sell. A non-zero LotID sells that
// lot and ignores Tokens.
type SellRequest struct {
	Account string `json:"account"`
	Tokens  string `json:"tokens,omitempty"`
	LotID   uint64 `json:"lot_id,omitempty"`
}

// TransferRequest is the JSON body for POST /transfer.
type TransferRequest struct {
	Account string `json:"account"`
	To      string `json:"to"`
	Tokens  string `json:"tokens,omitempty"`
	LotID   uint64 `json:"lot_id,omitempty"`
}

// WithdrawRequest is the JSON body for POST /withdraw. An empty Amount
// withdraws everything claimable.
type WithdrawRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount,omitempty"`
}

// AccountRequest is the JSON body for POST /reinvest and POST /exit.
type AccountRequest struct {
	Account string `json:"account"`
}

// PauseRequest is the JSON body for POST /admin/pause.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// PriceResponse is the JSON body returned from GET /price.
type PriceResponse struct {
	BuyPrice         num.Uint `json:"buy_price"`
	SellPrice        num.Uint `json:"sell_price"`
	BuyPriceDisplay  string   `json:"buy_price_display"`
	SellPriceDisplay string   `json:"sell_price_display"`
	Supply           num.Uint `json:"supply"`
}

// --- Trade handlers ---

// Buy handles POST /api/v1/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := account(w, req.Account)
	if !ok {
		return
	}
	value, ok := amount(w, "value", req.Value)
	if !ok {
		return
	}
	receipt, err := s.ex.Buy(r.Context(), id, value)
	respond(w, receipt, err)
}

// Sell handles POST /api/v1/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := account(w, req.Account)
	if !ok {
		return
	}
	if req.LotID != 0 {
		receipt, err := s.ex.SellLot(r.Context(), id, req.LotID)
		respond(w, receipt, err)
		return
	}
	tokens, ok := amount(w, "tokens", req.Tokens)
	if !ok {
		return
	}
	receipt, err := s.ex.Sell(r.Context(), id, tokens)
	respond(w, receipt, err)
}

// Transfer handles POST /api/v1/transfer
func (s *Service) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	from, ok := account(w, req.Account)
	if !ok {
		return
	}
	to, ok := account(w, req.To)
	if !ok {
		return
	}
	if req.LotID != 0 {
		receipt, err := s.ex.TransferLot(r.Context(), from, to, req.LotID)
		respond(w, receipt, err)
		return
	}
	tokens, ok := amount(w, "tokens", req.Tokens)
	if !ok {
		return
	}
	receipt, err := s.ex.Transfer(r.Context(), from, to, tokens)
	respond(w, receipt, err)
}

// Withdraw handles POST /api/v1/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := account(w, req.Account)
	if !ok {
		return
	}
	if req.Amount == "" {
		receipt, err := s.ex.WithdrawAll(r.Context(), id)
		respond(w, receipt, err)
		return
	}
	value, ok := amount(w, "amount", req.Amount)
	if !ok {
		return
	}
	receipt, err := s.ex.Withdraw(r.Context(), id, value)
	respond(w, receipt, err)
}

// Reinvest handles POST /api/v1/reinvest
func (s *Service) Reinvest(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := account(w, req.Account)
	if !ok {
		return
	}
	receipt, err := s.ex.Reinvest(r.Context(), id)
	respond(w, receipt, err)
}

// Exit handles POST /api/v1/exit
func (s *Service) Exit(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := account(w, req.Account)
	if !ok {
		return
	}
	receipt, err := s.ex.Exit(r.Context(), id)
	respond(w, receipt, err)
}

// SetPaused handles POST /api/v1/admin/pause
func (s *Service) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.ex.SetPaused(r.Context(), req.Paused)
	respond(w, receipt, err)
}

// --- Query handlers ---

// GetState handles GET /api/v1/state
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.ex.State(r.Context())
	respond(w, st, err)
}

// GetPrice handles GET /api/v1/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buy, err := s.ex.BuyPrice(ctx)
	if err != nil {
		fail(w, err)
		return
	}
	sell, err := s.ex.SellPrice(ctx)
	if err != nil {
		fail(w, err)
		return
	}
	st, err := s.ex.State(ctx)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{
		BuyPrice:         buy,
		SellPrice:        sell,
		BuyPriceDisplay:  units.Format(buy, s.valueDecimals),
		SellPriceDisplay: units.Format(sell, s.valueDecimals),
		Supply:           st.TotalSupply,
	})
}

// QuoteBuy handles GET /api/v1/quote/buy?value=
func (s *Service) QuoteBuy(w http.ResponseWriter, r *http.Request) {
	value, ok := amount(w, "value", r.URL.Query().Get("value"))
	if !ok {
		return
	}
	q, err := s.ex.QuoteBuy(r.Context(), value)
	respond(w, q, err)
}

// QuoteSell handles GET /api/v1/quote/sell?tokens=
func (s *Service) QuoteSell(w http.ResponseWriter, r *http.Request) {
	tokens, ok := amount(w, "tokens", r.URL.Query().Get("tokens"))
	if !ok {
		return
	}
	q, err := s.ex.QuoteSell(r.Context(), tokens)
	respond(w, q, err)
}

// GetAccount handles GET /api/v1/accounts/{accountID}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := account(w, chi.URLParam(r, "accountID"))
	if !ok {
		return
	}
	a, err := s.ex.Account(r.Context(), id)
	respond(w, a, err)
}

// GetLots handles GET /api/v1/accounts/{accountID}/lots
func (s *Service) GetLots(w http.ResponseWriter, r *http.Request) {
	id, ok := account(w, chi.URLParam(r, "accountID"))
	if !ok {
		return
	}
	lots, err := s.ex.Lots(r.Context(), id)
	if lots == nil {
		lots = []model.Lot{}
	}
	respond(w, lots, err)
}

// GetLot handles GET /api/v1/accounts/{accountID}/lots/{lotID}
// Returns the lot with its profit or loss at the current supply.
func (s *Service) GetLot(w http.ResponseWriter, r *http.Request) {
	id, ok := account(w, chi.URLParam(r, "accountID"))
	if !ok {
		return
	}
	lotID, err := strconv.ParseUint(chi.URLParam(r, "lotID"), 10, 64)
	if err != nil || lotID == 0 {
		writeError(w, "invalid lot id", http.StatusBadRequest)
		return
	}
	report, err := s.ex.LotReport(r.Context(), id, lotID)
	respond(w, report, err)
}

// GetHistory handles GET /api/v1/accounts/{accountID}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := account(w, chi.URLParam(r, "accountID"))
	if !ok {
		return
	}
	events, err := s.ex.History(r.Context(), id)
	if events == nil {
		events = []model.Event{}
	}
	respond(w, events, err)
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func account(w http.ResponseWriter, raw string) (model.AccountID, bool) {
	id, err := identity.ParseAccount(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func amount(w http.ResponseWriter, field, raw string) (num.Uint, bool) {
	if raw == "" {
		writeError(w, field+" is required", http.StatusBadRequest)
		return num.Zero, false
	}
	u, err := num.ParseUint(raw)
	if err != nil {
		writeError(w, "invalid "+field+": "+err.Error(), http.StatusBadRequest)
		return num.Zero, false
	}
	return u, true
}

// StatusFor maps an exchange error to an HTTP status.
func StatusFor(err error) int {
	switch exchange.Class(err) {
	case "input", "curve":
		return http.StatusBadRequest
	case "reserve", "paused", "limit", "conflict":
		return http.StatusConflict
	case "transfer":
		return http.StatusBadGateway
	case "reentrant":
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, exchange.ErrInvariant) {
		msg = "internal error"
	}
	writeError(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
