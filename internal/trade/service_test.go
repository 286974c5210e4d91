package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/dividend-exchange/internal/curve"
	"github.com/atmx/dividend-exchange/internal/exchange"
	"github.com/atmx/dividend-exchange/internal/fee"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
	"github.com/atmx/dividend-exchange/internal/payout"
	"github.com/atmx/dividend-exchange/internal/store"
	"github.com/atmx/dividend-exchange/internal/trade"
)

type env struct {
	router chi.Router
	fail   bool
}

// newTestEnv creates a Service over an in-memory exchange priced at
// 100 + 10*supply whole tokens with 10% fees.
func newTestEnv(t *testing.T, policy exchange.Policy) *env {
	t.Helper()
	e := &env{}
	sender := payout.Func(func(context.Context, model.AccountID, num.Uint) error {
		if e.fail {
			return payout.ErrRejected
		}
		return nil
	})
	ex, err := exchange.New(store.NewMemoryStore(), exchange.Config{
		Curve:  curve.Params{BasePrice: num.NewUint(100), Slope: num.NewUint(10)},
		Fees:   fee.Schedule{Entry: 10, Exit: 10, Transfer: 10},
		Policy: policy,
	}, sender)
	if err != nil {
		t.Fatal(err)
	}
	svc := trade.NewService(ex, 2)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Register)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d: %s", w.Code, want, w.Body.String())
	}
}

// --- Trade execution tests ---

func TestBuy(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{})

	w := e.do(t, "POST", "/api/v1/buy", trade.BuyRequest{Account: "alice", Value: "1000"})
	expectStatus(t, w, http.StatusOK)

	receipt := decodeBody[exchange.Receipt](t, w)
	if len(receipt.Events) != 1 {
		t.Fatalf("events = %d", len(receipt.Events))
	}
	if got := receipt.Events[0].Tokens.String(); got != "6" {
		t.Errorf("tokens = %s, want 6", got)
	}
	if got := receipt.Account.Balance.String(); got != "6" {
		t.Errorf("balance = %s, want 6", got)
	}
	if got := receipt.State.TotalSupply.String(); got != "6" {
		t.Errorf("supply = %s, want 6", got)
	}
}

func TestBuy_InvalidInput(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{})

	tests := []struct {
		name string
		body any
	}{
		{"zero", trade.BuyRequest{Account: "alice", Value: "0"}},
		{"negative", trade.BuyRequest{Account: "alice", Value: "-5"}},
		{"missing value", trade.BuyRequest{Account: "alice"}},
		{"bad account", trade.BuyRequest{Account: "not an id", Value: "1000"}},
		{"empty account", trade.BuyRequest{Value: "1000"}},
		{"too small", trade.BuyRequest{Account: "alice", Value: "50"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, "POST", "/api/v1/buy", tt.body)
			expectStatus(t, w, http.StatusBadRequest)
		})
	}

	req := httptest.NewRequest("POST", "/api/v1/buy", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestSell_Oversell(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{})
	e.do(t, "POST", "/api/v1/buy", trade.BuyRequest{Account: "alice", Value: "1000"})

	w := e.do(t, "POST", "/api/v1/sell", trade.SellRequest{Account: "alice", Tokens: "7"})
	expectStatus(t, w, http.StatusBadRequest)

	w = e.do(t, "GET", "/api/v1/accounts/alice", nil)
	expectStatus(t, w, http.StatusOK)
	view := decodeBody[exchange.AccountView](t, w)
	if got := view.Balance.String(); got != "6" {
		t.Errorf("balance = %s, want 6", got)
	}
}

func TestSellAndWithdraw(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{})
	e.do(t, "POST", "/api/v1/buy", trade.BuyRequest{Account: "alice", Value: "1000"})
	e.do(t, "POST", "/api/v1/buy", trade.BuyRequest{Account: "bob", Value: "1000"})

	w := e.do(t, "POST", "/api/v1/sell", trade.SellRequest{Account: "alice", Tokens: "6"})
	expectStatus(t, w, http.StatusOK)
	receipt := decodeBody[exchange.Receipt](t, w)
	if got := receipt.Paid.String(); got != "918" {
		t.Errorf("paid = %s, want 918", got)
	}

	w = e.do(t, "POST", "/api/v1/withdraw", trade.WithdrawRequest{Account: "alice"})
	expectStatus(t, w, http.StatusOK)
	receipt = decodeBody[exchange.Receipt](t, w)
	if got := receipt.Paid.String(); got != "199" {
		t.Errorf("withdrawn = %s, want 199", got)
	}

	// Nothing left to claim.
	w = e.do(t, "POST", "/api/v1/withdraw", trade.WithdrawRequest{Account: "alice", Amount: "1"})
	expectStatus(t, w, http.StatusConflict)
}

func TestTransferFailure(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{})
	e.do(t, "POST", "/api/v1/buy", trade.BuyRequest{Account: "alice", Value: "1000"})

	e.fail = true
	w := e.do(t, "POST", "/api/v1/exit", trade.AccountRequest{Account: "alice"})
	expectStatus(t, w, http.StatusBadGateway)

	e.fail = false
	w = e.do(t, "POST", "/api/v1/exit", trade.AccountRequest{Account: "alice"})
	expectStatus(t, w, http.StatusOK)
}

func TestTransferAndHistory(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{})
	e.do(t, "POST", "/api/v1/buy", trade.BuyRequest{Account: "alice", Value: "1000"})

	w := e.do(t, "POST", "/api/v1/transfer", trade.TransferRequest{Account: "alice", To: "bob", Tokens: "5"})
	expectStatus(t, w, http.StatusOK)

	w = e.do(t, "GET", "/api/v1/accounts/bob/history", nil)
	expectStatus(t, w, http.StatusOK)
	events := decodeBody[[]model.Event](t, w)
	if len(events) != 1 || events[0].Kind != model.EventTransfer {
		t.Fatalf("history = %+v", events)
	}
	if events[0].Counterparty != "bob" {
		t.Errorf("counterparty = %s", events[0].Counterparty)
	}

	w = e.do(t, "POST", "/api/v1/transfer", trade.TransferRequest{Account: "alice", To: "alice", Tokens: "1"})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestLots(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{Lots: exchange.LotsExclusive})
	e.do(t, "POST", "/api/v1/buy", trade.BuyRequest{Account: "alice", Value: "1000"})

	w := e.do(t, "POST", "/api/v1/sell", trade.SellRequest{Account: "alice", Tokens: "1"})
	expectStatus(t, w, http.StatusBadRequest)

	w = e.do(t, "GET", "/api/v1/accounts/alice/lots", nil)
	expectStatus(t, w, http.StatusOK)
	if lots := decodeBody[[]model.Lot](t, w); len(lots) != 1 {
		t.Fatalf("lots = %+v", lots)
	}

	w = e.do(t, "GET", "/api/v1/accounts/alice/lots/1", nil)
	expectStatus(t, w, http.StatusOK)
	var report struct {
		CurrentValue string `json:"current_value"`
		ProfitLoss   string `json:"profit_loss"`
	}
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.CurrentValue != "780" || report.ProfitLoss != "-220" {
		t.Errorf("report = %+v", report)
	}

	w = e.do(t, "POST", "/api/v1/sell", trade.SellRequest{Account: "alice", LotID: 1})
	expectStatus(t, w, http.StatusOK)

	w = e.do(t, "GET", "/api/v1/accounts/alice/lots/1", nil)
	expectStatus(t, w, http.StatusBadRequest)
	w = e.do(t, "GET", "/api/v1/accounts/alice/lots/zero", nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestPause(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{})

	w := e.do(t, "POST", "/api/v1/admin/pause", trade.PauseRequest{Paused: true})
	expectStatus(t, w, http.StatusOK)

	w = e.do(t, "POST", "/api/v1/buy", trade.BuyRequest{Account: "alice", Value: "1000"})
	expectStatus(t, w, http.StatusConflict)

	w = e.do(t, "GET", "/api/v1/state", nil)
	expectStatus(t, w, http.StatusOK)
	if st := decodeBody[model.GlobalState](t, w); !st.Paused {
		t.Error("state not paused")
	}
}

// --- Query tests ---

func TestPriceAndQuotes(t *testing.T) {
	e := newTestEnv(t, exchange.Policy{})

	w := e.do(t, "GET", "/api/v1/price", nil)
	expectStatus(t, w, http.StatusOK)
	price := decodeBody[trade.PriceResponse](t, w)
	if price.BuyPrice.String() != "117" || price.SellPrice.String() != "90" {
		t.Errorf("price = %s/%s", price.BuyPrice, price.SellPrice)
	}
	if price.BuyPriceDisplay != "1.17" || price.SellPriceDisplay != "0.9" {
		t.Errorf("display = %s/%s", price.BuyPriceDisplay, price.SellPriceDisplay)
	}

	w = e.do(t, "GET", "/api/v1/quote/buy?value=1000", nil)
	expectStatus(t, w, http.StatusOK)
	if q := decodeBody[exchange.Quote](t, w); q.Tokens.String() != "6" || q.Fee.String() != "100" {
		t.Errorf("buy quote = %+v", q)
	}

	w = e.do(t, "GET", "/api/v1/quote/sell?tokens=1", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = e.do(t, "GET", "/api/v1/quote/buy", nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{exchange.ErrZeroAmount, http.StatusBadRequest},
		{exchange.ErrCurve, http.StatusBadRequest},
		{exchange.ErrNothingToWithdraw, http.StatusConflict},
		{exchange.ErrPaused, http.StatusConflict},
		{exchange.ErrLimitExceeded, http.StatusConflict},
		{exchange.ErrConflict, http.StatusConflict},
		{exchange.ErrTransferFailed, http.StatusBadGateway},
		{exchange.ErrReentrant, http.StatusLocked},
		{exchange.ErrInvariant, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := trade.StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
