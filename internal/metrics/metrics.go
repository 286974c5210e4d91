// Package metrics provides Prometheus instrumentation for the exchange.
package metrics

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

var (
	// TradesTotal counts settled trade legs, partitioned by event kind.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_trades_total",
		Help: "Total number of settled trade legs",
	}, []string{"kind"})

	// TradeLatency observes end-to-end trade execution, commit included.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// Rejections counts failed operations by error class.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_rejections_total",
		Help: "Operations rejected, by error class",
	}, []string{"op", "class"})

	// TotalSupply tracks circulating supply in base units. Values past 2^53
	// are approximate.
	TotalSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exchange_total_supply",
		Help: "Circulating token supply in base units",
	})

	// DividendPool tracks value owed to accounts.
	DividendPool = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exchange_dividend_pool",
		Help: "Value held for dividends and proceeds",
	})

	// CurveReserve tracks value backing the circulating supply.
	CurveReserve = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exchange_curve_reserve",
		Help: "Value backing circulating supply",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exchange_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// PublishFailures counts events the broker refused.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_publish_failures_total",
		Help: "Events that failed to publish",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveState refreshes the ledger gauges.
func ObserveState(st *model.GlobalState) {
	TotalSupply.Set(approx(st.TotalSupply))
	DividendPool.Set(approx(st.DividendPool))
	CurveReserve.Set(approx(st.CurveReserve))
}

func approx(u num.Uint) float64 {
	f, _ := new(big.Float).SetInt(u.Big()).Float64()
	return f
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
