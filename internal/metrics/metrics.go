// Package metrics는 엔진의 Prometheus 지표를 정의합니다.
// cmd/trader run 명령이 /metrics 엔드포인트로 노출합니다.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetguard_orders_total",
			Help: "Order intents submitted, by final result status",
		},
		[]string{"account", "reason", "status"},
	)

	orderAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetguard_order_attempts_total",
			Help: "Placement attempts including retries",
		},
		[]string{"account"},
	)

	evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetguard_cap_evictions_total",
			Help: "Positions force-closed to respect the position cap",
		},
		[]string{"account", "outcome"},
	)

	dustBlacklisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetguard_dust_blacklisted_total",
			Help: "Symbols moved to the dust blacklist",
		},
		[]string{"account"},
	)

	freeCapital = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetguard_free_capital_usd",
			Help: "Free capital after exposure, reservations and buffer",
		},
		[]string{"account"},
	)

	reservedCapital = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetguard_reserved_capital_usd",
			Help: "Capital held by in-flight orders",
		},
		[]string{"account"},
	)

	reservationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetguard_reservations_rejected_total",
			Help: "Reservations refused for insufficient capital",
		},
		[]string{"account"},
	)

	openPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetguard_open_positions",
			Help: "Counted (non-dust) open positions",
		},
		[]string{"account"},
	)

	cycleSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetguard_cycle_seconds",
			Help:    "Supervisor cycle duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"account", "mode"},
	)

	cycleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetguard_cycle_failures_total",
			Help: "Supervisor cycles that ended with at least one error",
		},
		[]string{"account"},
	)

	supervisorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetguard_supervisor_state",
			Help: "1 for the state each supervisor is currently in",
		},
		[]string{"account", "state"},
	)

	liquidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetguard_liquidation_passes_total",
			Help: "Emergency liquidation passes run",
		},
		[]string{"account"},
	)
)

func init() {
	prometheus.MustRegister(orders, orderAttempts)
	prometheus.MustRegister(evictions, dustBlacklisted)
	prometheus.MustRegister(freeCapital, reservedCapital, reservationsRejected)
	prometheus.MustRegister(openPositions, cycleSeconds, cycleFailures, supervisorState)
	prometheus.MustRegister(liquidations)
}

// Handler는 /metrics 핸들러를 반환합니다
func Handler() http.Handler { return promhttp.Handler() }

func IncOrder(account, reason, status string) { orders.WithLabelValues(account, reason, status).Inc() }
func AddOrderAttempts(account string, n int)  { orderAttempts.WithLabelValues(account).Add(float64(n)) }
func IncEviction(account, outcome string)     { evictions.WithLabelValues(account, outcome).Inc() }
func IncDustBlacklisted(account string)       { dustBlacklisted.WithLabelValues(account).Inc() }
func IncReservationRejected(account string)   { reservationsRejected.WithLabelValues(account).Inc() }
func IncCycleFailure(account string)          { cycleFailures.WithLabelValues(account).Inc() }
func IncLiquidation(account string)           { liquidations.WithLabelValues(account).Inc() }

func SetFreeCapital(account string, v decimal.Decimal) {
	freeCapital.WithLabelValues(account).Set(v.InexactFloat64())
}

func SetReservedCapital(account string, v decimal.Decimal) {
	reservedCapital.WithLabelValues(account).Set(v.InexactFloat64())
}

func SetOpenPositions(account string, n int) { openPositions.WithLabelValues(account).Set(float64(n)) }

func ObserveCycle(account, mode string, seconds float64) {
	cycleSeconds.WithLabelValues(account, mode).Observe(seconds)
}

// SetState는 계정의 현재 상태만 1로, 이전 상태는 0으로 표시합니다
func SetState(account, prev, next string) {
	if prev != "" {
		supervisorState.WithLabelValues(account, prev).Set(0)
	}
	supervisorState.WithLabelValues(account, next).Set(1)
}
