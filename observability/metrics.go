// Package observability hosts the prometheus instrumentation for the lending
// service.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics records RPC operation activity and mirrors the market's
// headline aggregates.
type LendingMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	totalDeposits     prometheus.Gauge
	totalBorrows      prometheus.Gauge
	circulatingShares prometheus.Gauge
	feePool           prometheus.Gauge
	activeLoans       prometheus.Gauge
	borrowAprBps      prometheus.Gauge
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// Metrics returns the lazily-initialised lending metrics registry.
func Metrics() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendex",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendex",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method.",
			}, []string{"method"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendex",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			totalDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendex", Subsystem: "market", Name: "total_deposits",
				Help: "Base units deposited including accrued depositor interest.",
			}),
			totalBorrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendex", Subsystem: "market", Name: "total_borrows",
				Help: "Aggregate live debt in base units.",
			}),
			circulatingShares: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendex", Subsystem: "market", Name: "circulating_shares",
				Help: "Outstanding pool-share token supply.",
			}),
			feePool: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendex", Subsystem: "market", Name: "fee_pool",
				Help: "Protocol fees accumulated in base units.",
			}),
			activeLoans: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendex", Subsystem: "market", Name: "active_loans",
				Help: "Open loan records.",
			}),
			borrowAprBps: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendex", Subsystem: "market", Name: "borrow_apr_bps",
				Help: "Borrow APR in force for the next accrual slice.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.requests,
			lendingRegistry.errors,
			lendingRegistry.latency,
			lendingRegistry.totalDeposits,
			lendingRegistry.totalBorrows,
			lendingRegistry.circulatingShares,
			lendingRegistry.feePool,
			lendingRegistry.activeLoans,
			lendingRegistry.borrowAprBps,
		)
	})
	return lendingRegistry
}

// ObserveRequest records one handled RPC call.
func (m *LendingMetrics) ObserveRequest(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(method).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SetMarketGauges mirrors the market aggregates after a mutation.
func (m *LendingMetrics) SetMarketGauges(totalDeposits, totalBorrows, shares, feePool, activeLoans, aprBps uint64) {
	if m == nil {
		return
	}
	m.totalDeposits.Set(float64(totalDeposits))
	m.totalBorrows.Set(float64(totalBorrows))
	m.circulatingShares.Set(float64(shares))
	m.feePool.Set(float64(feePool))
	m.activeLoans.Set(float64(activeLoans))
	m.borrowAprBps.Set(float64(aprBps))
}
