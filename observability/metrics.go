package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// ModuleMetrics returns the lazily-initialised registry tracking JSON-RPC
// module activity across the KYC, Vault, and Property surfaces.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "brickvault",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "brickvault",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "brickvault",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. status should be the
// HTTP status ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// VaultMetrics tracks the Vault's solvency-relevant state as gauges and the
// liquidation outcomes as counters, so operators can alert on the same
// quantities the invariants in spec.md §8 describe.
type VaultMetrics struct {
	availableLiquidity prometheus.Gauge
	totalCapacity      prometheus.Gauge
	queueDepth         prometheus.Gauge
	controlledMode     prometheus.Gauge
	activeTokens       *prometheus.GaugeVec
	liquidationsByMode *prometheus.CounterVec
	liquidationsQueued prometheus.Counter
}

// Vault returns the singleton Vault/Property metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			availableLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "brickvault",
				Subsystem: "vault",
				Name:      "available_liquidity",
				Help:      "Current available USDC liquidity in the vault (buffer included, queued requests not yet deducted), in stablecoin smallest units.",
			}),
			totalCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "brickvault",
				Subsystem: "vault",
				Name:      "total_capacity",
				Help:      "Net USDC ever funded into the vault minus withdrawals, in stablecoin smallest units.",
			}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "brickvault",
				Subsystem: "vault",
				Name:      "queue_depth",
				Help:      "Number of liquidation requests currently pending in the FIFO queue.",
			}),
			controlledMode: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "brickvault",
				Subsystem: "vault",
				Name:      "controlled_mode",
				Help:      "1 when the vault is in controlled (queue-only) mode, 0 when in normal (instant) mode.",
			}),
			activeTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "brickvault",
				Subsystem: "property",
				Name:      "active_tokens",
				Help:      "Outstanding purchased-but-not-liquidated token count, segmented by property.",
			}, []string{"property"}),
			liquidationsByMode: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "brickvault",
				Subsystem: "vault",
				Name:      "liquidations_executed_total",
				Help:      "Count of liquidations paid out, segmented by mode (instant or queued-drain).",
			}, []string{"mode"}),
			liquidationsQueued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "brickvault",
				Subsystem: "vault",
				Name:      "liquidations_queued_total",
				Help:      "Count of liquidation requests deferred into the FIFO queue.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.availableLiquidity,
			vaultRegistry.totalCapacity,
			vaultRegistry.queueDepth,
			vaultRegistry.controlledMode,
			vaultRegistry.activeTokens,
			vaultRegistry.liquidationsByMode,
			vaultRegistry.liquidationsQueued,
		)
	})
	return vaultRegistry
}

// RecordBalances updates the available/capacity/queue/mode gauges.
func (m *VaultMetrics) RecordBalances(available, totalCapacity *big.Int, queueDepth uint64, controlled bool) {
	if m == nil {
		return
	}
	m.availableLiquidity.Set(bigToFloat(available))
	m.totalCapacity.Set(bigToFloat(totalCapacity))
	m.queueDepth.Set(float64(queueDepth))
	if controlled {
		m.controlledMode.Set(1)
	} else {
		m.controlledMode.Set(0)
	}
}

// RecordActiveTokens updates the active-token gauge for a single property.
func (m *VaultMetrics) RecordActiveTokens(property string, tokens *big.Int) {
	if m == nil {
		return
	}
	m.activeTokens.WithLabelValues(labelAsset(property)).Set(bigToFloat(tokens))
}

// RecordLiquidationExecuted increments the executed counter for the given mode.
func (m *VaultMetrics) RecordLiquidationExecuted(mode string) {
	if m == nil {
		return
	}
	m.liquidationsByMode.WithLabelValues(labelAsset(mode)).Inc()
}

// RecordLiquidationQueued increments the queued counter.
func (m *VaultMetrics) RecordLiquidationQueued() {
	if m == nil {
		return
	}
	m.liquidationsQueued.Inc()
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
