package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brickvault/corechain/native/common"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured domain events
// (VaultFunded, TokensPurchased, PositionLiquidated, ...) emitted by the KYC,
// Vault, and Property engines.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "brickvault",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of structured domain events emitted, segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Record increments the counter for the event's type. A nil event is ignored.
func (m *eventMetrics) Record(evt *common.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := strings.TrimSpace(evt.Type)
	if eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
}
