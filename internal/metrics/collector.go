// ==================================
// File: internal/metrics/collector.go
// ==================================
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/memeflow/copytrade/internal/commission"
	"github.com/memeflow/copytrade/internal/events"
	"github.com/memeflow/copytrade/internal/program"
)

const namespace = "memeflow"

// Collector holds the settlement engine's Prometheus metrics.
type Collector struct {
	settlements      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	contractCalls    *prometheus.CounterVec
	commissionAmount *prometheus.CounterVec
	performanceFees  prometheus.Counter
	rankPromotions   *prometheus.CounterVec
	inflight         prometheus.Gauge
}

// NewCollector registers every metric with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Closed copy trades processed, by outcome",
		}, []string{"status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_stage_duration_seconds",
			Help:      "Duration of each settlement stage",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"stage"}),
		contractCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_transactions_total",
			Help:      "Authority program transactions, by operation and result code",
		}, []string{"operation", "result"}),
		commissionAmount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_distributed_quote_total",
			Help:      "Network commission distributed, in quote units",
		}, []string{"recipient"}),
		performanceFees: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "performance_fee_base_units_total",
			Help:      "Performance fees collected on chain, in base units",
		}),
		rankPromotions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_promotions_total",
			Help:      "Affiliate promotions, by new rank",
		}, []string{"rank"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "settlements_inflight",
			Help:      "Settlements currently being processed",
		}),
	}
}

// ObserveStage records how long a settlement stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordContractCall counts an authority program transaction. Program errors
// are labelled with their name.
func (c *Collector) RecordContractCall(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		var pe *program.Error
		var op *program.OperationError
		switch {
		case errors.As(err, &op):
			result = op.Kind.Name
		case errors.As(err, &pe):
			result = pe.Name
		}
	}
	c.contractCalls.WithLabelValues(operation, result).Inc()
}

// SettlementStarted and SettlementDone bracket one settlement.
func (c *Collector) SettlementStarted() { c.inflight.Inc() }

func (c *Collector) SettlementDone(status string) {
	c.inflight.Dec()
	c.settlements.WithLabelValues(status).Inc()
}

// HandleEvent updates counters from settlement events. Subscribe it with
// events.AllEvents.
func (c *Collector) HandleEvent(_ context.Context, e events.Event) error {
	switch ev := e.(type) {
	case *events.SwapExecutedEvent:
		c.performanceFees.Add(float64(ev.PerformanceFee))
	case *events.CommissionDistributedEvent:
		for id, amount := range ev.Amounts {
			label := "network"
			if id == commission.PlatformSinkID {
				label = "platform"
			}
			f, _ := amount.Float64()
			c.commissionAmount.WithLabelValues(label).Add(f)
		}
	case *events.RankPromotedEvent:
		c.rankPromotions.WithLabelValues(commission.Rank(ev.ToRank).String()).Inc()
	}
	return nil
}
