// ==================================
// File: internal/events/types.go
// ==================================
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of event.
type EventType string

const (
	SettlementStarted     EventType = "settlement.started"
	SwapExecuted          EventType = "settlement.swap_executed"
	CommissionDistributed EventType = "settlement.commission_distributed"
	SettlementFailed      EventType = "settlement.failed"
	RankPromoted          EventType = "affiliate.rank_promoted"

	// AllEvents subscribes a handler to every event type.
	AllEvents EventType = "*"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now().UTC()}
}

func (e BaseEvent) Type() EventType {
	return e.EventType
}

func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// SettlementStartedEvent is emitted when a closed copy trade is picked up.
type SettlementStartedEvent struct {
	BaseEvent
	CopyTradeID string
	FollowerID  string
}

// SwapExecutedEvent is emitted after the delegated swap commits.
type SwapExecutedEvent struct {
	BaseEvent
	CopyTradeID    string
	FollowerID     string
	Signature      string
	AmountIn       uint64
	AmountOut      uint64
	RealizedProfit uint64
	PerformanceFee uint64
}

// CommissionDistributedEvent is emitted once the settlement is persisted.
type CommissionDistributedEvent struct {
	BaseEvent
	CopyTradeID      string
	FollowerID       string
	Profit           decimal.Decimal
	NetworkFee       decimal.Decimal
	TotalDistributed decimal.Decimal
	// Amounts by recipient, the platform sink included.
	Amounts map[string]decimal.Decimal
}

// SettlementFailedEvent is emitted when a settlement stops with an error.
type SettlementFailedEvent struct {
	BaseEvent
	CopyTradeID string
	FollowerID  string
	Stage       string // "swap", "upline", "persist", "ranking"
	Error       error
}

// RankPromotedEvent is emitted when an affiliate qualifies for a higher rank.
type RankPromotedEvent struct {
	BaseEvent
	UserID        string
	FromRank      int
	ToRank        int
	NetworkProfit decimal.Decimal
}
