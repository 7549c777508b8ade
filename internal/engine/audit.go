// =============================
// File: internal/engine/audit.go
// =============================
package engine

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/events"
	"github.com/memeflow/copytrade/internal/logger"
)

var auditHeader = []string{"time", "copy_trade_id", "follower_id", "recipient", "amount", "profit"}

// AuditLog appends one CSV row per commission recipient of every settled trade.
type AuditLog struct {
	w *logger.CSVSink
}

func NewAuditLog(path string, flushInterval time.Duration, log *zap.Logger) (*AuditLog, error) {
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	w, err := logger.NewCSVSink(path, auditHeader, flushInterval, log.Named("audit"))
	if err != nil {
		return nil, err
	}
	return &AuditLog{w: w}, nil
}

// HandleEvent is an events.Handler for CommissionDistributed.
func (a *AuditLog) HandleEvent(_ context.Context, e events.Event) error {
	ev, ok := e.(*events.CommissionDistributedEvent)
	if !ok {
		return nil
	}

	recipients := make([]string, 0, len(ev.Amounts))
	for id := range ev.Amounts {
		recipients = append(recipients, id)
	}
	sort.Strings(recipients)

	ts := ev.Timestamp().Format(time.RFC3339Nano)
	for _, id := range recipients {
		err := a.w.Write([]string{
			ts, ev.CopyTradeID, ev.FollowerID, id, ev.Amounts[id].String(), ev.Profit.String(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *AuditLog) Close() error {
	return a.w.Close()
}
