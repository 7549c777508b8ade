// =============================
// File: internal/engine/source.go
// =============================
package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

const maxTradeLine = 1 << 20

// ReadTrades decodes one TradeClosed per line from r and sends it to out.
// Blank lines and lines starting with '#' are skipped; malformed lines are
// logged and skipped. out is not closed.
func ReadTrades(ctx context.Context, r io.Reader, out chan<- *TradeClosed, logger *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxTradeLine)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		var t TradeClosed
		if err := json.Unmarshal(raw, &t); err != nil {
			logger.Warn("Skipping malformed trade", zap.Int("line", line), zap.Error(err))
			continue
		}
		if err := t.Validate(); err != nil {
			logger.Warn("Skipping invalid trade", zap.Int("line", line), zap.Error(err))
			continue
		}

		select {
		case out <- &t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read trades: %w", err)
	}
	return nil
}
