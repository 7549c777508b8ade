package engine_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/memeflow/copytrade/internal/engine"
	"github.com/memeflow/copytrade/internal/events"
	"github.com/memeflow/copytrade/internal/venue"
)

func TestReadTrades(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	src := solana.NewWallet().PublicKey()
	dst := solana.NewWallet().PublicKey()
	fee := solana.NewWallet().PublicKey()
	venueID := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	valid := fmt.Sprintf(`{"copy_trade_id":"t-1","follower_id":"u-1","follower_wallet":%q,"source_token":%q,`+
		`"destination_token":%q,"fee_collector":%q,"venue":%q,"route":[{"pubkey":%q,"writable":true}],`+
		`"route_payload":"GQA=","amount_in":1000,"minimum_out":900,"cost_basis":800}`,
		wallet, src, dst, fee, venueID, pool)
	input := strings.Join([]string{
		"# closed trades",
		valid,
		"",
		`{"copy_trade_id":`,
		`{"copy_trade_id":"t-2","follower_id":"u-1"}`,
	}, "\n")

	out := make(chan *engine.TradeClosed, 4)
	require.NoError(t, engine.ReadTrades(context.Background(), strings.NewReader(input), out, zaptest.NewLogger(t)))
	close(out)

	var got []*engine.TradeClosed
	for tr := range out {
		got = append(got, tr)
	}
	require.Len(t, got, 1)
	tr := got[0]
	assert.Equal(t, "t-1", tr.CopyTradeID)
	assert.Equal(t, "u-1/t-1", tr.Key())
	assert.Equal(t, wallet, tr.FollowerWallet)
	assert.Equal(t, venueID, tr.Venue)
	assert.Equal(t, []engine.RouteAccount{{Pubkey: pool, Writable: true}}, tr.Route)
	assert.Equal(t, venue.EncodeRoute(25), tr.RoutePayload)
	assert.Equal(t, uint64(800), tr.CostBasis)
}

func TestReadTradesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	line := `{"copy_trade_id":"t","follower_id":"u","follower_wallet":"` + solana.NewWallet().PublicKey().String() +
		`","source_token":"` + solana.NewWallet().PublicKey().String() +
		`","destination_token":"` + solana.NewWallet().PublicKey().String() +
		`","fee_collector":"` + solana.NewWallet().PublicKey().String() +
		`","venue":"` + solana.NewWallet().PublicKey().String() + `","amount_in":1}`

	err := engine.ReadTrades(ctx, strings.NewReader(line), make(chan *engine.TradeClosed), zaptest.NewLogger(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuditLogWritesRecipientRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "commissions.csv")
	audit, err := engine.NewAuditLog(path, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)

	ev := &events.CommissionDistributedEvent{
		BaseEvent:   events.NewBase(events.CommissionDistributed),
		CopyTradeID: "t-1",
		FollowerID:  "u-1",
		Profit:      decimal.NewFromInt(100),
		Amounts: map[string]decimal.Decimal{
			"memeflow": decimal.NewFromInt(14),
			"a":        decimal.NewFromInt(6),
		},
	}
	require.NoError(t, audit.HandleEvent(context.Background(), ev))
	// other events are ignored
	require.NoError(t, audit.HandleEvent(context.Background(), &events.SettlementStartedEvent{
		BaseEvent: events.NewBase(events.SettlementStarted),
	}))
	require.NoError(t, audit.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"time", "copy_trade_id", "follower_id", "recipient", "amount", "profit"}, rows[0])
	assert.Equal(t, []string{"t-1", "u-1", "a", "6", "100"}, rows[1][1:])
	assert.Equal(t, []string{"t-1", "u-1", "memeflow", "14", "100"}, rows[2][1:])
}
