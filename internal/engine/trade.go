// =============================
// File: internal/engine/trade.go
// =============================
package engine

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/memeflow/copytrade/internal/authority"
	"github.com/memeflow/copytrade/internal/program"
)

var errInvalidTrade = errors.New("invalid trade")

// RouteAccount is one venue account forwarded by execute_swap.
type RouteAccount struct {
	Pubkey   solana.PublicKey `json:"pubkey"`
	Writable bool             `json:"writable"`
}

// TradeClosed is a follower's closed copy trade waiting for settlement.
// Amounts are in token base units.
type TradeClosed struct {
	CopyTradeID      string           `json:"copy_trade_id"`
	FollowerID       string           `json:"follower_id"`
	FollowerWallet   solana.PublicKey `json:"follower_wallet"`
	SourceToken      solana.PublicKey `json:"source_token"`
	DestinationToken solana.PublicKey `json:"destination_token"`
	FeeCollector     solana.PublicKey `json:"fee_collector"`
	Venue            solana.PublicKey `json:"venue"`
	Route            []RouteAccount   `json:"route"`
	RoutePayload     []byte           `json:"route_payload,omitempty"`
	AmountIn         uint64           `json:"amount_in"`
	MinimumOut       uint64           `json:"minimum_out"`
	// CostBasis is what the position cost in the destination token; 0 for opening legs.
	CostBasis uint64 `json:"cost_basis"`
}

// Key identifies the settlement for in-flight locking.
func (t *TradeClosed) Key() string {
	return t.FollowerID + "/" + t.CopyTradeID
}

func (t *TradeClosed) Validate() error {
	switch {
	case t.CopyTradeID == "":
		return fmt.Errorf("%w: empty copy_trade_id", errInvalidTrade)
	case t.FollowerID == "":
		return fmt.Errorf("%w: empty follower_id", errInvalidTrade)
	case t.FollowerWallet.IsZero():
		return fmt.Errorf("%w: empty follower_wallet", errInvalidTrade)
	case t.SourceToken.IsZero() || t.DestinationToken.IsZero():
		return fmt.Errorf("%w: missing token accounts", errInvalidTrade)
	case t.FeeCollector.IsZero():
		return fmt.Errorf("%w: missing fee collector", errInvalidTrade)
	case t.Venue.IsZero():
		return fmt.Errorf("%w: missing venue", errInvalidTrade)
	case t.AmountIn == 0:
		return fmt.Errorf("%w: zero amount_in", errInvalidTrade)
	}
	return nil
}

func (t *TradeClosed) swapRequest() authority.SwapRequest {
	remaining := make([]*solana.AccountMeta, 0, len(t.Route))
	for _, r := range t.Route {
		meta := solana.Meta(r.Pubkey)
		if r.Writable {
			meta = meta.WRITE()
		}
		remaining = append(remaining, meta)
	}
	return authority.SwapRequest{
		Accounts: program.ExecuteSwapAccounts{
			User:                 t.FollowerWallet,
			ExternalSwapProgram:  t.Venue,
			UserSourceToken:      t.SourceToken,
			UserDestinationToken: t.DestinationToken,
			FeeCollectorToken:    t.FeeCollector,
			Remaining:            remaining,
		},
		Args: program.ExecuteSwapArgs{
			AmountIn:         t.AmountIn,
			MinimumAmountOut: t.MinimumOut,
			CostBasis:        t.CostBasis,
			RoutePayload:     t.RoutePayload,
		},
	}
}
