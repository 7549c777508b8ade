// =============================
// File: internal/venue/venue.go
// =============================
package venue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/program"
	"github.com/memeflow/copytrade/internal/runtime"
)

// ErrSlippageExceeded is returned when the pool cannot pay the minimum output.
var ErrSlippageExceeded = errors.New("slippage exceeded")

var seedPoolAuthority = []byte("pool_authority")

const feeDenominator = 10_000

// ConstantProduct is a single-hop x*y=k swap program. Route accounts:
// [pool_in w, pool_out w, pool_authority, token_program]. The route payload
// is the pool fee in basis points (u16 LE), empty for no fee.
type ConstantProduct struct {
	id     solana.PublicKey
	logger *zap.Logger
}

func New(programID solana.PublicKey, logger *zap.Logger) *ConstantProduct {
	return &ConstantProduct{id: programID, logger: logger.Named("venue")}
}

func (v *ConstantProduct) ProgramID() solana.PublicKey {
	return v.id
}

// PoolAuthority is the PDA that owns the pool's token accounts.
func (v *ConstantProduct) PoolAuthority() (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedPoolAuthority}, v.id)
}

// RouteAccounts returns the accounts execute_swap forwards for a pool hop.
func (v *ConstantProduct) RouteAccounts(poolIn, poolOut solana.PublicKey) ([]*solana.AccountMeta, error) {
	authority, _, err := v.PoolAuthority()
	if err != nil {
		return nil, err
	}
	return solana.AccountMetaSlice{
		solana.Meta(poolIn).WRITE(),
		solana.Meta(poolOut).WRITE(),
		solana.Meta(authority),
		solana.Meta(solana.TokenProgramID),
	}, nil
}

// EncodeRoute builds the route payload for a pool fee.
func EncodeRoute(feeBps uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, feeBps)
	return b
}

func decodeRoute(route []byte) (uint16, error) {
	switch len(route) {
	case 0:
		return 0, nil
	case 2:
		fee := binary.LittleEndian.Uint16(route)
		if fee >= feeDenominator {
			return 0, fmt.Errorf("pool fee %d bps out of range", fee)
		}
		return fee, nil
	default:
		return 0, fmt.Errorf("invalid route payload length %d", len(route))
	}
}

// CalculateOutput is the constant-product quote with the fee taken from the input:
// out = y * a' / (x + a'), a' = a * (1 - fee).
func CalculateOutput(reserveIn, reserveOut, amountIn uint64, feeBps uint16) uint64 {
	if reserveIn == 0 || reserveOut == 0 || amountIn == 0 {
		return 0
	}
	a := new(big.Int).SetUint64(amountIn)
	a.Mul(a, big.NewInt(int64(feeDenominator-int(feeBps))))

	num := new(big.Int).Mul(new(big.Int).SetUint64(reserveOut), a)
	den := new(big.Int).Mul(new(big.Int).SetUint64(reserveIn), big.NewInt(feeDenominator))
	den.Add(den, a)
	return new(big.Int).Quo(num, den).Uint64()
}

func (v *ConstantProduct) Process(ic *runtime.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	swap, err := program.DecodeVenueSwap(data)
	if err != nil {
		return fmt.Errorf("%w: %v", runtime.ErrInvalidInstructionData, err)
	}
	if len(accounts) < 6 {
		return runtime.ErrNotEnoughAccountKeys
	}
	source := accounts[0].PublicKey
	destination := accounts[1].PublicKey
	authority := accounts[2].PublicKey
	poolIn := accounts[3].PublicKey
	poolOut := accounts[4].PublicKey
	poolAuthority := accounts[5].PublicKey

	wantAuthority, bump, err := v.PoolAuthority()
	if err != nil {
		return err
	}
	if !poolAuthority.Equals(wantAuthority) {
		return fmt.Errorf("pool authority mismatch: %s", poolAuthority)
	}
	feeBps, err := decodeRoute(swap.Route)
	if err != nil {
		return err
	}

	in, err := v.tokenAccount(ic, poolIn)
	if err != nil {
		return err
	}
	out, err := v.tokenAccount(ic, poolOut)
	if err != nil {
		return err
	}
	if !in.Owner.Equals(wantAuthority) || !out.Owner.Equals(wantAuthority) {
		return fmt.Errorf("pool accounts not owned by pool authority")
	}

	amountOut := CalculateOutput(in.Amount, out.Amount, swap.AmountIn, feeBps)
	if amountOut < swap.MinimumAmountOut {
		return fmt.Errorf("%w: out %d < min %d", ErrSlippageExceeded, amountOut, swap.MinimumAmountOut)
	}

	deposit := token.NewTransferInstruction(swap.AmountIn, source, poolIn, authority, nil).Build()
	if err := ic.Invoke(deposit); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	withdraw := token.NewTransferInstruction(amountOut, poolOut, destination, wantAuthority, nil).Build()
	if err := ic.InvokeSigned(withdraw, [][]byte{seedPoolAuthority, {bump}}); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	v.logger.Debug("Pool swap",
		zap.Uint64("amount_in", swap.AmountIn),
		zap.Uint64("amount_out", amountOut),
		zap.Uint16("fee_bps", feeBps))
	return nil
}

func (v *ConstantProduct) tokenAccount(ic *runtime.InvokeContext, key solana.PublicKey) (*token.Account, error) {
	acct, ok := ic.Account(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", runtime.ErrAccountNotFound, key)
	}
	return runtime.DecodeTokenAccount(acct.Data)
}
