// =============================
// File: internal/program/swap_ops.go
// =============================
package program

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/runtime"
)

var littleEndian = binary.LittleEndian

// execute_swap: [platform_config, swap_executor s, delegated_authority,
// external_swap_program, user_source_token w, user_destination_token w,
// fee_collector_token w, token_program, ...venue accounts]
func (p *Program) executeSwap(ic *runtime.InvokeContext, accounts []*solana.AccountMeta, args ExecuteSwapArgs) error {
	if err := requireAccounts(accounts, 8); err != nil {
		return err
	}
	configKey := accounts[0].PublicKey
	executor := accounts[1].PublicKey
	recordKey := accounts[2].PublicKey
	venue := accounts[3].PublicKey
	source := accounts[4].PublicKey
	destination := accounts[5].PublicKey
	feeCollector := accounts[6].PublicKey
	tokenProgram := accounts[7].PublicKey
	route := accounts[8:]

	cfg, err := p.loadPlatformConfig(ic, configKey)
	if err != nil {
		return err
	}

	// 1. caller is the platform executor
	if !ic.IsSigner(executor) || !executor.Equals(cfg.SwapExecutorAuthority) {
		return ErrUnauthorized
	}

	record, err := p.loadDelegatedAuthority(ic, recordKey)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotFound
	}
	addr, _, err := DeriveDelegatedAuthorityAddress(p.id, record.User)
	if err != nil {
		return err
	}
	if !recordKey.Equals(addr) {
		return ErrInvalidAccount
	}

	// 2. the record was granted to this executor
	if !record.AllowedSwapAuthority.Equals(executor) {
		return ErrUnauthorized
	}
	// 3. the grant is live
	if !record.IsActive {
		return ErrDelegationInactive
	}
	// 4. the venue is the pinned one
	if !venue.Equals(cfg.ExternalSwapProgramID) {
		return ErrUntrustedSwapProgram
	}
	if !tokenProgram.Equals(solana.TokenProgramID) {
		return ErrInvalidAccount
	}

	for _, key := range []solana.PublicKey{source, destination} {
		acc, err := loadTokenAccount(ic, key)
		if err != nil {
			return wrapErr(ErrTokenOperationFailed, err)
		}
		if !acc.Owner.Equals(record.User) {
			return ErrUnauthorized
		}
	}
	before, err := loadTokenAccount(ic, destination)
	if err != nil {
		return wrapErr(ErrTokenOperationFailed, err)
	}
	if err := checkFeeCollector(ic, feeCollector, destination, before.Mint, cfg.AdminAuthority); err != nil {
		return err
	}

	swapIx, err := NewVenueSwapInstruction(venue, source, destination, executor, route, VenueSwap{
		AmountIn:         args.AmountIn,
		MinimumAmountOut: args.MinimumAmountOut,
		Route:            args.RoutePayload,
	})
	if err != nil {
		return err
	}
	if err := ic.Invoke(swapIx); err != nil {
		return wrapErr(ErrSwapFailed, err)
	}

	after, err := loadTokenAccount(ic, destination)
	if err != nil {
		return wrapErr(ErrSwapFailed, err)
	}
	if after.Amount < before.Amount {
		return wrapErr(ErrSwapFailed, fmt.Errorf("destination balance decreased from %d to %d", before.Amount, after.Amount))
	}
	amountOut := after.Amount - before.Amount

	fees := ComputeFees(amountOut, args.CostBasis)
	if fees.PerformanceFee > 0 {
		collect := token.NewTransferInstruction(fees.PerformanceFee, destination, feeCollector, executor, nil).Build()
		if err := ic.Invoke(collect); err != nil {
			return wrapErr(ErrTokenOperationFailed, fmt.Errorf("collect performance fee: %w", err))
		}
	}

	receipt := &SwapReceipt{
		AmountIn:  args.AmountIn,
		AmountOut: amountOut,
		CostBasis: args.CostBasis,
		Fees:      fees,
	}
	data, err := receipt.MarshalBinary()
	if err != nil {
		return err
	}
	ic.SetReturnData(data)

	ic.Log("Swap executed: user=%s in=%d out=%d profit=%d fee=%d",
		record.User, args.AmountIn, amountOut, fees.RealizedProfit, fees.PerformanceFee)
	p.logger.Info("Swap executed",
		zap.Stringer("user", record.User),
		zap.Stringer("swap_executor", executor),
		zap.Uint64("amount_in", args.AmountIn),
		zap.Uint64("amount_out", amountOut),
		zap.Uint64("realized_profit", fees.RealizedProfit),
		zap.Uint64("performance_fee", fees.PerformanceFee),
		zap.Uint64("network_fee", fees.NetworkFee))
	return nil
}

// Fee collector belongs to the platform admin and holds the destination mint.
func checkFeeCollector(ic *runtime.InvokeContext, collector, destination, mint, admin solana.PublicKey) error {
	if collector.Equals(destination) {
		return wrapErr(ErrInvalidAccount, fmt.Errorf("fee collector %s is the destination account", collector))
	}
	acc, err := loadTokenAccount(ic, collector)
	if err != nil {
		return wrapErr(ErrInvalidAccount, fmt.Errorf("fee collector: %w", err))
	}
	if !acc.Owner.Equals(admin) {
		return wrapErr(ErrInvalidAccount, fmt.Errorf("fee collector %s is owned by %s, not the platform admin", collector, acc.Owner))
	}
	if !acc.Mint.Equals(mint) {
		return wrapErr(ErrInvalidAccount, fmt.Errorf("fee collector mint %s differs from destination mint %s", acc.Mint, mint))
	}
	return nil
}
