// =============================
// File: internal/authority/operations.go
// =============================
package authority

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/program"
	"github.com/memeflow/copytrade/internal/runtime"
	"github.com/memeflow/copytrade/internal/wallet"
)

// ErrMissingReceipt is returned when a committed swap did not report a receipt.
var ErrMissingReceipt = errors.New("swap committed without receipt")

// Initialize creates the platform config. payer signs and pays.
func (c *Client) Initialize(ctx context.Context, payer *wallet.Wallet, admin, swapExecutor, externalSwapProgram solana.PublicKey) (solana.Signature, error) {
	ix, err := program.NewInitializeInstruction(c.programID, payer.PublicKey, admin, swapExecutor, externalSwapProgram)
	if err != nil {
		return solana.Signature{}, err
	}
	res, err := c.send(ctx, payer, ix)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("initialize: %w", err)
	}
	c.logger.Info("Platform initialized",
		zap.Stringer("admin", admin),
		zap.Stringer("swap_executor", swapExecutor),
		zap.Stringer("swap_program", externalSwapProgram))
	return res.Signature, nil
}

// UpdateConfig replaces the fields set in params.
func (c *Client) UpdateConfig(ctx context.Context, admin *wallet.Wallet, params program.UpdateConfigParams) (solana.Signature, error) {
	ix, err := program.NewUpdateConfigInstruction(c.programID, admin.PublicKey, params)
	if err != nil {
		return solana.Signature{}, err
	}
	res, err := c.send(ctx, admin, ix)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("update config: %w", err)
	}
	return res.Signature, nil
}

// DelegateAuthority approves swapExecutor for amount on tokenAccount and
// activates the user's delegation record.
func (c *Client) DelegateAuthority(ctx context.Context, user *wallet.Wallet, tokenAccount, swapExecutor solana.PublicKey, amount uint64) (solana.Signature, error) {
	ix, err := program.NewDelegateAuthorityInstruction(c.programID, user.PublicKey, tokenAccount, swapExecutor, amount)
	if err != nil {
		return solana.Signature{}, err
	}
	res, err := c.send(ctx, user, ix)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("delegate authority: %w", err)
	}
	return res.Signature, nil
}

// RevokeAuthority clears the token delegation and deactivates the record.
func (c *Client) RevokeAuthority(ctx context.Context, user *wallet.Wallet, tokenAccount solana.PublicKey) (solana.Signature, error) {
	ix, err := program.NewRevokeAuthorityInstruction(c.programID, user.PublicKey, tokenAccount)
	if err != nil {
		return solana.Signature{}, err
	}
	res, err := c.send(ctx, user, ix)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("revoke authority: %w", err)
	}
	return res.Signature, nil
}

// SwapRequest describes one delegated swap. SwapExecutor in Accounts is
// overwritten with the signing executor.
type SwapRequest struct {
	Accounts program.ExecuteSwapAccounts
	Args     program.ExecuteSwapArgs
}

// SwapResult is a committed swap and the receipt the program returned.
type SwapResult struct {
	Signature solana.Signature
	Receipt   *program.SwapReceipt
}

// ExecuteSwap runs a swap on behalf of the user recorded in req.
func (c *Client) ExecuteSwap(ctx context.Context, executor *wallet.Wallet, req SwapRequest) (*SwapResult, error) {
	req.Accounts.SwapExecutor = executor.PublicKey
	ix, err := program.NewExecuteSwapInstruction(c.programID, req.Accounts, req.Args)
	if err != nil {
		return nil, err
	}

	res, err := c.send(ctx, executor, ix)
	if err != nil {
		return nil, fmt.Errorf("execute swap: %w", err)
	}

	if !res.ReturnProgram.Equals(c.programID) || len(res.ReturnData) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingReceipt, res.Signature)
	}
	receipt, err := program.DecodeSwapReceipt(res.ReturnData)
	if err != nil {
		return nil, fmt.Errorf("decode receipt of %s: %w", res.Signature, err)
	}

	c.logger.Info("Swap executed",
		zap.Stringer("signature", res.Signature),
		zap.Stringer("user", req.Accounts.User),
		zap.Uint64("amount_in", receipt.AmountIn),
		zap.Uint64("amount_out", receipt.AmountOut),
		zap.Uint64("profit", receipt.Fees.RealizedProfit),
		zap.Uint64("performance_fee", receipt.Fees.PerformanceFee))
	return &SwapResult{Signature: res.Signature, Receipt: receipt}, nil
}

// PlatformConfig reads the platform config account.
func (c *Client) PlatformConfig(ctx context.Context) (*program.PlatformConfig, error) {
	addr, _, err := program.DerivePlatformConfigAddress(c.programID)
	if err != nil {
		return nil, err
	}
	data, err := c.programAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return program.DecodePlatformConfig(data)
}

// DelegatedAuthority reads user's delegation record. A missing record
// returns program.ErrNotFound.
func (c *Client) DelegatedAuthority(ctx context.Context, user solana.PublicKey) (*program.DelegatedAuthority, error) {
	addr, _, err := program.DeriveDelegatedAuthorityAddress(c.programID, user)
	if err != nil {
		return nil, err
	}
	data, err := c.programAccountData(ctx, addr)
	if errors.Is(err, runtime.ErrAccountNotFound) {
		return nil, program.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return program.DecodeDelegatedAuthority(data)
}

func (c *Client) programAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	acct, err := c.submitter.GetAccount(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	if !acct.Owner.Equals(c.programID) {
		return nil, fmt.Errorf("account %s owned by %s: %w", addr, acct.Owner, program.ErrInvalidAccount)
	}
	return acct.Data, nil
}
