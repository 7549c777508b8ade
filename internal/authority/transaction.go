// =============================
// File: internal/authority/transaction.go
// =============================
package authority

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/runtime"
	"github.com/memeflow/copytrade/internal/wallet"
)

// send builds, signs and submits ix with signer as fee payer. Transient host
// errors resubmit with a fresh blockhash; everything else is returned as is.
func (c *Client) send(ctx context.Context, signer *wallet.Wallet, ix solana.Instruction) (*runtime.Result, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxInterval = c.retryInterval * 10

	notify := func(err error, d time.Duration) {
		c.logger.Info("Resubmitting transaction", zap.Error(err), zap.Duration("backoff", d))
	}

	op := func() (*runtime.Result, error) {
		tx, err := c.createSignedTransaction(ctx, signer, ix)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		res, err := c.submitter.Submit(ctx, tx)
		if err != nil {
			if runtime.IsTransient(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return res, nil
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithMaxElapsedTime(c.maxElapsed),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Transaction committed",
		zap.Stringer("signature", res.Signature),
		zap.Stringer("signer", signer.PublicKey))
	return res, nil
}

func (c *Client) createSignedTransaction(ctx context.Context, signer *wallet.Wallet, ix solana.Instruction) (*solana.Transaction, error) {
	blockhash, err := c.submitter.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(signer.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err := signer.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}
