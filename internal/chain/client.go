// ==================================
// File: internal/chain/client.go
// ==================================
package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/runtime"
)

// Client submits transactions to a deployed cluster over JSON-RPC and reports
// results in the same shape as the local runtime.
type Client struct {
	rpc    *rpc.Client
	logger *zap.Logger

	commitment   rpc.CommitmentType
	pollInterval time.Duration
	confirmWait  time.Duration
}

// NewClient создаёт клиент для RPC URL.
func NewClient(rpcURL string, logger *zap.Logger) *Client {
	return &Client{
		rpc:          rpc.New(rpcURL),
		logger:       logger.Named("chain"),
		commitment:   rpc.CommitmentConfirmed,
		pollInterval: 500 * time.Millisecond,
		confirmWait:  30 * time.Second,
	}
}

// LatestBlockhash returns the cluster's latest blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		c.logger.Error("GetLatestBlockhash error", zap.Error(err))
		return solana.Hash{}, err
	}
	return result.Value.Blockhash, nil
}

// GetAccount fetches raw account state. Missing accounts map to runtime.ErrAccountNotFound.
func (c *Client) GetAccount(ctx context.Context, key solana.PublicKey) (*runtime.Account, error) {
	result, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, runtime.ErrAccountNotFound
		}
		c.logger.Debug("GetAccountInfo error", zap.Stringer("pubkey", key), zap.Error(err))
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, runtime.ErrAccountNotFound
	}
	return &runtime.Account{
		Owner:      result.Value.Owner,
		Lamports:   result.Value.Lamports,
		Data:       result.Value.Data.GetBinary(),
		Executable: result.Value.Executable,
	}, nil
}

// Submit sends a signed transaction with preflight, waits for confirmation
// and returns its logs and return data.
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction) (*runtime.Result, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		mapped := mapSendError(err)
		c.logger.Warn("SendTransaction rejected", zap.Error(mapped))
		return nil, mapped
	}

	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return nil, err
	}

	logs, err := c.transactionLogs(ctx, sig)
	if err != nil {
		// транзакция уже подтверждена, логи только для receipt
		c.logger.Warn("failed to fetch transaction logs", zap.Stringer("signature", sig), zap.Error(err))
	}

	res := &runtime.Result{Signature: sig, Logs: logs}
	res.ReturnProgram, res.ReturnData = parseReturnData(logs)
	return res, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	timeout := time.After(c.confirmWait)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig)
		case <-ticker.C:
			statuses, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				c.logger.Warn("Error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				logs, _ := c.transactionLogs(ctx, sig)
				return decodeTransactionError(status.Err, logs)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized ||
				status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
				return nil
			}
		}
	}
}

func (c *Client) transactionLogs(ctx context.Context, sig solana.Signature) ([]string, error) {
	version := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Meta == nil {
		return nil, nil
	}
	return out.Meta.LogMessages, nil
}

// parseReturnData extracts the last "Program return: <program> <base64>" line.
func parseReturnData(logs []string) (solana.PublicKey, []byte) {
	const prefix = "Program return: "
	for i := len(logs) - 1; i >= 0; i-- {
		rest, ok := strings.CutPrefix(logs[i], prefix)
		if !ok {
			continue
		}
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			continue
		}
		programID, err := solana.PublicKeyFromBase58(parts[0])
		if err != nil {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			continue
		}
		return programID, data
	}
	return solana.PublicKey{}, nil
}
