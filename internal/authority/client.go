// =============================
// File: internal/authority/client.go
// =============================
package authority

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/runtime"
)

// Submitter is the host the client talks to: the local runtime or an RPC cluster.
type Submitter interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Submit(ctx context.Context, tx *solana.Transaction) (*runtime.Result, error)
	GetAccount(ctx context.Context, key solana.PublicKey) (*runtime.Account, error)
}

// Client builds, signs and submits authority program instructions.
type Client struct {
	programID solana.PublicKey
	submitter Submitter
	logger    *zap.Logger

	retryInterval time.Duration
	maxTries      uint
	maxElapsed    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the resubmission policy for transient host errors.
func WithRetry(initialInterval time.Duration, maxTries uint, maxElapsed time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = initialInterval
		c.maxTries = maxTries
		c.maxElapsed = maxElapsed
	}
}

func NewClient(programID solana.PublicKey, submitter Submitter, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		programID:     programID,
		submitter:     submitter,
		logger:        logger.Named("authority"),
		retryInterval: 200 * time.Millisecond,
		maxTries:      5,
		maxElapsed:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProgramID returns the authority program the client targets.
func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}
