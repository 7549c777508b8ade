// =============================
// File: internal/localnet/localnet.go
// =============================
package localnet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/program"
	"github.com/memeflow/copytrade/internal/runtime"
	"github.com/memeflow/copytrade/internal/venue"
)

// Cluster is an in-process host with the authority program and a
// constant-product venue deployed.
type Cluster struct {
	*runtime.Runtime
	Program *program.Program
	Venue   *venue.ConstantProduct
	logger  *zap.Logger
}

// Pool is a funded venue pool for one direction of a pair.
type Pool struct {
	In  solana.PublicKey
	Out solana.PublicKey
}

// New deploys both programs on a fresh ledger.
func New(programID, venueID solana.PublicKey, logger *zap.Logger) *Cluster {
	rt := runtime.New(runtime.NewLedger(), logger)
	c := &Cluster{
		Runtime: rt,
		Program: program.New(programID, logger),
		Venue:   venue.New(venueID, logger),
		logger:  logger.Named("localnet"),
	}
	rt.Register(c.Program)
	rt.Register(c.Venue)
	return c
}

// CreateTokenAccount funds a new token account and returns its address.
func (c *Cluster) CreateTokenAccount(mint, owner solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	key := solana.NewWallet().PublicKey()
	if err := c.PutTokenAccount(key, mint, owner, amount); err != nil {
		return solana.PublicKey{}, err
	}
	return key, nil
}

// PutTokenAccount writes a token account at a chosen address.
func (c *Cluster) PutTokenAccount(key, mint, owner solana.PublicKey, amount uint64) error {
	acct, err := runtime.NewTokenAccount(mint, owner, amount)
	if err != nil {
		return fmt.Errorf("token account %s: %w", key, err)
	}
	c.Ledger().Put(key, acct)
	return nil
}

// CreatePool funds both sides of a venue pool owned by the pool authority.
func (c *Cluster) CreatePool(mintIn, mintOut solana.PublicKey, reserveIn, reserveOut uint64) (*Pool, error) {
	authority, _, err := c.Venue.PoolAuthority()
	if err != nil {
		return nil, err
	}
	in, err := c.CreateTokenAccount(mintIn, authority, reserveIn)
	if err != nil {
		return nil, err
	}
	out, err := c.CreateTokenAccount(mintOut, authority, reserveOut)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Pool created",
		zap.Stringer("pool_in", in),
		zap.Stringer("pool_out", out),
		zap.Uint64("reserve_in", reserveIn),
		zap.Uint64("reserve_out", reserveOut))
	return &Pool{In: in, Out: out}, nil
}

// RouteAccounts returns the venue accounts for a swap through p.
func (c *Cluster) RouteAccounts(p *Pool) ([]*solana.AccountMeta, error) {
	return c.Venue.RouteAccounts(p.In, p.Out)
}

// TokenBalance reads a committed token account balance.
func (c *Cluster) TokenBalance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	acct, err := c.GetAccount(ctx, key)
	if err != nil {
		return 0, err
	}
	tok, err := runtime.DecodeTokenAccount(acct.Data)
	if err != nil {
		return 0, err
	}
	return tok.Amount, nil
}
