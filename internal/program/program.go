// =============================
// File: internal/program/program.go
// =============================
package program

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/runtime"
)

// Program is the delegated trade-execution authority program.
type Program struct {
	id     solana.PublicKey
	logger *zap.Logger
}

// New creates the program bound to programID.
func New(programID solana.PublicKey, logger *zap.Logger) *Program {
	return &Program{
		id:     programID,
		logger: logger.Named("authority_program"),
	}
}

func (p *Program) ProgramID() solana.PublicKey {
	return p.id
}

// Process dispatches on the 8-byte instruction discriminator.
func (p *Program) Process(ic *runtime.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	if len(data) < 8 {
		return runtime.ErrInvalidInstructionData
	}
	var d discriminator
	copy(d[:], data[:8])
	dec := bin.NewBorshDecoder(data[8:])

	switch d {
	case initializeDiscriminator:
		var keys [3]solana.PublicKey
		for i := range keys {
			k, err := readPublicKey(dec)
			if err != nil {
				return fmt.Errorf("%w: initialize: %v", runtime.ErrInvalidInstructionData, err)
			}
			keys[i] = k
		}
		return p.initialize(ic, accounts, keys[0], keys[1], keys[2])
	case updateConfigDiscriminator:
		params, err := decodeUpdateConfigParams(dec)
		if err != nil {
			return fmt.Errorf("%w: update_config: %v", runtime.ErrInvalidInstructionData, err)
		}
		return p.updateConfig(ic, accounts, params)
	case delegateAuthorityDiscriminator:
		amount, err := dec.ReadUint64(littleEndian)
		if err != nil {
			return fmt.Errorf("%w: delegate_authority: %v", runtime.ErrInvalidInstructionData, err)
		}
		return p.delegateAuthority(ic, accounts, amount)
	case revokeAuthorityDiscriminator:
		return p.revokeAuthority(ic, accounts)
	case executeSwapDiscriminator:
		args, err := decodeExecuteSwapArgs(dec)
		if err != nil {
			return fmt.Errorf("%w: execute_swap: %v", runtime.ErrInvalidInstructionData, err)
		}
		return p.executeSwap(ic, accounts, args)
	default:
		return fmt.Errorf("%w: unknown instruction %x", runtime.ErrInvalidInstructionData, d)
	}
}

func requireAccounts(accounts []*solana.AccountMeta, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("%w: want %d, got %d", runtime.ErrNotEnoughAccountKeys, n, len(accounts))
	}
	return nil
}

// loadPlatformConfig fails closed on any address, owner or layout mismatch.
func (p *Program) loadPlatformConfig(ic *runtime.InvokeContext, key solana.PublicKey) (*PlatformConfig, error) {
	want, _, err := DerivePlatformConfigAddress(p.id)
	if err != nil {
		return nil, err
	}
	if !key.Equals(want) {
		return nil, fmt.Errorf("%w: %s is not the platform config address", ErrInvalidAccount, key)
	}
	acct, ok := ic.Account(key)
	if !ok {
		return nil, fmt.Errorf("%w: platform config not initialized", ErrInvalidAccount)
	}
	if !acct.Owner.Equals(p.id) {
		return nil, fmt.Errorf("%w: platform config owned by %s", ErrInvalidAccount, acct.Owner)
	}
	return DecodePlatformConfig(acct.Data)
}

// loadDelegatedAuthority returns (nil, nil) when no record exists at key.
func (p *Program) loadDelegatedAuthority(ic *runtime.InvokeContext, key solana.PublicKey) (*DelegatedAuthority, error) {
	acct, ok := ic.Account(key)
	if !ok {
		return nil, nil
	}
	if !acct.Owner.Equals(p.id) {
		return nil, fmt.Errorf("%w: delegation record owned by %s", ErrInvalidAccount, acct.Owner)
	}
	return DecodeDelegatedAuthority(acct.Data)
}

func (p *Program) storeRecord(ic *runtime.InvokeContext, key solana.PublicKey, data []byte) error {
	acct, ok := ic.Account(key)
	if !ok {
		return fmt.Errorf("%w: %s", runtime.ErrAccountNotFound, key)
	}
	acct.Data = data
	return ic.SetAccount(key, acct)
}

func loadTokenAccount(ic *runtime.InvokeContext, key solana.PublicKey) (*token.Account, error) {
	acct, ok := ic.Account(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", runtime.ErrAccountNotFound, key)
	}
	if !acct.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("%w: %s", runtime.ErrInvalidTokenAccount, key)
	}
	return runtime.DecodeTokenAccount(acct.Data)
}
