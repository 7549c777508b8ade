// =============================
// File: internal/runtime/token.go
// =============================
package runtime

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// TokenAccountSize is the SPL token account layout size.
const TokenAccountSize = 165

// SPL token instruction tags handled natively.
const (
	tokenTransfer uint8 = 3
	tokenApprove  uint8 = 4
	tokenRevoke   uint8 = 5
)

// DecodeTokenAccount parses an SPL token account.
func DecodeTokenAccount(data []byte) (*token.Account, error) {
	if len(data) != TokenAccountSize {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidTokenAccount, len(data))
	}
	acc := &token.Account{}
	if err := bin.NewBinDecoder(data).Decode(acc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokenAccount, err)
	}
	return acc, nil
}

// EncodeTokenAccount writes acc in the SPL token account layout.
func EncodeTokenAccount(acc *token.Account) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(acc); err != nil {
		return nil, err
	}
	if buf.Len() != TokenAccountSize {
		return nil, fmt.Errorf("%w: encoded %d bytes", ErrInvalidTokenAccount, buf.Len())
	}
	return buf.Bytes(), nil
}

// tokenProcessor is the native SPL token program. Only Transfer, Approve and
// Revoke are supported; everything else is rejected.
type tokenProcessor struct{}

func (tokenProcessor) ProgramID() solana.PublicKey {
	return solana.TokenProgramID
}

func (p tokenProcessor) Process(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstructionData
	}
	switch data[0] {
	case tokenTransfer:
		amount, err := readAmount(data)
		if err != nil {
			return err
		}
		return p.transfer(ic, accounts, amount)
	case tokenApprove:
		amount, err := readAmount(data)
		if err != nil {
			return err
		}
		return p.approve(ic, accounts, amount)
	case tokenRevoke:
		return p.revoke(ic, accounts)
	default:
		return fmt.Errorf("%w: unsupported token instruction %d", ErrInvalidInstructionData, data[0])
	}
}

func readAmount(data []byte) (uint64, error) {
	if len(data) < 9 {
		return 0, ErrInvalidInstructionData
	}
	return binary.LittleEndian.Uint64(data[1:9]), nil
}

func (p tokenProcessor) load(ic *InvokeContext, key solana.PublicKey) (*token.Account, error) {
	acct, ok := ic.Account(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if !acct.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidTokenAccount, key)
	}
	return DecodeTokenAccount(acct.Data)
}

func (p tokenProcessor) store(ic *InvokeContext, key solana.PublicKey, acc *token.Account) error {
	data, err := EncodeTokenAccount(acc)
	if err != nil {
		return err
	}
	cur, _ := ic.Account(key)
	cur.Data = data
	return ic.SetAccount(key, cur)
}

// [source w, delegate, owner s]
func (p tokenProcessor) approve(ic *InvokeContext, accounts []*solana.AccountMeta, amount uint64) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccountKeys
	}
	source, delegate, owner := accounts[0].PublicKey, accounts[1].PublicKey, accounts[2].PublicKey
	acc, err := p.load(ic, source)
	if err != nil {
		return err
	}
	if acc.State == token.Frozen {
		return ErrAccountFrozen
	}
	if !acc.Owner.Equals(owner) {
		return ErrTokenOwnerMismatch
	}
	if !ic.IsSigner(owner) {
		return ErrMissingRequiredSig
	}
	acc.Delegate = &delegate
	acc.DelegatedAmount = amount
	return p.store(ic, source, acc)
}

// [source w, owner s]
func (p tokenProcessor) revoke(ic *InvokeContext, accounts []*solana.AccountMeta) error {
	if len(accounts) < 2 {
		return ErrNotEnoughAccountKeys
	}
	source, owner := accounts[0].PublicKey, accounts[1].PublicKey
	acc, err := p.load(ic, source)
	if err != nil {
		return err
	}
	if acc.State == token.Frozen {
		return ErrAccountFrozen
	}
	if !acc.Owner.Equals(owner) {
		return ErrTokenOwnerMismatch
	}
	if !ic.IsSigner(owner) {
		return ErrMissingRequiredSig
	}
	acc.Delegate = nil
	acc.DelegatedAmount = 0
	return p.store(ic, source, acc)
}

// [source w, destination w, authority s]. authority is either the owner or
// the delegate; a delegate spends down delegated_amount.
func (p tokenProcessor) transfer(ic *InvokeContext, accounts []*solana.AccountMeta, amount uint64) error {
	if len(accounts) < 3 {
		return ErrNotEnoughAccountKeys
	}
	srcKey, dstKey, authority := accounts[0].PublicKey, accounts[1].PublicKey, accounts[2].PublicKey
	src, err := p.load(ic, srcKey)
	if err != nil {
		return err
	}
	dst, err := p.load(ic, dstKey)
	if err != nil {
		return err
	}
	if src.State == token.Frozen || dst.State == token.Frozen {
		return ErrAccountFrozen
	}
	if !src.Mint.Equals(dst.Mint) {
		return ErrMintMismatch
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if !ic.IsSigner(authority) {
		return ErrMissingRequiredSig
	}

	switch {
	case src.Owner.Equals(authority):
	case src.Delegate != nil && src.Delegate.Equals(authority):
		if src.DelegatedAmount < amount {
			return ErrInsufficientFunds
		}
		src.DelegatedAmount -= amount
		if src.DelegatedAmount == 0 {
			src.Delegate = nil
		}
	default:
		return ErrTokenOwnerMismatch
	}

	if srcKey.Equals(dstKey) {
		return nil
	}
	credited, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount = credited
	if err := p.store(ic, srcKey, src); err != nil {
		return err
	}
	return p.store(ic, dstKey, dst)
}

// NewTokenAccount builds an initialized SPL token account owned by the token program.
func NewTokenAccount(mint, owner solana.PublicKey, amount uint64) (*Account, error) {
	data, err := EncodeTokenAccount(&token.Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  token.Initialized,
	})
	if err != nil {
		return nil, err
	}
	return &Account{Owner: solana.TokenProgramID, Lamports: 2039280, Data: data}, nil
}
