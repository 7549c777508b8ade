package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	rt    *Runtime
	mint  solana.PublicKey
	owner solana.PrivateKey
	src   solana.PublicKey
	dst   solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rt:    New(NewLedger(), zaptest.NewLogger(t)),
		mint:  solana.NewWallet().PublicKey(),
		owner: solana.NewWallet().PrivateKey,
		src:   solana.NewWallet().PublicKey(),
		dst:   solana.NewWallet().PublicKey(),
	}
	f.putToken(t, f.src, f.owner.PublicKey(), 1_000)
	f.putToken(t, f.dst, solana.NewWallet().PublicKey(), 0)
	return f
}

func (f *fixture) putToken(t *testing.T, key, owner solana.PublicKey, amount uint64) {
	t.Helper()
	acct, err := NewTokenAccount(f.mint, owner, amount)
	require.NoError(t, err)
	f.rt.Ledger().Put(key, acct)
}

func (f *fixture) token(t *testing.T, key solana.PublicKey) *token.Account {
	t.Helper()
	a, ok := f.rt.Ledger().Get(key)
	require.True(t, ok)
	acc, err := DecodeTokenAccount(a.Data)
	require.NoError(t, err)
	return acc
}

func (f *fixture) submit(t *testing.T, signer solana.PrivateKey, ixs ...solana.Instruction) (*Result, error) {
	t.Helper()
	tx := f.build(t, signer, ixs...)
	return f.rt.Submit(context.Background(), tx)
}

func (f *fixture) build(t *testing.T, signer solana.PrivateKey, ixs ...solana.Instruction) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(ixs, f.rt.Ledger().LatestBlockhash(), solana.TransactionPayer(signer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func TestTokenAccountLayoutRoundTrip(t *testing.T) {
	delegate := solana.NewWallet().PublicKey()
	closer := solana.NewWallet().PublicKey()
	native := uint64(7)
	in := &token.Account{
		Mint:            solana.NewWallet().PublicKey(),
		Owner:           solana.NewWallet().PublicKey(),
		Amount:          42,
		Delegate:        &delegate,
		State:           token.Initialized,
		IsNative:        &native,
		DelegatedAmount: 10,
		CloseAuthority:  &closer,
	}
	data, err := EncodeTokenAccount(in)
	require.NoError(t, err)
	require.Len(t, data, TokenAccountSize)

	out, err := DecodeTokenAccount(data)
	require.NoError(t, err)
	assert.Equal(t, in.Mint, out.Mint)
	assert.Equal(t, in.Owner, out.Owner)
	assert.Equal(t, uint64(42), out.Amount)
	require.NotNil(t, out.Delegate)
	assert.Equal(t, delegate, *out.Delegate)
	require.NotNil(t, out.IsNative)
	assert.Equal(t, native, *out.IsNative)
	assert.Equal(t, uint64(10), out.DelegatedAmount)
	require.NotNil(t, out.CloseAuthority)
	assert.Equal(t, closer, *out.CloseAuthority)

	// absent options decode as nil
	plain, err := NewTokenAccount(in.Mint, in.Owner, 5)
	require.NoError(t, err)
	out, err = DecodeTokenAccount(plain.Data)
	require.NoError(t, err)
	assert.Nil(t, out.Delegate)
	assert.Nil(t, out.IsNative)
	assert.Nil(t, out.CloseAuthority)
	assert.Equal(t, token.Initialized, out.State)

	_, err = DecodeTokenAccount(data[:100])
	assert.ErrorIs(t, err, ErrInvalidTokenAccount)
}

func TestApproveTransferRevoke(t *testing.T) {
	f := newFixture(t)
	delegate := solana.NewWallet().PrivateKey

	_, err := f.submit(t, f.owner,
		token.NewApproveInstruction(300, f.src, delegate.PublicKey(), f.owner.PublicKey(), nil).Build())
	require.NoError(t, err)

	src := f.token(t, f.src)
	require.NotNil(t, src.Delegate)
	assert.Equal(t, delegate.PublicKey(), *src.Delegate)
	assert.Equal(t, uint64(300), src.DelegatedAmount)

	_, err = f.submit(t, delegate,
		token.NewTransferInstruction(100, f.src, f.dst, delegate.PublicKey(), nil).Build())
	require.NoError(t, err)
	assert.Equal(t, uint64(900), f.token(t, f.src).Amount)
	assert.Equal(t, uint64(200), f.token(t, f.src).DelegatedAmount)
	assert.Equal(t, uint64(100), f.token(t, f.dst).Amount)

	_, err = f.submit(t, delegate,
		token.NewTransferInstruction(250, f.src, f.dst, delegate.PublicKey(), nil).Build())
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.submit(t, f.owner,
		token.NewRevokeInstruction(f.src, f.owner.PublicKey(), nil).Build())
	require.NoError(t, err)
	src = f.token(t, f.src)
	assert.Nil(t, src.Delegate)
	assert.Zero(t, src.DelegatedAmount)

	_, err = f.submit(t, delegate,
		token.NewTransferInstruction(1, f.src, f.dst, delegate.PublicKey(), nil).Build())
	assert.ErrorIs(t, err, ErrTokenOwnerMismatch)
}

func TestApproveFrozenAccount(t *testing.T) {
	f := newFixture(t)
	acc := f.token(t, f.src)
	acc.State = token.Frozen
	data, err := EncodeTokenAccount(acc)
	require.NoError(t, err)
	f.rt.Ledger().Put(f.src, &Account{Owner: solana.TokenProgramID, Data: data})

	_, err = f.submit(t, f.owner,
		token.NewApproveInstruction(1, f.src, solana.NewWallet().PublicKey(), f.owner.PublicKey(), nil).Build())
	assert.ErrorIs(t, err, ErrAccountFrozen)
}

func TestTransferRejectsBalanceOverflow(t *testing.T) {
	f := newFixture(t)
	f.putToken(t, f.dst, solana.NewWallet().PublicKey(), ^uint64(0))

	_, err := f.submit(t, f.owner,
		token.NewTransferInstruction(1, f.src, f.dst, f.owner.PublicKey(), nil).Build())
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, uint64(1_000), f.token(t, f.src).Amount)
	assert.Equal(t, ^uint64(0), f.token(t, f.dst).Amount)
}

func TestFailedInstructionRollsBackTransaction(t *testing.T) {
	f := newFixture(t)

	_, err := f.submit(t, f.owner,
		token.NewTransferInstruction(400, f.src, f.dst, f.owner.PublicKey(), nil).Build(),
		token.NewTransferInstruction(700, f.src, f.dst, f.owner.PublicKey(), nil).Build(),
	)
	require.Error(t, err)

	var ixErr *InstructionError
	require.True(t, errors.As(err, &ixErr))
	assert.Equal(t, 1, ixErr.Index)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, uint64(1_000), f.token(t, f.src).Amount)
	assert.Equal(t, uint64(0), f.token(t, f.dst).Amount)
}

func TestWriteLockConflict(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rt.Ledger().tryLock([]solana.PublicKey{f.src}))

	_, err := f.submit(t, f.owner,
		token.NewTransferInstruction(1, f.src, f.dst, f.owner.PublicKey(), nil).Build())
	assert.ErrorIs(t, err, ErrAccountInUse)
	assert.True(t, IsTransient(err))

	f.rt.Ledger().unlock([]solana.PublicKey{f.src})
	_, err = f.submit(t, f.owner,
		token.NewTransferInstruction(1, f.src, f.dst, f.owner.PublicKey(), nil).Build())
	assert.NoError(t, err)
}

func TestSubmitRejectsBadTransactions(t *testing.T) {
	f := newFixture(t)
	ix := token.NewTransferInstruction(1, f.src, f.dst, f.owner.PublicKey(), nil).Build()

	t.Run("expired blockhash", func(t *testing.T) {
		tx := f.build(t, f.owner, ix)
		f.rt.Ledger().ExpireBlockhashes()
		_, err := f.rt.Submit(context.Background(), tx)
		assert.ErrorIs(t, err, ErrBlockhashNotFound)
		assert.True(t, IsTransient(err))
	})

	t.Run("forged signature", func(t *testing.T) {
		tx := f.build(t, f.owner, ix)
		tx.Signatures[0][0] ^= 0xff
		_, err := f.rt.Submit(context.Background(), tx)
		assert.ErrorIs(t, err, ErrSignatureVerification)
	})

	t.Run("replay", func(t *testing.T) {
		tx := f.build(t, f.owner, ix)
		_, err := f.rt.Submit(context.Background(), tx)
		require.NoError(t, err)
		_, err = f.rt.Submit(context.Background(), tx)
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	})

	t.Run("unknown program", func(t *testing.T) {
		_, err := f.submit(t, f.owner, solana.NewInstruction(solana.NewWallet().PublicKey(), nil, []byte{1}))
		assert.ErrorIs(t, err, ErrProgramNotFound)
	})
}

// scribbler overwrites the data of the first account it is given.
type scribbler struct{ id solana.PublicKey }

func (s scribbler) ProgramID() solana.PublicKey { return s.id }

func (s scribbler) Process(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	a, ok := ic.Account(accounts[0].PublicKey)
	if !ok {
		return ErrAccountNotFound
	}
	a.Data = data
	return ic.SetAccount(accounts[0].PublicKey, a)
}

func TestOwnershipAndWritability(t *testing.T) {
	f := newFixture(t)
	prog := scribbler{id: solana.NewWallet().PublicKey()}
	f.rt.Register(prog)

	owned := solana.NewWallet().PublicKey()
	f.rt.Ledger().Put(owned, &Account{Owner: prog.id, Data: []byte{0}})

	_, err := f.submit(t, f.owner, solana.NewInstruction(prog.id, solana.AccountMetaSlice{
		solana.Meta(f.src).WRITE(),
	}, []byte{9}))
	assert.ErrorIs(t, err, ErrExternalAccountData)

	_, err = f.submit(t, f.owner, solana.NewInstruction(prog.id, solana.AccountMetaSlice{
		solana.Meta(owned),
	}, []byte{9}))
	assert.ErrorIs(t, err, ErrReadonlyAccount)

	_, err = f.submit(t, f.owner, solana.NewInstruction(prog.id, solana.AccountMetaSlice{
		solana.Meta(owned).WRITE(),
	}, []byte{9}))
	require.NoError(t, err)
	a, _ := f.rt.Ledger().Get(owned)
	assert.Equal(t, []byte{9}, a.Data)
}
