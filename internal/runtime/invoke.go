// =============================
// File: internal/runtime/invoke.go
// =============================
package runtime

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// MaxInvokeDepth bounds nested cross-program invocations.
const MaxInvokeDepth = 4

// Program is an executable registered with the runtime.
type Program interface {
	ProgramID() solana.PublicKey
	Process(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error
}

// txState is shared by every frame of one transaction.
type txState struct {
	ctx        context.Context
	rt         *Runtime
	overlay    map[solana.PublicKey]*Account
	signers    map[solana.PublicKey]struct{}
	writable   map[solana.PublicKey]struct{}
	logs       []string
	returnData []byte
	returnFrom solana.PublicKey
}

// InvokeContext is the view a program gets of the running transaction.
type InvokeContext struct {
	tx        *txState
	programID solana.PublicKey
	depth     int
	// signers of the current frame (tx signers plus PDAs signed for this call)
	signers map[solana.PublicKey]struct{}
}

func (ic *InvokeContext) Context() context.Context {
	return ic.tx.ctx
}

// ProgramID is the program running in this frame.
func (ic *InvokeContext) ProgramID() solana.PublicKey {
	return ic.programID
}

// Account returns a copy of the staged or committed account.
func (ic *InvokeContext) Account(key solana.PublicKey) (*Account, bool) {
	if a, ok := ic.tx.overlay[key]; ok {
		return a.Clone(), true
	}
	return ic.tx.rt.ledger.Get(key)
}

// IsSigner reports whether key signed this frame.
func (ic *InvokeContext) IsSigner(key solana.PublicKey) bool {
	_, ok := ic.signers[key]
	return ok
}

// IsWritable reports whether the transaction locked key for writing.
func (ic *InvokeContext) IsWritable(key solana.PublicKey) bool {
	_, ok := ic.tx.writable[key]
	return ok
}

// SetAccount stages a write. Only the owning program may change an existing
// account's data, and only writable accounts may be touched at all.
func (ic *InvokeContext) SetAccount(key solana.PublicKey, acct *Account) error {
	if !ic.IsWritable(key) {
		return fmt.Errorf("%w: %s", ErrReadonlyAccount, key)
	}
	cur, ok := ic.Account(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if !cur.Owner.Equals(ic.programID) {
		return fmt.Errorf("%w: %s owned by %s", ErrExternalAccountData, key, cur.Owner)
	}
	if !acct.Owner.Equals(cur.Owner) {
		return fmt.Errorf("%w: owner change on %s", ErrExternalAccountData, key)
	}
	ic.tx.overlay[key] = acct.Clone()
	return nil
}

// CreateAccount allocates a new account owned by the calling program.
// With seeds the address must be the caller's PDA for those seeds (bump
// included); without seeds the address itself must have signed.
func (ic *InvokeContext) CreateAccount(key solana.PublicKey, data []byte, seeds [][]byte) error {
	if _, exists := ic.Account(key); exists {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, key)
	}
	if !ic.IsWritable(key) {
		return fmt.Errorf("%w: %s", ErrReadonlyAccount, key)
	}
	if seeds != nil {
		pda, err := solana.CreateProgramAddress(seeds, ic.programID)
		if err != nil || !pda.Equals(key) {
			return fmt.Errorf("%w: %s is not a program address of %s", ErrPrivilegeEscalation, key, ic.programID)
		}
	} else if !ic.IsSigner(key) {
		return fmt.Errorf("%w: %s", ErrMissingRequiredSig, key)
	}
	ic.tx.overlay[key] = &Account{
		Owner:    ic.programID,
		Lamports: rentExemptMinimum(len(data)),
		Data:     append([]byte(nil), data...),
	}
	return nil
}

// Log appends a program log line.
func (ic *InvokeContext) Log(format string, args ...interface{}) {
	line := "Program log: " + fmt.Sprintf(format, args...)
	ic.tx.logs = append(ic.tx.logs, line)
	ic.tx.rt.logger.Debug(line, zap.Stringer("program", ic.programID))
}

// SetReturnData publishes the frame's result to its caller and the transaction.
func (ic *InvokeContext) SetReturnData(data []byte) {
	ic.tx.returnData = append([]byte(nil), data...)
	ic.tx.returnFrom = ic.programID
}

// Invoke calls another program with the privileges of the current frame.
func (ic *InvokeContext) Invoke(ix solana.Instruction) error {
	return ic.InvokeSigned(ix)
}

// InvokeSigned calls another program; each seed set is turned into a PDA of
// the calling program that counts as a signer for the callee.
func (ic *InvokeContext) InvokeSigned(ix solana.Instruction, signerSeeds ...[][]byte) error {
	if ic.depth+1 > MaxInvokeDepth {
		return ErrCallDepth
	}

	signers := make(map[solana.PublicKey]struct{}, len(ic.signers)+len(signerSeeds))
	for k := range ic.signers {
		signers[k] = struct{}{}
	}
	for _, seeds := range signerSeeds {
		pda, err := solana.CreateProgramAddress(seeds, ic.programID)
		if err != nil {
			return fmt.Errorf("derive signer: %w", err)
		}
		signers[pda] = struct{}{}
	}

	accounts := ix.Accounts()
	for _, meta := range accounts {
		if _, ok := signers[meta.PublicKey]; meta.IsSigner && !ok {
			return fmt.Errorf("%w: signer %s", ErrPrivilegeEscalation, meta.PublicKey)
		}
		if meta.IsWritable && !ic.IsWritable(meta.PublicKey) {
			return fmt.Errorf("%w: writable %s", ErrPrivilegeEscalation, meta.PublicKey)
		}
	}

	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}

	child := &InvokeContext{
		tx:        ic.tx,
		programID: ix.ProgramID(),
		depth:     ic.depth + 1,
		signers:   calleeSigners(signers, accounts),
	}
	return ic.tx.rt.dispatch(child, accounts, data)
}

// calleeSigners keeps only the privileges the instruction actually grants.
func calleeSigners(available map[solana.PublicKey]struct{}, accounts []*solana.AccountMeta) map[solana.PublicKey]struct{} {
	out := make(map[solana.PublicKey]struct{})
	for _, meta := range accounts {
		if _, ok := available[meta.PublicKey]; ok && meta.IsSigner {
			out[meta.PublicKey] = struct{}{}
		}
	}
	return out
}

func rentExemptMinimum(size int) uint64 {
	// (128 bytes of account overhead + data) * 3480 lamports/byte-year * 2 years
	return uint64(128+size) * 6960
}
