// =============================
// File: internal/runtime/runtime.go
// =============================
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Result is what a committed transaction leaves behind for the submitter.
type Result struct {
	Signature  solana.Signature
	Logs       []string
	ReturnData []byte
	// ReturnProgram is the program that last set ReturnData.
	ReturnProgram solana.PublicKey
}

// Runtime executes signed transactions atomically against a Ledger.
type Runtime struct {
	ledger *Ledger
	logger *zap.Logger

	mu       sync.RWMutex
	programs map[solana.PublicKey]Program
}

// New creates a runtime with the native token program registered.
func New(ledger *Ledger, logger *zap.Logger) *Runtime {
	rt := &Runtime{
		ledger:   ledger,
		logger:   logger.Named("runtime"),
		programs: make(map[solana.PublicKey]Program),
	}
	rt.Register(tokenProcessor{})
	return rt
}

// Ledger exposes the committed state.
func (r *Runtime) Ledger() *Ledger {
	return r.ledger
}

// Register makes a program invocable and marks its id executable.
func (r *Runtime) Register(p Program) {
	r.mu.Lock()
	r.programs[p.ProgramID()] = p
	r.mu.Unlock()
	r.ledger.Put(p.ProgramID(), &Account{Owner: solana.BPFLoaderUpgradeableProgramID, Executable: true})
}

func (r *Runtime) program(id solana.PublicKey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

func (r *Runtime) dispatch(ic *InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	p, ok := r.program(ic.programID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ic.programID)
	}
	ic.tx.logs = append(ic.tx.logs, fmt.Sprintf("Program %s invoke [%d]", ic.programID, ic.depth))
	if err := p.Process(ic, accounts, data); err != nil {
		ic.tx.logs = append(ic.tx.logs, fmt.Sprintf("Program %s failed: %v", ic.programID, err))
		return err
	}
	ic.tx.logs = append(ic.tx.logs, fmt.Sprintf("Program %s success", ic.programID))
	return nil
}

// GetAccount returns the committed account or ErrAccountNotFound.
func (r *Runtime) GetAccount(_ context.Context, key solana.PublicKey) (*Account, error) {
	a, ok := r.ledger.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return a, nil
}

// LatestBlockhash returns a blockhash new transactions may reference.
func (r *Runtime) LatestBlockhash(_ context.Context) (solana.Hash, error) {
	return r.ledger.LatestBlockhash(), nil
}

// Submit verifies, locks and executes tx. Either every instruction's writes
// are committed or none are.
func (r *Runtime) Submit(ctx context.Context, tx *solana.Transaction) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tx.Signatures) == 0 {
		return nil, ErrMissingSignature
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}
	if !r.ledger.isRecent(tx.Message.RecentBlockhash) {
		return nil, ErrBlockhashNotFound
	}
	if r.ledger.wasProcessed(tx.Signatures[0]) {
		return nil, ErrAlreadyProcessed
	}

	msg := &tx.Message
	keys := msg.AccountKeys
	numSigners := int(msg.Header.NumRequiredSignatures)
	if numSigners > len(keys) || len(tx.Signatures) < numSigners {
		return nil, ErrMissingSignature
	}

	signers := make(map[solana.PublicKey]struct{}, numSigners)
	writable := make(map[solana.PublicKey]struct{})
	var locks []solana.PublicKey
	for i, k := range keys {
		if i < numSigners {
			signers[k] = struct{}{}
		}
		if isWritableIndex(msg, i) {
			writable[k] = struct{}{}
			locks = append(locks, k)
		}
	}

	if err := r.ledger.tryLock(locks); err != nil {
		r.logger.Debug("Write lock conflict", zap.Stringer("signature", tx.Signatures[0]))
		return nil, err
	}
	defer r.ledger.unlock(locks)

	state := &txState{
		ctx:      ctx,
		rt:       r,
		overlay:  make(map[solana.PublicKey]*Account),
		signers:  signers,
		writable: writable,
	}

	for i, ci := range msg.Instructions {
		pidx := int(ci.ProgramIDIndex)
		if pidx >= len(keys) {
			return nil, &InstructionError{Index: i, Err: ErrNotEnoughAccountKeys}
		}
		metas := make([]*solana.AccountMeta, 0, len(ci.Accounts))
		for _, a := range ci.Accounts {
			idx := int(a)
			if idx >= len(keys) {
				return nil, &InstructionError{Index: i, Err: ErrNotEnoughAccountKeys}
			}
			k := keys[idx]
			_, isSigner := signers[k]
			_, isWritable := writable[k]
			metas = append(metas, &solana.AccountMeta{PublicKey: k, IsSigner: isSigner, IsWritable: isWritable})
		}

		ic := &InvokeContext{
			tx:        state,
			programID: keys[pidx],
			depth:     1,
			signers:   calleeSigners(signers, metas),
		}
		if err := r.dispatch(ic, metas, ci.Data); err != nil {
			r.logger.Debug("Transaction aborted",
				zap.Stringer("signature", tx.Signatures[0]),
				zap.Int("instruction", i),
				zap.Error(err))
			return nil, &InstructionError{Index: i, Err: err}
		}
	}

	if !r.ledger.markProcessed(tx.Signatures[0]) {
		return nil, ErrAlreadyProcessed
	}
	r.ledger.commit(state.overlay)
	r.ledger.advanceBlockhash()

	r.logger.Debug("Transaction committed",
		zap.Stringer("signature", tx.Signatures[0]),
		zap.Int("accounts_written", len(state.overlay)))

	return &Result{
		Signature:     tx.Signatures[0],
		Logs:          state.logs,
		ReturnData:    state.returnData,
		ReturnProgram: state.returnFrom,
	}, nil
}

// isWritableIndex follows the legacy message header layout:
// [writable signers | readonly signers | writable non-signers | readonly non-signers].
func isWritableIndex(msg *solana.Message, i int) bool {
	h := msg.Header
	numSigners := int(h.NumRequiredSignatures)
	if i < numSigners {
		return i < numSigners-int(h.NumReadonlySignedAccounts)
	}
	return i < len(msg.AccountKeys)-int(h.NumReadonlyUnsignedAccounts)
}
