// =============================
// File: internal/runtime/errors.go
// =============================
package runtime

import (
	"errors"
	"fmt"
)

// Host-level errors. ErrAccountInUse and ErrBlockhashNotFound are transient:
// the caller is expected to resubmit.
var (
	ErrAccountInUse           = errors.New("account in use")
	ErrBlockhashNotFound      = errors.New("blockhash not found")
	ErrAlreadyProcessed       = errors.New("transaction already processed")
	ErrMissingSignature       = errors.New("transaction is not signed")
	ErrSignatureVerification  = errors.New("signature verification failed")
	ErrMissingRequiredSig     = errors.New("missing required signature for instruction")
	ErrProgramNotFound        = errors.New("program not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountAlreadyExists   = errors.New("account already exists")
	ErrReadonlyAccount        = errors.New("instruction modified a read-only account")
	ErrExternalAccountData    = errors.New("instruction modified data of an account it does not own")
	ErrPrivilegeEscalation    = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrCallDepth              = errors.New("cross-program invocation call depth too deep")
	ErrNotEnoughAccountKeys   = errors.New("insufficient account keys for instruction")
	ErrInvalidInstructionData = errors.New("invalid instruction data")
)

// Token program errors.
var (
	ErrInvalidTokenAccount = errors.New("invalid token account data")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTokenOwnerMismatch  = errors.New("owner does not match")
	ErrAccountFrozen       = errors.New("account is frozen")
	ErrMintMismatch        = errors.New("account not associated with this mint")
	ErrOverflow            = errors.New("operation overflowed")
)

// IsTransient reports whether resubmitting the same operation may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrAccountInUse) || errors.Is(err, ErrBlockhashNotFound)
}

// InstructionError carries the index of the failing instruction in a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}
