// =============================
// File: internal/runtime/account.go
// =============================
package runtime

import (
	"github.com/gagliardetto/solana-go"
)

// Account is the host view of an account: owning program, lamports and raw data.
type Account struct {
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// Clone returns a deep copy; the ledger never hands out shared buffers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp
}
