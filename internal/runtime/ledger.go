// =============================
// File: internal/runtime/ledger.go
// =============================
package runtime

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

const recentBlockhashes = 150

// Ledger is committed account state plus the write-lock table.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account

	lockMu sync.Mutex
	locked map[solana.PublicKey]struct{}

	hashMu    sync.Mutex
	hashes    []solana.Hash
	processed map[solana.Signature]struct{}
}

// NewLedger creates an empty ledger with one valid blockhash.
func NewLedger() *Ledger {
	l := &Ledger{
		accounts:  make(map[solana.PublicKey]*Account),
		locked:    make(map[solana.PublicKey]struct{}),
		processed: make(map[solana.Signature]struct{}),
	}
	l.advanceBlockhash()
	return l
}

// Get returns a copy of the committed account.
func (l *Ledger) Get(key solana.PublicKey) (*Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[key]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Put writes an account directly, bypassing transactions. Used for genesis
// state and fixtures.
func (l *Ledger) Put(key solana.PublicKey, acct *Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[key] = acct.Clone()
}

func (l *Ledger) commit(writes map[solana.PublicKey]*Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, a := range writes {
		l.accounts[k] = a.Clone()
	}
}

// tryLock acquires every key or none. A key held by another transaction
// fails immediately with ErrAccountInUse.
func (l *Ledger) tryLock(keys []solana.PublicKey) error {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	for _, k := range keys {
		if _, busy := l.locked[k]; busy {
			return ErrAccountInUse
		}
	}
	for _, k := range keys {
		l.locked[k] = struct{}{}
	}
	return nil
}

func (l *Ledger) unlock(keys []solana.PublicKey) {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	for _, k := range keys {
		delete(l.locked, k)
	}
}

// LatestBlockhash returns the newest valid blockhash.
func (l *Ledger) LatestBlockhash() solana.Hash {
	l.hashMu.Lock()
	defer l.hashMu.Unlock()
	return l.hashes[len(l.hashes)-1]
}

func (l *Ledger) advanceBlockhash() {
	l.hashMu.Lock()
	defer l.hashMu.Unlock()
	var h solana.Hash
	copy(h[:], solana.NewWallet().PublicKey().Bytes())
	l.hashes = append(l.hashes, h)
	if len(l.hashes) > recentBlockhashes {
		l.hashes = l.hashes[len(l.hashes)-recentBlockhashes:]
	}
}

// ExpireBlockhashes drops every known blockhash except a fresh one.
func (l *Ledger) ExpireBlockhashes() {
	l.hashMu.Lock()
	l.hashes = nil
	l.hashMu.Unlock()
	l.advanceBlockhash()
}

func (l *Ledger) isRecent(h solana.Hash) bool {
	l.hashMu.Lock()
	defer l.hashMu.Unlock()
	for _, known := range l.hashes {
		if known == h {
			return true
		}
	}
	return false
}

func (l *Ledger) wasProcessed(sig solana.Signature) bool {
	l.hashMu.Lock()
	defer l.hashMu.Unlock()
	_, ok := l.processed[sig]
	return ok
}

// markProcessed records sig; false means it was already there.
func (l *Ledger) markProcessed(sig solana.Signature) bool {
	l.hashMu.Lock()
	defer l.hashMu.Unlock()
	if _, dup := l.processed[sig]; dup {
		return false
	}
	l.processed[sig] = struct{}{}
	return true
}
