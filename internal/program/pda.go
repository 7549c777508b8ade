// =============================
// File: internal/program/pda.go
// =============================
package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the deployed authority program.
var DefaultProgramID = solana.MustPublicKeyFromBase58("HX3Ex4icMLJFwqSDJ9vsLe87ZNd7UyrBxPiUHj78rKLm")

var (
	seedPlatformConfig = []byte("platform_config")
	seedDelegate       = []byte("delegate")
)

// DerivePlatformConfigAddress returns the singleton config address and bump.
func DerivePlatformConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{seedPlatformConfig}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive platform config: %w", err)
	}
	return addr, bump, nil
}

// DeriveDelegatedAuthorityAddress returns the per-user delegation record address and bump.
func DeriveDelegatedAuthorityAddress(programID, user solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{seedDelegate, user.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive delegated authority for %s: %w", user, err)
	}
	return addr, bump, nil
}
