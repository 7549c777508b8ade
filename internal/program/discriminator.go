// =============================
// File: internal/program/discriminator.go
// =============================
package program

import (
	"crypto/sha256"
)

type discriminator [8]byte

func accountDiscriminator(name string) discriminator {
	return sighash("account:" + name)
}

func instructionDiscriminator(name string) discriminator {
	return sighash("global:" + name)
}

func sighash(preimage string) discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d discriminator
	copy(d[:], sum[:8])
	return d
}

var (
	platformConfigDiscriminator     = accountDiscriminator("PlatformConfig")
	delegatedAuthorityDiscriminator = accountDiscriminator("DelegatedAuthority")

	initializeDiscriminator        = instructionDiscriminator("initialize")
	updateConfigDiscriminator      = instructionDiscriminator("update_config")
	delegateAuthorityDiscriminator = instructionDiscriminator("delegate_authority")
	revokeAuthorityDiscriminator   = instructionDiscriminator("revoke_authority")
	executeSwapDiscriminator       = instructionDiscriminator("execute_swap")
)
