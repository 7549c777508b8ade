package main

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeflow/copytrade/internal/program"
	"github.com/memeflow/copytrade/internal/wallet"
)

func TestPDACommand(t *testing.T) {
	user := solana.NewWallet().PublicKey()
	var out bytes.Buffer
	require.NoError(t, run([]string{"pda", "--user", user.String()}, &out))

	cfgAddr, _, err := program.DerivePlatformConfigAddress(program.DefaultProgramID)
	require.NoError(t, err)
	recAddr, _, err := program.DeriveDelegatedAuthorityAddress(program.DefaultProgramID, user)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "platform_config: "+cfgAddr.String())
	assert.Contains(t, out.String(), "delegate:        "+recAddr.String())
}

func TestUsageErrors(t *testing.T) {
	for name, args := range map[string][]string{
		"no command":      nil,
		"unknown":         {"deploy"},
		"bad program":     {"pda", "--program", "nope"},
		"nothing updated": {"update-config"},
		"zero amount":     {"delegate", "--mint", solana.NewWallet().PublicKey().String()},
		"missing key":     {"init", "--executor", solana.NewWallet().PublicKey().String(), "--swap-program", solana.NewWallet().PublicKey().String()},
	} {
		t.Run(name, func(t *testing.T) {
			err := run(args, &bytes.Buffer{})
			assert.ErrorIs(t, err, errUsage)
		})
	}
}

func TestTokenAccountResolution(t *testing.T) {
	user, err := wallet.NewRandomWallet()
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()

	ata, err := tokenAccount(user, "", mint.String())
	require.NoError(t, err)
	want, _, err := solana.FindAssociatedTokenAddress(user.PublicKey, mint)
	require.NoError(t, err)
	assert.Equal(t, want, ata)

	explicit := solana.NewWallet().PublicKey()
	got, err := tokenAccount(user, explicit.String(), mint.String())
	require.NoError(t, err)
	assert.Equal(t, explicit, got)

	_, err = tokenAccount(user, "", "")
	assert.ErrorIs(t, err, errUsage)
}
