package program

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformConfigLayout(t *testing.T) {
	in := &PlatformConfig{
		AdminAuthority:        solana.NewWallet().PublicKey(),
		SwapExecutorAuthority: solana.NewWallet().PublicKey(),
		ExternalSwapProgramID: solana.NewWallet().PublicKey(),
		Bump:                  253,
	}
	data, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, PlatformConfigSize)
	assert.Equal(t, platformConfigDiscriminator[:], data[:8])
	assert.Equal(t, in.AdminAuthority.Bytes(), data[8:40])
	assert.Equal(t, byte(253), data[104])

	out, err := DecodePlatformConfig(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeDelegatedAuthority(data)
	assert.ErrorIs(t, err, ErrInvalidAccount)
	_, err = DecodePlatformConfig(data[:50])
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestDelegatedAuthorityLayout(t *testing.T) {
	in := &DelegatedAuthority{
		User:                 solana.NewWallet().PublicKey(),
		IsActive:             true,
		AllowedSwapAuthority: solana.NewWallet().PublicKey(),
		Bump:                 7,
	}
	data, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, DelegatedAuthoritySize)
	assert.Equal(t, byte(1), data[40])

	out, err := DecodeDelegatedAuthority(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDiscriminators(t *testing.T) {
	// anchor: sha256("global:initialize")[:8]
	assert.Equal(t, discriminator{0xaf, 0xaf, 0x6d, 0x1f, 0x0d, 0x98, 0x9b, 0xed}, initializeDiscriminator)
	assert.NotEqual(t, platformConfigDiscriminator, delegatedAuthorityDiscriminator)
}

func TestPDAStable(t *testing.T) {
	user := solana.NewWallet().PublicKey()
	a1, b1, err := DeriveDelegatedAuthorityAddress(DefaultProgramID, user)
	require.NoError(t, err)
	a2, b2, err := DeriveDelegatedAuthorityAddress(DefaultProgramID, user)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)

	other, _, err := DeriveDelegatedAuthorityAddress(DefaultProgramID, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)

	cfg, _, err := DerivePlatformConfigAddress(DefaultProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, a1, cfg)
}

func TestComputeFees(t *testing.T) {
	tests := []struct {
		name       string
		out, basis uint64
		want       Fees
	}{
		{name: "opening leg", out: 1_000, basis: 0, want: Fees{}},
		{name: "loss", out: 900, basis: 1_000, want: Fees{}},
		{name: "break even", out: 1_000, basis: 1_000, want: Fees{}},
		{
			name:  "profit",
			out:   1_999_000,
			basis: 1_900_000,
			want:  Fees{RealizedProfit: 99_000, PerformanceFee: 29_700, MasterTraderFee: 9_900, NetworkFee: 19_800},
		},
		{
			name:  "rounding keeps the split exact",
			out:   17,
			basis: 10,
			want:  Fees{RealizedProfit: 7, PerformanceFee: 2, MasterTraderFee: 1, NetworkFee: 1},
		},
		{
			name:  "no overflow",
			out:   ^uint64(0),
			basis: 1,
			want: Fees{
				RealizedProfit:  ^uint64(0) - 1,
				PerformanceFee:  5534023222112865484,
				MasterTraderFee: 1844674407370955162,
				NetworkFee:      3689348814741910322,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFees(tt.out, tt.basis)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.PerformanceFee, got.MasterTraderFee+got.NetworkFee)
		})
	}
}

func TestSwapReceiptRoundTrip(t *testing.T) {
	in := &SwapReceipt{AmountIn: 1, AmountOut: 2, CostBasis: 3, Fees: Fees{RealizedProfit: 4, PerformanceFee: 5, MasterTraderFee: 6, NetworkFee: 7}}
	data, err := in.MarshalBinary()
	require.NoError(t, err)
	out, err := DecodeSwapReceipt(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeSwapReceipt(data[:10])
	assert.Error(t, err)
}

func TestErrorCodes(t *testing.T) {
	e, ok := ErrorFromCode(6000)
	require.True(t, ok)
	assert.Same(t, ErrUnauthorized, e)
	e, ok = ErrorFromCode(6001)
	require.True(t, ok)
	assert.Same(t, ErrDelegationInactive, e)
	_, ok = ErrorFromCode(42)
	assert.False(t, ok)

	wrapped := wrapErr(ErrSwapFailed, assert.AnError)
	assert.ErrorIs(t, wrapped, ErrSwapFailed)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.NotErrorIs(t, wrapped, ErrTokenOperationFailed)
	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeSwapFailed, code)
}
