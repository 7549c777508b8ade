// =============================
// File: internal/program/state.go
// =============================
package program

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Account sizes including the 8-byte discriminator.
const (
	PlatformConfigSize     = 8 + 32 + 32 + 32 + 1
	DelegatedAuthoritySize = 8 + 32 + 1 + 32 + 1
)

// PlatformConfig is the singleton platform record.
type PlatformConfig struct {
	AdminAuthority        solana.PublicKey
	SwapExecutorAuthority solana.PublicKey
	ExternalSwapProgramID solana.PublicKey
	Bump                  uint8
}

// DelegatedAuthority is a user's delegation record. AllowedSwapAuthority is
// captured at delegation time and never follows later config changes.
type DelegatedAuthority struct {
	User                 solana.PublicKey
	IsActive             bool
	AllowedSwapAuthority solana.PublicKey
	Bump                 uint8
}

func (c *PlatformConfig) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, PlatformConfigSize))
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(platformConfigDiscriminator[:], false); err != nil {
		return nil, err
	}
	for _, k := range []solana.PublicKey{c.AdminAuthority, c.SwapExecutorAuthority, c.ExternalSwapProgramID} {
		if err := enc.WriteBytes(k[:], false); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint8(c.Bump); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePlatformConfig checks the discriminator and parses the record.
func DecodePlatformConfig(data []byte) (*PlatformConfig, error) {
	dec, err := accountDecoder(data, platformConfigDiscriminator, PlatformConfigSize)
	if err != nil {
		return nil, err
	}
	c := &PlatformConfig{}
	for _, dst := range []*solana.PublicKey{&c.AdminAuthority, &c.SwapExecutorAuthority, &c.ExternalSwapProgramID} {
		if *dst, err = readPublicKey(dec); err != nil {
			return nil, err
		}
	}
	if c.Bump, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DelegatedAuthority) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, DelegatedAuthoritySize))
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(delegatedAuthorityDiscriminator[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(d.User[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBool(d.IsActive); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(d.AllowedSwapAuthority[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(d.Bump); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeDelegatedAuthority checks the discriminator and parses the record.
func DecodeDelegatedAuthority(data []byte) (*DelegatedAuthority, error) {
	dec, err := accountDecoder(data, delegatedAuthorityDiscriminator, DelegatedAuthoritySize)
	if err != nil {
		return nil, err
	}
	d := &DelegatedAuthority{}
	if d.User, err = readPublicKey(dec); err != nil {
		return nil, err
	}
	if d.IsActive, err = dec.ReadBool(); err != nil {
		return nil, err
	}
	if d.AllowedSwapAuthority, err = readPublicKey(dec); err != nil {
		return nil, err
	}
	if d.Bump, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	return d, nil
}

func accountDecoder(data []byte, want discriminator, size int) (*bin.Decoder, error) {
	if len(data) < size {
		return nil, fmt.Errorf("%w: account data too short (%d < %d)", ErrInvalidAccount, len(data), size)
	}
	var got discriminator
	copy(got[:], data[:8])
	if got != want {
		return nil, fmt.Errorf("%w: discriminator mismatch", ErrInvalidAccount)
	}
	return bin.NewBorshDecoder(data[8:]), nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}
