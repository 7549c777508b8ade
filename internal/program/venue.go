// =============================
// File: internal/program/venue.go
// =============================
package program

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// VenueSwap is the call the authority program makes into the configured venue.
// Accounts: [source w, destination w, authority s, ...route accounts].
type VenueSwap struct {
	AmountIn         uint64
	MinimumAmountOut uint64
	Route            []byte
}

var venueSwapDiscriminator = instructionDiscriminator("swap")

// NewVenueSwapInstruction builds the cross-program call into venue.
func NewVenueSwapInstruction(venue, source, destination, authority solana.PublicKey, route []*solana.AccountMeta, swap VenueSwap) (solana.Instruction, error) {
	e := newInstructionEncoder(venueSwapDiscriminator)
	e.u64(swap.AmountIn)
	e.u64(swap.MinimumAmountOut)
	e.vec(swap.Route)
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(source).WRITE(),
		solana.Meta(destination).WRITE(),
		solana.Meta(authority).SIGNER(),
	}
	metas = append(metas, route...)
	return solana.NewInstruction(venue, metas, data), nil
}

// DecodeVenueSwap parses venue instruction data.
func DecodeVenueSwap(data []byte) (VenueSwap, error) {
	var s VenueSwap
	if len(data) < 8 {
		return s, fmt.Errorf("venue instruction too short")
	}
	var d discriminator
	copy(d[:], data[:8])
	if d != venueSwapDiscriminator {
		return s, fmt.Errorf("unknown venue instruction")
	}
	dec := bin.NewBorshDecoder(data[8:])
	var err error
	if s.AmountIn, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return s, err
	}
	if s.MinimumAmountOut, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return s, err
	}
	s.Route, err = readVec(dec)
	return s, err
}
