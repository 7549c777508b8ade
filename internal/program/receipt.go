// =============================
// File: internal/program/receipt.go
// =============================
package program

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// SwapReceipt is the return data of execute_swap.
type SwapReceipt struct {
	AmountIn  uint64
	AmountOut uint64
	CostBasis uint64
	Fees
}

const swapReceiptSize = 7 * 8

func (r *SwapReceipt) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, swapReceiptSize))
	enc := bin.NewBorshEncoder(buf)
	for _, v := range r.fields() {
		if err := enc.WriteUint64(*v, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeSwapReceipt parses execute_swap return data.
func DecodeSwapReceipt(data []byte) (*SwapReceipt, error) {
	if len(data) != swapReceiptSize {
		return nil, fmt.Errorf("swap receipt: expected %d bytes, got %d", swapReceiptSize, len(data))
	}
	r := &SwapReceipt{}
	dec := bin.NewBorshDecoder(data)
	for _, v := range r.fields() {
		n, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		*v = n
	}
	return r, nil
}

func (r *SwapReceipt) fields() []*uint64 {
	return []*uint64{
		&r.AmountIn, &r.AmountOut, &r.CostBasis,
		&r.RealizedProfit, &r.PerformanceFee, &r.MasterTraderFee, &r.NetworkFee,
	}
}
