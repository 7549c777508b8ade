// =============================
// File: internal/program/instructions.go
// =============================
package program

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// UpdateConfigParams leaves a field unchanged when it is nil.
type UpdateConfigParams struct {
	NewAdmin                 *solana.PublicKey
	NewSwapExecutor          *solana.PublicKey
	NewExternalSwapProgramID *solana.PublicKey
}

// ExecuteSwapArgs are passed through to the venue unmodified except CostBasis,
// which only feeds fee extraction.
type ExecuteSwapArgs struct {
	AmountIn         uint64
	MinimumAmountOut uint64
	CostBasis        uint64
	RoutePayload     []byte
}

// ExecuteSwapAccounts are the caller-supplied accounts of execute_swap.
type ExecuteSwapAccounts struct {
	SwapExecutor         solana.PublicKey
	User                 solana.PublicKey
	ExternalSwapProgram  solana.PublicKey
	UserSourceToken      solana.PublicKey
	UserDestinationToken solana.PublicKey
	FeeCollectorToken    solana.PublicKey
	// Remaining are forwarded to the venue after source, destination and executor.
	Remaining []*solana.AccountMeta
}

type instructionEncoder struct {
	buf *bytes.Buffer
	enc *bin.Encoder
	err error
}

func newInstructionEncoder(d discriminator) *instructionEncoder {
	buf := new(bytes.Buffer)
	e := &instructionEncoder{buf: buf, enc: bin.NewBorshEncoder(buf)}
	e.err = e.enc.WriteBytes(d[:], false)
	return e
}

func (e *instructionEncoder) key(k solana.PublicKey) {
	if e.err == nil {
		e.err = e.enc.WriteBytes(k[:], false)
	}
}

func (e *instructionEncoder) optionKey(k *solana.PublicKey) {
	if e.err != nil {
		return
	}
	if e.err = e.enc.WriteBool(k != nil); e.err == nil && k != nil {
		e.key(*k)
	}
}

func (e *instructionEncoder) u64(v uint64) {
	if e.err == nil {
		e.err = e.enc.WriteUint64(v, binary.LittleEndian)
	}
}

func (e *instructionEncoder) vec(b []byte) {
	if e.err == nil {
		e.err = e.enc.WriteUint32(uint32(len(b)), binary.LittleEndian)
	}
	if e.err == nil {
		e.err = e.enc.WriteBytes(b, false)
	}
}

func (e *instructionEncoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, fmt.Errorf("encode instruction: %w", e.err)
	}
	return e.buf.Bytes(), nil
}

// NewInitializeInstruction creates the platform config. payer signs and funds it.
func NewInitializeInstruction(programID, payer, admin, swapExecutor, externalSwapProgram solana.PublicKey) (solana.Instruction, error) {
	configAddr, _, err := DerivePlatformConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	e := newInstructionEncoder(initializeDiscriminator)
	e.key(admin)
	e.key(swapExecutor)
	e.key(externalSwapProgram)
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(configAddr).WRITE(),
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// NewUpdateConfigInstruction changes the supplied config fields. admin signs.
func NewUpdateConfigInstruction(programID, admin solana.PublicKey, params UpdateConfigParams) (solana.Instruction, error) {
	configAddr, _, err := DerivePlatformConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	e := newInstructionEncoder(updateConfigDiscriminator)
	e.optionKey(params.NewAdmin)
	e.optionKey(params.NewSwapExecutor)
	e.optionKey(params.NewExternalSwapProgramID)
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(configAddr).WRITE(),
		solana.Meta(admin).SIGNER(),
	}, data), nil
}

// NewDelegateAuthorityInstruction approves amount on userTokenAccount to
// swapExecutor and activates the user's delegation record. user signs.
func NewDelegateAuthorityInstruction(programID, user, userTokenAccount, swapExecutor solana.PublicKey, amount uint64) (solana.Instruction, error) {
	configAddr, _, err := DerivePlatformConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	recordAddr, _, err := DeriveDelegatedAuthorityAddress(programID, user)
	if err != nil {
		return nil, err
	}
	e := newInstructionEncoder(delegateAuthorityDiscriminator)
	e.u64(amount)
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(recordAddr).WRITE(),
		solana.Meta(user).WRITE().SIGNER(),
		solana.Meta(configAddr),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(userTokenAccount).WRITE(),
		solana.Meta(swapExecutor),
		solana.Meta(solana.TokenProgramID),
	}, data), nil
}

// NewRevokeAuthorityInstruction clears the token delegation and deactivates
// the record. user signs.
func NewRevokeAuthorityInstruction(programID, user, userTokenAccount solana.PublicKey) (solana.Instruction, error) {
	recordAddr, _, err := DeriveDelegatedAuthorityAddress(programID, user)
	if err != nil {
		return nil, err
	}
	data, err := newInstructionEncoder(revokeAuthorityDiscriminator).bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(recordAddr).WRITE(),
		solana.Meta(user).WRITE().SIGNER(),
		solana.Meta(userTokenAccount).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}, data), nil
}

// NewExecuteSwapInstruction swaps on behalf of accounts.User. The executor signs.
func NewExecuteSwapInstruction(programID solana.PublicKey, accounts ExecuteSwapAccounts, args ExecuteSwapArgs) (solana.Instruction, error) {
	configAddr, _, err := DerivePlatformConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	recordAddr, _, err := DeriveDelegatedAuthorityAddress(programID, accounts.User)
	if err != nil {
		return nil, err
	}
	e := newInstructionEncoder(executeSwapDiscriminator)
	e.u64(args.AmountIn)
	e.u64(args.MinimumAmountOut)
	e.u64(args.CostBasis)
	e.vec(args.RoutePayload)
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(configAddr),
		solana.Meta(accounts.SwapExecutor).SIGNER(),
		solana.Meta(recordAddr),
		solana.Meta(accounts.ExternalSwapProgram),
		solana.Meta(accounts.UserSourceToken).WRITE(),
		solana.Meta(accounts.UserDestinationToken).WRITE(),
		solana.Meta(accounts.FeeCollectorToken).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}
	metas = append(metas, accounts.Remaining...)
	return solana.NewInstruction(programID, metas, data), nil
}

func decodeUpdateConfigParams(dec *bin.Decoder) (UpdateConfigParams, error) {
	var p UpdateConfigParams
	for _, dst := range []**solana.PublicKey{&p.NewAdmin, &p.NewSwapExecutor, &p.NewExternalSwapProgramID} {
		some, err := dec.ReadBool()
		if err != nil {
			return p, err
		}
		if !some {
			continue
		}
		k, err := readPublicKey(dec)
		if err != nil {
			return p, err
		}
		*dst = &k
	}
	return p, nil
}

func decodeExecuteSwapArgs(dec *bin.Decoder) (ExecuteSwapArgs, error) {
	var a ExecuteSwapArgs
	var err error
	if a.AmountIn, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return a, err
	}
	if a.MinimumAmountOut, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return a, err
	}
	if a.CostBasis, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return a, err
	}
	a.RoutePayload, err = readVec(dec)
	return a, err
}

func readVec(dec *bin.Decoder) ([]byte, error) {
	n, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	if int(n) > dec.Remaining() {
		return nil, fmt.Errorf("vec length %d exceeds remaining %d bytes", n, dec.Remaining())
	}
	return dec.ReadNBytes(int(n))
}
