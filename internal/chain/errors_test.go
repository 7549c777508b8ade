package chain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeflow/copytrade/internal/program"
	"github.com/memeflow/copytrade/internal/runtime"
)

func TestDecodeTransactionError(t *testing.T) {
	var custom interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"InstructionError":[1,{"Custom":6001}]}`), &custom))

	err := decodeTransactionError(custom, nil)
	var ie *runtime.InstructionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Index)
	assert.ErrorIs(t, err, program.ErrDelegationInactive)

	assert.ErrorIs(t, decodeTransactionError("BlockhashNotFound", nil), runtime.ErrBlockhashNotFound)
	assert.True(t, runtime.IsTransient(decodeTransactionError("AccountInUse", nil)))
	assert.NoError(t, decodeTransactionError(nil, nil))

	var missing interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"InstructionError":[0,"MissingRequiredSignature"]}`), &missing))
	assert.ErrorIs(t, decodeTransactionError(missing, nil), runtime.ErrMissingRequiredSig)

	unknown := decodeTransactionError("SomethingNew", nil)
	require.Error(t, unknown)
	assert.Contains(t, unknown.Error(), "SomethingNew")
}

func TestErrorFromLogs(t *testing.T) {
	assert.ErrorIs(t, errorFromLogs([]string{
		"Program HX3Ex4icMLJFwqSDJ9vsLe87ZNd7UyrBxPiUHj78rKLm invoke [1]",
		"Program HX3Ex4icMLJFwqSDJ9vsLe87ZNd7UyrBxPiUHj78rKLm failed: custom program error: 0x1770",
	}), program.ErrUnauthorized)

	assert.ErrorIs(t, errorFromLogs([]string{
		"Program log: AnchorError occurred. Error Code: UntrustedSwapProgram. Error Number: 6005. Error Message: Swap program is not the configured venue.",
	}), program.ErrUntrustedSwapProgram)

	assert.NoError(t, errorFromLogs([]string{"Program log: hello"}))
}

func TestMapSendError(t *testing.T) {
	rpcErr := &jsonrpc.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1777",
		Data: map[string]interface{}{
			"err": map[string]interface{}{
				"InstructionError": []interface{}{float64(0), map[string]interface{}{"Custom": float64(6007)}},
			},
			"logs": []interface{}{"Program log: swap failed"},
		},
	}
	assert.ErrorIs(t, mapSendError(rpcErr), program.ErrSwapFailed)

	hashErr := &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}
	assert.ErrorIs(t, mapSendError(hashErr), runtime.ErrBlockhashNotFound)

	plain := errors.New("dial tcp: refused")
	assert.Equal(t, plain, mapSendError(plain))
}

func TestParseReturnData(t *testing.T) {
	id := solana.MustPublicKeyFromBase58("HX3Ex4icMLJFwqSDJ9vsLe87ZNd7UyrBxPiUHj78rKLm")
	payload := []byte{1, 2, 3, 4}
	logs := []string{
		"Program " + id.String() + " invoke [1]",
		"Program return: " + id.String() + " " + base64.StdEncoding.EncodeToString(payload),
		"Program " + id.String() + " success",
	}

	gotID, data := parseReturnData(logs)
	assert.Equal(t, id, gotID)
	assert.Equal(t, payload, data)

	gotID, data = parseReturnData([]string{"Program log: nothing"})
	assert.True(t, gotID.IsZero())
	assert.Nil(t, data)
}
