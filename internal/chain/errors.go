// ==================================
// File: internal/chain/errors.go
// ==================================
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/memeflow/copytrade/internal/program"
	"github.com/memeflow/copytrade/internal/runtime"
)

// ErrConfirmationTimeout is returned when a sent transaction is not confirmed in time.
var ErrConfirmationTimeout = errors.New("confirmation timeout")

// transactionErrors maps the cluster's TransactionError names onto host sentinels.
var transactionErrors = map[string]error{
	"AccountInUse":                runtime.ErrAccountInUse,
	"BlockhashNotFound":           runtime.ErrBlockhashNotFound,
	"AlreadyProcessed":            runtime.ErrAlreadyProcessed,
	"SignatureFailure":            runtime.ErrSignatureVerification,
	"ProgramAccountNotFound":      runtime.ErrProgramNotFound,
	"AccountNotFound":             runtime.ErrAccountNotFound,
	"MissingRequiredSignature":    runtime.ErrMissingRequiredSig,
	"ReadonlyDataModified":        runtime.ErrReadonlyAccount,
	"ExternalAccountDataModified": runtime.ErrExternalAccountData,
	"PrivilegeEscalation":         runtime.ErrPrivilegeEscalation,
	"CallDepth":                   runtime.ErrCallDepth,
	"NotEnoughAccountKeys":        runtime.ErrNotEnoughAccountKeys,
	"InvalidInstructionData":      runtime.ErrInvalidInstructionData,
	"AccountAlreadyInitialized":   runtime.ErrAccountAlreadyExists,
}

var (
	customErrorLog = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)
	anchorErrorLog = regexp.MustCompile(`AnchorError.*Error Number: (\d+)`)
)

// decodeTransactionError converts the JSON form of a TransactionError
// ("BlockhashNotFound", {"InstructionError":[0,{"Custom":6000}]}) into an error
// that matches the runtime and program sentinels with errors.Is.
func decodeTransactionError(raw interface{}, logs []string) error {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if known, ok := transactionErrors[v]; ok {
			return known
		}
		return fmt.Errorf("transaction error: %s", v)
	case map[string]interface{}:
		if ie, ok := v["InstructionError"].([]interface{}); ok && len(ie) == 2 {
			index, _ := toUint(ie[0])
			return &runtime.InstructionError{Index: int(index), Err: decodeInstructionError(ie[1], logs)}
		}
		for name := range v {
			if known, ok := transactionErrors[name]; ok {
				return known
			}
		}
	}
	b, _ := json.Marshal(raw)
	return fmt.Errorf("transaction error: %s", b)
}

func decodeInstructionError(raw interface{}, logs []string) error {
	switch v := raw.(type) {
	case string:
		if known, ok := transactionErrors[v]; ok {
			return known
		}
		return fmt.Errorf("instruction error: %s", v)
	case map[string]interface{}:
		if custom, ok := v["Custom"]; ok {
			code, ok := toUint(custom)
			if !ok {
				break
			}
			return customError(uint32(code))
		}
	}
	if err := errorFromLogs(logs); err != nil {
		return err
	}
	b, _ := json.Marshal(raw)
	return fmt.Errorf("instruction error: %s", b)
}

func customError(code uint32) error {
	if pe, ok := program.ErrorFromCode(code); ok {
		return pe
	}
	return fmt.Errorf("custom program error: %#x", code)
}

// errorFromLogs recovers a program error from simulation or execution logs.
func errorFromLogs(logs []string) error {
	for i := len(logs) - 1; i >= 0; i-- {
		line := logs[i]
		if m := anchorErrorLog.FindStringSubmatch(line); m != nil {
			if code, err := strconv.ParseUint(m[1], 10, 32); err == nil {
				return customError(uint32(code))
			}
		}
		if m := customErrorLog.FindStringSubmatch(line); m != nil {
			if code, err := strconv.ParseUint(m[1], 16, 32); err == nil {
				return customError(uint32(code))
			}
		}
	}
	return nil
}

// mapSendError unwraps a preflight failure returned by sendTransaction.
func mapSendError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}

	data, _ := rpcErr.Data.(map[string]interface{})
	var logs []string
	if raw, ok := data["logs"].([]interface{}); ok {
		for _, l := range raw {
			if s, ok := l.(string); ok {
				logs = append(logs, s)
			}
		}
	}
	if txErr, ok := data["err"]; ok && txErr != nil {
		return fmt.Errorf("%s: %w", rpcErr.Message, decodeTransactionError(txErr, logs))
	}
	if strings.Contains(rpcErr.Message, "Blockhash not found") {
		return fmt.Errorf("%s: %w", rpcErr.Message, runtime.ErrBlockhashNotFound)
	}
	if logErr := errorFromLogs(logs); logErr != nil {
		return fmt.Errorf("%s: %w", rpcErr.Message, logErr)
	}
	return err
}

func toUint(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		return uint64(n), n >= 0
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return u, err == nil
	case int:
		return uint64(n), n >= 0
	case uint64:
		return n, true
	}
	return 0, false
}
