// =============================
// File: internal/program/errors.go
// =============================
package program

import (
	"errors"
	"fmt"
)

// ErrorCode is the custom program error number reported by the host
// ("custom program error: 0x1770").
type ErrorCode uint32

// Codes start at 6000; the first two keep the numbers of the deployed program.
const (
	CodeUnauthorized ErrorCode = 6000 + iota
	CodeDelegationInactive
	CodeAlreadyInitialized
	CodeNotFound
	CodeInvalidAmount
	CodeUntrustedSwapProgram
	CodeTokenOperationFailed
	CodeSwapFailed
	CodeInvalidAccount
)

// Error is a program error with a stable code.
type Error struct {
	Code ErrorCode
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

var (
	ErrUnauthorized         = &Error{Code: CodeUnauthorized, Name: "Unauthorized", Msg: "Unauthorized action."}
	ErrDelegationInactive   = &Error{Code: CodeDelegationInactive, Name: "DelegationInactive", Msg: "Delegation is not active."}
	ErrAlreadyInitialized   = &Error{Code: CodeAlreadyInitialized, Name: "AlreadyInitialized", Msg: "Platform config already exists."}
	ErrNotFound             = &Error{Code: CodeNotFound, Name: "NotFound", Msg: "Delegation record not found."}
	ErrInvalidAmount        = &Error{Code: CodeInvalidAmount, Name: "InvalidAmount", Msg: "Approval amount is zero or exceeds the token balance."}
	ErrUntrustedSwapProgram = &Error{Code: CodeUntrustedSwapProgram, Name: "UntrustedSwapProgram", Msg: "Swap program is not the configured venue."}
	ErrTokenOperationFailed = &Error{Code: CodeTokenOperationFailed, Name: "TokenOperationFailed", Msg: "Token program call failed."}
	ErrSwapFailed           = &Error{Code: CodeSwapFailed, Name: "SwapFailed", Msg: "External swap failed."}
	ErrInvalidAccount       = &Error{Code: CodeInvalidAccount, Name: "InvalidAccount", Msg: "Account address, owner or data does not match."}
)

var errorsByCode = map[ErrorCode]*Error{}

func init() {
	for _, e := range []*Error{
		ErrUnauthorized, ErrDelegationInactive, ErrAlreadyInitialized, ErrNotFound, ErrInvalidAmount,
		ErrUntrustedSwapProgram, ErrTokenOperationFailed, ErrSwapFailed, ErrInvalidAccount,
	} {
		errorsByCode[e.Code] = e
	}
}

// ErrorFromCode maps a custom program error number back to its sentinel.
func ErrorFromCode(code uint32) (*Error, bool) {
	e, ok := errorsByCode[ErrorCode(code)]
	return e, ok
}

// OperationError is a program error caused by a failed sub-call. It matches
// its Kind with errors.Is and unwraps to the cause.
type OperationError struct {
	Kind  *Error
	Cause error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind.Error(), e.Cause)
}

func (e *OperationError) Is(target error) bool {
	return target == e.Kind
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

func wrapErr(kind *Error, cause error) error {
	return &OperationError{Kind: kind, Cause: cause}
}

// CodeOf extracts the program error code from err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var op *OperationError
	if errors.As(err, &op) {
		return op.Kind.Code, true
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}
