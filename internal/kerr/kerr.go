// Package kerr provides the kernel's internal structured error type and
// its mapping onto the three syscall ABI sentinels (see SPEC_FULL.md §7).
package kerr

import (
	"errors"
	"fmt"
)

// Code is a high-level error category, matching the taxonomy in spec.md §7.
type Code string

const (
	CodeInvalidChannelID Code = "invalid channel id"
	CodeBufferTooSmall   Code = "buffer too small"
	CodePermissionDenied Code = "permission denied"
	CodeOutOfMemory      Code = "out of memory"
	CodeInvalidHandle    Code = "invalid handle"
	CodeInvalidArgument  Code = "invalid argument"
	CodeWouldBlock       Code = "would block"
	CodeBusy             Code = "busy"
)

// Error is a structured kernel error carrying enough context for logging
// without ever crossing the syscall boundary itself — only its Code does,
// via ToSyscallReturn.
type Error struct {
	Op    string // operation that failed, e.g. "IPC_SEND", "DMA_ALLOC"
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("kernel: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("kernel: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New creates a structured error.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Wrap attaches kernel context to an existing error.
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// Is reports whether err is a kerr.Error with the given code.
func Is(err error, code Code) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return false
}

// Syscall return sentinels, per spec.md §6.
const (
	Success          uint64 = 0
	EError           uint64 = 1
	EAccessDenied    uint64 = 0xFFFFFFFFFFFFFFFE
	EUnknownSyscall  uint64 = 0xFFFFFFFFFFFFFFFF
)

// ToSyscallReturn flattens an error to one of two ABI error sentinels, as
// required by spec.md §7: PermissionDenied always maps to E_ACC_DENIED;
// everything else maps to E_ERROR. A nil error is the caller's job to
// detect before calling this — ToSyscallReturn never returns Success, and
// E_UNKNOWN_SYSCALL is chosen by the dispatcher, not here.
func ToSyscallReturn(err error) uint64 {
	if Is(err, CodePermissionDenied) {
		return EAccessDenied
	}
	return EError
}
