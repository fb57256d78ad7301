package store

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the stable numeric error taxonomy reported to callers.
type Code int

const (
	CodeOK Code = iota
	CodeUnknown
	CodeNullPtr
	CodeUnknownStatus
	CodeInvalidOrder
	CodeDataConsistency
	CodePageAlloc
	CodeNoMem
	CodeBadParam
	CodeValue
	CodeDefrag
	CodeWrite
	CodeOutOfBounds
	CodeID
	CodeLength
	CodeChecksum
	CodeFlashExpired
	CodeFlashAssert
	CodeFlashWrite
	CodeFlashWRP
	CodeFlashErase
	CodeInit
	CodeIDNotFound
	CodeBufSize
	CodeVirtNum
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeUnknown:
		return "UNKNOWN"
	case CodeNullPtr:
		return "NULLPTR"
	case CodeUnknownStatus:
		return "UNKNOWN_STATUS"
	case CodeInvalidOrder:
		return "INVALID_ORDER"
	case CodeDataConsistency:
		return "DATA_CONSISTENCY"
	case CodePageAlloc:
		return "PAGE_ALLOC"
	case CodeNoMem:
		return "NOMEM"
	case CodeBadParam:
		return "BAD_PARAM"
	case CodeValue:
		return "VALUE"
	case CodeDefrag:
		return "DEFRAG"
	case CodeWrite:
		return "WRITE"
	case CodeOutOfBounds:
		return "OUT_OF_BOUNDS"
	case CodeID:
		return "ID"
	case CodeLength:
		return "LENGTH"
	case CodeChecksum:
		return "CHECKSUM"
	case CodeFlashExpired:
		return "FLASH_EXPIRED"
	case CodeFlashAssert:
		return "FLASH_ASSERT"
	case CodeFlashWrite:
		return "FLASH_WRITE"
	case CodeFlashWRP:
		return "FLASH_WRP"
	case CodeFlashErase:
		return "FLASH_ERASE"
	case CodeInit:
		return "INIT"
	case CodeIDNotFound:
		return "ID_NOT_FOUND"
	case CodeBufSize:
		return "BUF_SIZE"
	case CodeVirtNum:
		return "VIRT_NUM"
	default:
		return "UNKNOWN"
	}
}

// Error pairs a Code with a human-readable cause, wrapped with
// github.com/pkg/errors so a caller can still Cause()/Unwrap() down to
// the underlying flashdev error when one triggered it.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// newError wraps cause under code using errors.WithStack so a stack trace
// is captured at the point of failure: every fallible step returns a
// code.
func newError(code Code, cause error) *Error {
	if cause == nil {
		return &Error{Code: code}
	}
	return &Error{Code: code, cause: errors.WithStack(cause)}
}

func newErrorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, cause: errors.Errorf(format, args...)}
}

// CodeOf extracts the Code from err, or CodeUnknown if err is not (or
// does not wrap) a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if err == nil {
		return CodeOK
	}
	return CodeUnknown
}
