// Package report holds the status contract of a plansync invocation: the
// error code taxonomy and the single structured record written to stdout.
package report

import (
	"errors"
	"fmt"
)

// Code identifies a failure condition. Codes are string-based so they
// serialize naturally and stay greppable in logs.
type Code string

const (
	CodeLockHeld            Code = "LOCK_HELD"
	CodeLocalRootUnwritable Code = "LOCAL_ROOT_UNWRITABLE"
	CodeMissingArg          Code = "MISSING_ARG"
	CodeMissingTool         Code = "MISSING_TOOL"
	CodePathNotWritable     Code = "PATH_NOT_WRITABLE"
	CodePathNotFound        Code = "PATH_NOT_FOUND"
	CodeSSHCmdFailed        Code = "SSH_CMD_FAILED"
	CodeSSHUnreachable      Code = "SSH_UNREACHABLE"
	CodeSCPFailed           Code = "SCP_FAILED"
	CodeChecksumMismatch    Code = "CHECKSUM_MISMATCH"
	CodeChecksumUnavailable Code = "CHECKSUM_UNAVAILABLE"
	CodeNoTransport         Code = "NO_TRANSPORT_AVAILABLE"
	CodeUnsupported         Code = "UNSUPPORTED"
)

// OpError is an error with a code from the closed taxonomy above.
type OpError struct {
	Code    Code
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Errf builds an OpError from a format string.
func Errf(code Code, format string, args ...interface{}) *OpError {
	return &OpError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and context to an underlying error.
func Wrap(code Code, err error, format string, args ...interface{}) *OpError {
	return &OpError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err, or CodeUnsupported when err carries none.
func CodeOf(err error) Code {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return CodeUnsupported
}

// MessageOf returns the message of an OpError, or err.Error() for plain errors.
func MessageOf(err error) string {
	var oe *OpError
	if errors.As(err, &oe) {
		if oe.Err != nil {
			return fmt.Sprintf("%s: %v", oe.Message, oe.Err)
		}
		return oe.Message
	}
	return err.Error()
}
