// Package shuffleerr defines the error taxonomy every shuffle-engine
// component returns to its caller: no error is swallowed internally, and
// every failure carries enough structure for cmd/shufflebench to map it to
// a process exit code.
package shuffleerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the taxonomy's four buckets.
type Kind string

const (
	// KindTopologyUnavailable means locality discovery failed before the
	// round started.
	KindTopologyUnavailable Kind = "topology_unavailable"
	// KindInvalidConfig means the caller supplied an inconsistent
	// configuration (K > N, co < 1, bind[r] not in local, size-matrix
	// asymmetry, ...).
	KindInvalidConfig Kind = "invalid_config"
	// KindSubstrateError means a substrate call returned non-success.
	KindSubstrateError Kind = "substrate_error"
	// KindVerifyMismatch means the result verifier found a byte
	// difference (test harness only).
	KindVerifyMismatch Kind = "verify_mismatch"
)

// Error is the concrete type returned by every shufflebench component.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string, wrapped error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: wrapped}
}

// TopologyUnavailable builds a KindTopologyUnavailable error.
func TopologyUnavailable(msg string, wrapped error) error {
	return newErr(KindTopologyUnavailable, msg, wrapped)
}

// InvalidConfig builds a KindInvalidConfig error.
func InvalidConfig(msg string) error {
	return newErr(KindInvalidConfig, msg, nil)
}

// InvalidConfigf builds a KindInvalidConfig error with formatting.
func InvalidConfigf(format string, args ...interface{}) error {
	return newErr(KindInvalidConfig, fmt.Sprintf(format, args...), nil)
}

// SubstrateError builds a KindSubstrateError error, preserving the
// substrate's own error string per spec §7.
func SubstrateError(msg string, wrapped error) error {
	return newErr(KindSubstrateError, msg, wrapped)
}

// VerifyMismatch builds a KindVerifyMismatch error.
func VerifyMismatch(sender, receiver, offset int, expected, actual byte) error {
	return newErr(KindVerifyMismatch, fmt.Sprintf(
		"sender=%d receiver=%d offset=%d expected=%d actual=%d",
		sender, receiver, offset, expected, actual), nil)
}

// KindOf extracts the Kind from err, walking wrapped errors. The zero Kind
// is returned if err does not carry one of ours.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
