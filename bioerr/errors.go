// Package bioerr defines the typed error taxonomy shared across seqdag's
// storage and sync engine, and the mapping from error kind to process exit
// code used by cmd/seqdag.
package bioerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the error-handling design.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindVerification     Kind = "VERIFICATION_ERROR"
	KindStorage          Kind = "STORAGE_ERROR"
	KindChunkUnavailable Kind = "CHUNK_UNAVAILABLE"
	KindInvalidAlphabet  Kind = "INVALID_ALPHABET"
	KindSchema           Kind = "SCHEMA_ERROR"
	KindConflict         Kind = "CONFLICT"
)

// Error is the typed error carried through every fallible seqdag operation.
type Error struct {
	Kind Kind
	Op   string // component/operation, e.g. "seqstore.PutSequence"
	ID   string // the hash/accession/manifest-id the error concerns, if any
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg += " (" + e.ID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, bioerr.NotFound("", "")) style sentinel checks
// by comparing Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, op, id string, cause error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: cause}
}

func NotFound(op, id string) *Error { return New(KindNotFound, op, id, nil) }

func VerificationError(op, id string, expected, actual []byte) *Error {
	return New(KindVerification, op, id, fmt.Errorf("expected %x, got %x", expected, actual))
}

func StorageError(op string, cause error) *Error { return New(KindStorage, op, "", cause) }

func ChunkUnavailable(op, hash string) *Error { return New(KindChunkUnavailable, op, hash, nil) }

func InvalidAlphabet(op string, position int, b byte) *Error {
	return New(KindInvalidAlphabet, op, "", fmt.Errorf("position %d: byte 0x%02x", position, b))
}

func SchemaError(op, field string) *Error { return New(KindSchema, op, "", fmt.Errorf("field %q", field)) }

func Conflict(op, manifestID string) *Error { return New(KindConflict, op, manifestID, nil) }

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// ExitCode maps an error to the process exit code the CLI contract
// assigns its kind. nil maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case KindVerification:
		return 3
	case KindChunkUnavailable:
		return 4
	case KindStorage:
		return 5
	default:
		return 1
	}
}
