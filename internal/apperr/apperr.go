// Package apperr defines the engine's structured error kinds and codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups codes by how a caller should react to them.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindConcurrency        Kind = "concurrency"
	KindExternalDependency Kind = "external_dependency"
	KindIntegrity          Kind = "integrity"
	KindNotFound           Kind = "not_found"
)

// Code is a machine-readable error code.
type Code string

const (
	// Validation
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeInvalidRosterSize      Code = "INVALID_ROSTER_SIZE"
	CodeUnsupportedBracketType Code = "UNSUPPORTED_BRACKET_TYPE"
	CodeNotAParticipant        Code = "NOT_A_PARTICIPANT"
	CodeContradictoryResult    Code = "CONTRADICTORY_RESULT"

	// Conflict
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeDuplicateReport    Code = "DUPLICATE_REPORT"
	CodeAmbiguousResult    Code = "AMBIGUOUS_RESULT"
	CodeRegistrationClosed Code = "REGISTRATION_CLOSED"
	CodeTournamentFull     Code = "TOURNAMENT_FULL"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"

	// Concurrency
	CodeLockTimeout            Code = "LOCK_TIMEOUT"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"

	// External dependency
	CodeLedgerUnavailable    Code = "LEDGER_UNAVAILABLE"
	CodeSettlementIncomplete Code = "SETTLEMENT_INCOMPLETE"
	CodeStorageUnavailable   Code = "STORAGE_UNAVAILABLE"

	// Integrity
	CodeInvalidPrizeSplit Code = "INVALID_PRIZE_SPLIT"
	CodeBracketCorrupt    Code = "BRACKET_CORRUPT"

	CodeNotFound Code = "NOT_FOUND"
)

var codeKinds = map[Code]Kind{
	CodeInvalidArgument:        KindValidation,
	CodeInvalidRosterSize:      KindValidation,
	CodeUnsupportedBracketType: KindValidation,
	CodeNotAParticipant:        KindValidation,
	CodeContradictoryResult:    KindValidation,
	CodeInvalidTransition:      KindConflict,
	CodeDuplicateReport:        KindConflict,
	CodeAmbiguousResult:        KindConflict,
	CodeRegistrationClosed:     KindConflict,
	CodeTournamentFull:         KindConflict,
	CodeInsufficientFunds:      KindConflict,
	CodeLockTimeout:            KindConcurrency,
	CodeConcurrentModification: KindConcurrency,
	CodeLedgerUnavailable:      KindExternalDependency,
	CodeSettlementIncomplete:   KindExternalDependency,
	CodeStorageUnavailable:     KindExternalDependency,
	CodeInvalidPrizeSplit:      KindIntegrity,
	CodeBracketCorrupt:         KindIntegrity,
	CodeNotFound:               KindNotFound,
}

// Kind returns the kind a code belongs to.
func (c Code) Kind() Kind {
	if k, ok := codeKinds[c]; ok {
		return k
	}
	return KindIntegrity
}

// Error is the engine's domain error.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New creates an error whose kind is derived from its code.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Kind:    code.Kind(),
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an error that carries an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    code.Kind(),
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidRosterSize      = &Error{Code: CodeInvalidRosterSize}
	ErrUnsupportedBracketType = &Error{Code: CodeUnsupportedBracketType}
	ErrInvalidTransition      = &Error{Code: CodeInvalidTransition}
	ErrDuplicateReport        = &Error{Code: CodeDuplicateReport}
	ErrAmbiguousResult        = &Error{Code: CodeAmbiguousResult}
	ErrRegistrationClosed     = &Error{Code: CodeRegistrationClosed}
	ErrTournamentFull         = &Error{Code: CodeTournamentFull}
	ErrInsufficientFunds      = &Error{Code: CodeInsufficientFunds}
	ErrLockTimeout            = &Error{Code: CodeLockTimeout}
	ErrConcurrentModification = &Error{Code: CodeConcurrentModification}
	ErrLedgerUnavailable      = &Error{Code: CodeLedgerUnavailable}
	ErrSettlementIncomplete   = &Error{Code: CodeSettlementIncomplete}
	ErrInvalidPrizeSplit      = &Error{Code: CodeInvalidPrizeSplit}
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrNotAParticipant        = &Error{Code: CodeNotAParticipant}
)

// KindOf reports the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind != "" {
			return e.Kind
		}
		return e.Code.Kind()
	}
	return ""
}

// CodeOf reports the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
