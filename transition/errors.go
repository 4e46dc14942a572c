package transition

import (
	"fmt"
)

// Kind enumerates the state-transition failure categories.
// It is a closed set: new failure modes get a new Kind rather than reusing
// an existing one with a different message.
type Kind int

const (
	InvalidFork Kind = iota
	InvalidStateRoot
	InvalidParentRoot
	InvalidProposer
	InvalidSignature
	SlotInPast
	SlotTooFarInFuture
	IndexOutOfBounds
	ListFull
	InvalidSSZ
	PoolExhausted
	UnexpectedForkSeq
	InvalidDeposit
	InvalidAttestation
	InvalidVoluntaryExit
	InvalidBlsToExecutionChange
	InvalidConsolidation
)

func (k Kind) String() string {
	switch k {
	case InvalidFork:
		return "InvalidFork"
	case InvalidStateRoot:
		return "InvalidStateRoot"
	case InvalidParentRoot:
		return "InvalidParentRoot"
	case InvalidProposer:
		return "InvalidProposer"
	case InvalidSignature:
		return "InvalidSignature"
	case SlotInPast:
		return "SlotInPast"
	case SlotTooFarInFuture:
		return "SlotTooFarInFuture"
	case IndexOutOfBounds:
		return "IndexOutOfBounds"
	case ListFull:
		return "ListFull"
	case InvalidSSZ:
		return "InvalidSSZ"
	case PoolExhausted:
		return "PoolExhausted"
	case UnexpectedForkSeq:
		return "UnexpectedForkSeq"
	case InvalidDeposit:
		return "InvalidDeposit"
	case InvalidAttestation:
		return "InvalidAttestation"
	case InvalidVoluntaryExit:
		return "InvalidVoluntaryExit"
	case InvalidBlsToExecutionChange:
		return "InvalidBlsToExecutionChange"
	case InvalidConsolidation:
		return "InvalidConsolidation"
	default:
		return "Unknown"
	}
}

// Error is the single error type the STF boundary returns: a
// Kind plus whatever context is available (the offending operation index,
// a signature context string, a reason string, an SSZ byte offset) and an
// optional wrapped cause for errors.Is/errors.As chaining through the
// lower packages (pool, ssz, forks).
type Error struct {
	Kind    Kind
	Reason  string
	Context string
	Index   int
	HasIndex bool
	Offset  int
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("transition: %s", e.Kind)
	if e.Context != "" {
		msg += fmt.Sprintf(" (%s)", e.Context)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.HasIndex {
		msg += fmt.Sprintf(" [index=%d]", e.Index)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, transition.Kind) style comparisons work against a
// sentinel produced by newErr, by comparing Kind rather than identity.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(kind Kind) *Error { return &Error{Kind: kind} }

func (e *Error) withReason(reason string) *Error {
	e.Reason = reason
	return e
}

func (e *Error) withContext(ctx string) *Error {
	e.Context = ctx
	return e
}

func (e *Error) withIndex(i int) *Error {
	e.Index = i
	e.HasIndex = true
	return e
}

func (e *Error) withOffset(off int) *Error {
	e.Offset = off
	return e
}

func (e *Error) withCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Sentinels for errors.Is(err, transition.ErrInvalidFork) style checks,
// mirroring forks.ErrInvalidFork / pool.ErrPoolExhausted's package-level
// sentinel convention elsewhere in the module.
var (
	ErrInvalidFork                  = newErr(InvalidFork)
	ErrInvalidStateRoot              = newErr(InvalidStateRoot)
	ErrInvalidParentRoot             = newErr(InvalidParentRoot)
	ErrInvalidProposer               = newErr(InvalidProposer)
	ErrInvalidSignature              = newErr(InvalidSignature)
	ErrSlotInPast                    = newErr(SlotInPast)
	ErrSlotTooFarInFuture            = newErr(SlotTooFarInFuture)
	ErrIndexOutOfBounds              = newErr(IndexOutOfBounds)
	ErrListFull                      = newErr(ListFull)
	ErrInvalidSSZ                    = newErr(InvalidSSZ)
	ErrPoolExhausted                 = newErr(PoolExhausted)
	ErrUnexpectedForkSeq             = newErr(UnexpectedForkSeq)
	ErrInvalidDeposit                = newErr(InvalidDeposit)
	ErrInvalidAttestation            = newErr(InvalidAttestation)
	ErrInvalidVoluntaryExit          = newErr(InvalidVoluntaryExit)
	ErrInvalidBlsToExecutionChange   = newErr(InvalidBlsToExecutionChange)
	ErrInvalidConsolidation          = newErr(InvalidConsolidation)
)

func invalidFork(context string) error { return newErr(InvalidFork).withContext(context) }

func invalidSignature(context string, index int) error {
	return newErr(InvalidSignature).withContext(context).withIndex(index)
}

func invalidAttestation(reason string) error { return newErr(InvalidAttestation).withReason(reason) }

func invalidVoluntaryExit(reason string) error {
	return newErr(InvalidVoluntaryExit).withReason(reason)
}

func invalidBlsToExecutionChange(reason string) error {
	return newErr(InvalidBlsToExecutionChange).withReason(reason)
}

func invalidConsolidation(reason string) error {
	return newErr(InvalidConsolidation).withReason(reason)
}

func wrapErr(kind Kind, cause error) *Error { return newErr(kind).withCause(cause) }
