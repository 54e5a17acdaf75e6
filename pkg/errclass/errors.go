package errclass

import (
	"errors"
	"fmt"
)

// FleetError is a stable, machine-readable error class.
type FleetError struct {
	Code    string
	Message string
}

func (e *FleetError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FleetError) Is(target error) bool {
	t, ok := target.(*FleetError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new FleetError with the same Code but a specific message.
func (e *FleetError) WithMessage(msg string) *FleetError {
	return &FleetError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new FleetError with a formatted message.
func (e *FleetError) WithMessagef(format string, args ...any) *FleetError {
	return &FleetError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err belongs to the given error class, looking
// through any wrapping.
func Is(err error, class *FleetError) bool {
	return errors.Is(err, class)
}

// CodeOf returns the error class code of err, or "" if err carries none.
func CodeOf(err error) string {
	var fe *FleetError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// All stable error classes.
var (
	ErrUnreachable          = &FleetError{Code: "E_UNREACHABLE"}
	ErrDriverRejected       = &FleetError{Code: "E_DRIVER_REJECTED"}
	ErrVerificationMismatch = &FleetError{Code: "E_VERIFICATION_MISMATCH"}
	ErrNoSuchBackup         = &FleetError{Code: "E_NO_SUCH_BACKUP"}
	ErrRollbackFailed       = &FleetError{Code: "E_ROLLBACK_FAILED"}
	ErrIntegrityViolation   = &FleetError{Code: "E_INTEGRITY_VIOLATION"}
	ErrManifestCorrupt      = &FleetError{Code: "E_MANIFEST_CORRUPT"}
	ErrUndefinedVariable    = &FleetError{Code: "E_UNDEFINED_VARIABLE"}
	ErrNameInvalid          = &FleetError{Code: "E_NAME_INVALID"}
	ErrTimeout              = &FleetError{Code: "E_TIMEOUT"}
	ErrLockConflict         = &FleetError{Code: "E_LOCK_CONFLICT"}
	ErrLockExpired          = &FleetError{Code: "E_LOCK_EXPIRED"}
	ErrLockNotHeld          = &FleetError{Code: "E_LOCK_NOT_HELD"}
	ErrFormatUnsupported    = &FleetError{Code: "E_FORMAT_UNSUPPORTED"}
	ErrPrunePlanMismatch    = &FleetError{Code: "E_PRUNE_PLAN_MISMATCH"}
	ErrAuditChainBroken     = &FleetError{Code: "E_AUDIT_CHAIN_BROKEN"}
)
