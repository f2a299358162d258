package errors

// Kind groups error codes into the categories callers branch on.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvariantViolation Kind = "invariant_violation"
	KindInternal           Kind = "internal"
)

var codeKinds = map[ErrorCode]Kind{
	ErrCodeBadRequest:        KindValidation,
	ErrCodeValidation:        KindValidation,
	ErrCodeInvalidRecurrence: KindValidation,
	ErrCodeAnchorDateMissing: KindValidation,

	ErrCodeNotFound:             KindNotFound,
	ErrCodeTemplateNotFound:     KindNotFound,
	ErrCodeInstanceNotFound:     KindNotFound,
	ErrCodeReminderNotFound:     KindNotFound,
	ErrCodeOrganizationNotFound: KindNotFound,

	ErrCodeConflict:          KindConflict,
	ErrCodeIllegalTransition: KindConflict,
	ErrCodeDuplicateInstance: KindConflict,

	ErrCodeTemplateInvariantViolation: KindInvariantViolation,

	ErrCodeInternal:      KindInternal,
	ErrCodeDatabaseError: KindInternal,
	ErrCodeCacheError:    KindInternal,
	ErrCodeMessageQueue:  KindInternal,
	ErrCodeSerialization: KindInternal,
}

// KindForCode returns the Kind a code belongs to.
func KindForCode(code ErrorCode) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindUnknown
}

// KindOf returns the Kind of the first *AppError in err's chain whose code has
// a known kind. Outer wrappers with infrastructure codes do not hide a domain
// kind further down the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var first Kind = KindUnknown
	for e := err; e != nil; {
		if ae, ok := e.(*AppError); ok {
			k := KindForCode(ae.Code)
			if k != KindUnknown && k != KindInternal {
				return k
			}
			if first == KindUnknown {
				first = k
			}
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return first
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err signals a missing entity.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err signals an illegal state change.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsInvariantViolation reports whether err rejects an edit that would
// desynchronize existing instances.
func IsInvariantViolation(err error) bool { return KindOf(err) == KindInvariantViolation }
