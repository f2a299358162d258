package errors

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal      ErrorCode = "COMMON_001"
	ErrCodeBadRequest    ErrorCode = "COMMON_002"
	ErrCodeNotFound      ErrorCode = "COMMON_005"
	ErrCodeConflict      ErrorCode = "COMMON_006"
	ErrCodeValidation    ErrorCode = "COMMON_010"
	ErrCodeSerialization ErrorCode = "COMMON_011"
	ErrCodeDatabaseError ErrorCode = "COMMON_012"
	ErrCodeCacheError    ErrorCode = "COMMON_013"
	ErrCodeMessageQueue  ErrorCode = "COMMON_014"
)

// Aliases used at call sites.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeValidation   = ErrCodeValidation
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
)

// Obligation Module Error Codes
const (
	ErrCodeTemplateNotFound           ErrorCode = "OBL_001"
	ErrCodeInstanceNotFound           ErrorCode = "OBL_002"
	ErrCodeReminderNotFound           ErrorCode = "OBL_003"
	ErrCodeInvalidRecurrence          ErrorCode = "OBL_004"
	ErrCodeAnchorDateMissing          ErrorCode = "OBL_005"
	ErrCodeIllegalTransition          ErrorCode = "OBL_006"
	ErrCodeDuplicateInstance          ErrorCode = "OBL_007"
	ErrCodeTemplateInvariantViolation ErrorCode = "OBL_008"
	ErrCodeOrganizationNotFound       ErrorCode = "OBL_009"
)

// Infrastructure Error Codes
const (
	CodeDBConnectionError = ErrCodeDatabaseError
	CodeDatabaseError     = ErrCodeDatabaseError
	CodeDBQueryError      = ErrCodeDatabaseError
	CodeMessageQueueError = ErrCodeMessageQueue
)

//Personal.AI order the ending
