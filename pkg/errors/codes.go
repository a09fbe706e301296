package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_015"
)

// Retrieval error codes.  Failures in the candidate-retrieval collaborators:
// the embedding service, the vector store, and the lexical index.  Retrieval
// failures degrade the pipeline to the remaining channels; they never abort a
// classification on their own.
const (
	ErrCodeEmbeddingFailed     ErrorCode = "RET_001"
	ErrCodeVectorSearchFailed  ErrorCode = "RET_002"
	ErrCodeLexicalSearchFailed ErrorCode = "RET_003"
	ErrCodeCatalogUnavailable  ErrorCode = "RET_004"
)

// Classification error codes.
const (
	ErrCodeNoCandidates        ErrorCode = "CLS_001"
	ErrCodeAmbiguousInput      ErrorCode = "CLS_002"
	ErrCodeVerificationFailed  ErrorCode = "CLS_003"
	ErrCodeInvalidAnswer       ErrorCode = "CLS_004"
	ErrCodeInvalidTariffCode   ErrorCode = "CLS_005"
	ErrCodeRuleSetInvalid      ErrorCode = "CLS_006"
	ErrCodeQuestionNotFound    ErrorCode = "CLS_007"
	ErrCodeDegenerateQuestion  ErrorCode = "CLS_008"
	ErrCodeClassificationAbort ErrorCode = "CLS_009"
)

// Conversation error codes.
const (
	ErrCodeConversationNotFound ErrorCode = "CNV_001"
	ErrCodeConversationExpired  ErrorCode = "CNV_002"
	ErrCodeConversationConflict ErrorCode = "CNV_003"
)

// Aliases kept for call-site readability.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeEmbeddingFailed:     http.StatusBadGateway,
	ErrCodeVectorSearchFailed:  http.StatusBadGateway,
	ErrCodeLexicalSearchFailed: http.StatusBadGateway,
	ErrCodeCatalogUnavailable:  http.StatusServiceUnavailable,

	ErrCodeNoCandidates:        http.StatusUnprocessableEntity,
	ErrCodeAmbiguousInput:      http.StatusUnprocessableEntity,
	ErrCodeVerificationFailed:  http.StatusBadGateway,
	ErrCodeInvalidAnswer:       http.StatusBadRequest,
	ErrCodeInvalidTariffCode:   http.StatusBadRequest,
	ErrCodeRuleSetInvalid:      http.StatusInternalServerError,
	ErrCodeQuestionNotFound:    http.StatusNotFound,
	ErrCodeDegenerateQuestion:  http.StatusInternalServerError,
	ErrCodeClassificationAbort: http.StatusInternalServerError,

	ErrCodeConversationNotFound: http.StatusNotFound,
	ErrCodeConversationExpired:  http.StatusGone,
	ErrCodeConversationConflict: http.StatusConflict,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeEmbeddingFailed:     "embedding generation failed",
	ErrCodeVectorSearchFailed:  "vector similarity search failed",
	ErrCodeLexicalSearchFailed: "lexical index search failed",
	ErrCodeCatalogUnavailable:  "code catalog unavailable",

	ErrCodeNoCandidates:        "no candidate codes found",
	ErrCodeAmbiguousInput:      "input is ambiguous and needs clarification",
	ErrCodeVerificationFailed:  "completion-service verification failed",
	ErrCodeInvalidAnswer:       "answer matches no offered option",
	ErrCodeInvalidTariffCode:   "invalid tariff code format",
	ErrCodeRuleSetInvalid:      "rule set failed to load or validate",
	ErrCodeQuestionNotFound:    "question not found in conversation",
	ErrCodeDegenerateQuestion:  "question does not separate any candidates",
	ErrCodeClassificationAbort: "classification aborted",

	ErrCodeConversationNotFound: "conversation not found",
	ErrCodeConversationExpired:  "conversation expired",
	ErrCodeConversationConflict: "concurrent conversation update conflict",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
