package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gtrade-dashboard/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransport represents an unreachable or timed out RPC endpoint
	CategoryTransport ErrorCategory = "transport_failure"
	// CategoryCallReverted represents a contract call that executed but reverted
	CategoryCallReverted ErrorCategory = "call_reverted"
	// CategoryDecode represents a response that did not match the expected ABI layout
	CategoryDecode ErrorCategory = "decode_failure"
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to the API error payload
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Chain read errors

// NewTransportError creates an error for an unreachable or timed out endpoint
func NewTransportError(op string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusBadGateway,
		Code:       "TRANSPORT_FAILURE",
		Message:    fmt.Sprintf("rpc endpoint unavailable during %s", op),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": op,
		},
	}
}

// NewCallRevertedError creates an error for a reverted contract call
func NewCallRevertedError(contract, method string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCallReverted,
		StatusCode: http.StatusBadGateway,
		Code:       "CALL_REVERTED",
		Message:    fmt.Sprintf("call %s on %s reverted", method, contract),
		Cause:      cause,
		Details: map[string]interface{}{
			"contract": contract,
			"method":   method,
		},
	}
}

// NewDecodeError creates an error for a response with an unexpected layout
func NewDecodeError(method string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDecode,
		StatusCode: http.StatusBadGateway,
		Code:       "DECODE_FAILURE",
		Message:    fmt.Sprintf("unexpected response layout for %s", method),
		Cause:      cause,
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// API errors

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"limit": limit,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Classify maps a raw error from a contract call into the chain read taxonomy.
// Errors that are already categorized are returned unchanged.
func Classify(contract, method string, err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	if isRevert(err) {
		return NewCallRevertedError(contract, method, err)
	}

	if isDecode(err) {
		return NewDecodeError(method, err)
	}

	// Anything else came from the transport: timeouts, refused connections,
	// HTTP status errors and JSON-RPC errors that are not reverts.
	return NewTransportError(method, err)
}

func isRevert(err error) bool {
	var dataErr rpc.DataError
	if stderrors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}

func isDecode(err error) bool {
	return strings.HasPrefix(err.Error(), "abi:")
}

// IsTransient reports whether err came from the transport rather than from the contract
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	return IsCategory(err, CategoryTransport)
}

// IsCategory reports whether err is a CategorizedError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.Category == category
	}
	return false
}

// CategoryOf returns the category of err, or CategorySystem for uncategorized errors
func CategoryOf(err error) ErrorCategory {
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.Category
	}
	return CategorySystem
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
