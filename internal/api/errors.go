package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	apierrors "github.com/gtrade-dashboard/internal/errors"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     types.ServiceError `json:"error"`
	RequestID string             `json:"requestId,omitempty"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, r, statusCode, ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// respondCategorized maps err to its status code and payload. Uncategorized
// errors are reported as internal errors without leaking their text.
func respondCategorized(w http.ResponseWriter, r *http.Request, err error) {
	var catErr *apierrors.CategorizedError
	if !stderrors.As(err, &catErr) {
		catErr = apierrors.NewInternalError("An internal error occurred", err)
	}

	status := apierrors.GetHTTPStatusCode(catErr)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
	}
	svcErr := catErr.ToServiceError()
	respondError(w, r, status, svcErr.Code, svcErr.Message, svcErr.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Failed to encode response")
		}
	}
}
