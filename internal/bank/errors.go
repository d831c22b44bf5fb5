package bank

import (
	"fmt"
	"net/http"
)

// APIError is a structured error returned by the aggregation API. The code
// determines how the failure surfaces to the end user: some codes mean the
// user must re-link their bank, others are transient upstream trouble.
type APIError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error %s (%s): %s", e.ErrorCode, e.ErrorType, e.ErrorMessage)
}

// RequiresRelink reports whether the user has to go through the link flow
// again before any data can be fetched.
func (e *APIError) RequiresRelink() bool {
	return e.ErrorCode == "ITEM_LOGIN_REQUIRED"
}

var statusByCode = map[string]int{
	"ITEM_LOGIN_REQUIRED":      http.StatusUnauthorized,
	"INVALID_ACCESS_TOKEN":     http.StatusUnauthorized,
	"INVALID_PUBLIC_TOKEN":     http.StatusBadRequest,
	"INSUFFICIENT_CREDENTIALS": http.StatusBadRequest,
	"RATE_LIMIT_EXCEEDED":      http.StatusTooManyRequests,
	"INSTITUTION_DOWN":         http.StatusServiceUnavailable,
}

// HTTPStatus maps the aggregator error code onto the status the API should
// answer with. Unknown codes are treated as a bad gateway.
func (e *APIError) HTTPStatus() int {
	if status, ok := statusByCode[e.ErrorCode]; ok {
		return status
	}
	return http.StatusBadGateway
}
