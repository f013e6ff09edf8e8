package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

// Error codes returned in the response body.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeDuplicateAccount   = "DUPLICATE_ACCOUNT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeAccessExpired      = "ACCESS_TOKEN_EXPIRED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL"
)

const internalMessage = "Something went wrong"

// APIError is one entry of an error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Errors []APIError `json:"errors"`
}

// mapError translates a service error into an HTTP status and body. Anything
// it does not recognise is a 500 with a generic message.
func mapError(err error) (int, ErrorResponse) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		out := make([]APIError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			out = append(out, APIError{Code: CodeInvalidInput, Message: f.Message, Field: f.Field})
		}
		return http.StatusBadRequest, ErrorResponse{Errors: out}
	}

	switch {
	case errors.Is(err, common.ErrDuplicateAccount):
		return http.StatusBadRequest, single(CodeDuplicateAccount, "Email in use", "email")
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusBadRequest, single(CodeInvalidCredentials, "Invalid credentials", "")
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest, single(CodeInvalidInput, "Invalid request", "")
	case errors.Is(err, common.ErrSessionExpired):
		return http.StatusUnauthorized, single(CodeSessionExpired, "Session expired, please sign in again", "")
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, single(CodeAccessExpired, "Access token expired, refresh the session", "")
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized, single(CodeUnauthenticated, "Not authenticated", "")
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, single(CodeNotFound, "Not found", "")
	default:
		return http.StatusInternalServerError, single(CodeInternal, internalMessage, "")
	}
}

func single(code, msg, field string) ErrorResponse {
	return ErrorResponse{Errors: []APIError{{Code: code, Message: msg, Field: field}}}
}
