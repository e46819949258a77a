package service

import (
	"fmt"
	"net/http"
)

// OAuthError standardizes OAuth compliant errors. Handlers match on it to
// build the {error, error_description} envelope; anything else surfaces as
// server_error.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(code, desc string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: desc, Status: status}
}

func errInvalidClient() *OAuthError {
	return newOAuthError("invalid_client", "Client authentication failed.", http.StatusUnauthorized)
}

// errInvalidGrant covers every code/refresh-token failure with one message
// so callers cannot probe which check rejected them.
func errInvalidGrant() *OAuthError {
	return newOAuthError("invalid_grant", "Invalid or expired grant.", http.StatusBadRequest)
}

func errInvalidRequest(desc string) *OAuthError {
	return newOAuthError("invalid_request", desc, http.StatusBadRequest)
}

func errUnauthorized() *OAuthError {
	return newOAuthError("invalid_token", "Invalid access token.", http.StatusUnauthorized)
}

func errNotFound() *OAuthError {
	return newOAuthError("not_found", "App not found.", http.StatusNotFound)
}
