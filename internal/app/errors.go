package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"clauseguard/api/internal/analysis"
	"clauseguard/api/internal/auth"
	"clauseguard/api/internal/authpw"
	"clauseguard/api/internal/clause"
	"clauseguard/api/internal/ledger"
	"clauseguard/api/internal/revision"
	"clauseguard/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, clause.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, revision.ErrNoSaferAlternative):
		return http.StatusUnprocessableEntity, "NO_SAFER_ALTERNATIVE", "Clause has no safer alternative to accept", nil
	case errors.Is(err, revision.ErrSubstitutionNotFound):
		return http.StatusConflict, "SUBSTITUTION_NOT_FOUND", "Clause original text no longer present in document", nil
	case errors.Is(err, revision.ErrConflict):
		return http.StatusConflict, "VERSION_CONFLICT", "Document was revised by someone else; refetch and retry", nil
	case errors.Is(err, ledger.ErrNoVersions):
		// a document without versions is corrupt state, never a user error
		return http.StatusInternalServerError, "LEDGER_EMPTY", "Document has no versions", nil
	case errors.Is(err, analysis.ErrUnavailable):
		return http.StatusBadGateway, "ANALYSIS_UNAVAILABLE", "Clause analysis service unavailable", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
