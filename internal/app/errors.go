package app

import (
	"errors"
	"fmt"
	"net/http"

	"moscowboard/api/internal/auth"
	"moscowboard/api/internal/board"
	"moscowboard/api/internal/export"
	"moscowboard/api/internal/store"
)

// Result codes. Each one has a notification in the i18n catalogs.
const (
	CodeFunctionalityAdded = "FUNCTIONALITY_ADDED"
	CodeFunctionalityMoved = "FUNCTIONALITY_MOVED"

	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeCardNotFound       = "CARD_NOT_FOUND"
	CodeStalePriority      = "STALE_PRIORITY"
	CodeInvalidBody        = "INVALID_BODY"
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeExportUnavailable  = "EXPORT_UNAVAILABLE"
	CodeArchiveUnavailable = "ARCHIVE_UNAVAILABLE"
	CodeAddFailed          = "ADD_FAILED"
	CodeMoveFailed         = "MOVE_FAILED"
	CodeServerError        = "SERVER_ERROR"
)

// ErrSignedOut means the token is valid but its user profile is gone.
var ErrSignedOut = errors.New("session ended")

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func writeFailure(code, message string, err error) *DomainError {
	return &DomainError{Status: http.StatusInternalServerError, Code: code, Message: message, Err: err}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validation *board.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, validation.Code, validation.Message, map[string]any{"field": validation.Field}
	}
	switch {
	case errors.Is(err, store.ErrStalePriority):
		return http.StatusConflict, CodeStalePriority, "Priority changed since it was read", nil
	case errors.Is(err, board.ErrCardNotFound):
		return http.StatusNotFound, CodeCardNotFound, "Card not found", nil
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, ErrSignedOut):
		return http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, CodeInvalidFormat, "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, CodeExportUnavailable, "PDF export unavailable", nil
	case errors.Is(err, export.ErrArchiveUnavailable):
		return http.StatusServiceUnavailable, CodeArchiveUnavailable, "Archive storage not configured", nil
	}
	return http.StatusInternalServerError, CodeServerError, "Server error", nil
}
