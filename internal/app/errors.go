package app

import (
	"errors"
	"fmt"
	"net/http"

	"canopy/internal/auth"
	"canopy/internal/domain"
)

// DomainError is an error the handlers render verbatim: Status becomes the
// response code and Code, Message and Details fill the JSON error body.
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

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// mapError translates service and tree errors into the HTTP error envelope.
// Anything unrecognised, store failures included, is a 500 without detail.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var cycleErr *domain.CycleError
	if errors.As(err, &cycleErr) {
		return http.StatusConflict, "CYCLE", err.Error(), map[string]any{"itemId": cycleErr.ItemID, "parentId": cycleErr.ParentID}
	}
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", map[string]any{"kind": notFound.Kind, "id": notFound.ID}
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
