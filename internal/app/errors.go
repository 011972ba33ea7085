package app

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
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

var (
	errWorkspaceNotFound = domainError(http.StatusNotFound, "WORKSPACE_NOT_FOUND", "Workspace not found", nil)
	errDocumentNotFound  = domainError(http.StatusNotFound, "DOCUMENT_NOT_FOUND", "Document not found", nil)
	errRevisionNotFound  = domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", nil)
	errFolderNotFound    = domainError(http.StatusNotFound, "FOLDER_NOT_FOUND", "Folder not found", nil)
	errShareLinkNotFound = domainError(http.StatusNotFound, "SHARE_LINK_NOT_FOUND", "Share link not found", nil)
	errTagNotFound       = domainError(http.StatusNotFound, "TAG_NOT_FOUND", "Tag not found", nil)
	errForbidden         = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errSlugConflict      = domainError(http.StatusConflict, "SLUG_CONFLICT", "Slug already in use", nil)
	errRevisionConflict  = domainError(http.StatusConflict, "REVISION_CONFLICT", "Another revision was saved concurrently", nil)
	errTagExists         = domainError(http.StatusConflict, "TAG_EXISTS", "Tag already exists", nil)
	errPasswordRequired  = domainError(http.StatusUnauthorized, "SHARE_LINK_PASSWORD_REQUIRED", "Password required", nil)
	errEditNotAllowed    = domainError(http.StatusForbidden, "SHARE_LINK_EDIT_NOT_ALLOWED", "Share link does not allow external edits", nil)
	errGuestUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Guest session invalid or expired", nil)
	errExportUnavailable = domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available", nil)
)

// validationError turns ozzo validation output into a 422. Errors that are
// not field errors are passed through.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for field, fieldErr := range fieldErrs {
			details[field] = fieldErr.Error()
		}
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", details)
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
}

func invalid(field, message string) error {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", map[string]string{field: message})
}
