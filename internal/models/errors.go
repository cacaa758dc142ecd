package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAuthRequired   = "AUTH_REQUIRED"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeNotFound       = "NOT_FOUND"
	CodeListingHasBids = "LISTING_HAS_BIDS"
	CodeConflict       = "CONFLICT"
	CodeUserSyncFailed = "USER_SYNC_FAILED"
	CodeRemote         = "REMOTE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// SignInPath is where clients are sent when an action needs an identity.
const SignInPath = "/sign-in"

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Details   string            `json:"details,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Redirect  string            `json:"redirect,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code      string
	Message   string
	Err       error
	Fields    map[string]string
	Retryable bool
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewFieldValidationError reports per-field form failures.
func NewFieldValidationError(fields map[string]string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: "Please fix the highlighted fields",
		Fields:  fields,
	}
}

func NewAuthRequiredError() *AppError {
	return &AppError{
		Code:    CodeAuthRequired,
		Message: "You need to sign in to do that",
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewListingHasBidsError(listingID string) *AppError {
	return &AppError{
		Code:    CodeListingHasBids,
		Message: fmt.Sprintf("Listing %s already has bids and can no longer be edited", listingID),
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

func NewUserSyncError(err error) *AppError {
	return &AppError{
		Code:      CodeUserSyncFailed,
		Message:   "Unable to sync your account",
		Err:       err,
		Retryable: true,
	}
}

// NewRemoteError surfaces a remote-store failure. The remote message is kept
// verbatim as the user-facing message.
func NewRemoteError(err error) *AppError {
	return &AppError{
		Code:    CodeRemote,
		Message: err.Error(),
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeValidation:
		return fiber.StatusBadRequest
	case CodeAuthRequired:
		return fiber.StatusUnauthorized
	case CodeUnauthorized:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeListingHasBids, CodeConflict:
		return fiber.StatusConflict
	case CodeUserSyncFailed:
		return fiber.StatusServiceUnavailable
	case CodeRemote:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error:     appErr.Message,
			Code:      appErr.Code,
			Fields:    appErr.Fields,
			Retryable: appErr.Retryable,
		}
		if appErr.Err != nil && appErr.Code != CodeRemote {
			response.Details = appErr.Err.Error()
		}
		if appErr.Code == CodeAuthRequired {
			response.Redirect = SignInPath
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}

// RespondWithAppError writes err with the status derived from its code.
func RespondWithAppError(c *fiber.Ctx, err error) error {
	return RespondWithError(c, StatusFor(err), err)
}
