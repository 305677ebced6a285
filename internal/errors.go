package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidQuantity  ErrorCode = "INVALID_QUANTITY"
	ErrCodeInvalidLevel     ErrorCode = "INVALID_PERMISSION_LEVEL"
	ErrCodeInvalidStatus    ErrorCode = "INVALID_STATUS"
	ErrCodeInvalidPriority  ErrorCode = "INVALID_PRIORITY"
	ErrCodeInvalidOperation ErrorCode = "INVALID_OPERATION"

	ErrCodeRoleNotFound     ErrorCode = "ROLE_NOT_FOUND"
	ErrCodeRoleNameTaken    ErrorCode = "ROLE_NAME_TAKEN"
	ErrCodeRoleInUse        ErrorCode = "ROLE_IN_USE"
	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeLoginTaken       ErrorCode = "LOGIN_TAKEN"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	ErrCodeItemNotFound            ErrorCode = "ITEM_NOT_FOUND"
	ErrCodeBarcodeTaken            ErrorCode = "BARCODE_TAKEN"
	ErrCodeInsufficientStock       ErrorCode = "INSUFFICIENT_STOCK"
	ErrCodeInsufficientReservation ErrorCode = "INSUFFICIENT_RESERVATION"
	ErrCodeItemReserved            ErrorCode = "ITEM_RESERVED"
	ErrCodeConcurrentModification  ErrorCode = "CONCURRENT_MODIFICATION"

	ErrCodeGuideNotFound       ErrorCode = "GUIDE_NOT_FOUND"
	ErrCodeStepNotFound        ErrorCode = "STEP_NOT_FOUND"
	ErrCodeStepInProgress      ErrorCode = "STEP_IN_PROGRESS"
	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrCodeGuideArchived       ErrorCode = "GUIDE_ARCHIVED"
	ErrCodeNotAssigned         ErrorCode = "NOT_ASSIGNED"
	ErrCodeReservationNotFound ErrorCode = "RESERVATION_NOT_FOUND"
	ErrCodeAlreadyWithdrawn    ErrorCode = "ALREADY_WITHDRAWN"
	ErrCodeTemplateNotFound    ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateNameTaken   ErrorCode = "TEMPLATE_NAME_TAKEN"
	ErrCodeWorkSessionOpen     ErrorCode = "WORK_SESSION_OPEN"
	ErrCodeNoWorkSession       ErrorCode = "NO_WORK_SESSION"

	ErrCodeNotificationNotFound ErrorCode = "NOTIFICATION_NOT_FOUND"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenRevoked       ErrorCode = "TOKEN_REVOKED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// GetDetailedMessage joins every field message of a validation error.
func (e *AppError) GetDetailedMessage() string {
	if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
		messages := make([]string, len(validationErrors.Errors))
		for i, err := range validationErrors.Errors {
			messages[i] = err.Message
		}
		return strings.Join(messages, "; ")
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code so package level sentinels work with errors.Is
// even after WithCause/WithDetails copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithCause returns a copy carrying cause; sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

var (
	ErrRoleNotFound  = NewNotFoundError("Role not found", ErrCodeRoleNotFound)
	ErrRoleNameTaken = NewConflictError("A role with this name already exists", ErrCodeRoleNameTaken)
	ErrRoleInUse     = NewConflictError("Role is assigned to users and cannot be deleted", ErrCodeRoleInUse)
	ErrUserNotFound  = NewNotFoundError("User not found", ErrCodeUserNotFound)
	ErrLoginTaken    = NewConflictError("Login or email is already in use", ErrCodeLoginTaken)
	ErrForbidden     = NewForbiddenError("You do not have permission to perform this action", ErrCodePermissionDenied)

	ErrItemNotFound            = NewNotFoundError("Inventory item not found", ErrCodeItemNotFound)
	ErrBarcodeTaken            = NewConflictError("Barcode is already used by another item", ErrCodeBarcodeTaken)
	ErrInsufficientStock       = NewValidationError("Insufficient available stock", ErrCodeInsufficientStock)
	ErrInsufficientReservation = NewValidationError("Insufficient reserved stock", ErrCodeInsufficientReservation)
	ErrItemReserved            = NewConflictError("Item has active reservations", ErrCodeItemReserved)
	ErrConcurrentModification  = NewConflictError("Item was modified concurrently, reload and retry", ErrCodeConcurrentModification)

	ErrGuideNotFound       = NewNotFoundError("Production guide not found", ErrCodeGuideNotFound)
	ErrStepNotFound        = NewNotFoundError("Step not found", ErrCodeStepNotFound)
	ErrStepInProgress      = NewValidationError("Guide has steps in progress", ErrCodeStepInProgress)
	ErrInvalidTransition   = NewValidationError("Status transition is not allowed", ErrCodeInvalidTransition)
	ErrGuideArchived       = NewValidationError("Archived guides are read-only", ErrCodeGuideArchived)
	ErrNotAssigned         = NewForbiddenError("Only users assigned to the guide may withdraw items", ErrCodeNotAssigned)
	ErrReservationNotFound = NewNotFoundError("Reservation not found", ErrCodeReservationNotFound)
	ErrAlreadyWithdrawn    = NewValidationError("Reservation was already withdrawn", ErrCodeAlreadyWithdrawn)
	ErrTemplateNotFound    = NewNotFoundError("Production template not found", ErrCodeTemplateNotFound)
	ErrTemplateNameTaken   = NewConflictError("A template with this name already exists", ErrCodeTemplateNameTaken)
	ErrGuideBarcodeTaken   = NewConflictError("Barcode is already used by another guide", ErrCodeBarcodeTaken)
	ErrWorkSessionOpen     = NewConflictError("A work session is already running for this step", ErrCodeWorkSessionOpen)
	ErrNoWorkSession       = NewValidationError("No running work session for this step", ErrCodeNoWorkSession)

	ErrNotificationNotFound = NewNotFoundError("Notification not found", ErrCodeNotificationNotFound)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid login or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewUnauthorizedError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrTokenRevoked       = NewUnauthorizedError("Token has been revoked", ErrCodeTokenRevoked)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
