package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Rejection codes surfaced to clients.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeAlreadyQueued       = "ALREADY_QUEUED"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeSlotNotFound        = "SLOT_NOT_FOUND"
	CodeAlreadyClaimed      = "ALREADY_CLAIMED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeNotFound            = "NOT_FOUND"
	CodeCalendarUnavailable = "CALENDAR_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// Message categories understood by the queue UI.
const (
	CategoryWarning = "warning"
	CategoryDanger  = "danger"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	Category   string
	Redirect   string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message, category string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, Category: category, HTTPStatus: status, Details: details}
}

// WithRedirect returns a copy of e pointing the client at redirect.
func (e *DomainError) WithRedirect(redirect string) *DomainError {
	cp := *e
	cp.Redirect = redirect
	return &cp
}

func NewUnauthorized(message string) error {
	if message == "" {
		message = "You don't have permission to do that"
	}
	return NewDomainError(CodeUnauthorized, message, CategoryDanger, http.StatusForbidden, nil)
}

// NewUnauthenticated rejects a caller with no valid identity.
func NewUnauthenticated(message string) error {
	if message == "" {
		message = "You must be logged in to do that"
	}
	return NewDomainError(CodeUnauthorized, message, CategoryDanger, http.StatusUnauthorized, nil)
}

func NewAlreadyQueued(redirect string) error {
	return NewDomainError(CodeAlreadyQueued, "You are already on the queue", CategoryWarning, http.StatusConflict, nil).
		WithRedirect(redirect)
}

func NewInvalidInput(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidInput, message, CategoryWarning, http.StatusBadRequest, details)
}

func NewSlotNotFound(slotID string) error {
	return NewDomainError(CodeSlotNotFound, "Appointment does not exist", CategoryWarning, http.StatusNotFound,
		map[string]any{"slot_id": slotID})
}

func NewAlreadyClaimed(slotID string) error {
	return NewDomainError(CodeAlreadyClaimed, "Appointment has already been claimed", CategoryWarning, http.StatusConflict,
		map[string]any{"slot_id": slotID})
}

func NewInsufficientBalance(balance, cost int) error {
	return NewDomainError(CodeInsufficientBalance, "Insufficient credit balance", CategoryWarning, http.StatusConflict,
		map[string]any{"balance": balance, "cost": cost})
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), CategoryWarning, http.StatusNotFound, details)
}

func NewCalendarUnavailable(err error) error {
	return &DomainError{
		Code:       CodeCalendarUnavailable,
		Message:    "Appointments are temporarily unavailable",
		Category:   CategoryDanger,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		Category:   CategoryDanger,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	de, _ := NewInternalError(err).(*DomainError)
	return de
}

// CodeOf returns the rejection code carried by err, or "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
