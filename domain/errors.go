package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeValidation   ErrorCode = "VALIDATION"
	ErrCodePrecondition ErrorCode = "PRECONDITION"
	ErrCodeConcurrent   ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeTransient    ErrorCode = "TRANSIENT_IO"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches domain errors by code and message so sentinel comparisons keep
// working after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validationf builds a VALIDATION error with a formatted message.
func Validationf(format string, args ...interface{}) *Error {
	return NewError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// Preconditionf builds a PRECONDITION error with a formatted message.
func Preconditionf(format string, args ...interface{}) *Error {
	return NewError(ErrCodePrecondition, fmt.Sprintf(format, args...))
}

// Common domain errors.
var (
	ErrIncidenciaNotFound  = NewError(ErrCodeNotFound, "incidencia no encontrada")
	ErrCasoNotFound        = NewError(ErrCodeNotFound, "caso de proveedor no encontrado")
	ErrPresupuestoNotFound = NewError(ErrCodeNotFound, "presupuesto no encontrado")
	ErrFiltroNotFound      = NewError(ErrCodeNotFound, "filtro no encontrado")
	ErrNoActiveCase        = NewError(ErrCodePrecondition, "la incidencia no tiene un caso de proveedor activo")
	ErrConcurrentUpdate    = NewError(ErrCodeConcurrent, "el estado fue modificado por otro usuario, recargue e inténtelo de nuevo")
	ErrStorageUnavailable  = NewError(ErrCodeTransient, "error de comunicación con el almacenamiento, inténtelo de nuevo")
	ErrUnauthorized        = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden           = NewError(ErrCodeForbidden, "acción no permitida para el rol")
	ErrInvalidPayload      = NewError(ErrCodeValidation, "invalid payload")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CodeOf returns the domain code carried by err, or INTERNAL.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeInternal
}
