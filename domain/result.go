package domain

import "errors"

// Result is the outcome shape returned for every workflow action.
type Result struct {
	Success bool        `json:"success"`
	ID      string      `json:"id,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    ErrorCode   `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// MensajeErrorInterno is shown for failures that are not domain errors.
const MensajeErrorInterno = "error interno, inténtelo de nuevo más tarde"

// NewResult folds an operation's return values into a Result. Only the
// domain message reaches the caller; wrapped causes stay server side.
func NewResult(id string, data interface{}, err error) Result {
	if err != nil {
		return Result{Success: false, Error: PublicMessage(err), Code: CodeOf(err)}
	}
	return Result{Success: true, ID: id, Data: data}
}

// PublicMessage returns the caller-facing text of err.
func PublicMessage(err error) string {
	var dErr *Error
	if errors.As(err, &dErr) && dErr.Message != "" {
		return dErr.Message
	}
	return MensajeErrorInterno
}
