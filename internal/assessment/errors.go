package assessment

import "errors"

// Stable error kinds surfaced to callers. The HTTP layer maps these to
// status codes; nothing below it knows about HTTP.
var (
	ErrDefinitionNotFound = errors.New("definition not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrResultNotFound     = errors.New("result not found")
	ErrSessionNotActive   = errors.New("session not active")
	ErrUnknownQuestion    = errors.New("question not part of definition")
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrTitleConflict      = errors.New("definition title already exists")
	ErrValidation         = errors.New("validation failed")
)
