package domain

import "errors"

// Sentinel errors returned by services and repositories. Callers compare
// with errors.Is; the HTTP and websocket layers map them to responses.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("resource already exists")
	ErrInvalidInput = errors.New("invalid input")
)
