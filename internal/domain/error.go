package domain

import "errors"

var (
	// Workflow / graph errors
	ErrNotFound   = errors.New("entity not found")
	ErrParse      = errors.New("malformed document")
	ErrStructural = errors.New("workflow graph is missing a canonical node")

	// Generation backend errors
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	ErrProtocol           = errors.New("unexpected generation backend response")

	// Local image storage
	ErrStorage = errors.New("image storage failed")

	// Gateway errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrUnknownJob      = errors.New("unknown prompt id")
	ErrNotReady        = errors.New("image is not generated yet")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limit exceeded")

	// Persistence
	ErrInvalidExecContext = errors.New("invalid database execution context")
)
