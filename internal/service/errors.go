// Package service provides business logic services for the Showcase portal.
package service

import "errors"

// Common service errors.
var (
	// User errors
	ErrInvalidPassword = errors.New("invalid password: must be at least 8 characters")
	ErrInvalidUsername = errors.New("invalid username: must be 3-255 characters")
	ErrInvalidEmail    = errors.New("invalid email format")

	// Reclaim errors
	ErrSweepInProgress = errors.New("sweep already in progress")

	// Upload errors
	ErrNoContent = errors.New("no content provided")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
