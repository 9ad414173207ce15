package auth

import "taskflow.dev/internal/apperr"

var (
	ErrMissingToken       = apperr.Unauthenticated("Access denied. No token provided.")
	ErrInvalidToken       = apperr.Unauthenticated("Invalid token.")
	ErrInvalidCredentials = apperr.Unauthenticated("Invalid credentials")
	ErrNoOrganization     = apperr.Forbidden("You must belong to an organization to access this resource")
	ErrForbidden          = apperr.Forbidden("Admin access required")
	ErrNotFound           = apperr.NotFound("Resource not found")
	ErrInvalidEmail       = apperr.Invalid("Invalid email address")
)
