package models

import "errors"

// Common errors for user, credential and token operations.
var (
	// User errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")
	ErrUserInUse     = errors.New("user still has credentials")

	// Credential errors
	ErrCredentialsNotFound  = errors.New("credentials not found")
	ErrDuplicateCredentials = errors.New("credentials already exist")

	// Token errors
	ErrTokenNotFound  = errors.New("token not found")
	ErrDuplicateToken = errors.New("token already exists")
	ErrTokenExpired   = errors.New("token expired")
)
