package service

import "errors"

// Sentinel errors the API layer maps to HTTP status codes. Authorization
// and validation failures are client errors and never retried; transient
// store failures are wrapped and surface as server errors.
var (
	ErrNotFound            = errors.New("attendance session not found")
	ErrRecordNotFound      = errors.New("attendance record not found")
	ErrNotAuthorized       = errors.New("not authorized for this attendance session")
	ErrActiveSessionExists = errors.New("an active attendance session already exists")
	ErrSessionEnded        = errors.New("attendance session has already ended")
	ErrAlreadyAttended     = errors.New("student has already attended this session")
	ErrVerificationPending = errors.New("attendance is already pending verification")
	ErrInvalidInput        = errors.New("invalid input")
)
