package models

import (
	"errors"
)

// Errors surfaced by the funds movement engine and its stores. Callers
// distinguish them with errors.Is; the HTTP layer maps each one to a
// status code. None of them is retried inside the engine.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrSelfTransfer      = errors.New("source and destination accounts must differ")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidPin        = errors.New("invalid pin")
	ErrAccountLocked     = errors.New("account locked after too many failed pin attempts")
	ErrUnauthorized      = errors.New("requester does not own the source account")
	ErrStorageCommit     = errors.New("storage commit failed")

	// ErrDuplicateInFlight means another request holding the same
	// idempotency key is still executing.
	ErrDuplicateInFlight = errors.New("a request with this idempotency key is already in progress")

	ErrDuplicateUser      = errors.New("a user with that email or phone number already exists")
	ErrPasswordMatch      = errors.New("password and confirm password must match")
	ErrInvalidCredentials = errors.New("invalid email or password")
)
