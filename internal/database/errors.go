package database

import "errors"

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a record already exists
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNameTaken is returned when another instance holds the name
	ErrNameTaken = errors.New("instance name is already taken")
	// ErrDomainTaken is returned when another instance holds the domain
	ErrDomainTaken = errors.New("instance domain is already taken")
	// ErrPortTaken is returned when the leased port is already assigned
	ErrPortTaken = errors.New("instance port is already assigned")
	// ErrConflict is returned when a concurrent write won a uniqueness race
	ErrConflict = errors.New("concurrent allocation conflict")
	// ErrLimitReached is returned when the client is at its plan ceiling
	ErrLimitReached = errors.New("instance limit reached")
	// ErrSubscriptionInactive is returned when the subscription is no longer active
	ErrSubscriptionInactive = errors.New("subscription is not active")
	// ErrStatusConflict is returned when a status transition is illegal or lost a race
	ErrStatusConflict = errors.New("instance status conflict")
	// ErrLogClosed is returned when closing a deployment log that is already closed
	ErrLogClosed = errors.New("deployment log is already closed")
)
