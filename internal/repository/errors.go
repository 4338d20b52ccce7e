package repository

import "github.com/imyashkale/provisioner/internal/database"

// Re-export errors from database package so every backend reports the same values
var (
	ErrNotFound             = database.ErrNotFound
	ErrAlreadyExists        = database.ErrAlreadyExists
	ErrNameTaken            = database.ErrNameTaken
	ErrDomainTaken          = database.ErrDomainTaken
	ErrPortTaken            = database.ErrPortTaken
	ErrConflict             = database.ErrConflict
	ErrLimitReached         = database.ErrLimitReached
	ErrSubscriptionInactive = database.ErrSubscriptionInactive
	ErrStatusConflict       = database.ErrStatusConflict
	ErrLogClosed            = database.ErrLogClosed
)
