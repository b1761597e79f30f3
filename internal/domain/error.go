package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrValidation           = errors.New("validation failed")
	ErrOperationFailed      = errors.New("operation failed")
	ErrInvalidExecContext   = errors.New("invalid executor context")
	ErrReadDatabaseRow      = errors.New("failed to read database row")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrRunInProgress        = errors.New("another run is in progress")

	// Donation feed
	ErrFeedAuth        = errors.New("donation feed: authentication failed")
	ErrFeedRateLimited = errors.New("donation feed: rate limited")
	ErrFeedTransient   = errors.New("donation feed: transient failure")
	ErrFeedParse       = errors.New("donation feed: malformed record")

	// Channel membership
	ErrMemberNotFound     = errors.New("user is not a channel member")
	ErrInsufficientRights = errors.New("bot lacks channel administrator rights")
)
