package domain

import "errors"

var (
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrDeckNotFound is returned when a deck does not exist or is hidden from the caller.
	ErrDeckNotFound = errors.New("deck not found")
	// ErrCardNotFound is returned when a card does not exist or belongs to another deck.
	ErrCardNotFound = errors.New("card not found")
	// ErrSessionNotFound is returned when no session matches the given id or code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoActiveSession is returned when an operation needs an active session and none exists.
	ErrNoActiveSession = errors.New("no active session for deck")
	// ErrParticipantNotFound is returned when a user has no participant row in a session.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrSubmissionNotFound is returned when no score record exists for a lookup.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrNotDeckOwner is returned when a caller attempts an owner-only operation.
	ErrNotDeckOwner = errors.New("caller does not own deck")
	// ErrSessionInactive is returned when answers are submitted to an ended session.
	ErrSessionInactive = errors.New("session is not active")
	// ErrInvalidInput flags malformed payloads (missing fields, bad ids).
	ErrInvalidInput = errors.New("invalid input")
	// ErrCodeExhausted is returned when join-code generation keeps colliding.
	ErrCodeExhausted = errors.New("could not allocate a unique join code")
)
