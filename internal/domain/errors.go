package domain

import "errors"

// Authentication failures. Each one terminates the connection attempt with its own message.
var (
	ErrMissingToken            = errors.New("authentication error: no token provided")
	ErrInvalidToken            = errors.New("authentication error: invalid or expired token")
	ErrMalformedClaims         = errors.New("authentication error: token claims are incomplete")
	ErrSessionStoreUnavailable = errors.New("authentication error: session store unavailable")
	ErrSessionNotFound         = errors.New("authentication error: no active session")
	ErrSessionMismatch         = errors.New("authentication error: session was replaced by a newer login")
)

// Scoring failures. Terminal for one submission only.
var (
	// ErrIncompleteQuizState is returned when the quiz, question or progress row is missing.
	ErrIncompleteQuizState = errors.New("quiz state incomplete")
	// ErrInvalidSubmission rejects malformed or stale submissions before any write.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrStoreWriteFailure means the progress write did not land.
	ErrStoreWriteFailure = errors.New("scoring failed")
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuizNotPublished blocks joins to quizzes that are not live.
	ErrQuizNotPublished = errors.New("quiz is not published")
	// ErrKeyNotFound is returned by shared key/value stores on a missing key.
	ErrKeyNotFound = errors.New("key not found")
)
