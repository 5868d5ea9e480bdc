package domain

import "errors"

// Sentinel errors for the escrow ledger. Mutation-path errors always mean
// that nothing was committed; capability errors are retryable.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrUserNotFound      = errors.New("user not found")
	ErrGoalNotFound      = errors.New("goal not found")
	ErrMilestoneNotFound = errors.New("milestone not found")

	ErrNotGoalOwner              = errors.New("goal does not belong to the caller")
	ErrGoalNotActive             = errors.New("goal is not active")
	ErrMilestoneAlreadyCompleted = errors.New("milestone already completed")
	ErrInvalidSubmission         = errors.New("invalid submission")

	ErrGenerationUnavailable   = errors.New("milestone generation unavailable")
	ErrVerificationUnavailable = errors.New("proof verification unavailable")
	ErrMilestoneGeneration     = errors.New("milestone generation failed")

	// ErrConsistency flags a ledger state that should be unreachable given
	// the transaction discipline. Logged and surfaced, never repaired.
	ErrConsistency = errors.New("ledger consistency violation")
)
