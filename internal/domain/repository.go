package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore defines the interface for ledger persistence operations.
// Plain reads reflect the latest committed state; all mutations go through
// InUserTx, which serializes work per user.
type LedgerStore interface {
	// CreateUser provisions a wallet. It is idempotent: creating a user
	// that already exists is a no-op.
	CreateUser(ctx context.Context, user *User) error

	// UserByID retrieves a user by id, ErrUserNotFound if absent.
	UserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GoalByID retrieves a goal with its milestones in plan order,
	// ErrGoalNotFound if absent.
	GoalByID(ctx context.Context, id uuid.UUID) (*Goal, error)

	// GoalsByUser retrieves all goals ever created by the user, newest first.
	GoalsByUser(ctx context.Context, userID uuid.UUID) ([]*Goal, error)

	// InUserTx runs fn inside the per-user critical section. All balance
	// and milestone mutations for one user are serialized here; operations
	// for different users do not contend. If fn returns an error nothing
	// is committed.
	InUserTx(ctx context.Context, userID uuid.UUID, fn func(LedgerTx) error) error
}

// LedgerTx is the view of the ledger inside a per-user critical section.
// Reads observe the most recent committed state of the user and their goals;
// no mutation proceeds against a stale read.
type LedgerTx interface {
	// User returns the locked user row.
	User(ctx context.Context) (*User, error)

	// DebitUser subtracts amount from the wallet balance. Fails with
	// ErrInsufficientBalance rather than letting the balance go negative.
	DebitUser(ctx context.Context, amount decimal.Decimal) error

	// CreditUser adds amount to the wallet balance.
	CreditUser(ctx context.Context, amount decimal.Decimal) error

	// GoalByID retrieves one of the user's goals with its milestones.
	GoalByID(ctx context.Context, goalID uuid.UUID) (*Goal, error)

	// CreateGoal persists a goal together with all its milestones.
	CreateGoal(ctx context.Context, goal *Goal) error

	// CompleteMilestone marks a milestone complete and records its released
	// amount and completion time, all at once. Guarded: fails with
	// ErrMilestoneAlreadyCompleted if the milestone is already complete,
	// so at most one completion per milestone ever commits.
	CompleteMilestone(ctx context.Context, goalID, milestoneID uuid.UUID, releasedAmount decimal.Decimal, completedAt time.Time) error

	// SetGoalStatus transitions the goal's status.
	SetGoalStatus(ctx context.Context, goalID uuid.UUID, status GoalStatus) error
}
