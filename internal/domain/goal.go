package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GoalStatus represents the lifecycle state of a goal
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusFailed    GoalStatus = "failed"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// MinTitleLength is the minimum goal title length after trimming whitespace.
const MinTitleLength = 10

// Deposit bounds enforced at goal creation.
var (
	MinDepositAmount = decimal.NewFromInt(1)
	MaxDepositAmount = decimal.NewFromInt(10000)
)

var percentTotal = decimal.NewFromInt(100)

// Goal represents a deposit held in escrow against a user goal.
// Milestones keep the order in which the planner proposed them; that order
// is meaningful and preserved thereafter.
type Goal struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Title         string
	DepositAmount decimal.Decimal
	Status        GoalStatus
	CreatedAt     time.Time
	Milestones    []Milestone
}

// Milestone carries a fixed percentage share of its goal's deposit.
// IsCompleted is monotonic (false to true, never back), and ReleasedAmount
// is set exactly once, atomically with completion.
type Milestone struct {
	ID                   uuid.UUID
	GoalID               uuid.UUID
	Description          string
	Percentage           decimal.Decimal
	VerificationCriteria string
	RequiredProofType    string
	IsCompleted          bool
	ReleasedAmount       *decimal.Decimal
	CompletedAt          *time.Time
}

// Validate ensures the goal adheres to domain rules
// CRITICAL: milestone percentages must sum to exactly 100, and the released
// total of completed milestones must never exceed the deposit.
func (g *Goal) Validate() error {
	if len(strings.TrimSpace(g.Title)) < MinTitleLength {
		return fmt.Errorf("goal title must be at least %d characters", MinTitleLength)
	}

	if g.DepositAmount.LessThan(MinDepositAmount) || g.DepositAmount.GreaterThan(MaxDepositAmount) {
		return fmt.Errorf("deposit amount must be between %s and %s", MinDepositAmount, MaxDepositAmount)
	}
	if !g.DepositAmount.Equal(g.DepositAmount.Round(2)) {
		return errors.New("deposit amount cannot have more than two decimal places")
	}

	switch g.Status {
	case GoalStatusActive, GoalStatusCompleted, GoalStatusFailed, GoalStatusAbandoned:
	default:
		return fmt.Errorf("unknown goal status %q", g.Status)
	}

	if len(g.Milestones) == 0 {
		return errors.New("goal must have at least one milestone")
	}

	percentSum := decimal.Zero
	releasedSum := decimal.Zero
	for _, m := range g.Milestones {
		if m.Percentage.LessThanOrEqual(decimal.Zero) {
			return errors.New("milestone percentage must be positive")
		}
		percentSum = percentSum.Add(m.Percentage)

		if m.IsCompleted {
			if m.ReleasedAmount == nil || m.CompletedAt == nil {
				return errors.New("completed milestone must carry a released amount and completion time")
			}
			releasedSum = releasedSum.Add(*m.ReleasedAmount)
		} else if m.ReleasedAmount != nil || m.CompletedAt != nil {
			return errors.New("released amount must be unset until the milestone completes")
		}
	}

	if !percentSum.Equal(percentTotal) {
		return errors.New("milestone percentages must sum to exactly 100")
	}

	if releasedSum.GreaterThan(g.DepositAmount) {
		return errors.New("released total exceeds the goal deposit")
	}
	if g.Status == GoalStatusCompleted && !releasedSum.Equal(g.DepositAmount) {
		return errors.New("completed goal must have released the full deposit")
	}

	return nil
}

// MilestoneByID returns the milestone with the given id, or nil.
func (g *Goal) MilestoneByID(id uuid.UUID) *Milestone {
	for i := range g.Milestones {
		if g.Milestones[i].ID == id {
			return &g.Milestones[i]
		}
	}
	return nil
}

// RemainingMilestones counts milestones that are not yet completed.
func (g *Goal) RemainingMilestones() int {
	remaining := 0
	for _, m := range g.Milestones {
		if !m.IsCompleted {
			remaining++
		}
	}
	return remaining
}

// ReleasedTotal sums the released amounts of completed milestones.
func (g *Goal) ReleasedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, m := range g.Milestones {
		if m.IsCompleted && m.ReleasedAmount != nil {
			total = total.Add(*m.ReleasedAmount)
		}
	}
	return total
}
