package release

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
	"github.com/aiescrow/escrow-backend/internal/usecase/allocator"
)

// Engine releases escrowed funds: it marks a milestone complete, credits the
// proportional refund to the wallet, and completes the goal when its last
// milestone is done, all inside one ledger transaction. This is the only
// path that increases a wallet balance for a goal.
type Engine struct {
	Store domain.LedgerStore
}

// NewEngine creates a new release Engine instance
func NewEngine(store domain.LedgerStore) *Engine {
	return &Engine{Store: store}
}

// Release executes the release for one verified milestone and returns the
// refunded amount. It is strictly idempotent per milestone: completion is
// re-checked inside the critical section against the latest committed state,
// so when two verified verdicts race, at most one release commits and the
// other fails with ErrMilestoneAlreadyCompleted.
func (e *Engine) Release(ctx context.Context, userID, goalID, milestoneID uuid.UUID) (decimal.Decimal, error) {
	var refund decimal.Decimal

	err := e.Store.InUserTx(ctx, userID, func(tx domain.LedgerTx) error {
		goal, err := tx.GoalByID(ctx, goalID)
		if err != nil {
			return err
		}
		if goal.UserID != userID {
			return domain.ErrNotGoalOwner
		}
		if goal.Status != domain.GoalStatusActive {
			return fmt.Errorf("%w: goal is %s", domain.ErrGoalNotActive, goal.Status)
		}

		milestone := goal.MilestoneByID(milestoneID)
		if milestone == nil {
			return domain.ErrMilestoneNotFound
		}
		if milestone.IsCompleted {
			return domain.ErrMilestoneAlreadyCompleted
		}

		shares, err := allocator.CalculateReleases(goal.DepositAmount, goal.Milestones)
		if err != nil {
			return err
		}
		amount := shares[milestoneID]

		if goal.ReleasedTotal().Add(amount).GreaterThan(goal.DepositAmount) {
			slog.Error("release would exceed goal deposit",
				"goal_id", goalID,
				"milestone_id", milestoneID,
				"released", goal.ReleasedTotal().String(),
				"amount", amount.String(),
				"deposit", goal.DepositAmount.String(),
			)
			return fmt.Errorf("%w: release of %s would exceed deposit %s",
				domain.ErrConsistency, amount, goal.DepositAmount)
		}

		now := time.Now()
		if err := tx.CompleteMilestone(ctx, goalID, milestoneID, amount, now); err != nil {
			return err
		}
		if err := tx.CreditUser(ctx, amount); err != nil {
			return err
		}

		// This milestone was the last incomplete one: the goal is done and
		// the full deposit has been returned.
		if goal.RemainingMilestones() == 1 {
			if err := tx.SetGoalStatus(ctx, goalID, domain.GoalStatusCompleted); err != nil {
				return err
			}
		}

		refund = amount
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	return refund, nil
}
