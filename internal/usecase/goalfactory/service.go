package goalfactory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
	"github.com/aiescrow/escrow-backend/internal/usecase/allocator"
)

// Service creates goals: it validates the request against the caller's
// balance, obtains a milestone breakdown from the planner, and persists the
// goal together with the debited deposit as one atomic unit.
type Service struct {
	Store   domain.LedgerStore
	Planner domain.MilestonePlanner
}

// NewService creates a new goal factory Service instance
func NewService(store domain.LedgerStore, planner domain.MilestonePlanner) *Service {
	return &Service{
		Store:   store,
		Planner: planner,
	}
}

// Create validates the title and deposit, asks the planner for a milestone
// breakdown, then debits the deposit and persists the goal inside the user's
// ledger transaction. The balance is re-read inside the transaction, so
// concurrent creations from the same user cannot jointly overdraw it.
//
// The planner call happens before the critical section: its failure modes
// (timeout, unusable output) leave no partial state, and the user lock is
// never held across a network call.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, title string, depositAmount decimal.Decimal) (*domain.Goal, error) {
	if len(strings.TrimSpace(title)) < domain.MinTitleLength {
		return nil, fmt.Errorf("%w: goal title must be at least %d characters", domain.ErrInvalidInput, domain.MinTitleLength)
	}
	if depositAmount.LessThan(domain.MinDepositAmount) || depositAmount.GreaterThan(domain.MaxDepositAmount) {
		return nil, fmt.Errorf("%w: deposit amount must be between %s and %s",
			domain.ErrInvalidInput, domain.MinDepositAmount, domain.MaxDepositAmount)
	}
	if !depositAmount.Equal(depositAmount.Round(2)) {
		return nil, fmt.Errorf("%w: deposit amount cannot have more than two decimal places", domain.ErrInvalidInput)
	}

	plans, err := s.Planner.GenerateMilestones(ctx, strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	plans, err = s.repairPlans(plans)
	if err != nil {
		return nil, err
	}

	goalID := uuid.New()
	milestones := make([]domain.Milestone, 0, len(plans))
	for _, p := range plans {
		proofType := p.RequiredProofType
		if proofType == "" {
			proofType = "any"
		}
		milestones = append(milestones, domain.Milestone{
			ID:                   uuid.New(),
			GoalID:               goalID,
			Description:          p.Description,
			Percentage:           p.Percentage,
			VerificationCriteria: p.VerificationCriteria,
			RequiredProofType:    proofType,
		})
	}

	goal := &domain.Goal{
		ID:            goalID,
		UserID:        userID,
		Title:         strings.TrimSpace(title),
		DepositAmount: depositAmount,
		Status:        domain.GoalStatusActive,
		CreatedAt:     time.Now(),
		Milestones:    milestones,
	}

	if err := goal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMilestoneGeneration, err)
	}

	// Debit and goal creation are one atomic unit, never observable as
	// debited-without-goal.
	err = s.Store.InUserTx(ctx, userID, func(tx domain.LedgerTx) error {
		user, err := tx.User(ctx)
		if err != nil {
			return err
		}
		if user.WalletBalance.LessThan(depositAmount) {
			return fmt.Errorf("%w: deposit %s exceeds wallet balance %s",
				domain.ErrInsufficientBalance, depositAmount, user.WalletBalance)
		}
		if err := tx.DebitUser(ctx, depositAmount); err != nil {
			return err
		}
		return tx.CreateGoal(ctx, goal)
	})
	if err != nil {
		return nil, err
	}

	return goal, nil
}

// repairPlans rejects unusable planner output and rescales percentages that
// do not sum to exactly 100.
func (s *Service) repairPlans(plans []domain.MilestonePlan) ([]domain.MilestonePlan, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: planner returned no milestones", domain.ErrMilestoneGeneration)
	}
	sum := decimal.Zero
	for _, p := range plans {
		if strings.TrimSpace(p.Description) == "" {
			return nil, fmt.Errorf("%w: planner returned a milestone without a description", domain.ErrMilestoneGeneration)
		}
		if p.Percentage.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: planner returned a non-positive percentage", domain.ErrMilestoneGeneration)
		}
		sum = sum.Add(p.Percentage)
	}

	normalized, err := allocator.NormalizePercentages(plans)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMilestoneGeneration, err)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		slog.Warn("normalized generated milestone percentages",
			"original_sum", sum.String(),
			"milestones", len(plans),
		)
	}
	return normalized, nil
}
