package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
)

// Snapshot aggregates a user's wallet and goal statistics. Derived from
// ledger state on demand; reflects the latest committed state.
type Snapshot struct {
	WalletBalance  decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalRefunded  decimal.Decimal
	TotalGoals     int
	ActiveGoals    int
	CompletedGoals int
}

// GoalList is a user's goals with status counts for display.
type GoalList struct {
	Goals          []*domain.Goal
	TotalGoals     int
	ActiveGoals    int
	CompletedGoals int
}

// Service handles wallet reads and lazy wallet provisioning.
type Service struct {
	Store           domain.LedgerStore
	StartingBalance decimal.Decimal
}

// NewService creates a new wallet Service instance
func NewService(store domain.LedgerStore, startingBalance decimal.Decimal) *Service {
	return &Service{
		Store:           store,
		StartingBalance: startingBalance,
	}
}

// EnsureUser provisions a wallet with the starting balance the first time an
// authenticated user id reaches the ledger. Safe under concurrent first
// requests: creation is idempotent and the committed row is re-read.
func (s *Service) EnsureUser(ctx context.Context, userID uuid.UUID, displayName string) (*domain.User, error) {
	user, err := s.Store.UserByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	created := &domain.User{
		ID:            userID,
		DisplayName:   displayName,
		WalletBalance: s.StartingBalance,
		CreatedAt:     time.Now(),
	}
	if err := s.Store.CreateUser(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to provision wallet: %w", err)
	}
	return s.Store.UserByID(ctx, userID)
}

// Snapshot computes the wallet snapshot by scanning the user's goals.
// totalDeposited covers every goal ever created, whatever its status;
// totalRefunded sums the released amounts of completed milestones.
func (s *Service) Snapshot(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	user, err := s.Store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	goals, err := s.Store.GoalsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		WalletBalance:  user.WalletBalance,
		TotalDeposited: decimal.Zero,
		TotalRefunded:  decimal.Zero,
	}
	for _, goal := range goals {
		snap.TotalGoals++
		switch goal.Status {
		case domain.GoalStatusActive:
			snap.ActiveGoals++
		case domain.GoalStatusCompleted:
			snap.CompletedGoals++
		}
		snap.TotalDeposited = snap.TotalDeposited.Add(goal.DepositAmount)
		snap.TotalRefunded = snap.TotalRefunded.Add(goal.ReleasedTotal())
	}

	return snap, nil
}

// ListGoals returns the user's goals, newest first, with status counts.
func (s *Service) ListGoals(ctx context.Context, userID uuid.UUID) (*GoalList, error) {
	goals, err := s.Store.GoalsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	list := &GoalList{Goals: goals, TotalGoals: len(goals)}
	for _, goal := range goals {
		switch goal.Status {
		case domain.GoalStatusActive:
			list.ActiveGoals++
		case domain.GoalStatusCompleted:
			list.CompletedGoals++
		}
	}
	return list, nil
}
