package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
)

// Store is an in-process implementation of domain.LedgerStore, used for
// tests and for running the server without Postgres (DB_DRIVER=memory).
// Each user's state sits behind its own mutex, so same-user operations
// serialize while different users do not contend.
type Store struct {
	mu    sync.Mutex // guards the users map only
	users map[uuid.UUID]*userState
}

type userState struct {
	mu    sync.Mutex
	user  domain.User
	goals map[uuid.UUID]*domain.Goal
	order []uuid.UUID // creation order
}

// NewStore creates an empty in-memory ledger store
func NewStore() *Store {
	return &Store{users: make(map[uuid.UUID]*userState)}
}

func (s *Store) state(id uuid.UUID) (*userState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return st, nil
}

// CreateUser provisions a wallet. A second create for the same id is a no-op.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return nil
	}
	s.users[user.ID] = &userState{
		user:  *user,
		goals: make(map[uuid.UUID]*domain.Goal),
	}
	return nil
}

func (s *Store) UserByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	st, err := s.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	u := st.user
	return &u, nil
}

func (s *Store) GoalByID(_ context.Context, id uuid.UUID) (*domain.Goal, error) {
	s.mu.Lock()
	states := make([]*userState, 0, len(s.users))
	for _, st := range s.users {
		states = append(states, st)
	}
	s.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		if goal, ok := st.goals[id]; ok {
			copied := copyGoal(goal)
			st.mu.Unlock()
			return copied, nil
		}
		st.mu.Unlock()
	}
	return nil, domain.ErrGoalNotFound
}

func (s *Store) GoalsByUser(_ context.Context, userID uuid.UUID) ([]*domain.Goal, error) {
	st, err := s.state(userID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	goals := make([]*domain.Goal, 0, len(st.order))
	for _, id := range st.order {
		goals = append(goals, copyGoal(st.goals[id]))
	}
	// Newest first, matching the durable store.
	sort.SliceStable(goals, func(i, j int) bool {
		return goals[i].CreatedAt.After(goals[j].CreatedAt)
	})
	return goals, nil
}

// InUserTx runs fn against a deep copy of the user's state while holding the
// user's mutex. The copy replaces the live state only when fn succeeds, so a
// failing fn rolls back every mutation it made.
func (s *Store) InUserTx(ctx context.Context, userID uuid.UUID, fn func(domain.LedgerTx) error) error {
	st, err := s.state(userID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &ledgerTx{
		user:  st.user,
		goals: make(map[uuid.UUID]*domain.Goal, len(st.goals)),
		order: append([]uuid.UUID(nil), st.order...),
	}
	for id, goal := range st.goals {
		tx.goals[id] = copyGoal(goal)
	}

	if err := fn(tx); err != nil {
		return err
	}

	st.user = tx.user
	st.goals = tx.goals
	st.order = tx.order
	return nil
}

type ledgerTx struct {
	user  domain.User
	goals map[uuid.UUID]*domain.Goal
	order []uuid.UUID
}

func (t *ledgerTx) User(context.Context) (*domain.User, error) {
	u := t.user
	return &u, nil
}

func (t *ledgerTx) DebitUser(_ context.Context, amount decimal.Decimal) error {
	if t.user.WalletBalance.LessThan(amount) {
		return fmt.Errorf("%w: debit %s exceeds balance %s",
			domain.ErrInsufficientBalance, amount, t.user.WalletBalance)
	}
	t.user.WalletBalance = t.user.WalletBalance.Sub(amount)
	return nil
}

func (t *ledgerTx) CreditUser(_ context.Context, amount decimal.Decimal) error {
	t.user.WalletBalance = t.user.WalletBalance.Add(amount)
	return nil
}

func (t *ledgerTx) GoalByID(_ context.Context, goalID uuid.UUID) (*domain.Goal, error) {
	goal, ok := t.goals[goalID]
	if !ok {
		return nil, domain.ErrGoalNotFound
	}
	return copyGoal(goal), nil
}

func (t *ledgerTx) CreateGoal(_ context.Context, goal *domain.Goal) error {
	if err := goal.Validate(); err != nil {
		return err
	}
	if _, ok := t.goals[goal.ID]; ok {
		return fmt.Errorf("goal %s already exists", goal.ID)
	}
	t.goals[goal.ID] = copyGoal(goal)
	t.order = append(t.order, goal.ID)
	return nil
}

func (t *ledgerTx) CompleteMilestone(_ context.Context, goalID, milestoneID uuid.UUID, releasedAmount decimal.Decimal, completedAt time.Time) error {
	goal, ok := t.goals[goalID]
	if !ok {
		return domain.ErrGoalNotFound
	}
	milestone := goal.MilestoneByID(milestoneID)
	if milestone == nil {
		return domain.ErrMilestoneNotFound
	}
	if milestone.IsCompleted {
		return domain.ErrMilestoneAlreadyCompleted
	}
	milestone.IsCompleted = true
	released := releasedAmount
	milestone.ReleasedAmount = &released
	done := completedAt
	milestone.CompletedAt = &done
	return nil
}

func (t *ledgerTx) SetGoalStatus(_ context.Context, goalID uuid.UUID, status domain.GoalStatus) error {
	goal, ok := t.goals[goalID]
	if !ok {
		return domain.ErrGoalNotFound
	}
	goal.Status = status
	return nil
}

// copyGoal deep-copies a goal so callers can never alias store state.
func copyGoal(goal *domain.Goal) *domain.Goal {
	copied := *goal
	copied.Milestones = make([]domain.Milestone, len(goal.Milestones))
	copy(copied.Milestones, goal.Milestones)
	for i := range copied.Milestones {
		if copied.Milestones[i].ReleasedAmount != nil {
			amount := *copied.Milestones[i].ReleasedAmount
			copied.Milestones[i].ReleasedAmount = &amount
		}
		if copied.Milestones[i].CompletedAt != nil {
			at := *copied.Milestones[i].CompletedAt
			copied.Milestones[i].CompletedAt = &at
		}
	}
	return &copied
}
