package goalfactory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/aiescrow/escrow-backend/internal/adapter/repository/memory"
	"github.com/aiescrow/escrow-backend/internal/domain"
)

// MockMilestonePlanner is a mock implementation of MilestonePlanner for testing
type MockMilestonePlanner struct {
	mock.Mock
}

func (m *MockMilestonePlanner) GenerateMilestones(ctx context.Context, goalTitle string) ([]domain.MilestonePlan, error) {
	args := m.Called(ctx, goalTitle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MilestonePlan), args.Error(1)
}

func quarterPlans() []domain.MilestonePlan {
	plans := make([]domain.MilestonePlan, 4)
	for i := range plans {
		plans[i] = domain.MilestonePlan{
			Description:          "Finish a quarter of the goal",
			Percentage:           decimal.NewFromInt(25),
			VerificationCriteria: "Show evidence of the completed quarter",
			RequiredProofType:    "photo",
		}
	}
	return plans
}

func newUserStore(t *testing.T, balance string) (*memory.Store, uuid.UUID) {
	t.Helper()
	store := memory.NewStore()
	userID := uuid.New()
	err := store.CreateUser(context.Background(), &domain.User{
		ID:            userID,
		DisplayName:   "Test User",
		WalletBalance: decimal.RequireFromString(balance),
	})
	assert.NoError(t, err)
	return store, userID
}

func TestCreate_Success(t *testing.T) {
	ctx := context.Background()
	store, userID := newUserStore(t, "100.00")
	planner := new(MockMilestonePlanner)
	service := NewService(store, planner)

	planner.On("GenerateMilestones", ctx, "Read 12 books in 3 months").
		Return(quarterPlans(), nil)

	goal, err := service.Create(ctx, userID, "  Read 12 books in 3 months  ", decimal.RequireFromString("40.00"))

	assert.NoError(t, err)
	assert.NotNil(t, goal)
	assert.Equal(t, "Read 12 books in 3 months", goal.Title)
	assert.Equal(t, domain.GoalStatusActive, goal.Status)
	assert.Len(t, goal.Milestones, 4)
	for _, m := range goal.Milestones {
		assert.Equal(t, goal.ID, m.GoalID)
		assert.False(t, m.IsCompleted)
		assert.Equal(t, "photo", m.RequiredProofType)
	}

	user, err := store.UserByID(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, user.WalletBalance.Equal(decimal.RequireFromString("60.00")))

	stored, err := store.GoalByID(ctx, goal.ID)
	assert.NoError(t, err)
	assert.Equal(t, goal.ID, stored.ID)
	planner.AssertExpectations(t)
}

func TestCreate_NormalizesPlannerPercentages(t *testing.T) {
	ctx := context.Background()
	store, userID := newUserStore(t, "100.00")
	planner := new(MockMilestonePlanner)
	service := NewService(store, planner)

	// Percentages sum to 90; they get rescaled to 100.
	plans := []domain.MilestonePlan{
		{Description: "First leg", Percentage: decimal.NewFromInt(30)},
		{Description: "Second leg", Percentage: decimal.NewFromInt(30)},
		{Description: "Final leg", Percentage: decimal.NewFromInt(30)},
	}
	planner.On("GenerateMilestones", ctx, mock.Anything).Return(plans, nil)

	goal, err := service.Create(ctx, userID, "Run a half marathon this year", decimal.RequireFromString("50.00"))

	assert.NoError(t, err)
	sum := decimal.Zero
	for _, m := range goal.Milestones {
		sum = sum.Add(m.Percentage)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(100)), "percentages sum to %s", sum)
	// Unset proof types default to any.
	assert.Equal(t, "any", goal.Milestones[0].RequiredProofType)
}

func TestCreate_InputValidation(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		deposit string
		errMsg  string
	}{
		{name: "title too short", title: "Run", deposit: "40.00", errMsg: "at least 10 characters"},
		{name: "whitespace-padded short title", title: "   Run    ", deposit: "40.00", errMsg: "at least 10 characters"},
		{name: "deposit below minimum", title: "Read 12 books in 3 months", deposit: "0.50", errMsg: "between"},
		{name: "deposit above maximum", title: "Read 12 books in 3 months", deposit: "10001", errMsg: "between"},
		{name: "deposit with sub-cent precision", title: "Read 12 books in 3 months", deposit: "40.005", errMsg: "two decimal places"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, userID := newUserStore(t, "100.00")
			planner := new(MockMilestonePlanner)
			service := NewService(store, planner)

			goal, err := service.Create(ctx, userID, tt.title, decimal.RequireFromString(tt.deposit))

			assert.Error(t, err)
			assert.Nil(t, goal)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.errMsg)

			// Validation failures never touch the wallet or the planner.
			user, err := store.UserByID(ctx, userID)
			assert.NoError(t, err)
			assert.True(t, user.WalletBalance.Equal(decimal.RequireFromString("100.00")))
			planner.AssertNotCalled(t, "GenerateMilestones", mock.Anything, mock.Anything)
		})
	}
}

func TestCreate_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	store, userID := newUserStore(t, "30.00")
	planner := new(MockMilestonePlanner)
	service := NewService(store, planner)

	planner.On("GenerateMilestones", ctx, mock.Anything).Return(quarterPlans(), nil)

	goal, err := service.Create(ctx, userID, "Read 12 books in 3 months", decimal.RequireFromString("40.00"))

	assert.Error(t, err)
	assert.Nil(t, goal)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	user, err := store.UserByID(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, user.WalletBalance.Equal(decimal.RequireFromString("30.00")))

	goals, err := store.GoalsByUser(ctx, userID)
	assert.NoError(t, err)
	assert.Empty(t, goals)
}

func TestCreate_PlannerUnavailable(t *testing.T) {
	ctx := context.Background()
	store, userID := newUserStore(t, "100.00")
	planner := new(MockMilestonePlanner)
	service := NewService(store, planner)

	planner.On("GenerateMilestones", ctx, mock.Anything).
		Return(nil, domain.ErrGenerationUnavailable)

	goal, err := service.Create(ctx, userID, "Read 12 books in 3 months", decimal.RequireFromString("40.00"))

	assert.Error(t, err)
	assert.Nil(t, goal)
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)

	// Planner failure leaves the wallet untouched.
	user, err := store.UserByID(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, user.WalletBalance.Equal(decimal.RequireFromString("100.00")))
}

func TestCreate_UnusablePlannerOutput(t *testing.T) {
	tests := []struct {
		name  string
		plans []domain.MilestonePlan
	}{
		{name: "empty plan", plans: []domain.MilestonePlan{}},
		{
			name: "missing description",
			plans: []domain.MilestonePlan{
				{Description: "  ", Percentage: decimal.NewFromInt(100)},
			},
		},
		{
			name: "non-positive percentage",
			plans: []domain.MilestonePlan{
				{Description: "First leg", Percentage: decimal.NewFromInt(110)},
				{Description: "Second leg", Percentage: decimal.NewFromInt(-10)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, userID := newUserStore(t, "100.00")
			planner := new(MockMilestonePlanner)
			service := NewService(store, planner)

			planner.On("GenerateMilestones", ctx, mock.Anything).Return(tt.plans, nil)

			goal, err := service.Create(ctx, userID, "Read 12 books in 3 months", decimal.RequireFromString("40.00"))

			assert.Error(t, err)
			assert.Nil(t, goal)
			assert.ErrorIs(t, err, domain.ErrMilestoneGeneration)

			user, err := store.UserByID(ctx, userID)
			assert.NoError(t, err)
			assert.True(t, user.WalletBalance.Equal(decimal.RequireFromString("100.00")))
		})
	}
}

func TestCreate_ConcurrentCreationsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	store, userID := newUserStore(t, "100.00")
	planner := new(MockMilestonePlanner)
	service := NewService(store, planner)

	planner.On("GenerateMilestones", mock.Anything, mock.Anything).Return(quarterPlans(), nil)

	// Three concurrent 40.00 deposits against a 100.00 wallet: exactly one
	// must fail.
	const attempts = 3
	deposit := decimal.RequireFromString("40.00")

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Create(ctx, userID, "Read 12 books in 3 months", deposit)
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	user, err := store.UserByID(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, user.WalletBalance.Equal(decimal.RequireFromString("20.00")))

	goals, err := store.GoalsByUser(ctx, userID)
	assert.NoError(t, err)
	assert.Len(t, goals, 2)
}

func TestCreate_UnknownUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	planner := new(MockMilestonePlanner)
	service := NewService(store, planner)

	planner.On("GenerateMilestones", ctx, mock.Anything).Return(quarterPlans(), nil)

	goal, err := service.Create(ctx, uuid.New(), "Read 12 books in 3 months", decimal.RequireFromString("40.00"))

	assert.Error(t, err)
	assert.Nil(t, goal)
	assert.True(t, errors.Is(err, domain.ErrUserNotFound))
}
