package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validGoal() Goal {
	goalID := uuid.New()
	return Goal{
		ID:            goalID,
		UserID:        uuid.New(),
		Title:         "Read 12 books in 3 months",
		DepositAmount: decimal.NewFromInt(40),
		Status:        GoalStatusActive,
		CreatedAt:     time.Now(),
		Milestones: []Milestone{
			{ID: uuid.New(), GoalID: goalID, Description: "Read 3 books", Percentage: decimal.NewFromInt(25), RequiredProofType: "any"},
			{ID: uuid.New(), GoalID: goalID, Description: "Read 6 books", Percentage: decimal.NewFromInt(25), RequiredProofType: "any"},
			{ID: uuid.New(), GoalID: goalID, Description: "Read 9 books", Percentage: decimal.NewFromInt(25), RequiredProofType: "any"},
			{ID: uuid.New(), GoalID: goalID, Description: "Read 12 books", Percentage: decimal.NewFromInt(25), RequiredProofType: "any"},
		},
	}
}

func TestGoal_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *Goal)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid goal should pass",
			mutate: func(g *Goal) {},
		},
		{
			name:    "title shorter than 10 characters should fail",
			mutate:  func(g *Goal) { g.Title = "  short   " },
			wantErr: true,
			errMsg:  "goal title must be at least 10 characters",
		},
		{
			name:    "deposit below the minimum should fail",
			mutate:  func(g *Goal) { g.DepositAmount = decimal.NewFromFloat(0.5) },
			wantErr: true,
			errMsg:  "deposit amount must be between",
		},
		{
			name:    "deposit above the maximum should fail",
			mutate:  func(g *Goal) { g.DepositAmount = decimal.NewFromInt(10001) },
			wantErr: true,
			errMsg:  "deposit amount must be between",
		},
		{
			name:    "deposit with three decimal places should fail",
			mutate:  func(g *Goal) { g.DepositAmount = decimal.NewFromFloat(40.005) },
			wantErr: true,
			errMsg:  "two decimal places",
		},
		{
			name:    "goal without milestones should fail",
			mutate:  func(g *Goal) { g.Milestones = nil },
			wantErr: true,
			errMsg:  "goal must have at least one milestone",
		},
		{
			name:    "percentages not summing to 100 should fail",
			mutate:  func(g *Goal) { g.Milestones[0].Percentage = decimal.NewFromInt(30) },
			wantErr: true,
			errMsg:  "milestone percentages must sum to exactly 100",
		},
		{
			name:    "non-positive percentage should fail",
			mutate:  func(g *Goal) { g.Milestones[0].Percentage = decimal.Zero },
			wantErr: true,
			errMsg:  "milestone percentage must be positive",
		},
		{
			name: "completed milestone without released amount should fail",
			mutate: func(g *Goal) {
				g.Milestones[0].IsCompleted = true
			},
			wantErr: true,
			errMsg:  "completed milestone must carry a released amount and completion time",
		},
		{
			name: "released amount on an incomplete milestone should fail",
			mutate: func(g *Goal) {
				amount := decimal.NewFromInt(10)
				g.Milestones[0].ReleasedAmount = &amount
			},
			wantErr: true,
			errMsg:  "released amount must be unset until the milestone completes",
		},
		{
			name: "released total above the deposit should fail",
			mutate: func(g *Goal) {
				amount := decimal.NewFromInt(50)
				now := time.Now()
				g.Milestones[0].IsCompleted = true
				g.Milestones[0].ReleasedAmount = &amount
				g.Milestones[0].CompletedAt = &now
			},
			wantErr: true,
			errMsg:  "released total exceeds the goal deposit",
		},
		{
			name: "completed goal must have released the full deposit",
			mutate: func(g *Goal) {
				g.Status = GoalStatusCompleted
			},
			wantErr: true,
			errMsg:  "completed goal must have released the full deposit",
		},
		{
			name: "completed goal with the full deposit released should pass",
			mutate: func(g *Goal) {
				g.Status = GoalStatusCompleted
				now := time.Now()
				for i := range g.Milestones {
					amount := decimal.NewFromInt(10)
					g.Milestones[i].IsCompleted = true
					g.Milestones[i].ReleasedAmount = &amount
					g.Milestones[i].CompletedAt = &now
				}
			},
		},
		{
			name:    "unknown status should fail",
			mutate:  func(g *Goal) { g.Status = "paused" },
			wantErr: true,
			errMsg:  "unknown goal status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			goal := validGoal()
			tt.mutate(&goal)

			err := goal.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGoal_MilestoneByID(t *testing.T) {
	goal := validGoal()

	found := goal.MilestoneByID(goal.Milestones[2].ID)
	assert.NotNil(t, found)
	assert.Equal(t, goal.Milestones[2].Description, found.Description)

	assert.Nil(t, goal.MilestoneByID(uuid.New()))
}

func TestGoal_RemainingAndReleased(t *testing.T) {
	goal := validGoal()
	assert.Equal(t, 4, goal.RemainingMilestones())
	assert.True(t, goal.ReleasedTotal().IsZero())

	now := time.Now()
	amount := decimal.NewFromInt(10)
	goal.Milestones[0].IsCompleted = true
	goal.Milestones[0].ReleasedAmount = &amount
	goal.Milestones[0].CompletedAt = &now

	assert.Equal(t, 3, goal.RemainingMilestones())
	assert.True(t, goal.ReleasedTotal().Equal(decimal.NewFromInt(10)))
}
