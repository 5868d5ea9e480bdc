package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the scan helpers work
// inside and outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements domain.LedgerStore on Postgres.
// Per-user serialization uses SELECT ... FOR UPDATE on the user row: two
// transactions touching the same user queue on the row lock, while
// transactions for different users run independently.
type Store struct {
	db *DB
}

// NewStore creates a new Postgres-backed ledger store
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// CreateUser provisions a wallet. ON CONFLICT DO NOTHING makes a second
// create for the same id a no-op.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, display_name, wallet_balance, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.DisplayName,
		user.WalletBalance.String(),
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UserByID retrieves a user by its ID
func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return scanUser(ctx, s.db, id, false)
}

// GoalByID retrieves a goal with its milestones in plan order
func (s *Store) GoalByID(ctx context.Context, id uuid.UUID) (*domain.Goal, error) {
	return scanGoal(ctx, s.db, id)
}

// GoalsByUser retrieves all goals ever created by the user, newest first.
// Two queries regardless of goal count: one for the goal rows, one for all
// their milestones.
func (s *Store) GoalsByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Goal, error) {
	query := `
		SELECT id, user_id, title, deposit_amount, status, created_at
		FROM goals
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	goals := make([]*domain.Goal, 0)
	var ids []uuid.UUID
	for rows.Next() {
		goal, err := scanGoalRow(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
		ids = append(ids, goal.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	if len(goals) == 0 {
		return goals, nil
	}

	byGoal, err := scanMilestonesByGoal(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for _, goal := range goals {
		goal.Milestones = byGoal[goal.ID]
	}
	return goals, nil
}

// InUserTx runs fn inside a database transaction that holds a row lock on
// the user. Any error from fn rolls the whole transaction back.
func (s *Store) InUserTx(ctx context.Context, userID uuid.UUID, fn func(domain.LedgerTx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	// Lock the user row; this is the per-user critical section.
	if _, err := scanUser(ctx, dbTx, userID, true); err != nil {
		return err
	}

	if err := fn(&ledgerTx{tx: dbTx, userID: userID}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ledgerTx implements domain.LedgerTx on an open *sql.Tx holding the user's
// row lock.
type ledgerTx struct {
	tx     *sql.Tx
	userID uuid.UUID
}

func (t *ledgerTx) User(ctx context.Context) (*domain.User, error) {
	return scanUser(ctx, t.tx, t.userID, false)
}

func (t *ledgerTx) DebitUser(ctx context.Context, amount decimal.Decimal) error {
	// The balance guard in SQL backs up the caller's own check: the update
	// refuses to take the balance negative.
	query := `
		UPDATE users
		SET wallet_balance = wallet_balance - $1
		WHERE id = $2 AND wallet_balance >= $1
	`
	result, err := t.tx.ExecContext(ctx, query, amount.String(), t.userID)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: debit %s refused", domain.ErrInsufficientBalance, amount)
	}
	return nil
}

func (t *ledgerTx) CreditUser(ctx context.Context, amount decimal.Decimal) error {
	query := `UPDATE users SET wallet_balance = wallet_balance + $1 WHERE id = $2`
	if _, err := t.tx.ExecContext(ctx, query, amount.String(), t.userID); err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	return nil
}

func (t *ledgerTx) GoalByID(ctx context.Context, goalID uuid.UUID) (*domain.Goal, error) {
	return scanGoal(ctx, t.tx, goalID)
}

func (t *ledgerTx) CreateGoal(ctx context.Context, goal *domain.Goal) error {
	if err := goal.Validate(); err != nil {
		return err
	}

	insertGoal := `
		INSERT INTO goals (id, user_id, title, deposit_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.ExecContext(ctx, insertGoal,
		goal.ID,
		goal.UserID,
		goal.Title,
		goal.DepositAmount.String(),
		string(goal.Status),
		goal.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert goal: %w", err)
	}

	insertMilestone := `
		INSERT INTO milestones (id, goal_id, position, description, percentage, verification_criteria, required_proof_type, is_completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, m := range goal.Milestones {
		_, err := t.tx.ExecContext(ctx, insertMilestone,
			m.ID,
			goal.ID,
			i,
			m.Description,
			m.Percentage.String(),
			m.VerificationCriteria,
			m.RequiredProofType,
			m.IsCompleted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert milestone: %w", err)
		}
	}
	return nil
}

func (t *ledgerTx) CompleteMilestone(ctx context.Context, goalID, milestoneID uuid.UUID, releasedAmount decimal.Decimal, completedAt time.Time) error {
	// Guarded update: the WHERE clause refuses a second completion, so at
	// most one release per milestone ever commits.
	query := `
		UPDATE milestones
		SET is_completed = TRUE, released_amount = $1, completed_at = $2
		WHERE id = $3 AND goal_id = $4 AND is_completed = FALSE
	`
	result, err := t.tx.ExecContext(ctx, query,
		releasedAmount.String(),
		completedAt,
		milestoneID,
		goalID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete milestone: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete milestone: %w", err)
	}
	if rows == 0 {
		return domain.ErrMilestoneAlreadyCompleted
	}
	return nil
}

func (t *ledgerTx) SetGoalStatus(ctx context.Context, goalID uuid.UUID, status domain.GoalStatus) error {
	query := `UPDATE goals SET status = $1 WHERE id = $2`
	result, err := t.tx.ExecContext(ctx, query, string(status), goalID)
	if err != nil {
		return fmt.Errorf("failed to update goal status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update goal status: %w", err)
	}
	if rows == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

func scanUser(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.User, error) {
	query := `
		SELECT id, display_name, wallet_balance, created_at
		FROM users
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var user domain.User
	var balanceStr string
	err := q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.DisplayName,
		&balanceStr,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet_balance: %w", err)
	}
	user.WalletBalance = balance

	return &user, nil
}

func scanGoal(ctx context.Context, q querier, id uuid.UUID) (*domain.Goal, error) {
	query := `
		SELECT id, user_id, title, deposit_amount, status, created_at
		FROM goals
		WHERE id = $1
	`

	var goal domain.Goal
	var depositStr string
	var status string
	err := q.QueryRowContext(ctx, query, id).Scan(
		&goal.ID,
		&goal.UserID,
		&goal.Title,
		&depositStr,
		&status,
		&goal.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrGoalNotFound
		}
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}

	deposit, err := decimal.NewFromString(depositStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deposit_amount: %w", err)
	}
	goal.DepositAmount = deposit
	goal.Status = domain.GoalStatus(status)

	milestones, err := scanMilestones(ctx, q, id)
	if err != nil {
		return nil, err
	}
	goal.Milestones = milestones

	return &goal, nil
}

// scanGoalRow scans one row of a multi-goal query; the column list matches
// scanGoal's. Milestones are attached separately.
func scanGoalRow(rows *sql.Rows) (*domain.Goal, error) {
	var goal domain.Goal
	var depositStr string
	var status string
	err := rows.Scan(
		&goal.ID,
		&goal.UserID,
		&goal.Title,
		&depositStr,
		&status,
		&goal.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	deposit, err := decimal.NewFromString(depositStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deposit_amount: %w", err)
	}
	goal.DepositAmount = deposit
	goal.Status = domain.GoalStatus(status)

	return &goal, nil
}

func scanMilestones(ctx context.Context, q querier, goalID uuid.UUID) ([]domain.Milestone, error) {
	byGoal, err := scanMilestonesByGoal(ctx, q, []uuid.UUID{goalID})
	if err != nil {
		return nil, err
	}
	return byGoal[goalID], nil
}

// scanMilestonesByGoal loads the milestones of every listed goal in one
// query, in plan order within each goal.
func scanMilestonesByGoal(ctx context.Context, q querier, goalIDs []uuid.UUID) (map[uuid.UUID][]domain.Milestone, error) {
	query := `
		SELECT id, goal_id, description, percentage, verification_criteria, required_proof_type, is_completed, released_amount, completed_at
		FROM milestones
		WHERE goal_id = ANY($1)
		ORDER BY goal_id, position
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(goalIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	byGoal := make(map[uuid.UUID][]domain.Milestone, len(goalIDs))
	for rows.Next() {
		var m domain.Milestone
		var percentageStr string
		var releasedStr sql.NullString
		var completedAt sql.NullTime

		err := rows.Scan(
			&m.ID,
			&m.GoalID,
			&m.Description,
			&percentageStr,
			&m.VerificationCriteria,
			&m.RequiredProofType,
			&m.IsCompleted,
			&releasedStr,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}

		percentage, err := decimal.NewFromString(percentageStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse percentage: %w", err)
		}
		m.Percentage = percentage

		if releasedStr.Valid {
			released, err := decimal.NewFromString(releasedStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse released_amount: %w", err)
			}
			m.ReleasedAmount = &released
		}
		if completedAt.Valid {
			at := completedAt.Time
			m.CompletedAt = &at
		}

		byGoal[m.GoalID] = append(byGoal[m.GoalID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}

	return byGoal, nil
}
