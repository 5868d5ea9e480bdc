package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
	"github.com/aiescrow/escrow-backend/internal/usecase/goalfactory"
	"github.com/aiescrow/escrow-backend/internal/usecase/verifier"
	"github.com/aiescrow/escrow-backend/internal/usecase/wallet"
)

// Server exposes the escrow ledger as the JSON API the frontend consumes.
type Server struct {
	Goals    *goalfactory.Service
	Verifier *verifier.Service
	Wallet   *wallet.Service

	jwtSecret string
}

// NewServer creates a new REST server instance
func NewServer(goals *goalfactory.Service, verifierService *verifier.Service, walletService *wallet.Service, jwtSecret string) *Server {
	return &Server{
		Goals:     goals,
		Verifier:  verifierService,
		Wallet:    walletService,
		jwtSecret: jwtSecret,
	}
}

// Routes builds the HTTP handler with auth and logging middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/goals/create", s.createGoal)
	mux.HandleFunc("GET /api/goals/wallet/balance", s.walletBalance)
	mux.HandleFunc("GET /api/goals/user/{userId}", s.listGoals)
	mux.HandleFunc("PUT /api/goals/{goalId}/milestones/{milestoneId}/submit-proof", s.submitProof)

	return Chain(
		mux,
		RequestLogging,
		Auth(s.jwtSecret, s.Wallet),
	)
}

// amount serializes a decimal as a bare JSON number. The web client does
// arithmetic and toFixed formatting on every money field, so quoted strings
// would break it.
type amount struct{ decimal.Decimal }

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func num(d decimal.Decimal) amount { return amount{d} }

func numPtr(d *decimal.Decimal) *amount {
	if d == nil {
		return nil
	}
	return &amount{*d}
}

type createGoalRequest struct {
	Title         string          `json:"title"`
	DepositAmount decimal.Decimal `json:"depositAmount"`
}

type createGoalResponse struct {
	Message          string    `json:"message"`
	Goal             *goalJSON `json:"goal"`
	RemainingBalance amount    `json:"remainingBalance"`
}

func (s *Server) createGoal(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goal, err := s.Goals.Create(r.Context(), user.ID, req.Title, req.DepositAmount)
	if err != nil {
		writeError(w, err)
		return
	}

	remaining, err := s.Wallet.Snapshot(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createGoalResponse{
		Message:          "Goal created successfully",
		Goal:             toGoalJSON(goal),
		RemainingBalance: num(remaining.WalletBalance),
	})
}

type walletBalanceResponse struct {
	WalletBalance amount          `json:"walletBalance"`
	Stats         walletStatsJSON `json:"stats"`
}

type walletStatsJSON struct {
	TotalDeposited amount `json:"totalDeposited"`
	TotalRefunded  amount `json:"totalRefunded"`
	TotalGoals     int    `json:"totalGoals"`
	ActiveGoals    int    `json:"activeGoals"`
	CompletedGoals int    `json:"completedGoals"`
}

func (s *Server) walletBalance(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	snap, err := s.Wallet.Snapshot(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, walletBalanceResponse{
		WalletBalance: num(snap.WalletBalance),
		Stats: walletStatsJSON{
			TotalDeposited: num(snap.TotalDeposited),
			TotalRefunded:  num(snap.TotalRefunded),
			TotalGoals:     snap.TotalGoals,
			ActiveGoals:    snap.ActiveGoals,
			CompletedGoals: snap.CompletedGoals,
		},
	})
}

type listGoalsResponse struct {
	Goals          []*goalJSON `json:"goals"`
	TotalGoals     int         `json:"totalGoals"`
	ActiveGoals    int         `json:"activeGoals"`
	CompletedGoals int         `json:"completedGoals"`
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	pathID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if pathID != user.ID {
		writeMessage(w, http.StatusForbidden, "cannot list another user's goals")
		return
	}

	list, err := s.Wallet.ListGoals(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	goals := make([]*goalJSON, 0, len(list.Goals))
	for _, goal := range list.Goals {
		goals = append(goals, toGoalJSON(goal))
	}

	writeJSON(w, http.StatusOK, listGoalsResponse{
		Goals:          goals,
		TotalGoals:     list.TotalGoals,
		ActiveGoals:    list.ActiveGoals,
		CompletedGoals: list.CompletedGoals,
	})
}

type submitProofRequest struct {
	ProofDescription        string `json:"proofDescription"`
	ProofURL                string `json:"proofUrl"`
	SelfCertify             bool   `json:"selfCertify"`
	SelfCertificationReason string `json:"selfCertificationReason"`
}

type submitProofResponse struct {
	Message      string      `json:"message"`
	Verification verdictJSON `json:"verification"`
	RefundAmount *amount     `json:"refundAmount,omitempty"`
	NewBalance   *amount     `json:"newBalance,omitempty"`
}

func (s *Server) submitProof(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	goalID, err := uuid.Parse(r.PathValue("goalId"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid goal id")
		return
	}
	milestoneID, err := uuid.Parse(r.PathValue("milestoneId"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid milestone id")
		return
	}

	var req submitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var submission domain.ProofSubmission
	if req.SelfCertify {
		submission, err = domain.NewSelfCertification(req.SelfCertificationReason)
	} else {
		submission, err = domain.NewProofSubmission(req.ProofDescription, req.ProofURL)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.Verifier.SubmitProof(r.Context(), user.ID, goalID, milestoneID, submission)
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Proof did not pass verification; improve it and try again"
	if result.Verdict.Verified {
		message = "Milestone completed, funds released"
	}

	writeJSON(w, http.StatusOK, submitProofResponse{
		Message:      message,
		Verification: toVerdictJSON(result.Verdict),
		RefundAmount: numPtr(result.RefundAmount),
		NewBalance:   numPtr(result.NewBalance),
	})
}

// Goal and milestone ids are serialized under _id; that is the key the web
// client reads and builds the submit-proof URL from.
type goalJSON struct {
	ID            uuid.UUID       `json:"_id"`
	Title         string          `json:"title"`
	DepositAmount amount          `json:"depositAmount"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	Milestones    []milestoneJSON `json:"milestones"`
}

type milestoneJSON struct {
	ID                   uuid.UUID  `json:"_id"`
	Description          string     `json:"description"`
	Percentage           amount     `json:"percentage"`
	VerificationCriteria string     `json:"verificationCriteria"`
	RequiredProofType    string     `json:"requiredProofType"`
	IsCompleted          bool       `json:"isCompleted"`
	ReleasedAmount       *amount    `json:"releasedAmount,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
}

type verdictJSON struct {
	Verified    bool   `json:"verified"`
	Confidence  int    `json:"confidence"`
	Analysis    string `json:"analysis"`
	Suggestions string `json:"suggestions,omitempty"`
}

func toGoalJSON(goal *domain.Goal) *goalJSON {
	milestones := make([]milestoneJSON, 0, len(goal.Milestones))
	for _, m := range goal.Milestones {
		milestones = append(milestones, milestoneJSON{
			ID:                   m.ID,
			Description:          m.Description,
			Percentage:           num(m.Percentage),
			VerificationCriteria: m.VerificationCriteria,
			RequiredProofType:    m.RequiredProofType,
			IsCompleted:          m.IsCompleted,
			ReleasedAmount:       numPtr(m.ReleasedAmount),
			CompletedAt:          m.CompletedAt,
		})
	}
	return &goalJSON{
		ID:            goal.ID,
		Title:         goal.Title,
		DepositAmount: num(goal.DepositAmount),
		Status:        string(goal.Status),
		CreatedAt:     goal.CreatedAt,
		Milestones:    milestones,
	}
}

func toVerdictJSON(v domain.VerificationVerdict) verdictJSON {
	return verdictJSON{
		Verified:    v.Verified,
		Confidence:  v.Confidence,
		Analysis:    v.Analysis,
		Suggestions: v.Suggestions,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps domain errors to HTTP status codes. The message always
// names the precondition that failed.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidSubmission),
		errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotGoalOwner):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrGoalNotFound),
		errors.Is(err, domain.ErrMilestoneNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrGoalNotActive),
		errors.Is(err, domain.ErrMilestoneAlreadyCompleted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrGenerationUnavailable),
		errors.Is(err, domain.ErrVerificationUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMilestoneGeneration):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}
