package verifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
	"github.com/aiescrow/escrow-backend/internal/usecase/release"
)

// SelfCertifyConfidence is the policy confidence assigned to
// self-certifications. Self-certification is trusted, not graded.
const SelfCertifyConfidence = 100

// Result is the outcome of a proof submission. RefundAmount and NewBalance
// are set only when the verdict triggered a release.
type Result struct {
	Verdict      domain.VerificationVerdict
	RefundAmount *decimal.Decimal
	NewBalance   *decimal.Decimal
}

// Service verifies milestone proofs and hands positive verdicts to the
// release engine. A negative verdict mutates nothing; the caller may retry
// with improved proof as often as they like.
type Service struct {
	Store               domain.LedgerStore
	Verifier            domain.ProofVerifier
	Release             *release.Engine
	ConfidenceThreshold int
}

// NewService creates a new verifier Service instance
func NewService(store domain.LedgerStore, proofVerifier domain.ProofVerifier, releaseEngine *release.Engine, confidenceThreshold int) *Service {
	return &Service{
		Store:               store,
		Verifier:            proofVerifier,
		Release:             releaseEngine,
		ConfidenceThreshold: confidenceThreshold,
	}
}

// SubmitProof grades a submission against the milestone's verification
// criteria. Callable only by the goal's owner, only while the goal is active
// and the milestone incomplete. On a verified verdict it releases the
// milestone's share exactly once; the release engine re-checks completion
// inside the ledger transaction, so racing verdicts cannot double-release.
func (s *Service) SubmitProof(ctx context.Context, userID, goalID, milestoneID uuid.UUID, submission domain.ProofSubmission) (*Result, error) {
	goal, err := s.Store.GoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal.UserID != userID {
		return nil, domain.ErrNotGoalOwner
	}
	if goal.Status != domain.GoalStatusActive {
		return nil, fmt.Errorf("%w: goal is %s", domain.ErrGoalNotActive, goal.Status)
	}

	milestone := goal.MilestoneByID(milestoneID)
	if milestone == nil {
		return nil, domain.ErrMilestoneNotFound
	}
	if milestone.IsCompleted {
		return nil, domain.ErrMilestoneAlreadyCompleted
	}

	var verdict domain.VerificationVerdict
	switch submission.Kind() {
	case domain.SubmissionKindSelfCertification:
		// Policy: self-certification with a stated reason is trusted
		// unconditionally and bypasses the verification capability.
		verdict = domain.VerificationVerdict{
			Verified:   true,
			Confidence: SelfCertifyConfidence,
			Analysis:   "Self-certified by the goal owner: " + submission.Reason(),
		}

	case domain.SubmissionKindProof:
		capVerdict, err := s.Verifier.VerifyProof(ctx, domain.ProofRequest{
			ProofDescription:     submission.ProofDescription(),
			ProofURL:             submission.ProofURL(),
			VerificationCriteria: milestone.VerificationCriteria,
			RequiredProofType:    milestone.RequiredProofType,
		})
		if err != nil {
			return nil, err
		}
		// Confidence and analysis pass through unmodified; the configured
		// threshold decides whether the verdict counts as verified.
		verdict = *capVerdict
		verdict.Verified = capVerdict.Verified && capVerdict.Confidence >= s.ConfidenceThreshold

	default:
		return nil, domain.ErrInvalidSubmission
	}

	if !verdict.Verified {
		return &Result{Verdict: verdict}, nil
	}

	refund, err := s.Release.Release(ctx, userID, goalID, milestoneID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Verdict:      verdict,
		RefundAmount: &refund,
	}
	// The release already committed; a failed balance read only costs the
	// response its newBalance field.
	if user, err := s.Store.UserByID(ctx, userID); err != nil {
		slog.Warn("balance read after release failed", "user_id", userID, "error", err)
	} else {
		result.NewBalance = &user.WalletBalance
	}
	return result, nil
}
