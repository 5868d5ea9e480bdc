package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MilestonePlan is one milestone proposed by the generation capability.
// Percentages are not trusted to sum to exactly 100; the goal factory
// normalizes them before persisting.
type MilestonePlan struct {
	Description          string
	Percentage           decimal.Decimal
	VerificationCriteria string
	RequiredProofType    string
}

// MilestonePlanner is the AI capability that breaks a goal into milestones.
// Fails with ErrGenerationUnavailable when unreachable or timed out.
type MilestonePlanner interface {
	GenerateMilestones(ctx context.Context, goalTitle string) ([]MilestonePlan, error)
}

// ProofRequest carries a proof submission and the milestone's verification
// requirements to the verification capability.
type ProofRequest struct {
	ProofDescription     string
	ProofURL             string
	VerificationCriteria string
	RequiredProofType    string
}

// ProofVerifier is the AI capability that grades a proof submission.
// Fails with ErrVerificationUnavailable when unreachable or timed out;
// an error is never a verdict.
type ProofVerifier interface {
	VerifyProof(ctx context.Context, req ProofRequest) (*VerificationVerdict, error)
}
