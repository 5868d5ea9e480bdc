package domain

import (
	"fmt"
	"strings"
)

// SubmissionKind tags the two completion paths for a milestone.
type SubmissionKind string

const (
	SubmissionKindProof             SubmissionKind = "PROOF"
	SubmissionKindSelfCertification SubmissionKind = "SELF_CERTIFICATION"
)

// ProofSubmission is a tagged variant: either an evidence submission
// (description plus optional URL) or a self-certification with a stated
// reason. The constructors enforce that exactly one of the two holds, so
// the verifier's contract is exhaustive over the two kinds.
type ProofSubmission struct {
	kind             SubmissionKind
	proofDescription string
	proofURL         string
	reason           string
}

// NewProofSubmission builds an evidence submission. The description is
// required; the URL is optional supporting material.
func NewProofSubmission(description, url string) (ProofSubmission, error) {
	if strings.TrimSpace(description) == "" {
		return ProofSubmission{}, fmt.Errorf("%w: proof description is required", ErrInvalidSubmission)
	}
	return ProofSubmission{
		kind:             SubmissionKindProof,
		proofDescription: strings.TrimSpace(description),
		proofURL:         strings.TrimSpace(url),
	}, nil
}

// NewSelfCertification builds a self-certification submission.
func NewSelfCertification(reason string) (ProofSubmission, error) {
	if strings.TrimSpace(reason) == "" {
		return ProofSubmission{}, fmt.Errorf("%w: self-certification reason is required", ErrInvalidSubmission)
	}
	return ProofSubmission{
		kind:   SubmissionKindSelfCertification,
		reason: strings.TrimSpace(reason),
	}, nil
}

func (s ProofSubmission) Kind() SubmissionKind { return s.kind }

func (s ProofSubmission) ProofDescription() string { return s.proofDescription }

func (s ProofSubmission) ProofURL() string { return s.proofURL }

func (s ProofSubmission) Reason() string { return s.reason }

// VerificationVerdict is the outcome of proof verification.
// Confidence is a 0-100 score as reported by the verification capability;
// for self-certifications it is fixed by policy.
type VerificationVerdict struct {
	Verified    bool
	Confidence  int
	Analysis    string
	Suggestions string
}
