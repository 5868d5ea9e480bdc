package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
)

// Client talks to the AI service that plans milestones and grades proofs.
// It implements domain.MilestonePlanner and domain.ProofVerifier. Calls are
// bounded by the configured timeout; on timeout or transport failure the
// enclosing operation fails cleanly with the matching retryable error.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new AI capability client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type milestonesRequest struct {
	GoalTitle string `json:"goalTitle"`
}

type milestonesResponse struct {
	Milestones []struct {
		Description          string          `json:"description"`
		Percentage           decimal.Decimal `json:"percentage"`
		VerificationCriteria string          `json:"verificationCriteria"`
		RequiredProofType    string          `json:"requiredProofType"`
	} `json:"milestones"`
}

// GenerateMilestones asks the AI service for an ordered milestone breakdown
// of the goal title. The percentages are returned as-is; normalization is
// the goal factory's job.
func (c *Client) GenerateMilestones(ctx context.Context, goalTitle string) ([]domain.MilestonePlan, error) {
	var resp milestonesResponse
	if err := c.post(ctx, "/v1/milestones", milestonesRequest{GoalTitle: goalTitle}, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrGenerationUnavailable, err)
	}

	plans := make([]domain.MilestonePlan, 0, len(resp.Milestones))
	for _, m := range resp.Milestones {
		plans = append(plans, domain.MilestonePlan{
			Description:          m.Description,
			Percentage:           m.Percentage,
			VerificationCriteria: m.VerificationCriteria,
			RequiredProofType:    m.RequiredProofType,
		})
	}
	return plans, nil
}

type verifyRequest struct {
	ProofDescription     string `json:"proofDescription"`
	ProofURL             string `json:"proofUrl"`
	VerificationCriteria string `json:"verificationCriteria"`
	RequiredProofType    string `json:"requiredProofType"`
}

type verifyResponse struct {
	Verified    bool   `json:"verified"`
	Confidence  int    `json:"confidence"`
	Analysis    string `json:"analysis"`
	Suggestions string `json:"suggestions"`
}

// VerifyProof grades a proof submission against the milestone's verification
// criteria. Confidence and analysis come back from the service unmodified.
func (c *Client) VerifyProof(ctx context.Context, req domain.ProofRequest) (*domain.VerificationVerdict, error) {
	var resp verifyResponse
	err := c.post(ctx, "/v1/verify-proof", verifyRequest{
		ProofDescription:     req.ProofDescription,
		ProofURL:             req.ProofURL,
		VerificationCriteria: req.VerificationCriteria,
		RequiredProofType:    req.RequiredProofType,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrVerificationUnavailable, err)
	}

	return &domain.VerificationVerdict{
		Verified:    resp.Verified,
		Confidence:  resp.Confidence,
		Analysis:    resp.Analysis,
		Suggestions: resp.Suggestions,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %s", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %s", path, err)
	}
	return nil
}
