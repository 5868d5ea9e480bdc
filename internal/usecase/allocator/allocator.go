package allocator

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiescrow/escrow-backend/internal/domain"
)

var oneHundred = decimal.NewFromInt(100)

// CalculateReleases splits a goal's deposit across its milestones by
// percentage. Returns a map of milestone ID to release amount.
// Rounding rule: every share is deposit * percentage / 100 rounded DOWN to
// two decimal places, except the final milestone in plan order, which takes
// whatever is left. The rule only depends on plan order, so the amounts are
// the same no matter which milestone completes first.
//
// Safety: ensures the shares add up to the deposit exactly (no cent lost)
func CalculateReleases(depositAmount decimal.Decimal, milestones []domain.Milestone) (map[uuid.UUID]decimal.Decimal, error) {
	if depositAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("deposit amount must be positive")
	}

	if len(milestones) == 0 {
		return nil, errors.New("milestones list cannot be empty")
	}

	percentSum := decimal.Zero
	for _, m := range milestones {
		if m.Percentage.LessThanOrEqual(decimal.Zero) {
			return nil, errors.New("milestone percentage must be positive")
		}
		percentSum = percentSum.Add(m.Percentage)
	}
	if !percentSum.Equal(oneHundred) {
		return nil, errors.New("milestone percentages must sum to exactly 100")
	}

	shares := make(map[uuid.UUID]decimal.Decimal, len(milestones))
	allocated := decimal.Zero

	// All but the last milestone get their rounded-down share.
	for _, m := range milestones[:len(milestones)-1] {
		share := depositAmount.Mul(m.Percentage).Div(oneHundred).RoundDown(2)
		shares[m.ID] = share
		allocated = allocated.Add(share)
	}

	// The final milestone in plan order absorbs the rounding residue.
	last := milestones[len(milestones)-1]
	shares[last.ID] = depositAmount.Sub(allocated)

	// Safety check: shares must account for the whole deposit.
	total := decimal.Zero
	for _, share := range shares {
		total = total.Add(share)
	}
	if !total.Equal(depositAmount) {
		return nil, fmt.Errorf("allocated total %s does not equal deposit %s", total, depositAmount)
	}

	return shares, nil
}

// NormalizePercentages proportionally rescales a generated milestone plan
// whose percentages do not sum to exactly 100. This is a documented repair
// step: the generation capability is a boundary system and is not required
// to be exact. Plans that already sum to 100 are returned unchanged.
func NormalizePercentages(plans []domain.MilestonePlan) ([]domain.MilestonePlan, error) {
	if len(plans) == 0 {
		return nil, errors.New("plans list cannot be empty")
	}

	sum := decimal.Zero
	for _, p := range plans {
		if p.Percentage.LessThanOrEqual(decimal.Zero) {
			return nil, errors.New("plan percentage must be positive")
		}
		sum = sum.Add(p.Percentage)
	}

	if sum.Equal(oneHundred) {
		return plans, nil
	}

	normalized := make([]domain.MilestonePlan, len(plans))
	copy(normalized, plans)

	rescaledSum := decimal.Zero
	for i := range normalized[:len(normalized)-1] {
		rescaled := normalized[i].Percentage.Mul(oneHundred).Div(sum).Round(2)
		normalized[i].Percentage = rescaled
		rescaledSum = rescaledSum.Add(rescaled)
	}

	// The last plan takes the residue so the total is exactly 100.
	residue := oneHundred.Sub(rescaledSum)
	if residue.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("normalization left a non-positive share %s for the final milestone", residue)
	}
	normalized[len(normalized)-1].Percentage = residue

	return normalized, nil
}
