package services

import "math"

// SettlementPolicy is the product's money-split policy, injected from config
// so fee and fallback changes never require a code change.
type SettlementPolicy struct {
	PlatformFeePercent int
	// FallbackProgressPercent is the progress ratio assumed for reassignment
	// payouts on projects sold with zero revisions. Product policy pending
	// sign-off, kept configurable on purpose.
	FallbackProgressPercent int
}

// ProducerShareCents returns the producer's full share of a project price:
// price minus the platform fee percentage, floored on minor units.
func (p SettlementPolicy) ProducerShareCents(priceCents int64) int64 {
	return priceCents * int64(100-p.PlatformFeePercent) / 100
}

// SplitFull computes the normal-completion settlement. The fee is derived as
// price minus payout rather than rounded independently, so
// payout + fee == price always holds.
func (p SettlementPolicy) SplitFull(priceCents int64) (payoutCents, feeCents int64) {
	payoutCents = p.ProducerShareCents(priceCents)
	feeCents = priceCents - payoutCents
	return payoutCents, feeCents
}

// ProratedPayout computes the outgoing producer's payout on reassignment:
// the producer share scaled by delivered/purchased with floor rounding.
// When nothing was purchased the configured fallback percentage applies.
func (p SettlementPolicy) ProratedPayout(priceCents int64, delivered, purchased int) int64 {
	share := p.ProducerShareCents(priceCents)
	if purchased <= 0 {
		return share * int64(p.FallbackProgressPercent) / 100
	}
	if delivered >= purchased {
		return share
	}
	if delivered <= 0 {
		return 0
	}
	return share * int64(delivered) / int64(purchased)
}

// RefundAmount converts a refund percentage into minor units, floored.
func RefundAmount(priceCents int64, refundPercent int) int64 {
	if refundPercent <= 0 {
		return 0
	}
	if refundPercent >= 100 {
		return priceCents
	}
	return priceCents * int64(refundPercent) / 100
}

// RecommendedRefundPercent is the advisory percentage surfaced to the human
// reviewer of a cancellation request. It is never applied automatically.
func RecommendedRefundPercent(producerAssigned bool, delivered, purchased int) int {
	if !producerAssigned {
		return 100
	}
	if delivered == 0 {
		return 100
	}
	if purchased > 0 && delivered >= purchased {
		return 0
	}
	if purchased <= 0 {
		return 100
	}
	progress := int(math.Round(100 * float64(delivered) / float64(purchased)))
	remaining := 100 - progress
	if remaining < 0 {
		return 0
	}
	return remaining
}
