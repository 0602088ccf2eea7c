// Package pricing combines base price, discount, and available credit into a
// payable amount. All arithmetic is on minor units; discount always applies
// before credit, and credit can never push payable below zero.
package pricing

import "github.com/subdesklabs/subdesk/internal/money"

type Quote struct {
	BaseMinor       int64
	DiscountMinor   int64
	DiscountedMinor int64
	CreditUsedMinor int64
	PayableMinor    int64
}

func Calculate(baseMinor, discountMinor, availableCreditMinor int64) Quote {
	discount := discountMinor
	if discount > baseMinor {
		discount = baseMinor
	}
	discounted := baseMinor - discount

	creditUsed := availableCreditMinor
	if creditUsed > discounted {
		creditUsed = discounted
	}

	return Quote{
		BaseMinor:       baseMinor,
		DiscountMinor:   discount,
		DiscountedMinor: discounted,
		CreditUsedMinor: creditUsed,
		PayableMinor:    discounted - creditUsed,
	}
}

// ReferralReward is computed from the discounted amount, not the payable
// amount: the inviter's reward does not depend on how the buyer financed the
// purchase.
func ReferralReward(discountedMinor int64, percent float64) int64 {
	return money.PercentOf(discountedMinor, percent)
}
