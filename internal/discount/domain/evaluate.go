package domain

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/money"
)

// RejectReason is a typed rejection; evaluation never returns an error for a
// rule that simply does not apply.
type RejectReason string

const (
	ReasonNotFound          RejectReason = "not_found"
	ReasonInactive          RejectReason = "inactive"
	ReasonNotStarted        RejectReason = "not_started"
	ReasonExpired           RejectReason = "expired"
	ReasonServiceScope      RejectReason = "service_scope"
	ReasonMinOrder          RejectReason = "min_order"
	ReasonTotalUsageLimit   RejectReason = "total_usage_limit"
	ReasonUserUsageLimit    RejectReason = "user_usage_limit"
	ReasonFirstPurchaseOnly RejectReason = "first_purchase_only"
	// ReasonMalformedRule covers rules whose stored fields cannot be
	// interpreted; a constraint that cannot be checked never grants a discount.
	ReasonMalformedRule RejectReason = "malformed_rule"
)

type EvaluationInput struct {
	Rule                  *DiscountCode
	ScopeServiceIDs       []snowflake.ID
	TargetServiceID       snowflake.ID
	OrderBaseMinor        int64
	Now                   time.Time
	UsageTotal            int
	UsagePerUser          int
	UserHasApprovedOrders bool
	PriceDecimals         int
}

type Evaluation struct {
	OK            bool
	DiscountMinor int64
	Reason        RejectReason
}

func rejected(reason RejectReason) Evaluation {
	return Evaluation{Reason: reason}
}

// Evaluate maps a discount rule plus order context to an accept/reject
// decision. Checks run in a fixed order and the first failing check wins; the
// order is part of the contract because it drives user-facing messaging.
func Evaluate(in EvaluationInput) Evaluation {
	rule := in.Rule
	if rule == nil {
		return rejected(ReasonNotFound)
	}
	if !rule.Active {
		return rejected(ReasonInactive)
	}
	if rule.StartsAt != nil && in.Now.Before(*rule.StartsAt) {
		return rejected(ReasonNotStarted)
	}
	if rule.EndsAt != nil && in.Now.After(*rule.EndsAt) {
		return rejected(ReasonExpired)
	}
	if len(in.ScopeServiceIDs) > 0 && !containsID(in.ScopeServiceIDs, in.TargetServiceID) {
		return rejected(ReasonServiceScope)
	}
	if rule.MinOrderAmount != nil {
		minOrder, err := money.Parse(*rule.MinOrderAmount, in.PriceDecimals)
		if err != nil {
			return rejected(ReasonMalformedRule)
		}
		if in.OrderBaseMinor < minOrder {
			return rejected(ReasonMinOrder)
		}
	}
	if rule.TotalUsageLimit != nil && in.UsageTotal >= *rule.TotalUsageLimit {
		return rejected(ReasonTotalUsageLimit)
	}
	if rule.PerUserUsageLimit != nil && in.UsagePerUser >= *rule.PerUserUsageLimit {
		return rejected(ReasonUserUsageLimit)
	}
	if rule.FirstPurchaseOnly && in.UserHasApprovedOrders {
		return rejected(ReasonFirstPurchaseOnly)
	}

	var discount int64
	switch rule.Type {
	case TypePercent:
		percent, err := parsePercent(rule.Amount)
		if err != nil {
			return rejected(ReasonMalformedRule)
		}
		discount = money.PercentOf(in.OrderBaseMinor, percent)
	case TypeFixed:
		fixed, err := money.Parse(rule.Amount, in.PriceDecimals)
		if err != nil {
			return rejected(ReasonMalformedRule)
		}
		discount = fixed
	default:
		return rejected(ReasonMalformedRule)
	}

	if rule.MaxDiscountAmount != nil {
		cap, err := money.Parse(*rule.MaxDiscountAmount, in.PriceDecimals)
		if err != nil {
			return rejected(ReasonMalformedRule)
		}
		if discount > cap {
			discount = cap
		}
	}
	if discount > in.OrderBaseMinor {
		discount = in.OrderBaseMinor
	}
	discount = money.Clamp(discount)

	return Evaluation{OK: true, DiscountMinor: discount}
}

// parsePercent reads the percentage itself, not a monetary value; PercentOf
// converts it to integer basis points before any arithmetic touches money.
func parsePercent(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func containsID(ids []snowflake.ID, id snowflake.ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
