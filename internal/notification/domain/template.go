package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Message keys the template registry knows how to render.
const (
	KeySubscriptionReminder = "subscription_reminder"
	KeySubscriptionEnded    = "subscription_ended"
	KeyOrderQueuedAdmin     = "order_queued_admin"
	KeyOrderApprovedUser    = "order_approved_user"
	KeyOrderDismissedUser   = "order_dismissed_user"
)

// Template ties a message key to the payload fields it needs and the text it
// produces. Unknown keys and missing fields are detected at dispatch time and
// turn into a failed notification, never a panic.
type Template struct {
	Key      string
	Required []string
	Render   func(payload map[string]any) string
}

var registry = map[string]Template{
	KeySubscriptionReminder: {
		Key:      KeySubscriptionReminder,
		Required: []string{"service_title", "end_date"},
		Render: func(p map[string]any) string {
			return fmt.Sprintf("Reminder: your subscription to %s ends on %s.",
				field(p, "service_title"), field(p, "end_date"))
		},
	},
	KeySubscriptionEnded: {
		Key:      KeySubscriptionEnded,
		Required: []string{"service_title"},
		Render: func(p map[string]any) string {
			return fmt.Sprintf("Your subscription to %s has ended.",
				field(p, "service_title"))
		},
	},
	KeyOrderQueuedAdmin: {
		Key:      KeyOrderQueuedAdmin,
		Required: []string{"order_id", "service_title", "username"},
		Render: func(p map[string]any) string {
			return fmt.Sprintf("Order %s for %s from %s is waiting for review.",
				field(p, "order_id"), field(p, "service_title"), field(p, "username"))
		},
	},
	KeyOrderApprovedUser: {
		Key:      KeyOrderApprovedUser,
		Required: []string{"service_title", "end_date"},
		Render: func(p map[string]any) string {
			return fmt.Sprintf("Your order for %s was approved. Active until %s.",
				field(p, "service_title"), field(p, "end_date"))
		},
	},
	KeyOrderDismissedUser: {
		Key:      KeyOrderDismissedUser,
		Required: []string{"service_title", "reason"},
		Render: func(p map[string]any) string {
			return fmt.Sprintf("Your order for %s was declined: %s",
				field(p, "service_title"), field(p, "reason"))
		},
	},
}

// TemplateFor resolves the template for a message key.
func TemplateFor(key string) (Template, bool) {
	t, ok := registry[key]
	return t, ok
}

// MissingFields reports required payload fields that are absent or empty,
// sorted for stable failure reasons.
func (t Template) MissingFields(payload map[string]any) []string {
	var missing []string
	for _, name := range t.Required {
		v, ok := payload[name]
		if !ok || v == nil || fmt.Sprintf("%v", v) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func field(p map[string]any, name string) string {
	return strings.TrimSpace(fmt.Sprintf("%v", p[name]))
}
