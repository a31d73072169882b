package entity

import (
	"strings"
	"time"
)

// Plan is a subscription tier controlling a widget's daily chat quota.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
	PlanFlex Plan = "flex"
)

// ParsePlan normalizes a plan string to a recognized tier. Anything
// unrecognized falls back to the free tier so a malformed value can never
// widen a quota.
func ParsePlan(s string) Plan {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(PlanPro):
		return PlanPro
	case string(PlanFlex):
		return PlanFlex
	default:
		return PlanFree
	}
}

// Paid reports whether the plan requires an active subscription.
func (p Plan) Paid() bool { return p == PlanPro || p == PlanFlex }

// Quota is the number of chat requests allowed within Window.
type Quota struct {
	Max    int
	Window time.Duration
}

// QuotaWindow is the rolling period all plan quotas are counted against.
const QuotaWindow = 24 * time.Hour

// QuotaFor maps a plan to its chat quota. The mapping is total: every
// recognized plan has an entry and ParsePlan guarantees recognition.
func QuotaFor(p Plan) Quota {
	switch p {
	case PlanPro:
		return Quota{Max: 5, Window: QuotaWindow}
	case PlanFlex:
		return Quota{Max: 500, Window: QuotaWindow}
	default:
		return Quota{Max: 2, Window: QuotaWindow}
	}
}

// AnonymousQuota applies to chat requests that carry no widget key at all,
// keyed by caller IP instead. Most restrictive tier to prevent quota bypass.
func AnonymousQuota() Quota {
	return Quota{Max: 1, Window: QuotaWindow}
}
