package fault

import (
	"strings"
	"time"
)

const (
	// Base cooldowns by quota window. The window is inferred from the error
	// message; an unrecognized message is assumed to be a per-minute quota.
	dailyQuotaBase     = 3600 * time.Second
	per100SecondsBase  = 105 * time.Second
	perMinuteQuotaBase = 65 * time.Second

	// maxEscalation bounds the multiplier applied for repeated pauses.
	maxEscalation = 5

	// cooldownCap bounds escalated cooldowns for non-daily windows. Daily
	// windows are long regardless, so their escalated value is used as-is.
	cooldownCap = 300 * time.Second
)

// Cooldown computes how long a batch must wait before resuming after a quota
// rejection. Repeated quota hits on the same tenant escalate the base value
// to avoid a tight poll-and-fail loop.
func Cooldown(message string, consecutivePauses int) time.Duration {
	lower := strings.ToLower(message)

	base := perMinuteQuotaBase
	daily := false
	switch {
	case strings.Contains(lower, "per day") || strings.Contains(lower, "daily"):
		base = dailyQuotaBase
		daily = true
	case strings.Contains(lower, "per 100 seconds"):
		base = per100SecondsBase
	}

	multiplier := 1 + consecutivePauses
	if multiplier > maxEscalation {
		multiplier = maxEscalation
	}

	cooldown := time.Duration(multiplier) * base
	if !daily && cooldown > cooldownCap {
		cooldown = cooldownCap
	}
	return cooldown
}
