package model

import "time"

// ComputeStatus derives a session's status from its stored fields at the
// given instant. Priority order is fixed: revocation wins over expiry, expiry
// over the usage cap. Pure; called before every persist so the cached status
// column never drifts from its source fields.
func ComputeStatus(s *Session, now time.Time) SessionStatus {
	switch {
	case s.IsRevoked:
		return SessionStatusRevoked
	case s.ExpiresAt != nil && s.ExpiresAt.Before(now):
		return SessionStatusExpired
	case s.MaxUsageCount != nil && s.CurrentUsageCount >= *s.MaxUsageCount:
		return SessionStatusUsageLimitReached
	default:
		return SessionStatusActive
	}
}

// IsUsable is the live gate for redemption. It re-evaluates the stored fields
// against now instead of trusting the cached status column, which is written
// asynchronously relative to wall clock. Classifies identically to
// ComputeStatus == active for any fixed instant.
func IsUsable(s *Session, now time.Time) bool {
	return !s.IsRevoked &&
		(s.ExpiresAt == nil || s.ExpiresAt.After(now)) &&
		(s.MaxUsageCount == nil || s.CurrentUsageCount < *s.MaxUsageCount)
}
