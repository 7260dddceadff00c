package model

// SessionStatus is the cached lifecycle projection of a session. It is always
// derived from the revocation flag, expiry, and usage counters, never set
// directly.
type SessionStatus string

const (
	SessionStatusActive            SessionStatus = "active"
	SessionStatusExpired           SessionStatus = "expired"
	SessionStatusRevoked           SessionStatus = "revoked"
	SessionStatusUsageLimitReached SessionStatus = "usage_limit_reached"
)

type UsageStatus string

const (
	UsageStatusSuccess UsageStatus = "success"
	UsageStatusFailed  UsageStatus = "failed"
)

// RelationType selects which side of a session a caller is listing.
type RelationType string

const (
	RelationOwner    RelationType = "owner"
	RelationRedeemer RelationType = "redeemer"
)
