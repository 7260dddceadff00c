package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SessionAction is one contract call a session permits. Policies are opaque
// payloads owned by the external authorization module and are stored and
// forwarded verbatim.
type SessionAction struct {
	ActionTarget         string            `json:"actionTarget"`
	ActionTargetSelector string            `json:"actionTargetSelector"`
	ActionPolicies       []json.RawMessage `json:"actionPolicies"`
}

// UsageRecord is one entry of a session's append-only redemption audit trail.
type UsageRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	TxHash    string      `json:"txHash"`
	Status    UsageStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
}

type ActionList []SessionAction

type UsageHistory []UsageRecord

// Session is an authorization record letting a designated redeemer invoke
// specific contract functions on the owner's smart account, subject to
// expiry, usage limits, and revocation.
type Session struct {
	ID                string          `db:"id" json:"id"`
	Owner             string          `db:"owner" json:"owner"`
	Redeemer          string          `db:"redeemer" json:"redeemer"`
	Actions           ActionList      `db:"actions" json:"actions"`
	SessionDetails    json.RawMessage `db:"session_details" json:"sessionDetails"`
	Name              string          `db:"name" json:"name"`
	Status            SessionStatus   `db:"status" json:"status"`
	ExpiresAt         *time.Time      `db:"expires_at" json:"expiresAt"`
	MaxUsageCount     *int            `db:"max_usage_count" json:"maxUsageCount"`
	CurrentUsageCount int             `db:"current_usage_count" json:"currentUsageCount"`
	IsRevoked         bool            `db:"is_revoked" json:"isRevoked"`
	LastUsedAt        *time.Time      `db:"last_used_at" json:"lastUsedAt"`
	UsageHistory      UsageHistory    `db:"usage_history" json:"usageHistory"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

type CreateSessionParams struct {
	ID             string
	Owner          string
	Redeemer       string
	Actions        ActionList
	SessionDetails json.RawMessage
	Name           string
	ExpiresAt      *time.Time
	MaxUsageCount  *int
	Status         SessionStatus
}

// UpdateSessionParams carries the owner-mutable fields. Nil means "leave
// unchanged"; SetExpiresAt/SetMaxUsageCount distinguish clearing a field
// from not touching it.
type UpdateSessionParams struct {
	Name             *string
	IsRevoked        *bool
	ExpiresAt        *time.Time
	SetExpiresAt     bool
	MaxUsageCount    *int
	SetMaxUsageCount bool
}

type RecordUsageParams struct {
	TxHash  string
	Status  UsageStatus
	Message string
}

// JSONB plumbing for the document-valued columns.

func (a ActionList) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *ActionList) Scan(src any) error {
	return scanJSON(src, a, "actions")
}

func (h UsageHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

func (h *UsageHistory) Scan(src any) error {
	return scanJSON(src, h, "usage history")
}

func scanJSON(src, dest any, what string) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("scan %s: unsupported type %T", what, src)
	}
}
