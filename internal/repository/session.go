package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smartgrant/session-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	ListByRelation(ctx context.Context, relation model.RelationType, address string, status model.SessionStatus, limit int) ([]model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	Update(ctx context.Context, s *model.Session) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	RecordUsage(ctx context.Context, id string, params model.RecordUsageParams) (*model.Session, error)
	RefreshExpiredStatuses(ctx context.Context) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) ListByRelation(
	ctx context.Context,
	relation model.RelationType,
	address string,
	status model.SessionStatus,
	limit int,
) ([]model.Session, error) {
	column := "owner"
	if relation == model.RelationRedeemer {
		column = "redeemer"
	}

	sessions := []model.Session{}
	if status == "" {
		err := r.db.SelectContext(ctx, &sessions, fmt.Sprintf(`
			SELECT * FROM sessions
			WHERE %s = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, column), address, limit)
		return sessions, err
	}

	err := r.db.SelectContext(ctx, &sessions, fmt.Sprintf(`
		SELECT * FROM sessions
		WHERE %s = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, column), address, status, limit)
	return sessions, err
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (
			id, owner, redeemer, actions, session_details, name,
			expires_at, max_usage_count, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *
	`,
		params.ID, params.Owner, params.Redeemer, params.Actions,
		[]byte(params.SessionDetails), params.Name,
		params.ExpiresAt, params.MaxUsageCount, params.Status,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Update(ctx context.Context, s *model.Session) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			name = $2,
			expires_at = $3,
			max_usage_count = $4,
			is_revoked = $5,
			status = $6,
			updated_at = $7
		WHERE id = $1
		RETURNING *
	`, s.ID, s.Name, s.ExpiresAt, s.MaxUsageCount, s.IsRevoked, s.Status, time.Now())
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id = $1
	`, id)
	return err
}

// RecordUsage appends a usage record and increments the usage counter in one
// conditional statement. The WHERE clause re-evaluates the usability
// predicate inside the database, so two racing redemptions cannot push the
// counter past max_usage_count: the loser matches zero rows and gets (nil, nil).
func (r *sessionRepo) RecordUsage(ctx context.Context, id string, params model.RecordUsageParams) (*model.Session, error) {
	now := time.Now()

	record, err := json.Marshal(model.UsageRecord{
		Timestamp: now,
		TxHash:    params.TxHash,
		Status:    params.Status,
		Message:   params.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal usage record: %w", err)
	}

	var session model.Session
	err = r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			current_usage_count = current_usage_count + 1,
			last_used_at = $2,
			updated_at = $2,
			usage_history = usage_history || $3::jsonb,
			status = CASE
				WHEN max_usage_count IS NOT NULL AND current_usage_count + 1 >= max_usage_count
					THEN 'usage_limit_reached'
				ELSE 'active'
			END
		WHERE id = $1
			AND is_revoked = false
			AND (expires_at IS NULL OR expires_at > $2)
			AND (max_usage_count IS NULL OR current_usage_count < max_usage_count)
		RETURNING *
	`, id, now, record)
	return HandleNotFound(&session, err)
}

// RefreshExpiredStatuses re-projects the cached status column for sessions
// whose expiry has passed since the last write. Revocation and usage-cap
// transitions are already applied at write time, so expiry is the only
// wall-clock condition that can go stale.
func (r *sessionRepo) RefreshExpiredStatuses(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'expired',
			updated_at = NOW()
		WHERE is_revoked = false
			AND expires_at IS NOT NULL
			AND expires_at < NOW()
			AND status <> 'expired'
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
