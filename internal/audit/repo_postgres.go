package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo stores events in the audit_events table. The table is
// INSERT-only; retention is handled by time partitioning, not deletes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events
  (id, type, actor_user_id, actor_role, ip_address, attempt_id, survey_id, recipient_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.ActorUserID, e.ActorRole, e.IPAddress,
		e.AttemptID, e.SurveyID, e.RecipientID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
