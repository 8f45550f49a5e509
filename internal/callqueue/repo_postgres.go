package callqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresRepo implements Repository over database/sql (pgx stdlib driver).
//
// Expected table: call_attempts, with a partial unique index enforcing the
// one-open-attempt rule:
//
//   CREATE UNIQUE INDEX ux_call_attempts_open
//   ON call_attempts (recipient_id, survey_id)
//   WHERE status NOT IN ('completed','failed','abandoned');
//
// The responses progress cache is stored as JSONB.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const attemptColumns = `
id, recipient_id, survey_id, status, attempt_count, last_attempt_at, next_attempt_at,
call_sid, voice_id, language, use_audio, responses, questions_answered,
notes, error_message, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, a CallAttempt) error {
	responses, err := marshalResponses(a.Responses)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO call_attempts (` + attemptColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`
	_, err = r.db.ExecContext(ctx, q,
		a.ID,
		a.RecipientID,
		a.SurveyID,
		string(a.Status),
		a.AttemptCount,
		a.LastAttemptAt,
		a.NextAttemptAt,
		a.CallSID,
		a.Voice.VoiceID,
		a.Voice.Language,
		a.Voice.UseAudio,
		responses,
		a.QuestionsAnswered,
		a.Notes,
		a.ErrorMessage,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (CallAttempt, error) {
	const q = `SELECT ` + attemptColumns + ` FROM call_attempts WHERE id = $1`
	return scanAttempt(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByCallSID(ctx context.Context, sid string) (CallAttempt, error) {
	if sid == "" {
		return CallAttempt{}, ErrNotFound
	}
	const q = `SELECT ` + attemptColumns + ` FROM call_attempts WHERE call_sid = $1 ORDER BY created_at DESC LIMIT 1`
	return scanAttempt(r.db.QueryRowContext(ctx, q, sid))
}

func (r *PostgresRepo) FindOpen(ctx context.Context, recipientID, surveyID string) (CallAttempt, bool, error) {
	const q = `
SELECT ` + attemptColumns + `
FROM call_attempts
WHERE recipient_id = $1 AND survey_id = $2
  AND status NOT IN ('completed','failed','abandoned')
ORDER BY created_at ASC
LIMIT 1
`
	a, err := scanAttempt(r.db.QueryRowContext(ctx, q, recipientID, surveyID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CallAttempt{}, false, nil
		}
		return CallAttempt{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepo) Update(ctx context.Context, a CallAttempt) error {
	responses, err := marshalResponses(a.Responses)
	if err != nil {
		return err
	}
	const q = `
UPDATE call_attempts SET
  status = $2,
  attempt_count = $3,
  last_attempt_at = $4,
  next_attempt_at = $5,
  call_sid = $6,
  voice_id = $7,
  language = $8,
  use_audio = $9,
  responses = $10,
  questions_answered = GREATEST(questions_answered, $11),
  notes = $12,
  error_message = $13,
  updated_at = $14
WHERE id = $1
`
	// GREATEST keeps questions_answered monotonic under concurrent writers
	// (webhook loop vs retry/consolidation).
	res, err := r.db.ExecContext(ctx, q,
		a.ID,
		string(a.Status),
		a.AttemptCount,
		a.LastAttemptAt,
		a.NextAttemptAt,
		a.CallSID,
		a.Voice.VoiceID,
		a.Voice.Language,
		a.Voice.UseAudio,
		responses,
		a.QuestionsAnswered,
		a.Notes,
		a.ErrorMessage,
		a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM call_attempts WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]CallAttempt, error) {
	const q = `
SELECT ` + attemptColumns + `
FROM call_attempts
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR recipient_id = $2)
  AND ($3 = '' OR survey_id = $3)
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, string(f.Status), f.RecipientID, f.SurveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func (r *PostgresRepo) StaleInProgress(ctx context.Context, cutoff time.Time) ([]CallAttempt, error) {
	const q = `
SELECT ` + attemptColumns + `
FROM call_attempts
WHERE status = 'in_progress' AND last_attempt_at IS NOT NULL AND last_attempt_at < $1
ORDER BY last_attempt_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (CallAttempt, error) {
	var a CallAttempt
	var status string
	var lastAt, nextAt sql.NullTime
	var callSID, voiceID, language, notes, errMsg sql.NullString
	var responses []byte

	if err := row.Scan(
		&a.ID,
		&a.RecipientID,
		&a.SurveyID,
		&status,
		&a.AttemptCount,
		&lastAt,
		&nextAt,
		&callSID,
		&voiceID,
		&language,
		&a.Voice.UseAudio,
		&responses,
		&a.QuestionsAnswered,
		&notes,
		&errMsg,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallAttempt{}, ErrNotFound
		}
		return CallAttempt{}, err
	}

	a.Status = Status(status)
	if lastAt.Valid {
		t := lastAt.Time
		a.LastAttemptAt = &t
	}
	if nextAt.Valid {
		t := nextAt.Time
		a.NextAttemptAt = &t
	}
	a.CallSID = callSID.String
	a.Voice.VoiceID = voiceID.String
	a.Voice.Language = language.String
	a.Notes = notes.String
	a.ErrorMessage = errMsg.String
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &a.Responses); err != nil {
			return CallAttempt{}, err
		}
	}
	return a, nil
}

func collectAttempts(rows *sql.Rows) ([]CallAttempt, error) {
	out := make([]CallAttempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalResponses(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
