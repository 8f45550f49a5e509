package survey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"voicesurvey/pkg/utils"
)

// PostgresRepo implements Repository over database/sql (pgx stdlib driver).
//
// Expected tables:
// - surveys
// - questions (options stored as JSONB)
// - survey_question_links (UNIQUE (survey_id, question_id))
// - recipients
// - responses (append-only)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateSurvey(ctx context.Context, s Survey) error {
	const q = `
INSERT INTO surveys (id, name, description, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.Name, s.Description, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *PostgresRepo) GetSurvey(ctx context.Context, id string) (Survey, error) {
	const q = `
SELECT id, name, description, created_at, updated_at
FROM surveys
WHERE id = $1
`
	var s Survey
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Survey{}, ErrNotFound
		}
		return Survey{}, err
	}
	return s, nil
}

func (r *PostgresRepo) CreateQuestion(ctx context.Context, qn Question) error {
	opts, err := marshalOptions(qn.Options)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO questions (id, prompt, response_type, options, follow_up_trigger, follow_up_text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err = r.db.ExecContext(ctx, q,
		qn.ID,
		qn.Prompt,
		string(qn.ResponseType),
		opts,
		qn.FollowUpTrigger,
		qn.FollowUpText,
		qn.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) GetQuestion(ctx context.Context, id string) (Question, error) {
	const q = `
SELECT id, prompt, response_type, options, follow_up_trigger, follow_up_text, created_at
FROM questions
WHERE id = $1
`
	return scanQuestion(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) LinkQuestion(ctx context.Context, link SurveyQuestionLink) error {
	const q = `
INSERT INTO survey_question_links (id, survey_id, question_id, position, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := r.db.ExecContext(ctx, q, link.ID, link.SurveyID, link.QuestionID, link.Position, link.CreatedAt)
	return err
}

// CreateQuestionWithLink runs both inserts in one transaction. A link insert
// rejected by the unique (survey_id, question_id) constraint rolls the
// question back with it.
func (r *PostgresRepo) CreateQuestionWithLink(ctx context.Context, qn Question, link SurveyQuestionLink) error {
	opts, err := marshalOptions(qn.Options)
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const insertQuestion = `
INSERT INTO questions (id, prompt, response_type, options, follow_up_trigger, follow_up_text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
		if _, err := tx.ExecContext(ctx, insertQuestion,
			qn.ID,
			qn.Prompt,
			string(qn.ResponseType),
			opts,
			qn.FollowUpTrigger,
			qn.FollowUpText,
			qn.CreatedAt,
		); err != nil {
			return err
		}
		const insertLink = `
INSERT INTO survey_question_links (id, survey_id, question_id, position, created_at)
VALUES ($1,$2,$3,$4,$5)
`
		_, err := tx.ExecContext(ctx, insertLink, link.ID, link.SurveyID, link.QuestionID, link.Position, link.CreatedAt)
		return err
	})
}

func (r *PostgresRepo) QuestionsForSurvey(ctx context.Context, surveyID string) ([]Question, error) {
	// Position ties break by link creation order.
	const q = `
SELECT qs.id, qs.prompt, qs.response_type, qs.options, qs.follow_up_trigger, qs.follow_up_text, qs.created_at
FROM survey_question_links l
JOIN questions qs ON qs.id = l.question_id
WHERE l.survey_id = $1
ORDER BY l.position ASC, l.created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		qn, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qn)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CreateRecipient(ctx context.Context, rec Recipient) error {
	const q = `
INSERT INTO recipients (id, name, phone, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := r.db.ExecContext(ctx, q, rec.ID, rec.Name, rec.Phone, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r *PostgresRepo) GetRecipient(ctx context.Context, id string) (Recipient, error) {
	const q = `
SELECT id, name, phone, created_at, updated_at
FROM recipients
WHERE id = $1
`
	var rec Recipient
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID,
		&rec.Name,
		&rec.Phone,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Recipient{}, ErrNotFound
		}
		return Recipient{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) UpdateRecipientName(ctx context.Context, id, name string) error {
	const q = `
UPDATE recipients SET name = $2, updated_at = now()
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) AppendResponse(ctx context.Context, resp Response) error {
	const q = `
INSERT INTO responses (id, recipient_id, question_id, raw_text, numeric_value, insight, call_sid, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	var numeric sql.NullInt64
	if resp.NumericValue != nil {
		numeric = sql.NullInt64{Int64: int64(*resp.NumericValue), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		resp.ID,
		resp.RecipientID,
		resp.QuestionID,
		resp.RawText,
		numeric,
		resp.Insight,
		resp.CallSID,
		resp.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ResponsesForRecipient(ctx context.Context, recipientID string) ([]Response, error) {
	const q = `
SELECT id, recipient_id, question_id, raw_text, numeric_value, insight, call_sid, created_at
FROM responses
WHERE recipient_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Response, 0)
	for rows.Next() {
		var resp Response
		var numeric sql.NullInt64
		if err := rows.Scan(
			&resp.ID,
			&resp.RecipientID,
			&resp.QuestionID,
			&resp.RawText,
			&numeric,
			&resp.Insight,
			&resp.CallSID,
			&resp.CreatedAt,
		); err != nil {
			return nil, err
		}
		if numeric.Valid {
			v := int(numeric.Int64)
			resp.NumericValue = &v
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (Question, error) {
	var qn Question
	var rt string
	var opts []byte
	if err := row.Scan(
		&qn.ID,
		&qn.Prompt,
		&rt,
		&opts,
		&qn.FollowUpTrigger,
		&qn.FollowUpText,
		&qn.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, ErrNotFound
		}
		return Question{}, err
	}
	qn.ResponseType = ResponseType(rt)
	if len(opts) > 0 {
		if err := json.Unmarshal(opts, &qn.Options); err != nil {
			return Question{}, err
		}
	}
	return qn, nil
}

func marshalOptions(opts []string) ([]byte, error) {
	if len(opts) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(opts)
}
