// Package reporting holds read-only aggregate queries over the survey tables.
// It runs on sqlx against the same database the repos write through gorm.
package reporting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type QuestionCount struct {
	QuestionID uuid.UUID `db:"question_id" json:"question_id"`
	OrderIndex int       `db:"order_index" json:"order_index"`
	Title      string    `db:"title" json:"title"`
	Answered   int       `db:"answered" json:"answered"`
}

type ValueCount struct {
	OrderIndex int    `db:"order_index" json:"order_index"`
	Value      string `db:"value" json:"value"`
	Count      int    `db:"count" json:"count"`
}

// Funnel is how far customers got through one survey.
type Funnel struct {
	SurveyID  uuid.UUID       `json:"survey_id"`
	Started   int             `db:"started" json:"started"`
	Completed int             `db:"completed" json:"completed"`
	Submitted int             `db:"submitted" json:"submitted"`
	Questions []QuestionCount `json:"questions"`
}

type FunnelRepo interface {
	Funnel(ctx context.Context, surveyID uuid.UUID) (*Funnel, error)
	// Distribution counts answer values for the given question orders.
	Distribution(ctx context.Context, surveyID uuid.UUID, orders []int) ([]ValueCount, error)
}

type funnelRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// Open connects a reporting handle to Postgres.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("reporting connect: %w", err)
	}
	db.SetMaxOpenConns(4)
	return db, nil
}

func NewFunnelRepo(db *sqlx.DB, baseLog *logger.Logger) FunnelRepo {
	return &funnelRepo{db: db, log: baseLog.With("repo", "FunnelRepo")}
}

const sessionCountsQuery = `
SELECT
	COUNT(*) AS started,
	COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed
FROM survey_session
WHERE survey_id = ?`

const submittedQuery = `
SELECT COUNT(*) FROM survey_response
WHERE survey_id = ? AND submitted_at IS NOT NULL`

const questionCountsQuery = `
SELECT q.id AS question_id, q.order_index, COALESCE(q.title, '') AS title, COUNT(a.id) AS answered
FROM survey_question q
LEFT JOIN survey_answer a ON a.question_id = q.id
WHERE q.survey_id = ?
GROUP BY q.id, q.order_index, q.title
ORDER BY q.order_index ASC`

func (r *funnelRepo) Funnel(ctx context.Context, surveyID uuid.UUID) (*Funnel, error) {
	out := &Funnel{SurveyID: surveyID}
	if err := r.db.GetContext(ctx, out, r.db.Rebind(sessionCountsQuery), surveyID); err != nil {
		return nil, fmt.Errorf("session counts: %w", err)
	}
	if err := r.db.GetContext(ctx, &out.Submitted, r.db.Rebind(submittedQuery), surveyID); err != nil {
		return nil, fmt.Errorf("submitted count: %w", err)
	}
	out.Questions = []QuestionCount{}
	if err := r.db.SelectContext(ctx, &out.Questions, r.db.Rebind(questionCountsQuery), surveyID); err != nil {
		return nil, fmt.Errorf("question counts: %w", err)
	}
	return out, nil
}

// distributionQuery is Postgres-only (ANY over an array parameter).
const distributionQuery = `
SELECT q.order_index, COALESCE(a.text_answer, '') AS value, COUNT(*) AS count
FROM survey_answer a
JOIN survey_question q ON q.id = a.question_id
WHERE q.survey_id = $1 AND q.order_index = ANY($2)
GROUP BY q.order_index, a.text_answer
ORDER BY q.order_index ASC, count DESC, value ASC`

func (r *funnelRepo) Distribution(ctx context.Context, surveyID uuid.UUID, orders []int) ([]ValueCount, error) {
	out := []ValueCount{}
	if len(orders) == 0 {
		return out, nil
	}
	ints := make([]int64, len(orders))
	for i, o := range orders {
		ints[i] = int64(o)
	}
	if err := r.db.SelectContext(ctx, &out, distributionQuery, surveyID, pq.Array(ints)); err != nil {
		r.log.Warn("answer distribution query failed", "survey_id", surveyID, "error", err)
		return nil, fmt.Errorf("answer distribution: %w", err)
	}
	return out, nil
}
