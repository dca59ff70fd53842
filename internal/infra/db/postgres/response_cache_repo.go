package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/repository"
)

var _ repository.ResponseCacheRepository = (*ResponseCacheRepo)(nil)

type ResponseCacheRepo struct {
	pool *pgxpool.Pool
}

func NewResponseCacheRepo(pool *pgxpool.Pool) *ResponseCacheRepo {
	return &ResponseCacheRepo{pool: pool}
}

func (r *ResponseCacheRepo) Lookup(ctx context.Context, tx repository.Tx, hash string) (*model.CachedResponse, error) {
	const q = `
SELECT id, question_hash, question_text, answer_text, citations, access_count, created_at
  FROM response_cache
 WHERE question_hash = $1;`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var (
		c    model.CachedResponse
		cits []byte
	)
	err = ex.QueryRow(ctx, q, hash).Scan(&c.ID, &c.QuestionHash, &c.QuestionText, &c.AnswerText, &cits, &c.AccessCount, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cached response: %w", err)
	}
	if len(cits) > 0 {
		if err := json.Unmarshal(cits, &c.Citations); err != nil {
			return nil, fmt.Errorf("decode cached citations: %w", err)
		}
	}
	return &c, nil
}

// Store inserts the answer unless the hash already exists; concurrent writers
// racing on the same question leave the first row intact.
func (r *ResponseCacheRepo) Store(ctx context.Context, tx repository.Tx, c *model.CachedResponse) error {
	const q = `
INSERT INTO response_cache (id, question_hash, question_text, answer_text, citations, access_count, created_at)
VALUES ($1, $2, $3, $4, $5, 0, $6)
ON CONFLICT (question_hash) DO NOTHING;`
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cits := c.Citations
	if cits == nil {
		cits = []model.Citation{}
	}
	payload, err := json.Marshal(cits)
	if err != nil {
		return fmt.Errorf("encode citations: %w", err)
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, c.ID, c.QuestionHash, c.QuestionText, c.AnswerText, payload, c.CreatedAt); err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}
	return nil
}

func (r *ResponseCacheRepo) Touch(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE response_cache
   SET access_count = access_count + 1,
       last_accessed_at = NOW()
 WHERE id = $1;`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	ct, err := ex.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("touch cached response: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
