package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"colleague-chat/internal/domain"
	"colleague-chat/internal/domain/model"
	"colleague-chat/internal/domain/ports/repository"
	"colleague-chat/internal/infra/redis"
	"colleague-chat/internal/infra/security"
)

var _ repository.SessionBookRepository = (*SessionBookRepo)(nil)

// SessionBookRepo stores one {sessions, lastActive} document per owner, with
// optional encryption-at-rest and a Redis hot copy.
type SessionBookRepo struct {
	pool          *pgxpool.Pool
	cache         *redis.SessionCache
	cipher *security.BookCipher
}

func NewSessionBookRepo(pool *pgxpool.Pool, cache *redis.SessionCache, cipher *security.BookCipher) *SessionBookRepo {
	return &SessionBookRepo{pool: pool, cache: cache, cipher: cipher}
}

func (r *SessionBookRepo) Load(ctx context.Context, tx repository.Tx, owner string) (*model.SessionBook, error) {
	if r.cache != nil && tx == nil {
		if book, err := r.cache.GetBook(ctx, owner); err == nil {
			_ = r.cache.ExtendBook(ctx, owner)
			return book, nil
		}
	}

	q := `SELECT document, encrypted FROM session_books WHERE owner = $1;`
	if tx != nil {
		// serialize read-modify-write cycles of the same owner
		q = `SELECT document, encrypted FROM session_books WHERE owner = $1 FOR UPDATE;`
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var (
		doc       string
		encrypted bool
	)
	if err := ex.QueryRow(ctx, q, owner).Scan(&doc, &encrypted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load session book: %w", err)
	}
	if encrypted {
		if r.cipher == nil {
			return nil, errors.New("session book is encrypted but no encryption key is configured")
		}
		plain, err := r.cipher.Open(owner, doc)
		if err != nil {
			return nil, fmt.Errorf("open session book: %w", err)
		}
		doc = string(plain)
	}
	book := model.NewSessionBook(owner)
	if err := json.Unmarshal([]byte(doc), book); err != nil {
		return nil, fmt.Errorf("decode session book: %w", err)
	}
	book.Owner = owner

	if r.cache != nil && tx == nil {
		_ = r.cache.StoreBook(ctx, book)
	}
	return book, nil
}

func (r *SessionBookRepo) Save(ctx context.Context, tx repository.Tx, book *model.SessionBook) error {
	raw, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("encode session book: %w", err)
	}
	doc, encrypted := string(raw), false
	if r.cipher != nil {
		if doc, err = r.cipher.Seal(book.Owner, raw); err != nil {
			return fmt.Errorf("seal session book: %w", err)
		}
		encrypted = true
	}

	const q = `
INSERT INTO session_books (owner, document, encrypted, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (owner) DO UPDATE SET
  document   = EXCLUDED.document,
  encrypted  = EXCLUDED.encrypted,
  updated_at = EXCLUDED.updated_at;`
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, book.Owner, doc, encrypted); err != nil {
		return fmt.Errorf("save session book: %w", err)
	}

	if r.cache == nil {
		return nil
	}
	if tx == nil {
		_ = r.cache.StoreBook(ctx, book)
		return nil
	}
	// the cached copy is dropped only once the new document is visible to readers
	owner := book.Owner
	AfterCommit(ctx, func(ctx context.Context) {
		_ = r.cache.DeleteBook(ctx, owner)
	})
	return nil
}
