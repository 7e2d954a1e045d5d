package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shahabnazari/litpipe/internal/core/domain"
)

// SourceRepo stores literature sources in PostgreSQL.
type SourceRepo struct {
	db *DB
}

// NewSourceRepo creates a postgres-backed source repository.
func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

type sourceRow struct {
	PersistedID string    `db:"persisted_id"`
	ClientID    string    `db:"client_id"`
	Title       string    `db:"title"`
	DOI         string    `db:"doi"`
	ExternalID  string    `db:"external_id"`
	Authors     string    `db:"authors"`
	Journal     string    `db:"journal"`
	Year        int       `db:"year"`
	Abstract    string    `db:"abstract"`
	FullText    string    `db:"full_text"`
	URL         string    `db:"url"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r sourceRow) toDomain() domain.Source {
	src := domain.Source{
		ID:          r.ClientID,
		PersistedID: r.PersistedID,
		Title:       r.Title,
		DOI:         r.DOI,
		ExternalID:  r.ExternalID,
		Journal:     r.Journal,
		Year:        r.Year,
		Abstract:    r.Abstract,
		FullText:    r.FullText,
		URL:         r.URL,
		CreatedAt:   r.CreatedAt,
	}
	if r.Authors != "" {
		src.Authors = strings.Split(r.Authors, "; ")
	}
	return src
}

// Upsert saves a source, reporting a duplicate when a record with the same
// DOI or external ID already exists. The existing record's ID is returned
// in that case so the caller's ID mapping stays complete.
func (r *SourceRepo) Upsert(ctx context.Context, src domain.Source) (domain.SaveReceipt, error) {
	var existing string
	err := r.db.GetContext(ctx, &existing,
		`SELECT persisted_id FROM sources
		 WHERE (doi <> '' AND doi = $1) OR (external_id <> '' AND external_id = $2)
		 LIMIT 1`,
		src.DOI, src.ExternalID)
	if err == nil {
		return domain.SaveReceipt{ID: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.SaveReceipt{}, fmt.Errorf("lookup source: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sources
		   (persisted_id, client_id, title, doi, external_id, authors, journal, year, abstract, full_text, url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`,
		id, src.ID, src.Title, src.DOI, src.ExternalID,
		strings.Join(src.Authors, "; "), src.Journal, src.Year,
		src.Abstract, src.FullText, src.URL)
	if err != nil {
		return domain.SaveReceipt{}, fmt.Errorf("insert source: %w", err)
	}

	return domain.SaveReceipt{ID: id}, nil
}

// Get returns one source by its persisted ID.
func (r *SourceRepo) Get(ctx context.Context, persistedID string) (*domain.Source, error) {
	var row sourceRow
	err := r.db.GetContext(ctx, &row,
		`SELECT persisted_id, client_id, title, doi, external_id, authors, journal, year, abstract, full_text, url, created_at
		 FROM sources WHERE persisted_id = $1`, persistedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s not found", persistedID)
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	src := row.toDomain()
	return &src, nil
}

// List returns all stored sources, newest first.
func (r *SourceRepo) List(ctx context.Context) ([]domain.Source, error) {
	var rows []sourceRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT persisted_id, client_id, title, doi, external_id, authors, journal, year, abstract, full_text, url, created_at
		 FROM sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	sources := make([]domain.Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, row.toDomain())
	}
	return sources, nil
}

// Count returns the number of stored sources.
func (r *SourceRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM sources`); err != nil {
		return 0, fmt.Errorf("count sources: %w", err)
	}
	return n, nil
}
