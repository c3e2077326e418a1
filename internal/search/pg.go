package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch implements Searcher with a plain substring match over the post
// documents in PostgreSQL. It is the fallback when Meilisearch is down, so
// it favors availability over ranking quality.
type PgSearch struct {
	db *sql.DB
}

// NewPgSearch creates a PostgreSQL searcher.
func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

const pgSearchWhere = `publish = 'published' AND (
	doc->>'title' ILIKE '%' || $1 || '%'
	OR doc->>'description' ILIKE '%' || $1 || '%'
	OR doc->>'tags' ILIKE '%' || $1 || '%')`

// Search matches the query text against title, description and tags of
// published posts, newest first.
func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ctx := context.Background()

	var total int
	countSQL := `SELECT count(*) FROM posts WHERE ` + pgSearchWhere
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg search count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, doc->>'title', coalesce(doc->>'description', ''),
			coalesce(doc#>>'{author,name}', ''), user_id
		FROM posts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, pgSearchWhere, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.AuthorName, &r.UserID); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all published posts for full reindexing.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]PostRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, doc->>'title', coalesce(doc->>'description', ''),
			coalesce(doc#>>'{author,name}', ''), user_id
		FROM posts
		WHERE publish = 'published'
	`)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	defer rows.Close()

	records := make([]PostRecord, 0)
	for rows.Next() {
		var r PostRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.AuthorName, &r.UserID); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return records, nil
}
