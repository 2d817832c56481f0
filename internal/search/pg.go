package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Pg implements Searcher with a plain ILIKE scan over entries as a
// fallback when Meilisearch is unavailable.
type Pg struct {
	db *sql.DB
}

func NewPg(db *sql.DB) *Pg {
	return &Pg{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *Pg) Healthy() bool {
	return true
}

func (p *Pg) Search(q Query) ([]Result, int, error) {
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

	where := `(e.title ILIKE '%' || $1 || '%' OR e.content ILIKE '%' || $1 || '%')`
	args := []any{q.Text}
	argN := 2
	if q.FilterType != "" {
		where += fmt.Sprintf(" AND e.type = $%d", argN)
		args = append(args, q.FilterType)
		argN++
	}
	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND e.status = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM entries e WHERE ` + where
	if err := p.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search hits: %w", err)
	}

	query := `
		SELECT e.key, e.title, LEFT(e.content, 200), e.type, e.status, e.rank
		FROM entries e
		WHERE ` + where + fmt.Sprintf(`
		ORDER BY e.rank ASC, e.key ASC
		LIMIT $%d OFFSET $%d`, argN, argN+1)
	args = append(args, limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Key, &r.Title, &r.Snippet, &r.Type, &r.Status, &r.Rank); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search hits: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every entry for bulk reindexing into Meilisearch.
func (p *Pg) LoadAllRecords(ctx context.Context) ([]EntryRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT e.key, e.title, e.content, e.type, e.status, e.rank,
			COALESCE(l.labels::text, '[]')
		FROM entries e
		LEFT JOIN (
			SELECT entry_key, json_agg(label ORDER BY label) AS labels
			FROM entry_labels GROUP BY entry_key
		) l ON l.entry_key = e.key
	`)
	if err != nil {
		return nil, fmt.Errorf("load entries for reindex: %w", err)
	}
	defer rows.Close()

	records := make([]EntryRecord, 0)
	for rows.Next() {
		var rec EntryRecord
		var labelsRaw string
		if err := rows.Scan(&rec.Key, &rec.Title, &rec.Content, &rec.Type, &rec.Status, &rec.Rank, &labelsRaw); err != nil {
			return nil, fmt.Errorf("scan reindex entry: %w", err)
		}
		_ = json.Unmarshal([]byte(labelsRaw), &rec.Labels)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reindex entries: %w", err)
	}
	return records, nil
}
