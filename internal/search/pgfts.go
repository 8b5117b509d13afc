package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across documents and clauses using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Documents sub-query
	if q.FilterType == "" || q.FilterType == ResultDocument {
		docWhere := "d.fts @@ " + tsQuery
		if q.FilterDocumentID != "" {
			docWhere += fmt.Sprintf(" AND d.id = $%d", argN)
			args = append(args, q.FilterDocumentID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.title,
				ts_headline('english', coalesce(d.current_text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				d.id AS document_id,
				''::text AS risk_level,
				ts_rank(d.fts, %s) AS rank
			FROM documents d
			WHERE %s`, tsQuery, tsQuery, docWhere))
	}

	// Clauses sub-query
	if q.FilterType == "" || q.FilterType == ResultClause {
		clauseWhere := "c.fts @@ " + tsQuery
		if q.FilterDocumentID != "" {
			clauseWhere += fmt.Sprintf(" AND c.document_id = $%d", argN)
			args = append(args, q.FilterDocumentID)
			argN++
		}
		if q.FilterRisk != "" {
			clauseWhere += fmt.Sprintf(" AND c.risk_level = $%d", argN)
			args = append(args, q.FilterRisk)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'clause'::text AS type, c.id, c.title,
				ts_headline('english', coalesce(c.current_text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.document_id,
				c.risk_level,
				ts_rank(c.fts, %s) AS rank
			FROM clauses c
			WHERE %s`, tsQuery, tsQuery, clauseWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, document_id, risk_level
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.DocumentID, &r.RiskLevel); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []ClauseRecord, error) {
	docRows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.current_text, u.display_name
		FROM documents d
		JOIN users u ON u.id = d.created_by
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.Title, &d.Text, &d.CreatedBy); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	clauseRows, err := p.db.QueryContext(ctx, `
		SELECT c.document_id, c.id, c.title, c.current_text, c.risk_level, c.accepted
		FROM clauses c
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load clauses: %w", err)
	}
	defer clauseRows.Close()

	clauses := make([]ClauseRecord, 0)
	for clauseRows.Next() {
		var c ClauseRecord
		if err := clauseRows.Scan(&c.DocumentID, &c.ClauseID, &c.Title, &c.CurrentText, &c.RiskLevel, &c.Accepted); err != nil {
			return nil, nil, fmt.Errorf("scan clause: %w", err)
		}
		c.ID = c.DocumentID + "_" + c.ClauseID
		clauses = append(clauses, c)
	}
	if err := clauseRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate clauses: %w", err)
	}

	return documents, clauses, nil
}
