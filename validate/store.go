package validate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const templateSchema = `
CREATE TABLE IF NOT EXISTS templates (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    cli_command     TEXT NOT NULL,
    platform        TEXT NOT NULL DEFAULT '',
    textfsm_content TEXT NOT NULL,
    created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_templates_cli_command ON templates(cli_command);
`

// StoredTemplate is one row of the template library.
type StoredTemplate struct {
	ID       int64
	Command  string
	Platform string
	Content  string
}

// Store is the SQLite-backed template library. The underlying pool is
// safe for concurrent use across workers.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (and if needed creates) the template database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open template db %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure template db %s: %w", path, err)
	}
	if _, err := db.Exec(templateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply template schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a template and returns its row id.
func (s *Store) Add(ctx context.Context, tpl StoredTemplate) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (cli_command, platform, textfsm_content) VALUES (?, ?, ?)`,
		tpl.Command, tpl.Platform, tpl.Content)
	if err != nil {
		return 0, fmt.Errorf("add template %q: %w", tpl.Command, err)
	}
	return res.LastInsertId()
}

// Count returns the number of stored templates.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&n)
	return n, err
}

// FilterTerms splits a template filter into its significant terms.
// Hyphens are folded into underscores and short connective fragments
// are dropped, so "cisco-ios-show-ip-arp" selects on cisco, ios,
// show and arp.
func FilterTerms(filter string) []string {
	normalized := strings.ReplaceAll(filter, "-", "_")
	var terms []string
	for _, term := range strings.Split(normalized, "_") {
		if len(term) > 2 {
			terms = append(terms, term)
		}
	}
	return terms
}

// Filtered returns templates whose command matches every significant
// term of filter. An empty filter (or one with no significant terms)
// returns the whole library.
func (s *Store) Filtered(ctx context.Context, filter string) ([]StoredTemplate, error) {
	query := `SELECT id, cli_command, platform, textfsm_content FROM templates`
	var args []any

	terms := FilterTerms(filter)
	if len(terms) > 0 {
		conds := make([]string, len(terms))
		for i, term := range terms {
			conds[i] = "cli_command LIKE ?"
			args = append(args, "%"+term+"%")
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY cli_command"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter templates %q: %w", filter, err)
	}
	defer rows.Close()

	var out []StoredTemplate
	for rows.Next() {
		var tpl StoredTemplate
		if err := rows.Scan(&tpl.ID, &tpl.Command, &tpl.Platform, &tpl.Content); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}
