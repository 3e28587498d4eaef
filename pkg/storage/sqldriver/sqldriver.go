// Package sqldriver implements storage.Driver over database/sql for the
// SQLite and PostgreSQL dialects.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/ligandx/pkg/merkle"
	"github.com/papercomputeco/ligandx/pkg/storage"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	hash TEXT PRIMARY KEY,
	parent_hash TEXT,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent_hash ON nodes(parent_hash);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	started_at BIGINT NOT NULL,
	finished_at BIGINT
);

CREATE TABLE IF NOT EXISTS documents (
	run_id TEXT NOT NULL,
	doc_key TEXT NOT NULL,
	status TEXT NOT NULL,
	ligands TEXT NOT NULL,
	head_hash TEXT NOT NULL DEFAULT '',
	failures INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	PRIMARY KEY (run_id, doc_key)
);
`

// Driver implements storage.Driver on a *sql.DB.
type Driver struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New migrates db and wraps it.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	d := &Driver{db: db, dialect: dialect, now: time.Now}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return d, nil
}

// rebind rewrites ? placeholders for the dialect.
func (d *Driver) rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put stores a node. If the node already exists (by hash), this is a no-op.
func (d *Driver) Put(ctx context.Context, node *merkle.Node) (bool, error) {
	if node == nil {
		return false, errors.New("cannot store nil node")
	}

	query := d.rebind(`INSERT INTO nodes (hash, parent_hash, role, content, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (hash) DO NOTHING`)
	res, err := d.db.ExecContext(ctx, query,
		node.Hash, node.ParentHash, node.Bucket.Role, node.Bucket.Content, node.Bucket.Model, d.now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to insert node: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert node: %w", err)
	}
	return n > 0, nil
}

// Get retrieves a node by its hash.
func (d *Driver) Get(ctx context.Context, hash string) (*merkle.Node, error) {
	row := d.db.QueryRowContext(ctx,
		d.rebind(`SELECT hash, parent_hash, role, content, model FROM nodes WHERE hash = ?`), hash)

	var node merkle.Node
	var parent sql.NullString
	err := row.Scan(&node.Hash, &parent, &node.Bucket.Role, &node.Bucket.Content, &node.Bucket.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "node", ID: hash}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	if parent.Valid {
		node.ParentHash = &parent.String
	}
	return &node, nil
}

// Ancestry returns the path from a node back to its root (node first, root last).
func (d *Driver) Ancestry(ctx context.Context, hash string) ([]*merkle.Node, error) {
	var path []*merkle.Node
	current := hash

	for {
		node, err := d.Get(ctx, current)
		if err != nil {
			return nil, err
		}
		path = append(path, node)

		if node.ParentHash == nil {
			return path, nil
		}
		current = *node.ParentHash
	}
}

func (d *Driver) CreateRun(ctx context.Context, run storage.Run) error {
	_, err := d.db.ExecContext(ctx,
		d.rebind(`INSERT INTO runs (id, provider, model, started_at) VALUES (?, ?, ?, ?)`),
		run.ID, run.Provider, run.Model, run.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (d *Driver) FinishRun(ctx context.Context, id string, at time.Time) error {
	res, err := d.db.ExecContext(ctx,
		d.rebind(`UPDATE runs SET finished_at = ? WHERE id = ?`), at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.NotFoundError{Kind: "run", ID: id}
	}
	return nil
}

const runColumns = `SELECT r.id, r.provider, r.model, r.started_at, r.finished_at,
	(SELECT COUNT(*) FROM documents d WHERE d.run_id = r.id) FROM runs r`

func (d *Driver) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(runColumns+` WHERE r.id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storage.NotFoundError{Kind: "run", ID: id}
	}
	return &runs[0], nil
}

func (d *Driver) ListRuns(ctx context.Context) ([]storage.Run, error) {
	rows, err := d.db.QueryContext(ctx, runColumns+` ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]storage.Run, error) {
	var runs []storage.Run
	for rows.Next() {
		var r storage.Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &started, &finished, &r.Documents); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			t := time.Unix(0, finished.Int64).UTC()
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

func (d *Driver) RecordDocument(ctx context.Context, doc storage.Document) error {
	ligands, err := json.Marshal(nonNil(doc.Ligands))
	if err != nil {
		return fmt.Errorf("failed to encode ligands: %w", err)
	}
	created := doc.CreatedAt
	if created.IsZero() {
		created = d.now()
	}

	_, err = d.db.ExecContext(ctx, d.rebind(`INSERT INTO documents
		(run_id, doc_key, status, ligands, head_hash, failures, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, doc_key) DO UPDATE SET
			status = excluded.status,
			ligands = excluded.ligands,
			head_hash = excluded.head_hash,
			failures = excluded.failures,
			error = excluded.error,
			created_at = excluded.created_at`),
		doc.RunID, doc.Key, doc.Status, string(ligands), doc.HeadHash, doc.Failures, doc.Error, created.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record document: %w", err)
	}
	return nil
}

func (d *Driver) ListDocuments(ctx context.Context, runID string) ([]storage.Document, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(`SELECT run_id, doc_key, status, ligands, head_hash, failures, error, created_at
		FROM documents WHERE run_id = ? ORDER BY doc_key`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []storage.Document{}
	for rows.Next() {
		var doc storage.Document
		var ligands string
		var created int64
		if err := rows.Scan(&doc.RunID, &doc.Key, &doc.Status, &ligands, &doc.HeadHash, &doc.Failures, &doc.Error, &created); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(ligands), &doc.Ligands); err != nil {
			return nil, fmt.Errorf("failed to decode ligands: %w", err)
		}
		doc.CreatedAt = time.Unix(0, created).UTC()
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return docs, nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ storage.Driver = (*Driver)(nil)
