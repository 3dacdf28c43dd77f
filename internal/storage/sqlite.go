// Package storage provides SQLite implementation of the Catalog interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/podsearch/internal/models"
	apperrors "github.com/hyperjump/podsearch/pkg/errors"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pods (
		theme TEXT NOT NULL,
		language TEXT NOT NULL,
		contributor TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (theme, language, contributor)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		contributor TEXT NOT NULL,
		title TEXT,
		snippet TEXT,
		doctype TEXT,
		notes TEXT,
		theme TEXT NOT NULL,
		language TEXT NOT NULL,
		body TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_pod ON documents(theme, language, contributor);
	CREATE INDEX IF NOT EXISTS idx_documents_contributor ON documents(contributor);
	`
	_, err := db.Exec(schema)
	return err
}

const documentColumns = `id, url, contributor, title, snippet, doctype, notes, theme, language, body, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var title, snippet, doctype, notes, body sql.NullString
	if err := row.Scan(&doc.ID, &doc.URL, &doc.Contributor, &title, &snippet, &doctype, &notes,
		&doc.Theme, &doc.Language, &body, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Title = title.String
	doc.Snippet = snippet.String
	doc.Doctype = doctype.String
	doc.Notes = notes.String
	doc.Body = body.String
	return &doc, nil
}

func isConstraint(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// CreateDocument inserts a document and sets its ID. A URL that is already indexed
// returns ErrConflict.
func (s *SQLiteCatalog) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.CreatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (url, contributor, title, snippet, doctype, notes, theme, language, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.URL, doc.Contributor, doc.Title, doc.Snippet, doc.Doctype, doc.Notes,
		doc.Theme, doc.Language, doc.Body, doc.CreatedAt,
	)
	if err != nil {
		if isConstraint(err) {
			return apperrors.Newf(apperrors.ErrConflict, 409, "url already indexed: %s", doc.URL)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	return nil
}

// GetDocument returns a document by ID.
func (s *SQLiteCatalog) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "document not found: %d", id)
	}
	return doc, err
}

// GetDocumentByURL returns a document by URL.
func (s *SQLiteCatalog) GetDocumentByURL(ctx context.Context, url string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE url = ?`, url))
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "document not found: %s", url)
	}
	return doc, err
}

// DeleteDocument removes a document by ID.
func (s *SQLiteCatalog) DeleteDocument(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// DeleteDocuments removes documents in a transaction.
func (s *SQLiteCatalog) DeleteDocuments(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// maxIDsPerQuery keeps IN lists below the sqlite host parameter limit.
const maxIDsPerQuery = 500

// DocumentsByIDs returns the documents found among ids, keyed by id.
func (s *SQLiteCatalog) DocumentsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Document, error) {
	docs := make(map[int64]*models.Document, len(ids))
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := min(start+maxIDsPerQuery, len(ids))
		if err := s.documentsIn(ctx, ids[start:end], docs); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (s *SQLiteCatalog) documentsIn(ctx context.Context, ids []int64, into map[int64]*models.Document) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return err
		}
		into[doc.ID] = doc
	}
	return rows.Err()
}

// DocumentsByPod returns the documents of a pod ordered by id.
func (s *SQLiteCatalog) DocumentsByPod(ctx context.Context, key models.PodKey) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE theme = ? AND language = ? AND contributor = ? ORDER BY id`,
		key.Theme, key.Language, key.Contributor,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DocToURL returns the id to URL map of a contributor.
func (s *SQLiteCatalog) DocToURL(ctx context.Context, contributor string) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, url FROM documents WHERE contributor = ?`, contributor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := make(map[int64]string)
	for rows.Next() {
		var id int64
		var url string
		if err := rows.Scan(&id, &url); err != nil {
			return nil, err
		}
		m[id] = url
	}
	return m, rows.Err()
}

// EnsurePod creates the pod record if it does not exist.
func (s *SQLiteCatalog) EnsurePod(ctx context.Context, key models.PodKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pods (theme, language, contributor, created_at) VALUES (?, ?, ?, ?)`,
		key.Theme, key.Language, key.Contributor, time.Now(),
	)
	return err
}

// DeletePod removes the pod record.
func (s *SQLiteCatalog) DeletePod(ctx context.Context, key models.PodKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pods WHERE theme = ? AND language = ? AND contributor = ?`,
		key.Theme, key.Language, key.Contributor,
	)
	return err
}

// RenamePod moves the pod record and its documents to newTheme in one transaction.
func (s *SQLiteCatalog) RenamePod(ctx context.Context, key models.PodKey, newTheme string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE pods SET theme = ? WHERE theme = ? AND language = ? AND contributor = ?`,
		newTheme, key.Theme, key.Language, key.Contributor,
	)
	if err != nil {
		if isConstraint(err) {
			return apperrors.Newf(apperrors.ErrConflict, 409, "pod %s.u.%s already exists", newTheme, key.Contributor)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, 404, "pod not found: %s", key)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET theme = ? WHERE theme = ? AND language = ? AND contributor = ?`,
		newTheme, key.Theme, key.Language, key.Contributor,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListPods returns every pod record with its document count.
func (s *SQLiteCatalog) ListPods(ctx context.Context) ([]*models.PodRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.theme, p.language, p.contributor, p.created_at, COUNT(d.id)
		 FROM pods p LEFT JOIN documents d
		   ON d.theme = p.theme AND d.language = p.language AND d.contributor = p.contributor
		 GROUP BY p.theme, p.language, p.contributor, p.created_at
		 ORDER BY p.language, p.theme, p.contributor`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pods []*models.PodRecord
	for rows.Next() {
		var rec models.PodRecord
		if err := rows.Scan(&rec.Key.Theme, &rec.Key.Language, &rec.Key.Contributor, &rec.CreatedAt, &rec.Documents); err != nil {
			return nil, err
		}
		pods = append(pods, &rec)
	}
	return pods, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteCatalog) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}
