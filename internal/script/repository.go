package script

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StoredScript is a script document kept in the catalog under a name.
type StoredScript struct {
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	Comments    string    `json:"comments,omitempty"`
	NodeCount   int       `json:"node_count"`
	Document    []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository defines the interface for script catalog persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	Get(ctx context.Context, name string) (*StoredScript, error)
	List(ctx context.Context) ([]StoredScript, error)
	Create(ctx context.Context, s *StoredScript) error
	Update(ctx context.Context, s *StoredScript) error
	Delete(ctx context.Context, name string) error
}

// scriptColumns is the SELECT column list for script queries.
const scriptColumns = `name, fingerprint, comments, node_count, document, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get retrieves a script by name.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*StoredScript, error) {
	query := `SELECT ` + scriptColumns + ` FROM scripts WHERE name = ?`

	s, err := scanScript(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrScriptNotFound, name)
		}
		return nil, fmt.Errorf("querying script %q: %w", name, err)
	}
	return s, nil
}

// List retrieves all scripts ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]StoredScript, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scriptColumns+` FROM scripts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying scripts: %w", err)
	}
	defer rows.Close()

	var scripts []StoredScript
	for rows.Next() {
		s, scanErr := scanScript(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning script: %w", scanErr)
		}
		scripts = append(scripts, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scripts: %w", err)
	}
	return scripts, nil
}

// Create inserts a new script.
func (r *SQLiteRepository) Create(ctx context.Context, s *StoredScript) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO scripts (
			name, fingerprint, comments, node_count, document, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.Name,
		s.Fingerprint,
		nullableString(s.Comments),
		s.NodeCount,
		string(s.Document),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %q", ErrScriptExists, s.Name)
		}
		return fmt.Errorf("inserting script: %w", err)
	}
	return nil
}

// Update replaces the document of an existing script.
func (r *SQLiteRepository) Update(ctx context.Context, s *StoredScript) error {
	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE scripts SET
			fingerprint = ?, comments = ?, node_count = ?, document = ?, updated_at = ?
		WHERE name = ?`

	result, err := r.db.ExecContext(ctx, query,
		s.Fingerprint,
		nullableString(s.Comments),
		s.NodeCount,
		string(s.Document),
		s.UpdatedAt.Format(time.RFC3339),
		s.Name,
	)
	if err != nil {
		return fmt.Errorf("updating script: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %q", ErrScriptNotFound, s.Name)
	}
	return nil
}

// Delete removes a script by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scripts WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting script: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}
	return nil
}

// Import parses data and stores it under name. An existing entry is
// replaced only when replace is true.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - repo: Catalog to write to
//   - name: Catalog key; the document's own name when empty
//   - data: JSON script document
//   - replace: Overwrite an existing entry instead of failing
//
// Returns:
//   - *Document: The parsed script
//   - error: A parse error, ErrScriptExists, or a storage error
func Import(ctx context.Context, repo Repository, name string, data []byte, replace bool) (*Document, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = doc.Name
	}
	if name == "" {
		return nil, fmt.Errorf("%w: script has no name; pass one explicitly", ErrScriptLoad)
	}
	doc.Name = name

	stored := &StoredScript{
		Name:        name,
		Fingerprint: doc.Fingerprint,
		Comments:    doc.Comments,
		NodeCount:   doc.Graph.Len(),
		Document:    data,
	}

	err = repo.Create(ctx, stored)
	if errors.Is(err, ErrScriptExists) && replace {
		err = repo.Update(ctx, stored)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadNamed reads a script from the catalog and parses it.
func LoadNamed(ctx context.Context, repo Repository, name string) (*Document, error) {
	stored, err := repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(stored.Document)
	if err != nil {
		return nil, fmt.Errorf("catalog script %q: %w", name, err)
	}
	doc.Name = stored.Name
	return doc, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(scanner rowScanner) (*StoredScript, error) {
	var s StoredScript
	var comments sql.NullString
	var document string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&s.Name,
		&s.Fingerprint,
		&comments,
		&s.NodeCount,
		&document,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Comments = comments.String
	s.Document = []byte(document)
	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
