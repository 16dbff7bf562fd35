// Package registry tracks the set of codebases predictd knows how to
// index, backed by the same db.DB pattern used elsewhere for durable
// sqlite-backed state.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/predictsh/predictd/internal/db"
)

// Project is one registered codebase root.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RootPath  string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// marker is the project-root marker file: a small JSON file inside the
// project carrying its id, so a CLI run from within the project tree can
// discover which project it belongs to without an explicit --project
// flag.
type marker struct {
	ProjectID string `json:"project_id"`
}

// MarkerFileName is the name of the project-root marker file.
const MarkerFileName = ".predictd-project.json"

// Store provides CRUD operations for the project registry.
type Store struct {
	db *db.DB
}

// NewStore creates a new registry store.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// Register inserts a new project, or returns the existing one if a project
// already exists at the same root path.
func (s *Store) Register(ctx context.Context, name, rootPath string) (*Project, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	if existing, err := s.GetByPath(ctx, abs); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	p := &Project{
		ID:       uuid.NewString(),
		Name:     name,
		RootPath: abs,
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, root_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.RootPath, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("registering project: %w", err)
	}

	if err := writeMarker(abs, p.ID); err != nil {
		return nil, fmt.Errorf("writing project marker: %w", err)
	}

	return p, nil
}

// Get retrieves a project by id.
func (s *Store) Get(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, root_path, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.RootPath, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}

// GetByPath retrieves a project by its absolute root path.
func (s *Store) GetByPath(ctx context.Context, rootPath string) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, root_path, created_at, updated_at FROM projects WHERE root_path = ?`, rootPath,
	).Scan(&p.ID, &p.Name, &p.RootPath, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting project by path: %w", err)
	}
	return p, nil
}

// List returns every registered project, ordered by name.
func (s *Store) List(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, root_path, created_at, updated_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.RootPath, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Touch updates a project's updated_at timestamp, called after a scan.
func (s *Store) Touch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touching project: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Remove deletes a project by id.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing project: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExportJSON writes the registry out in a flat {id, name, path} shape,
// for tooling that reads the registry without going through the HTTP
// API.
func (s *Store) ExportJSON(ctx context.Context, path string) error {
	projects, err := s.List(ctx)
	if err != nil {
		return err
	}
	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Path string `json:"path"`
	}
	entries := make([]entry, 0, len(projects))
	for _, p := range projects {
		entries = append(entries, entry{ID: p.ID, Name: p.Name, Path: p.RootPath})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeMarker(rootPath, projectID string) error {
	data, err := json.MarshalIndent(marker{ProjectID: projectID}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(rootPath, MarkerFileName), data, 0o644)
}

// ReadMarker reads the project-root marker file from a directory, returning
// ("", nil) if no marker is present.
func ReadMarker(rootPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(rootPath, MarkerFileName))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("parsing project marker: %w", err)
	}
	return m.ProjectID, nil
}
