package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Artifact kinds.
const (
	KindImage = "image"
	KindVideo = "video"
)

// File extensions picked up by Import, per kind.
var (
	ImageExtensions = []string{".jpg", ".png", ".jpeg"}
	VideoExtensions = []string{".avi", ".mp4", ".mov"}
)

// Artifact is a cataloged image or recording.
type Artifact struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Camera    string    `json:"camera"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactRepository provides CRUD operations for artifacts.
type ArtifactRepository struct {
	db *sql.DB
}

// Artifacts returns the artifact repository for this store.
func (s *Store) Artifacts() *ArtifactRepository {
	return &ArtifactRepository{db: s.db}
}

// Create inserts a new artifact. An empty ID is filled with a new UUID and a
// zero CreatedAt with the current time.
func (r *ArtifactRepository) Create(a *Artifact) error {
	if a.Kind != KindImage && a.Kind != KindVideo {
		return fmt.Errorf("invalid artifact kind %q", a.Kind)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO artifacts (id, path, kind, camera, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Path, a.Kind, a.Camera, a.CreatedAt.UTC(),
	)
	return err
}

// GetByID retrieves an artifact by its ID.
func (r *ArtifactRepository) GetByID(id string) (*Artifact, error) {
	return r.get(`SELECT id, path, kind, camera, created_at FROM artifacts WHERE id = ?`, id)
}

// GetByPath retrieves an artifact by its file path.
func (r *ArtifactRepository) GetByPath(path string) (*Artifact, error) {
	return r.get(`SELECT id, path, kind, camera, created_at FROM artifacts WHERE path = ?`, path)
}

func (r *ArtifactRepository) get(query string, arg string) (*Artifact, error) {
	a := &Artifact{}
	err := r.db.QueryRow(query, arg).Scan(&a.ID, &a.Path, &a.Kind, &a.Camera, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// List retrieves artifacts newest first. An empty kind lists every kind.
func (r *ArtifactRepository) List(kind string) ([]*Artifact, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = r.db.Query(
			`SELECT id, path, kind, camera, created_at
			 FROM artifacts ORDER BY created_at DESC, path DESC`,
		)
	} else {
		rows, err = r.db.Query(
			`SELECT id, path, kind, camera, created_at
			 FROM artifacts WHERE kind = ? ORDER BY created_at DESC, path DESC`,
			kind,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		a := &Artifact{}
		if err := rows.Scan(&a.ID, &a.Path, &a.Kind, &a.Camera, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return artifacts, nil
}

// Delete removes an artifact from the catalog. The file is left in place.
func (r *ArtifactRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Import catalogs files in dir whose extension is in exts and that are not
// cataloged yet, oldest first so List shows the newest on top. The camera is
// taken from the file name prefix and the creation time from the
// modification time. A missing dir imports nothing.
func (r *ArtifactRepository) Import(dir, kind string, exts []string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	type candidate struct {
		path    string
		camera  string
		modTime time.Time
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{
			path:    filepath.Join(dir, e.Name()),
			camera:  cameraOf(e.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].modTime.Before(found[j].modTime) })

	imported := 0
	for _, c := range found {
		if _, err := r.GetByPath(c.path); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return imported, err
		}

		if err := r.Create(&Artifact{Path: c.path, Kind: kind, Camera: c.camera, CreatedAt: c.modTime}); err != nil {
			return imported, fmt.Errorf("import %s: %w", c.path, err)
		}
		imported++
	}

	return imported, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// cameraOf returns the prefix of names like cam0_capture_20240101_120000.jpg.
func cameraOf(name string) string {
	if i := strings.Index(name, "_"); i > 0 {
		return name[:i]
	}
	return ""
}
