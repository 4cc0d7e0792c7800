package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestArtifactRepository_CRUD(t *testing.T) {
	s := newTestStore(t)
	repo := s.Artifacts()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := &Artifact{
		Path:      "captured_images/cam0_capture_20240501_100000.jpg",
		Kind:      KindImage,
		Camera:    "cam0",
		CreatedAt: created,
	}

	if err := repo.Create(a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID == "" {
		t.Fatal("Create() should assign an ID")
	}

	got, err := repo.GetByID(a.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Path != a.Path || got.Kind != KindImage || got.Camera != "cam0" {
		t.Errorf("GetByID() = %+v, want %+v", got, a)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}

	byPath, err := repo.GetByPath(a.Path)
	if err != nil || byPath.ID != a.ID {
		t.Errorf("GetByPath() = %+v, %v", byPath, err)
	}

	// paths are unique
	if err := repo.Create(&Artifact{Path: a.Path, Kind: KindImage}); err == nil {
		t.Error("Create() with a duplicate path should fail")
	}

	if err := repo.Delete(a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestArtifactRepository_InvalidKind(t *testing.T) {
	s := newTestStore(t)

	if err := s.Artifacts().Create(&Artifact{Path: "x.gif", Kind: "gif"}); err == nil {
		t.Error("Create() should reject unknown kinds")
	}
}

func TestArtifactRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Artifacts()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	items := []*Artifact{
		{Path: "a.jpg", Kind: KindImage, CreatedAt: base},
		{Path: "b.avi", Kind: KindVideo, CreatedAt: base.Add(time.Minute)},
		{Path: "c.jpg", Kind: KindImage, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, a := range items {
		if err := repo.Create(a); err != nil {
			t.Fatalf("Create(%s) error = %v", a.Path, err)
		}
	}

	tests := []struct {
		kind string
		want []string
	}{
		{"", []string{"c.jpg", "b.avi", "a.jpg"}},
		{KindImage, []string{"c.jpg", "a.jpg"}},
		{KindVideo, []string{"b.avi"}},
	}

	for _, tt := range tests {
		t.Run("kind="+tt.kind, func(t *testing.T) {
			got, err := repo.List(tt.kind)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List() returned %d items, want %d", len(got), len(tt.want))
			}
			for i, p := range tt.want {
				if got[i].Path != p {
					t.Errorf("List()[%d] = %s, want %s", i, got[i].Path, p)
				}
			}
		})
	}
}

func TestArtifactRepository_Import(t *testing.T) {
	s := newTestStore(t)
	repo := s.Artifacts()
	dir := t.TempDir()

	old := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	files := []struct {
		name string
		mod  time.Time
	}{
		{"cam0_capture_20240101_080000.jpg", old},
		{"cam1_capture_20240101_090000.PNG", old.Add(time.Hour)},
		{"notes.txt", old},
		{"cam0_video_20240101_100000.avi", old},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f.name, err)
		}
		if err := os.Chtimes(path, f.mod, f.mod); err != nil {
			t.Fatalf("chtimes %s: %v", f.name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	n, err := repo.Import(dir, KindImage, ImageExtensions)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Import() = %d, want 2", n)
	}

	list, err := repo.List(KindImage)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() = %d items, want 2", len(list))
	}
	if list[0].Camera != "cam1" || list[1].Camera != "cam0" {
		t.Errorf("cameras = %s, %s, want newest (cam1) first", list[0].Camera, list[1].Camera)
	}

	// running again imports nothing new
	n, err = repo.Import(dir, KindImage, ImageExtensions)
	if err != nil || n != 0 {
		t.Errorf("second Import() = %d, %v, want 0, nil", n, err)
	}

	n, err = repo.Import(dir, KindVideo, VideoExtensions)
	if err != nil || n != 1 {
		t.Errorf("Import(video) = %d, %v, want 1, nil", n, err)
	}
}

func TestArtifactRepository_ImportMissingDir(t *testing.T) {
	s := newTestStore(t)

	n, err := s.Artifacts().Import(filepath.Join(t.TempDir(), "nope"), KindImage, ImageExtensions)
	if err != nil || n != 0 {
		t.Errorf("Import() = %d, %v, want 0, nil", n, err)
	}
}
