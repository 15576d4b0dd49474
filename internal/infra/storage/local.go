package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes rendered images and uploaded edit sources under a single
// root directory. Outputs land in <root>/<category>/<filename>; edit
// sources in <root>/edits/inputs/<user_id>/<filename>.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string { return s.root }

// SaveImage writes a rendered image and returns its absolute path.
func (s *Store) SaveImage(category, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.root, sanitize(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create category dir: %w", err)
	}
	path := filepath.Join(dir, sanitize(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// SaveInput stores an uploaded edit source image, namespaced per user so
// concurrent uploads never collide across users.
func (s *Store) SaveInput(userID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.root, "edits", "inputs", sanitize(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create input dir: %w", err)
	}
	path := filepath.Join(dir, sanitize(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write input: %w", err)
	}
	return path, nil
}

func (s *Store) ReadInput(path string) ([]byte, error) {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, s.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q escapes storage root", path)
	}
	return os.ReadFile(clean)
}

// Open resolves a stored path for serving, with the same containment check
// as ReadInput.
func (s *Store) Open(path string) (*os.File, error) {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, s.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q escapes storage root", path)
	}
	return os.Open(clean)
}

// sanitize strips path separators so user-supplied names can never climb
// out of their directory.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" {
		name = "_"
	}
	return name
}
