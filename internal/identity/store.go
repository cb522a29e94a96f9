package identity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileStore resolves personas from per-user YAML profiles in a directory:
// <dir>/<user>.yaml, falling back to <dir>/default.yaml, falling back to the
// skeleton for a fresh install.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

var _ Provider = (*FileStore)(nil)

// Resolve loads the user's profile. A missing profile is not an error (the
// default profile or skeleton applies); a malformed one is.
func (fs *FileStore) Resolve(ctx context.Context, userID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	for _, name := range []string{userID + ".yaml", "default.yaml"} {
		path := filepath.Join(fs.dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("read persona profile %s: %w", path, err)
		}

		var s Snapshot
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Snapshot{}, fmt.Errorf("parse persona profile %s: %w", path, err)
		}
		return mergeWithSkeleton(s), nil
	}

	return Skeleton, nil
}

// WriteProfile persists a persona profile for the user, creating the
// directory if needed. Used by the init wizard and tests.
func WriteProfile(dir, userID string, s Snapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create persona directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal persona profile: %w", err)
	}
	path := filepath.Join(dir, userID+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write persona profile: %w", err)
	}
	return nil
}
