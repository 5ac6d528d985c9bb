package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hbomb79/Aria/pkg/logger"
)

var log = logger.Get("ArtifactStore")

// Store manages the directory which holds extracted artifacts. Every
// path it hands out is confined to the base directory and named after
// an internally generated UUID; caller-supplied ids which do not parse
// as UUIDs are rejected outright, so no path component can escape
// the base.
type Store struct {
	baseDir   string
	extension string
}

// NewStore validates that the base path provided is a usable directory,
// creating it if it is missing. An error is returned if the path exists
// but is a regular file, or cannot be accessed.
func NewStore(baseDir string, extension string) (*Store, error) {
	if info, err := os.Stat(baseDir); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("artifact path '%s' is not a directory", baseDir)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(baseDir, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("artifact path '%s' could not be created: %w", baseDir, err)
		}
	} else {
		return nil, fmt.Errorf("artifact path '%s' could not be accessed: %w", baseDir, err)
	}

	return &Store{baseDir: baseDir, extension: extension}, nil
}

// Allocate produces a fresh unique artifact id and the absolute path
// the artifact should be written to. The file itself is not created.
func (store *Store) Allocate() (uuid.UUID, string) {
	id := uuid.New()
	return id, store.pathFor(id)
}

// Resolve maps an artifact id back to its path inside the base
// directory. Ids which are not valid UUIDs are rejected.
func (store *Store) Resolve(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("illegal artifact id '%s': %w", id, err)
	}

	return store.pathFor(parsed), nil
}

// Exists reports whether a regular file is present at the path provided.
func (store *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Size returns the size in bytes of the artifact at the path provided.
func (store *Store) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// Delete removes the file at the path provided. Deleting a file which
// does not exist is NOT an error; concurrent deletes of the same
// artifact are expected (reaper racing a consuming fetch) and must
// both succeed.
func (store *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to delete artifact '%s': %w", path, err)
	}

	log.Emit(logger.REMOVE, "Deleted artifact %s\n", path)
	return nil
}

// BaseDir returns the directory this store confines its artifacts to.
func (store *Store) BaseDir() string {
	return store.baseDir
}

func (store *Store) pathFor(id uuid.UUID) string {
	return filepath.Join(store.baseDir, id.String()+store.extension)
}
