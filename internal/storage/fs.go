package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/notegraph/internal/models"
)

// tempPrefix marks in-flight writes. The watcher ignores dot files, so a
// half-written note is never indexed.
const tempPrefix = ".notegraph-tmp-"

// FS keeps notes as Markdown files under a vault directory.
type FS struct {
	root string
}

// NewFS opens the vault at root, which must be an existing directory.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: vault %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: vault %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: vault %s is not a directory", abs)
	}
	return &FS{root: abs}, nil
}

// resolve maps a vault-relative path to an absolute one inside the vault.
func (f *FS) resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("storage: %s: path must be vault-relative", rel)
	}
	abs := filepath.Join(f.root, filepath.Clean(rel))
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: %s: outside the vault", rel)
	}
	return abs, nil
}

// isNoteFile reports whether name is a note rather than an asset or an
// in-flight write.
func isNoteFile(name string) bool {
	return strings.HasSuffix(name, ".md") && !strings.HasPrefix(name, ".")
}

// List returns path and checksum of every note under dir. Dot directories
// (trash, editor state) are skipped.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	base, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	var notes []models.NoteMetadata
	walk := func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		case !isNoteFile(d.Name()):
			return nil
		}
		meta, err := f.describe(p, d)
		if err != nil {
			return err
		}
		notes = append(notes, meta)
		return nil
	}
	if err := filepath.WalkDir(base, walk); err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	return notes, nil
}

func (f *FS) describe(abs string, d fs.DirEntry) (models.NoteMetadata, error) {
	info, err := d.Info()
	if err != nil {
		return models.NoteMetadata{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return models.NoteMetadata{}, err
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return models.NoteMetadata{}, err
	}
	return models.NoteMetadata{
		Path:      filepath.ToSlash(rel),
		Checksum:  Checksum(data),
		UpdatedAt: info.ModTime(),
	}, nil
}

// Read returns the bytes of the note file at path.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the file at path. Readers see either the old or the new
// bytes, never a mix.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := replaceFile(abs, content); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// replaceFile writes content to a synced temp file next to abs and renames
// it into place. The temp file is removed on failure.
func replaceFile(abs string, content []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(abs), tempPrefix+"*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), abs)
}

// Delete removes the note file at path.
func (f *FS) Delete(path string) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Checksum returns the hex SHA-256 of data. The index compares it against
// the file on disk to skip unchanged notes.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NotePath returns where the note with id lives in the vault.
func NotePath(id string) string {
	return id + ".md"
}
