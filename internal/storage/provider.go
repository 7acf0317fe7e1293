// Package storage reads and writes note files in the vault. Every path it
// accepts or returns is relative to the vault root and slash separated.
package storage

import "github.com/starford/notegraph/internal/models"

// Provider is the vault as the index and the note service see it.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}

var _ Provider = (*FS)(nil)
