package index

import (
	"log/slog"

	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/reference"
	"github.com/starford/notegraph/internal/storage"
)

// Sync brings the index in line with the vault: changed files are parsed and
// upserted, rows whose file is gone are deleted. Unreadable files are logged
// and skipped.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteByPath(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	return nil
}

// IndexFile parses a vault file and upserts it together with the ids it
// references.
func IndexFile(db NoteIndex, path string, data []byte) error {
	note, err := parser.Parse(path, data)
	if err != nil {
		return err
	}
	row := NoteRow{
		Note:     *note,
		Path:     path,
		Checksum: storage.Checksum(data),
	}
	return db.UpsertNote(row, reference.ExtractIDs(note.Content))
}
