package index

// NoteIndex is the index surface used by the note service and the MCP server.
type NoteIndex interface {
	UpsertNote(row NoteRow, refs []string) error
	DeleteNote(id string) error
	DeleteByPath(path string) error
	GetNote(id string) (*NoteRow, error)
	GetChecksum(path string) (string, error)
	ListNotes(q ListQuery) ([]NoteRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
