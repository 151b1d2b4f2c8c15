package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/oburn/internal/record"

	_ "modernc.org/sqlite" // register sqlite driver
)

// DBMessagePrefix is the path scheme used for messages served from the
// SQLite backend, so cache and watcher plumbing stays path-shaped.
const DBMessagePrefix = "db://message/"

// Backend reads records from the storage root, transparently switching
// to the alternative SQLite backend (opencode.db) when one exists.
type Backend struct {
	root string
	db   *sql.DB
}

// Open prepares a backend for the given storage root. The SQLite file
// is optional; open failures silently fall back to the file tree.
func Open(root string) *Backend {
	b := &Backend{root: root}
	dbPath := DBPath(root)
	if _, err := os.Stat(dbPath); err != nil {
		return b
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_pragma=busy_timeout(300)")
	if err != nil {
		return b
	}
	b.db = db
	return b
}

// Close releases the SQLite handle, if any.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Root returns the storage root this backend reads from.
func (b *Backend) Root() string { return b.root }

// DBMode reports whether records are served from SQLite.
func (b *Backend) DBMode() bool { return b.db != nil }

// ListMessageFiles enumerates all message record paths. In db mode the
// paths use the db:// scheme.
func (b *Backend) ListMessageFiles() []string {
	if b.db != nil {
		rows, err := b.db.Query("SELECT id FROM message")
		if err != nil {
			return nil
		}
		defer func() { _ = rows.Close() }()
		var files []string
		for rows.Next() {
			var id string
			if rows.Scan(&id) == nil {
				files = append(files, DBMessagePrefix+id)
			}
		}
		return files
	}
	return ListDirJSON(filepath.Join(b.root, MessageDir))
}

// LoadMessage reads and decodes one message record by path.
func (b *Backend) LoadMessage(path string) (record.Message, bool) {
	if id, ok := strings.CutPrefix(path, DBMessagePrefix); ok {
		return b.loadMessageDB(id)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return record.Message{}, false
	}
	return record.DecodeMessage(data)
}

func (b *Backend) loadMessageDB(id string) (record.Message, bool) {
	if b.db == nil {
		return record.Message{}, false
	}
	var rowID, rowSession, data string
	var rowCreated int64
	err := b.db.QueryRow(
		"SELECT id, session_id, time_created, data FROM message WHERE id = ?", id,
	).Scan(&rowID, &rowSession, &rowCreated, &data)
	if err != nil {
		return record.Message{}, false
	}
	msg, ok := record.DecodeMessage([]byte(data))
	if !ok {
		return record.Message{}, false
	}
	// Fill gaps in the JSON payload from the row columns.
	if msg.ID == "" {
		msg.ID = record.LenientString(rowID)
	}
	if msg.SessionID == "" {
		msg.SessionID = record.LenientString(rowSession)
	}
	if msg.Time == nil {
		created := record.LenientInt(rowCreated)
		msg.Time = &record.TimeInfo{Created: &created}
	} else if msg.Time.Created == nil {
		created := record.LenientInt(rowCreated)
		msg.Time.Created = &created
	}
	return msg, true
}

// LoadParts reads the part records of one message, in write order.
func (b *Backend) LoadParts(messageID string) []record.Part {
	if messageID == "" {
		return nil
	}
	if b.db != nil {
		rows, err := b.db.Query(
			"SELECT data FROM part WHERE message_id = ? ORDER BY time_created ASC, id ASC", messageID,
		)
		if err != nil {
			return nil
		}
		defer func() { _ = rows.Close() }()
		var parts []record.Part
		for rows.Next() {
			var data string
			if rows.Scan(&data) != nil {
				continue
			}
			if p, ok := record.DecodePart([]byte(data)); ok {
				parts = append(parts, p)
			}
		}
		return parts
	}

	var parts []record.Part
	for _, path := range ListPartFiles(b.root, messageID) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if p, ok := record.DecodePart(data); ok {
			parts = append(parts, p)
		}
	}
	return parts
}

// LoadSessions reads all session metadata, returning id→title and
// child→parent maps.
func (b *Backend) LoadSessions() (titles map[string]string, parents map[string]string) {
	titles = make(map[string]string)
	parents = make(map[string]string)

	if b.db != nil {
		rows, err := b.db.Query("SELECT id, title, parent_id FROM session")
		if err != nil {
			return titles, parents
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var id string
			var title, parent sql.NullString
			if rows.Scan(&id, &title, &parent) != nil {
				continue
			}
			titles[id] = title.String
			if parent.Valid && parent.String != "" {
				parents[id] = parent.String
			}
		}
		return titles, parents
	}

	for _, path := range ListDirJSON(filepath.Join(b.root, SessionDir)) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		s, ok := record.DecodeSession(data)
		if !ok || s.ID == "" {
			continue
		}
		titles[string(s.ID)] = string(s.Title)
		if s.ParentID != "" {
			parents[string(s.ID)] = string(s.ParentID)
		}
	}
	return titles, parents
}

// SessionSummaryTotals reads the per-session line-change totals stored
// on the session rows. Only the SQLite backend records these; in file
// mode the result is empty and callers derive totals from the diff
// store instead. Values are {additions, deletions}.
func (b *Backend) SessionSummaryTotals() map[string][2]uint64 {
	out := make(map[string][2]uint64)
	if b.db == nil {
		return out
	}
	rows, err := b.db.Query(
		"SELECT id, COALESCE(summary_additions, 0), COALESCE(summary_deletions, 0) FROM session",
	)
	if err != nil {
		return out
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		var adds, dels int64
		if rows.Scan(&id, &adds, &dels) != nil {
			continue
		}
		out[id] = [2]uint64{uint64(max(adds, 0)), uint64(max(dels, 0))}
	}
	return out
}

// LoadSessionDiffs reads the authoritative per-session diff store,
// keyed by session id. In db mode, sessions missing a diff file fall
// back to the summary_diffs column.
func (b *Backend) LoadSessionDiffs() map[string][]record.DiffEntry {
	out := make(map[string][]record.DiffEntry)

	for _, path := range ListDirJSON(filepath.Join(b.root, SessionDiffDir)) {
		sessionID := strings.TrimSuffix(filepath.Base(path), ".json")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if entries, ok := record.DecodeDiffEntries(data); ok {
			out[sessionID] = entries
		}
	}

	if b.db != nil {
		rows, err := b.db.Query(
			"SELECT id, summary_diffs FROM session WHERE summary_diffs IS NOT NULL AND summary_diffs <> ''",
		)
		if err != nil {
			return out
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var id, raw string
			if rows.Scan(&id, &raw) != nil {
				continue
			}
			if _, seen := out[id]; seen {
				continue
			}
			if entries, ok := record.DecodeDiffEntries([]byte(raw)); ok {
				out[id] = entries
			}
		}
	}
	return out
}
