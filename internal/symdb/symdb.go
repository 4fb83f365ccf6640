// Package symdb exports a library's symbol index into a SQLite database
// so analysis tooling can query it without reparsing the container. The
// pure Go driver (modernc.org/sqlite) keeps the module CGO-free.
package symdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/FocuswithJustin/RetroLink/core/ir"
	"github.com/FocuswithJustin/RetroLink/core/mwob"
)

const schema = `
CREATE TABLE IF NOT EXISTS members (
	id       INTEGER PRIMARY KEY,
	name     TEXT NOT NULL,
	path     TEXT,
	moddate  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS symbols (
	name      TEXT NOT NULL,
	member_id INTEGER NOT NULL REFERENCES members(id),
	binding   TEXT NOT NULL,
	section   TEXT,
	value     INTEGER NOT NULL,
	size      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
`

// Open opens (or creates) a symbol database at the given path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open symbol database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// Export writes every member and defined symbol of the library into the
// database at path, replacing any previous content. It returns the
// number of exported symbols.
func Export(path string, lib *ir.Library) (int, error) {
	db, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"symbols", "members"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	insMember, err := tx.Prepare(
		"INSERT INTO members (id, name, path, moddate) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer insMember.Close()
	insSymbol, err := tx.Prepare(
		"INSERT INTO symbols (name, member_id, binding, section, value, size) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer insSymbol.Close()

	count := 0
	for i := range lib.Members {
		mem := &lib.Members[i]
		if _, err := insMember.Exec(i, mem.Name, mem.Path, mwob.ToMacTime(mem.ModDate)); err != nil {
			return 0, fmt.Errorf("member %d (%s): %w", i, mem.Name, err)
		}
		if mem.Module == nil {
			continue
		}
		for _, s := range mem.Module.Symbols {
			if !s.Defined() {
				continue
			}
			section := ""
			if s.Section >= 0 && s.Section < len(mem.Module.Sections) {
				section = mem.Module.Sections[s.Section].Name
			}
			if _, err := insSymbol.Exec(s.Name, i, string(s.Binding), section, s.Value, s.Size); err != nil {
				return 0, fmt.Errorf("symbol %q of member %d: %w", s.Name, i, err)
			}
			count++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit export: %w", err)
	}
	return count, nil
}

// Entry is one row of a symbol lookup.
type Entry struct {
	Name    string
	Member  string
	Binding string
	Section string
	Value   uint32
	Size    uint32
}

// Lookup returns every member defining the named symbol.
func Lookup(path, name string) ([]Entry, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT s.name, m.name, s.binding, s.section, s.value, s.size
		FROM symbols s JOIN members m ON m.id = s.member_id
		WHERE s.name = ?
		ORDER BY m.id`, name)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Member, &e.Binding, &e.Section, &e.Value, &e.Size); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
