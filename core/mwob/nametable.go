package mwob

import (
	"fmt"

	"github.com/FocuswithJustin/RetroLink/core/cursor"
	"github.com/FocuswithJustin/RetroLink/core/errors"
)

// nameTable is the object's interned name list. Ids are 1-based; id 0 is
// reserved and never stored. Emission interns names in first-use order so
// output is deterministic.
type nameTable struct {
	names []string       // names[i] has id i+1
	ids   map[string]uint32
}

func newNameTable() *nameTable {
	return &nameTable{ids: make(map[string]uint32)}
}

// intern returns the id for a name, adding it on first use.
func (t *nameTable) intern(name string) uint32 {
	if id, ok := t.ids[name]; ok {
		return id
	}
	id := uint32(len(t.names) + 1)
	t.names = append(t.names, name)
	t.ids[name] = id
	return id
}

// lookup resolves an id read from a hunk record.
func (t *nameTable) lookup(id uint32) (string, error) {
	if id == 0 || int(id) > len(t.names) {
		return "", errors.NewReference("name id", int(id),
			fmt.Sprintf("not in name table of %d entries", len(t.names)))
	}
	return t.names[id-1], nil
}

// parseNameTable reads count entries of {hash u16, NUL-terminated name},
// verifying each stored hash. The stored header count is entries+1; the
// caller passes the entry count.
func parseNameTable(r *cursor.Reader, count int) (*nameTable, error) {
	t := newNameTable()
	for i := 0; i < count; i++ {
		what := fmt.Sprintf("name table entry %d", i+1)
		hash, err := r.Uint16(cursor.BigEndian, what)
		if err != nil {
			return nil, err
		}
		name, err := r.CString(what)
		if err != nil {
			return nil, err
		}
		if hash != NameHash(name) {
			return nil, errors.NewMalformed("MWOB object", what,
				fmt.Sprintf("stored hash %#x does not match %#x for %q", hash, NameHash(name), name))
		}
		t.intern(name)
	}
	return t, nil
}

// emit appends the table in id order.
func (t *nameTable) emit(w *cursor.Writer) {
	for _, name := range t.names {
		w.Uint16(cursor.BigEndian, NameHash(name))
		w.CString(name)
	}
}

// storedCount is the value the object header carries: one more than the
// number of entries, zero when the table is empty.
func (t *nameTable) storedCount() uint32 {
	if len(t.names) == 0 {
		return 0
	}
	return uint32(len(t.names) + 1)
}
