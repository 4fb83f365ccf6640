package ir

import (
	"sort"
	"time"
)

// Member is one module inside a library container together with the
// member metadata the legacy format records.
type Member struct {
	// Name is the member file name (e.g., "add.o").
	Name string `json:"name"`

	// Path is the optional full source path recorded by the legacy IDE.
	Path string `json:"path,omitempty"`

	// ModDate is the member's modification time.
	ModDate time.Time `json:"moddate"`

	// Module is the member's parsed module. Nil only in collect-mode
	// results where this member failed to parse.
	Module *Module `json:"module,omitempty"`
}

// IndexEntry maps an exported symbol name to the member that defines it.
type IndexEntry struct {
	// Name is the exported symbol name.
	Name string `json:"name"`

	// Member is the ordinal of the defining member.
	Member int `json:"member"`
}

// Library is an ordered collection of modules plus a symbol index that
// lets a linker pull in only the members it needs.
//
// The index is always rebuilt from the members, never edited in place:
// a legacy linker trusts the index, and a wrong index causes wrong-code
// linking rather than a loud failure.
type Library struct {
	// Arch is the architecture tag shared by all members.
	Arch Arch `json:"arch"`

	// Version is the container format version.
	Version uint32 `json:"version"`

	// Members are the library members in container order.
	Members []Member `json:"members"`

	// Index is the symbol index as parsed or last built, sorted by name.
	Index []IndexEntry `json:"index"`
}

// BuildIndex rebuilds the symbol index from every member's exported
// (global or weak, defined, named) symbols, sorted by name then member
// ordinal. This is the only way an index comes into existence; partial
// patching of an existing index is deliberately not provided.
func (l *Library) BuildIndex() {
	var idx []IndexEntry
	for mi := range l.Members {
		mod := l.Members[mi].Module
		if mod == nil {
			continue
		}
		for _, name := range mod.ExportedNames() {
			idx = append(idx, IndexEntry{Name: name, Member: mi})
		}
	}
	sort.Slice(idx, func(i, j int) bool {
		if idx[i].Name != idx[j].Name {
			return idx[i].Name < idx[j].Name
		}
		return idx[i].Member < idx[j].Member
	})
	l.Index = idx
}

// Lookup returns the ordinals of members defining the given symbol name,
// using binary search over the sorted index.
func (l *Library) Lookup(name string) []int {
	i := sort.Search(len(l.Index), func(i int) bool {
		return l.Index[i].Name >= name
	})
	var out []int
	for ; i < len(l.Index) && l.Index[i].Name == name; i++ {
		out = append(out, l.Index[i].Member)
	}
	return out
}

// AddMember appends a member and rebuilds the index.
func (l *Library) AddMember(m Member) {
	l.Members = append(l.Members, m)
	l.BuildIndex()
}
