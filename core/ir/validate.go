package ir

import (
	"fmt"

	"github.com/FocuswithJustin/RetroLink/core/diag"
)

// Validate checks a module's structural and referential integrity and
// returns the collected diagnostics. In strict mode checking stops at the
// first finding; in collect mode every finding is gathered.
//
// Codecs run this after every parse and before every emit, treating each
// cross-reference in the input as untrusted.
func Validate(m *Module, mode diag.Mode) *diag.Collector {
	c := diag.NewCollector()
	validateModule(c, m, "module", mode)
	return c
}

func validateModule(c *diag.Collector, m *Module, path string, mode diag.Mode) {
	stop := func() bool { return mode == diag.Strict && !c.Empty() }

	if !m.Arch.IsValid() {
		c.Add(diag.KindUnsupportedVariant, path, "unrecognized architecture %q", m.Arch)
		if stop() {
			return
		}
	}

	for i := range m.Sections {
		s := &m.Sections[i]
		loc := fmt.Sprintf("%s.sections[%d]", path, i)

		if !s.Kind.IsValid() {
			c.Add(diag.KindMalformedContainer, loc, "invalid section kind %q", s.Kind)
		}
		if s.Align == 0 || s.Align&(s.Align-1) != 0 {
			c.Add(diag.KindMalformedContainer, loc, "alignment %d is not a power of two", s.Align)
		}
		if s.HasContent() && uint32(len(s.Data)) != s.Size {
			c.Add(diag.KindMalformedContainer, loc,
				"size %d does not match content length %d", s.Size, len(s.Data))
		}
		if !s.HasContent() && s.Data != nil {
			c.Add(diag.KindMalformedContainer, loc, "zero-initialized section carries content")
		}
		if stop() {
			return
		}
	}

	// Duplicate global definitions are reported, never deduplicated.
	globals := make(map[string]int)
	for i := range m.Symbols {
		s := &m.Symbols[i]
		loc := fmt.Sprintf("%s.symbols[%d]", path, i)

		if !s.Binding.IsValid() {
			c.Add(diag.KindMalformedContainer, loc, "invalid binding %q", s.Binding)
		}
		switch {
		case s.Binding == BindCommon:
			if s.Defined() {
				c.Add(diag.KindMalformedContainer, loc,
					"common symbol %q has a defining section", s.Name)
			}
			if s.Size == 0 {
				c.Add(diag.KindMalformedContainer, loc,
					"common symbol %q declares no size", s.Name)
			}
			if s.Align != 0 && s.Align&(s.Align-1) != 0 {
				c.Add(diag.KindMalformedContainer, loc,
					"common symbol %q alignment %d is not a power of two", s.Name, s.Align)
			}
		case s.Defined():
			if s.Section < 0 || s.Section >= len(m.Sections) {
				c.Add(diag.KindReferentialIntegrity, loc,
					"symbol %q references section %d of %d", s.Name, s.Section, len(m.Sections))
			} else if sec := &m.Sections[s.Section]; s.Value > sec.Size {
				c.Add(diag.KindReferentialIntegrity, loc,
					"symbol %q offset %d exceeds section size %d", s.Name, s.Value, sec.Size)
			}
		}

		if s.Binding == BindGlobal && s.Name != "" {
			if prev, ok := globals[s.Name]; ok {
				c.Add(diag.KindDuplicateSymbol, loc,
					"duplicate global %q (first defined at symbols[%d])", s.Name, prev)
			} else {
				globals[s.Name] = i
			}
		}
		if stop() {
			return
		}
	}

	for i := range m.Relocations {
		r := &m.Relocations[i]
		loc := fmt.Sprintf("%s.relocations[%d]", path, i)

		d, known := Decompose(r.Kind)
		if !known {
			c.Add(diag.KindUnsupportedVariant, loc, "unknown relocation kind %s", r.Kind)
		}
		if r.Symbol < 0 || r.Symbol >= len(m.Symbols) {
			c.Add(diag.KindReferentialIntegrity, loc,
				"symbol index %d of %d", r.Symbol, len(m.Symbols))
		}
		if r.Section < 0 || r.Section >= len(m.Sections) {
			c.Add(diag.KindReferentialIntegrity, loc,
				"section index %d of %d", r.Section, len(m.Sections))
		} else {
			sec := &m.Sections[r.Section]
			if !sec.HasContent() {
				c.Add(diag.KindReferentialIntegrity, loc,
					"relocation patches zero-initialized section %q", sec.Name)
			} else if known && uint64(r.Offset)+uint64(d.WidthBytes()) > uint64(sec.Size) {
				c.Add(diag.KindReferentialIntegrity, loc,
					"patch range [%d,%d) exceeds section size %d",
					r.Offset, int(r.Offset)+d.WidthBytes(), sec.Size)
			}
		}
		if stop() {
			return
		}
	}
}

// ValidateLibrary checks every member module plus the library's symbol
// index. In collect mode a failed member contributes diagnostics without
// blocking checks on sibling members.
func ValidateLibrary(l *Library, mode diag.Mode) *diag.Collector {
	c := diag.NewCollector()
	stop := func() bool { return mode == diag.Strict && !c.Empty() }

	for i := range l.Members {
		m := &l.Members[i]
		path := fmt.Sprintf("library.members[%d]", i)
		if m.Module == nil {
			c.Add(diag.KindMalformedContainer, path, "member %q has no parsed module", m.Name)
		} else {
			validateModule(c, m.Module, path, mode)
		}
		if stop() {
			return c
		}
	}

	validateIndex(c, l, mode)
	return c
}

// validateIndex verifies the index against the members actually present:
// every entry must resolve to a member exporting that exact name, and
// every exported name must appear. A stale index is malformed, not
// repairable, because the legacy linker trusts it blindly.
func validateIndex(c *diag.Collector, l *Library, mode diag.Mode) {
	stop := func() bool { return mode == diag.Strict && !c.Empty() }

	type export struct{ name string; member int }
	exported := make(map[export]bool)
	for mi := range l.Members {
		if mod := l.Members[mi].Module; mod != nil {
			for _, n := range mod.ExportedNames() {
				exported[export{n, mi}] = true
			}
		}
	}

	indexed := make(map[export]bool)
	for i, e := range l.Index {
		loc := fmt.Sprintf("library.index[%d]", i)
		if e.Member < 0 || e.Member >= len(l.Members) {
			c.Add(diag.KindMalformedContainer, loc,
				"entry %q references member %d of %d", e.Name, e.Member, len(l.Members))
		} else if !exported[export{e.Name, e.Member}] {
			c.Add(diag.KindMalformedContainer, loc,
				"entry %q not exported by member %d (%s)", e.Name, e.Member, l.Members[e.Member].Name)
		}
		indexed[export{e.Name, e.Member}] = true
		if i > 0 && l.Index[i-1].Name > e.Name {
			c.Add(diag.KindMalformedContainer, loc, "index not sorted by name")
		}
		if stop() {
			return
		}
	}

	for mi := range l.Members {
		mod := l.Members[mi].Module
		if mod == nil {
			continue
		}
		for _, n := range mod.ExportedNames() {
			if !indexed[export{n, mi}] {
				c.Add(diag.KindMalformedContainer, fmt.Sprintf("library.members[%d]", mi),
					"exported symbol %q of member %q missing from index", n, l.Members[mi].Name)
				if stop() {
					return
				}
			}
		}
	}
}
