package ir

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// ContentHash returns the BLAKE3 hash of the section's content as a hex
// string. BSS sections hash to the empty-content digest.
func (s *Section) ContentHash() string {
	h := blake3.Sum256(s.Data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns a BLAKE3 digest over the module's structural
// identity: section names, kinds and content, and exported symbol names.
// Two modules with equal fingerprints define the same link-time interface
// and content; library tooling uses this for member identity.
func (m *Module) Fingerprint() string {
	h := blake3.New()

	// Hash writes never fail for blake3.
	h.WriteString(string(m.Arch))
	h.WriteString("\x00")
	for i := range m.Sections {
		s := &m.Sections[i]
		h.WriteString(s.Name)
		h.WriteString("\x00")
		h.WriteString(string(s.Kind))
		h.WriteString("\x00")
		h.Write(s.Data)
	}

	names := m.ExportedNames()
	sort.Strings(names)
	for _, n := range names {
		h.WriteString(n)
		h.WriteString("\x00")
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
