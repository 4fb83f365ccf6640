// Package xlat translates relocations between the two format
// vocabularies over the shared IR.
//
// Kinds are matched structurally: a relocation translates exactly when the
// target vocabulary has a kind with the identical (width, transform,
// signedness) decomposition. Anything else fails closed — the engine never
// substitutes a "close enough" kind.
//
// The vocabularies also disagree on addend storage. The open format keeps
// an explicit addend field and ignores the patch-site bytes; the legacy
// format stores the addend in the patched bytes themselves. Translation
// moves the addend between the two homes, which is why it needs
// materialized section content and runs after parse, before emit.
package xlat

import (
	"fmt"
	"math"

	"github.com/FocuswithJustin/RetroLink/core/cursor"
	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
)

// TranslateRelocations returns a new module whose relocations are
// expressed in the `to` vocabulary. The source module is never mutated; a
// failed translation leaves it untouched.
//
// Every relocation must already belong to the `from` vocabulary. Patch
// sites are read and written in machine byte order (the M68K target is
// big-endian regardless of the container's encoding).
func TranslateRelocations(m *ir.Module, from, to ir.Vocabulary) (*ir.Module, error) {
	out := m.Clone()
	if from == to {
		return out, nil
	}

	for i := range out.Relocations {
		r := &out.Relocations[i]
		if r.Kind.Vocab != from {
			return nil, errors.NewUnsupported("relocation kind",
				fmt.Sprintf("%s is not in the %s vocabulary (relocation %d)", r.Kind, from, i))
		}
		d, ok := ir.Decompose(r.Kind)
		if !ok {
			return nil, errors.NewUnsupported("relocation kind", r.Kind.String())
		}
		target, ok := ir.FindKind(to, d)
		if !ok {
			return nil, errors.NewUnsupported("relocation kind",
				fmt.Sprintf("%s has no %s counterpart", r.Kind, to))
		}

		site, err := patchSite(out, r, i, d)
		if err != nil {
			return nil, err
		}

		switch {
		case inlineAddend(from) && !inlineAddend(to):
			// The legacy xref value word is reserved for jump-table kinds,
			// none of which translate; a nonzero word here means an
			// inconsistency upstream, not data to carry.
			if r.Addend != 0 {
				return nil, errors.NewMalformed("module", locate(out, r),
					fmt.Sprintf("xref value word %#x is not zero", r.Addend))
			}
			r.Addend = readAddend(site, d)
			zero(site)

		case !inlineAddend(from) && inlineAddend(to):
			if err := checkFits(r.Addend, d); err != nil {
				return nil, err
			}
			writeAddend(site, d, r.Addend)
			r.Addend = 0
		}
		r.Kind = target
	}
	return out, nil
}

// inlineAddend reports whether a vocabulary stores addends in the patched
// bytes rather than an explicit field.
func inlineAddend(v ir.Vocabulary) bool {
	return v == ir.VocabMWOB
}

// patchSite bounds-checks a relocation and returns its patch bytes.
func patchSite(m *ir.Module, r *ir.Relocation, i int, d ir.Decomposition) ([]byte, error) {
	if r.Section < 0 || r.Section >= len(m.Sections) {
		return nil, errors.NewReference("relocation", i,
			fmt.Sprintf("section index %d of %d", r.Section, len(m.Sections)))
	}
	s := &m.Sections[r.Section]
	if !s.HasContent() {
		return nil, errors.NewMalformed("module", locate(m, r),
			"relocation patches a zero-initialized section")
	}
	end := uint64(r.Offset) + uint64(d.WidthBytes())
	if end > uint64(len(s.Data)) {
		return nil, errors.NewReference("relocation", i,
			fmt.Sprintf("patch range [%d,%d) exceeds section size %d", r.Offset, end, len(s.Data)))
	}
	return s.Data[r.Offset:end], nil
}

// readAddend decodes the patch-site bytes, sign extending when the kind's
// field is signed.
func readAddend(site []byte, d ir.Decomposition) int64 {
	switch d.WidthBits {
	case 8:
		if d.Signed {
			return int64(int8(site[0]))
		}
		return int64(site[0])
	case 16:
		v := cursor.BigEndian.Uint16(site)
		if d.Signed {
			return int64(int16(v))
		}
		return int64(v)
	default:
		v := cursor.BigEndian.Uint32(site)
		if d.Signed {
			return int64(int32(v))
		}
		return int64(v)
	}
}

// writeAddend encodes an addend into the patch-site bytes.
func writeAddend(site []byte, d ir.Decomposition, a int64) {
	switch d.WidthBits {
	case 8:
		site[0] = uint8(a)
	case 16:
		cursor.BigEndian.PutUint16(site, uint16(a))
	default:
		cursor.BigEndian.PutUint32(site, uint32(a))
	}
}

// zero clears a patch site once its addend has moved to the explicit
// field.
func zero(site []byte) {
	for i := range site {
		site[i] = 0
	}
}

// checkFits verifies an explicit addend fits the patch field it is moving
// into.
func checkFits(a int64, d ir.Decomposition) error {
	var lo, hi int64
	switch {
	case d.Signed && d.WidthBits == 8:
		lo, hi = math.MinInt8, math.MaxInt8
	case d.Signed && d.WidthBits == 16:
		lo, hi = math.MinInt16, math.MaxInt16
	case d.Signed:
		lo, hi = math.MinInt32, math.MaxInt32
	case d.WidthBits == 8:
		lo, hi = 0, math.MaxUint8
	case d.WidthBits == 16:
		lo, hi = 0, math.MaxUint16
	default:
		lo, hi = 0, math.MaxUint32
	}
	if a < lo || a > hi {
		return errors.NewUnsupported("relocation addend",
			fmt.Sprintf("%d does not fit a %d-bit %s field", a, d.WidthBits, signedness(d)))
	}
	return nil
}

func signedness(d ir.Decomposition) string {
	if d.Signed {
		return "signed"
	}
	return "unsigned"
}

// locate names a relocation's patch site for diagnostics.
func locate(m *ir.Module, r *ir.Relocation) string {
	name := fmt.Sprintf("section %d", r.Section)
	if r.Section >= 0 && r.Section < len(m.Sections) && m.Sections[r.Section].Name != "" {
		name = m.Sections[r.Section].Name
	}
	return fmt.Sprintf("%s+%#x", name, r.Offset)
}
