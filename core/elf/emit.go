package elf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/FocuswithJustin/RetroLink/core/cursor"
	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
)

// strtab accumulates a string table, deduplicating repeated names.
type strtab struct {
	buf  []byte
	offs map[string]uint32
}

func newStrtab() *strtab {
	return &strtab{buf: []byte{0}, offs: map[string]uint32{"": 0}}
}

// add interns a name and returns its table offset.
func (t *strtab) add(s string) uint32 {
	if off, ok := t.offs[s]; ok {
		return off
	}
	off := uint32(len(t.buf))
	t.buf = append(t.buf, s...)
	t.buf = append(t.buf, 0)
	t.offs[s] = off
	return off
}

// Emit encodes an IR module as an ELF32 relocatable object.
//
// The output is deterministic: the section header table preserves the IR
// section order, content bytes are laid out code first, then data, then
// everything else, alignment gaps are zero-filled, and symbols are written
// locals first with their relative order preserved. A module parsed from
// the emitter's own output is identical to a canonical input module.
func Emit(m *ir.Module) ([]byte, error) {
	var order binary.ByteOrder
	switch m.Order {
	case ir.LittleEndian:
		order = cursor.LittleEndian
	case ir.BigEndian, "":
		order = cursor.BigEndian
	default:
		return nil, errors.NewMalformed("ELF object", "module",
			fmt.Sprintf("unknown byte order %q", m.Order))
	}

	var machine uint16
	switch m.Arch {
	case ir.ArchM68K:
		machine = MachineM68K
	case ir.ArchPPC:
		return nil, errors.NewUnsupported("machine", "EM_PPC")
	default:
		return nil, errors.NewUnsupported("machine", string(m.Arch))
	}

	// Section header indexes. Content sections keep their IR order so the
	// header table round-trips; tables follow.
	nContent := len(m.Sections)
	next := nContent + 1
	debugIdx := 0
	if m.DebugData != nil {
		debugIdx = next
		next++
	}
	symtabIdx := next
	strtabIdx := next + 1
	next += 2

	relaFor := make(map[int][]ir.Relocation)
	var relaOrder []int // IR section indexes with relocations, ascending
	for _, r := range m.Relocations {
		if r.Section < 0 || r.Section >= nContent {
			return nil, errors.NewReference("relocation", len(relaOrder),
				fmt.Sprintf("section index %d of %d", r.Section, nContent))
		}
		if _, seen := relaFor[r.Section]; !seen {
			relaOrder = append(relaOrder, r.Section)
		}
		relaFor[r.Section] = append(relaFor[r.Section], r)
	}
	sortInts(relaOrder)
	relaIdx := make(map[int]int, len(relaOrder))
	for _, sec := range relaOrder {
		relaIdx[sec] = next
		next++
	}
	shstrtabIdx := next
	shnum := next + 1

	// Symbols, locals first. elfSym maps IR symbol index to symtab index.
	symOrder := make([]int, 0, len(m.Symbols))
	for i := range m.Symbols {
		if m.Symbols[i].Binding == ir.BindLocal {
			symOrder = append(symOrder, i)
		}
	}
	nLocals := len(symOrder)
	for i := range m.Symbols {
		if m.Symbols[i].Binding != ir.BindLocal {
			symOrder = append(symOrder, i)
		}
	}
	elfSym := make([]uint32, len(m.Symbols))
	for pos, irIdx := range symOrder {
		elfSym[irIdx] = uint32(pos + 1) // entry 0 is the null symbol
	}

	names := newStrtab()
	symw := cursor.NewWriter()
	symw.Zero(SymSize) // null entry
	for _, irIdx := range symOrder {
		s := &m.Symbols[irIdx]
		symw.Uint32(order, names.add(s.Name))

		bind, typ := StbGlobal, SttNotype
		value, size := s.Value, s.Size
		var shndx uint16
		switch s.Binding {
		case ir.BindLocal:
			bind = StbLocal
		case ir.BindGlobal:
			bind = StbGlobal
		case ir.BindWeak:
			bind = StbWeak
		case ir.BindCommon:
			if s.Defined() {
				return nil, errors.NewReference("symbol", irIdx,
					fmt.Sprintf("common %q has a defining section", s.Name))
			}
			shndx = ShnCommon
			value = s.Align // st_value carries alignment for commons
		default:
			return nil, errors.NewUnsupported("symbol binding", string(s.Binding))
		}
		if s.Defined() {
			if s.Section < 0 || s.Section >= nContent {
				return nil, errors.NewReference("symbol", irIdx,
					fmt.Sprintf("references section %d of %d", s.Section, nContent))
			}
			shndx = uint16(s.Section + 1)
			switch m.Sections[s.Section].Kind {
			case ir.SectionCode:
				typ = SttFunc
			case ir.SectionData, ir.SectionBSS:
				typ = SttObject
			}
		}

		symw.Uint32(order, value)
		symw.Uint32(order, size)
		symw.Uint8(stInfo(bind, typ))
		var other uint8
		if s.Visibility == ir.VisHidden {
			other = StvHidden
		}
		symw.Uint8(other)
		symw.Uint16(order, shndx)
	}

	relaBytes := make(map[int][]byte, len(relaOrder))
	for _, sec := range relaOrder {
		rw := cursor.NewWriter()
		for _, r := range relaFor[sec] {
			if r.Symbol < 0 || r.Symbol >= len(m.Symbols) {
				return nil, errors.NewReference("relocation", sec,
					fmt.Sprintf("symbol index %d of %d", r.Symbol, len(m.Symbols)))
			}
			if r.Kind.Vocab != ir.VocabELF {
				return nil, errors.NewUnsupported("relocation kind",
					fmt.Sprintf("%s is not in the ELF vocabulary", r.Kind))
			}
			if _, known := ir.Decompose(r.Kind); !known || r.Kind.Code > 0xFF {
				return nil, errors.NewUnsupported("relocation kind", r.Kind.String())
			}
			if r.Addend < math.MinInt32 || r.Addend > math.MaxInt32 {
				return nil, errors.NewUnsupported("relocation addend",
					fmt.Sprintf("%d does not fit a 32-bit field", r.Addend))
			}
			rw.Uint32(order, r.Offset)
			rw.Uint32(order, relaInfo(elfSym[r.Symbol], r.Kind.Code))
			rw.Int32(order, int32(r.Addend))
		}
		relaBytes[sec] = rw.Bytes()
	}

	shnames := newStrtab()
	headers := make([]shdr, shnum)
	w := cursor.NewWriter()

	// File header; e_shoff is patched once the layout is final.
	w.Write(magic[:])
	var data uint8 = Data2MSB
	if m.Order == ir.LittleEndian {
		data = Data2LSB
	}
	w.Uint8(Class32)
	w.Uint8(data)
	w.Uint8(EVCurrent)
	w.Zero(IdentLen - 7)
	w.Uint16(order, TypeRel)
	w.Uint16(order, machine)
	w.Uint32(order, EVCurrent)
	w.Uint32(order, 0) // e_entry
	w.Uint32(order, 0) // e_phoff
	shoffAt := w.Len()
	w.Uint32(order, 0) // e_shoff, patched below
	w.Uint32(order, 0) // e_flags
	w.Uint16(order, HeaderSize)
	w.Uint16(order, 0) // e_phentsize
	w.Uint16(order, 0) // e_phnum
	w.Uint16(order, ShentSize)
	w.Uint16(order, uint16(shnum))
	w.Uint16(order, uint16(shstrtabIdx))

	// Content bytes, grouped by kind so code leads the image. The header
	// table order is unaffected.
	for _, group := range [][]ir.SectionKind{
		{ir.SectionCode},
		{ir.SectionData},
		{ir.SectionDebug, ir.SectionOther, ir.SectionBSS},
	} {
		for i := range m.Sections {
			s := &m.Sections[i]
			if !kindIn(s.Kind, group) {
				continue
			}
			align := s.Align
			if align == 0 {
				align = 1
			}
			w.Align(int(align))
			h := &headers[i+1]
			h.nameOff = shnames.add(s.Name)
			h.off = uint32(w.Len())
			h.size = s.Size
			h.align = align
			if s.Flags&ir.FlagFarData != 0 {
				h.flags |= ShfFarData
			}
			switch s.Kind {
			case ir.SectionCode:
				h.typ = ShtProgbits
				h.flags |= ShfAlloc | ShfExecinstr
			case ir.SectionData:
				h.typ = ShtProgbits
				h.flags |= ShfAlloc | ShfWrite
			case ir.SectionBSS:
				h.typ = ShtNobits
				h.flags |= ShfAlloc | ShfWrite
			case ir.SectionDebug, ir.SectionOther:
				h.typ = ShtProgbits
			default:
				return nil, errors.NewUnsupported("section kind", string(s.Kind))
			}
			if s.HasContent() {
				if uint32(len(s.Data)) != s.Size {
					return nil, errors.NewMalformed("ELF object", s.Name,
						fmt.Sprintf("size %d does not match content length %d", s.Size, len(s.Data)))
				}
				w.Write(s.Data)
			}
		}
	}

	if m.DebugData != nil {
		h := &headers[debugIdx]
		h.nameOff = shnames.add(DebugSectionName)
		h.typ = ShtProgbits
		h.off = uint32(w.Len())
		h.size = uint32(len(m.DebugData))
		h.align = 1
		w.Write(m.DebugData)
	}

	w.Align(4)
	{
		h := &headers[symtabIdx]
		h.nameOff = shnames.add(".symtab")
		h.typ = ShtSymtab
		h.off = uint32(w.Len())
		h.size = uint32(symw.Len())
		h.link = uint32(strtabIdx)
		h.info = uint32(nLocals + 1) // first non-local entry
		h.align = 4
		h.entsize = SymSize
		w.Write(symw.Bytes())
	}
	{
		h := &headers[strtabIdx]
		h.nameOff = shnames.add(".strtab")
		h.typ = ShtStrtab
		h.off = uint32(w.Len())
		h.size = uint32(len(names.buf))
		h.align = 1
		w.Write(names.buf)
	}
	for _, sec := range relaOrder {
		w.Align(4)
		h := &headers[relaIdx[sec]]
		h.nameOff = shnames.add(relaName(m.Sections[sec].Name))
		h.typ = ShtRela
		h.off = uint32(w.Len())
		h.size = uint32(len(relaBytes[sec]))
		h.link = uint32(symtabIdx)
		h.info = uint32(sec + 1)
		h.align = 4
		h.entsize = RelaSize
		w.Write(relaBytes[sec])
	}
	{
		h := &headers[shstrtabIdx]
		h.nameOff = shnames.add(".shstrtab")
		h.typ = ShtStrtab
		h.off = uint32(w.Len())
		h.size = uint32(len(shnames.buf))
		h.align = 1
		w.Write(shnames.buf)
	}

	w.Align(4)
	if err := w.PatchUint32(order, shoffAt, uint32(w.Len())); err != nil {
		return nil, err
	}
	for i := range headers {
		h := &headers[i]
		for _, v := range []uint32{
			h.nameOff, h.typ, h.flags, h.addr, h.off,
			h.size, h.link, h.info, h.align, h.entsize,
		} {
			w.Uint32(order, v)
		}
	}
	return w.Bytes(), nil
}

// relaName derives the conventional relocation section name.
func relaName(section string) string {
	if len(section) > 0 && section[0] == '.' {
		return ".rela" + section
	}
	return ".rela." + section
}

func kindIn(k ir.SectionKind, set []ir.SectionKind) bool {
	for _, c := range set {
		if k == c {
			return true
		}
	}
	return false
}

// sortInts sorts a small index slice ascending.
func sortInts(v []int) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}
