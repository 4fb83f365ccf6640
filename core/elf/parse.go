package elf

import (
	"encoding/binary"
	"fmt"

	"github.com/FocuswithJustin/RetroLink/core/cursor"
	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
)

// DebugSectionName is the reserved section name used to carry a module's
// opaque debug-record blob through the ELF container. The parser restores
// it to Module.DebugData instead of surfacing it as an IR section.
const DebugSectionName = ".mw.debug"

// shdr is a decoded ELF32 section header.
type shdr struct {
	nameOff uint32
	typ     uint32
	flags   uint32
	addr    uint32
	off     uint32
	size    uint32
	link    uint32
	info    uint32
	align   uint32
	entsize uint32
}

// Parse decodes an ELF32 relocatable object into an IR module.
//
// The file's EI_DATA byte selects the byte order for every multi-byte
// field. Unrecognized classes, machines, section types, and relocation
// types fail with an unsupported-variant error; structural inconsistencies
// fail as malformed; short buffers fail as truncated via the cursor.
func Parse(data []byte) (*ir.Module, error) {
	r := cursor.NewReader(data)

	ident, err := r.Bytes(IdentLen, "ELF identification")
	if err != nil {
		return nil, err
	}
	if ident[0] != magic[0] || ident[1] != magic[1] || ident[2] != magic[2] || ident[3] != magic[3] {
		return nil, errors.NewMalformed("ELF object", "header", "bad magic")
	}
	if ident[idxClass] != Class32 {
		return nil, errors.NewUnsupported("ELF class", fmt.Sprintf("%d", ident[idxClass]))
	}

	var order binary.ByteOrder
	var irOrder ir.ByteOrder
	switch ident[idxData] {
	case Data2LSB:
		order, irOrder = cursor.LittleEndian, ir.LittleEndian
	case Data2MSB:
		order, irOrder = cursor.BigEndian, ir.BigEndian
	default:
		return nil, errors.NewMalformed("ELF object", "header",
			fmt.Sprintf("invalid data encoding %d", ident[idxData]))
	}
	if ident[idxVersion] != EVCurrent {
		return nil, errors.NewUnsupported("ELF version", fmt.Sprintf("%d", ident[idxVersion]))
	}

	etype, err := r.Uint16(order, "e_type")
	if err != nil {
		return nil, err
	}
	if etype != TypeRel {
		return nil, errors.NewUnsupported("ELF object type", fmt.Sprintf("%d", etype))
	}

	machine, err := r.Uint16(order, "e_machine")
	if err != nil {
		return nil, err
	}
	switch machine {
	case MachineM68K:
		// Handled below.
	case MachinePPC:
		return nil, errors.NewUnsupported("machine", "EM_PPC")
	default:
		return nil, errors.NewUnsupported("machine", fmt.Sprintf("%d", machine))
	}

	if _, err := r.Uint32(order, "e_version"); err != nil {
		return nil, err
	}
	if _, err := r.Uint32(order, "e_entry"); err != nil {
		return nil, err
	}
	if _, err := r.Uint32(order, "e_phoff"); err != nil {
		return nil, err
	}
	shoff, err := r.Uint32(order, "e_shoff")
	if err != nil {
		return nil, err
	}
	if _, err := r.Uint32(order, "e_flags"); err != nil {
		return nil, err
	}
	if _, err := r.Uint16(order, "e_ehsize"); err != nil {
		return nil, err
	}
	if _, err := r.Uint16(order, "e_phentsize"); err != nil {
		return nil, err
	}
	if _, err := r.Uint16(order, "e_phnum"); err != nil {
		return nil, err
	}
	shentsize, err := r.Uint16(order, "e_shentsize")
	if err != nil {
		return nil, err
	}
	shnum, err := r.Uint16(order, "e_shnum")
	if err != nil {
		return nil, err
	}
	shstrndx, err := r.Uint16(order, "e_shstrndx")
	if err != nil {
		return nil, err
	}

	// Reject entry-size mismatches instead of misaligning every read after
	// the first header.
	if shnum > 0 && shentsize != ShentSize {
		return nil, errors.NewUnsupported("section header entry size", fmt.Sprintf("%d", shentsize))
	}

	headers := make([]shdr, shnum)
	if err := r.Seek(int(shoff)); err != nil {
		return nil, errors.NewMalformed("ELF object", "header",
			fmt.Sprintf("section header table offset %d outside file", shoff))
	}
	for i := range headers {
		h := &headers[i]
		what := fmt.Sprintf("section header %d", i)
		fields := []*uint32{
			&h.nameOff, &h.typ, &h.flags, &h.addr, &h.off,
			&h.size, &h.link, &h.info, &h.align, &h.entsize,
		}
		for _, f := range fields {
			v, err := r.Uint32(order, what)
			if err != nil {
				return nil, err
			}
			*f = v
		}
	}

	if int(shstrndx) >= len(headers) {
		return nil, errors.NewMalformed("ELF object", "header",
			fmt.Sprintf("e_shstrndx %d of %d sections", shstrndx, len(headers)))
	}
	shstrtab, err := sectionBytes(r, &headers[shstrndx], "section name string table")
	if err != nil {
		return nil, err
	}

	sectionName := func(h *shdr) (string, error) {
		return strtabLookup(shstrtab, h.nameOff, "section name")
	}

	mod := &ir.Module{Arch: ir.ArchM68K, Order: irOrder}

	// First pass: materialize content sections and locate tables.
	irIndex := make([]int, len(headers)) // ELF index -> IR index, -1 for tables
	for i := range irIndex {
		irIndex[i] = -1
	}
	symtabIdx := -1
	var relaIdxs []int

	for i := 1; i < len(headers); i++ {
		h := &headers[i]
		name, err := sectionName(h)
		if err != nil {
			return nil, err
		}

		switch h.typ {
		case ShtNull, ShtStrtab:
			// String tables are reached through links.
		case ShtSymtab:
			if symtabIdx != -1 {
				return nil, errors.NewUnsupported("section layout", "multiple symbol tables")
			}
			symtabIdx = i
		case ShtRela:
			relaIdxs = append(relaIdxs, i)
		case ShtProgbits, ShtNobits:
			content, err := sectionBytes(r, h, name)
			if err != nil {
				return nil, err
			}
			if h.typ == ShtNobits {
				content = nil
			}
			if name == DebugSectionName {
				mod.DebugData = content
				continue
			}
			align := h.align
			if align == 0 {
				align = 1
			}
			var flags uint32
			if h.flags&ShfFarData != 0 {
				flags |= ir.FlagFarData
			}
			irIndex[i] = len(mod.Sections)
			mod.Sections = append(mod.Sections, ir.Section{
				Name:  name,
				Kind:  sectionKind(h, name),
				Align: align,
				Data:  content,
				Size:  h.size,
				Flags: flags,
			})
		default:
			return nil, errors.NewUnsupported("section type", fmt.Sprintf("%s (type %d)", name, h.typ))
		}
	}

	// Second pass: symbols.
	symCount := 0
	if symtabIdx != -1 {
		h := &headers[symtabIdx]
		if h.entsize != SymSize {
			return nil, errors.NewUnsupported("symbol entry size", fmt.Sprintf("%d", h.entsize))
		}
		if int(h.link) >= len(headers) || headers[h.link].typ != ShtStrtab {
			return nil, errors.NewMalformed("ELF object", ".symtab",
				fmt.Sprintf("sh_link %d is not a string table", h.link))
		}
		strtab, err := sectionBytes(r, &headers[h.link], "symbol string table")
		if err != nil {
			return nil, err
		}
		symData, err := sectionBytes(r, h, "symbol table")
		if err != nil {
			return nil, err
		}

		sr := cursor.NewReader(symData)
		symCount = len(symData) / SymSize
		for i := 0; i < symCount; i++ {
			what := fmt.Sprintf("symbol %d", i)
			nameOff, err := sr.Uint32(order, what)
			if err != nil {
				return nil, err
			}
			value, err := sr.Uint32(order, what)
			if err != nil {
				return nil, err
			}
			size, err := sr.Uint32(order, what)
			if err != nil {
				return nil, err
			}
			info, err := sr.Uint8(what)
			if err != nil {
				return nil, err
			}
			other, err := sr.Uint8(what)
			if err != nil {
				return nil, err
			}
			shndx, err := sr.Uint16(order, what)
			if err != nil {
				return nil, err
			}

			if i == 0 {
				// Reserved null entry.
				continue
			}

			name, err := strtabLookup(strtab, nameOff, what)
			if err != nil {
				return nil, err
			}

			vis, err := visibility(other, name)
			if err != nil {
				return nil, err
			}

			sym := ir.Symbol{Name: name, Visibility: vis}
			switch stBind(info) {
			case StbLocal:
				sym.Binding = ir.BindLocal
			case StbGlobal:
				sym.Binding = ir.BindGlobal
			case StbWeak:
				sym.Binding = ir.BindWeak
			default:
				return nil, errors.NewUnsupported("symbol binding",
					fmt.Sprintf("%d (symbol %q)", stBind(info), name))
			}

			switch shndx {
			case ShnUndef:
				sym.Section = ir.NoSection
				sym.Size = size
			case ShnCommon:
				sym.Binding = ir.BindCommon
				sym.Section = ir.NoSection
				sym.Size = size
				sym.Align = value // st_value holds alignment for commons
			default:
				if int(shndx) >= len(headers) || irIndex[shndx] == -1 {
					return nil, errors.NewMalformed("ELF object", what,
						fmt.Sprintf("symbol %q defined in non-content section %d", name, shndx))
				}
				sym.Section = irIndex[shndx]
				sym.Value = value
				sym.Size = size
			}
			mod.Symbols = append(mod.Symbols, sym)
		}
	}

	// Third pass: relocation tables.
	for _, ri := range relaIdxs {
		h := &headers[ri]
		name, _ := sectionName(h)
		if h.entsize != RelaSize {
			return nil, errors.NewUnsupported("relocation entry size", fmt.Sprintf("%d", h.entsize))
		}
		if int(h.info) >= len(headers) || irIndex[h.info] == -1 {
			return nil, errors.NewMalformed("ELF object", name,
				fmt.Sprintf("sh_info %d is not a content section", h.info))
		}
		target := irIndex[h.info]

		relaData, err := sectionBytes(r, h, name)
		if err != nil {
			return nil, err
		}
		rr := cursor.NewReader(relaData)
		for i := 0; i < len(relaData)/RelaSize; i++ {
			what := fmt.Sprintf("%s entry %d", name, i)
			off, err := rr.Uint32(order, what)
			if err != nil {
				return nil, err
			}
			info, err := rr.Uint32(order, what)
			if err != nil {
				return nil, err
			}
			addend, err := rr.Int32(order, what)
			if err != nil {
				return nil, err
			}

			kind := ir.RelocKind{Vocab: ir.VocabELF, Code: relaType(info)}
			if _, known := ir.Decompose(kind); !known {
				return nil, errors.NewUnsupported("relocation kind",
					fmt.Sprintf("type %d in %s", relaType(info), name))
			}
			symIdx := relaSym(info)
			if symIdx == 0 || int(symIdx) > symCount-1 {
				return nil, errors.NewMalformed("ELF object", what,
					fmt.Sprintf("symbol index %d of %d", symIdx, symCount))
			}
			mod.Relocations = append(mod.Relocations, ir.Relocation{
				Section: target,
				Offset:  off,
				Symbol:  int(symIdx) - 1, // IR omits the null entry
				Kind:    kind,
				Addend:  int64(addend),
			})
		}
	}

	sortRelocations(mod.Relocations)
	return mod, nil
}

// sectionBytes reads a section's content via an absolute seek, bounds
// checked by the cursor.
func sectionBytes(r *cursor.Reader, h *shdr, what string) ([]byte, error) {
	if h.typ == ShtNobits {
		return nil, nil
	}
	if err := r.Seek(int(h.off)); err != nil {
		return nil, errors.NewMalformed("ELF object", what,
			fmt.Sprintf("offset %d outside file", h.off))
	}
	return r.Bytes(int(h.size), what)
}

// strtabLookup resolves a NUL-terminated name at an offset in a string
// table, treating the offset as untrusted input.
func strtabLookup(strtab []byte, off uint32, what string) (string, error) {
	if int(off) >= len(strtab) {
		return "", errors.NewMalformed("ELF object", what,
			fmt.Sprintf("string offset %d of %d", off, len(strtab)))
	}
	r := cursor.NewReader(strtab)
	if err := r.Seek(int(off)); err != nil {
		return "", err
	}
	return r.CString(what)
}

// sectionKind classifies an ELF section into the IR's section kinds.
func sectionKind(h *shdr, name string) ir.SectionKind {
	switch {
	case h.typ == ShtNobits:
		return ir.SectionBSS
	case h.flags&ShfExecinstr != 0:
		return ir.SectionCode
	case h.flags&ShfAlloc != 0:
		return ir.SectionData
	case len(name) >= 6 && name[:6] == ".debug":
		return ir.SectionDebug
	default:
		return ir.SectionOther
	}
}

// visibility maps st_other to the IR visibility. Default visibility maps
// to the zero value so parsed modules match hand-built ones; the internal
// and protected classes have no IR counterpart and fail closed.
func visibility(other uint8, name string) (ir.Visibility, error) {
	switch other & 0x3 {
	case StvDefault:
		return "", nil
	case StvHidden:
		return ir.VisHidden, nil
	default:
		return "", errors.NewUnsupported("symbol visibility",
			fmt.Sprintf("%d (symbol %q)", other&0x3, name))
	}
}

// sortRelocations orders relocations by (section, offset) as the IR
// requires, preserving input order for equal keys.
func sortRelocations(relocs []ir.Relocation) {
	// Insertion sort: relocation lists are small and mostly ordered.
	for i := 1; i < len(relocs); i++ {
		for j := i; j > 0; j-- {
			a, b := &relocs[j-1], &relocs[j]
			if a.Section < b.Section || (a.Section == b.Section && a.Offset <= b.Offset) {
				break
			}
			relocs[j-1], relocs[j] = relocs[j], relocs[j-1]
		}
	}
}
