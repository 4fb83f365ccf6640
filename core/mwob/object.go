package mwob

import (
	"fmt"
	"math"

	"github.com/FocuswithJustin/RetroLink/core/cursor"
	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
)

var be = cursor.BigEndian

// ParseObject decodes an MWOB object image into an IR module.
//
// Each code or data hunk becomes a section plus its defining symbol; entry
// hunks add symbols into the preceding hunk's section; xref hunks attach
// relocations to it, creating undefined symbols on first reference. The
// debug table rides along verbatim. Reserved hunk tags fail as unsupported
// variants; structural inconsistencies (bad magic, nonzero reserved
// fields, size sums that disagree with the header) fail as malformed.
func ParseObject(data []byte) (*ir.Module, error) {
	r := cursor.NewReader(data)

	magic, err := r.Uint32(be, "object header")
	if err != nil {
		return nil, err
	}
	if magic != ObjectMagic {
		return nil, errors.NewMalformed("MWOB object", "header", "bad magic")
	}

	hdr := struct {
		version, flags                  uint16
		objSize, ntOffset, ntCount      uint32
		stOffset, stSize                uint32
		codeSize, udataSize, idataSize  uint32
		oldDef, oldImp, current         uint32
		tuning                          []byte
	}{}

	if hdr.version, err = r.Uint16(be, "object header"); err != nil {
		return nil, err
	}
	if hdr.flags, err = r.Uint16(be, "object header"); err != nil {
		return nil, err
	}
	for _, f := range []*uint32{&hdr.objSize, &hdr.ntOffset, &hdr.ntCount, &hdr.stOffset, &hdr.stSize} {
		if *f, err = r.Uint32(be, "object header"); err != nil {
			return nil, err
		}
	}
	reserved, err := r.Uint32(be, "object header")
	if err != nil {
		return nil, err
	}
	if reserved != 0 {
		return nil, errors.NewMalformed("MWOB object", "header",
			fmt.Sprintf("reserved word is %#x, must be zero", reserved))
	}
	for _, f := range []*uint32{&hdr.codeSize, &hdr.udataSize, &hdr.idataSize, &hdr.oldDef, &hdr.oldImp, &hdr.current} {
		if *f, err = r.Uint32(be, "object header"); err != nil {
			return nil, err
		}
	}
	if hdr.tuning, err = r.Bytes(8, "object header"); err != nil {
		return nil, err
	}
	if hdr.tuning[6] != 0 || hdr.tuning[7] != 0 {
		return nil, errors.NewMalformed("MWOB object", "header", "reserved tail bytes must be zero")
	}

	names := newNameTable()
	if hdr.ntOffset != 0 && hdr.ntCount > 1 {
		if err := r.Seek(int(hdr.ntOffset)); err != nil {
			return nil, errors.NewMalformed("MWOB object", "header",
				fmt.Sprintf("name table offset %d outside image", hdr.ntOffset))
		}
		// Stored count is entries plus one.
		if names, err = parseNameTable(r, int(hdr.ntCount-1)); err != nil {
			return nil, err
		}
	}

	var debug []byte
	if hdr.stOffset != 0 {
		if err := r.Seek(int(hdr.stOffset)); err != nil {
			return nil, errors.NewMalformed("MWOB object", "header",
				fmt.Sprintf("debug table offset %d outside image", hdr.stOffset))
		}
		if debug, err = r.Bytes(int(hdr.stSize), "debug table"); err != nil {
			return nil, err
		}
		if len(debug) > 0 {
			if len(debug) < 4 || be.Uint32(debug) != SymMagic {
				return nil, errors.NewMalformed("MWOB object", "debug table", "bad SYMH magic")
			}
		}
	}

	if err := r.Seek(ObjectHeaderSize); err != nil {
		return nil, err
	}
	stream, err := r.Bytes(int(hdr.objSize), "hunk stream")
	if err != nil {
		return nil, err
	}

	mod := &ir.Module{
		Arch:      ir.ArchM68K,
		Order:     ir.BigEndian,
		DebugData: debug,
		Meta: ir.TargetMeta{
			Version:        hdr.version,
			Flags:          hdr.flags,
			OldDefVersion:  hdr.oldDef,
			OldImpVersion:  hdr.oldImp,
			CurrentVersion: hdr.current,
			HasFlags:       hdr.tuning[0],
			IsPascal:       hdr.tuning[1],
			IsFourByteInt:  hdr.tuning[2],
			IsEightDouble:  hdr.tuning[3],
			IsMC68881:      hdr.tuning[4],
			BaseReg:        hdr.tuning[5],
		},
	}
	if err := parseHunks(mod, stream, names); err != nil {
		return nil, err
	}

	var code, udata, idata uint32
	for i := range mod.Sections {
		s := &mod.Sections[i]
		switch s.Kind {
		case ir.SectionCode:
			code += s.Size
		case ir.SectionBSS:
			udata += s.Size
		case ir.SectionData:
			idata += s.Size
		}
	}
	if code != hdr.codeSize || udata != hdr.udataSize || idata != hdr.idataSize {
		return nil, errors.NewMalformed("MWOB object", "header",
			fmt.Sprintf("size fields %d/%d/%d disagree with hunks %d/%d/%d",
				hdr.codeSize, hdr.udataSize, hdr.idataSize, code, udata, idata))
	}

	sortRelocations(mod.Relocations)
	return mod, nil
}

// parseHunks walks the hunk stream, building sections, symbols and
// relocations. cur tracks the section the record-based format attaches
// entries and xrefs to.
func parseHunks(mod *ir.Module, stream []byte, names *nameTable) error {
	hr := cursor.NewReader(stream)

	tag, err := hr.Uint16(be, "hunk tag")
	if err != nil {
		return err
	}
	if tag != hunkStart {
		return errors.NewMalformed("MWOB object", "hunk stream",
			fmt.Sprintf("stream opens with %s, want HUNK_START", hunkName(tag)))
	}

	symIdx := make(map[string]int)
	cur := -1
	for {
		tag, err := hr.Uint16(be, "hunk tag")
		if err != nil {
			return err
		}

		switch tag {
		case hunkEnd:
			if hr.Remaining() != 0 {
				return errors.NewMalformed("MWOB object", "hunk stream",
					fmt.Sprintf("%d bytes after HUNK_END", hr.Remaining()))
			}
			return nil

		case hunkLocalCode, hunkGlobalCode:
			sec, sym, err := parseContentHunk(hr, names, tag)
			if err != nil {
				return err
			}
			cur = len(mod.Sections)
			sym.Section = cur
			mod.Sections = append(mod.Sections, sec)
			symIdx[sym.Name] = len(mod.Symbols)
			mod.Symbols = append(mod.Symbols, sym)

		case hunkLocalIData, hunkGlobalIData, hunkLocalFarIData, hunkGlobalFarIData,
			hunkLocalUData, hunkGlobalUData, hunkLocalFarUData, hunkGlobalFarUData:
			sec, sym, err := parseContentHunk(hr, names, tag)
			if err != nil {
				return err
			}
			cur = len(mod.Sections)
			sym.Section = cur
			mod.Sections = append(mod.Sections, sec)
			symIdx[sym.Name] = len(mod.Symbols)
			mod.Symbols = append(mod.Symbols, sym)

		case hunkInitCode:
			size, err := hr.Uint32(be, "init code hunk")
			if err != nil {
				return err
			}
			content, err := hr.Bytes(int(size), "init code hunk")
			if err != nil {
				return err
			}
			if err := hr.Skip(pad4(int(size))); err != nil {
				return err
			}
			cur = len(mod.Sections)
			mod.Sections = append(mod.Sections, ir.Section{
				Kind: ir.SectionCode, Align: 4, Data: content, Size: size,
			})

		case hunkLocalEntry, hunkGlobalEntry:
			nameID, err := hr.Uint32(be, "entry hunk")
			if err != nil {
				return err
			}
			offset, err := hr.Uint32(be, "entry hunk")
			if err != nil {
				return err
			}
			name, err := names.lookup(nameID)
			if err != nil {
				return err
			}
			if cur < 0 {
				return errors.NewMalformed("MWOB object", "hunk stream",
					fmt.Sprintf("entry %q before any content hunk", name))
			}
			binding := ir.BindGlobal
			if tag == hunkLocalEntry {
				binding = ir.BindLocal
			}
			symIdx[name] = len(mod.Symbols)
			mod.Symbols = append(mod.Symbols, ir.Symbol{
				Name: name, Binding: binding, Section: cur, Value: offset,
			})

		case hunkXRefCodeJT16, hunkXRefData16, hunkXRef32,
			hunkXRefCode16, hunkXRefCode32, hunkXRefPCRel32, hunkXRefAmbiguous16:
			nameID, err := hr.Uint32(be, "xref hunk")
			if err != nil {
				return err
			}
			count, err := hr.Uint16(be, "xref hunk")
			if err != nil {
				return err
			}
			name, err := names.lookup(nameID)
			if err != nil {
				return err
			}
			if cur < 0 {
				return errors.NewMalformed("MWOB object", "hunk stream",
					fmt.Sprintf("xref to %q before any content hunk", name))
			}
			sym, ok := symIdx[name]
			if !ok {
				sym = len(mod.Symbols)
				symIdx[name] = sym
				mod.Symbols = append(mod.Symbols, ir.Symbol{
					Name: name, Binding: ir.BindGlobal, Section: ir.NoSection,
				})
			}
			kind := ir.RelocKind{Vocab: ir.VocabMWOB, Code: uint32(tag)}
			for p := 0; p < int(count); p++ {
				what := fmt.Sprintf("xref pair %d of %s", p, hunkName(tag))
				offset, err := hr.Uint32(be, what)
				if err != nil {
					return err
				}
				value, err := hr.Uint32(be, what)
				if err != nil {
					return err
				}
				mod.Relocations = append(mod.Relocations, ir.Relocation{
					Section: cur, Offset: offset, Symbol: sym, Kind: kind,
					Addend: int64(value),
				})
			}

		case hunkSegment:
			// Segment grouping has no IR representation; tolerated.
			if _, err := hr.Uint32(be, "segment hunk"); err != nil {
				return err
			}

		default:
			if _, known := hunkNames[tag]; known {
				return errors.NewUnsupported("hunk", hunkName(tag))
			}
			return errors.NewMalformed("MWOB object", "hunk stream",
				fmt.Sprintf("unknown hunk tag %#x", tag))
		}
	}
}

// parseContentHunk reads the common code/data hunk record: name id, size,
// two debug links, then content for code and initialized-data tags. The
// content is padded to a 4-byte boundary in the stream.
func parseContentHunk(hr *cursor.Reader, names *nameTable, tag uint16) (ir.Section, ir.Symbol, error) {
	what := hunkName(tag)
	nameID, err := hr.Uint32(be, what)
	if err != nil {
		return ir.Section{}, ir.Symbol{}, err
	}
	size, err := hr.Uint32(be, what)
	if err != nil {
		return ir.Section{}, ir.Symbol{}, err
	}
	// Debug-table cross links; the debug table itself is opaque here.
	if _, err := hr.Uint32(be, what); err != nil {
		return ir.Section{}, ir.Symbol{}, err
	}
	if _, err := hr.Uint32(be, what); err != nil {
		return ir.Section{}, ir.Symbol{}, err
	}
	name, err := names.lookup(nameID)
	if err != nil {
		return ir.Section{}, ir.Symbol{}, err
	}

	sec := ir.Section{Name: name, Align: 4, Size: size}
	switch tag {
	case hunkLocalCode, hunkGlobalCode:
		sec.Kind = ir.SectionCode
	case hunkLocalIData, hunkGlobalIData:
		sec.Kind = ir.SectionData
	case hunkLocalFarIData, hunkGlobalFarIData:
		sec.Kind = ir.SectionData
		sec.Flags |= ir.FlagFarData
	case hunkLocalUData, hunkGlobalUData:
		sec.Kind = ir.SectionBSS
	case hunkLocalFarUData, hunkGlobalFarUData:
		sec.Kind = ir.SectionBSS
		sec.Flags |= ir.FlagFarData
	}
	if sec.HasContent() {
		if sec.Data, err = hr.Bytes(int(size), what); err != nil {
			return ir.Section{}, ir.Symbol{}, err
		}
		if err := hr.Skip(pad4(int(size))); err != nil {
			return ir.Section{}, ir.Symbol{}, err
		}
	}

	binding := ir.BindGlobal
	switch tag {
	case hunkLocalCode, hunkLocalIData, hunkLocalFarIData, hunkLocalUData, hunkLocalFarUData:
		binding = ir.BindLocal
	}
	sym := ir.Symbol{Name: name, Binding: binding, Value: 0, Size: size}
	return sec, sym, nil
}

// EmitObject encodes an IR module as an MWOB object image.
//
// Emission mirrors parsing: one content hunk per section carrying its
// defining symbol's name, entry hunks for the section's other symbols,
// and one xref hunk per (kind, symbol) group of the section's
// relocations. The name table is interned in first-use order, so output
// is deterministic.
func EmitObject(m *ir.Module) ([]byte, error) {
	if m.Arch != ir.ArchM68K {
		return nil, errors.NewUnsupported("machine", string(m.Arch))
	}
	if m.Order == ir.LittleEndian {
		return nil, errors.NewUnsupported("byte order", "MWOB objects are big-endian")
	}

	for j := range m.Symbols {
		if s := &m.Symbols[j]; s.Defined() && (s.Section < 0 || s.Section >= len(m.Sections)) {
			return nil, errors.NewReference("symbol", j,
				fmt.Sprintf("references section %d of %d", s.Section, len(m.Sections)))
		}
	}
	for j, r := range m.Relocations {
		if r.Section < 0 || r.Section >= len(m.Sections) {
			return nil, errors.NewReference("relocation", j,
				fmt.Sprintf("section index %d of %d", r.Section, len(m.Sections)))
		}
	}

	names := newNameTable()
	hw := cursor.NewWriter()
	hw.Uint16(be, hunkStart)

	var code, udata, idata uint32
	for i := range m.Sections {
		s := &m.Sections[i]
		switch s.Kind {
		case ir.SectionCode:
			code += s.Size
		case ir.SectionBSS:
			udata += s.Size
		case ir.SectionData:
			idata += s.Size
		default:
			return nil, errors.NewUnsupported("section kind",
				fmt.Sprintf("%s (section %q)", s.Kind, s.Name))
		}
		if err := emitSection(hw, m, i, names); err != nil {
			return nil, err
		}
	}
	hw.Uint16(be, hunkEnd)

	w := cursor.NewWriter()
	w.Uint32(be, ObjectMagic)
	w.Uint16(be, m.Meta.Version)
	w.Uint16(be, m.Meta.Flags)
	w.Uint32(be, uint32(hw.Len()))

	ntOffset, ntLen := 0, 0
	if len(names.names) > 0 {
		ntOffset = ObjectHeaderSize + hw.Len()
		for _, n := range names.names {
			ntLen += 2 + len(n) + 1
		}
	}
	stOffset := 0
	if len(m.DebugData) > 0 {
		stOffset = ObjectHeaderSize + hw.Len() + ntLen
	}

	w.Uint32(be, uint32(ntOffset))
	w.Uint32(be, names.storedCount())
	w.Uint32(be, uint32(stOffset))
	w.Uint32(be, uint32(len(m.DebugData)))
	w.Uint32(be, 0) // reserved
	w.Uint32(be, code)
	w.Uint32(be, udata)
	w.Uint32(be, idata)
	w.Uint32(be, m.Meta.OldDefVersion)
	w.Uint32(be, m.Meta.OldImpVersion)
	w.Uint32(be, m.Meta.CurrentVersion)
	w.Uint8(m.Meta.HasFlags)
	w.Uint8(m.Meta.IsPascal)
	w.Uint8(m.Meta.IsFourByteInt)
	w.Uint8(m.Meta.IsEightDouble)
	w.Uint8(m.Meta.IsMC68881)
	w.Uint8(m.Meta.BaseReg)
	w.Uint8(0)
	w.Uint8(0)

	w.Write(hw.Bytes())
	names.emit(w)
	w.Write(m.DebugData)
	return w.Bytes(), nil
}

// emitSection writes section i's content hunk, entry hunks and xref hunks.
func emitSection(hw *cursor.Writer, m *ir.Module, i int, names *nameTable) error {
	s := &m.Sections[i]

	// The defining symbol supplies the hunk's name and binding. A nameless
	// code section with no symbols is the init-code hunk.
	def := -1
	for j := range m.Symbols {
		sym := &m.Symbols[j]
		if sym.Section == i && sym.Value == 0 {
			def = j
			break
		}
	}

	if def == -1 {
		if s.Kind != ir.SectionCode || s.Name != "" {
			return errors.NewMalformed("MWOB object", s.Name, "section has no defining symbol")
		}
		hw.Uint16(be, hunkInitCode)
		hw.Uint32(be, s.Size)
		if uint32(len(s.Data)) != s.Size {
			return errors.NewMalformed("MWOB object", "init code",
				fmt.Sprintf("size %d does not match content length %d", s.Size, len(s.Data)))
		}
		hw.Write(s.Data)
		hw.Zero(pad4(len(s.Data)))
	} else {
		tag, err := contentTag(s, &m.Symbols[def])
		if err != nil {
			return err
		}
		hw.Uint16(be, tag)
		hw.Uint32(be, names.intern(m.Symbols[def].Name))
		hw.Uint32(be, s.Size)
		hw.Uint32(be, noDebugLink)
		hw.Uint32(be, 0)
		if s.HasContent() {
			if uint32(len(s.Data)) != s.Size {
				return errors.NewMalformed("MWOB object", s.Name,
					fmt.Sprintf("size %d does not match content length %d", s.Size, len(s.Data)))
			}
			hw.Write(s.Data)
			hw.Zero(pad4(len(s.Data)))
		}
	}

	for j := range m.Symbols {
		sym := &m.Symbols[j]
		if j == def || sym.Section != i {
			continue
		}
		tag := uint16(hunkGlobalEntry)
		switch sym.Binding {
		case ir.BindLocal:
			tag = hunkLocalEntry
		case ir.BindGlobal:
		default:
			return errors.NewUnsupported("symbol binding",
				fmt.Sprintf("%s (symbol %q)", sym.Binding, sym.Name))
		}
		hw.Uint16(be, tag)
		hw.Uint32(be, names.intern(sym.Name))
		hw.Uint32(be, sym.Value)
	}

	return emitXRefs(hw, m, i, names)
}

// emitXRefs groups section i's relocations by (kind, symbol) in first
// appearance order and writes one xref hunk per group.
func emitXRefs(hw *cursor.Writer, m *ir.Module, i int, names *nameTable) error {
	type key struct {
		kind ir.RelocKind
		sym  int
	}
	var order []key
	groups := make(map[key][]ir.Relocation)
	for _, r := range m.Relocations {
		if r.Section != i {
			continue
		}
		if r.Symbol < 0 || r.Symbol >= len(m.Symbols) {
			return errors.NewReference("relocation", i,
				fmt.Sprintf("symbol index %d of %d", r.Symbol, len(m.Symbols)))
		}
		// An xref names its symbol without a binding; a reader takes it
		// as global, so weak and common referents cannot survive.
		switch ref := &m.Symbols[r.Symbol]; ref.Binding {
		case ir.BindWeak, ir.BindCommon:
			return errors.NewUnsupported("symbol binding",
				fmt.Sprintf("%s (symbol %q referenced by xref)", ref.Binding, ref.Name))
		}
		if r.Kind.Vocab != ir.VocabMWOB {
			return errors.NewUnsupported("relocation kind",
				fmt.Sprintf("%s is not in the MWOB vocabulary", r.Kind))
		}
		if _, known := ir.Decompose(r.Kind); !known {
			return errors.NewUnsupported("relocation kind", r.Kind.String())
		}
		k := key{r.Kind, r.Symbol}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	for _, k := range order {
		pairs := groups[k]
		if len(pairs) > math.MaxUint16 {
			return errors.NewMalformed("MWOB object", m.Sections[i].Name,
				fmt.Sprintf("%d xref pairs exceed the 16-bit pair count", len(pairs)))
		}
		hw.Uint16(be, uint16(k.kind.Code))
		hw.Uint32(be, names.intern(m.Symbols[k.sym].Name))
		hw.Uint16(be, uint16(len(pairs)))
		for _, r := range pairs {
			if r.Addend < 0 || r.Addend > math.MaxUint32 {
				return errors.NewUnsupported("relocation addend",
					fmt.Sprintf("%d does not fit the xref value word", r.Addend))
			}
			hw.Uint32(be, r.Offset)
			hw.Uint32(be, uint32(r.Addend))
		}
	}
	return nil
}

// contentTag selects the hunk tag for a section and its defining symbol.
func contentTag(s *ir.Section, sym *ir.Symbol) (uint16, error) {
	local := false
	switch sym.Binding {
	case ir.BindLocal:
		local = true
	case ir.BindGlobal:
	default:
		return 0, errors.NewUnsupported("symbol binding",
			fmt.Sprintf("%s (symbol %q)", sym.Binding, sym.Name))
	}
	far := s.Flags&ir.FlagFarData != 0

	switch s.Kind {
	case ir.SectionCode:
		if far {
			return 0, errors.NewUnsupported("section flags", "far-addressed code")
		}
		if local {
			return hunkLocalCode, nil
		}
		return hunkGlobalCode, nil
	case ir.SectionData:
		switch {
		case local && far:
			return hunkLocalFarIData, nil
		case local:
			return hunkLocalIData, nil
		case far:
			return hunkGlobalFarIData, nil
		default:
			return hunkGlobalIData, nil
		}
	case ir.SectionBSS:
		switch {
		case local && far:
			return hunkLocalFarUData, nil
		case local:
			return hunkLocalUData, nil
		case far:
			return hunkGlobalFarUData, nil
		default:
			return hunkGlobalUData, nil
		}
	}
	return 0, errors.NewUnsupported("section kind", string(s.Kind))
}

// pad4 returns the zero padding needed to reach a 4-byte boundary.
func pad4(n int) int {
	return (4 - n%4) % 4
}

// sortRelocations orders relocations by (section, offset), preserving
// input order for equal keys.
func sortRelocations(relocs []ir.Relocation) {
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
