package mwob

import (
	"fmt"
	"sort"

	"github.com/FocuswithJustin/RetroLink/core/cursor"
	"github.com/FocuswithJustin/RetroLink/core/diag"
	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
)

// ParseLibrary decodes an MWOB library container.
//
// In strict mode the first bad member or index inconsistency aborts the
// parse. In collect mode each bad member yields one diagnostic and is
// skipped while the remaining members still parse; the returned collector
// holds everything found. Header-level damage is fatal in both modes.
//
// The trailing symbol index is verified against the members' exported
// symbols — order, membership and member ordinals — and never silently
// repaired; the returned library's index is rebuilt from the surviving
// members.
func ParseLibrary(data []byte, mode diag.Mode) (*ir.Library, *diag.Collector, error) {
	c := diag.NewCollector()
	r := cursor.NewReader(data)

	magic, err := r.Uint32(be, "library header")
	if err != nil {
		return nil, c, err
	}
	if magic != LibraryMagic {
		return nil, c, errors.NewMalformed("MWOB library", "header", "bad magic")
	}

	proc, err := r.Uint32(be, "library header")
	if err != nil {
		return nil, c, err
	}
	switch proc {
	case ProcM68K:
	case ProcPPC:
		return nil, c, errors.NewUnsupported("library processor", "PPC")
	default:
		return nil, c, errors.NewUnsupported("library processor", fmt.Sprintf("%#x", proc))
	}

	flags, err := r.Uint32(be, "library header")
	if err != nil {
		return nil, c, err
	}
	if flags != 0 {
		return nil, c, errors.NewMalformed("MWOB library", "header",
			fmt.Sprintf("flags %#x, must be zero", flags))
	}
	version, err := r.Uint32(be, "library header")
	if err != nil {
		return nil, c, err
	}
	totalSize, err := r.Uint32(be, "library header")
	if err != nil {
		return nil, c, err
	}
	if int(totalSize) != len(data) {
		return nil, c, errors.NewMalformed("MWOB library", "header",
			fmt.Sprintf("total size %d does not match %d input bytes", totalSize, len(data)))
	}
	indexOffset, err := r.Uint32(be, "library header")
	if err != nil {
		return nil, c, err
	}
	memberCount, err := r.Uint32(be, "library header")
	if err != nil {
		return nil, c, err
	}

	// The count is untrusted input; bound it by the record table's bytes
	// before sizing anything from it.
	if uint64(memberCount)*MemberRecordSize > uint64(r.Remaining()) {
		return nil, c, errors.NewMalformed("MWOB library", "header",
			fmt.Sprintf("member count %d needs %d record bytes, %d remain",
				memberCount, uint64(memberCount)*MemberRecordSize, r.Remaining()))
	}

	type record struct {
		moddate, nameLoc, pathLoc, dataStart, dataSize uint32
	}
	records := make([]record, memberCount)
	for f := range records {
		rec := &records[f]
		what := fmt.Sprintf("member record %d", f)
		for _, field := range []*uint32{&rec.moddate, &rec.nameLoc, &rec.pathLoc, &rec.dataStart, &rec.dataSize} {
			if *field, err = r.Uint32(be, what); err != nil {
				return nil, c, err
			}
		}
	}

	lib := &ir.Library{Arch: ir.ArchM68K, Version: version}
	parsed := make(map[int]*ir.Module, memberCount) // file ordinal -> module
	for f := range records {
		rec := &records[f]
		location := fmt.Sprintf("member %d", f)

		name, err := libString(data, rec.nameLoc, location)
		if err != nil {
			return nil, c, err
		}
		var path string
		if rec.pathLoc != 0 {
			if path, err = libString(data, rec.pathLoc, location); err != nil {
				return nil, c, err
			}
		}

		if err := r.Seek(int(rec.dataStart)); err != nil {
			return nil, c, errors.NewMalformed("MWOB library", location,
				fmt.Sprintf("data offset %d outside container", rec.dataStart))
		}
		img, err := r.Bytes(int(rec.dataSize), location)
		if err != nil {
			return nil, c, err
		}

		mod, err := ParseObject(img)
		if err != nil {
			if mode == diag.Strict {
				return nil, c, errors.Wrapf(err, "member %d (%s)", f, name)
			}
			c.Add(diagKind(err), fmt.Sprintf("member %d (%s)", f, name), "%v", err)
			continue
		}
		mod.Name = name
		parsed[f] = mod
		lib.Members = append(lib.Members, ir.Member{
			Name:    name,
			Path:    path,
			ModDate: FromMacTime(rec.moddate),
			Module:  mod,
		})
	}

	if err := verifyIndex(data, indexOffset, int(memberCount), parsed, mode, c); err != nil {
		return nil, c, err
	}

	lib.BuildIndex()
	return lib, c, nil
}

// verifyIndex checks the trailing symbol index against the parsed members:
// entries sorted by name bytes, member ordinals in range, and each parsed
// member's exported symbols exactly covered.
func verifyIndex(data []byte, offset uint32, memberCount int, parsed map[int]*ir.Module, mode diag.Mode, c *diag.Collector) error {
	fail := func(format string, args ...interface{}) error {
		if mode == diag.Strict {
			return errors.NewMalformed("MWOB library", "symbol index", fmt.Sprintf(format, args...))
		}
		c.Add(diag.KindMalformedContainer, "symbol index", format, args...)
		return nil
	}

	if offset == 0 {
		return fail("missing symbol index")
	}
	r := cursor.NewReader(data)
	if err := r.Seek(int(offset)); err != nil {
		return errors.NewMalformed("MWOB library", "header",
			fmt.Sprintf("index offset %d outside container", offset))
	}
	count, err := r.Uint32(be, "symbol index")
	if err != nil {
		return err
	}

	byMember := make(map[int][]string)
	prevName, prevMember := "", -1
	for e := 0; e < int(count); e++ {
		what := fmt.Sprintf("symbol index entry %d", e)
		nameLoc, err := r.Uint32(be, what)
		if err != nil {
			return err
		}
		member, err := r.Uint32(be, what)
		if err != nil {
			return err
		}
		name, err := libString(data, nameLoc, what)
		if err != nil {
			return err
		}
		if int(member) >= memberCount {
			if err := fail("entry %d references member %d of %d", e, member, memberCount); err != nil {
				return err
			}
			continue
		}
		if e > 0 && (name < prevName || (name == prevName && int(member) < prevMember)) {
			if err := fail("entries not sorted at %q (entry %d)", name, e); err != nil {
				return err
			}
		}
		prevName, prevMember = name, int(member)
		byMember[int(member)] = append(byMember[int(member)], name)
	}

	for f, mod := range parsed {
		want := append([]string(nil), mod.ExportedNames()...)
		got := append([]string(nil), byMember[f]...)
		sort.Strings(want)
		sort.Strings(got)
		if len(want) != len(got) {
			if err := fail("member %d exports %d symbols, index lists %d", f, len(want), len(got)); err != nil {
				return err
			}
			continue
		}
		for k := range want {
			if want[k] != got[k] {
				if err := fail("member %d: index lists %q, exports declare %q", f, got[k], want[k]); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// libString resolves a NUL-terminated string at a container-relative
// offset. Offset zero is reserved for "absent" and is the caller's case.
func libString(data []byte, loc uint32, what string) (string, error) {
	if loc == 0 || int(loc) >= len(data) {
		return "", errors.NewMalformed("MWOB library", what,
			fmt.Sprintf("string offset %d of %d", loc, len(data)))
	}
	r := cursor.NewReader(data)
	if err := r.Seek(int(loc)); err != nil {
		return "", err
	}
	return r.CString(what)
}

// diagKind maps a parse error to its diagnostic kind.
func diagKind(err error) diag.Kind {
	switch {
	case errors.Is(err, errors.ErrTruncatedInput):
		return diag.KindTruncatedInput
	case errors.Is(err, errors.ErrUnsupportedVariant):
		return diag.KindUnsupportedVariant
	case errors.Is(err, errors.ErrReferentialIntegrity):
		return diag.KindReferentialIntegrity
	default:
		return diag.KindMalformedContainer
	}
}

// EmitLibrary encodes a library container, always rebuilding the trailing
// symbol index from the members' exported symbols. Member order is
// preserved; output is deterministic.
func EmitLibrary(lib *ir.Library) ([]byte, error) {
	switch lib.Arch {
	case ir.ArchM68K:
	case ir.ArchPPC:
		return nil, errors.NewUnsupported("library processor", "PPC")
	default:
		return nil, errors.NewUnsupported("library processor", string(lib.Arch))
	}

	images := make([][]byte, len(lib.Members))
	for f := range lib.Members {
		mem := &lib.Members[f]
		if mem.Module == nil {
			return nil, errors.NewMalformed("MWOB library",
				fmt.Sprintf("member %d (%s)", f, mem.Name), "member has no module")
		}
		img, err := EmitObject(mem.Module)
		if err != nil {
			return nil, errors.Wrapf(err, "member %d (%s)", f, mem.Name)
		}
		images[f] = img
	}

	w := cursor.NewWriter()
	w.Uint32(be, LibraryMagic)
	w.Uint32(be, ProcM68K)
	w.Uint32(be, 0) // flags
	w.Uint32(be, lib.Version)
	totalSizeAt := w.Len()
	w.Uint32(be, 0) // total size, patched below
	indexOffsetAt := w.Len()
	w.Uint32(be, 0) // index offset, patched below
	w.Uint32(be, uint32(len(lib.Members)))

	recordsAt := w.Len()
	w.Zero(MemberRecordSize * len(lib.Members))

	for f := range lib.Members {
		mem := &lib.Members[f]
		nameLoc := w.Len()
		w.CString(mem.Name)
		pathLoc := 0
		if mem.Path != "" {
			pathLoc = w.Len()
			w.CString(mem.Path)
		}
		w.Align(4)
		dataStart := w.Len()
		w.Write(images[f])

		at := recordsAt + f*MemberRecordSize
		if err := w.PatchUint32(be, at, ToMacTime(mem.ModDate)); err != nil {
			return nil, err
		}
		if err := w.PatchUint32(be, at+4, uint32(nameLoc)); err != nil {
			return nil, err
		}
		if err := w.PatchUint32(be, at+8, uint32(pathLoc)); err != nil {
			return nil, err
		}
		if err := w.PatchUint32(be, at+12, uint32(dataStart)); err != nil {
			return nil, err
		}
		if err := w.PatchUint32(be, at+16, uint32(len(images[f]))); err != nil {
			return nil, err
		}
	}

	w.Align(4)
	if err := w.PatchUint32(be, indexOffsetAt, uint32(w.Len())); err != nil {
		return nil, err
	}
	if err := emitIndex(w, lib); err != nil {
		return nil, err
	}
	if err := w.PatchUint32(be, totalSizeAt, uint32(w.Len())); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// emitIndex writes the symbol index block: count, sorted entries, then the
// deduplicated name pool the entries point into.
func emitIndex(w *cursor.Writer, lib *ir.Library) error {
	type entry struct {
		name   string
		member int
	}
	var entries []entry
	for f := range lib.Members {
		for _, name := range lib.Members[f].Module.ExportedNames() {
			entries = append(entries, entry{name, f})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].name != entries[j].name {
			return entries[i].name < entries[j].name
		}
		return entries[i].member < entries[j].member
	})

	w.Uint32(be, uint32(len(entries)))
	entriesAt := w.Len()
	w.Zero(8 * len(entries))

	locs := make(map[string]int)
	for _, e := range entries {
		if _, ok := locs[e.name]; !ok {
			locs[e.name] = w.Len()
			w.CString(e.name)
		}
	}
	for i, e := range entries {
		if err := w.PatchUint32(be, entriesAt+8*i, uint32(locs[e.name])); err != nil {
			return err
		}
		if err := w.PatchUint32(be, entriesAt+8*i+4, uint32(e.member)); err != nil {
			return err
		}
	}
	return nil
}
