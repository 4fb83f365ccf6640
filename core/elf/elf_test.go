package elf

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
)

// canonicalModule builds a module already in canonical form: locals before
// globals, relocations sorted by (section, offset).
func canonicalModule() *ir.Module {
	code := make([]byte, 16)
	code[0], code[1] = 0x4E, 0x56 // link a6,#
	return &ir.Module{
		Arch:  ir.ArchM68K,
		Order: ir.BigEndian,
		Sections: []ir.Section{
			{Name: ".text", Kind: ir.SectionCode, Align: 4, Data: code, Size: 16},
			{Name: ".data", Kind: ir.SectionData, Align: 4, Data: []byte{1, 2, 3, 4}, Size: 4},
			{Name: ".bss", Kind: ir.SectionBSS, Align: 4, Size: 32},
		},
		Symbols: []ir.Symbol{
			{Name: "loop", Binding: ir.BindLocal, Section: 0, Value: 8},
			{Name: "entry", Binding: ir.BindGlobal, Section: 0, Value: 0, Size: 16},
			{Name: "table", Binding: ir.BindWeak, Section: 1, Value: 0, Size: 4},
			{Name: "helper", Binding: ir.BindGlobal, Section: ir.NoSection},
			{Name: "shared", Binding: ir.BindCommon, Section: ir.NoSection, Size: 64, Align: 4},
		},
		Relocations: []ir.Relocation{
			{Section: 0, Offset: 2, Symbol: 3, Kind: ir.RelocELFPC16, Addend: -2},
			{Section: 0, Offset: 8, Symbol: 2, Kind: ir.RelocELF32, Addend: 0},
			{Section: 1, Offset: 0, Symbol: 1, Kind: ir.RelocELF32, Addend: 4},
		},
	}
}

// TestRoundTrip tests that parsing the emitter's own output reproduces a
// canonical module exactly, in both byte orders.
func TestRoundTrip(t *testing.T) {
	for _, order := range []ir.ByteOrder{ir.BigEndian, ir.LittleEndian} {
		t.Run(string(order), func(t *testing.T) {
			m := canonicalModule()
			m.Order = order

			data, err := Emit(m)
			if err != nil {
				t.Fatalf("Emit: %v", err)
			}
			got, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(got, m) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, m)
			}
		})
	}
}

// TestRoundTripDebugBlob tests that the opaque debug blob survives a round
// trip without surfacing as an IR section.
func TestRoundTripDebugBlob(t *testing.T) {
	m := canonicalModule()
	m.DebugData = []byte{0x53, 0x59, 0x4D, 0x48, 1, 2, 3}

	data, err := Emit(m)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(got.DebugData, m.DebugData) {
		t.Errorf("debug blob = %x, want %x", got.DebugData, m.DebugData)
	}
	for _, s := range got.Sections {
		if s.Name == DebugSectionName {
			t.Errorf("debug carrier surfaced as section %q", s.Name)
		}
	}
}

// TestRoundTripFarData tests that the far-data section flag survives via
// the processor-specific header bit.
func TestRoundTripFarData(t *testing.T) {
	m := canonicalModule()
	m.Sections[1].Flags = ir.FlagFarData

	data, err := Emit(m)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Sections[1].Flags&ir.FlagFarData == 0 {
		t.Error("far-data flag lost in round trip")
	}
}

// TestEmitPartitionsLocalsFirst tests that a non-canonical symbol order is
// emitted locals first and relocation references follow the moved symbols.
func TestEmitPartitionsLocalsFirst(t *testing.T) {
	m := &ir.Module{
		Arch:  ir.ArchM68K,
		Order: ir.BigEndian,
		Sections: []ir.Section{
			{Name: ".text", Kind: ir.SectionCode, Align: 2, Data: make([]byte, 8), Size: 8},
		},
		Symbols: []ir.Symbol{
			{Name: "entry", Binding: ir.BindGlobal, Section: 0, Size: 8},
			{Name: "loop", Binding: ir.BindLocal, Section: 0, Value: 4},
		},
		Relocations: []ir.Relocation{
			{Section: 0, Offset: 0, Symbol: 0, Kind: ir.RelocELF32},
		},
	}

	data, err := Emit(m)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Symbols[0].Name != "loop" || got.Symbols[1].Name != "entry" {
		t.Fatalf("symbol order = %q, %q; want locals first", got.Symbols[0].Name, got.Symbols[1].Name)
	}
	if got.Relocations[0].Symbol != 1 {
		t.Errorf("relocation symbol = %d, want 1 (remapped with its target)", got.Relocations[0].Symbol)
	}
}

// TestParseRejections tests the header-level rejections: magic, class, data
// encoding, machine, and self-described entry sizes.
func TestParseRejections(t *testing.T) {
	base, err := Emit(canonicalModule())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(d []byte)
		want   error
	}{
		{"bad magic", func(d []byte) { d[0] = 0x7E }, errors.ErrMalformedContainer},
		{"bad class", func(d []byte) { d[idxClass] = 2 }, errors.ErrUnsupportedVariant},
		{"bad data encoding", func(d []byte) { d[idxData] = 3 }, errors.ErrMalformedContainer},
		{"bad version", func(d []byte) { d[idxVersion] = 2 }, errors.ErrUnsupportedVariant},
		{"wrong type", func(d []byte) { d[16], d[17] = 0, 2 }, errors.ErrUnsupportedVariant},
		{"machine ppc", func(d []byte) { d[18], d[19] = 0, MachinePPC }, errors.ErrUnsupportedVariant},
		{"unknown machine", func(d []byte) { d[18], d[19] = 0, 62 }, errors.ErrUnsupportedVariant},
		{"bad shentsize", func(d []byte) { d[46], d[47] = 0, 41 }, errors.ErrUnsupportedVariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(nil), base...)
			tt.mutate(data)
			_, err := Parse(data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestParseRejectsUnknownVisibility tests that st_other classes without an
// IR counterpart (internal, protected) fail closed instead of being read
// as default visibility.
func TestParseRejectsUnknownVisibility(t *testing.T) {
	data, err := Emit(canonicalModule())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	shoff := binary.BigEndian.Uint32(data[32:36])
	shnum := binary.BigEndian.Uint16(data[48:50])
	var symOff uint32
	for i := 0; i < int(shnum); i++ {
		h := shoff + uint32(i)*ShentSize
		if binary.BigEndian.Uint32(data[h+4:]) == ShtSymtab {
			symOff = binary.BigEndian.Uint32(data[h+16:])
		}
	}
	if symOff == 0 {
		t.Fatal("no symbol table in output")
	}
	// st_other of the first real symbol, past the null entry.
	data[symOff+SymSize+13] = 3 // STV_PROTECTED

	if _, err := Parse(data); !errors.Is(err, errors.ErrUnsupportedVariant) {
		t.Errorf("Parse = %v, want unsupported variant", err)
	}
}

// TestParseRejectsUnknownRelocationType tests that an unrecognized r_type
// fails closed instead of being skipped.
func TestParseRejectsUnknownRelocationType(t *testing.T) {
	m := canonicalModule()
	m.Relocations = m.Relocations[:1]
	m.Relocations[0].Addend = 0x11223344

	data, err := Emit(m)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	// The addend locates the RELA entry; r_info sits just before it.
	marker := []byte{0x11, 0x22, 0x33, 0x44}
	at := bytes.Index(data, marker)
	if at < 8 {
		t.Fatalf("relocation entry not found in output")
	}
	data[at-1] = 0x63 // low byte of r_info holds r_type

	if _, err := Parse(data); !errors.Is(err, errors.ErrUnsupportedVariant) {
		t.Errorf("Parse = %v, want unsupported variant", err)
	}
}

// TestParseTruncated tests that every proper prefix of a valid object fails
// with an error rather than panicking or succeeding.
func TestParseTruncated(t *testing.T) {
	data, err := Emit(canonicalModule())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	for n := 0; n < len(data); n++ {
		if _, err := Parse(data[:n]); err == nil {
			t.Fatalf("Parse of %d-byte prefix (of %d) succeeded", n, len(data))
		}
	}
}

// TestEmitRejections tests emit-side fail-closed behavior: foreign
// relocation vocabularies, unknown kinds, oversized addends, and broken
// references.
func TestEmitRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *ir.Module)
		want   error
	}{
		{
			"mwob vocabulary kind",
			func(m *ir.Module) { m.Relocations[0].Kind = ir.RelocMWOB32 },
			errors.ErrUnsupportedVariant,
		},
		{
			"unknown elf kind",
			func(m *ir.Module) { m.Relocations[0].Kind = ir.RelocKind{Vocab: ir.VocabELF, Code: 0x63} },
			errors.ErrUnsupportedVariant,
		},
		{
			"addend overflow",
			func(m *ir.Module) { m.Relocations[0].Addend = 1 << 40 },
			errors.ErrUnsupportedVariant,
		},
		{
			"relocation section out of range",
			func(m *ir.Module) { m.Relocations[0].Section = 9 },
			errors.ErrReferentialIntegrity,
		},
		{
			"relocation symbol out of range",
			func(m *ir.Module) { m.Relocations[0].Symbol = 9 },
			errors.ErrReferentialIntegrity,
		},
		{
			"symbol section out of range",
			func(m *ir.Module) { m.Symbols[0].Section = 9 },
			errors.ErrReferentialIntegrity,
		},
		{
			"ppc module",
			func(m *ir.Module) { m.Arch = ir.ArchPPC },
			errors.ErrUnsupportedVariant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := canonicalModule()
			tt.mutate(m)
			if _, err := Emit(m); !errors.Is(err, tt.want) {
				t.Errorf("Emit = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestEmitDeterministic tests byte-for-byte stable output.
func TestEmitDeterministic(t *testing.T) {
	a, err := Emit(canonicalModule())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	b, err := Emit(canonicalModule())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two emissions of the same module differ")
	}
}
