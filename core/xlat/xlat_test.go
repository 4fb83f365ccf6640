package xlat

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
)

// legacyModule builds a module in the legacy vocabulary: addends live in
// the patch-site bytes, the explicit field is zero.
func legacyModule() *ir.Module {
	code := make([]byte, 16)
	code[2], code[3] = 0xFF, 0xFE // -2 at the 16-bit pc-relative site
	code[8] = 0x00
	code[9], code[10], code[11] = 0x00, 0x00, 0x10 // 16 at the 32-bit site
	return &ir.Module{
		Arch:  ir.ArchM68K,
		Order: ir.BigEndian,
		Sections: []ir.Section{
			{Name: "add", Kind: ir.SectionCode, Align: 4, Data: code, Size: 16},
		},
		Symbols: []ir.Symbol{
			{Name: "add", Binding: ir.BindGlobal, Section: 0, Size: 16},
			{Name: "helper", Binding: ir.BindGlobal, Section: ir.NoSection},
		},
		Relocations: []ir.Relocation{
			{Section: 0, Offset: 2, Symbol: 1, Kind: ir.RelocMWOBCode16},
			{Section: 0, Offset: 8, Symbol: 1, Kind: ir.RelocMWOB32},
		},
	}
}

// TestTranslateLegacyToOpen tests implicit-to-explicit addend movement:
// sign-extended extraction and zero-filled patch sites.
func TestTranslateLegacyToOpen(t *testing.T) {
	src := legacyModule()
	got, err := TranslateRelocations(src, ir.VocabMWOB, ir.VocabELF)
	if err != nil {
		t.Fatalf("TranslateRelocations: %v", err)
	}

	if got.Relocations[0].Kind != ir.RelocELFPC16 || got.Relocations[0].Addend != -2 {
		t.Errorf("relocation 0 = %s addend %d, want R_68K_PC16 addend -2",
			got.Relocations[0].Kind, got.Relocations[0].Addend)
	}
	if got.Relocations[1].Kind != ir.RelocELF32 || got.Relocations[1].Addend != 16 {
		t.Errorf("relocation 1 = %s addend %d, want R_68K_32 addend 16",
			got.Relocations[1].Kind, got.Relocations[1].Addend)
	}
	for _, off := range []int{2, 3, 8, 9, 10, 11} {
		if got.Sections[0].Data[off] != 0 {
			t.Errorf("patch byte %d not zeroed: %#x", off, got.Sections[0].Data[off])
		}
	}

	// The source must be untouched.
	if !reflect.DeepEqual(src, legacyModule()) {
		t.Error("translation mutated its input")
	}
}

// TestTranslateOpenToLegacy tests explicit-to-implicit addend movement and
// that the two directions invert each other.
func TestTranslateOpenToLegacy(t *testing.T) {
	open, err := TranslateRelocations(legacyModule(), ir.VocabMWOB, ir.VocabELF)
	if err != nil {
		t.Fatalf("to open: %v", err)
	}
	back, err := TranslateRelocations(open, ir.VocabELF, ir.VocabMWOB)
	if err != nil {
		t.Fatalf("back to legacy: %v", err)
	}
	if !reflect.DeepEqual(back, legacyModule()) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, legacyModule())
	}
	if !bytes.Equal(back.Sections[0].Data, legacyModule().Sections[0].Data) {
		t.Error("patch bytes not restored")
	}
}

// TestTranslateSameVocabulary tests that a no-op translation still returns
// an independent clone.
func TestTranslateSameVocabulary(t *testing.T) {
	src := legacyModule()
	got, err := TranslateRelocations(src, ir.VocabMWOB, ir.VocabMWOB)
	if err != nil {
		t.Fatalf("TranslateRelocations: %v", err)
	}
	if !reflect.DeepEqual(got, src) {
		t.Error("same-vocabulary translation changed the module")
	}
	got.Sections[0].Data[0] = 0xFF
	if src.Sections[0].Data[0] != 0 {
		t.Error("result shares storage with the source")
	}
}

// TestTranslateFailClosed tests the kinds and conditions that must refuse
// to translate.
func TestTranslateFailClosed(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(m *ir.Module)
		from, to ir.Vocabulary
		want     error
	}{
		{
			"jump-table kind has no counterpart",
			func(m *ir.Module) { m.Relocations[0].Kind = ir.RelocMWOBCodeJT16 },
			ir.VocabMWOB, ir.VocabELF,
			errors.ErrUnsupportedVariant,
		},
		{
			"ambiguous kind has no counterpart",
			func(m *ir.Module) { m.Relocations[0].Kind = ir.RelocMWOBAmbig16 },
			ir.VocabMWOB, ir.VocabELF,
			errors.ErrUnsupportedVariant,
		},
		{
			"kind outside the source vocabulary",
			func(m *ir.Module) { m.Relocations[0].Kind = ir.RelocELF16 },
			ir.VocabMWOB, ir.VocabELF,
			errors.ErrUnsupportedVariant,
		},
		{
			"nonzero xref value word",
			func(m *ir.Module) { m.Relocations[0].Addend = 5 },
			ir.VocabMWOB, ir.VocabELF,
			errors.ErrMalformedContainer,
		},
		{
			"patch range past section end",
			func(m *ir.Module) { m.Relocations[1].Offset = 14 },
			ir.VocabMWOB, ir.VocabELF,
			errors.ErrReferentialIntegrity,
		},
		{
			"section index out of range",
			func(m *ir.Module) { m.Relocations[0].Section = 7 },
			ir.VocabMWOB, ir.VocabELF,
			errors.ErrReferentialIntegrity,
		},
		{
			"relocation into zero-initialized section",
			func(m *ir.Module) {
				m.Sections = append(m.Sections,
					ir.Section{Name: "zeros", Kind: ir.SectionBSS, Align: 4, Size: 8})
				m.Relocations[0].Section = 1
			},
			ir.VocabMWOB, ir.VocabELF,
			errors.ErrMalformedContainer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := legacyModule()
			tt.mutate(m)
			if _, err := TranslateRelocations(m, tt.from, tt.to); !errors.Is(err, tt.want) {
				t.Errorf("TranslateRelocations = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestTranslateAddendOverflow tests the field-fit check on the way into
// the legacy format.
func TestTranslateAddendOverflow(t *testing.T) {
	m := legacyModule()
	m.Relocations = []ir.Relocation{
		{Section: 0, Offset: 2, Symbol: 1, Kind: ir.RelocELFPC16, Addend: 0x9000},
	}
	if _, err := TranslateRelocations(m, ir.VocabELF, ir.VocabMWOB); !errors.Is(err, errors.ErrUnsupportedVariant) {
		t.Errorf("TranslateRelocations = %v, want unsupported variant", err)
	}
}

// TestTranslateEightBitKinds tests that the open format's 8-bit kinds have
// no legacy counterpart.
func TestTranslateEightBitKinds(t *testing.T) {
	for _, kind := range []ir.RelocKind{ir.RelocELF8, ir.RelocELFPC8} {
		m := legacyModule()
		m.Relocations = []ir.Relocation{
			{Section: 0, Offset: 2, Symbol: 1, Kind: kind},
		}
		if _, err := TranslateRelocations(m, ir.VocabELF, ir.VocabMWOB); !errors.Is(err, errors.ErrUnsupportedVariant) {
			t.Errorf("%s: TranslateRelocations = %v, want unsupported variant", kind, err)
		}
	}
}
