package ir

// kinds.go - Relocation kind vocabularies and structural decompositions.
//
// Each format names its relocation kinds differently, but every kind
// reduces to a (patch width, value transform, signedness) triple. The
// relocation translator matches kinds across formats by that triple alone,
// so adding a kind to either vocabulary automatically extends the
// translator instead of growing a hand-written cross-product table.

import "fmt"

// Vocabulary identifies which format's relocation naming a kind belongs to.
type Vocabulary string

// Vocabulary constants.
const (
	// VocabELF is the open ELF-style vocabulary (R_68K_*).
	VocabELF Vocabulary = "ELF"

	// VocabMWOB is the legacy Metrowerks vocabulary (XREF_* hunks).
	VocabMWOB Vocabulary = "MWOB"
)

// RelocKind is a vocabulary-tagged relocation kind. Code is the format's
// native numeric identifier (ELF r_type, MWOB hunk tag).
type RelocKind struct {
	Vocab Vocabulary `json:"vocab"`
	Code  uint32     `json:"code"`
}

// String returns the kind's conventional name, falling back to the raw code.
func (k RelocKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("%s(%#x)", k.Vocab, k.Code)
}

// Transform is how a relocation's patched value relates to the symbol
// address.
type Transform string

// Transform constants.
const (
	// TransformAbsolute patches the symbol's absolute address.
	TransformAbsolute Transform = "ABSOLUTE"

	// TransformPCRelative patches the displacement from the patch site.
	TransformPCRelative Transform = "PC_RELATIVE"

	// TransformSectionRelative patches the offset from the section base
	// (legacy jump-table references).
	TransformSectionRelative Transform = "SECTION_RELATIVE"
)

// Decomposition characterizes a relocation kind's semantics independent of
// format naming.
type Decomposition struct {
	// WidthBits is the patch width: 8, 16, or 32.
	WidthBits int `json:"width_bits"`

	// Transform is the value transform.
	Transform Transform `json:"transform"`

	// Signed reports whether the patched field is sign-extended.
	Signed bool `json:"signed"`
}

// WidthBytes returns the patch width in bytes.
func (d Decomposition) WidthBytes() int {
	return d.WidthBits / 8
}

// ELF m68k relocation type codes (System V ABI m68k supplement).
const (
	elfR68K32   = 1
	elfR68K16   = 2
	elfR68K8    = 3
	elfR68KPC32 = 4
	elfR68KPC16 = 5
	elfR68KPC8  = 6
)

// MWOB xref hunk tag codes; see core/mwob for the full hunk tag space.
const (
	mwobXRefCodeJT16 = 0x4573
	mwobXRefData16   = 0x4574
	mwobXRef32       = 0x4575
	mwobXRefCode16   = 0x4581
	mwobXRefCode32   = 0x4582
	mwobXRefPCRel32  = 0x4587
	mwobXRefAmbig16  = 0x4595
)

// ELF vocabulary kinds.
var (
	RelocELF32   = RelocKind{VocabELF, elfR68K32}
	RelocELF16   = RelocKind{VocabELF, elfR68K16}
	RelocELF8    = RelocKind{VocabELF, elfR68K8}
	RelocELFPC32 = RelocKind{VocabELF, elfR68KPC32}
	RelocELFPC16 = RelocKind{VocabELF, elfR68KPC16}
	RelocELFPC8  = RelocKind{VocabELF, elfR68KPC8}
)

// MWOB vocabulary kinds.
var (
	RelocMWOB32       = RelocKind{VocabMWOB, mwobXRef32}
	RelocMWOBData16   = RelocKind{VocabMWOB, mwobXRefData16}
	RelocMWOBCode16   = RelocKind{VocabMWOB, mwobXRefCode16}
	RelocMWOBCode32   = RelocKind{VocabMWOB, mwobXRefCode32}
	RelocMWOBPCRel32  = RelocKind{VocabMWOB, mwobXRefPCRel32}
	RelocMWOBCodeJT16 = RelocKind{VocabMWOB, mwobXRefCodeJT16}
	RelocMWOBAmbig16  = RelocKind{VocabMWOB, mwobXRefAmbig16}
)

// decompositions is the authoritative kind table. Two kinds within one
// vocabulary never share a decomposition; reverse lookup depends on it.
var decompositions = map[RelocKind]Decomposition{
	RelocELF32:   {32, TransformAbsolute, false},
	RelocELF16:   {16, TransformAbsolute, false},
	RelocELF8:    {8, TransformAbsolute, false},
	RelocELFPC32: {32, TransformPCRelative, true},
	RelocELFPC16: {16, TransformPCRelative, true},
	RelocELFPC8:  {8, TransformPCRelative, true},

	RelocMWOB32:       {32, TransformAbsolute, false},
	RelocMWOBData16:   {16, TransformAbsolute, false},
	RelocMWOBCode16:   {16, TransformPCRelative, true},
	RelocMWOBCode32:   {32, TransformAbsolute, true},
	RelocMWOBPCRel32:  {32, TransformPCRelative, true},
	RelocMWOBCodeJT16: {16, TransformSectionRelative, true},
	RelocMWOBAmbig16:  {16, TransformSectionRelative, false},
}

// kindNames maps kinds to their conventional names for diagnostics.
var kindNames = map[RelocKind]string{
	RelocELF32:   "R_68K_32",
	RelocELF16:   "R_68K_16",
	RelocELF8:    "R_68K_8",
	RelocELFPC32: "R_68K_PC32",
	RelocELFPC16: "R_68K_PC16",
	RelocELFPC8:  "R_68K_PC8",

	RelocMWOB32:       "XREF_32BIT",
	RelocMWOBData16:   "XREF_DATA16BIT",
	RelocMWOBCode16:   "XREF_CODE16BIT",
	RelocMWOBCode32:   "XREF_CODE32BIT",
	RelocMWOBPCRel32:  "XREF_PCREL32BIT",
	RelocMWOBCodeJT16: "XREF_CODEJT16BIT",
	RelocMWOBAmbig16:  "XREF_AMBIGUOUS16BIT",
}

// Decompose returns the structural decomposition of a kind. The second
// result is false for kinds absent from the table.
func Decompose(k RelocKind) (Decomposition, bool) {
	d, ok := decompositions[k]
	return d, ok
}

// FindKind returns the kind in the given vocabulary whose decomposition
// matches exactly. The second result is false when no kind matches; the
// caller must fail closed, never approximate.
func FindKind(vocab Vocabulary, d Decomposition) (RelocKind, bool) {
	for k, kd := range decompositions {
		if k.Vocab == vocab && kd == d {
			return k, true
		}
	}
	return RelocKind{}, false
}

// KindsOf returns every kind registered for a vocabulary.
func KindsOf(vocab Vocabulary) []RelocKind {
	var out []RelocKind
	for k := range decompositions {
		if k.Vocab == vocab {
			out = append(out, k)
		}
	}
	return out
}
