package ir

// types.go - Consolidated IR schema type definitions
// This file contains all core IR (Intermediate Representation) types used
// throughout RetroLink. Both format codecs parse into and emit from these
// types rather than defining their own.

// Arch identifies the target architecture of a module.
type Arch string

// Architecture constants.
const (
	ArchM68K    Arch = "M68K"
	ArchPPC     Arch = "PPC"
	ArchUnknown Arch = "UNKNOWN"
)

// validArchs is the set of recognized architectures.
var validArchs = map[Arch]bool{
	ArchM68K: true,
	ArchPPC:  true,
}

// IsValid returns true if the architecture is recognized.
func (a Arch) IsValid() bool {
	return validArchs[a]
}

// ByteOrder is the byte order a module's container was encoded with.
type ByteOrder string

// Byte order constants.
const (
	BigEndian    ByteOrder = "BE"
	LittleEndian ByteOrder = "LE"
)

// SectionKind classifies a section's contents.
type SectionKind string

// Section kind constants.
const (
	// SectionCode holds executable machine code.
	SectionCode SectionKind = "CODE"

	// SectionData holds initialized data.
	SectionData SectionKind = "DATA"

	// SectionBSS holds zero-initialized data and carries no content bytes.
	SectionBSS SectionKind = "BSS"

	// SectionDebug holds debug metadata.
	SectionDebug SectionKind = "DEBUG"

	// SectionOther holds anything the codecs pass through structurally.
	SectionOther SectionKind = "OTHER"
)

// validSectionKinds is the set of valid section kinds.
var validSectionKinds = map[SectionKind]bool{
	SectionCode:  true,
	SectionData:  true,
	SectionBSS:   true,
	SectionDebug: true,
	SectionOther: true,
}

// IsValid returns true if the section kind is valid.
func (k SectionKind) IsValid() bool {
	return validSectionKinds[k]
}

// Section flags, preserved losslessly through both codecs.
const (
	// FlagFarData marks a legacy far-addressed data section. The ELF codec
	// carries it in a processor-specific sh_flags bit.
	FlagFarData uint32 = 1 << 0
)

// Section is a contiguous block of code or data.
type Section struct {
	// Name is the section name (symbol-derived for the legacy format).
	Name string `json:"name"`

	// Kind classifies the contents.
	Kind SectionKind `json:"kind"`

	// Align is the required alignment, a power of two >= 1.
	Align uint32 `json:"align"`

	// Data is the raw content. Nil for BSS sections.
	Data []byte `json:"data,omitempty"`

	// Size is the section size in bytes. Matches len(Data) for
	// content-bearing kinds; independent for BSS.
	Size uint32 `json:"size"`

	// Flags carries format-neutral section attributes (FlagFarData).
	Flags uint32 `json:"flags,omitempty"`
}

// HasContent reports whether the section kind carries content bytes.
func (s *Section) HasContent() bool {
	return s.Kind != SectionBSS
}

// Binding is a symbol's link-time merge rule.
type Binding string

// Binding constants.
const (
	BindLocal  Binding = "LOCAL"
	BindGlobal Binding = "GLOBAL"
	BindWeak   Binding = "WEAK"
	BindCommon Binding = "COMMON"
)

// validBindings is the set of valid bindings.
var validBindings = map[Binding]bool{
	BindLocal:  true,
	BindGlobal: true,
	BindWeak:   true,
	BindCommon: true,
}

// IsValid returns true if the binding is valid.
func (b Binding) IsValid() bool {
	return validBindings[b]
}

// Exported reports whether the binding participates in a library's symbol
// index (global and weak definitions do; locals and commons do not).
func (b Binding) Exported() bool {
	return b == BindGlobal || b == BindWeak
}

// Visibility is a symbol's cross-module visibility rule.
type Visibility string

// Visibility constants.
const (
	VisDefault Visibility = "DEFAULT"
	VisHidden  Visibility = "HIDDEN"
)

// NoSection is the section index of symbols with no defining section
// (undefined references and commons).
const NoSection = -1

// Symbol is a named or anonymous link-time entity.
type Symbol struct {
	// Name may be empty for local anonymous symbols.
	Name string `json:"name"`

	// Binding is the link-time merge rule.
	Binding Binding `json:"binding"`

	// Visibility is the cross-module visibility (default when empty).
	Visibility Visibility `json:"visibility,omitempty"`

	// Section is the index of the defining section within the module, or
	// NoSection for undefined and common symbols.
	Section int `json:"section"`

	// Value is the offset within the defining section. For common symbols
	// it is unused (commons declare Size and Align instead).
	Value uint32 `json:"value"`

	// Size is the symbol size in bytes, 0 if unknown.
	Size uint32 `json:"size"`

	// Align is the declared alignment for common symbols, 0 otherwise.
	Align uint32 `json:"align,omitempty"`
}

// Defined reports whether the symbol has a defining section.
func (s *Symbol) Defined() bool {
	return s.Section != NoSection
}

// Relocation is an instruction to patch bytes at a section offset using a
// symbol's resolved address.
type Relocation struct {
	// Section is the index of the section being patched.
	Section int `json:"section"`

	// Offset is the byte offset of the patch site within the section.
	Offset uint32 `json:"offset"`

	// Symbol is the index of the referenced symbol within the module.
	Symbol int `json:"symbol"`

	// Kind is the vocabulary-tagged relocation kind.
	Kind RelocKind `json:"kind"`

	// Addend is added to the symbol value before patching. Canonical in
	// the IR regardless of whether the source format stored it explicitly
	// or in the patched bytes.
	Addend int64 `json:"addend"`
}

// TargetMeta carries legacy object-header fields that have no structural
// meaning in the IR but must survive a round trip byte-faithfully.
type TargetMeta struct {
	// Version is the legacy object format version.
	Version uint16 `json:"version,omitempty"`

	// Flags is the legacy object flags word (CFM bits).
	Flags uint16 `json:"flags,omitempty"`

	// OldDefVersion, OldImpVersion and CurrentVersion are the CFM shared
	// library version triple; zero for ordinary object code.
	OldDefVersion  uint32 `json:"old_def_version,omitempty"`
	OldImpVersion  uint32 `json:"old_imp_version,omitempty"`
	CurrentVersion uint32 `json:"current_version,omitempty"`

	// Compiler tuning bytes reserved by the legacy toolchain.
	HasFlags      uint8 `json:"has_flags,omitempty"`
	IsPascal      uint8 `json:"is_pascal,omitempty"`
	IsFourByteInt uint8 `json:"is_fourbyteint,omitempty"`
	IsEightDouble uint8 `json:"is_eightdouble,omitempty"`
	IsMC68881     uint8 `json:"is_mc68881,omitempty"`
	BaseReg       uint8 `json:"basereg,omitempty"`
}

// Module is one compiled translation unit in canonical form.
//
// Modules are constructed only by a parser or by a caller building one
// programmatically; after construction they are treated as immutable value
// data. The relocation translator returns new Modules rather than patching
// its input, so a failed translation cannot corrupt the original.
type Module struct {
	// Name identifies the module (member file name inside a library,
	// caller-chosen otherwise).
	Name string `json:"name"`

	// Arch is the target architecture tag.
	Arch Arch `json:"arch"`

	// Order is the byte order of the source container.
	Order ByteOrder `json:"order"`

	// Sections are the module's sections.
	Sections []Section `json:"sections"`

	// Symbols are the module's symbols.
	Symbols []Symbol `json:"symbols"`

	// Relocations reference exactly one section (the one they patch) and
	// exactly one symbol each. They are kept sorted by (section, offset).
	Relocations []Relocation `json:"relocations,omitempty"`

	// DebugData is an optional opaque debug-record blob (the legacy SYMH
	// routine/type table, carried verbatim).
	DebugData []byte `json:"debug_data,omitempty"`

	// Meta carries legacy header fields needed for faithful re-emission.
	Meta TargetMeta `json:"meta,omitempty"`
}

// SectionRelocations returns the relocations patching section index sec,
// in offset order.
func (m *Module) SectionRelocations(sec int) []Relocation {
	var out []Relocation
	for _, r := range m.Relocations {
		if r.Section == sec {
			out = append(out, r)
		}
	}
	return out
}

// SymbolByName returns the index of the first symbol with the given name,
// or -1 when absent.
func (m *Module) SymbolByName(name string) int {
	for i := range m.Symbols {
		if m.Symbols[i].Name == name {
			return i
		}
	}
	return -1
}

// ExportedNames returns the names of defined global and weak symbols in
// declaration order. These are the names a library index must carry.
func (m *Module) ExportedNames() []string {
	var names []string
	for i := range m.Symbols {
		s := &m.Symbols[i]
		if s.Binding.Exported() && s.Defined() && s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

// Clone returns a deep copy of the module. Translators mutate the clone,
// never the receiver.
func (m *Module) Clone() *Module {
	out := &Module{
		Name:        m.Name,
		Arch:        m.Arch,
		Order:       m.Order,
		Sections:    make([]Section, len(m.Sections)),
		Symbols:     append([]Symbol(nil), m.Symbols...),
		Relocations: append([]Relocation(nil), m.Relocations...),
		Meta:        m.Meta,
	}
	for i, s := range m.Sections {
		out.Sections[i] = s
		if s.Data != nil {
			out.Sections[i].Data = append([]byte(nil), s.Data...)
		}
	}
	if m.DebugData != nil {
		out.DebugData = append([]byte(nil), m.DebugData...)
	}
	return out
}
