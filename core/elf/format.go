// Package elf implements the open (ELF-style) object codec: parsing ELF32
// relocatable objects into the shared IR and emitting IR modules back out.
//
// Only the relocatable-object subset needed for link-time translation is
// handled: section headers, string tables, a symbol table, and RELA
// relocation sections. Either byte order is accepted; the file's own
// identification byte decides. Anything recognized but outside this subset
// is rejected as an unsupported variant, never skipped.
package elf

// ELF identification constants.
const (
	// MagicLen is the length of the \x7fELF magic.
	MagicLen = 4

	// IdentLen is the length of the e_ident block.
	IdentLen = 16

	// Class32 is the 32-bit file class (the only class handled).
	Class32 = 1

	// Data2LSB marks little-endian encoding.
	Data2LSB = 1

	// Data2MSB marks big-endian encoding.
	Data2MSB = 2

	// EVCurrent is the only defined ELF version.
	EVCurrent = 1
)

// magic is the ELF identification magic.
var magic = [MagicLen]byte{0x7F, 'E', 'L', 'F'}

// e_ident byte indexes.
const (
	idxClass   = 4
	idxData    = 5
	idxVersion = 6
)

// Object file types.
const (
	// TypeRel is a relocatable object file (the only type handled).
	TypeRel = 1
)

// Machine numbers.
const (
	// MachineM68K is Motorola 68000.
	MachineM68K = 4

	// MachinePPC is PowerPC, recognized so it can be reported precisely.
	MachinePPC = 20
)

// Fixed structure sizes for the 32-bit class.
const (
	// HeaderSize is the ELF32 file header size.
	HeaderSize = 52

	// ShentSize is the ELF32 section header entry size. Parsing validates
	// the self-described e_shentsize against this instead of misaligning.
	ShentSize = 40

	// SymSize is the ELF32 symbol table entry size.
	SymSize = 16

	// RelaSize is the ELF32 RELA entry size.
	RelaSize = 12
)

// Section header types.
const (
	ShtNull     = 0
	ShtProgbits = 1
	ShtSymtab   = 2
	ShtStrtab   = 3
	ShtRela     = 4
	ShtNobits   = 8
)

// Section header flags.
const (
	ShfWrite     = 0x1
	ShfAlloc     = 0x2
	ShfExecinstr = 0x4

	// ShfFarData is the processor-specific flag bit (within SHF_MASKPROC)
	// used to round-trip the legacy far-data attribute losslessly.
	ShfFarData = 0x10000000
)

// Symbol bindings (upper nibble of st_info).
const (
	StbLocal  = 0
	StbGlobal = 1
	StbWeak   = 2
)

// Symbol types (lower nibble of st_info).
const (
	SttNotype  = 0
	SttObject  = 1
	SttFunc    = 2
	SttSection = 3
)

// Symbol visibility (st_other).
const (
	StvDefault = 0
	StvHidden  = 2
)

// Special section indexes.
const (
	ShnUndef  = 0
	ShnCommon = 0xFFF2
)

// stInfo packs a binding and type into st_info.
func stInfo(bind, typ int) uint8 {
	return uint8(bind<<4 | typ&0xF)
}

// stBind extracts the binding from st_info.
func stBind(info uint8) int {
	return int(info >> 4)
}

// stType extracts the type from st_info.
func stType(info uint8) int {
	return int(info & 0xF)
}

// relaInfo packs a symbol table index and relocation type into r_info.
func relaInfo(sym, typ uint32) uint32 {
	return sym<<8 | typ&0xFF
}

// relaSym extracts the symbol table index from r_info.
func relaSym(info uint32) uint32 {
	return info >> 8
}

// relaType extracts the relocation type from r_info.
func relaType(info uint32) uint32 {
	return info & 0xFF
}
