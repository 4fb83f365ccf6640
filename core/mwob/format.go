// Package mwob implements the legacy Metrowerks object codec: parsing MWOB
// object images and library containers into the shared IR and emitting IR
// modules and libraries back out.
//
// Everything in this format is big-endian. An object image is a 64-byte
// header, a hunk stream, a name table, and an optional opaque debug table.
// A library is a header, member records, member object images, and a
// trailing symbol index. Reserved hunk tags are rejected loudly; nothing
// is skipped on a guess.
package mwob

// ObjectMagic is the object header magic word.
const ObjectMagic = 0xFEEDBEAD

// ObjectHeaderSize is the fixed object header size.
const ObjectHeaderSize = 64

// SymMagic is the magic leading the opaque debug (symbol) table, "SYMH".
const SymMagic = 0x53594D48

// Object header flag bits.
const (
	ObjFlagCFM          = 0x0001
	ObjFlagCFMSharedLib = 0x0002
	ObjFlagWeakImport   = 0x0004
	ObjFlagInitBefore   = 0x0008
)

// Hunk stream tags. The stream opens with hunkStart, closes with hunkEnd,
// and carries one record per tag in between. Tag numbering is contiguous
// from hunkStart; the relocation tags also appear in the IR's MWOB
// relocation vocabulary.
const (
	hunkStart           uint16 = 0x4567 + iota // no payload
	hunkEnd                                    // no payload
	hunkLocalCode                              // name, size, debug links, code
	hunkGlobalCode                             // name, size, debug links, code
	hunkLocalUData                             // name, size, debug links
	hunkGlobalUData                            // name, size, debug links
	hunkLocalIData                             // name, size, debug links, data
	hunkGlobalIData                            // name, size, debug links, data
	hunkLocalFarUData                          // far-addressed variants of the above
	hunkGlobalFarUData
	hunkLocalFarIData
	hunkGlobalFarIData
	hunkXRefCodeJT16 // relocation hunks: name, pair count, pairs
	hunkXRefData16
	hunkXRef32
	hunkLibraryBreak // reserved
	hunkGlobalEntry  // name, offset into the preceding hunk
	hunkLocalEntry
	hunkDiff8  // reserved
	hunkDiff16 // reserved
	hunkDiff32 // reserved
	hunkSegment
	hunkInitCode
	hunkDeInitCode // reserved
	hunkMultiDefGlobal
	hunkOverloadGlobal
	hunkXRefCode16
	hunkXRefCode32
	hunkForceActive // reserved
	hunkGlobalDataPointer
	hunkGlobalXPointer
	hunkGlobalXVector
	hunkXRefPCRel32
	hunkIllegal1 // reserved
	hunkIllegal2 // reserved
	hunkCFMExport
	hunkCFMImport
	hunkCFMImportContainer
	hunkSrcBreak
	hunkLocalDataPointer
	hunkLocalXPointer
	hunkLocalXVector
	hunkExceptionInfo
	hunkCFMInternal // reserved
	hunkMethodRef
	hunkMethodClassDef
	hunkXRefAmbiguous16
	hunkWeakImportContainer
)

// noDebugLink is the sym_offset value marking a hunk with no debug-table
// cross reference.
const noDebugLink = 0x80000000

// hunkNames names the tags this codec can encounter, for diagnostics.
var hunkNames = map[uint16]string{
	hunkStart:               "HUNK_START",
	hunkEnd:                 "HUNK_END",
	hunkLocalCode:           "HUNK_LOCAL_CODE",
	hunkGlobalCode:          "HUNK_GLOBAL_CODE",
	hunkLocalUData:          "HUNK_LOCAL_UDATA",
	hunkGlobalUData:         "HUNK_GLOBAL_UDATA",
	hunkLocalIData:          "HUNK_LOCAL_IDATA",
	hunkGlobalIData:         "HUNK_GLOBAL_IDATA",
	hunkLocalFarUData:       "HUNK_LOCAL_FARUDATA",
	hunkGlobalFarUData:      "HUNK_GLOBAL_FARUDATA",
	hunkLocalFarIData:       "HUNK_LOCAL_FARIDATA",
	hunkGlobalFarIData:      "HUNK_GLOBAL_FARIDATA",
	hunkXRefCodeJT16:        "HUNK_XREF_CODEJT16BIT",
	hunkXRefData16:          "HUNK_XREF_DATA16BIT",
	hunkXRef32:              "HUNK_XREF_32BIT",
	hunkLibraryBreak:        "HUNK_LIBRARY_BREAK",
	hunkGlobalEntry:         "HUNK_GLOBAL_ENTRY",
	hunkLocalEntry:          "HUNK_LOCAL_ENTRY",
	hunkDiff8:               "HUNK_DIFF_8BIT",
	hunkDiff16:              "HUNK_DIFF_16BIT",
	hunkDiff32:              "HUNK_DIFF_32BIT",
	hunkSegment:             "HUNK_SEGMENT",
	hunkInitCode:            "HUNK_INIT_CODE",
	hunkDeInitCode:          "HUNK_DEINIT_CODE",
	hunkMultiDefGlobal:      "HUNK_MULTIDEF_GLOBAL",
	hunkOverloadGlobal:      "HUNK_OVERLOAD_GLOBAL",
	hunkXRefCode16:          "HUNK_XREF_CODE16BIT",
	hunkXRefCode32:          "HUNK_XREF_CODE32BIT",
	hunkForceActive:         "HUNK_FORCE_ACTIVE",
	hunkGlobalDataPointer:   "HUNK_GLOBAL_DATAPOINTER",
	hunkGlobalXPointer:      "HUNK_GLOBAL_XPOINTER",
	hunkGlobalXVector:       "HUNK_GLOBAL_XVECTOR",
	hunkXRefPCRel32:         "HUNK_XREF_PCREL32BIT",
	hunkIllegal1:            "HUNK_ILLEGAL1",
	hunkIllegal2:            "HUNK_ILLEGAL2",
	hunkCFMExport:           "HUNK_CFM_EXPORT",
	hunkCFMImport:           "HUNK_CFM_IMPORT",
	hunkCFMImportContainer:  "HUNK_CFM_IMPORT_CONTAINER",
	hunkSrcBreak:            "HUNK_SRC_BREAK",
	hunkLocalDataPointer:    "HUNK_LOCAL_DATAPOINTER",
	hunkLocalXPointer:       "HUNK_LOCAL_XPOINTER",
	hunkLocalXVector:        "HUNK_LOCAL_XVECTOR",
	hunkExceptionInfo:       "HUNK_EXCEPTION_INFO",
	hunkCFMInternal:         "HUNK_CFM_INTERNAL",
	hunkMethodRef:           "HUNK_METHOD_REF",
	hunkMethodClassDef:      "HUNK_METHOD_CLASS_DEF",
	hunkXRefAmbiguous16:     "HUNK_XREF_AMBIGUOUS16BIT",
	hunkWeakImportContainer: "HUNK_WEAK_IMPORT_CONTAINER",
}

// hunkName returns the conventional tag name or the raw value.
func hunkName(tag uint16) string {
	if n, ok := hunkNames[tag]; ok {
		return n
	}
	return "unknown"
}

// Library container constants.
const (
	// LibraryMagic is 'MWOB'.
	LibraryMagic = 0x4D574F42

	// ProcM68K is the 'M68K' processor tag.
	ProcM68K = 0x4D36384B

	// ProcPPC is the 'PPC ' processor tag, recognized so it can be
	// reported precisely.
	ProcPPC = 0x50504320

	// LibraryHeaderSize is the fixed library header size, up to the first
	// member record.
	LibraryHeaderSize = 28

	// MemberRecordSize is the size of one member record.
	MemberRecordSize = 20
)
