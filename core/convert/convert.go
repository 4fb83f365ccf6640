// Package convert is the engine's public surface: parse, emit, and
// translate operations over raw buffers, plus batched conversion of
// library members.
//
// Every parse is followed by module validation and every emit is
// preceded by it, so callers never receive — or serialize — a module
// whose cross-references have not been checked. The codecs themselves
// stay byte-level; this package owns the policy.
package convert

import (
	"fmt"
	"runtime"

	"github.com/FocuswithJustin/RetroLink/core/cursor"
	"github.com/FocuswithJustin/RetroLink/core/diag"
	"github.com/FocuswithJustin/RetroLink/core/elf"
	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
	"github.com/FocuswithJustin/RetroLink/core/mwob"
	"github.com/FocuswithJustin/RetroLink/core/xlat"
)

// Format identifies a container format by its leading magic.
type Format int

// Container format constants.
const (
	// FormatUnknown means no known magic matched.
	FormatUnknown Format = iota

	// FormatELF is an ELF32 relocatable object.
	FormatELF

	// FormatMWOB is a Metrowerks object image.
	FormatMWOB

	// FormatLibrary is a Metrowerks library container.
	FormatLibrary
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMWOB:
		return "mwob"
	case FormatLibrary:
		return "library"
	default:
		return "unknown"
	}
}

// Options configures conversion behavior. The zero value means strict
// validation and one worker per CPU.
type Options struct {
	// Mode selects strict or collect diagnostics handling.
	Mode diag.Mode

	// Workers bounds the per-member worker pool for batch operations.
	// Zero or negative means runtime.GOMAXPROCS(0).
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// DetectFormat sniffs the container format from the buffer's magic.
func DetectFormat(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}
	switch cursor.BigEndian.Uint32(data) {
	case mwob.ObjectMagic:
		return FormatMWOB
	case mwob.LibraryMagic:
		return FormatLibrary
	}
	if data[0] == 0x7F && data[1] == 'E' && data[2] == 'L' && data[3] == 'F' {
		return FormatELF
	}
	return FormatUnknown
}

// ParseELF decodes an ELF32 object and validates the result.
func ParseELF(data []byte, opts Options) (*ir.Module, *diag.Collector, error) {
	m, err := elf.Parse(data)
	if err != nil {
		return nil, diag.NewCollector(), err
	}
	return validated(m, opts)
}

// ParseMWOB decodes a Metrowerks object and validates the result.
func ParseMWOB(data []byte, opts Options) (*ir.Module, *diag.Collector, error) {
	m, err := mwob.ParseObject(data)
	if err != nil {
		return nil, diag.NewCollector(), err
	}
	return validated(m, opts)
}

// ParseObject sniffs the buffer's format and decodes accordingly.
func ParseObject(data []byte, opts Options) (*ir.Module, Format, *diag.Collector, error) {
	switch f := DetectFormat(data); f {
	case FormatELF:
		m, c, err := ParseELF(data, opts)
		return m, f, c, err
	case FormatMWOB:
		m, c, err := ParseMWOB(data, opts)
		return m, f, c, err
	case FormatLibrary:
		return nil, f, diag.NewCollector(),
			errors.NewUnsupported("container", "library passed to object parser")
	default:
		return nil, f, diag.NewCollector(),
			errors.NewMalformed("object", "header", "no recognized magic")
	}
}

// ParseLibrary decodes a library container, validates every surviving
// member, and merges codec and validation diagnostics.
func ParseLibrary(data []byte, opts Options) (*ir.Library, *diag.Collector, error) {
	lib, c, err := mwob.ParseLibrary(data, opts.Mode)
	if err != nil {
		return nil, c, err
	}
	c.Merge(ir.ValidateLibrary(lib, opts.Mode))
	if opts.Mode == diag.Strict {
		if err := c.Err(); err != nil {
			return nil, c, err
		}
	}
	return lib, c, nil
}

// EmitELF validates a module and encodes it as an ELF32 object. A module
// that fails validation is never emitted, in either mode.
func EmitELF(m *ir.Module, opts Options) ([]byte, *diag.Collector, error) {
	c := ir.Validate(m, opts.Mode)
	if err := c.Err(); err != nil {
		return nil, c, err
	}
	data, err := elf.Emit(m)
	return data, c, err
}

// EmitMWOB validates a module and encodes it as a Metrowerks object.
func EmitMWOB(m *ir.Module, opts Options) ([]byte, *diag.Collector, error) {
	c := ir.Validate(m, opts.Mode)
	if err := c.Err(); err != nil {
		return nil, c, err
	}
	data, err := mwob.EmitObject(m)
	return data, c, err
}

// EmitLibrary validates a library and encodes it, rebuilding the symbol
// index.
func EmitLibrary(lib *ir.Library, opts Options) ([]byte, *diag.Collector, error) {
	c := ir.ValidateLibrary(lib, opts.Mode)
	if err := c.Err(); err != nil {
		return nil, c, err
	}
	data, err := mwob.EmitLibrary(lib)
	return data, c, err
}

// Translate rewrites a module's relocations into the target vocabulary.
// The input module is never mutated.
func Translate(m *ir.Module, from, to ir.Vocabulary) (*ir.Module, error) {
	return xlat.TranslateRelocations(m, from, to)
}

// ConvertObject parses a single object buffer, translates its
// relocations, and emits it in the target format. The source format is
// sniffed from the buffer.
func ConvertObject(data []byte, to Format, opts Options) ([]byte, *diag.Collector, error) {
	m, from, c, err := ParseObject(data, opts)
	if err != nil {
		return nil, c, err
	}

	switch {
	case from == FormatMWOB && to == FormatELF:
		if m, err = Translate(m, ir.VocabMWOB, ir.VocabELF); err != nil {
			return nil, c, err
		}
		out, ec, err := EmitELF(m, opts)
		c.Merge(ec)
		return out, c, err

	case from == FormatELF && to == FormatMWOB:
		if m, err = Translate(m, ir.VocabELF, ir.VocabMWOB); err != nil {
			return nil, c, err
		}
		out, ec, err := EmitMWOB(m, opts)
		c.Merge(ec)
		return out, c, err

	case from == to:
		return nil, c, errors.NewUnsupported("conversion",
			fmt.Sprintf("source and target are both %s", to))
	default:
		return nil, c, errors.NewUnsupported("conversion",
			fmt.Sprintf("%s to %s", from, to))
	}
}

// validated runs module validation after a parse. In strict mode any
// finding aborts; in collect mode the module is returned alongside its
// diagnostics.
func validated(m *ir.Module, opts Options) (*ir.Module, *diag.Collector, error) {
	c := ir.Validate(m, opts.Mode)
	if opts.Mode == diag.Strict {
		if err := c.Err(); err != nil {
			return nil, c, err
		}
	}
	return m, c, nil
}

// kindOf maps an operation error to its diagnostic kind.
func kindOf(err error) diag.Kind {
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
