// Command retrolink converts relocatable m68k objects between the
// modern ELF toolchain format and the legacy Metrowerks object and
// library containers. All format logic lives in the core packages; this
// driver only moves buffers.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/RetroLink/core/convert"
	"github.com/FocuswithJustin/RetroLink/core/diag"
	"github.com/FocuswithJustin/RetroLink/core/ir"
	"github.com/FocuswithJustin/RetroLink/internal/archive"
	"github.com/FocuswithJustin/RetroLink/internal/logging"
	"github.com/FocuswithJustin/RetroLink/internal/symdb"
)

const version = "0.1.0"

// CLI defines the command-line interface for retrolink.
var CLI struct {
	// Global flags
	Verbose   bool   `short:"v" help:"Enable debug logging"`
	LogFormat string `enum:"text,json" default:"text" help:"Log output format (text, json)"`

	Convert ConvertCmd `cmd:"" help:"Convert an object or library between formats"`
	Inspect InspectCmd `cmd:"" help:"Summarize an object or library"`
	Index   IndexCmd   `cmd:"" help:"Export a library's symbol index to a SQLite database"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// options builds core conversion options from shared flags.
func options(mode string, workers int) (convert.Options, error) {
	opts := convert.Options{Workers: workers}
	switch mode {
	case "strict":
		opts.Mode = diag.Strict
	case "collect":
		opts.Mode = diag.Collect
	default:
		return opts, fmt.Errorf("unknown mode %q", mode)
	}
	return opts, nil
}

// reportDiagnostics logs collected findings without failing the run.
func reportDiagnostics(input string, c *diag.Collector) {
	if c == nil || c.Empty() {
		return
	}
	logging.Diagnostics(input, c.Len(), "run_id", c.RunID())
	for _, d := range c.Diagnostics() {
		logging.Warn("diagnostic", "kind", string(d.Kind), "location", d.Location, "message", d.Message)
	}
}

// ConvertCmd converts an object or library between formats.
type ConvertCmd struct {
	Path    string `arg:"" help:"Input object or library" type:"existingfile"`
	To      string `required:"" enum:"elf,mwob" help:"Target format (elf, mwob)"`
	Out     string `required:"" help:"Output path (directory for library-to-elf)" type:"path"`
	Mode    string `enum:"strict,collect" default:"strict" help:"Diagnostics mode (strict, collect)"`
	Workers int    `help:"Worker pool size for library members (default: one per CPU)"`
}

func (c *ConvertCmd) Run() error {
	opts, err := options(c.Mode, c.Workers)
	if err != nil {
		return err
	}

	data, err := archive.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	target := convert.FormatELF
	if c.To == "mwob" {
		target = convert.FormatMWOB
	}

	start := time.Now()
	if convert.DetectFormat(data) == convert.FormatLibrary {
		return c.convertLibrary(data, target, opts, start)
	}

	out, diags, err := convert.ConvertObject(data, target, opts)
	reportDiagnostics(c.Path, diags)
	if err != nil {
		return fmt.Errorf("convert %s: %w", c.Path, err)
	}
	if err := archive.WriteFile(c.Out, out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logging.Conversion(c.Path, convert.DetectFormat(data).String(), c.To,
		len(data), len(out), time.Since(start))
	return nil
}

// convertLibrary translates every member and writes either a new library
// or, for the ELF target, one object per member into a directory.
func (c *ConvertCmd) convertLibrary(data []byte, target convert.Format, opts convert.Options, start time.Time) error {
	lib, diags, err := convert.ParseLibrary(data, opts)
	reportDiagnostics(c.Path, diags)
	if err != nil {
		return fmt.Errorf("parse library: %w", err)
	}

	if target == convert.FormatMWOB {
		out, ediags, err := convert.EmitLibrary(lib, opts)
		reportDiagnostics(c.Path, ediags)
		if err != nil {
			return fmt.Errorf("emit library: %w", err)
		}
		if err := archive.WriteFile(c.Out, out); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		logging.Conversion(c.Path, "library", "library", len(data), len(out), time.Since(start))
		return nil
	}

	open, cdiags, err := convert.ConvertLibrary(context.Background(), lib,
		ir.VocabMWOB, ir.VocabELF, opts)
	reportDiagnostics(c.Path, cdiags)
	if err != nil {
		return fmt.Errorf("convert library: %w", err)
	}
	for _, d := range cdiags.Diagnostics() {
		logging.MemberSkipped(c.Path, d.Location, fmt.Errorf("%s", d.Message))
	}

	if err := os.MkdirAll(c.Out, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	written := 0
	for i := range open.Members {
		mem := &open.Members[i]
		img, ediags, err := convert.EmitELF(mem.Module, opts)
		reportDiagnostics(mem.Name, ediags)
		if err != nil {
			return fmt.Errorf("member %d (%s): %w", i, mem.Name, err)
		}
		name := mem.Name
		if name == "" {
			name = fmt.Sprintf("member%d.o", i)
		}
		if err := archive.WriteFile(filepath.Join(c.Out, name), img); err != nil {
			return fmt.Errorf("write member %s: %w", name, err)
		}
		written++
	}
	logging.Conversion(c.Path, "library", "elf", len(data), written, time.Since(start),
		"members", written)
	return nil
}

// InspectCmd summarizes an object or library.
type InspectCmd struct {
	Path string `arg:"" help:"Input object or library" type:"existingfile"`
	Mode string `enum:"strict,collect" default:"collect" help:"Diagnostics mode (strict, collect)"`
}

func (c *InspectCmd) Run() error {
	opts, err := options(c.Mode, 0)
	if err != nil {
		return err
	}

	data, err := archive.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if convert.DetectFormat(data) == convert.FormatLibrary {
		lib, diags, err := convert.ParseLibrary(data, opts)
		reportDiagnostics(c.Path, diags)
		if err != nil {
			return fmt.Errorf("parse library: %w", err)
		}
		fmt.Printf("Library: %s\n", c.Path)
		fmt.Printf("  Architecture: %s\n", lib.Arch)
		fmt.Printf("  Version: %d\n", lib.Version)
		fmt.Printf("  Members: %d\n", len(lib.Members))
		for i := range lib.Members {
			mem := &lib.Members[i]
			fmt.Printf("  [%d] %s (%s)\n", i, mem.Name, mem.ModDate.Format("2006-01-02 15:04:05"))
			if mem.Path != "" {
				fmt.Printf("      Path: %s\n", mem.Path)
			}
			printModuleSummary(mem.Module, "      ")
		}
		fmt.Printf("  Index entries: %d\n", len(lib.Index))
		for _, e := range lib.Index {
			fmt.Printf("    %s -> member %d\n", e.Name, e.Member)
		}
		return nil
	}

	m, f, diags, err := convert.ParseObject(data, opts)
	reportDiagnostics(c.Path, diags)
	if err != nil {
		return fmt.Errorf("parse object: %w", err)
	}
	fmt.Printf("Object: %s\n", c.Path)
	fmt.Printf("  Format: %s\n", f)
	fmt.Printf("  Architecture: %s (%s)\n", m.Arch, m.Order)
	printModuleSummary(m, "  ")
	return nil
}

func printModuleSummary(m *ir.Module, indent string) {
	if m == nil {
		return
	}
	fmt.Printf("%sSections: %d\n", indent, len(m.Sections))
	for i := range m.Sections {
		s := &m.Sections[i]
		name := s.Name
		if name == "" {
			name = "(anonymous)"
		}
		fmt.Printf("%s  [%d] %s %s, %d bytes, align %d\n", indent, i, name, s.Kind, s.Size, s.Align)
	}
	fmt.Printf("%sSymbols: %d\n", indent, len(m.Symbols))
	fmt.Printf("%sRelocations: %d\n", indent, len(m.Relocations))
	fmt.Printf("%sFingerprint: %s\n", indent, m.Fingerprint())
	if len(m.DebugData) > 0 {
		fmt.Printf("%sDebug data: %d bytes\n", indent, len(m.DebugData))
	}
}

// IndexCmd exports a library's symbol index to a SQLite database.
type IndexCmd struct {
	Path string `arg:"" help:"Input library" type:"existingfile"`
	Out  string `required:"" help:"Output database path" type:"path"`
	Mode string `enum:"strict,collect" default:"strict" help:"Diagnostics mode (strict, collect)"`
}

func (c *IndexCmd) Run() error {
	opts, err := options(c.Mode, 0)
	if err != nil {
		return err
	}

	data, err := archive.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if convert.DetectFormat(data) != convert.FormatLibrary {
		return fmt.Errorf("%s is not a library container", c.Path)
	}

	lib, diags, err := convert.ParseLibrary(data, opts)
	reportDiagnostics(c.Path, diags)
	if err != nil {
		return fmt.Errorf("parse library: %w", err)
	}

	count, err := symdb.Export(c.Out, lib)
	if err != nil {
		return fmt.Errorf("export index: %w", err)
	}
	logging.IndexExport(c.Path, c.Out, count)
	fmt.Printf("Exported %d symbols from %d members to %s\n", count, len(lib.Members), c.Out)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("retrolink %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("retrolink"),
		kong.Description("Convert m68k relocatable objects between ELF and Metrowerks formats."),
		kong.UsageOnError(),
	)

	level := logging.LevelInfo
	if CLI.Verbose {
		level = logging.LevelDebug
	}
	format := logging.FormatText
	if CLI.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(level, format)

	ctx.FatalIfErrorf(ctx.Run())
}
