package symdb

import (
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/RetroLink/core/ir"
	"github.com/FocuswithJustin/RetroLink/core/mwob"
)

func testLibrary() *ir.Library {
	module := func(section, global string) *ir.Module {
		return &ir.Module{
			Arch:  ir.ArchM68K,
			Order: ir.BigEndian,
			Sections: []ir.Section{
				{Name: section, Kind: ir.SectionCode, Align: 4, Data: make([]byte, 8), Size: 8},
			},
			Symbols: []ir.Symbol{
				{Name: global, Binding: ir.BindGlobal, Section: 0, Value: 0, Size: 8},
				{Name: global + "_loop", Binding: ir.BindLocal, Section: 0, Value: 4},
				{Name: "helper", Binding: ir.BindGlobal, Section: ir.NoSection},
			},
		}
	}

	lib := &ir.Library{Arch: ir.ArchM68K, Version: 1}
	lib.AddMember(ir.Member{
		Name: "add.o", Path: "src:lib:add.c", ModDate: mwob.FromMacTime(0x9FE44A60),
		Module: module("add", "add"),
	})
	lib.AddMember(ir.Member{
		Name: "mul.o", ModDate: mwob.FromMacTime(0x9FE44A61),
		Module: module("mul", "mul"),
	})
	lib.BuildIndex()
	return lib
}

func TestExportAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.db")

	// Undefined symbols are not rows; two defined per member.
	count, err := Export(path, testLibrary())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if count != 4 {
		t.Errorf("exported %d symbols, want 4", count)
	}

	entries, err := Lookup(path, "add")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Lookup(add) = %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Member != "add.o" || e.Binding != string(ir.BindGlobal) || e.Section != "add" || e.Size != 8 {
		t.Errorf("unexpected entry: %+v", e)
	}

	entries, err = Lookup(path, "helper")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Lookup(helper) = %d entries, want 0 (undefined symbols are skipped)", len(entries))
	}
}

func TestExportReplacesPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.db")
	lib := testLibrary()

	if _, err := Export(path, lib); err != nil {
		t.Fatalf("first Export: %v", err)
	}
	lib.Members = lib.Members[:1]
	count, err := Export(path, lib)
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if count != 2 {
		t.Errorf("exported %d symbols, want 2", count)
	}

	entries, err := Lookup(path, "mul")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("stale rows survived re-export: %+v", entries)
	}
}
