package convert

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/FocuswithJustin/RetroLink/core/diag"
	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
	"github.com/FocuswithJustin/RetroLink/core/mwob"
)

// legacyLibrary builds a two-member library with distinct exports.
func legacyLibrary() *ir.Library {
	m1 := legacyObject()
	m1.Name = "add.o"

	m2 := legacyObject()
	m2.Name = "mul.o"
	m2.Sections[0].Name = "mul"
	m2.Symbols[0].Name = "mul"
	m2.Symbols[4].Name = "mulbuf"
	m2.Sections[2].Name = "mulbuf"

	lib := &ir.Library{Arch: ir.ArchM68K, Version: 1}
	lib.AddMember(ir.Member{
		Name: "add.o", Path: "src:lib:add.c", ModDate: mwob.FromMacTime(0x9FE44A60), Module: m1,
	})
	lib.AddMember(ir.Member{
		Name: "mul.o", ModDate: mwob.FromMacTime(0x9FE44A61), Module: m2,
	})
	return lib
}

// memberImages emits each member module as a standalone object image.
func memberImages(t *testing.T, lib *ir.Library) []MemberSource {
	t.Helper()
	members := make([]MemberSource, len(lib.Members))
	for i := range lib.Members {
		img, err := mwob.EmitObject(lib.Members[i].Module)
		if err != nil {
			t.Fatalf("EmitObject member %d: %v", i, err)
		}
		members[i] = MemberSource{Name: lib.Members[i].Name, Data: img}
	}
	return members
}

// TestParseLibraryMembers tests parallel member parsing with preserved
// input order.
func TestParseLibraryMembers(t *testing.T) {
	lib := legacyLibrary()
	members := memberImages(t, lib)

	for _, workers := range []int{0, 1, 4} {
		mods, c, err := ParseLibraryMembers(context.Background(), members,
			Options{Workers: workers})
		if err != nil {
			t.Fatalf("workers=%d: ParseLibraryMembers: %v", workers, err)
		}
		if !c.Empty() {
			t.Fatalf("workers=%d: unexpected diagnostics: %v", workers, c.Diagnostics())
		}
		if len(mods) != 2 || mods[0].Name != "add.o" || mods[1].Name != "mul.o" {
			t.Fatalf("workers=%d: wrong order or count: %+v", workers, mods)
		}
		for i, m := range mods {
			if !reflect.DeepEqual(m, lib.Members[i].Module) {
				t.Errorf("workers=%d: member %d does not match its source", workers, i)
			}
		}
	}
}

// TestParseLibraryMembersBadMember tests that a corrupt member aborts a
// strict batch but only costs one slot in collect mode.
func TestParseLibraryMembersBadMember(t *testing.T) {
	members := memberImages(t, legacyLibrary())
	members[1].Data = append([]byte(nil), members[1].Data...)
	members[1].Data[0] = 0 // smash the object magic

	_, _, err := ParseLibraryMembers(context.Background(), members, Options{Mode: diag.Strict})
	if !errors.Is(err, errors.ErrMalformedContainer) {
		t.Errorf("strict: ParseLibraryMembers = %v, want malformed container", err)
	}
	if err == nil || !strings.Contains(err.Error(), "mul.o") {
		t.Errorf("strict error does not name the member: %v", err)
	}

	mods, c, err := ParseLibraryMembers(context.Background(), members, Options{Mode: diag.Collect})
	if err != nil {
		t.Fatalf("collect: ParseLibraryMembers: %v", err)
	}
	if mods[0] == nil || mods[1] != nil {
		t.Errorf("collect results = [%v %v], want [module nil]", mods[0], mods[1])
	}
	found := false
	for _, d := range c.Diagnostics() {
		if d.Kind == diag.KindMalformedContainer && d.Location == "member 1 (mul.o)" {
			found = true
		}
	}
	if !found {
		t.Errorf("no diagnostic for member 1 in %v", c.Diagnostics())
	}
}

// TestParseLibraryMembersCancelled tests that a cancelled context stops
// the batch.
func TestParseLibraryMembersCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := ParseLibraryMembers(ctx, memberImages(t, legacyLibrary()), Options{})
	if err != context.Canceled {
		t.Errorf("ParseLibraryMembers = %v, want context.Canceled", err)
	}
}

// TestConvertLibrary tests vocabulary translation across all members:
// order and metadata preserved, index rebuilt, source untouched, and the
// reverse direction inverting the forward one.
func TestConvertLibrary(t *testing.T) {
	lib := legacyLibrary()
	open, c, err := ConvertLibrary(context.Background(), lib,
		ir.VocabMWOB, ir.VocabELF, Options{})
	if err != nil {
		t.Fatalf("ConvertLibrary: %v", err)
	}
	if !c.Empty() {
		t.Fatalf("unexpected diagnostics: %v", c.Diagnostics())
	}

	if len(open.Members) != 2 {
		t.Fatalf("member count = %d, want 2", len(open.Members))
	}
	for i := range open.Members {
		got, want := open.Members[i], lib.Members[i]
		if got.Name != want.Name || got.Path != want.Path || !got.ModDate.Equal(want.ModDate) {
			t.Errorf("member %d metadata changed: %+v", i, got)
		}
		for _, r := range got.Module.Relocations {
			if r.Kind.Vocab != ir.VocabELF {
				t.Errorf("member %d still carries %s", i, r.Kind)
			}
		}
	}
	if len(open.Index) != 4 {
		t.Errorf("index has %d entries, want 4", len(open.Index))
	}
	if !reflect.DeepEqual(lib, legacyLibrary()) {
		t.Error("conversion mutated its input")
	}

	back, _, err := ConvertLibrary(context.Background(), open,
		ir.VocabELF, ir.VocabMWOB, Options{})
	if err != nil {
		t.Fatalf("reverse ConvertLibrary: %v", err)
	}
	if !reflect.DeepEqual(back.Members, lib.Members) {
		t.Error("round trip does not reproduce the source members")
	}
}

// TestConvertLibraryBadMember tests that an untranslatable member aborts
// a strict conversion and is dropped with one diagnostic in collect mode.
func TestConvertLibraryBadMember(t *testing.T) {
	lib := legacyLibrary()
	lib.Members[1].Module.Relocations[0].Kind = ir.RelocMWOBCodeJT16

	_, _, err := ConvertLibrary(context.Background(), lib,
		ir.VocabMWOB, ir.VocabELF, Options{Mode: diag.Strict})
	if !errors.Is(err, errors.ErrUnsupportedVariant) {
		t.Errorf("strict: ConvertLibrary = %v, want unsupported variant", err)
	}

	out, c, err := ConvertLibrary(context.Background(), lib,
		ir.VocabMWOB, ir.VocabELF, Options{Mode: diag.Collect})
	if err != nil {
		t.Fatalf("collect: ConvertLibrary: %v", err)
	}
	if len(out.Members) != 1 || out.Members[0].Name != "add.o" {
		t.Errorf("surviving members = %+v, want just add.o", out.Members)
	}
	found := false
	for _, d := range c.Diagnostics() {
		if d.Kind == diag.KindUnsupportedVariant && d.Location == "member 1 (mul.o)" {
			found = true
		}
	}
	if !found {
		t.Errorf("no diagnostic for member 1 in %v", c.Diagnostics())
	}
	for _, e := range out.Index {
		if e.Member != 0 {
			t.Errorf("index entry %q references dropped member %d", e.Name, e.Member)
		}
	}
}
