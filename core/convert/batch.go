package convert

import (
	"context"
	"fmt"
	"sync"

	"github.com/FocuswithJustin/RetroLink/core/diag"
	"github.com/FocuswithJustin/RetroLink/core/errors"
	"github.com/FocuswithJustin/RetroLink/core/ir"
	"github.com/FocuswithJustin/RetroLink/core/mwob"
)

// MemberSource is one named object image for batch parsing.
type MemberSource struct {
	// Name identifies the member in diagnostics.
	Name string

	// Data is the raw object image.
	Data []byte
}

// ParseLibraryMembers parses a batch of object images across a bounded
// worker pool. Results keep the input order: result[i] is the module for
// members[i], nil when that member failed in collect mode. Workers check
// the context between members, so cancellation never leaves a member
// half-parsed — it is either finished or never started.
func ParseLibraryMembers(ctx context.Context, members []MemberSource, opts Options) ([]*ir.Module, *diag.Collector, error) {
	c := diag.NewCollector()
	results := make([]*ir.Module, len(members))
	errs := make([]error, len(members))

	runMembers(ctx, len(members), opts.workers(), func(i int) {
		m, err := mwob.ParseObject(members[i].Data)
		if err != nil {
			errs[i] = err
			return
		}
		m.Name = members[i].Name
		vc := ir.Validate(m, opts.Mode)
		if err := vc.Err(); err != nil && opts.Mode == diag.Strict {
			errs[i] = err
			return
		}
		c.Merge(vc)
		results[i] = m
	})
	if err := ctx.Err(); err != nil {
		return nil, c, err
	}

	for i, err := range errs {
		if err == nil {
			continue
		}
		if opts.Mode == diag.Strict {
			return nil, c, errors.Wrapf(err, "member %d (%s)", i, members[i].Name)
		}
		c.Add(kindOf(err), fmt.Sprintf("member %d (%s)", i, members[i].Name), "%v", err)
	}
	return results, c, nil
}

// ConvertLibrary translates every member module into the target
// vocabulary, fanning the per-member work across a bounded worker pool.
// Member order and metadata are preserved; the returned library's symbol
// index is rebuilt serially after the parallel phase. In collect mode a
// member that cannot translate is dropped with one diagnostic; the
// source library is never mutated.
func ConvertLibrary(ctx context.Context, lib *ir.Library, from, to ir.Vocabulary, opts Options) (*ir.Library, *diag.Collector, error) {
	c := diag.NewCollector()
	translated := make([]*ir.Module, len(lib.Members))
	errs := make([]error, len(lib.Members))

	runMembers(ctx, len(lib.Members), opts.workers(), func(i int) {
		mem := &lib.Members[i]
		if mem.Module == nil {
			errs[i] = errors.NewMalformed("library",
				fmt.Sprintf("member %d", i), "member has no module")
			return
		}
		translated[i], errs[i] = Translate(mem.Module, from, to)
	})
	if err := ctx.Err(); err != nil {
		return nil, c, err
	}

	out := &ir.Library{Arch: lib.Arch, Version: lib.Version}
	for i := range lib.Members {
		if errs[i] != nil {
			if opts.Mode == diag.Strict {
				return nil, c, errors.Wrapf(errs[i], "member %d (%s)", i, lib.Members[i].Name)
			}
			c.Add(kindOf(errs[i]),
				fmt.Sprintf("member %d (%s)", i, lib.Members[i].Name), "%v", errs[i])
			continue
		}
		out.AddMember(ir.Member{
			Name:    lib.Members[i].Name,
			Path:    lib.Members[i].Path,
			ModDate: lib.Members[i].ModDate,
			Module:  translated[i],
		})
	}
	out.BuildIndex()
	return out, c, nil
}

// runMembers fans fn out over item indices with a bounded worker pool.
// Each worker re-checks the context before taking another index, so a
// cancelled batch stops between members rather than mid-member.
func runMembers(ctx context.Context, items, workers int, fn func(i int)) {
	if workers > items {
		workers = items
	}
	if workers < 1 {
		workers = 1
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if ctx.Err() != nil {
					return
				}
				fn(i)
			}
		}()
	}

	for i := 0; i < items; i++ {
		if ctx.Err() != nil {
			break
		}
		indices <- i
	}
	close(indices)
	wg.Wait()
}
