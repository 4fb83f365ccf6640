// Package diag provides structured diagnostics shared by all codecs.
//
// Parse, emit, translate, and validate operations report problems as
// Diagnostic values collected by a Collector instead of aborting a whole
// batch. The Collector is safe for concurrent append because parallel
// per-member work in a library conversion shares a single collector.
package diag

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Kind classifies a diagnostic by the engine's failure taxonomy.
type Kind string

// Diagnostic kind constants.
const (
	// KindTruncatedInput indicates a buffer shorter than a structure requires.
	KindTruncatedInput Kind = "truncated_input"

	// KindMalformedContainer indicates bad magic, inconsistent self-described
	// sizes, or an index/content mismatch.
	KindMalformedContainer Kind = "malformed_container"

	// KindUnsupportedVariant indicates a recognized but unhandled
	// architecture, relocation kind, or section type.
	KindUnsupportedVariant Kind = "unsupported_variant"

	// KindReferentialIntegrity indicates a reference outside the module's
	// own tables.
	KindReferentialIntegrity Kind = "referential_integrity"

	// KindDuplicateSymbol indicates two global symbols sharing a name
	// within one module.
	KindDuplicateSymbol Kind = "duplicate_symbol"
)

// Mode selects how validation and batch operations react to diagnostics.
type Mode int

const (
	// Strict aborts on the first diagnostic.
	Strict Mode = iota

	// Collect gathers all diagnostics and skips only the offending module.
	Collect
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Collect:
		return "collect"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Diagnostic is a single structural finding with enough location context
// to identify the offending entity.
type Diagnostic struct {
	// Kind classifies the finding.
	Kind Kind `json:"kind"`

	// Location describes where the finding occurred
	// (e.g., "module[2].relocations[4]", "library.index").
	Location string `json:"location"`

	// Message is the human-readable detail.
	Message string `json:"message"`
}

// Error implements the error interface so a single Diagnostic can be
// returned where an error is expected.
func (d Diagnostic) Error() string {
	if d.Location != "" {
		return fmt.Sprintf("%s: %s: %s", d.Kind, d.Location, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Collector accumulates diagnostics. The zero value is not usable; create
// collectors with NewCollector. Append is safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	runID string
	diags []Diagnostic
}

// NewCollector creates a Collector with a fresh run identifier.
func NewCollector() *Collector {
	return &Collector{
		runID: uuid.NewString(),
	}
}

// RunID returns the unique identifier of this collection run.
func (c *Collector) RunID() string {
	return c.runID
}

// Add appends a diagnostic.
func (c *Collector) Add(kind Kind, location, format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, Diagnostic{
		Kind:     kind,
		Location: location,
		Message:  fmt.Sprintf(format, args...),
	})
}

// AddDiagnostic appends an already-built diagnostic.
func (c *Collector) AddDiagnostic(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, d)
}

// Merge appends all diagnostics from another collector.
func (c *Collector) Merge(other *Collector) {
	if other == nil {
		return
	}
	other.mu.Lock()
	copied := append([]Diagnostic(nil), other.diags...)
	other.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, copied...)
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.diags)
}

// Empty reports whether no diagnostics were collected.
func (c *Collector) Empty() bool {
	return c.Len() == 0
}

// Diagnostics returns a copy of the collected diagnostics in append order.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Diagnostic(nil), c.diags...)
}

// Err returns nil when the collector is empty, otherwise an error
// summarizing every diagnostic. Operations use this to satisfy the
// result-or-diagnostics contract without exception-style unwinding.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.diags) == 0 {
		return nil
	}
	if len(c.diags) == 1 {
		return c.diags[0]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d diagnostics:", len(c.diags))
	for _, d := range c.diags {
		sb.WriteString("\n  ")
		sb.WriteString(d.Error())
	}
	return fmt.Errorf("%s", sb.String())
}
