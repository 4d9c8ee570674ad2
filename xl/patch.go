package xl

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PatchTable records fixed-width placeholders written into a stream whose
// final value is only known once the stream is complete.
type PatchTable struct {
	entries map[int]*patch
}

type patch struct {
	offset int64
	width  int
	value  string
	set    bool
}

func NewPatchTable() *PatchTable {
	return &PatchTable{entries: map[int]*patch{}}
}

// Reserve writes a zero placeholder of width bytes to s and records its
// absolute offset under key.
func (pt *PatchTable) Reserve(s *Stream, key, width int) error {
	pt.Record(key, s.Offset(), width)
	_, err := s.WriteString(strings.Repeat("0", width))
	return err
}

// Record registers a placeholder of width bytes at the absolute offset.
func (pt *PatchTable) Record(key int, offset int64, width int) {
	pt.entries[key] = &patch{offset: offset, width: width}
}

// Set assigns the final value of the placeholder recorded under key.
func (pt *PatchTable) Set(key, value int) error {
	p, ok := pt.entries[key]
	if !ok {
		return fmt.Errorf("no placeholder recorded for %d", key)
	}
	v := strconv.Itoa(value)
	if value < 0 || len(v) > p.width {
		return fmt.Errorf("value %d does not fit in %d bytes", value, p.width)
	}
	p.value = strings.Repeat("0", p.width-len(v)) + v
	p.set = true
	return nil
}

// Offset returns the recorded offset of key.
func (pt *PatchTable) Offset(key int) (int64, bool) {
	p, ok := pt.entries[key]
	if !ok {
		return 0, false
	}
	return p.offset, true
}

func (pt *PatchTable) Len() int { return len(pt.entries) }

// Apply overwrites every placeholder that received a value. Each value
// occupies exactly the width of its placeholder, so the length of the
// stream does not change.
func (pt *PatchTable) Apply(w io.WriterAt) error {
	return enumerate(pt.entries, func(key int, p *patch) error {
		if !p.set {
			return nil
		}
		if _, err := w.WriteAt([]byte(p.value), p.offset); err != nil {
			return fmt.Errorf("patch %d at %d: %w", key, p.offset, err)
		}
		return nil
	})
}
