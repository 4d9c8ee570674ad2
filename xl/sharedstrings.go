package xl

import (
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/quicktemplate"
)

const sharedStringsPath = "xl/sharedStrings.xml"

const (
	sstCountKey = iota
	sstUniqueCountKey
)

// sstCountWidth fits any uint32 count.
const sstCountWidth = 10

// SharedStrings is the workbook-scoped string table. Every newly interned
// string is appended to the sharedStrings part right away; only the
// string → ID index stays in memory.
type SharedStrings struct {
	open    func() (*Stream, error)
	out     *Stream
	ids     map[string]int
	count   int
	patches *PatchTable
	closed  bool
}

func newSharedStrings(open func() (*Stream, error)) *SharedStrings {
	return &SharedStrings{
		open:    open,
		ids:     map[string]int{},
		patches: NewPatchTable(),
	}
}

// Intern returns the ID of s, appending it to the table when it was not
// seen before in this workbook.
func (ss *SharedStrings) Intern(s string) (int, error) {
	ss.count++
	if id, ok := ss.ids[s]; ok {
		return id, nil
	}
	if err := ss.start(); err != nil {
		return 0, err
	}
	id := len(ss.ids)
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	qw := quicktemplate.AcquireWriter(b)
	qw.N().S(`<si><t`)
	if needsSpacePreserve(s) {
		qw.N().S(` xml:space="preserve"`)
	}
	qw.N().S(`>`)
	writeEscaped(qw, s)
	qw.N().S(`</t></si>`)
	quicktemplate.ReleaseWriter(qw)
	if _, err := ss.out.Write(b.B); err != nil {
		return 0, err
	}
	ss.ids[s] = id
	return id, nil
}

// unref takes back n references of a row that was not written.
func (ss *SharedStrings) unref(n int) {
	ss.count -= n
}

// Lookup returns the ID of an interned string.
func (ss *SharedStrings) Lookup(s string) (int, bool) {
	id, ok := ss.ids[s]
	return id, ok
}

// Len is the number of unique strings.
func (ss *SharedStrings) Len() int { return len(ss.ids) }

// Count is the number of string cells that referenced the table.
func (ss *SharedStrings) Count() int { return ss.count }

// Used reports whether the sharedStrings part was created.
func (ss *SharedStrings) Used() bool { return ss.out != nil }

func (ss *SharedStrings) start() error {
	if ss.out != nil {
		return nil
	}
	out, err := ss.open()
	if err != nil {
		return err
	}
	ss.out = out
	out.WriteString(xmlHeader)
	out.WriteString(`<sst xmlns="` + nsSpreadsheetML + `" count="`)
	ss.patches.Reserve(out, sstCountKey, sstCountWidth)
	out.WriteString(`" uniqueCount="`)
	ss.patches.Reserve(out, sstUniqueCountKey, sstCountWidth)
	_, err = out.WriteString(`">`)
	return err
}

// Close terminates the part and fills in the final counts.
func (ss *SharedStrings) Close() error {
	if ss.closed || ss.out == nil {
		ss.closed = true
		return nil
	}
	ss.closed = true
	err := ss.finish()
	if cerr := ss.out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (ss *SharedStrings) finish() error {
	if _, err := ss.out.WriteString(`</sst>`); err != nil {
		return err
	}
	if err := ss.patches.Set(sstCountKey, ss.count); err != nil {
		return err
	}
	if err := ss.patches.Set(sstUniqueCountKey, len(ss.ids)); err != nil {
		return err
	}
	return ss.patches.Apply(ss.out)
}

// abort closes the part stream without terminating it.
func (ss *SharedStrings) abort() {
	ss.closed = true
	if ss.out != nil {
		ss.out.Close()
	}
}
