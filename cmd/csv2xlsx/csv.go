package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

var encName = "utf-8"

func init() {
	encName = os.Getenv("LANG")
	if i := strings.IndexByte(encName, '.'); i >= 0 {
		encName = strings.ToLower(encName[i+1:])
	}
	if encName == "" || encName == "c" || encName == "posix" {
		encName = "utf-8"
	}
}

func getEncoding(name string) (encoding.Encoding, error) {
	name = strings.ToLower(name)
	if name == "" || name == "utf-8" || name == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		err = fmt.Errorf("%q: %w", name, err)
	}
	return enc, err
}

type csvReadCloser struct {
	*csv.Reader
	io.Closer
}

// openCsv opens fn ("" or "-" is stdin) decoding it from the named charset.
// The separator is the first character of the input that is not part of a
// field name.
func openCsv(fn, charset string) (csvReadCloser, error) {
	enc, err := getEncoding(charset)
	if err != nil {
		return csvReadCloser{}, err
	}
	fh := os.Stdin
	if !(fn == "" || fn == "-") {
		if fh, err = os.Open(fn); err != nil {
			return csvReadCloser{}, err
		}
	}
	r := io.ReadCloser(fh)
	if enc != nil {
		r = struct {
			io.Reader
			io.Closer
		}{enc.NewDecoder().Reader(r), fh}
	}
	br := bufio.NewReaderSize(r, 1<<20)
	b, err := br.Peek(1024)
	if err != nil && len(b) == 0 {
		fh.Close()
		return csvReadCloser{}, err
	}
	cr := csv.NewReader(br)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	cr.Comma = sniffSeparator(b)
	return csvReadCloser{cr, r}, nil
}

func sniffSeparator(b []byte) rune {
	for _, r := range string(b) {
		if r == '"' || r == '_' || r == ' ' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			continue
		}
		if r == '\n' || r == '\r' {
			break
		}
		return r
	}
	return ','
}
