package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/adnsv/go-xlstream/xl"
)

func TestSniffSeparator(t *testing.T) {
	for in, want := range map[string]rune{
		"a,b,c\n1,2,3":        ',',
		"first name;age\n":    ';',
		"\"quoted\"\tx\n":     '\t',
		"single_column\nnext": ',',
	} {
		if got := sniffSeparator([]byte(in)); got != want {
			t.Errorf("%q: got %q, wanted %q", in, got, want)
		}
	}
}

func TestSheetName(t *testing.T) {
	for _, tc := range []struct {
		fn    string
		index int
		want  string
	}{
		{"-", 1, "Sheet1"},
		{"/tmp/report.csv", 1, "report"},
		{"/tmp/report.csv", 2, "report 2"},
		{"a:b[c].csv", 1, "a_b_c_"},
		{"'.csv", 3, "Sheet3"},
		{"a_very_long_file_name_that_does_not_fit.csv", 12, "a_very_long_file_name_that_d 12"},
	} {
		if got := sheetName(tc.fn, tc.index); got != tc.want {
			t.Errorf("%q/%d: got %q, wanted %q", tc.fn, tc.index, got, tc.want)
		}
	}
}

func TestFieldValue(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want any
	}{
		{"12", xl.Number("12")},
		{" -3.5 ", xl.Number("-3.5")},
		{"0.25", xl.Number("0.25")},
		{"007", "007"},
		{"NaN", "NaN"},
		{"Inf", "Inf"},
		{"abc", "abc"},
		{"", ""},
	} {
		if got := fieldValue(tc.in, true); got != tc.want {
			t.Errorf("%q: got %#v, wanted %#v", tc.in, got, tc.want)
		}
	}
	if got := fieldValue("12", false); got != "12" {
		t.Errorf("got %#v", got)
	}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "fruits.csv")
	if err := os.WriteFile(first, []byte("name;qty\napple;3\npear;007\n\nplum;1.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// árvíztűrő in ISO-8859-2
	second := filepath.Join(dir, "latin2.csv")
	if err := os.WriteFile(second, []byte("word,n\n\xe1rv\xedzt\xfbr\xf5,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config{Freeze: 1, AutoWidth: true, Filter: true, Numbers: true, Concurrent: 2}
	var buf bytes.Buffer
	cfg.Charset = "utf-8"
	if err := convert(context.Background(), &buf, []string{first}, cfg); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := f.GetRows("fruits")
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"name", "qty"}, {"apple", "3"}, {"pear", "007"}, {"plum", "1.5"}}
	if len(rows) != len(want) {
		t.Fatalf("got %q", rows)
	}
	for i := range want {
		if !slices.Equal(rows[i], want[i]) {
			t.Errorf("row %d: got %q, wanted %q", i+1, rows[i], want[i])
		}
	}

	buf.Reset()
	cfg.Charset = "iso-8859-2"
	if err := convert(context.Background(), &buf, []string{second}, cfg); err != nil {
		t.Fatal(err)
	}
	if f, err = excelize.OpenReader(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if v, err := f.GetCellValue("latin2", "A2"); err != nil || v != "árvíztűrő" {
		t.Errorf("got %q (%v)", v, err)
	}
}
