// Command csv2xlsx streams CSV files into the sheets of an XLSX workbook.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/UNO-SOFT/zlog/v2"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/adnsv/go-xlstream/xl"
)

var verbose zlog.VerboseVar
var logger = zlog.NewLogger(zlog.MaybeConsoleHandler(&verbose, os.Stderr)).SLog()

func main() {
	if err := Main(); err != nil {
		logger.Error("MAIN", "error", err)
		os.Exit(1)
	}
}

type config struct {
	Charset    string
	Out        string
	Inline     bool
	Freeze     int
	AutoWidth  bool
	Filter     bool
	Numbers    bool
	KeepEmpty  bool
	NoHeader   bool
	Concurrent int
}

func Main() error {
	var cfg config
	fs := flag.NewFlagSet("csv2xlsx", flag.ContinueOnError)
	fs.Var(&verbose, "v", "logging verbosity")
	fs.StringVar(&cfg.Charset, "charset", encName, "csv charset name")
	fs.StringVar(&cfg.Out, "o", "", "output file name (default first input file + .xlsx)")
	fs.BoolVar(&cfg.Inline, "inline", false, "write strings inline instead of into the shared strings table")
	fs.IntVar(&cfg.Freeze, "freeze", 1, "number of top rows kept visible")
	fs.BoolVar(&cfg.AutoWidth, "auto-width", true, "size columns after their content")
	fs.BoolVar(&cfg.Filter, "filter", false, "add an auto filter to the header row")
	fs.BoolVar(&cfg.Numbers, "numbers", true, "write numeric fields as numbers")
	fs.BoolVar(&cfg.KeepEmpty, "keep-empty", false, "keep empty lines as empty rows")
	fs.BoolVar(&cfg.NoHeader, "no-header", false, "the first line is data, not a header")
	fs.IntVar(&cfg.Concurrent, "image-fetchers", xl.DefaultImageConcurrency, "concurrent image downloads")

	app := ffcli.Command{Name: "csv2xlsx", FlagSet: fs,
		ShortUsage: "csv2xlsx [flags] file.csv [file2.csv ...]",
		Options:    []ff.Option{ff.WithEnvVarPrefix("CSV2XLSX")},
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				args = []string{"-"}
			}
			out := cfg.Out
			if out == "" && args[0] != "-" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".xlsx"
			}
			var w io.Writer = os.Stdout
			if out != "" && out != "-" {
				fh, err := os.Create(out)
				if err != nil {
					return err
				}
				defer fh.Close()
				w = fh
			}
			if err := convert(ctx, w, args, cfg); err != nil {
				return err
			}
			if fh, ok := w.(*os.File); ok && fh != os.Stdout {
				return fh.Close()
			}
			return nil
		},
	}

	if err := app.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return app.Run(ctx)
}

func convert(ctx context.Context, w io.Writer, files []string, cfg config) error {
	zs, err := xl.NewZipStorage(w, "")
	if err != nil {
		return err
	}
	opts := xl.DefaultOptions()
	opts.AppName = "csv2xlsx"
	opts.InlineStrings = cfg.Inline
	opts.PreserveEmptyRows = cfg.KeepEmpty
	opts.WrapTextOnNewline = true
	opts.ImageConcurrency = cfg.Concurrent
	opts.Logger = logger
	wb := xl.NewWorkbook(zs, opts)

	for i, fn := range files {
		if err := addSheet(ctx, wb, sheetName(fn, i+1), fn, cfg); err != nil {
			wb.Close(ctx)
			zs.Abort()
			return fmt.Errorf("%s: %w", fn, err)
		}
	}
	if err := wb.Close(ctx); err != nil {
		zs.Abort()
		return err
	}
	return zs.Close()
}

var headerStyle = xl.Style{
	Font:            xl.Font{Bold: true},
	BackgroundColor: "FFE6E6E6",
	Border:          xl.BorderThin,
}

func addSheet(ctx context.Context, wb *xl.Workbook, name, fn string, cfg config) error {
	cr, err := openCsv(fn, cfg.Charset)
	if err != nil {
		return err
	}
	defer cr.Close()

	// The first record decides the column count.
	first, err := cr.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	first = slices.Clone(first)

	var sheetOpts xl.SheetOptions
	sheetOpts.Filter = cfg.Filter && !cfg.NoHeader
	if cfg.Freeze > 0 {
		sheetOpts.FreezePane.Rows = cfg.Freeze
	}
	if cfg.AutoWidth {
		sheetOpts.ColumnWidths = make([]xl.ColumnWidth, len(first))
		for i := range sheetOpts.ColumnWidths {
			sheetOpts.ColumnWidths[i] = xl.AutoWidth
		}
	}
	ws, err := wb.AddSheet(ctx, name, sheetOpts)
	if err != nil {
		return err
	}

	header := wb.RegisterStyle(headerStyle)
	line := 0
	for rec := first; rec != nil; {
		line++
		row := xl.Row{Cells: make([]xl.Cell, len(rec))}
		for i, s := range rec {
			row.Cells[i] = xl.NewCell(fieldValue(s, cfg.Numbers && (line > 1 || cfg.NoHeader)))
		}
		if line == 1 && !cfg.NoHeader {
			row.Style = &header
		}
		if err := ws.AddRow(row); err != nil {
			if !errors.Is(err, xl.ErrInvalidArgument) {
				return err
			}
			logger.Warn("row skipped", "file", fn, "line", line, "error", err)
		}

		if rec, err = cr.Read(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}
	}
	logger.Info("sheet written", "name", name, "rows", ws.LastWrittenRowIndex(), "columns", ws.MaxColumns())
	return ws.Close(ctx)
}

func fieldValue(s string, numbers bool) any {
	if numbers {
		if t := strings.TrimSpace(s); t != "" {
			if f, err := strconv.ParseFloat(t, 64); err == nil && !leadingZero(t) &&
				!math.IsNaN(f) && !math.IsInf(f, 0) {
				return xl.Number(t)
			}
		}
	}
	return s
}

// leadingZero reports codes like 007 that would lose their zeros as numbers.
func leadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0' && s[1] != '.'
}

// sheetName derives a valid, unique-per-position sheet name from a file name.
func sheetName(fn string, index int) string {
	if fn == "" || fn == "-" {
		return "Sheet" + strconv.Itoa(index)
	}
	name := strings.TrimSuffix(filepath.Base(fn), filepath.Ext(fn))
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(":\\/?*[]", r) {
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, "'")
	if name == "" {
		return "Sheet" + strconv.Itoa(index)
	}
	suffix := ""
	if index > 1 {
		suffix = " " + strconv.Itoa(index)
	}
	for utf8.RuneCountInString(name)+len(suffix) > 31 {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name + suffix
}
