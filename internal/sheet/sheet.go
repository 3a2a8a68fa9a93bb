// Package sheet reads the first sheet of an uploaded spreadsheet into raw
// rows and writes the result ledger back out as an xlsx workbook.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/kokistudios/xlmatch/internal/record"
)

var (
	// ErrRead means the bytes could not be read at all.
	ErrRead = errors.New("file read failed")
	// ErrUnsupportedFile means the bytes are not a spreadsheet we can parse.
	ErrUnsupportedFile = errors.New("unsupported or corrupt spreadsheet")
)

type format int

const (
	formatUnknown format = iota
	formatXLSX
	formatXLS
	formatCSV
	formatTSV
)

func formatOf(name string) format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return formatXLSX
	case ".xls":
		return formatXLS
	case ".csv":
		return formatCSV
	case ".tsv", ".tab":
		return formatTSV
	default:
		return formatUnknown
	}
}

// Supported reports whether name has an extension Read understands.
func Supported(name string) bool {
	return formatOf(name) != formatUnknown
}

// Read parses the first sheet of the spreadsheet at path.
func Read(path string) ([]record.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer f.Close()
	return ReadFrom(f, filepath.Base(path))
}

// ReadFrom parses a spreadsheet from r. name is only used to pick the format.
func ReadFrom(r io.Reader, name string) ([]record.Row, error) {
	fmtKind := formatOf(name)
	if fmtKind == formatUnknown {
		return nil, fmt.Errorf("%w: %s (expected .xlsx, .xls, .csv or .tsv)", ErrUnsupportedFile, name)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, name, err)
	}

	var rows []record.Row
	switch fmtKind {
	case formatXLSX:
		rows, err = readXLSX(data)
	case formatXLS:
		rows, err = readXLS(data)
	case formatCSV:
		rows, err = readDelimited(data, ',')
	case formatTSV:
		rows, err = readDelimited(data, '\t')
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFile, name, err)
	}
	return rows, nil
}

func readXLSX(data []byte) ([]record.Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	// Raw values keep numbers as written rather than as formatted for display.
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	rows := make([]record.Row, 0, len(raw))
	for i, cols := range raw {
		cols, err = withEmptyStrings(f, sheets[0], i+1, cols)
		if err != nil {
			return nil, err
		}
		rows = append(rows, record.TextRow(cols...))
	}
	return rows, nil
}

// withEmptyStrings extends cols with the trailing cells of row that hold an
// empty string. GetRows drops them, but they are still cells: an exported
// entry with an empty value must read back as a two-cell row.
func withEmptyStrings(f *excelize.File, sheet string, row int, cols []string) ([]string, error) {
	for col := len(cols) + 1; ; col++ {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return nil, err
		}
		typ, err := f.GetCellType(sheet, cell)
		if err != nil {
			return nil, err
		}
		switch typ {
		case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
			cols = append(cols, "")
		default:
			return cols, nil
		}
	}
}

// readXLS reads the first sheet of a legacy BIFF workbook.
func readXLS(data []byte) (rows []record.Row, err error) {
	// The decoder panics on malformed records.
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("malformed workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(ws.MaxRow); i++ {
		row := xlsRow(ws, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		width := row.LastCol()
		if width == 0 {
			// No ROW record: fall back to the last non-empty cell.
			for c := 0; c < maxXLSCols; c++ {
				if row.Col(c) != "" {
					width = c + 1
				}
			}
		}
		cols := make([]string, width)
		for c := range cols {
			cols[c] = row.Col(c)
		}
		rows = append(rows, record.TextRow(trimTrailingEmpty(cols)...))
	}
	return trimTrailingRows(rows), nil
}

// maxXLSCols is the BIFF8 column limit.
const maxXLSCols = 256

// xlsRow returns row i of ws, or nil when the sheet has no cells in it.
func xlsRow(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

func trimTrailingRows(rows []record.Row) []record.Row {
	n := len(rows)
	for n > 0 && len(rows[n-1]) == 0 {
		n--
	}
	return rows[:n]
}

func readDelimited(data []byte, comma rune) ([]record.Row, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows []record.Row
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record.TextRow(trimTrailingEmpty(fields)...))
	}
	return rows, nil
}

// trimTrailingEmpty drops empty trailing fields so a CSV row has the same
// length a spreadsheet row with the same content would.
func trimTrailingEmpty(fields []string) []string {
	n := len(fields)
	for n > 0 && fields[n-1] == "" {
		n--
	}
	return fields[:n]
}

// ExportOptions controls the layout of an exported workbook.
type ExportOptions struct {
	SheetName   string
	KeyHeader   string
	ValueHeader string
}

// DefaultExportOptions returns the built-in sheet name and headers.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		SheetName:   "Matched Results",
		KeyHeader:   "Name",
		ValueHeader: "UID / Value",
	}
}

// Write encodes results as a single-sheet xlsx workbook in ledger order.
func Write(w io.Writer, results []record.MatchedResult, opts ExportOptions) error {
	f := excelize.NewFile()
	defer f.Close()

	name := opts.SheetName
	if name == "" {
		name = DefaultExportOptions().SheetName
	}
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return fmt.Errorf("invalid sheet name %q: %w", name, err)
	}
	if err := f.SetSheetRow(name, "A1", &[]any{opts.KeyHeader, opts.ValueHeader}); err != nil {
		return err
	}
	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &[]any{r.Key, r.Value}); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}
	return nil
}

// ExportFilename names an export taken at now.
func ExportFilename(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "matched_export"
	}
	return fmt.Sprintf("%s_%d.xlsx", prefix, now.UnixMilli())
}

// WriteFile writes results to a timestamped workbook in dir and returns its path.
func WriteFile(dir, prefix string, now time.Time, results []record.MatchedResult, opts ExportOptions) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, ExportFilename(prefix, now))
	var buf bytes.Buffer
	if err := Write(&buf, results, opts); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
