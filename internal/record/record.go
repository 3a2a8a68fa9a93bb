package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrEmptyReferenceData is returned by Normalize when no row qualifies.
var ErrEmptyReferenceData = errors.New("no valid rows found: the first column must have content")

type CellKind uint8

const (
	KindEmpty CellKind = iota
	KindText
	KindNumber
)

// Cell is one raw spreadsheet cell. The zero value is an empty cell.
type Cell struct {
	Kind CellKind
	Text string
	Num  float64
}

func EmptyCell() Cell        { return Cell{} }
func Text(s string) Cell     { return Cell{Kind: KindText, Text: s} }
func Number(f float64) Cell  { return Cell{Kind: KindNumber, Num: f} }
func (c Cell) IsEmpty() bool { return c.Kind == KindEmpty }

// CellFrom converts a JSON-decoded value into a Cell.
func CellFrom(v any) Cell {
	switch x := v.(type) {
	case nil:
		return EmptyCell()
	case Cell:
		return x
	case string:
		return Text(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case bool:
		return Text(strconv.FormatBool(x))
	default:
		return Text(fmt.Sprint(x))
	}
}

// String coerces the cell to text.
func (c Cell) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Row is an ordered sequence of cells as read from one spreadsheet row.
type Row []Cell

// TextRow builds a Row of text cells; "" becomes an empty cell.
func TextRow(values ...string) Row {
	row := make(Row, len(values))
	for i, v := range values {
		if v != "" {
			row[i] = Text(v)
		}
	}
	return row
}

// RowFrom converts a JSON-decoded array into a Row.
func RowFrom(values []any) Row {
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = CellFrom(v)
	}
	return row
}

// Record is one key/value pair of reference data.
type Record struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Signature returns the de-duplication key of the record.
func (r Record) Signature() Signature {
	return Signature{Key: r.Key, Value: r.Value}
}

// Signature identifies a record for ledger membership.
type Signature struct {
	Key   string
	Value string
}

// MatchedResult is a confirmed match held by the ledger.
// ID is only used for removal; duplicates are detected by Signature.
type MatchedResult struct {
	Record
	ID string `json:"id"`
}

// Trim strips leading and trailing whitespace, including a byte order mark.
func Trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\ufeff'
	})
}

// Fold normalizes a search term or field for case-insensitive comparison.
func Fold(s string) string {
	return strings.ToLower(Trim(s))
}

// Normalize turns raw spreadsheet rows into reference records.
// Rows with fewer than two cells, an empty first cell, or a blank key are dropped.
func Normalize(rows []Row) ([]Record, error) {
	var out []Record
	for _, row := range rows {
		if len(row) < 2 || row[0].IsEmpty() {
			continue
		}
		key := Trim(row[0].String())
		if key == "" {
			continue
		}
		out = append(out, Record{
			Key:   key,
			Value: Trim(row[1].String()),
		})
	}
	if len(out) == 0 {
		return nil, ErrEmptyReferenceData
	}
	return out, nil
}
