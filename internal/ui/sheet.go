package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kokistudios/xlmatch/internal/record"
)

// EmptyLedgerHint is shown under an empty result table.
const EmptyLedgerHint = "No matches yet. Search above or import a batch file."

// SheetOptions controls RenderSheet.
type SheetOptions struct {
	KeyHeader   string
	ValueHeader string
	// MinRows pads the table with blank rows so it always looks like a sheet.
	MinRows int
	// Selected highlights one data row; -1 for none.
	Selected int
}

// RenderSheet draws results as a spreadsheet: a gutter of row numbers
// starting at 2 (row 1 holds the headers), then key and value columns.
func RenderSheet(results []record.MatchedResult, opts SheetOptions) string {
	if opts.KeyHeader == "" {
		opts.KeyHeader = "Name"
	}
	if opts.ValueHeader == "" {
		opts.ValueHeader = "UID / Value"
	}

	n := max(len(results), opts.MinRows)
	rows := make([][]string, 0, n)
	for i := range n {
		row := []string{strconv.Itoa(i + 2), "", ""}
		if i < len(results) {
			row[1], row[2] = results[i].Key, results[i].Value
		}
		rows = append(rows, row)
	}

	selected := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14")).PaddingLeft(1).PaddingRight(1)
	cell := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(gridStyle).
		Headers("1", opts.KeyHeader, opts.ValueHeader).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case col == 0:
				return gutterStyle
			case row == table.HeaderRow:
				return columnStyle
			case row == opts.Selected && row < len(results):
				return selected
			default:
				return cell
			}
		})

	out := t.String()
	if len(results) == 0 {
		out += "\n" + dimStyle.Render("  "+EmptyLedgerHint)
	}
	return out
}
