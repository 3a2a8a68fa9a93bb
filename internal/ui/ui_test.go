package ui

import (
	"strings"
	"testing"

	"github.com/kokistudios/xlmatch/internal/app"
	"github.com/kokistudios/xlmatch/internal/record"
)

func TestBold_ContainsText(t *testing.T) {
	Init(false)
	result := Bold("hello")
	if !strings.Contains(result, "hello") {
		t.Errorf("Bold output should contain 'hello', got %q", result)
	}
}

func TestColorDisabled_PlainText(t *testing.T) {
	Init(true) // no color
	defer Init(false)

	if Bold("hello") != "hello" {
		t.Errorf("expected plain text when color disabled, got %q", Bold("hello"))
	}
	if Dim("dim") != "dim" {
		t.Errorf("expected plain text, got %q", Dim("dim"))
	}
}

func TestNoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	Init(false)
	defer func() {
		t.Setenv("NO_COLOR", "")
		Init(false)
	}()
	if Bold("x") != "x" {
		t.Errorf("NO_COLOR should disable styling, got %q", Bold("x"))
	}
}

func TestLoggerInitialized(t *testing.T) {
	Init(false)
	if Logger == nil {
		t.Error("Logger should be initialized after Init()")
	}
	SetVerbose(true)
	if Logger.GetLevel().String() != "debug" {
		t.Errorf("expected debug level, got %s", Logger.GetLevel())
	}
	SetVerbose(false)
}

func TestLogo_NoErrors(t *testing.T) {
	Init(false)
	// Logo writes to stderr; just verify no panic
	Logo()
	LogoWithTagline("test tagline")
}

func sheetLines(out string) []string {
	var rows []string
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "│") {
			rows = append(rows, l)
		}
	}
	return rows
}

func TestRenderSheet_FillsToMinRows(t *testing.T) {
	Init(true)
	defer Init(false)

	results := []record.MatchedResult{
		{Record: record.Record{Key: "Carol", Value: "cc"}, ID: "3"},
		{Record: record.Record{Key: "Alice", Value: "aa"}, ID: "1"},
	}
	out := RenderSheet(results, SheetOptions{MinRows: 8, Selected: -1})

	lines := sheetLines(out)
	// header + 8 rows
	if len(lines) != 9 {
		t.Fatalf("expected 9 table lines, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "Name") || !strings.Contains(lines[0], "UID / Value") {
		t.Errorf("header row missing column names: %q", lines[0])
	}
	if !strings.Contains(lines[1], "2") || !strings.Contains(lines[1], "Carol") {
		t.Errorf("first data row should be row 2 with Carol: %q", lines[1])
	}
	if !strings.Contains(lines[2], "3") || !strings.Contains(lines[2], "Alice") {
		t.Errorf("second data row should be row 3 with Alice: %q", lines[2])
	}
	if !strings.Contains(lines[8], "9") {
		t.Errorf("last filler row should be numbered 9: %q", lines[8])
	}
	if strings.Contains(out, EmptyLedgerHint) {
		t.Error("hint should only show for an empty ledger")
	}
}

func TestRenderSheet_GrowsPastMinRows(t *testing.T) {
	Init(true)
	defer Init(false)

	var results []record.MatchedResult
	for range 10 {
		results = append(results, record.MatchedResult{Record: record.Record{Key: "k", Value: "v"}})
	}
	lines := sheetLines(RenderSheet(results, SheetOptions{MinRows: 8, Selected: -1}))
	if len(lines) != 11 {
		t.Errorf("expected header + 10 rows, got %d", len(lines))
	}
}

func TestRenderSheet_EmptyHint(t *testing.T) {
	Init(true)
	defer Init(false)

	out := RenderSheet(nil, SheetOptions{MinRows: 8, KeyHeader: "Who", ValueHeader: "What", Selected: -1})
	if !strings.Contains(out, EmptyLedgerHint) {
		t.Errorf("expected empty hint, got:\n%s", out)
	}
	if !strings.Contains(out, "Who") || !strings.Contains(out, "What") {
		t.Errorf("expected custom headers, got:\n%s", out)
	}
}

func TestStatusMarkdown(t *testing.T) {
	snap := app.Snapshot{
		Status:         app.StatusReady,
		ReferenceCount: 3,
		Results: []record.MatchedResult{
			{Record: record.Record{Key: "A*b", Value: "1"}, ID: "x"},
			{Record: record.Record{Key: "C", Value: "2"}, ID: "y"},
		},
	}
	md := StatusMarkdown(StatusReport{Home: "/tmp/h", Snapshot: snap, Latest: 1})
	for _, want := range []string{"`ready`", "| Reference rows | 3 |", "**A\\*b** → 1", "1 more"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	empty := StatusMarkdown(StatusReport{Snapshot: app.Snapshot{Status: app.StatusEmpty}})
	if !strings.Contains(empty, EmptyLedgerHint) {
		t.Errorf("expected empty hint:\n%s", empty)
	}
}

func TestEscapeAppleScript(t *testing.T) {
	if got := escapeAppleScript(`say "hi" \ bye`); got != `say \"hi\" \\ bye` {
		t.Errorf("unexpected escape: %q", got)
	}
}
