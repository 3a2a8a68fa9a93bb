package ui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kokistudios/xlmatch/internal/app"
	"github.com/kokistudios/xlmatch/internal/record"
)

// SearchOptions configures the live search screen.
type SearchOptions struct {
	Sheet     SheetOptions
	ExportDir string
}

type flashKind int

const (
	flashInfo flashKind = iota
	flashOK
	flashWarn
	flashErr
)

// searchModel drives app.App from a single text input. Every keystroke
// recomputes the preview; enter confirms it into the result list.
type searchModel struct {
	app     *app.App
	opts    SearchOptions
	input   textinput.Model
	preview *record.Record
	cursor  int

	flash     string
	flashKind flashKind
	quitting  bool
}

func newSearchModel(a *app.App, opts SearchOptions) searchModel {
	ti := textinput.New()
	ti.Placeholder = "type a name or value"
	ti.Prompt = "Search › "
	ti.CharLimit = 256
	ti.Width = 48
	ti.Focus()
	return searchModel{app: a, opts: opts, input: ti, cursor: -1}
}

func (m searchModel) Init() tea.Cmd { return textinput.Blink }

func (m searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			m.confirm()
			return m, nil
		case "up":
			if m.cursor > -1 {
				m.cursor--
			}
			return m, nil
		case "down":
			if m.cursor < len(m.app.Results())-1 {
				m.cursor++
			}
			return m, nil
		case "ctrl+d", "delete":
			m.remove()
			return m, nil
		case "ctrl+x":
			m.clear()
			return m, nil
		case "ctrl+e":
			m.export()
			return m, nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.setPreview(m.app.Preview(v))
	}
	return m, cmd
}

func (m *searchModel) setPreview(r record.Record, ok bool) {
	m.preview = nil
	if ok {
		m.preview = &r
	}
}

func (m *searchModel) say(kind flashKind, format string, args ...any) {
	m.flashKind = kind
	m.flash = fmt.Sprintf(format, args...)
}

func (m *searchModel) confirm() {
	res := m.app.ConfirmPreview()
	m.input.Reset()
	m.preview = nil
	switch {
	case !res.Found:
		if m.app.Status() == app.StatusEmpty {
			m.say(flashWarn, "No reference data loaded. Run `xlmatch load <file>` first.")
		} else {
			m.say(flashWarn, "Nothing to add.")
		}
	case res.Inserted:
		m.say(flashOK, "Added %s → %s", res.Match.Key, res.Match.Value)
	default:
		m.say(flashInfo, "%s is already in the list.", res.Match.Key)
	}
}

func (m *searchModel) remove() {
	results := m.app.Results()
	if m.cursor < 0 || m.cursor >= len(results) {
		m.say(flashInfo, "Select a row with ↑/↓ first.")
		return
	}
	target := results[m.cursor]
	if m.app.Remove(target.ID) {
		m.say(flashOK, "Removed %s.", target.Key)
	}
	if m.cursor >= len(results)-1 {
		m.cursor = len(results) - 2
	}
}

func (m *searchModel) clear() {
	err := m.app.RequestClear()
	switch {
	case errors.Is(err, app.ErrConfirmationRequired):
		m.say(flashWarn, "Press ctrl+x again to clear every result.")
	case err != nil:
		m.say(flashErr, "%v", err)
	default:
		m.cursor = -1
		m.say(flashOK, "Result list cleared.")
	}
}

func (m *searchModel) export() {
	path, err := m.app.ExportFile(m.opts.ExportDir)
	if err != nil {
		m.say(flashErr, "%v", err)
		return
	}
	m.say(flashOK, "Exported to %s", path)
}

func (m searchModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	snap := m.app.Snapshot()
	b.WriteString(accentStyle.Render("xlmatch"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %s · %d reference rows · %d results", snap.Status, snap.ReferenceCount, len(snap.Results))))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	switch {
	case m.preview != nil:
		b.WriteString(successStyle.Render("  Match: "))
		b.WriteString(boldStyle.Render(m.preview.Key))
		b.WriteString(dimStyle.Render(" → "))
		b.WriteString(m.preview.Value)
		b.WriteString(dimStyle.Render("   enter to add"))
	case strings.TrimSpace(m.input.Value()) != "":
		b.WriteString(dimStyle.Render("  No match"))
	}
	b.WriteString("\n\n")

	sheet := m.opts.Sheet
	sheet.Selected = m.cursor
	b.WriteString(RenderSheet(snap.Results, sheet))
	b.WriteString("\n\n")

	if m.flash != "" {
		style := dimStyle
		switch m.flashKind {
		case flashOK:
			style = successStyle
		case flashWarn:
			style = warningStyle
		case flashErr:
			style = errorStyle
		}
		b.WriteString(style.Render(m.flash))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("enter add • ↑/↓ select • ctrl+d remove • ctrl+x clear • ctrl+e export • esc quit"))
	b.WriteString("\n")
	return b.String()
}

// RunSearch opens the interactive search screen until the user quits.
func RunSearch(a *app.App, opts SearchOptions) error {
	p := tea.NewProgram(newSearchModel(a, opts), tea.WithOutput(os.Stderr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	SanitizeTerminal()
	return nil
}
