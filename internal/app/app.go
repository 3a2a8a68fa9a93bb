// Package app is the state store shared by every xlmatch surface.
//
// App owns the reference set, the result ledger, the status flag and the
// pending search preview. Each mutation is applied in memory first and then
// reported to an Observer, which is how state reaches durable storage.
package app

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/xlmatch/internal/ident"
	"github.com/kokistudios/xlmatch/internal/ledger"
	"github.com/kokistudios/xlmatch/internal/matcher"
	"github.com/kokistudios/xlmatch/internal/record"
	"github.com/kokistudios/xlmatch/internal/sheet"
	"github.com/kokistudios/xlmatch/internal/store"
)

type Status string

const (
	StatusEmpty Status = "empty" // no reference data
	StatusReady Status = "ready" // reference data loaded, idle
	StatusBusy  Status = "busy"  // batch import running
)

// ParseStatus maps a persisted token to a Status. Unknown tokens yield StatusEmpty.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusReady, StatusBusy:
		return Status(s)
	default:
		return StatusEmpty
	}
}

var (
	ErrNoNewMatches         = errors.New("batch import finished but found no new matches")
	ErrEmptyLedger          = errors.New("the result list is empty, nothing to export")
	ErrBusy                 = errors.New("a batch import is already in progress")
	ErrNoReferenceData      = errors.New("no reference data loaded")
	ErrConfirmationRequired = errors.New("confirmation required: repeat the action to proceed")
)

// Observer is told about every state change after it has been applied.
// Errors are logged and otherwise ignored: the in-memory state stays authoritative.
type Observer interface {
	OnReference(ref []record.Record) error
	OnResults(results []record.MatchedResult) error
	OnStatus(s Status) error
	OnReset() error
}

// Options configures an App.
type Options struct {
	Observer      Observer
	Logger        *log.Logger
	IDs           ident.Generator
	MaxCells      int
	Export        sheet.ExportOptions
	ExportPrefix  string
	ConfirmWindow time.Duration
	Now           func() time.Time
}

type App struct {
	mu sync.Mutex

	ref     []record.Record
	ledger  *ledger.Ledger
	status  Status
	term    string
	preview *record.Record

	obs      Observer
	logger   *log.Logger
	ids      ident.Generator
	maxCells int
	export   sheet.ExportOptions
	prefix   string
	now      func() time.Time
	gate     *Gate
}

// New returns an empty App.
func New(opts Options) *App {
	a := &App{
		obs:      opts.Observer,
		logger:   opts.Logger,
		ids:      opts.IDs,
		maxCells: opts.MaxCells,
		export:   opts.Export,
		prefix:   opts.ExportPrefix,
		now:      opts.Now,
		status:   StatusEmpty,
	}
	if a.logger == nil {
		a.logger = log.New(io.Discard)
	}
	if a.ids == nil {
		a.ids = ident.Default
	}
	if a.maxCells <= 0 {
		a.maxCells = matcher.DefaultMaxCells
	}
	if a.export == (sheet.ExportOptions{}) {
		a.export = sheet.DefaultExportOptions()
	}
	if a.now == nil {
		a.now = time.Now
	}
	window := opts.ConfirmWindow
	if window <= 0 {
		window = 3 * time.Second
	}
	a.gate = NewGate(window, a.now)
	a.ledger = ledger.New(a.ids)
	return a
}

// Restore loads previously persisted state without notifying the observer.
// A persisted busy status means the process stopped mid-import and is
// replaced by the idle status for the restored data.
func (a *App) Restore(st store.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ref = slices.Clone(st.Reference)
	a.ledger.Restore(st.Results)
	a.status = a.idleStatus()
	if ParseStatus(st.Status) == StatusBusy {
		a.logger.Warn("previous batch import did not finish", "status", a.status)
	}
	a.term, a.preview = "", nil
}

func (a *App) idleStatus() Status {
	if len(a.ref) == 0 {
		return StatusEmpty
	}
	return StatusReady
}

func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Reference returns a copy of the reference set.
func (a *App) Reference() []record.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.ref)
}

// ReferenceCount is the number of records in the reference set.
func (a *App) ReferenceCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ref)
}

// Results returns a copy of the ledger, newest first.
func (a *App) Results() []record.MatchedResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.Entries()
}

// Snapshot is a consistent view of the whole state.
type Snapshot struct {
	Status         Status                 `json:"status"`
	ReferenceCount int                    `json:"reference_count"`
	Results        []record.MatchedResult `json:"results"`
	Preview        *record.Record         `json:"preview,omitempty"`
}

func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Snapshot{
		Status:         a.status,
		ReferenceCount: len(a.ref),
		Results:        a.ledger.Entries(),
	}
	if s.Results == nil {
		s.Results = []record.MatchedResult{}
	}
	if a.preview != nil {
		p := *a.preview
		s.Preview = &p
	}
	return s
}

// LoadReference replaces the reference set with the rows of the spreadsheet at path.
// On any error the current reference set is kept.
func (a *App) LoadReference(path string) (int, error) {
	rows, err := sheet.Read(path)
	if err != nil {
		return 0, err
	}
	return a.LoadReferenceRows(rows)
}

// LoadReferenceRows replaces the reference set with normalized rows.
func (a *App) LoadReferenceRows(rows []record.Row) (int, error) {
	recs, err := record.Normalize(rows)
	if err != nil {
		return 0, err
	}
	return a.setReference(recs), nil
}

// RequestReplace loads rows as the reference set. Replacing a set that is
// already loaded only happens when called a second time within the
// confirmation window; the first call returns ErrConfirmationRequired.
// Rows that do not normalize are rejected without arming the gate.
func (a *App) RequestReplace(rows []record.Row) (int, error) {
	recs, err := record.Normalize(rows)
	if err != nil {
		return 0, err
	}
	if a.ReferenceCount() > 0 && !a.gate.Confirm(ActionReplace) {
		return 0, ErrConfirmationRequired
	}
	return a.setReference(recs), nil
}

func (a *App) setReference(recs []record.Record) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ref = recs
	if a.status != StatusBusy {
		a.status = StatusReady
	}
	a.refreshPreview()
	a.notify(func(o Observer) error { return o.OnReference(slices.Clone(a.ref)) }, "reference")
	a.notify(func(o Observer) error { return o.OnStatus(a.status) }, "status")
	a.gate.Disarm(ActionReplace)
	a.logger.Debug("reference set replaced", "records", len(recs))
	return len(recs)
}

// Preview records term as the current search input and returns its match.
func (a *App) Preview(term string) (record.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.term = term
	a.refreshPreview()
	if a.preview == nil {
		return record.Record{}, false
	}
	return *a.preview, true
}

func (a *App) refreshPreview() {
	a.preview = nil
	if m, ok := matcher.FindMatch(a.ref, a.term); ok {
		a.preview = &m
	}
}

// AddResult describes the outcome of confirming a preview.
type AddResult struct {
	Found    bool                 `json:"found"`
	Inserted bool                 `json:"inserted"`
	Match    record.Record        `json:"match"`
	Entry    record.MatchedResult `json:"entry"`
}

// ConfirmPreview adds the pending preview to the ledger unless it is already
// there. The search input and preview are cleared either way.
func (a *App) ConfirmPreview() AddResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.confirmLocked()
}

func (a *App) confirmLocked() AddResult {
	if a.preview == nil {
		return AddResult{}
	}
	res := AddResult{Found: true, Match: *a.preview}
	res.Entry, res.Inserted = a.ledger.AddIfAbsent(*a.preview)
	a.term, a.preview = "", nil
	if res.Inserted {
		a.notifyResults()
	}
	return res
}

// AddTerm previews term and confirms it in one step.
func (a *App) AddTerm(term string) AddResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.term = term
	a.refreshPreview()
	res := a.confirmLocked()
	a.term, a.preview = "", nil
	return res
}

// ImportBatch matches every row of the spreadsheet at path and prepends the
// new distinct matches to the ledger. It returns the added block in ledger order.
func (a *App) ImportBatch(path string) ([]record.MatchedResult, error) {
	if err := a.beginBatch(); err != nil {
		return nil, err
	}
	rows, err := sheet.Read(path)
	if err != nil {
		a.endBatch()
		return nil, err
	}
	return a.finishBatch(rows)
}

// ImportBatchRows is ImportBatch for rows that are already decoded.
func (a *App) ImportBatchRows(rows []record.Row) ([]record.MatchedResult, error) {
	if err := a.beginBatch(); err != nil {
		return nil, err
	}
	return a.finishBatch(rows)
}

func (a *App) beginBatch() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusBusy {
		return ErrBusy
	}
	if len(a.ref) == 0 {
		return ErrNoReferenceData
	}
	a.setStatus(StatusBusy)
	return nil
}

func (a *App) endBatch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setStatus(a.idleStatus())
}

func (a *App) finishBatch(rows []record.Row) ([]record.MatchedResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() { a.setStatus(a.idleStatus()) }()

	matches := matcher.BatchMatch(a.ref, rows, a.ledger.Signatures(), matcher.BatchOptions{
		MaxCells: a.maxCells,
		IDs:      a.ids,
	})
	n := a.ledger.AddBatch(matches)
	a.logger.Debug("batch import finished", "rows", len(rows), "added", n)
	if n == 0 {
		return nil, ErrNoNewMatches
	}
	a.notifyResults()
	return a.ledger.Entries()[:n], nil
}

func (a *App) setStatus(s Status) {
	if a.status == s {
		return
	}
	a.status = s
	a.notify(func(o Observer) error { return o.OnStatus(s) }, "status")
}

// Remove deletes one ledger entry by identity. Unknown ids are a no-op.
func (a *App) Remove(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ledger.Remove(id) {
		return false
	}
	a.notifyResults()
	return true
}

// Clear empties the ledger.
func (a *App) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ledger.Clear()
	a.gate.Disarm(ActionClear)
	a.notifyResults()
}

// Reset drops the reference set, the ledger and the preview, and forgets
// everything persisted.
func (a *App) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ref = nil
	a.ledger.Clear()
	a.term, a.preview = "", nil
	a.status = StatusEmpty
	a.gate.Disarm(ActionReset)
	a.notify(func(o Observer) error { return o.OnReset() }, "reset")
}

const (
	ActionClear   = "clear"
	ActionReset   = "reset"
	ActionReplace = "replace"
)

// RequestClear clears the ledger only when called a second time within the
// confirmation window; the first call returns ErrConfirmationRequired.
// Clearing an empty ledger needs no confirmation and does nothing.
func (a *App) RequestClear() error {
	a.mu.Lock()
	empty := a.ledger.Len() == 0
	a.mu.Unlock()
	if empty {
		return nil
	}
	if !a.gate.Confirm(ActionClear) {
		return ErrConfirmationRequired
	}
	a.Clear()
	return nil
}

// RequestReset is the two-step form of Reset.
func (a *App) RequestReset() error {
	if !a.gate.Confirm(ActionReset) {
		return ErrConfirmationRequired
	}
	a.Reset()
	return nil
}

// Pending reports whether action has been armed and is waiting for its second confirmation.
func (a *App) Pending(action string) bool {
	return a.gate.Armed(action)
}

// ExportFile writes the ledger to a timestamped workbook in dir.
func (a *App) ExportFile(dir string) (string, error) {
	results := a.Results()
	if len(results) == 0 {
		return "", ErrEmptyLedger
	}
	path, err := sheet.WriteFile(dir, a.prefix, a.now(), results, a.export)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	return path, nil
}

// ExportTo writes the ledger as an xlsx workbook to w and returns the
// filename a download should use.
func (a *App) ExportTo(w io.Writer) (string, error) {
	results := a.Results()
	if len(results) == 0 {
		return "", ErrEmptyLedger
	}
	if err := sheet.Write(w, results, a.export); err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	return sheet.ExportFilename(a.prefix, a.now()), nil
}

func (a *App) notifyResults() {
	a.notify(func(o Observer) error { return o.OnResults(a.ledger.Entries()) }, "results")
}

func (a *App) notify(fn func(Observer) error, what string) {
	if a.obs == nil {
		return
	}
	if err := fn(a.obs); err != nil {
		a.logger.Warn("state not persisted", "slot", what, "err", err)
	}
}
