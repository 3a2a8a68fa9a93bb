// Package matcher finds reference records for free-text terms.
//
// Matching is a case-insensitive substring test against both the key and
// the value of each record, scanned linearly in reference order.
package matcher

import (
	"strings"

	"github.com/kokistudios/xlmatch/internal/ident"
	"github.com/kokistudios/xlmatch/internal/record"
)

// DefaultMaxCells is how many leading cells of a batch row are tried as terms.
const DefaultMaxCells = 5

// FindMatch returns the first record whose key or value contains term.
// A blank term never matches.
func FindMatch(ref []record.Record, term string) (record.Record, bool) {
	return findFolded(ref, record.Fold(term))
}

func findFolded(ref []record.Record, term string) (record.Record, bool) {
	if term == "" {
		return record.Record{}, false
	}
	for _, r := range ref {
		if strings.Contains(strings.ToLower(r.Key), term) ||
			strings.Contains(strings.ToLower(r.Value), term) {
			return r, true
		}
	}
	return record.Record{}, false
}

// SignatureSet is a set of (key, value) signatures.
type SignatureSet map[record.Signature]struct{}

// NewSignatureSet builds a set from the given results.
func NewSignatureSet(results []record.MatchedResult) SignatureSet {
	set := make(SignatureSet, len(results))
	for _, r := range results {
		set.Add(r.Signature())
	}
	return set
}

func (s SignatureSet) Has(sig record.Signature) bool {
	_, ok := s[sig]
	return ok
}

func (s SignatureSet) Add(sig record.Signature) {
	s[sig] = struct{}{}
}

func (s SignatureSet) clone() SignatureSet {
	out := make(SignatureSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// BatchOptions tunes BatchMatch.
type BatchOptions struct {
	// MaxCells caps how many leading cells of each row are tried. Zero means DefaultMaxCells.
	MaxCells int
	// IDs stamps each emitted match. Nil means ident.Default.
	IDs ident.Generator
}

// BatchMatch applies FindMatch to every candidate row and returns the matches
// whose signatures are in neither existing nor earlier in the batch, in the
// order they were first discovered. existing is not modified.
func BatchMatch(ref []record.Record, rows []record.Row, existing SignatureSet, opts BatchOptions) []record.MatchedResult {
	maxCells := opts.MaxCells
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	ids := opts.IDs
	if ids == nil {
		ids = ident.Default
	}

	seen := existing.clone()
	var out []record.MatchedResult
	for _, row := range rows {
		m, ok := matchRow(ref, row, maxCells)
		if !ok {
			continue
		}
		sig := m.Signature()
		if seen.Has(sig) {
			continue
		}
		seen.Add(sig)
		out = append(out, record.MatchedResult{Record: m, ID: ids()})
	}
	return out
}

// matchRow returns the match for the first cell of row that has one.
func matchRow(ref []record.Record, row record.Row, maxCells int) (record.Record, bool) {
	n := min(len(row), maxCells)
	for _, cell := range row[:n] {
		term := record.Fold(cell.String())
		if term == "" {
			continue
		}
		if m, ok := findFolded(ref, term); ok {
			return m, true
		}
	}
	return record.Record{}, false
}
