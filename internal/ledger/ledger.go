// Package ledger holds confirmed matches, newest first, with no two entries
// sharing the same (key, value) signature.
package ledger

import (
	"slices"

	"github.com/kokistudios/xlmatch/internal/ident"
	"github.com/kokistudios/xlmatch/internal/matcher"
	"github.com/kokistudios/xlmatch/internal/record"
)

type Ledger struct {
	entries []record.MatchedResult
	ids     ident.Generator
}

// New returns an empty ledger stamping new entries with ids.
// A nil generator falls back to ident.Default.
func New(ids ident.Generator) *Ledger {
	if ids == nil {
		ids = ident.Default
	}
	return &Ledger{ids: ids}
}

// Restore replaces the contents with previously persisted entries.
// Later duplicates of an earlier signature are dropped.
func (l *Ledger) Restore(entries []record.MatchedResult) {
	l.entries = nil
	seen := make(matcher.SignatureSet, len(entries))
	for _, e := range entries {
		if seen.Has(e.Signature()) {
			continue
		}
		seen.Add(e.Signature())
		l.entries = append(l.entries, e)
	}
}

// Entries returns a copy of the ledger in display order.
func (l *Ledger) Entries() []record.MatchedResult {
	return slices.Clone(l.entries)
}

func (l *Ledger) Len() int { return len(l.entries) }

// Signatures returns the set of signatures currently held.
func (l *Ledger) Signatures() matcher.SignatureSet {
	return matcher.NewSignatureSet(l.entries)
}

// Contains reports whether an entry with the record's signature exists.
func (l *Ledger) Contains(r record.Record) bool {
	sig := r.Signature()
	return slices.ContainsFunc(l.entries, func(e record.MatchedResult) bool {
		return e.Signature() == sig
	})
}

// AddIfAbsent prepends r with a fresh identity unless its signature is
// already present.
func (l *Ledger) AddIfAbsent(r record.Record) (record.MatchedResult, bool) {
	if l.Contains(r) {
		return record.MatchedResult{}, false
	}
	m := record.MatchedResult{Record: r, ID: l.ids()}
	l.entries = slices.Insert(l.entries, 0, m)
	return m, true
}

// AddBatch prepends matches as one block, keeping their order.
// Matches already present, or repeated within the batch, are skipped.
// It returns how many entries were added.
func (l *Ledger) AddBatch(matches []record.MatchedResult) int {
	seen := l.Signatures()
	block := make([]record.MatchedResult, 0, len(matches))
	for _, m := range matches {
		if seen.Has(m.Signature()) {
			continue
		}
		seen.Add(m.Signature())
		block = append(block, m)
	}
	if len(block) == 0 {
		return 0
	}
	l.entries = append(block, l.entries...)
	return len(block)
}

// Remove deletes the entry with the given identity. Unknown ids are ignored.
func (l *Ledger) Remove(id string) bool {
	i := slices.IndexFunc(l.entries, func(e record.MatchedResult) bool {
		return e.ID == id
	})
	if i < 0 {
		return false
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	return true
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.entries = nil
}
