package matcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kokistudios/xlmatch/internal/ident"
	"github.com/kokistudios/xlmatch/internal/record"
)

func sampleRef() []record.Record {
	return []record.Record{
		{Key: "Alice", Value: "100"},
		{Key: "Bob", Value: "200"},
	}
}

func TestFindMatch(t *testing.T) {
	ref := sampleRef()
	cases := []struct {
		term   string
		want   record.Record
		wantOK bool
	}{
		{"ob", record.Record{Key: "Bob", Value: "200"}, true},
		{"200", record.Record{Key: "Bob", Value: "200"}, true},
		{"  ALI ", record.Record{Key: "Alice", Value: "100"}, true},
		{"z", record.Record{}, false},
		{"", record.Record{}, false},
		{"   \t", record.Record{}, false},
	}
	for _, tc := range cases {
		got, ok := FindMatch(ref, tc.term)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("FindMatch(%q) = %+v, %v; want %+v, %v", tc.term, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestFindMatch_FirstInReferenceOrder(t *testing.T) {
	ref := []record.Record{
		{Key: "zed", Value: "shared-1"},
		{Key: "shared", Value: "x"},
	}
	// "shared" appears in the value of the first record and the key of the second;
	// the per-record OR means the first record wins.
	got, ok := FindMatch(ref, "shared")
	if !ok || got.Key != "zed" {
		t.Errorf("expected first record, got %+v (ok=%v)", got, ok)
	}
}

func TestFindMatch_DoesNotMutate(t *testing.T) {
	ref := sampleRef()
	before := append([]record.Record(nil), ref...)
	FindMatch(ref, "a")
	if diff := cmp.Diff(before, ref); diff != "" {
		t.Errorf("reference set mutated:\n%s", diff)
	}
}

func TestBatchMatch_Scenario(t *testing.T) {
	rows := []record.Row{
		record.TextRow("al"),
		record.TextRow("xx", "bo"),
		record.TextRow("zzz"),
	}
	got := BatchMatch(sampleRef(), rows, nil, BatchOptions{IDs: ident.Sequence("b")})
	want := []record.MatchedResult{
		{Record: record.Record{Key: "Alice", Value: "100"}, ID: "b-1"},
		{Record: record.Record{Key: "Bob", Value: "200"}, ID: "b-2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BatchMatch mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchMatch_Dedup(t *testing.T) {
	existing := NewSignatureSet([]record.MatchedResult{
		{Record: record.Record{Key: "Alice", Value: "100"}, ID: "old"},
	})
	rows := []record.Row{
		record.TextRow("alice"),
		record.TextRow("bob"),
		record.TextRow("200"),
		record.TextRow("B"),
	}
	got := BatchMatch(sampleRef(), rows, existing, BatchOptions{IDs: ident.Sequence("b")})
	if len(got) != 1 || got[0].Key != "Bob" {
		t.Fatalf("expected only Bob, got %+v", got)
	}
	if len(existing) != 1 {
		t.Errorf("existing set was modified: %v", existing)
	}
}

func TestBatchMatch_DuplicateStopsRow(t *testing.T) {
	// The first matching cell ends the row even when its match is a duplicate.
	existing := NewSignatureSet([]record.MatchedResult{
		{Record: record.Record{Key: "Alice", Value: "100"}},
	})
	rows := []record.Row{record.TextRow("alice", "bob")}
	got := BatchMatch(sampleRef(), rows, existing, BatchOptions{})
	if len(got) != 0 {
		t.Errorf("expected no matches, got %+v", got)
	}
}

func TestBatchMatch_CellLimit(t *testing.T) {
	rows := []record.Row{record.TextRow("q", "q", "q", "q", "q", "bob")}
	if got := BatchMatch(sampleRef(), rows, nil, BatchOptions{}); len(got) != 0 {
		t.Errorf("sixth cell should not be scanned, got %+v", got)
	}
	if got := BatchMatch(sampleRef(), rows, nil, BatchOptions{MaxCells: 6}); len(got) != 1 {
		t.Errorf("expected match with MaxCells=6, got %+v", got)
	}
}

func TestBatchMatch_SkipsEmptyAndNumericCells(t *testing.T) {
	rows := []record.Row{
		{record.EmptyCell(), record.Text("   "), record.Number(100)},
	}
	got := BatchMatch(sampleRef(), rows, nil, BatchOptions{})
	if len(got) != 1 || got[0].Key != "Alice" {
		t.Errorf("expected Alice via numeric cell, got %+v", got)
	}
}

func TestBatchMatch_DistinctIDs(t *testing.T) {
	ref := []record.Record{{Key: "a1"}, {Key: "a2"}, {Key: "a3"}}
	rows := []record.Row{record.TextRow("a1"), record.TextRow("a2"), record.TextRow("a3")}
	got := BatchMatch(ref, rows, nil, BatchOptions{})
	ids := map[string]bool{}
	for _, m := range got {
		if ids[m.ID] {
			t.Fatalf("duplicate id %s", m.ID)
		}
		ids[m.ID] = true
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 ids, got %d", len(ids))
	}
}
