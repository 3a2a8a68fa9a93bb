package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kokistudios/xlmatch/internal/record"
)

func openTestSlots(t *testing.T) *Slots {
	t.Helper()
	s, err := OpenSlots(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSlots failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSlots_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestSlots(t)

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent slot, got ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, "a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "a", "2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || v != "2" {
		t.Fatalf("Get = %q, %v, %v; want 2, true, nil", v, ok, err)
	}
	if err := s.Delete(ctx, "a", "never-existed"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("expected slot to be deleted")
	}
}

func TestSlots_StateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestSlots(t)

	ref := []record.Record{{Key: "Alice", Value: "100"}, {Key: "Bob", Value: ""}}
	results := []record.MatchedResult{{Record: record.Record{Key: "Bob", Value: ""}, ID: "id-1"}}
	if err := s.SaveReference(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveResults(ctx, results); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveStatus(ctx, "ready"); err != nil {
		t.Fatal(err)
	}

	st, warnings, err := s.LoadState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}
	want := State{Reference: ref, Results: results, Status: "ready"}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	raw, _, _ := s.Get(ctx, SlotResults)
	if raw != `[{"key":"Bob","value":"","id":"id-1"}]` {
		t.Errorf("unexpected results encoding %s", raw)
	}
}

func TestSlots_EmptyCollectionsEncodeAsArrays(t *testing.T) {
	ctx := context.Background()
	s := openTestSlots(t)
	if err := s.SaveResults(ctx, nil); err != nil {
		t.Fatal(err)
	}
	raw, _, _ := s.Get(ctx, SlotResults)
	if raw != "[]" {
		t.Errorf("expected [], got %s", raw)
	}
}

func TestSlots_CorruptSlotIgnored(t *testing.T) {
	ctx := context.Background()
	s := openTestSlots(t)
	s.Put(ctx, SlotReference, "{not json")
	s.Put(ctx, SlotStatus, "ready")

	st, warnings, err := s.LoadState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Reference != nil {
		t.Errorf("expected corrupt reference to be dropped, got %v", st.Reference)
	}
	if len(warnings) != 1 {
		t.Errorf("expected one warning, got %v", warnings)
	}
	if st.Status != "ready" {
		t.Errorf("expected status to survive, got %q", st.Status)
	}
}

func TestSlots_ClearState(t *testing.T) {
	ctx := context.Background()
	s := openTestSlots(t)
	s.SaveReference(ctx, []record.Record{{Key: "k"}})
	s.SaveStatus(ctx, "ready")
	if err := s.ClearState(ctx); err != nil {
		t.Fatal(err)
	}
	st, _, err := s.LoadState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(State{}, st); diff != "" {
		t.Errorf("expected empty state:\n%s", diff)
	}
}

func TestSlots_PersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenSlots(path)
	if err != nil {
		t.Fatal(err)
	}
	s.SaveStatus(ctx, "ready")
	s.Close()

	s2, err := OpenSlots(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if v, ok, _ := s2.Get(ctx, SlotStatus); !ok || v != "ready" {
		t.Errorf("expected persisted status, got %q ok=%v", v, ok)
	}
}
