package reorder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"organaizer/api/internal/store"
)

func seed(t *testing.T, ranks map[string]float64) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for key, rank := range ranks {
		m.Put(store.Entry{
			Key:       key,
			Title:     key,
			Type:      "Task",
			Status:    "Open",
			Rank:      rank,
			CreatedAt: created,
			UpdatedAt: created,
		})
	}
	return m
}

func order(t *testing.T, m *store.Memory) []string {
	t.Helper()
	var keys []string
	for _, e := range m.All() {
		keys = append(keys, e.Key)
	}
	return keys
}

func assertOrder(t *testing.T, m *store.Memory, want ...string) {
	t.Helper()
	got := order(t, m)
	if len(got) != len(want) {
		t.Fatalf("got order %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got order %v, want %v", got, want)
		}
	}
}

func TestReorderNoOp(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1, "b": 2, "c": 3})
	eng := New(m)

	res, err := eng.Reorder(context.Background(), "b", 2, nil)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if !res.NoOp {
		t.Fatalf("expected no-op result")
	}
	if len(res.Reordered) != 0 {
		t.Fatalf("expected no peer changes, got %v", res.Reordered)
	}
	assertOrder(t, m, "a", "b", "c")
	b, _ := m.FetchByKey(context.Background(), "b")
	if b.Rank != 2 {
		t.Fatalf("rank changed on no-op: %v", b.Rank)
	}
}

func TestReorderMoveDown(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1, "b": 2, "c": 3})
	eng := New(m)

	res, err := eng.Reorder(context.Background(), "a", 3, nil)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	assertOrder(t, m, "b", "c", "a")

	b, _ := m.FetchByKey(context.Background(), "b")
	c, _ := m.FetchByKey(context.Background(), "c")
	if b.Rank != 1 || c.Rank != 2 {
		t.Fatalf("peer ranks b=%v c=%v, want 1 and 2", b.Rank, c.Rank)
	}
	if len(res.Reordered) != 2 {
		t.Fatalf("expected 2 peer changes, got %v", res.Reordered)
	}
	if res.Entry.Rank != 3 {
		t.Fatalf("result entry rank %v, want 3", res.Entry.Rank)
	}
}

func TestReorderMoveUp(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1, "b": 2, "c": 3})
	eng := New(m)

	_, err := eng.Reorder(context.Background(), "c", 1, nil)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	assertOrder(t, m, "c", "a", "b")

	a, _ := m.FetchByKey(context.Background(), "a")
	b, _ := m.FetchByKey(context.Background(), "b")
	if a.Rank != 2 || b.Rank != 3 {
		t.Fatalf("peer ranks a=%v b=%v, want 2 and 3", a.Rank, b.Rank)
	}
}

func TestReorderScopeLeavesOutsidersUntouched(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1, "b": 2, "c": 3, "d": 4})
	m.Put(store.Entry{Key: "b", Type: "Note", Status: "Open", Rank: 2})
	eng := New(m)

	scope := func(e store.Entry) bool { return e.Type == "Task" }
	res, err := eng.Reorder(context.Background(), "a", 4, scope)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}

	b, _ := m.FetchByKey(context.Background(), "b")
	if b.Rank != 2 {
		t.Fatalf("out-of-scope entry shifted to rank %v", b.Rank)
	}
	c, _ := m.FetchByKey(context.Background(), "c")
	d, _ := m.FetchByKey(context.Background(), "d")
	if c.Rank != 2 || d.Rank != 3 {
		t.Fatalf("in-scope peers c=%v d=%v, want 2 and 3", c.Rank, d.Rank)
	}
	for _, peer := range res.Reordered {
		if peer.Key == "b" {
			t.Fatalf("out-of-scope entry reported as reordered")
		}
	}
}

func TestReorderFractionalRank(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1, "b": 2, "c": 3})
	eng := New(m)

	// Dropping between a and b shifts only b and does not disturb c.
	_, err := eng.Reorder(context.Background(), "c", 1.5, nil)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	assertOrder(t, m, "a", "c", "b")
	a, _ := m.FetchByKey(context.Background(), "a")
	if a.Rank != 1 {
		t.Fatalf("entry below target rank shifted: %v", a.Rank)
	}
	b, _ := m.FetchByKey(context.Background(), "b")
	if b.Rank != 3 {
		t.Fatalf("displaced peer rank %v, want 3", b.Rank)
	}
}

func TestReorderUnknownEntry(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1})
	eng := New(m)

	_, err := eng.Reorder(context.Background(), "missing", 2, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	a, _ := m.FetchByKey(context.Background(), "a")
	if a.Rank != 1 {
		t.Fatalf("store mutated on failed reorder")
	}
}

// failingStore refuses the rank write for one key so tests can observe
// the state a mid-batch store failure leaves behind.
type failingStore struct {
	*store.Memory
	refuseKey string
}

func (f *failingStore) UpdateRank(ctx context.Context, key string, rank float64) error {
	if key == f.refuseKey {
		return errors.New("write refused")
	}
	return f.Memory.UpdateRank(ctx, key, rank)
}

func TestReorderPartialFailureKeepsAppliedWrites(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1, "b": 2, "c": 3})
	eng := New(&failingStore{Memory: m, refuseKey: "c"})

	// a→3 writes a first, then b, then fails on c. The error must
	// surface while the earlier writes stay in place: no rollback.
	_, err := eng.Reorder(context.Background(), "a", 3, nil)
	if err == nil {
		t.Fatal("expected error from refused peer write")
	}
	if !strings.Contains(err.Error(), "update peer c") {
		t.Fatalf("error should name the failed write, got %v", err)
	}

	a, _ := m.FetchByKey(context.Background(), "a")
	b, _ := m.FetchByKey(context.Background(), "b")
	c, _ := m.FetchByKey(context.Background(), "c")
	if a.Rank != 3 {
		t.Errorf("target write should persist, got rank %v", a.Rank)
	}
	if b.Rank != 1 {
		t.Errorf("peer written before the failure should persist, got rank %v", b.Rank)
	}
	if c.Rank != 3 {
		t.Errorf("unwritten peer must keep its old rank, got %v", c.Rank)
	}
}

func TestReorderResultCarriesPersistedEntry(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1, "b": 2})
	eng := New(m)

	before, _ := m.FetchByKey(context.Background(), "a")
	res, err := eng.Reorder(context.Background(), "a", 2, nil)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if res.Entry.Rank != 2 {
		t.Fatalf("result rank %v, want 2", res.Entry.Rank)
	}
	if !res.Entry.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("result entry must carry the refreshed updatedat")
	}
}

func TestReorderRefreshesUpdatedAt(t *testing.T) {
	m := seed(t, map[string]float64{"a": 1, "b": 2})
	eng := New(m)

	before, _ := m.FetchByKey(context.Background(), "b")
	if _, err := eng.Reorder(context.Background(), "a", 2, nil); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	after, _ := m.FetchByKey(context.Background(), "b")
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("peer updatedat not refreshed")
	}
}
