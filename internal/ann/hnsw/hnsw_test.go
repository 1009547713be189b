package hnsw

import "testing"

func TestBuildAndQueryFindsClosePoints(t *testing.T) {
	items := [][]float32{
		{0, 0, 0},
		{0.1, 0, 0},
		{10, 10, 10},
		{10.1, 10, 10},
	}
	g := New()
	if err := g.Build(items); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", g.Len())
	}

	got, err := g.Query(0, 1.0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	found := map[int]bool{}
	for _, id := range got {
		found[id] = true
	}
	if !found[0] || !found[1] {
		t.Errorf("expected query(0,1.0) to include {0,1}, got %v", got)
	}
	if found[2] || found[3] {
		t.Errorf("expected query(0,1.0) to exclude the far cluster, got %v", got)
	}
}

func TestRowReturnsStoredVector(t *testing.T) {
	items := [][]float32{{1, 2, 3}, {4, 5, 6}}
	g := New()
	g.Build(items)
	row := g.Row(1)
	for i, v := range row {
		if v != items[1][i] {
			t.Errorf("index %d: got %v want %v", i, v, items[1][i])
		}
	}
}

func TestQueryOutOfRangeReturnsNil(t *testing.T) {
	g := New()
	g.Build([][]float32{{1, 2}})
	got, err := g.Query(5, 1.0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for out-of-range index, got %v", got)
	}
}
