package forest

import "testing"

func TestBuildAndQueryFindsClosePoints(t *testing.T) {
	var items [][]float32
	for i := 0; i < 30; i++ {
		items = append(items, []float32{float32(i) * 0.01, 0, 0})
	}
	for i := 0; i < 30; i++ {
		items = append(items, []float32{100 + float32(i)*0.01, 100, 100})
	}

	f := New()
	if err := f.Build(items); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.Len() != 60 {
		t.Fatalf("expected 60 items, got %d", f.Len())
	}

	got, err := f.Query(0, 1.0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least the near cluster to be found")
	}
	for _, id := range got {
		if id >= 30 {
			t.Errorf("expected only near-cluster indices, got %d", id)
		}
	}
}

func TestRowReturnsStoredVector(t *testing.T) {
	items := [][]float32{{1, 2, 3}, {4, 5, 6}}
	f := New()
	f.Build(items)
	row := f.Row(1)
	for i, v := range row {
		if v != items[1][i] {
			t.Errorf("index %d: got %v want %v", i, v, items[1][i])
		}
	}
}

func TestQueryOutOfRangeReturnsNil(t *testing.T) {
	f := New()
	f.Build([][]float32{{1, 2}})
	got, err := f.Query(5, 1.0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for out-of-range index, got %v", got)
	}
}
