package hdphmm

import "testing"

func TestUnionFindSingletons(t *testing.T) {
	uf := newUnionFind(4)
	for i := 0; i < 4; i++ {
		if got := uf.find(i); got != i {
			t.Errorf("find(%d): got %d, want %d", i, got, i)
		}
	}
}

func TestUnionFindMerging(t *testing.T) {
	uf := newUnionFind(6)
	uf.union(0, 1)
	uf.union(2, 3)
	uf.union(0, 2)

	root := uf.find(0)
	for _, i := range []int{1, 2, 3} {
		if uf.find(i) != root {
			t.Errorf("element %d not merged with 0", i)
		}
	}
	if uf.find(4) == root || uf.find(5) == root {
		t.Error("elements 4 and 5 should remain separate")
	}
	if uf.size[root] != 4 {
		t.Errorf("merged size: got %d, want 4", uf.size[root])
	}
}

func TestUnionFindSelfUnion(t *testing.T) {
	uf := newUnionFind(3)
	uf.union(0, 1)
	before := uf.size[uf.find(0)]
	uf.union(1, 0) // already merged
	if after := uf.size[uf.find(0)]; after != before {
		t.Errorf("self-union changed size: %d -> %d", before, after)
	}
}

func TestUnionFindPathCompression(t *testing.T) {
	uf := newUnionFind(8)
	for i := 1; i < 8; i++ {
		uf.union(0, i)
	}
	root := uf.find(7)
	// After compression every element points directly at the root.
	for i := 0; i < 8; i++ {
		uf.find(i)
		if i != root && uf.parent[i] != root {
			t.Errorf("element %d parent: got %d, want %d", i, uf.parent[i], root)
		}
	}
}
