package hdphmm

// unionFind is a disjoint-set structure with path compression and union
// by size. The agglomerative backend uses it to track which samples have
// been merged into the same cluster, reading the final partition off the
// set roots.
type unionFind struct {
	parent []int
	size   []int
}

// newUnionFind creates a unionFind with n singleton sets.
func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = -1 // -1 means "is a root"
		size[i] = 1
	}
	return &unionFind{parent: parent, size: size}
}

// find returns the root of the set containing x, with path compression.
func (uf *unionFind) find(x int) int {
	root := x
	for uf.parent[root] != -1 {
		root = uf.parent[root]
	}
	// Point all nodes along the path directly to root.
	for uf.parent[x] != -1 {
		x, uf.parent[x] = uf.parent[x], root
	}
	return root
}

// union merges the sets containing x and y by attaching the smaller tree
// under the larger. Merging a set with itself is a no-op.
func (uf *unionFind) union(x, y int) {
	xr, yr := uf.find(x), uf.find(y)
	if xr == yr {
		return
	}
	if uf.size[xr] < uf.size[yr] {
		xr, yr = yr, xr
	}
	uf.parent[yr] = xr
	uf.size[xr] += uf.size[yr]
}
