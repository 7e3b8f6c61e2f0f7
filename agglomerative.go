package hdphmm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Linkage selects the rule used to measure the distance between two
// clusters when deciding which pair to merge next.
type Linkage string

const (
	// LinkageWard merges the pair that minimizes the within-cluster
	// variance increase. Defined on Euclidean distances only.
	LinkageWard Linkage = "ward"
	// LinkageComplete uses the maximum pairwise distance.
	LinkageComplete Linkage = "complete"
	// LinkageAverage uses the mean pairwise distance.
	LinkageAverage Linkage = "average"
	// LinkageSingle uses the minimum pairwise distance.
	LinkageSingle Linkage = "single"
)

// AgglomerativeConfig controls the agglomerative backend.
type AgglomerativeConfig struct {
	// NClusters is the target cluster count. Setting it > 0 disables
	// DistanceThreshold. Default: 0 (use DistanceThreshold).
	NClusters int

	// DistanceThreshold stops merging once the cheapest remaining merge
	// is at or above this linkage distance. Ignored when NClusters > 0.
	// Default: 2.0.
	DistanceThreshold float64

	// Linkage selects the cluster-distance rule. Default: LinkageWard.
	Linkage Linkage

	// Metric measures point-to-point distance for the complete, average,
	// and single linkages. LinkageWard requires EuclideanMetric.
	// Default: EuclideanMetric.
	Metric DistanceMetric
}

func validateAgglomerative(cfg *AgglomerativeConfig) error {
	switch cfg.Linkage {
	case LinkageWard, LinkageComplete, LinkageAverage, LinkageSingle:
		// valid
	default:
		return fmt.Errorf("hdphmm: invalid Linkage %q", cfg.Linkage)
	}
	if cfg.NClusters < 0 {
		return fmt.Errorf("hdphmm: NClusters must be >= 0, got %d", cfg.NClusters)
	}
	if cfg.NClusters == 0 && cfg.DistanceThreshold <= 0 {
		return fmt.Errorf("hdphmm: DistanceThreshold must be > 0 when NClusters is unset, got %f", cfg.DistanceThreshold)
	}
	if cfg.Linkage == LinkageWard {
		if _, ok := cfg.Metric.(EuclideanMetric); !ok {
			return fmt.Errorf("hdphmm: Linkage %q requires EuclideanMetric, got %T", LinkageWard, cfg.Metric)
		}
	}
	return nil
}

// agglomerative merges nearest clusters bottom-up over a working
// dissimilarity matrix, updating merged distances with the
// Lance-Williams recurrence for the configured linkage.
type agglomerative struct {
	cfg AgglomerativeConfig
}

func newAgglomerative(cfg AgglomerativeConfig) *agglomerative {
	return &agglomerative{cfg: cfg}
}

// FitPredict clusters the rows of x and returns one raw label per row.
// Raw labels are union-find roots; callers are expected to remap them.
func (a *agglomerative) FitPredict(x *mat.Dense) ([]int, error) {
	n, _ := x.Dims()
	if n == 0 {
		return nil, errors.New("hdphmm: empty feature matrix")
	}
	if a.cfg.NClusters > n {
		return nil, fmt.Errorf("hdphmm: NClusters %d exceeds sample count %d", a.cfg.NClusters, n)
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	// Ward's recurrence is defined on Euclidean distances regardless of
	// the configured metric; the other linkages use the metric directly.
	ward := a.cfg.Linkage == LinkageWard
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var v float64
			if ward {
				v = math.Sqrt(squaredEuclidean(rows[i], rows[j]))
			} else {
				v = a.cfg.Metric.Distance(rows[i], rows[j])
			}
			d[i][j], d[j][i] = v, v
		}
	}

	active := make([]bool, n)
	size := make([]float64, n)
	for i := range active {
		active[i] = true
		size[i] = 1
	}
	uf := newUnionFind(n)
	remaining := n

	for remaining > 1 {
		if a.cfg.NClusters > 0 && remaining <= a.cfg.NClusters {
			break
		}

		// Cheapest pair of active clusters.
		best := math.Inf(1)
		bi, bj := -1, -1
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if d[i][j] < best {
					best, bi, bj = d[i][j], i, j
				}
			}
		}

		if a.cfg.NClusters == 0 && best >= a.cfg.DistanceThreshold {
			break
		}

		// Lance-Williams update of distances from the merged cluster to
		// every other active cluster; the merged cluster keeps slot bi.
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			v := a.mergeDistance(d[bi][k], d[bj][k], d[bi][bj], size[bi], size[bj], size[k])
			d[bi][k], d[k][bi] = v, v
		}

		size[bi] += size[bj]
		active[bj] = false
		uf.union(bi, bj)
		remaining--
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = uf.find(i)
	}
	return labels, nil
}

// mergeDistance computes the linkage distance from the union of clusters
// i and j (sizes ni, nj) to cluster k, given the pre-merge distances.
func (a *agglomerative) mergeDistance(dik, djk, dij, ni, nj, nk float64) float64 {
	switch a.cfg.Linkage {
	case LinkageSingle:
		return math.Min(dik, djk)
	case LinkageComplete:
		return math.Max(dik, djk)
	case LinkageAverage:
		return (ni*dik + nj*djk) / (ni + nj)
	default: // LinkageWard
		t := ni + nj + nk
		return math.Sqrt(((ni+nk)*dik*dik + (nj+nk)*djk*djk - nk*dij*dij) / t)
	}
}
