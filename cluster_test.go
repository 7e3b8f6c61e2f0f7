package hdphmm

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// makeStack builds n 2x2 matrices centered on base*I with uniform jitter,
// mimicking AR(1) coefficient or covariance estimates from one dynamical
// regime.
func makeStack(n int, base, jitter float64, rng *rand.Rand) []*mat.Dense {
	stack := make([]*mat.Dense, n)
	for i := range stack {
		m := mat.NewDense(2, 2, nil)
		for r := 0; r < 2; r++ {
			for c := 0; c < 2; c++ {
				v := jitter * (rng.Float64() - 0.5)
				if r == c {
					v += base
				}
				m.Set(r, c, v)
			}
		}
		stack[i] = m
	}
	return stack
}

// makeSolidStack builds n 2x2 matrices with every entry near base, so
// the regime level survives in all flattened feature columns even after
// per-column standardization.
func makeSolidStack(n int, base, jitter float64, rng *rand.Rand) []*mat.Dense {
	stack := make([]*mat.Dense, n)
	for i := range stack {
		m := mat.NewDense(2, 2, nil)
		for r := 0; r < 2; r++ {
			for c := 0; c < 2; c++ {
				m.Set(r, c, base+jitter*(rng.Float64()-0.5))
			}
		}
		stack[i] = m
	}
	return stack
}

// makeRegimes pools per-sample matrices drawn from len(bases) distinct
// regimes, nPer samples each.
func makeRegimes(bases []float64, nPer int, jitter float64, rng *rand.Rand) []*mat.Dense {
	var stack []*mat.Dense
	for _, b := range bases {
		stack = append(stack, makeStack(nPer, b, jitter, rng)...)
	}
	return stack
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Algorithm != AlgorithmBayesian {
		t.Errorf("Algorithm: got %q, want %q", cfg.Algorithm, AlgorithmBayesian)
	}
	if cfg.Eigs || cfg.Diags || cfg.ConvertRZ {
		t.Error("reduction flags should default to false")
	}
	if cfg.TrimFraction != 0.05 {
		t.Errorf("TrimFraction: got %f, want 0.05", cfg.TrimFraction)
	}
	if cfg.Agglomerative.DistanceThreshold != 2.0 {
		t.Errorf("DistanceThreshold: got %f, want 2.0", cfg.Agglomerative.DistanceThreshold)
	}
	if cfg.Agglomerative.Linkage != LinkageWard {
		t.Errorf("Linkage: got %q, want %q", cfg.Agglomerative.Linkage, LinkageWard)
	}
	if _, ok := cfg.Agglomerative.Metric.(EuclideanMetric); !ok {
		t.Errorf("Metric: got %T, want EuclideanMetric", cfg.Agglomerative.Metric)
	}
	if cfg.Bayesian.NComponents != 10 {
		t.Errorf("NComponents: got %d, want 10", cfg.Bayesian.NComponents)
	}
	if cfg.Bayesian.MaxIter != 1500 {
		t.Errorf("MaxIter: got %d, want 1500", cfg.Bayesian.MaxIter)
	}
	if cfg.Bayesian.WeightConcentrationPriorType != DirichletProcess {
		t.Errorf("WeightConcentrationPriorType: got %q, want %q",
			cfg.Bayesian.WeightConcentrationPriorType, DirichletProcess)
	}
	if cfg.Bayesian.MeanPrecisionPrior != 1 {
		t.Errorf("MeanPrecisionPrior: got %f, want 1", cfg.Bayesian.MeanPrecisionPrior)
	}
	if cfg.Bayesian.InitParams != InitRandom {
		t.Errorf("InitParams: got %q, want %q", cfg.Bayesian.InitParams, InitRandom)
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = "unknown"

	// The record is deliberately malformed; the algorithm check must
	// fire before any feature construction happens.
	rec := ParameterRecord{
		A:  makeStack(4, 1, 0.1, rand.New(rand.NewSource(1))),
		Mu: Column([]float64{1, 2, 3}),
	}

	_, err := New(rec, cfg)
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("got %v, want ErrUnknownAlgorithm", err)
	}
}

func TestUnsupportedInputType(t *testing.T) {
	for _, params := range []any{42, "params", []float64{1, 2}, map[string]float64{"A": 1}} {
		_, err := New(params, DefaultConfig())
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("New(%T): got %v, want ErrBadInput", params, err)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"TrimFraction >= 1", func(c *Config) { c.TrimFraction = 1.0 }},
		{"negative TrimFraction", func(c *Config) { c.TrimFraction = -0.1 }},
		{"invalid linkage", func(c *Config) {
			c.Algorithm = AlgorithmAgglomerative
			c.Agglomerative.Linkage = "median"
		}},
		{"negative NClusters", func(c *Config) {
			c.Algorithm = AlgorithmAgglomerative
			c.Agglomerative.NClusters = -1
		}},
		{"ward with non-euclidean metric", func(c *Config) {
			c.Algorithm = AlgorithmAgglomerative
			c.Agglomerative.Metric = ManhattanMetric{}
		}},
		{"negative concentration prior", func(c *Config) { c.Bayesian.WeightConcentrationPrior = -1 }},
		{"negative mean precision prior", func(c *Config) { c.Bayesian.MeanPrecisionPrior = -1 }},
		{"invalid prior type", func(c *Config) { c.Bayesian.WeightConcentrationPriorType = "jeffreys" }},
		{"invalid init params", func(c *Config) { c.Bayesian.InitParams = "spectral" }},
	}

	rec := ParameterRecord{A: makeStack(8, 1, 0.1, rand.New(rand.NewSource(1)))}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(rec, cfg); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestZeroConfigValuesMeanDefaults(t *testing.T) {
	// Zero-valued knobs resolve to their documented defaults.
	cfg := Config{Algorithm: AlgorithmAgglomerative, Agglomerative: AgglomerativeConfig{NClusters: 2}}

	rec := ParameterRecord{A: makeStack(10, 1, 0.1, rand.New(rand.NewSource(9)))}
	c, err := New(rec, cfg)
	if err != nil {
		t.Fatal(err)
	}

	eff := c.Config()
	if eff.TrimFraction != 0.05 {
		t.Errorf("TrimFraction: got %f, want default 0.05", eff.TrimFraction)
	}
	if eff.Agglomerative.Linkage != LinkageWard {
		t.Errorf("Linkage: got %q, want default %q", eff.Agglomerative.Linkage, LinkageWard)
	}
	if eff.Bayesian.Seed != 42 {
		t.Errorf("Seed: got %d, want default 42", eff.Bayesian.Seed)
	}
	if eff.Bayesian.NComponents != 10 {
		t.Errorf("NComponents: got %d, want default 10", eff.Bayesian.NComponents)
	}
}

func TestNClustersDisablesDistanceThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmAgglomerative
	cfg.Agglomerative.NClusters = 3
	// DistanceThreshold left at its active default.

	rec := ParameterRecord{A: makeStack(10, 1, 0.1, rand.New(rand.NewSource(1)))}
	c, err := New(rec, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Config().Agglomerative.DistanceThreshold; got != 0 {
		t.Errorf("DistanceThreshold: got %f, want 0 (disabled by NClusters)", got)
	}
}

func TestRemapLabels(t *testing.T) {
	tests := []struct {
		name string
		raw  []int
		want []int
		k    int
	}{
		{"sparse ids", []int{5, 2, 5, 9, 2}, []int{1, 0, 1, 2, 0}, 3},
		{"negative noise id", []int{-1, 0, 3, -1}, []int{0, 1, 2, 0}, 3},
		{"already dense", []int{0, 1, 1, 2}, []int{0, 1, 1, 2}, 3},
		{"single cluster", []int{7, 7, 7}, []int{0, 0, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, k := remapLabels(tt.raw)
			if k != tt.k {
				t.Errorf("cluster count: got %d, want %d", k, tt.k)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("labels: got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

// checkDense verifies labels form exactly the set {0, ..., k-1}.
func checkDense(t *testing.T, labels []int, k int) {
	t.Helper()
	present := make(map[int]bool)
	for _, l := range labels {
		if l < 0 || l >= k {
			t.Fatalf("label %d outside [0, %d)", l, k)
		}
		present[l] = true
	}
	if len(present) != k {
		t.Fatalf("got %d distinct labels, want %d", len(present), k)
	}
}

func TestLabelDensity(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	rec := ParameterRecord{
		A:     makeRegimes([]float64{0.2, 0.9}, 20, 0.05, rng),
		Sigma: makeRegimes([]float64{1, 4}, 20, 0.05, rng),
	}

	t.Run("agglomerative", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Algorithm = AlgorithmAgglomerative
		cfg.Agglomerative.NClusters = 2

		c, err := New(rec, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Fit(); err != nil {
			t.Fatal(err)
		}
		checkDense(t, c.Labels(), c.NClusters())
	})

	t.Run("bayesian", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Bayesian.NComponents = 5
		cfg.Bayesian.MaxIter = 300

		c, err := New(rec, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Fit(); err != nil {
			t.Fatal(err)
		}
		checkDense(t, c.Labels(), c.NClusters())
	})
}

func TestStandardizationOnlyForAgglomerative(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	rec := ParameterRecord{
		A:     makeRegimes([]float64{0.3, 0.8}, 15, 0.05, rng),
		Sigma: makeRegimes([]float64{1, 3}, 15, 0.05, rng),
	}

	agg := DefaultConfig()
	agg.Algorithm = AlgorithmAgglomerative
	agg.Agglomerative.NClusters = 2

	bay := DefaultConfig()

	ca, err := New(rec, agg)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := New(rec, bay)
	if err != nil {
		t.Fatal(err)
	}

	// The Bayesian path receives the raw features.
	if got, want := cb.FeatureMatrix().At(0, 0), rec.A[0].At(0, 0); got != want {
		t.Errorf("bayesian X[0,0]: got %f, want raw value %f", got, want)
	}
	// The agglomerative path receives the standardized features.
	if mat.Equal(ca.FeatureMatrix(), cb.FeatureMatrix()) {
		t.Error("agglomerative and bayesian feature matrices should differ")
	}
}

func TestScenarioTwoByTwoHundredSamples(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	// 100 samples drawn from three dynamical regimes. 34 + 33 + 33.
	a := makeSolidStack(34, 0.1, 0.02, rng)
	a = append(a, makeSolidStack(33, 0.5, 0.02, rng)...)
	a = append(a, makeSolidStack(33, 0.9, 0.02, rng)...)
	sigma := makeSolidStack(34, 0.5, 0.02, rng)
	sigma = append(sigma, makeSolidStack(33, 2, 0.02, rng)...)
	sigma = append(sigma, makeSolidStack(33, 6, 0.02, rng)...)

	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmAgglomerative
	cfg.Agglomerative.NClusters = 3

	c, err := New(ParameterRecord{A: a, Sigma: sigma}, cfg)
	if err != nil {
		t.Fatal(err)
	}

	rows, cols := c.FeatureMatrix().Dims()
	if rows != 100 || cols != 8 {
		t.Fatalf("X dims: got %dx%d, want 100x8", rows, cols)
	}

	if err := c.Fit(); err != nil {
		t.Fatal(err)
	}
	if len(c.Labels()) != 100 {
		t.Fatalf("got %d labels, want 100", len(c.Labels()))
	}
	if c.NClusters() != 3 {
		t.Fatalf("got %d clusters, want 3", c.NClusters())
	}
	checkDense(t, c.Labels(), 3)

	// Samples from the same regime should share a label, so the cluster
	// sizes must match the regime sizes.
	for _, span := range [][2]int{{0, 34}, {34, 67}, {67, 100}} {
		first := c.Labels()[span[0]]
		for i := span[0] + 1; i < span[1]; i++ {
			if c.Labels()[i] != first {
				t.Fatalf("sample %d: label %d, want %d (same regime as sample %d)",
					i, c.Labels()[i], first, span[0])
			}
		}
	}
	sizes := make(map[int]int)
	for _, l := range c.Labels() {
		sizes[l]++
	}
	for l, n := range sizes {
		if n != 34 && n != 33 {
			t.Errorf("cluster %d has %d samples, want a regime-sized cluster", l, n)
		}
	}
}

func TestPointerRecordInput(t *testing.T) {
	rec := &ParameterRecord{A: makeStack(6, 1, 0.1, rand.New(rand.NewSource(6)))}
	c, err := New(rec, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := c.FeatureMatrix().Dims()
	if rows != 6 || cols != 4 {
		t.Errorf("X dims: got %dx%d, want 6x4", rows, cols)
	}
}
