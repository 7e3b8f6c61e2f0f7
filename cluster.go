package hdphmm

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Algorithm selects the clustering backend.
type Algorithm string

const (
	AlgorithmAgglomerative Algorithm = "agglomerative"
	AlgorithmBayesian      Algorithm = "bayesian"
)

var (
	// ErrUnknownAlgorithm is returned by New for an Algorithm that is
	// neither AlgorithmAgglomerative nor AlgorithmBayesian.
	ErrUnknownAlgorithm = errors.New("hdphmm: unknown clustering algorithm")

	// ErrBadInput is returned by New when params is not a
	// ParameterRecord, *ParameterRecord, or []ParameterRecord.
	ErrBadInput = errors.New("hdphmm: unsupported parameter input type")
)

// ParameterRecord holds one trajectory's fitted AR(1) parameters.
// Every field is optional but at least one must be set. All present
// fields must agree on the number of samples.
type ParameterRecord struct {
	// A holds one state_dim x state_dim coefficient matrix per sample.
	A []*mat.Dense

	// Sigma holds one noise covariance matrix per sample, same shape
	// convention as A.
	Sigma []*mat.Dense

	// Mu holds the mean vectors, one row per sample. Use Column to wrap
	// a scalar-per-sample series.
	Mu *mat.Dense

	// T holds dwell-time scalars, one row per sample. Values must
	// already be transformed as -log(1 - p) by the upstream fitter; no
	// transform is applied here.
	T *mat.Dense
}

// Column wraps a per-sample scalar series as a single-column matrix, the
// form ParameterRecord expects for Mu and T.
func Column(values []float64) *mat.Dense {
	m := mat.NewDense(len(values), 1, nil)
	for i, v := range values {
		m.Set(i, 0, v)
	}
	return m
}

// Config controls feature construction and backend selection.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// Algorithm selects the clustering backend.
	// Default: AlgorithmBayesian.
	Algorithm Algorithm

	// Eigs reduces each matrix-valued parameter to the real parts of
	// its eigenvalues instead of flattening it. Default: false.
	Eigs bool

	// Diags reduces each matrix-valued parameter to its diagonal.
	// Ignored when Eigs is true. Default: false.
	Diags bool

	// ConvertRZ collapses a 3-dimensional eigenvalue set to a radial
	// energy + axial pair: for A, re(l1)^2+re(l2)^2 and re(l3); for
	// Sigma, re(l1)+re(l2) and re(l3). Only consulted when Eigs is
	// true. Default: false.
	ConvertRZ bool

	// TrimFraction is the fraction of extreme values excluded from the
	// per-column statistics during standardization (agglomerative
	// backend only). See stats.RemoveOutliers. 0 means the default of
	// 0.05; to standardize without trimming, set a fraction too small
	// to drop a value (any fraction below 2/n_samples).
	TrimFraction float64

	// Agglomerative configures the agglomerative backend. Only
	// consulted when Algorithm is AlgorithmAgglomerative.
	Agglomerative AgglomerativeConfig

	// Bayesian configures the Gaussian mixture backend. Only consulted
	// when Algorithm is AlgorithmBayesian.
	Bayesian BayesianConfig
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Algorithm:    AlgorithmBayesian,
		TrimFraction: 0.05,
		Agglomerative: AgglomerativeConfig{
			DistanceThreshold: 2.0,
			Linkage:           LinkageWard,
			Metric:            EuclideanMetric{},
		},
		Bayesian: BayesianConfig{
			NComponents:                  10,
			MaxIter:                      1500,
			Tol:                          1e-3,
			WeightConcentrationPriorType: DirichletProcess,
			MeanPrecisionPrior:           1,
			InitParams:                   InitRandom,
			Seed:                         42,
		},
	}
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmBayesian
	}
	if cfg.TrimFraction == 0 {
		cfg.TrimFraction = 0.05
	}
	if cfg.Agglomerative.DistanceThreshold == 0 && cfg.Agglomerative.NClusters == 0 {
		cfg.Agglomerative.DistanceThreshold = 2.0
	}
	if cfg.Agglomerative.Linkage == "" {
		cfg.Agglomerative.Linkage = LinkageWard
	}
	if cfg.Agglomerative.Metric == nil {
		cfg.Agglomerative.Metric = EuclideanMetric{}
	}
	if cfg.Bayesian.NComponents == 0 {
		cfg.Bayesian.NComponents = 10
	}
	if cfg.Bayesian.MaxIter == 0 {
		cfg.Bayesian.MaxIter = 1500
	}
	if cfg.Bayesian.Tol == 0 {
		cfg.Bayesian.Tol = 1e-3
	}
	if cfg.Bayesian.WeightConcentrationPriorType == "" {
		cfg.Bayesian.WeightConcentrationPriorType = DirichletProcess
	}
	if cfg.Bayesian.MeanPrecisionPrior == 0 {
		cfg.Bayesian.MeanPrecisionPrior = 1
	}
	if cfg.Bayesian.InitParams == "" {
		cfg.Bayesian.InitParams = InitRandom
	}
	if cfg.Bayesian.Seed == 0 {
		cfg.Bayesian.Seed = 42
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	switch cfg.Algorithm {
	case AlgorithmAgglomerative, AlgorithmBayesian:
		// valid
	default:
		return fmt.Errorf("%w: %q (use %q or %q)",
			ErrUnknownAlgorithm, cfg.Algorithm, AlgorithmAgglomerative, AlgorithmBayesian)
	}
	if cfg.TrimFraction < 0 || cfg.TrimFraction >= 1 {
		return fmt.Errorf("hdphmm: TrimFraction must be in [0, 1), got %f", cfg.TrimFraction)
	}
	if cfg.Algorithm == AlgorithmAgglomerative {
		return validateAgglomerative(&cfg.Agglomerative)
	}
	return validateBayesian(&cfg.Bayesian)
}

// Cluster groups AR(1) parameter samples by similarity of their fitted
// dynamics. The feature matrix is built at construction time and fixed
// thereafter; Fit produces the label assignment.
type Cluster struct {
	cfg       Config
	x         *mat.Dense
	labels    []int
	nclusters int
}

// New builds the feature matrix from params and prepares the configured
// backend. params must be a ParameterRecord, *ParameterRecord, or
// []ParameterRecord; any other type returns ErrBadInput.
//
// When the agglomerative backend is selected, each feature column is
// standardized by the mean and population standard deviation of its
// outlier-trimmed values (the outliers are excluded only from the
// statistics, not from the data). The Bayesian backend receives the raw
// features.
func New(params any, cfg Config) (*Cluster, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	// A fixed target count takes precedence over the distance threshold.
	if cfg.Agglomerative.NClusters > 0 {
		cfg.Agglomerative.DistanceThreshold = 0
	}

	var (
		x   *mat.Dense
		err error
	)
	switch p := params.(type) {
	case ParameterRecord:
		x, err = buildFeatures(&p, &cfg)
	case *ParameterRecord:
		x, err = buildFeatures(p, &cfg)
	case []ParameterRecord:
		x, err = buildFeaturesMulti(p, &cfg)
	default:
		return nil, fmt.Errorf("%w: %T (pass a ParameterRecord or a []ParameterRecord)", ErrBadInput, params)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Algorithm == AlgorithmAgglomerative {
		if err := standardize(x, cfg.TrimFraction); err != nil {
			return nil, err
		}
	}

	return &Cluster{cfg: cfg, x: x}, nil
}

// clusterer is the contract both backends satisfy: one raw integer label
// per row of x. Raw labels carry no guarantees beyond same-label rows
// being judged similar; Fit remaps them to a dense range.
type clusterer interface {
	FitPredict(x *mat.Dense) ([]int, error)
}

// Fit runs the configured backend on the feature matrix and stores the
// canonicalized labels. Any numerical failure inside the backend is
// returned as-is; there is no retry and no fallback between backends.
func (c *Cluster) Fit() error {
	var backend clusterer
	switch c.cfg.Algorithm {
	case AlgorithmAgglomerative:
		backend = newAgglomerative(c.cfg.Agglomerative)
	default:
		backend = newBayesianMixture(c.cfg.Bayesian)
	}

	raw, err := backend.FitPredict(c.x)
	if err != nil {
		return err
	}

	c.labels, c.nclusters = remapLabels(raw)
	return nil
}

// remapLabels rewrites raw backend labels to a dense 0-based range: each
// raw label maps to its rank in the sorted set of unique raw labels.
// Returns the remapped labels and the number of distinct clusters.
func remapLabels(raw []int) ([]int, int) {
	seen := make(map[int]struct{}, len(raw))
	for _, l := range raw {
		seen[l] = struct{}{}
	}

	unique := make([]int, 0, len(seen))
	for l := range seen {
		unique = append(unique, l)
	}
	sort.Ints(unique)

	rank := make(map[int]int, len(unique))
	for i, l := range unique {
		rank[l] = i
	}

	labels := make([]int, len(raw))
	for i, l := range raw {
		labels[i] = rank[l]
	}
	return labels, len(unique)
}

// Labels returns the cluster assignment per sample, densely numbered
// 0..NClusters()-1, or nil before Fit. Callers must not modify the
// returned slice.
func (c *Cluster) Labels() []int { return c.labels }

// NClusters returns the discovered cluster count, or 0 before Fit.
func (c *Cluster) NClusters() int { return c.nclusters }

// FeatureMatrix returns the feature matrix built at construction, one
// row per sample. Callers must not modify it.
func (c *Cluster) FeatureMatrix() *mat.Dense { return c.x }

// Config returns the effective configuration after defaults and the
// NClusters/DistanceThreshold precedence rule have been applied.
func (c *Cluster) Config() Config { return c.cfg }
