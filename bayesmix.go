package hdphmm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"
)

// Weight concentration prior types for the Bayesian mixture.
const (
	// DirichletProcess uses a truncated stick-breaking representation;
	// NComponents is the truncation level.
	DirichletProcess = "dirichlet_process"
	// DirichletDistribution uses a finite symmetric Dirichlet over
	// exactly NComponents weights.
	DirichletDistribution = "dirichlet_distribution"
)

// Responsibility initialization policies for the Bayesian mixture.
const (
	// InitRandom draws uniform random responsibilities per sample.
	InitRandom = "random"
	// InitKMeans assigns initial responsibilities from a short k-means
	// run with k-means++ seeding.
	InitKMeans = "kmeans"
)

// regCovar is the ridge added to covariance diagonals before
// factorization, matching common mixture implementations.
const regCovar = 1e-6

// BayesianConfig controls the variational Bayesian Gaussian mixture
// backend.
type BayesianConfig struct {
	// NComponents is the ceiling on mixture components. The
	// concentration prior can drive excess components' weights to near
	// zero, so the effective cluster count may be lower. Default: 10.
	NComponents int

	// MaxIter caps the variational iterations. Reaching the cap without
	// convergence is not an error; the labels at cutoff are returned.
	// Default: 1500.
	MaxIter int

	// Tol is the convergence threshold on the per-sample log
	// normalizer. Default: 1e-3.
	Tol float64

	// WeightConcentrationPriorType is DirichletProcess or
	// DirichletDistribution. Default: DirichletProcess.
	WeightConcentrationPriorType string

	// WeightConcentrationPrior is the concentration strength. Higher
	// values activate more components. 0 means 1/NComponents.
	WeightConcentrationPrior float64

	// MeanPrecisionPrior scales how strongly component means shrink
	// toward the data mean. Must be > 0. Default: 1.
	MeanPrecisionPrior float64

	// InitParams is the responsibility initialization policy, InitRandom
	// or InitKMeans. Default: InitRandom.
	InitParams string

	// Seed fixes the random initialization so repeated fits are
	// reproducible. 0 means the default seed of 42; every value,
	// including the default, yields deterministic fits.
	Seed int64
}

func validateBayesian(cfg *BayesianConfig) error {
	if cfg.NComponents < 1 {
		return fmt.Errorf("hdphmm: NComponents must be >= 1, got %d", cfg.NComponents)
	}
	if cfg.MaxIter < 1 {
		return fmt.Errorf("hdphmm: MaxIter must be >= 1, got %d", cfg.MaxIter)
	}
	if cfg.Tol <= 0 {
		return fmt.Errorf("hdphmm: Tol must be > 0, got %f", cfg.Tol)
	}
	switch cfg.WeightConcentrationPriorType {
	case DirichletProcess, DirichletDistribution:
		// valid
	default:
		return fmt.Errorf("hdphmm: invalid WeightConcentrationPriorType %q (use %q or %q)",
			cfg.WeightConcentrationPriorType, DirichletProcess, DirichletDistribution)
	}
	if cfg.WeightConcentrationPrior < 0 {
		return fmt.Errorf("hdphmm: WeightConcentrationPrior must be >= 0, got %f", cfg.WeightConcentrationPrior)
	}
	if cfg.MeanPrecisionPrior <= 0 {
		return fmt.Errorf("hdphmm: MeanPrecisionPrior must be > 0, got %f", cfg.MeanPrecisionPrior)
	}
	switch cfg.InitParams {
	case InitRandom, InitKMeans:
		// valid
	default:
		return fmt.Errorf("hdphmm: invalid InitParams %q (use %q or %q)", cfg.InitParams, InitRandom, InitKMeans)
	}
	return nil
}

// bayesianMixture fits a Gaussian mixture with full covariances by
// variational inference (Bishop, "Pattern Recognition and Machine
// Learning", ch. 10). Mixture weights follow either a truncated
// stick-breaking process or a finite Dirichlet, per the configured
// prior type.
type bayesianMixture struct {
	cfg BayesianConfig
	rng *rand.Rand
}

func newBayesianMixture(cfg BayesianConfig) *bayesianMixture {
	return &bayesianMixture{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// mixComponent holds the variational posterior of one component.
type mixComponent struct {
	beta float64 // mean precision scale
	nu   float64 // Wishart degrees of freedom
	mean []float64
	// chol factorizes the inverse scale matrix Winv_k, so
	// u^T W_k u is a triangular solve away.
	chol      mat.Cholesky
	logLambda float64 // E[ln |Lambda_k|]
	logPi     float64 // E[ln pi_k]
}

// FitPredict fits the mixture to the rows of x and assigns each row to
// the component with the highest posterior responsibility.
func (b *bayesianMixture) FitPredict(x *mat.Dense) ([]int, error) {
	n, d := x.Dims()
	if n == 0 {
		return nil, errors.New("hdphmm: empty feature matrix")
	}
	k := b.cfg.NComponents
	if n < k {
		return nil, fmt.Errorf("hdphmm: need at least %d samples for %d mixture components, got %d", k, k, n)
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	gamma0 := b.cfg.WeightConcentrationPrior
	if gamma0 == 0 {
		gamma0 = 1 / float64(k)
	}
	beta0 := b.cfg.MeanPrecisionPrior
	nu0 := float64(d)

	// The data mean and covariance set the location and scale priors, so
	// the prior expected precision matches the empirical one.
	col := make([]float64, n)
	m0 := make([]float64, d)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		m0[j] = stat.Mean(col, nil)
	}
	winv0 := mat.NewSymDense(d, nil)
	if n > 1 {
		cov := mat.NewSymDense(d, nil)
		stat.CovarianceMatrix(cov, x, nil)
		for p := 0; p < d; p++ {
			for q := p; q < d; q++ {
				winv0.SetSym(p, q, nu0*cov.At(p, q))
			}
		}
	}
	for p := 0; p < d; p++ {
		winv0.SetSym(p, p, winv0.At(p, p)+regCovar)
	}

	resp := b.initResponsibilities(rows, k)

	prev := math.Inf(-1)
	for iter := 0; iter < b.cfg.MaxIter; iter++ {
		comps, err := b.estimateComponents(rows, resp, gamma0, beta0, nu0, m0, winv0)
		if err != nil {
			return nil, err
		}
		norm, err := b.updateResponsibilities(rows, comps, resp)
		if err != nil {
			return nil, err
		}
		if iter > 0 && math.Abs(norm-prev) < b.cfg.Tol {
			break
		}
		prev = norm
	}

	labels := make([]int, n)
	for i := range labels {
		best := math.Inf(-1)
		for j, r := range resp[i] {
			if r > best {
				best = r
				labels[i] = j
			}
		}
	}
	return labels, nil
}

// estimateComponents runs the M-step: posterior component parameters and
// expected log weights from the current responsibilities.
func (b *bayesianMixture) estimateComponents(rows, resp [][]float64, gamma0, beta0, nu0 float64, m0 []float64, winv0 *mat.SymDense) ([]mixComponent, error) {
	d := len(m0)
	k := len(resp[0])

	nk := make([]float64, k)
	for i := range resp {
		for j := 0; j < k; j++ {
			nk[j] += resp[i][j]
		}
	}
	// Keep empty components numerically alive.
	for j := range nk {
		nk[j] += 1e-10
	}

	xbar := make([][]float64, k)
	for j := range xbar {
		xbar[j] = make([]float64, d)
	}
	for i, row := range rows {
		for j := 0; j < k; j++ {
			for dim := 0; dim < d; dim++ {
				xbar[j][dim] += resp[i][j] * row[dim]
			}
		}
	}
	for j := range xbar {
		for dim := range xbar[j] {
			xbar[j][dim] /= nk[j]
		}
	}

	comps := make([]mixComponent, k)
	winv := mat.NewSymDense(d, nil)
	for j := 0; j < k; j++ {
		// Winv_k = Winv0 + sum_i r_ij (x_i - xbar_j)(x_i - xbar_j)^T
		//        + beta0 N_j / (beta0 + N_j) (xbar_j - m0)(xbar_j - m0)^T
		shrink := beta0 * nk[j] / (beta0 + nk[j])
		for p := 0; p < d; p++ {
			for q := p; q < d; q++ {
				s := winv0.At(p, q)
				for i, row := range rows {
					s += resp[i][j] * (row[p] - xbar[j][p]) * (row[q] - xbar[j][q])
				}
				s += shrink * (xbar[j][p] - m0[p]) * (xbar[j][q] - m0[q])
				winv.SetSym(p, q, s)
			}
		}
		for p := 0; p < d; p++ {
			winv.SetSym(p, p, winv.At(p, p)+regCovar)
		}

		c := &comps[j]
		c.beta = beta0 + nk[j]
		c.nu = nu0 + nk[j]
		c.mean = make([]float64, d)
		for dim := 0; dim < d; dim++ {
			c.mean[dim] = (beta0*m0[dim] + nk[j]*xbar[j][dim]) / c.beta
		}
		if ok := c.chol.Factorize(winv); !ok {
			return nil, fmt.Errorf("hdphmm: singular covariance in mixture component %d", j)
		}
		// E[ln |Lambda_k|] = sum_i psi((nu_k + 1 - i)/2) + d ln 2 - ln |Winv_k|
		c.logLambda = float64(d)*math.Ln2 - c.chol.LogDet()
		for i := 1; i <= d; i++ {
			c.logLambda += mathext.Digamma((c.nu + 1 - float64(i)) / 2)
		}
	}

	switch b.cfg.WeightConcentrationPriorType {
	case DirichletDistribution:
		var sum float64
		for j := range nk {
			sum += gamma0 + nk[j]
		}
		psiSum := mathext.Digamma(sum)
		for j := range comps {
			comps[j].logPi = mathext.Digamma(gamma0+nk[j]) - psiSum
		}
	default:
		// Truncated stick-breaking: component j keeps a Beta(1+N_j,
		// gamma0 + sum_{l>j} N_l) fraction of the remaining stick.
		tail := make([]float64, k)
		for j := k - 2; j >= 0; j-- {
			tail[j] = tail[j+1] + nk[j+1]
		}
		var acc float64 // sum of E[ln(1 - V_l)] for l < j
		for j := range comps {
			g1 := 1 + nk[j]
			g2 := gamma0 + tail[j]
			psiBoth := mathext.Digamma(g1 + g2)
			comps[j].logPi = mathext.Digamma(g1) - psiBoth + acc
			acc += mathext.Digamma(g2) - psiBoth
		}
	}

	return comps, nil
}

// updateResponsibilities runs the E-step in place and returns the mean
// per-sample log normalizer, the quantity monitored for convergence.
func (b *bayesianMixture) updateResponsibilities(rows [][]float64, comps []mixComponent, resp [][]float64) (float64, error) {
	d := len(rows[0])
	k := len(comps)
	halfD := float64(d) / 2
	log2pi := math.Log(2 * math.Pi)

	logp := make([]float64, k)
	u := mat.NewVecDense(d, nil)
	y := mat.NewVecDense(d, nil)

	var total float64
	for i, row := range rows {
		for j := 0; j < k; j++ {
			c := &comps[j]
			for dim := 0; dim < d; dim++ {
				u.SetVec(dim, row[dim]-c.mean[dim])
			}
			if err := c.chol.SolveVecTo(y, u); err != nil {
				return 0, fmt.Errorf("hdphmm: ill-conditioned covariance in mixture component %d: %w", j, err)
			}
			quad := mat.Dot(u, y)
			logp[j] = c.logPi + 0.5*c.logLambda - halfD*log2pi - halfD/c.beta - 0.5*c.nu*quad
		}
		norm := floats.LogSumExp(logp)
		for j := 0; j < k; j++ {
			resp[i][j] = math.Exp(logp[j] - norm)
		}
		total += norm
	}
	return total / float64(len(rows)), nil
}

func (b *bayesianMixture) initResponsibilities(rows [][]float64, k int) [][]float64 {
	n := len(rows)
	resp := make([][]float64, n)

	if b.cfg.InitParams == InitKMeans {
		assign := b.kmeansAssign(rows, k)
		for i := range resp {
			resp[i] = make([]float64, k)
			resp[i][assign[i]] = 1
		}
		return resp
	}

	for i := range resp {
		resp[i] = make([]float64, k)
		var sum float64
		for j := range resp[i] {
			v := b.rng.Float64()
			resp[i][j] = v
			sum += v
		}
		for j := range resp[i] {
			resp[i][j] /= sum
		}
	}
	return resp
}

// kmeansAssign produces an initial hard assignment via k-means++ seeding
// and a short Lloyd refinement.
func (b *bayesianMixture) kmeansAssign(rows [][]float64, k int) []int {
	n := len(rows)
	d := len(rows[0])

	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), rows[b.rng.Intn(n)]...))
	dist2 := make([]float64, n)
	for len(centers) < k {
		var total float64
		for i, row := range rows {
			best := math.Inf(1)
			for _, c := range centers {
				if v := squaredEuclidean(row, c); v < best {
					best = v
				}
			}
			dist2[i] = best
			total += best
		}

		idx := n - 1
		if total > 0 {
			r := b.rng.Float64() * total
			var acc float64
			for i, v := range dist2 {
				acc += v
				if acc >= r {
					idx = i
					break
				}
			}
		} else {
			idx = b.rng.Intn(n)
		}
		centers = append(centers, append([]float64(nil), rows[idx]...))
	}

	assign := make([]int, n)
	counts := make([]int, k)
	for iter := 0; iter < 10; iter++ {
		changed := false
		for i, row := range rows {
			best := math.Inf(1)
			bj := 0
			for j, c := range centers {
				if v := squaredEuclidean(row, c); v < best {
					best, bj = v, j
				}
			}
			if assign[i] != bj {
				assign[i] = bj
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		for j := range centers {
			for dim := range centers[j] {
				centers[j][dim] = 0
			}
			counts[j] = 0
		}
		for i, row := range rows {
			j := assign[i]
			counts[j]++
			for dim := 0; dim < d; dim++ {
				centers[j][dim] += row[dim]
			}
		}
		for j := range centers {
			if counts[j] == 0 {
				copy(centers[j], rows[b.rng.Intn(n)])
				continue
			}
			for dim := range centers[j] {
				centers[j][dim] /= float64(counts[j])
			}
		}
	}
	return assign
}
