package hdphmm

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/shirtsgroup/hdphmm/stats"
)

// rzMode distinguishes how ConvertRZ collapses the first two eigenvalue
// columns: squared sum for the coefficient matrices, plain sum for the
// covariances.
type rzMode int

const (
	rzSquaredSum rzMode = iota
	rzSum
)

// buildFeatures converts a single trajectory's parameters into the
// feature matrix: the reduced A block, then Sigma, Mu, T, joined
// column-wise in that fixed order with absent blocks omitted.
func buildFeatures(rec *ParameterRecord, cfg *Config) (*mat.Dense, error) {
	blocks := make([]*mat.Dense, 0, 4)

	if rec.A != nil {
		a, err := reduceStack(rec.A, cfg, rzSquaredSum)
		if err != nil {
			return nil, fmt.Errorf("hdphmm: A: %w", err)
		}
		blocks = append(blocks, a)
	}
	if rec.Sigma != nil {
		s, err := reduceStack(rec.Sigma, cfg, rzSum)
		if err != nil {
			return nil, fmt.Errorf("hdphmm: Sigma: %w", err)
		}
		blocks = append(blocks, s)
	}
	if rec.Mu != nil {
		blocks = append(blocks, mat.DenseCopyOf(rec.Mu))
	}
	if rec.T != nil {
		blocks = append(blocks, mat.DenseCopyOf(rec.T))
	}

	return joinColumns(blocks)
}

// buildFeaturesMulti pools samples from several trajectories. Only the A
// and Sigma blocks are concatenated row-wise across records; per-record
// Mu and T are not merged on this path.
func buildFeaturesMulti(recs []ParameterRecord, cfg *Config) (*mat.Dense, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: empty record list", ErrBadInput)
	}

	aBlocks := make([]*mat.Dense, 0, len(recs))
	sBlocks := make([]*mat.Dense, 0, len(recs))
	for i := range recs {
		if recs[i].A == nil || recs[i].Sigma == nil {
			return nil, fmt.Errorf("hdphmm: record %d: multi-trajectory input requires both A and Sigma", i)
		}
		a, err := reduceStack(recs[i].A, cfg, rzSquaredSum)
		if err != nil {
			return nil, fmt.Errorf("hdphmm: record %d: A: %w", i, err)
		}
		s, err := reduceStack(recs[i].Sigma, cfg, rzSum)
		if err != nil {
			return nil, fmt.Errorf("hdphmm: record %d: Sigma: %w", i, err)
		}
		aBlocks = append(aBlocks, a)
		sBlocks = append(sBlocks, s)
	}

	a, err := stackRows(aBlocks)
	if err != nil {
		return nil, fmt.Errorf("hdphmm: A: %w", err)
	}
	s, err := stackRows(sBlocks)
	if err != nil {
		return nil, fmt.Errorf("hdphmm: Sigma: %w", err)
	}

	return joinColumns([]*mat.Dense{a, s})
}

// reduceStack turns a per-sample stack of matrices into an
// n_samples x n_features block: one row per sample holding the real
// eigenvalues, the diagonal, or the row-major flattening of that
// sample's matrix, per the configured reduction mode.
func reduceStack(stack []*mat.Dense, cfg *Config, mode rzMode) (*mat.Dense, error) {
	n := len(stack)
	if n == 0 {
		return nil, errors.New("empty matrix stack")
	}

	r0, c0 := stack[0].Dims()
	for i, m := range stack {
		if r, c := m.Dims(); r != r0 || c != c0 {
			return nil, fmt.Errorf("sample %d has shape %dx%d, want %dx%d", i, r, c, r0, c0)
		}
	}

	switch {
	case cfg.Eigs:
		return eigReduce(stack, mode, cfg.ConvertRZ)

	case cfg.Diags:
		if r0 != c0 {
			return nil, fmt.Errorf("diagonal reduction needs square matrices, got %dx%d", r0, c0)
		}
		out := mat.NewDense(n, r0, nil)
		for i, m := range stack {
			for j := 0; j < r0; j++ {
				out.Set(i, j, m.At(j, j))
			}
		}
		return out, nil

	default:
		out := mat.NewDense(n, r0*c0, nil)
		for i, m := range stack {
			for r := 0; r < r0; r++ {
				for c := 0; c < c0; c++ {
					out.Set(i, r*c0+c, m.At(r, c))
				}
			}
		}
		return out, nil
	}
}

// eigReduce computes the eigenvalues of each sample's matrix and keeps
// only their real parts. The AR(1) systems modeled here are expected to
// yield near-real spectra; imaginary parts are discarded without a
// tolerance check.
func eigReduce(stack []*mat.Dense, mode rzMode, convertRZ bool) (*mat.Dense, error) {
	n := len(stack)
	d, c := stack[0].Dims()
	if d != c {
		return nil, fmt.Errorf("eigenvalue reduction needs square matrices, got %dx%d", d, c)
	}
	if convertRZ && d < 3 {
		return nil, fmt.Errorf("radial/axial conversion needs at least 3 eigenvalues, got %d", d)
	}

	width := d
	if convertRZ {
		width = 2
	}
	out := mat.NewDense(n, width, nil)

	var eig mat.Eigen
	for i, m := range stack {
		if ok := eig.Factorize(m, mat.EigenNone); !ok {
			return nil, fmt.Errorf("eigendecomposition failed for sample %d", i)
		}
		vals := eig.Values(nil)

		if convertRZ {
			r0, r1, r2 := real(vals[0]), real(vals[1]), real(vals[2])
			if mode == rzSquaredSum {
				out.Set(i, 0, r0*r0+r1*r1)
			} else {
				out.Set(i, 0, r0+r1)
			}
			out.Set(i, 1, r2)
			continue
		}
		for j := 0; j < d; j++ {
			out.Set(i, j, real(vals[j]))
		}
	}
	return out, nil
}

// stackRows concatenates blocks row-wise. All blocks must have the same
// column count.
func stackRows(blocks []*mat.Dense) (*mat.Dense, error) {
	_, cols := blocks[0].Dims()
	total := 0
	for i, b := range blocks {
		r, c := b.Dims()
		if c != cols {
			return nil, fmt.Errorf("record %d contributes %d feature columns, want %d", i, c, cols)
		}
		total += r
	}

	out := mat.NewDense(total, cols, nil)
	row := 0
	for _, b := range blocks {
		r, _ := b.Dims()
		out.Slice(row, row+r, 0, cols).(*mat.Dense).Copy(b)
		row += r
	}
	return out, nil
}

// joinColumns concatenates blocks column-wise. All blocks must have the
// same row (sample) count.
func joinColumns(blocks []*mat.Dense) (*mat.Dense, error) {
	if len(blocks) == 0 {
		return nil, errors.New("hdphmm: no parameters present; set at least one of A, Sigma, Mu, T")
	}

	rows, _ := blocks[0].Dims()
	total := 0
	for _, b := range blocks {
		r, c := b.Dims()
		if r != rows {
			return nil, fmt.Errorf("hdphmm: parameter blocks disagree on sample count: %d vs %d", r, rows)
		}
		total += c
	}

	out := mat.NewDense(rows, total, nil)
	col := 0
	for _, b := range blocks {
		_, c := b.Dims()
		out.Slice(0, rows, col, col+c).(*mat.Dense).Copy(b)
		col += c
	}
	return out, nil
}

// standardize z-scores each column of x in place. The shift and scale
// come from the mean and population standard deviation of the column's
// outlier-trimmed values, but apply to every value in the column:
// outliers are excluded only from the statistics, not from the data.
func standardize(x *mat.Dense, trimFraction float64) error {
	rows, cols := x.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		trimmed := stats.RemoveOutliers(col, trimFraction)

		mean := stat.Mean(trimmed, nil)
		std := stat.PopStdDev(trimmed, nil)
		if std == 0 {
			return fmt.Errorf("hdphmm: feature column %d has zero variance after trimming", j)
		}

		for i := 0; i < rows; i++ {
			x.Set(i, j, (x.At(i, j)-mean)/std)
		}
	}
	return nil
}
