// Package hdphmm clusters fitted AR(1) parameter sets from multiple
// time-series trajectories into groups of like dynamical behavior.
//
// Each trajectory contributes a ParameterRecord holding per-sample
// transition matrices (A), noise covariances (Sigma), means (Mu), and
// dwell-time scalars (T). The records are reduced to a flat feature
// matrix, one row per sample, and clustered with one of two backends:
// agglomerative hierarchical clustering or a variational Bayesian
// Gaussian mixture. The resulting labels are always a dense 0..k-1
// range, suitable as discrete state assignments for downstream
// hierarchical hidden-Markov modeling.
//
// Basic usage:
//
//	cfg := hdphmm.DefaultConfig()
//	cfg.Algorithm = hdphmm.AlgorithmAgglomerative
//	cfg.Agglomerative.NClusters = 3
//
//	c, err := hdphmm.New(record, cfg)
//	if err != nil { ... }
//	if err := c.Fit(); err != nil { ... }
//	// c.Labels()[i] is the cluster ID for sample i
//	// c.NClusters() is the discovered cluster count
//
// Pass a []ParameterRecord to cluster samples pooled from several
// trajectories; only the A and Sigma blocks are concatenated on that
// path.
//
// # Backend selection
//
// AlgorithmAgglomerative merges nearest clusters by a linkage criterion,
// stopping either at a fixed cluster count or at a distance threshold.
// Feature columns are standardized with outlier-trimmed statistics
// before this backend sees them. AlgorithmBayesian fits a Dirichlet
// process Gaussian mixture by variational inference; its component count
// is only a ceiling, and the concentration prior can drive excess
// components' weights to near zero, so fewer effective clusters may
// emerge.
package hdphmm
