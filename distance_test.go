package hdphmm

import (
	"math"
	"testing"
)

func TestDistanceMetricValues(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{4, 0, 3}

	tests := []struct {
		name   string
		metric DistanceMetric
		want   float64
	}{
		{"euclidean", EuclideanMetric{}, math.Sqrt(13)},
		{"manhattan", ManhattanMetric{}, 5},
		{"chebyshev", ChebyshevMetric{}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.metric.Distance(a, b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineMetric(t *testing.T) {
	m := CosineMetric{}

	if got := m.Distance([]float64{1, 0}, []float64{0, 1}); math.Abs(got-1) > 1e-12 {
		t.Errorf("orthogonal vectors: got %f, want 1", got)
	}
	if got := m.Distance([]float64{1, 1}, []float64{3, 3}); math.Abs(got) > 1e-12 {
		t.Errorf("parallel vectors: got %f, want 0", got)
	}
	if got := m.Distance([]float64{0, 0}, []float64{0, 0}); !math.IsNaN(got) {
		t.Errorf("zero vectors: got %f, want NaN", got)
	}
}

func TestDistanceFunc(t *testing.T) {
	halved := DistanceFunc(func(a, b []float64) float64 {
		return EuclideanMetric{}.Distance(a, b) / 2
	})
	a := []float64{0, 0}
	b := []float64{3, 4}
	if got := halved.Distance(a, b); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("got %f, want 2.5", got)
	}
}
