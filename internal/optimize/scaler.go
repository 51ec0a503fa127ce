package optimize

import (
	"fmt"
	"math"

	"github.com/seoscope/keywordrun/internal/domain"
)

// StandardScaler centers features to zero mean and unit variance using
// statistics captured at fit time. Fields stay exported for gob.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-feature mean and standard deviation over rows.
// Constant features keep a unit deviation so Transform stays finite.
func FitScaler(x [][]float64) (*StandardScaler, error) {
	if len(x) == 0 {
		return nil, domain.NewInputError("input/empty_training_set", "scaler needs at least one row")
	}
	width := len(x[0])
	s := &StandardScaler{Mean: make([]float64, width), Std: make([]float64, width)}

	for _, row := range x {
		if len(row) != width {
			return nil, domain.NewInputError("input/ragged_features", fmt.Sprintf("row has %d features, want %d", len(row), width))
		}
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	n := float64(len(x))
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return s, nil
}

// Transform scales one feature vector with the fitted statistics.
func (s *StandardScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// TransformAll scales a row set.
func (s *StandardScaler) TransformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.Transform(row)
	}
	return out
}
