package optimize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/ledger"
)

func TestFitForestLearnsStepFunction(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var x [][]float64
	var y []float64
	for i := 0; i < 60; i++ {
		v := float64(i) / 10
		x = append(x, []float64{v})
		if v < 3 {
			y = append(y, 0.2)
		} else {
			y = append(y, 0.8)
		}
	}

	f, err := FitForest(x, y, ForestConfig{Trees: 16, MaxDepth: 4, MinLeaf: 2, FeatureFrac: 1}, rng)
	require.NoError(t, err)
	require.Len(t, f.Trees, 16)
	assert.Equal(t, 1, f.Features)

	assert.InDelta(t, 0.2, f.Predict([]float64{1.0}), 0.05)
	assert.InDelta(t, 0.8, f.Predict([]float64{5.0}), 0.05)

	pred := f.PredictAll(x)
	assert.Greater(t, RSquared(pred, y), 0.9)
	assert.Less(t, MeanSquaredError(pred, y), 0.01)
}

func TestFitForestValidatesInput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := FitForest(nil, nil, ForestConfig{}, rng)
	require.Error(t, err)
	assert.Equal(t, "input/empty_training_set", domain.CodeOf(err))

	_, err = FitForest([][]float64{{1, 2}, {3}}, []float64{0.1, 0.2}, ForestConfig{}, rng)
	require.Error(t, err)
	assert.Equal(t, "input/ragged_features", domain.CodeOf(err))
}

func TestForestZeroValuePredictsZero(t *testing.T) {
	var f Forest
	assert.Zero(t, f.Predict([]float64{1, 2, 3}))
}

func TestScalerCentersAndGuardsConstants(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 10}, {3, 10}})
	require.NoError(t, err)

	assert.InDelta(t, 2, s.Mean[0], 1e-12)
	assert.InDelta(t, 1, s.Std[0], 1e-12)
	assert.InDelta(t, 1, s.Std[1], 1e-12, "constant column keeps unit deviation")

	row := s.Transform([]float64{3, 12})
	assert.InDelta(t, 1, row[0], 1e-12)
	assert.InDelta(t, 2, row[1], 1e-12)

	_, err = FitScaler(nil)
	require.Error(t, err)
	assert.Equal(t, "input/empty_training_set", domain.CodeOf(err))
}

func TestRegressionMetrics(t *testing.T) {
	assert.InDelta(t, 1, RSquared([]float64{1, 2}, []float64{1, 2}), 1e-12)
	assert.Zero(t, RSquared([]float64{0.5, 0.5}, []float64{0.5, 0.5}), "zero-variance target cannot certify a model")
	assert.InDelta(t, 0.01, MeanSquaredError([]float64{1.1, 1.9}, []float64{1, 2}), 1e-9)
	assert.Zero(t, MeanSquaredError(nil, nil))
}

func TestBuildDatasetFiltersRecords(t *testing.T) {
	keys := []string{"a", "b"}
	params := map[string]interface{}{"a": 0.1, "b": 0.2}
	recs := []ledger.Record{
		{Kind: ledger.KindAcceptance, Payload: map[string]interface{}{"niche": "generic", "performance": 0.9, "params": params}},
		{Kind: ledger.KindValidation, Payload: map[string]interface{}{"niche": "generic", "performance": 0.4, "params": map[string]float64{"a": 0.3, "b": 0.4}}},
		{Kind: ledger.KindRejection, Payload: map[string]interface{}{"niche": "finance", "performance": 0.2, "params": params}},
		{Kind: ledger.KindAcceptance, Payload: map[string]interface{}{"niche": "generic", "params": params}},
		{Kind: ledger.KindAcceptance, Payload: map[string]interface{}{"niche": "generic", "performance": 0.5, "params": map[string]interface{}{"a": 0.1}}},
		{Kind: ledger.KindProcessing, Payload: map[string]interface{}{"niche": "generic", "performance": 0.5, "params": params}},
	}

	ds := BuildDataset(recs, keys, "generic")
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, 3, ds.Skipped, "wrong niche, missing performance and missing key are skipped")
	assert.Equal(t, []float64{0.1, 0.2}, ds.X[0])
	assert.Equal(t, []float64{0.3, 0.4}, ds.X[1])
	assert.Equal(t, []float64{0.9, 0.4}, ds.Y)
}

func TestDatasetSplitKeepsEveryRow(t *testing.T) {
	ds := &Dataset{Keys: []string{"a"}}
	for i := 0; i < 10; i++ {
		ds.X = append(ds.X, []float64{float64(i)})
		ds.Y = append(ds.Y, float64(i))
	}

	train, test := ds.Split(0.2, rand.New(rand.NewSource(3)))
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, test.Len())

	one := &Dataset{X: [][]float64{{1}}, Y: []float64{1}}
	tr, te := one.Split(0.5, rand.New(rand.NewSource(1)))
	assert.Equal(t, 1, tr.Len())
	assert.Zero(t, te.Len())
}

func TestDatasetTail(t *testing.T) {
	ds := &Dataset{}
	for i := 0; i < 10; i++ {
		ds.X = append(ds.X, []float64{float64(i)})
		ds.Y = append(ds.Y, float64(i))
	}

	mean, ok := ds.Tail(4)
	require.True(t, ok)
	assert.InDelta(t, 7.5, mean, 1e-12)

	mean, ok = ds.Tail(0)
	require.True(t, ok)
	assert.InDelta(t, 4.5, mean, 1e-12, "out-of-range n falls back to the full mean")

	_, ok = (&Dataset{}).Tail(3)
	assert.False(t, ok)
}
