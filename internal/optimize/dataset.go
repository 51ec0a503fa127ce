package optimize

import (
	"math/rand"

	"github.com/seoscope/keywordrun/internal/ledger"
)

// Dataset is a training matrix extracted from journal outcome events.
// Rows keep journal write order, so the tail is the most recent activity.
type Dataset struct {
	Keys    []string
	X       [][]float64
	Y       []float64
	Skipped int
}

// Len returns the number of usable rows.
func (d *Dataset) Len() int { return len(d.Y) }

// BuildDataset turns outcome records into feature rows. Only acceptance,
// rejection and validation events qualify, and only when they carry the
// niche tag plus a complete parameter vector and a performance value.
// Anything else increments Skipped.
func BuildDataset(records []ledger.Record, keys []string, niche string) *Dataset {
	d := &Dataset{Keys: keys}
	for _, rec := range records {
		switch rec.Kind {
		case ledger.KindAcceptance, ledger.KindRejection, ledger.KindValidation:
		default:
			continue
		}
		row, perf, ok := outcomeRow(rec, keys, niche)
		if !ok {
			d.Skipped++
			continue
		}
		d.X = append(d.X, row)
		d.Y = append(d.Y, perf)
	}
	return d
}

func outcomeRow(rec ledger.Record, keys []string, niche string) ([]float64, float64, bool) {
	if rec.Payload == nil {
		return nil, 0, false
	}
	if got, _ := rec.Payload["niche"].(string); niche != "" && got != niche {
		return nil, 0, false
	}
	perf, ok := toFloat(rec.Payload["performance"])
	if !ok {
		return nil, 0, false
	}
	params, ok := toParams(rec.Payload["params"])
	if !ok {
		return nil, 0, false
	}
	row := make([]float64, len(keys))
	for j, key := range keys {
		v, ok := params[key]
		if !ok {
			return nil, 0, false
		}
		row[j] = v
	}
	return row, perf, true
}

// toParams normalizes the params payload, which is a float map in memory
// but a map of interface{} once it round-trips through JSON.
func toParams(v interface{}) (map[string]float64, bool) {
	switch m := v.(type) {
	case map[string]float64:
		return m, true
	case map[string]interface{}:
		out := make(map[string]float64, len(m))
		for k, raw := range m {
			f, ok := toFloat(raw)
			if !ok {
				return nil, false
			}
			out[k] = f
		}
		return out, true
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Split shuffles the rows and carves off a held-out test fraction. Both
// halves keep at least one row whenever two or more exist.
func (d *Dataset) Split(testFrac float64, rng *rand.Rand) (train, test *Dataset) {
	n := d.Len()
	perm := rng.Perm(n)

	nTest := int(float64(n) * testFrac)
	if nTest < 1 && n >= 2 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}

	train = &Dataset{Keys: d.Keys}
	test = &Dataset{Keys: d.Keys}
	for i, p := range perm {
		if i < nTest {
			test.X = append(test.X, d.X[p])
			test.Y = append(test.Y, d.Y[p])
			continue
		}
		train.X = append(train.X, d.X[p])
		train.Y = append(train.Y, d.Y[p])
	}
	return train, test
}

// Tail returns the mean performance of the most recent n rows, which is
// the observed signal the optimizer compares proposals against. Returns
// false when the dataset is empty.
func (d *Dataset) Tail(n int) (float64, bool) {
	if d.Len() == 0 {
		return 0, false
	}
	if n <= 0 || n > d.Len() {
		n = d.Len()
	}
	sum := 0.0
	for _, y := range d.Y[d.Len()-n:] {
		sum += y
	}
	return sum / float64(n), true
}
