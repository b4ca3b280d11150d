package aggregate

import (
	"context"
	"math"
	"slices"
)

// checkEvery is how many rows are folded between context checks.
const checkEvery = 4096

// Group is one aggregated output row. SampleCount is always at least 1.
type Group struct {
	GroupKey    string             `json:"groupKey"`
	SampleCount int                `json:"sampleCount"`
	Metrics     map[string]float64 `json:"metrics"`
}

// accumulator holds the running state of one group. order is the position at
// which the group was first seen and breaks ranking ties.
type accumulator struct {
	key   string
	order int
	count int
	sums  []float64
	mins  []float64
	maxs  []float64
}

// ranked is a finished group with its ranking value pulled out.
type ranked struct {
	group Group
	order int
	value float64
}

// Aggregate folds rows into groups in a single pass, finishes every group's
// metrics, and returns the groups sorted by spec.RankBy descending. Equal
// values keep the order in which their groups were first seen. With a
// positive Limit only the top Limit groups are returned.
func Aggregate[R any](ctx context.Context, rows []R, spec Spec[R]) ([]Group, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	groups := make(map[string]*accumulator)
	var seen []*accumulator
	n := len(spec.Metrics)

	for i, row := range rows {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		key, ok := spec.GroupBy(row)
		if !ok {
			continue
		}
		acc, exists := groups[key]
		if !exists {
			acc = &accumulator{
				key:   key,
				order: len(seen),
				sums:  make([]float64, n),
				mins:  make([]float64, n),
				maxs:  make([]float64, n),
			}
			for j := range acc.mins {
				acc.mins[j] = math.Inf(1)
				acc.maxs[j] = math.Inf(-1)
			}
			groups[key] = acc
			seen = append(seen, acc)
		}
		acc.count++
		for j, m := range spec.Metrics {
			if m.Kind == Count {
				continue
			}
			v := m.Value(row)
			acc.sums[j] += v
			if v < acc.mins[j] {
				acc.mins[j] = v
			}
			if v > acc.maxs[j] {
				acc.maxs[j] = v
			}
		}
	}

	finished := make([]ranked, 0, len(seen))
	for _, acc := range seen {
		g := finish(acc, spec)
		finished = append(finished, ranked{group: g, order: acc.order, value: g.Metrics[spec.RankBy]})
	}

	if spec.Limit > 0 && spec.Limit < len(finished) {
		finished = topK(finished, spec.Limit)
	} else {
		slices.SortStableFunc(finished, compareRanked)
	}

	out := make([]Group, len(finished))
	for i, r := range finished {
		out[i] = r.group
	}
	return out, nil
}

func finish[R any](acc *accumulator, spec Spec[R]) Group {
	metrics := make(map[string]float64, len(spec.Metrics)+len(spec.Derived))
	raw := make(map[string]float64, len(spec.Metrics)+len(spec.Derived))
	count := float64(acc.count)
	for j, m := range spec.Metrics {
		var v float64
		switch m.Kind {
		case Avg:
			v = acc.sums[j] / count
		case Sum:
			v = acc.sums[j]
		case Count:
			v = count
		case Percent:
			v = acc.sums[j] / count * 100
		case Min:
			v = acc.mins[j]
		case Max:
			v = acc.maxs[j]
		}
		raw[m.Name] = v
		if m.Rounded {
			v = round(v, m.Decimals)
		}
		metrics[m.Name] = v
	}
	for _, d := range spec.Derived {
		v := d.Fn(raw)
		raw[d.Name] = v
		if d.Rounded {
			v = round(v, d.Decimals)
		}
		metrics[d.Name] = v
	}
	return Group{GroupKey: acc.key, SampleCount: acc.count, Metrics: metrics}
}

// compareRanked orders a before b when a ranks higher. NaN ranks below every
// number; equal values fall back to discovery order.
func compareRanked(a, b ranked) int {
	an, bn := math.IsNaN(a.value), math.IsNaN(b.value)
	switch {
	case an && !bn:
		return 1
	case !an && bn:
		return -1
	case !an && !bn && a.value != b.value:
		if a.value > b.value {
			return -1
		}
		return 1
	}
	return a.order - b.order
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
