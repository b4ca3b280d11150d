// Package aggregate computes grouped metrics over a row set and returns the
// groups ranked by one metric, optionally limited to the top K.
package aggregate

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
)

// Kind selects how a metric folds its per-row values.
type Kind int

const (
	// Avg is sum/count.
	Avg Kind = iota
	// Sum is the running total.
	Sum
	// Count is the number of rows in the group; Value is ignored.
	Count
	// Percent is sum/count*100, for 0/1 valued rows such as wins.
	Percent
	Min
	Max
)

func (k Kind) String() string {
	switch k {
	case Avg:
		return "avg"
	case Sum:
		return "sum"
	case Count:
		return "count"
	case Percent:
		return "percent"
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MetricSpec names one metric and how to extract its value from a row.
type MetricSpec[R any] struct {
	Name  string
	Kind  Kind
	Value func(R) float64
	// Decimals rounds the final value when Rounded is set.
	Decimals int
	Rounded  bool
}

// Derived computes a metric from the finished metrics of a group, e.g. KDA
// from the kill, death and assist averages. Fn sees the values before
// rounding, including earlier derived metrics; only its result is rounded.
type Derived struct {
	Name     string
	Fn       func(metrics map[string]float64) float64
	Decimals int
	Rounded  bool
}

// Spec describes one aggregation. A zero Limit returns every group.
type Spec[R any] struct {
	// GroupBy returns the group key for a row; ok=false skips the row.
	GroupBy func(R) (key string, ok bool)
	Metrics []MetricSpec[R]
	Derived []Derived
	RankBy  string
	Limit   int
}

// InvalidSpecError reports caller misuse of the aggregation parameters.
type InvalidSpecError struct {
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid aggregation spec: %s", e.Reason)
}

func (e *InvalidSpecError) Unwrap() error {
	return apperrors.ErrInvalidSpec
}

func invalid(format string, args ...any) error {
	return &InvalidSpecError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the spec without touching any rows.
func (s Spec[R]) Validate() error {
	if len(s.Metrics) == 0 {
		return invalid("no metrics requested")
	}
	if s.GroupBy == nil {
		return invalid("group key extractor is required")
	}
	if s.Limit < 0 {
		return invalid("limit must not be negative, got %d", s.Limit)
	}
	names := make(map[string]struct{}, len(s.Metrics)+len(s.Derived))
	for _, m := range s.Metrics {
		if m.Name == "" {
			return invalid("metric without a name")
		}
		if _, dup := names[m.Name]; dup {
			return invalid("duplicate metric %q", m.Name)
		}
		if m.Kind != Count && m.Value == nil {
			return invalid("metric %q (%s) has no value extractor", m.Name, m.Kind)
		}
		names[m.Name] = struct{}{}
	}
	for _, d := range s.Derived {
		if d.Name == "" || d.Fn == nil {
			return invalid("derived metric %q is incomplete", d.Name)
		}
		if _, dup := names[d.Name]; dup {
			return invalid("duplicate metric %q", d.Name)
		}
		names[d.Name] = struct{}{}
	}
	if _, ok := names[s.RankBy]; !ok {
		return invalid("rank metric %q is not among the requested metrics", s.RankBy)
	}
	return nil
}
