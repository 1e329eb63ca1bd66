package search

import amerrors "github.com/Aman-CERP/amanrag/internal/errors"

// Metric is the vector distance function a workspace index was built with.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
	MetricInner  Metric = "inner"
)

// MetricPolicy describes how raw vector scores of a metric are ordered and
// accepted when padding results.
type MetricPolicy struct {
	// LowerIsBetter sorts ascending when set.
	LowerIsBetter bool

	// NullFill stands in for a missing vector score. It always sorts last.
	NullFill float64

	// Accept is the absolute similarity band a padding candidate must clear.
	Accept func(score float64) bool
}

// inner scores are negated inner products, so smaller is more similar.
// cosine and l2 are read as "bigger is better" when padding.
var metricPolicies = map[Metric]MetricPolicy{
	MetricInner: {
		LowerIsBetter: true,
		NullFill:      1,
		Accept:        func(s float64) bool { return s < -0.5 },
	},
	MetricCosine: {
		LowerIsBetter: false,
		NullFill:      -1,
		Accept:        func(s float64) bool { return s > 0.5 },
	},
	MetricL2: {
		LowerIsBetter: false,
		NullFill:      -1,
		Accept:        func(s float64) bool { return s > 0.5 },
	},
}

// ParseMetric validates a workspace metric name. Names match exactly.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := metricPolicies[m]; !ok {
		return "", amerrors.UnsupportedMetric(s)
	}
	return m, nil
}

// Policy returns the padding policy for m. Unknown metrics get the
// cosine policy; callers validate with ParseMetric first.
func (m Metric) Policy() MetricPolicy {
	if p, ok := metricPolicies[m]; ok {
		return p
	}
	return metricPolicies[MetricCosine]
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	_, ok := metricPolicies[m]
	return ok
}

// fill returns the score, or the policy's null fill when absent.
func (p MetricPolicy) fill(score *float64) float64 {
	if score == nil {
		return p.NullFill
	}
	return *score
}

// better reports whether a should sort before b.
func (p MetricPolicy) better(a, b float64) bool {
	if p.LowerIsBetter {
		return a < b
	}
	return a > b
}
