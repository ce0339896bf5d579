package distance

import (
	"fmt"
	"strings"

	"github.com/viterin/vek/vek32"

	"github.com/hupe1980/vecforge/errs"
)

// Metric identifies how two vectors are compared. Smaller values are closer
// under every metric.
type Metric uint8

const (
	MetricL2 Metric = iota
	MetricInnerProduct
)

var metricNames = [...]string{
	MetricL2:           "l2",
	MetricInnerProduct: "ip",
}

// String returns the configuration name of m ("l2" or "ip").
func (m Metric) String() string {
	if m.Valid() {
		return metricNames[m]
	}
	return fmt.Sprintf("Metric(%d)", uint8(m))
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool { return int(m) < len(metricNames) }

// ParseMetric accepts "l2" (or "euclidean") and "ip" (or "inner_product",
// "dot"), ignoring case. The empty string selects l2.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2", "euclidean", "":
		return MetricL2, nil
	case "ip", "inner_product", "innerproduct", "dot":
		return MetricInnerProduct, nil
	default:
		return 0, errs.Configuration("distance.parse_metric", "metric", "unsupported metric %q (want l2 or ip)", s)
	}
}

// Func compares two vectors of equal length.
type Func func(a, b []float32) float32

// Provider returns the kernel of m.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricInnerProduct:
		return NegativeDot, nil
	default:
		return nil, errs.Configuration("distance.provider", "metric", "unsupported metric %s", m)
	}
}

// Dot returns the inner product of a and b. Lengths must match.
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

// NegativeDot is the inner-product distance: larger dot products rank first.
func NegativeDot(a, b []float32) float32 { return -Dot(a, b) }

// SquaredL2 returns the squared Euclidean distance. Identical vectors yield
// exactly zero.
func SquaredL2(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	d := vek32.Distance(a, b)
	return d * d
}
