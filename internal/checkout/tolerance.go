package checkout

import "math"

// DefaultTolerance is the price comparison slack applied at the API boundary
// when the request does not supply one.
const DefaultTolerance = 0.01

// WithinTolerance reports whether actual is within tolerance of expected.
// A zero tolerance demands an exact match.
func WithinTolerance(expected, actual, tolerance float64) bool {
	return math.Abs(expected-actual) <= tolerance
}
