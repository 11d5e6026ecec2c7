package cost

// ValidationFlag is the ranked outcome of reconciling a cost claim against
// measured telemetry. The order is a fixed total severity order; combining
// flags keeps the most severe one.
type ValidationFlag string

const (
	FlagOK              ValidationFlag = "OK"
	FlagNeedsReview     ValidationFlag = "NEEDS_REVIEW"
	FlagTimeMismatch    ValidationFlag = "TIME_MISMATCH"
	FlagGPSMismatch     ValidationFlag = "GPS_MISMATCH"
	FlagMissingEvidence ValidationFlag = "MISSING_EVIDENCE"
)

// Severity returns the flag's position in the total order
// OK < NEEDS_REVIEW < TIME_MISMATCH < GPS_MISMATCH < MISSING_EVIDENCE.
func (f ValidationFlag) Severity() int {
	switch f {
	case FlagOK:
		return 0
	case FlagNeedsReview:
		return 1
	case FlagTimeMismatch:
		return 2
	case FlagGPSMismatch:
		return 3
	case FlagMissingEvidence:
		return 4
	default:
		return -1
	}
}

// Valid reports whether f is one of the known flags.
func (f ValidationFlag) Valid() bool {
	return f.Severity() >= 0
}

// MaxFlag returns the more severe of two flags, independent of evaluation
// order.
func MaxFlag(a, b ValidationFlag) ValidationFlag {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}
