package cost

import (
	"fmt"
	"math"
	"strings"
	"time"

	"dispatchflow/geo"
)

// Input is everything the reconciler needs to judge a claim. It carries no
// handles to storage; the decision procedure is pure.
type Input struct {
	DeclaredExtraKm      int
	DeclaredExtraMinutes int

	// Trail is the dispatch's full GPS trail ordered by recording time.
	Trail []geo.Point
	// FieldStartedAt is the dispatch's field-start milestone, nil when the
	// agent never started the trip.
	FieldStartedAt *time.Time
	// FieldClosedAt is the latest close-request time, nil while field work
	// is still open.
	FieldClosedAt *time.Time

	IncludedKm      int
	IncludedMinutes int

	// HasEvidence reports whether evidence attachments accompany the claim.
	HasEvidence bool

	Now time.Time
}

// Outcome is the reconciler's verdict. Measured values are nil when they
// cannot be derived; nil means unmeasurable, never zero.
type Outcome struct {
	MeasuredKm      *int
	MeasuredMinutes *int
	Flag            ValidationFlag
	Notes           string
}

// Reconcile compares the declared extras against measured telemetry and the
// supplier's contractual allowance. Every raised condition contributes a
// note; the final flag is the most severe one raised.
func Reconcile(in Input) Outcome {
	out := Outcome{Flag: FlagOK}
	var notes []string

	if len(in.Trail) >= 2 {
		km := int(math.Round(geo.TrailKm(in.Trail)))
		out.MeasuredKm = &km
	}

	if in.FieldStartedAt != nil {
		end := in.Now
		if in.FieldClosedAt != nil {
			end = *in.FieldClosedAt
		}
		elapsed := end.Sub(*in.FieldStartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		minutes := int(math.Round(elapsed.Minutes()))
		out.MeasuredMinutes = &minutes
	}

	if in.DeclaredExtraKm > 0 {
		switch {
		case out.MeasuredKm == nil && !in.HasEvidence:
			out.Flag = MaxFlag(out.Flag, FlagMissingEvidence)
			notes = append(notes, fmt.Sprintf("declared %d extra km with no GPS trail and no evidence", in.DeclaredExtraKm))
		case out.MeasuredKm == nil:
			out.Flag = MaxFlag(out.Flag, FlagNeedsReview)
			notes = append(notes, fmt.Sprintf("declared %d extra km cannot be verified against GPS, evidence attached", in.DeclaredExtraKm))
		default:
			eligible := *out.MeasuredKm - in.IncludedKm
			if eligible < 0 {
				eligible = 0
			}
			if in.DeclaredExtraKm > eligible {
				out.Flag = MaxFlag(out.Flag, FlagGPSMismatch)
				notes = append(notes, fmt.Sprintf("declared %d extra km exceeds eligible %d km (measured %d, included %d)",
					in.DeclaredExtraKm, eligible, *out.MeasuredKm, in.IncludedKm))
			}
		}
	}

	if in.DeclaredExtraMinutes > 0 {
		if out.MeasuredMinutes == nil {
			out.Flag = MaxFlag(out.Flag, FlagNeedsReview)
			notes = append(notes, fmt.Sprintf("declared %d extra minutes but field start was never recorded", in.DeclaredExtraMinutes))
		} else {
			eligible := *out.MeasuredMinutes - in.IncludedMinutes
			if eligible < 0 {
				eligible = 0
			}
			if in.DeclaredExtraMinutes > eligible {
				out.Flag = MaxFlag(out.Flag, FlagTimeMismatch)
				notes = append(notes, fmt.Sprintf("declared %d extra minutes exceeds eligible %d minutes (measured %d, included %d)",
					in.DeclaredExtraMinutes, eligible, *out.MeasuredMinutes, in.IncludedMinutes))
			}
		}
	}

	out.Notes = strings.Join(notes, "; ")
	return out
}
