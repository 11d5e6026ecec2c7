package dispatch

import (
	"strings"
	"time"
	"unicode"
)

// Status is the dispatch lifecycle state. QUOTING branches to APPROVED or
// REJECTED; APPROVED advances through the field milestones to CLOSED.
// REJECTED and CLOSED are terminal.
type Status string

const (
	StatusQuoting        Status = "QUOTING"
	StatusApproved       Status = "APPROVED"
	StatusRejected       Status = "REJECTED"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusOnSite         Status = "ON_SITE"
	StatusCloseRequested Status = "CLOSE_REQUESTED"
	StatusClosed         Status = "CLOSED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusClosed
}

// Approved reports whether the dispatch has passed quote arbitration, i.e.
// approvedQuoteId must be set.
func (s Status) Approved() bool {
	switch s {
	case StatusApproved, StatusInTransit, StatusOnSite, StatusCloseRequested, StatusClosed:
		return true
	}
	return false
}

// Reason categorizes why assistance was requested.
type Reason string

const (
	ReasonBreakdown   Reason = "BREAKDOWN"
	ReasonFlatTire    Reason = "FLAT_TIRE"
	ReasonDeadBattery Reason = "DEAD_BATTERY"
	ReasonAccident    Reason = "ACCIDENT"
	ReasonLockout     Reason = "LOCKOUT"
	ReasonTowing      Reason = "TOWING"
	ReasonOther       Reason = "OTHER"
)

// Valid reports whether r is one of the known categories.
func (r Reason) Valid() bool {
	switch r {
	case ReasonBreakdown, ReasonFlatTire, ReasonDeadBattery, ReasonAccident, ReasonLockout, ReasonTowing, ReasonOther:
		return true
	}
	return false
}

// Dispatch is the aggregate root of one roadside-assistance job.
type Dispatch struct {
	ID                        string
	Status                    Status
	Plate                     string
	VehicleModel              *string
	VehicleColor              *string
	VehicleYear               *int
	Address                   string
	Latitude                  *float64
	Longitude                 *float64
	DriverName                *string
	Reason                    Reason
	ReasonDetails             *string
	CreatedByID               string
	ApprovedQuoteID           *string
	ApprovedSupplierCompanyID *string
	ApprovedAt                *time.Time
	ApprovedByID              *string
	RejectedAt                *time.Time
	RejectedByID              *string
	RejectReason              *string
	FieldStartedAt            *time.Time
	FieldArrivedAt            *time.Time
	ClosedAt                  *time.Time
	ClosedByID                *string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// CreateRequest carries the dispatcher's create command.
type CreateRequest struct {
	Plate              string
	VehicleModel       *string
	VehicleColor       *string
	VehicleYear        *int
	Address            string
	Latitude           *float64
	Longitude          *float64
	DriverName         *string
	Reason             Reason
	ReasonDetails      *string
	SupplierCompanyIDs []string
}

// NormalizePlate reduces a plate to its canonical uppercase alphanumeric
// form. Returns empty when nothing alphanumeric remains.
func NormalizePlate(plate string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(plate) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dedupe collapses duplicate supplier ids preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
