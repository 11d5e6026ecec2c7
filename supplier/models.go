package supplier

import "time"

// Company captures the subset of supplier-company data the workflow engine
// consumes: the contractual free allowance and the active flag.
type Company struct {
	ID              string
	LegalName       string
	IncludedKm      int
	IncludedMinutes int
	IsActive        bool
	CreatedAt       time.Time
}
