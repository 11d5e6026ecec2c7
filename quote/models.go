package quote

import "time"

// Status is the quote lifecycle state. PENDING quotes await supplier input;
// SUBMITTED quotes compete for approval; ACCEPTED, REJECTED and EXPIRED are
// terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
)

// Quote is one supplier company's bid against a dispatch.
type Quote struct {
	ID                string
	DispatchID        string
	SupplierCompanyID string
	Status            Status
	EtaMinutes        *int
	SupplierNote      *string
	SubmittedAt       *time.Time
	CreatedAt         time.Time
}

// SubmitRequest carries the supplier's bid.
type SubmitRequest struct {
	QuoteID      string
	EtaMinutes   int
	SupplierNote *string
}
