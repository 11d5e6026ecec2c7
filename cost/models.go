package cost

import "time"

// Reimbursement is one free-form expense line in a claim.
type Reimbursement struct {
	Description string `json:"description"`
	AmountCents int    `json:"amount_cents"`
}

// Breakdown is a supplier's expense claim for a dispatch, exactly one row
// per dispatch with upsert semantics.
type Breakdown struct {
	ID                string
	DispatchID        string
	ExitValueCents    int
	ExtraKm           int
	ExtraHourMinutes  int
	Reimbursements    []Reimbursement
	MeasuredKm        *int
	MeasuredMinutes   *int
	ValidationFlag    ValidationFlag
	ValidationNotes   *string
	SubmittedByUserID string
	SubmittedAt       time.Time
	ReviewedAt        *time.Time
	ReviewedByUserID  *string
	ReviewApproved    *bool
	ReviewNote        *string
}

// SubmitRequest carries a supplier's claim. Evidence attachment ids are
// opaque to the core; only their presence matters to reconciliation.
type SubmitRequest struct {
	DispatchID            string
	ExitValueCents        int
	ExtraKm               int
	ExtraHourMinutes      int
	Reimbursements        []Reimbursement
	EvidenceAttachmentIDs []string
}

// ReviewRequest carries the dispatcher's verdict. A nil ForceClose defaults
// to true: approving a claim closes the dispatch unless the caller opts out.
type ReviewRequest struct {
	DispatchID string
	Approve    bool
	ReviewNote string
	ForceClose *bool
}
