package models

import "time"

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type ApprovalRequest struct {
	ID        int64
	PackageID int64
	Title     string
	Status    RequestStatus
	CreatedAt time.Time
	DecidedAt *time.Time
}

// Approval is an endorsement of a request by one user. It is never updated
// or deleted.
type Approval struct {
	ID           int64
	RequestID    int64
	UserID       string
	CredentialID []byte
	CreatedAt    time.Time
}

// Evaluation is the outcome of a quorum check.
type Evaluation struct {
	RequestID       int64
	PackageID       int64
	Status          RequestStatus
	RequiredGroups  []int64
	SatisfiedGroups []int64
	QuorumMet       bool
	// Transitioned is true only for the evaluation that moved the request
	// from pending to approved.
	Transitioned bool
}

// Receipt is the archived record of an approved request.
type Receipt struct {
	Request     ApprovalRequest `json:"request"`
	Approvals   []Approval      `json:"approvals"`
	GeneratedAt time.Time       `json:"generated_at"`
}
