// Package contract holds the commitment contract and submission models.
package contract

import (
	"errors"
	"time"
)

// Contract lifecycle. Active is the only non-terminal state; exactly one
// transition out of it is ever applied.
const (
	StatusActive  = "active"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Submission review states.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

var (
	// ErrNotFound is returned when a contract or submission does not exist.
	ErrNotFound = errors.New("contract not found")

	// ErrAlreadySettled signals a settlement attempt on a terminal contract.
	// Callers treat it as a successful no-op.
	ErrAlreadySettled = errors.New("contract already settled")
)

// Contract is a staking commitment: the user locks Stakes against completing
// a goal within DurationDays.
type Contract struct {
	ID            string
	UserID        string
	Goal          string
	DurationDays  int
	Stakes        int64 // cents locked while active
	Status        string
	DaysCompleted int
	Deadline      time.Time
	SettledAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the contract has left the active state.
func (c Contract) Terminal() bool {
	return c.Status == StatusSuccess || c.Status == StatusFailed
}

// Submission is evidence of daily progress against a contract.
type Submission struct {
	ID         string
	ContractID string
	Status     string
	Note       string
	CreatedAt  time.Time
	ReviewedAt time.Time
}
