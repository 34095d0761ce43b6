package sync

import "time"

const (
	LoanBorrowed = "loan.borrowed"
	LoanReturned = "loan.returned"
	LoanExtended = "loan.extended"
)

// LoanEvent is pushed to feed subscribers after a lifecycle operation commits.
type LoanEvent struct {
	Type     string    `json:"type"`
	RecordID int64     `json:"record_id"`
	BookID   int64     `json:"book_id"`
	DueDate  time.Time `json:"due_date,omitempty"`
	At       time.Time `json:"at"`
}
