package loans

import "errors"

// Lifecycle outcomes. Each precondition failure has its own error so callers
// can tell them apart with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnavailable         = errors.New("book is not available for borrowing")
	ErrNotAMember          = errors.New("user is not a registered member")
	ErrAlreadyBorrowed     = errors.New("book already borrowed by this member")
	ErrCannotExtendOverdue = errors.New("cannot extend an overdue loan")
)
