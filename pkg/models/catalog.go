package models

import "time"

const (
	BookStatusAvailable   = "available"
	BookStatusBorrowed    = "borrowed"
	BookStatusMaintenance = "maintenance"
)

type Category struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	BookCount   int    `json:"book_count" db:"book_count"`
}

type Author struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     *string   `json:"email,omitempty" db:"email"`
	Bio       string    `json:"bio,omitempty" db:"bio"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Book is a catalog entry. AvailableCopies counts the copies not on loan.
type Book struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	ISBN            string    `json:"isbn" db:"isbn"`
	CategoryID      *int64    `json:"category_id,omitempty" db:"category_id"`
	Description     string    `json:"description,omitempty" db:"description"`
	Status          string    `json:"status" db:"status"`
	TotalCopies     int       `json:"total_copies" db:"total_copies"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`

	Category *Category `json:"category,omitempty" db:"-"`
	Authors  []Author  `json:"authors,omitempty" db:"-"`
}

// IsAvailable reports whether a copy can be lent right now.
func (b Book) IsAvailable() bool {
	return b.Status == BookStatusAvailable && b.AvailableCopies > 0
}

func ValidBookStatus(s string) bool {
	switch s {
	case BookStatusAvailable, BookStatusBorrowed, BookStatusMaintenance:
		return true
	default:
		return false
	}
}
