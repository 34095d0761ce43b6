package models

import "time"

const (
	MembershipRegular   = "regular"
	MembershipPremium   = "premium"
	MembershipSuspended = "suspended"
)

type Member struct {
	ID               int64     `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	MembershipNumber string    `json:"membership_number" db:"membership_number"`
	MembershipStatus string    `json:"membership_status" db:"membership_status"`
	DateJoined       time.Time `json:"date_joined" db:"date_joined"`
	FullName         string    `json:"full_name,omitempty" db:"full_name"`
}

func ValidMembershipStatus(s string) bool {
	switch s {
	case MembershipRegular, MembershipPremium, MembershipSuspended:
		return true
	default:
		return false
	}
}
