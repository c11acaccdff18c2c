package domain

import "time"

// User is a queue participant as provisioned by the identity provider.
// The queue only ever mutates CreditBalance.
type User struct {
	ID            int64
	Email         string
	Name          string
	IsStaff       bool
	CreditBalance int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ShortName returns the first word of the display name.
func (u *User) ShortName() string {
	for i, r := range u.Name {
		if r == ' ' {
			return u.Name[:i]
		}
	}
	return u.Name
}
