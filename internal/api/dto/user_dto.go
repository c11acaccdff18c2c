package dto

import (
	"time"

	"github.com/spec-kit/oh-queue/internal/domain"
)

// DevTokenRequest asks for a signed identity token in development.
type DevTokenRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsStaff bool   `json:"isStaff"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public shape of a user.
type UserResponse struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	ShortName     string `json:"shortName"`
	IsStaff       bool   `json:"isStaff"`
	CreditBalance int    `json:"creditBalance"`
}

// NewUserResponse maps a user; nil stays nil.
func NewUserResponse(u *domain.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		ShortName:     u.ShortName(),
		IsStaff:       u.IsStaff,
		CreditBalance: u.CreditBalance,
	}
}
