package auth

import (
	"github.com/spec-kit/oh-queue/internal/domain"
	apperrors "github.com/spec-kit/oh-queue/pkg/util/errorutil"
)

// RequireUser rejects anonymous actors.
func RequireUser(actor *domain.User) error {
	if actor == nil {
		return apperrors.NewUnauthenticated("")
	}
	return nil
}

// RequireStaff rejects anyone who is not course staff.
func RequireStaff(actor *domain.User) error {
	if err := RequireUser(actor); err != nil {
		return err
	}
	if !actor.IsStaff {
		return apperrors.NewUnauthorized("")
	}
	return nil
}

// RequireOwnerOrStaff admits staff and the ticket's own student.
func RequireOwnerOrStaff(actor *domain.User, ticket *domain.Ticket) error {
	if err := RequireUser(actor); err != nil {
		return err
	}
	if actor.IsStaff || ticket.OwnedBy(actor) {
		return nil
	}
	return apperrors.NewUnauthorized("")
}

// CanSeeDetails reports whether actor may see who filed ticket.
func CanSeeDetails(actor *domain.User, ticket *domain.Ticket) bool {
	return actor != nil && (actor.IsStaff || ticket.OwnedBy(actor))
}
