// Package authz resolves the caller of a request into a Principal and
// answers the single question every workflow asks before mutating: may this
// principal do that?
package authz

import (
	"fmt"

	"github.com/sudo-init-do/gamevault/internal/models"
)

type Capability string

const (
	SubmitDeposit    Capability = "deposit:submit"
	SubmitWithdrawal Capability = "withdrawal:submit"
	Trade            Capability = "order:trade"
	DecideDeposit    Capability = "deposit:decide"
	DecideWithdrawal Capability = "withdrawal:decide"
	ResolveDispute   Capability = "dispute:resolve"
	ViewLedger       Capability = "ledger:view"
	ManageCatalog    Capability = "catalog:manage"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Principal is whoever is calling: an admin, a signed-in user or nobody.
type Principal interface {
	// Subject is the user id, empty for anonymous callers.
	Subject() string
	Can(c Capability) bool
}

type Admin struct{ ID string }

func (a Admin) Subject() string { return a.ID }

// Admins may also trade and move their own money.
func (Admin) Can(Capability) bool { return true }

type User struct{ ID string }

func (u User) Subject() string { return u.ID }

func (User) Can(c Capability) bool {
	switch c {
	case SubmitDeposit, SubmitWithdrawal, Trade:
		return true
	}
	return false
}

type Anonymous struct{}

func (Anonymous) Subject() string     { return "" }
func (Anonymous) Can(Capability) bool { return false }

// Require fails with ErrUnauthorized for anonymous callers and ErrForbidden
// for authenticated callers lacking c.
func Require(p Principal, c Capability) error {
	if p == nil || p.Subject() == "" {
		return fmt.Errorf("%s: %w", c, models.ErrUnauthorized)
	}
	if !p.Can(c) {
		return fmt.Errorf("%s: %w", c, models.ErrForbidden)
	}
	return nil
}

// IsAdmin reports whether p holds admin-only capabilities.
func IsAdmin(p Principal) bool {
	_, ok := p.(Admin)
	return ok
}

// FromRole builds the principal for a user id and role claim.
func FromRole(userID, role string) Principal {
	if userID == "" {
		return Anonymous{}
	}
	if role == RoleAdmin {
		return Admin{ID: userID}
	}
	return User{ID: userID}
}
