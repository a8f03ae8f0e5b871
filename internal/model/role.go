package model

import (
	"fmt"
	"strings"
)

// Role is the privilege level attached to a user record.
//
// Farmer is its own role rather than an alias of trader: farmers quote
// farm-gate prices but do not submit market prices.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleTrader Role = "trader"
	RoleFarmer Role = "farmer"
	RoleAdmin  Role = "admin"
)

// DefaultRole is assigned to identities without a user record.
const DefaultRole = RoleBuyer

// ParseRole normalises a stored or submitted role. "viewer" is the legacy
// name for buyer.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buyer", "viewer":
		return RoleBuyer, nil
	case "trader":
		return RoleTrader, nil
	case "farmer":
		return RoleFarmer, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleTrader, RoleFarmer, RoleAdmin:
		return true
	}
	return false
}

func (r Role) CanSubmitPrices() bool { return r == RoleTrader || r == RoleAdmin }

func (r Role) CanSubmitFarmgate() bool { return r == RoleFarmer || r == RoleAdmin }

func (r Role) CanManageReference() bool { return r == RoleAdmin }
