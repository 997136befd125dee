package domain

import (
	"errors"
	"time"
)

// Account is the identity that owns sessions. Profile CRUD lives outside the auth core;
// the core only reads accounts and replaces SecretDigest on password change.
type Account struct {
	ID           string
	TenantID     string // school the account belongs to
	Email        string // lower-cased; empty when the account signs in by phone only
	Phone        string // normalized digits with optional leading '+'
	SecretDigest string
	Status       AccountStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDisabled  AccountStatus = "disabled"
)

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("account id is required")
	}
	if a.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if a.Email == "" && a.Phone == "" {
		return errors.New("email or phone is required")
	}
	if a.SecretDigest == "" {
		return errors.New("secret digest is required")
	}
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
	return nil
}
