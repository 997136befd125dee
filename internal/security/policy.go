package security

import (
	"errors"
	"unicode"
)

// Password policy violations. The policy is consulted on password change, never at login.
var (
	ErrPasswordTooShort = errors.New("password must be at least 12 characters")
	ErrPasswordNoUpper  = errors.New("password must contain at least one uppercase letter")
	ErrPasswordNoLower  = errors.New("password must contain at least one lowercase letter")
	ErrPasswordNoNumber = errors.New("password must contain at least one number")
	ErrPasswordNoSymbol = errors.New("password must contain at least one symbol")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
)

// ComplexityPolicy requires a minimum length and one character from each class.
type ComplexityPolicy struct {
	MinLength int
}

// DefaultPasswordPolicy is the policy used when none is configured.
var DefaultPasswordPolicy = ComplexityPolicy{MinLength: 12}

// IsStrong reports whether secret satisfies the policy.
func (p ComplexityPolicy) IsStrong(secret string) bool {
	return p.Check(secret) == nil
}

// Check returns the first rule secret violates, or nil.
func (p ComplexityPolicy) Check(secret string) error {
	minLen := p.MinLength
	if minLen <= 0 {
		minLen = DefaultPasswordPolicy.MinLength
	}
	if len([]rune(secret)) < minLen {
		return ErrPasswordTooShort
	}
	// bcrypt ignores input past 72 bytes.
	if len(secret) > 72 {
		return ErrPasswordTooLong
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return ErrPasswordNoUpper
	case !hasLower:
		return ErrPasswordNoLower
	case !hasNumber:
		return ErrPasswordNoNumber
	case !hasSymbol:
		return ErrPasswordNoSymbol
	}
	return nil
}
