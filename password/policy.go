package password

import (
	"errors"
	"fmt"
	"unicode"
)

// Policy holds complexity requirements for candidate passwords. A zero
// MaxLength means no upper bound.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// Check validates candidate against the policy. Length is measured in
// bytes, matching how the hasher consumes the input.
func (p Policy) Check(candidate string) error {
	if len(candidate) < p.MinLength {
		return fmt.Errorf("password must be at least %d bytes", p.MinLength)
	}
	if p.MaxLength > 0 && len(candidate) > p.MaxLength {
		return fmt.Errorf("password must be at most %d bytes", p.MaxLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	if p.RequireUpper && !hasUpper {
		return errors.New("password must contain an uppercase letter")
	}
	if p.RequireLower && !hasLower {
		return errors.New("password must contain a lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		return errors.New("password must contain a digit")
	}
	if p.RequireSpecial && !hasSpecial {
		return errors.New("password must contain a special character")
	}

	return nil
}
