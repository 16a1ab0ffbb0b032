package auth

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes password with bcrypt at the configured cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.options.Password.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword returns ErrInvalidCredentials unless password matches hash.
func (s *Service) VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// ValidatePasswordStrength checks password against the configured policy.
func (s *Service) ValidatePasswordStrength(password string) error {
	p := s.options.Password
	if utf8.RuneCountInString(password) < p.MinLength {
		return fmt.Errorf("%w: shorter than %d characters", ErrPasswordTooWeak, p.MinLength)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case p.RequireUpper && !upper:
		return fmt.Errorf("%w: needs an upper-case letter", ErrPasswordTooWeak)
	case p.RequireLower && !lower:
		return fmt.Errorf("%w: needs a lower-case letter", ErrPasswordTooWeak)
	case p.RequireDigit && !digit:
		return fmt.Errorf("%w: needs a digit", ErrPasswordTooWeak)
	case p.RequireSpecial && !special:
		return fmt.Errorf("%w: needs a special character", ErrPasswordTooWeak)
	}
	return nil
}
