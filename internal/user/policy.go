package user

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"asset-tracker/internal/apperr"
	"asset-tracker/internal/config"
)

// PasswordPolicy is the complexity rule applied at registration and on
// password change.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireDigit   bool
	RequireSpecial bool
}

func PolicyFromConfig(p config.PasswordPolicy) PasswordPolicy {
	return PasswordPolicy{
		MinLength:      p.MinLength,
		RequireUpper:   p.RequireUpper,
		RequireDigit:   p.RequireDigit,
		RequireSpecial: p.RequireSpecial,
	}
}

// Check returns every rule password breaks, in a stable order.
func (p PasswordPolicy) Check(password string) []string {
	var problems []string
	if utf8.RuneCountInString(password) < p.MinLength {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	var upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if p.RequireUpper && !upper {
		problems = append(problems, "must contain an upper-case letter")
	}
	if p.RequireDigit && !digit {
		problems = append(problems, "must contain a digit")
	}
	if p.RequireSpecial && !special {
		problems = append(problems, "must contain a special character")
	}
	return problems
}

// ValidateUsername checks length and rejects surrounding whitespace.
func ValidateUsername(username string) string {
	n := utf8.RuneCountInString(username)
	switch {
	case strings.TrimSpace(username) != username:
		return "must not start or end with whitespace"
	case n < MinUsernameLength || n > MaxUsernameLength:
		return fmt.Sprintf("must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	}
	return ""
}

// ValidateNewPassword applies the policy and the confirmation match.
func ValidateNewPassword(policy PasswordPolicy, password, confirm string, verr *apperr.ValidationError) {
	if problems := policy.Check(password); len(problems) > 0 {
		verr.Add("password", strings.Join(problems, ", "))
	}
	if password != confirm {
		verr.Add("confirm_password", "passwords must match")
	}
}

// ValidateRegistration checks the registration fields that do not need the
// store. Username availability is checked by the caller.
func ValidateRegistration(policy PasswordPolicy, username, password, confirm string) error {
	var verr apperr.ValidationError
	if msg := ValidateUsername(username); msg != "" {
		verr.Add("username", msg)
	}
	ValidateNewPassword(policy, password, confirm, &verr)
	return verr.OrNil()
}
