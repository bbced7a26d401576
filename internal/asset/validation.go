package asset

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"asset-tracker/internal/apperr"
)

// NameLookup reports whether an asset other than the one being edited
// already uses name.
type NameLookup func(ctx context.Context, name string) (bool, error)

// ValidateFields checks required and length rules for name and description.
func ValidateFields(name, description string) error {
	var verr apperr.ValidationError
	switch {
	case strings.TrimSpace(name) == "":
		verr.Add("name", "is required")
	case utf8.RuneCountInString(name) > MaxNameLength:
		verr.Add("name", fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		verr.Add("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	return verr.OrNil()
}

// CheckNameAvailable rejects name when taken reports it in use. Keeping
// originalName unchanged on edit is never a duplicate; pass "" on create.
func CheckNameAvailable(ctx context.Context, name, originalName string, taken NameLookup) error {
	if originalName != "" && name == originalName {
		return nil
	}
	exists, err := taken(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return apperr.ErrDuplicateName
	}
	return nil
}
