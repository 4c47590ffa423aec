package pos

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

func ValidateUserCreate(ctx context.Context, user *User, existing []User) []string {
	var errors []string

	if strings.TrimSpace(user.Username) == "" {
		errors = append(errors, "username is required")
	}

	pin := strings.TrimSpace(user.PIN)
	if len(pin) < MinPINLength {
		errors = append(errors, "pin is too short")
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			errors = append(errors, "pin must contain only digits")
			break
		}
	}

	for _, other := range existing {
		if other.ID == user.ID {
			continue
		}
		if other.PIN == pin && pin != "" {
			errors = append(errors, "pin is already in use")
			break
		}
	}

	if user.Role != RoleAdmin && user.Role != RoleCashier {
		errors = append(errors, "invalid role")
	}

	return errors
}

func ValidateMenuItem(ctx context.Context, item *MenuItem) []string {
	var errors []string

	if strings.TrimSpace(item.Name) == "" {
		errors = append(errors, "name is required")
	}
	if item.Price < 0 {
		errors = append(errors, "price cannot be negative")
	}
	if item.TrackStock && item.Stock != nil && *item.Stock < 0 {
		errors = append(errors, "stock cannot be negative")
	}

	return errors
}

func ValidateCategory(ctx context.Context, category *MenuCategory) []string {
	var errors []string

	if strings.TrimSpace(category.Name) == "" {
		errors = append(errors, "name is required")
	}

	return errors
}

func ValidateSection(ctx context.Context, section *Section) []string {
	var errors []string

	if section.ID == uuid.Nil {
		errors = append(errors, "invalid section id")
	}
	if strings.TrimSpace(section.Name) == "" {
		errors = append(errors, "name is required")
	}

	return errors
}

func ValidateTaxRate(ctx context.Context, rate float64) []string {
	var errors []string

	if rate < 0 || rate >= 1 {
		errors = append(errors, "tax rate must be within [0, 1)")
	}

	return errors
}
