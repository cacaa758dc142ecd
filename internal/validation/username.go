// Package validation holds the field rules shared by the form schemas.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_]{3,24}$`)

var reservedUsernames = map[string]struct{}{
	"admin":       {},
	"api":         {},
	"softspot":    {},
	"support":     {},
	"marketplace": {},
	"settings":    {},
	"onboarding":  {},
	"sign-in":     {},
	"sign_in":     {},
	"sign_up":     {},
	"wishlist":    {},
	"trades":      {},
	"badges":      {},
	"metrics":     {},
	"ws":          {},
}

// ValidateUsername validates username format and reserved names.
func ValidateUsername(name string) error {
	if !usernameRegex.MatchString(name) {
		return fmt.Errorf("username must be 3-24 characters and contain only lowercase letters, numbers, and underscores")
	}

	if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return fmt.Errorf("username cannot start or end with an underscore")
	}

	if _, exists := reservedUsernames[name]; exists {
		return fmt.Errorf("username is reserved")
	}

	return nil
}
