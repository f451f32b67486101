package core

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeUsername trims surrounding space and lowercases with full Unicode
// rules. It is the only form in which usernames are stored, looked up and
// used as lockout keys.
func NormalizeUsername(username string) string {
	// A Caser carries state, so each call gets its own.
	return cases.Lower(language.Und).String(strings.TrimSpace(username))
}
