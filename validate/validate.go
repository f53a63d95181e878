// Package validate normalizes and rejects malformed request payloads against
// a fixed rule set. All functions are state-free: they take raw input and
// return the normalized value plus every violation found, addressable by
// field. The reserved-word, weak-password, and state-synonym sets are
// compiled package-level constants.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// FieldError is a single validation violation addressed to one payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors collects every violation found on one payload. Violations are
// reported in declaration order of the payload's fields, so output is
// deterministic for a given input.
type Errors []FieldError

// Error implements the error interface.
func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the set of field names that carry violations.
func (e Errors) Fields() []string {
	fields := make([]string, 0, len(e))
	seen := make(map[string]bool, len(e))
	for _, fe := range e {
		if !seen[fe.Field] {
			seen[fe.Field] = true
			fields = append(fields, fe.Field)
		}
	}
	return fields
}

// Has reports whether any violation targets the given field.
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func (e *Errors) add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Username and title length bounds.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 50
	MaxEmailLen    = 100
	MinPasswordLen = 8
	MaxPasswordLen = 128
	MinTitleLen    = 3
	MaxTitleLen    = 200
	MaxDescLen     = 1000
)

var (
	usernameCharsetRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	usernameStartRe   = regexp.MustCompile(`^[a-zA-Z0-9]`)
	emailRe           = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	emailDomainRe     = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
	onlySpecialRe     = regexp.MustCompile(`^[^\p{L}\p{N}_\s]+$`)
)

// reservedUsernames are account names that can never be registered.
var reservedUsernames = map[string]struct{}{
	"admin": {}, "administrator": {}, "root": {}, "user": {}, "test": {},
	"demo": {}, "guest": {}, "api": {}, "www": {}, "mail": {}, "email": {},
	"support": {}, "help": {}, "info": {}, "contact": {}, "null": {},
	"undefined": {}, "none": {}, "system": {}, "operator": {},
}

// weakPasswords are rejected outright regardless of composition rules.
var weakPasswords = map[string]struct{}{
	"password": {}, "password123": {}, "12345678": {}, "qwerty123": {},
	"abc123456": {}, "password1": {}, "admin123": {}, "user123": {},
	"test123": {}, "demo123": {},
}

// sequentialPatterns are keyboard/alphabet runs banned inside passwords.
var sequentialPatterns = []string{"1234", "abcd", "qwer", "asdf", "zxcv"}

// passwordSpecialChars is the fixed special-character set a password must draw from.
const passwordSpecialChars = `!@#$%^&*(),.?":{}|<>`

// reservedPlaceholders are client-side null spellings that are never valid
// content values.
var reservedPlaceholders = map[string]struct{}{
	"null": {}, "undefined": {}, "none": {}, "": {},
}

// stateSynonyms maps every accepted spelling of a task state to the internal
// two-valued form. Kept as one lookup table so the mapping is exhaustive and
// testable in a single pass.
var stateSynonyms = map[string]bool{
	"done":       true,
	"completed":  true,
	"finished":   true,
	"complete":   true,
	"true":       true,
	"1":          true,
	"pending":    false,
	"todo":       false,
	"incomplete": false,
	"open":       false,
	"false":      false,
	"0":          false,
}

// distinctRunes counts distinct characters, optionally ignoring spaces.
func distinctRunes(s string, ignoreSpace bool) int {
	seen := make(map[rune]struct{}, len(s))
	for _, r := range s {
		if ignoreSpace && r == ' ' {
			continue
		}
		seen[r] = struct{}{}
	}
	return len(seen)
}

// Username validates a registration username and returns the case-folded
// storage form. Re-validating an already accepted username is idempotent.
func Username(raw string) (string, Errors) {
	var errs Errors
	v := strings.TrimSpace(raw)

	if v == "" {
		errs.add("username", "Username cannot be empty")
		return "", errs
	}
	// Length bounds count characters, not bytes.
	if n := utf8.RuneCountInString(v); n < MinUsernameLen {
		errs.add("username", fmt.Sprintf("Username must be at least %d characters long", MinUsernameLen))
	} else if n > MaxUsernameLen {
		errs.add("username", fmt.Sprintf("Username cannot exceed %d characters", MaxUsernameLen))
	}
	if !usernameCharsetRe.MatchString(v) {
		errs.add("username", "Username can only contain letters, numbers, underscores, and hyphens")
	} else {
		if !usernameStartRe.MatchString(v) {
			errs.add("username", "Username must start with a letter or number")
		}
		if strings.HasSuffix(v, "_") || strings.HasSuffix(v, "-") {
			errs.add("username", "Username cannot end with underscore or hyphen")
		}
	}

	folded := strings.ToLower(v)
	if _, reserved := reservedUsernames[folded]; reserved {
		errs.add("username", fmt.Sprintf("Username %q is reserved and cannot be used", v))
	}
	if len(v) > 3 && distinctRunes(v, false) < 2 {
		errs.add("username", "Username cannot be repetitive characters")
	}

	if len(errs) > 0 {
		return "", errs
	}
	return folded, nil
}

// LoginUsername applies the relaxed rules used at login: the stored form is
// already normalized, so only emptiness and length are checked before folding.
func LoginUsername(raw string) (string, Errors) {
	var errs Errors
	v := strings.TrimSpace(raw)

	if v == "" {
		errs.add("username", "Username cannot be empty")
		return "", errs
	}
	if len(v) > MaxUsernameLen {
		errs.add("username", "Username too long")
		return "", errs
	}
	return strings.ToLower(v), nil
}

// Email validates an email address and returns the lowercase storage form.
func Email(raw string) (string, Errors) {
	var errs Errors
	v := strings.ToLower(strings.TrimSpace(raw))

	if v == "" {
		errs.add("email", "Email cannot be empty")
		return "", errs
	}
	if len(v) > MaxEmailLen {
		errs.add("email", fmt.Sprintf("Email cannot exceed %d characters", MaxEmailLen))
	}
	if !emailRe.MatchString(v) {
		errs.add("email", "Invalid email format")
	}
	if strings.Contains(v, "..") {
		errs.add("email", "Email cannot contain consecutive dots")
	}
	if strings.HasPrefix(v, ".") || strings.HasPrefix(v, "@") {
		errs.add("email", "Email cannot start with dot or @ symbol")
	}
	if strings.HasSuffix(v, ".") || strings.HasSuffix(v, "@") {
		errs.add("email", "Email cannot end with dot or @ symbol")
	}

	if local, domain, found := strings.Cut(v, "@"); found {
		if local == "" {
			errs.add("email", "Email local part cannot be empty")
		}
		if len(local) > 64 {
			errs.add("email", "Email local part cannot exceed 64 characters")
		}
		switch {
		case domain == "":
			errs.add("email", "Email domain cannot be empty")
		case len(domain) > 253:
			errs.add("email", "Email domain cannot exceed 253 characters")
		case !emailDomainRe.MatchString(domain):
			errs.add("email", "Email domain contains invalid characters")
		default:
			if strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") {
				errs.add("email", "Email domain cannot start or end with hyphen")
			}
			if !strings.Contains(domain, ".") {
				errs.add("email", "Email domain must contain at least one dot")
			}
		}
	}

	if len(errs) > 0 {
		return "", errs
	}
	return v, nil
}

// Password validates a registration password against the composition policy.
// The password itself is returned unchanged; it is never normalized.
func Password(raw string) Errors {
	var errs Errors

	if raw == "" {
		errs.add("password", "Password cannot be empty")
		return errs
	}
	if n := utf8.RuneCountInString(raw); n < MinPasswordLen {
		errs.add("password", fmt.Sprintf("Password must be at least %d characters long", MinPasswordLen))
	} else if n > MaxPasswordLen {
		errs.add("password", fmt.Sprintf("Password cannot exceed %d characters", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSpecialChars, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		errs.add("password", "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		errs.add("password", "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs.add("password", "Password must contain at least one number")
	}
	if !hasSpecial {
		errs.add("password", fmt.Sprintf("Password must contain at least one special character (%s)", passwordSpecialChars))
	}

	if _, weak := weakPasswords[strings.ToLower(raw)]; weak {
		errs.add("password", "Password is too common and weak")
	}
	if distinctRunes(raw, false) < 4 {
		errs.add("password", "Password cannot be too repetitive")
	}
	lowered := strings.ToLower(raw)
	for _, seq := range sequentialPatterns {
		if strings.Contains(lowered, seq) {
			errs.add("password", "Password cannot contain common sequential patterns")
			break
		}
	}

	return errs
}

// LoginPassword applies the relaxed rules used at login.
func LoginPassword(raw string) Errors {
	var errs Errors
	if raw == "" {
		errs.add("password", "Password cannot be empty")
		return errs
	}
	if utf8.RuneCountInString(raw) > MaxPasswordLen {
		errs.add("password", "Password too long")
	}
	return errs
}

// Title validates a task title and returns the trimmed form.
func Title(raw string) (string, Errors) {
	var errs Errors
	v := strings.TrimSpace(raw)

	if v == "" {
		errs.add("title", "Title cannot be empty or only whitespace")
		return "", errs
	}
	runes := utf8.RuneCountInString(v)
	if runes < MinTitleLen {
		errs.add("title", fmt.Sprintf("Title must be at least %d characters long", MinTitleLen))
	}
	if runes > MaxTitleLen {
		errs.add("title", fmt.Sprintf("Title cannot exceed %d characters", MaxTitleLen))
	}
	if onlySpecialRe.MatchString(v) {
		errs.add("title", "Title cannot contain only special characters")
	}
	if _, reserved := reservedPlaceholders[strings.ToLower(v)]; reserved {
		errs.add("title", "Title cannot be a reserved word")
	}
	if runes > 5 && distinctRunes(v, true) < 2 {
		errs.add("title", "Title cannot be repetitive characters")
	}

	if len(errs) > 0 {
		return "", errs
	}
	return v, nil
}

// Description validates an optional task description and returns the trimmed
// form. An empty (or all-whitespace) description normalizes to absent, which
// is reported through the second return value.
func Description(raw string) (value string, present bool, errs Errors) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false, nil
	}
	if utf8.RuneCountInString(v) > MaxDescLen {
		errs.add("description", fmt.Sprintf("Description cannot exceed %d characters", MaxDescLen))
	}
	if onlySpecialRe.MatchString(v) {
		errs.add("description", "Description cannot contain only special characters")
	}
	if IsNullWord(v) {
		errs.add("description", "Description cannot be a reserved word")
	}
	if len(errs) > 0 {
		return "", false, errs
	}
	return v, true, nil
}

// State resolves a task state spelling through the synonym table and returns
// the internal two-valued form (true = done).
func State(raw string) (bool, Errors) {
	var errs Errors
	v := strings.ToLower(strings.TrimSpace(raw))

	if v == "" {
		errs.add("state", "State cannot be empty")
		return false, errs
	}
	done, ok := stateSynonyms[v]
	if !ok {
		errs.add("state", `State must be one of: done, pending (synonyms such as "completed", "todo", "true", "0" are accepted)`)
		return false, errs
	}
	return done, nil
}

// IsNullWord reports whether a string value is a client-side null spelling
// ("null", "none", "undefined"); such values normalize to absent before
// payload-level presence checks.
func IsNullWord(s string) bool {
	switch strings.ToLower(s) {
	case "null", "none", "undefined":
		return true
	}
	return false
}
