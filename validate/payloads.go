package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Registration is the normalized registration payload.
type Registration struct {
	Username string
	Email    string
	Password string
}

// Login is the normalized login payload.
type Login struct {
	Username string
	Password string
}

// TaskCreate is the normalized task-creation payload. An empty Description
// means the field was absent or normalized to absent.
type TaskCreate struct {
	Title       string
	Description string
}

// TaskUpdate is the normalized task-update payload. Nil pointers mean the
// field was absent (or a client null spelling normalized to absent).
type TaskUpdate struct {
	Title       *string
	Description *string
	Done        *bool
}

// Empty reports whether no field survived normalization.
func (u *TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Done == nil
}

// bodyError wraps a payload-level failure (malformed JSON, wrong value types)
// as a field-addressable violation.
func bodyError(err error) Errors {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return Errors{{Field: typeErr.Field, Message: fmt.Sprintf("Must be a string, not %s", typeErr.Value)}}
	}
	return Errors{{Field: "body", Message: "Request body must be valid JSON"}}
}

// jsonTypeName names a decoded JSON value's type the way clients see it.
func jsonTypeName(v any) string {
	switch v.(type) {
	case float64, json.Number:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	case nil:
		return "null"
	default:
		return "a string"
	}
}

// stringField extracts field from data as a string pointer. Client null
// spellings ("null", "none", "undefined") and JSON null normalize to absent.
// Wrong types append a violation and report absent.
func stringField(data map[string]any, field string, errs *Errors) (*string, bool) {
	raw, present := data[field]
	if !present || raw == nil {
		return nil, present
	}
	s, ok := raw.(string)
	if !ok {
		errs.add(field, fmt.Sprintf("%s must be a string, not %s", capitalize(field), jsonTypeName(raw)))
		return nil, present
	}
	if IsNullWord(s) {
		return nil, present
	}
	return &s, present
}

// ParseRegistration decodes and validates a registration payload, returning
// the normalized form or every violation found. When confirm_password is
// present it must match password; the original clients always send it, but
// its absence is accepted.
func ParseRegistration(body []byte) (*Registration, Errors) {
	var raw struct {
		Username        string  `json:"username"`
		Email           string  `json:"email"`
		Password        string  `json:"password"`
		ConfirmPassword *string `json:"confirm_password"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, bodyError(err)
	}

	var errs Errors
	username, usernameErrs := Username(raw.Username)
	errs = append(errs, usernameErrs...)
	email, emailErrs := Email(raw.Email)
	errs = append(errs, emailErrs...)
	errs = append(errs, Password(raw.Password)...)
	if raw.ConfirmPassword != nil && *raw.ConfirmPassword != raw.Password {
		errs.add("confirm_password", "Password and confirmation password do not match")
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &Registration{Username: username, Email: email, Password: raw.Password}, nil
}

// ParseLogin decodes and validates a login payload with the relaxed login
// rules.
func ParseLogin(body []byte) (*Login, Errors) {
	var raw struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, bodyError(err)
	}

	var errs Errors
	username, usernameErrs := LoginUsername(raw.Username)
	errs = append(errs, usernameErrs...)
	errs = append(errs, LoginPassword(raw.Password)...)

	if len(errs) > 0 {
		return nil, errs
	}
	return &Login{Username: username, Password: raw.Password}, nil
}

// ParseTaskCreate decodes and validates a task-creation payload. String null
// spellings normalize to absent before the required-title check, and value
// types are checked before content rules so a numeric title reports one clear
// violation.
func ParseTaskCreate(body []byte) (*TaskCreate, Errors) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, bodyError(err)
	}

	var errs Errors
	title, _ := stringField(data, "title", &errs)
	desc, _ := stringField(data, "description", &errs)
	if len(errs) > 0 {
		return nil, errs
	}

	if title == nil {
		errs.add("title", "Title is required for task creation")
		return nil, errs
	}

	normalizedTitle, titleErrs := Title(*title)
	errs = append(errs, titleErrs...)

	var normalizedDesc string
	if desc != nil {
		value, present, descErrs := Description(*desc)
		errs = append(errs, descErrs...)
		if present {
			normalizedDesc = value
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &TaskCreate{Title: normalizedTitle, Description: normalizedDesc}, nil
}

// taskUpdateFields is the closed set of field names a task update accepts.
// Task updates process fields in this order so violations report
// deterministically.
var taskUpdateFields = []string{"title", "description", "state"}

// ParseTaskUpdate decodes and validates a task-update payload. Unknown fields
// are rejected outright; client null spellings normalize to absent before the
// at-least-one-field check; an all-absent update is rejected.
func ParseTaskUpdate(body []byte) (*TaskUpdate, Errors) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, bodyError(err)
	}

	var errs Errors

	allowed := make(map[string]bool, len(taskUpdateFields))
	for _, field := range taskUpdateFields {
		allowed[field] = true
	}
	unknown := make([]string, 0)
	for key := range data {
		if !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		// Deterministic order regardless of map iteration.
		sort.Strings(unknown)
		for _, key := range unknown {
			errs.add(key, fmt.Sprintf("Invalid field: %s. Allowed fields are: %s", key, strings.Join(taskUpdateFields, ", ")))
		}
		return nil, errs
	}

	if len(data) == 0 {
		errs.add("body", "Update request cannot be completely empty")
		return nil, errs
	}

	title, _ := stringField(data, "title", &errs)
	desc, _ := stringField(data, "description", &errs)
	state, _ := stringField(data, "state", &errs)
	if len(errs) > 0 {
		return nil, errs
	}

	update := &TaskUpdate{}
	if title != nil {
		normalized, titleErrs := Title(*title)
		errs = append(errs, titleErrs...)
		if len(titleErrs) == 0 {
			update.Title = &normalized
		}
	}
	if desc != nil {
		value, present, descErrs := Description(*desc)
		errs = append(errs, descErrs...)
		if len(descErrs) == 0 && present {
			update.Description = &value
		}
	}
	if state != nil {
		done, stateErrs := State(*state)
		errs = append(errs, stateErrs...)
		if len(stateErrs) == 0 {
			update.Done = &done
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	if update.Empty() {
		errs.add("body", "At least one field (title, description, or state) must be provided for update")
		return nil, errs
	}
	return update, nil
}

// capitalize upper-cases the first byte of an ASCII field name for messages.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
