package validate

import (
	"strings"
	"time"
)

// Candidate carries the user-supplied task fields checked before any store
// access.
type Candidate struct {
	Name        string
	Description string
	Deadline    string
}

// FieldError is a recoverable per-field validation failure, surfaced inline
// next to the offending field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Message }

// DeadlineLayout is the wire format for deadlines (HTML date input).
const DeadlineLayout = "2006-01-02"

// Policy validates task candidates against an injected clock.
type Policy struct {
	Now func() time.Time
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Validate returns one error per invalid field, in field order. A nil result
// means the candidate is acceptable.
func (p Policy) Validate(c Candidate) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "Task Name is required"})
	}
	if strings.TrimSpace(c.Description) == "" {
		errs = append(errs, FieldError{Field: "description", Message: "Description is required"})
	}
	if strings.TrimSpace(c.Deadline) == "" {
		errs = append(errs, FieldError{Field: "deadline", Message: "Deadline is required"})
		return errs
	}
	deadline, err := time.Parse(DeadlineLayout, c.Deadline)
	if err != nil {
		errs = append(errs, FieldError{Field: "deadline", Message: "Deadline is required"})
		return errs
	}
	today := p.now()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if deadline.Before(today) {
		errs = append(errs, FieldError{Field: "deadline", Message: "Deadline must be today or in the future"})
	}
	return errs
}
