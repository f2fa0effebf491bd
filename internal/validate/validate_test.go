package validate_test

import (
	"testing"
	"time"

	"taskline/internal/validate"
)

func fixedPolicy() validate.Policy {
	return validate.Policy{Now: func() time.Time {
		return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	}}
}

func TestValidateAccepts(t *testing.T) {
	p := fixedPolicy()
	for _, deadline := range []string{"2024-03-15", "2024-03-16", "2025-01-01"} {
		errs := p.Validate(validate.Candidate{Name: "Report", Description: "Q1 report", Deadline: deadline})
		if len(errs) != 0 {
			t.Fatalf("deadline %s: unexpected errors %v", deadline, errs)
		}
	}
}

func TestValidateFieldErrors(t *testing.T) {
	p := fixedPolicy()
	cases := []struct {
		name      string
		candidate validate.Candidate
		field     string
		message   string
	}{
		{"missing name", validate.Candidate{Description: "d", Deadline: "2024-03-16"}, "name", "Task Name is required"},
		{"missing description", validate.Candidate{Name: "n", Deadline: "2024-03-16"}, "description", "Description is required"},
		{"missing deadline", validate.Candidate{Name: "n", Description: "d"}, "deadline", "Deadline is required"},
		{"unparseable deadline", validate.Candidate{Name: "n", Description: "d", Deadline: "soon"}, "deadline", "Deadline is required"},
		{"past deadline", validate.Candidate{Name: "n", Description: "d", Deadline: "2024-03-14"}, "deadline", "Deadline must be today or in the future"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := p.Validate(tc.candidate)
			if len(errs) != 1 {
				t.Fatalf("expected exactly one error, got %v", errs)
			}
			if errs[0].Field != tc.field || errs[0].Message != tc.message {
				t.Fatalf("got %+v", errs[0])
			}
		})
	}
}

func TestValidateAllInvalid(t *testing.T) {
	errs := fixedPolicy().Validate(validate.Candidate{})
	if len(errs) != 3 {
		t.Fatalf("expected three errors, got %v", errs)
	}
}
