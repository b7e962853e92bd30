package domain

import (
	"errors"
	"fmt"
)

// FindingKind categorizes a validation or load finding.
type FindingKind string

const (
	FindingMissingTransition FindingKind = "missing_transition"
	FindingConditionalOnly   FindingKind = "conditional_only"
	FindingAmbiguousStatus   FindingKind = "ambiguous_status"
	FindingUnmatchedSend     FindingKind = "unmatched_send"
	FindingDuplicateID       FindingKind = "duplicate_id"
	FindingUnknownSkill      FindingKind = "unknown_skill"
)

// Severity decides whether a finding blocks execution.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one categorized validation result.
type Finding struct {
	Kind     FindingKind `json:"kind"`
	Severity Severity    `json:"severity"`
	StateID  string      `json:"state_id,omitempty"`
	Event    string      `json:"event,omitempty"`
	Message  string      `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Kind, f.Message)
}

// ValidationResult aggregates the findings of one validation run.
type ValidationResult struct {
	Findings []Finding `json:"findings"`
}

// Add appends a finding.
func (r *ValidationResult) Add(f Finding) {
	r.Findings = append(r.Findings, f)
}

// Merge appends all findings of other.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Findings = append(r.Findings, other.Findings...)
}

// Errors returns the blocking findings.
func (r *ValidationResult) Errors() []Finding {
	return r.filter(SeverityError)
}

// Warnings returns the non-blocking findings.
func (r *ValidationResult) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

// OfKind returns the findings of one category.
func (r *ValidationResult) OfKind(kind FindingKind) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// HasErrors reports whether any blocking finding exists.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors()) > 0
}

func (r *ValidationResult) filter(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// LoadingResult is returned by a load: configuration errors, validation
// findings and generic loading failures, aggregated.
type LoadingResult struct {
	// Validation holds the findings of the completeness validator plus
	// unknown-skill findings from configuration.
	Validation ValidationResult `json:"validation"`

	// ConfigErrors lists resource resolution failures per state.
	ConfigErrors []error `json:"-"`

	// LoadErrors lists assembly, datamodel and other generic failures.
	LoadErrors []error `json:"-"`

	// Outcomes is the registered outcome catalogue per simple state id.
	Outcomes map[string][]ExitStatus `json:"outcomes,omitempty"`

	// Variables holds the evaluated root datamodel.
	Variables map[string]string `json:"variables,omitempty"`

	// Composed is the canonical encoding of the assembled document.
	Composed []byte `json:"-"`

	// Sources lists every location read during assembly, root first.
	Sources []string `json:"sources,omitempty"`

	// WarningsAsErrors makes warnings block Success.
	WarningsAsErrors bool `json:"-"`
}

// Success reports whether the loaded document may be started.
func (r *LoadingResult) Success() bool {
	if len(r.ConfigErrors) > 0 || len(r.LoadErrors) > 0 || r.Validation.HasErrors() {
		return false
	}
	if r.WarningsAsErrors && len(r.Validation.Warnings()) > 0 {
		return false
	}
	return true
}

// Err joins every blocking problem into one error, or returns nil.
func (r *LoadingResult) Err() error {
	if r.Success() {
		return nil
	}
	errs := make([]error, 0, len(r.LoadErrors)+len(r.ConfigErrors)+len(r.Validation.Findings))
	errs = append(errs, r.LoadErrors...)
	errs = append(errs, r.ConfigErrors...)
	for _, f := range r.Validation.Findings {
		if f.Severity == SeverityError || r.WarningsAsErrors {
			errs = append(errs, errors.New(f.String()))
		}
	}
	return errors.Join(errs...)
}
