package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the coarse outcome class of a skill.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
	StatusFatal   Status = "FATAL"
)

// ExitStatus is a Status plus an optional free-form processing status.
// SUCCESS and SUCCESS.personFound are distinct outcomes.
type ExitStatus struct {
	Status     Status `json:"status"`
	Processing string `json:"processing,omitempty"`
}

// Success returns a bare SUCCESS status.
func Success() ExitStatus { return ExitStatus{Status: StatusSuccess} }

// Error returns a bare ERROR status.
func Error() ExitStatus { return ExitStatus{Status: StatusError} }

// Fatal returns a bare FATAL status.
func Fatal() ExitStatus { return ExitStatus{Status: StatusFatal} }

// WithProcessingStatus qualifies the status, e.g. ERROR -> ERROR.timeout.
func (s ExitStatus) WithProcessingStatus(ps string) ExitStatus {
	s.Processing = ps
	return s
}

// IsQualified reports whether a processing status is attached.
func (s ExitStatus) IsQualified() bool {
	return s.Processing != ""
}

// String renders the event suffix of the status.
func (s ExitStatus) String() string {
	if s.Processing == "" {
		return string(s.Status)
	}
	return string(s.Status) + "." + s.Processing
}

// Event builds the outcome event a skill produces with this status.
func (s ExitStatus) Event(skill string) string {
	return skill + "." + s.String()
}

// ParseExitStatus is the inverse of ExitStatus.String.
func ParseExitStatus(v string) (ExitStatus, error) {
	head, rest, _ := strings.Cut(v, ".")
	switch Status(strings.ToUpper(head)) {
	case StatusSuccess, StatusError, StatusFatal:
		return ExitStatus{Status: Status(strings.ToUpper(head)), Processing: rest}, nil
	}
	return ExitStatus{}, fmt.Errorf("unknown exit status %q", v)
}

// ExitToken is what a skill step returns: either a loop marker (stay in the
// state, optionally after a delay) or a terminal status that becomes an event.
type ExitToken struct {
	status ExitStatus
	loop   bool
	delay  time.Duration
}

// Loop keeps the skill executing; the next step starts after delay.
func Loop(delay time.Duration) ExitToken {
	return ExitToken{loop: true, delay: delay}
}

// Exit ends the execute loop with the given status.
func Exit(status ExitStatus) ExitToken {
	return ExitToken{status: status}
}

// FatalToken is the token used when a runner fails or is forced to end.
func FatalToken() ExitToken {
	return Exit(Fatal())
}

// IsLoop reports whether the token continues execution.
func (t ExitToken) IsLoop() bool { return t.loop }

// Delay is the pause requested before the next step of a loop token.
func (t ExitToken) Delay() time.Duration { return t.delay }

// ExitStatus returns the terminal status; meaningless for loop tokens.
func (t ExitToken) ExitStatus() ExitStatus { return t.status }

func (t ExitToken) String() string {
	if t.loop {
		if t.delay > 0 {
			return fmt.Sprintf("LOOP(%s)", t.delay)
		}
		return "LOOP"
	}
	return t.status.String()
}
