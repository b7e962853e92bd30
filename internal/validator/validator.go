package validator

import (
	"fmt"
	"log/slog"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// Outcomes is the registered outcome set of every simple state.
type Outcomes map[domain.StateIndex][]domain.ExitStatus

// Validator proves that every declared outcome has a transition and that
// every internally sent event is consumed.
type Validator struct {
	logger *slog.Logger
}

// New creates a Validator. A nil logger discards output.
func New(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{logger: logger}
}

// Validate runs the outcome-coverage pass and the internal-send pass and
// aggregates their findings.
func (v *Validator) Validate(doc *domain.Document, outcomes Outcomes) *domain.ValidationResult {
	res := &domain.ValidationResult{}
	res.Merge(v.CheckOutcomes(doc, outcomes))
	res.Merge(v.CheckSends(doc))
	v.logger.Debug("chart validated",
		"chart", doc.Name,
		"errors", len(res.Errors()),
		"warnings", len(res.Warnings()))
	return res
}

// CheckOutcomes verifies, for every simple state and every outcome it
// declares, that a transition on the state or one of its ancestors accepts
// the outcome event.
func (v *Validator) CheckOutcomes(doc *domain.Document, outcomes Outcomes) *domain.ValidationResult {
	res := &domain.ValidationResult{}
	for i := range doc.States {
		idx := domain.StateIndex(i)
		if !doc.IsSimple(idx) {
			continue
		}
		state := doc.State(idx)
		skill := domain.SkillName(state.ID)
		if domain.IsTerminalSkill(skill) {
			continue
		}

		declared := outcomes[idx]
		for _, f := range ambiguities(state.ID, declared) {
			res.Add(f)
		}

		for _, status := range declared {
			event := status.Event(skill)
			matched, unconditional := v.search(doc, idx, event)
			switch {
			case matched == 0:
				res.Add(domain.Finding{
					Kind:     domain.FindingMissingTransition,
					Severity: domain.SeverityError,
					StateID:  state.ID,
					Event:    event,
					Message:  fmt.Sprintf("state %q: no transition for outcome %s", state.ID, event),
				})
			case !unconditional:
				res.Add(domain.Finding{
					Kind:     domain.FindingConditionalOnly,
					Severity: domain.SeverityWarning,
					StateID:  state.ID,
					Event:    event,
					Message:  fmt.Sprintf("state %q: outcome %s is only handled by guarded transitions", state.ID, event),
				})
			}
		}
	}
	return res
}

// search walks from idx root-ward and counts the transitions accepting event.
// It stops at the first unconditional match.
func (v *Validator) search(doc *domain.Document, idx domain.StateIndex, event string) (matched int, unconditional bool) {
	for _, level := range doc.Ancestors(idx) {
		for _, t := range doc.State(level).Transitions {
			if !t.Matches(event) {
				continue
			}
			matched++
			if t.Cond == "" {
				v.logger.Debug("outcome covered", "state_id", doc.State(idx).ID, "event", event, "by", doc.State(level).ID)
				return matched, true
			}
		}
	}
	return matched, false
}

// ambiguities reports every status class declared both bare and qualified.
func ambiguities(stateID string, declared []domain.ExitStatus) []domain.Finding {
	bare := make(map[domain.Status]bool)
	qualified := make(map[domain.Status]bool)
	var order []domain.Status
	for _, s := range declared {
		if !bare[s.Status] && !qualified[s.Status] {
			order = append(order, s.Status)
		}
		if s.IsQualified() {
			qualified[s.Status] = true
		} else {
			bare[s.Status] = true
		}
	}

	var out []domain.Finding
	for _, s := range order {
		if bare[s] && qualified[s] {
			out = append(out, domain.Finding{
				Kind:     domain.FindingAmbiguousStatus,
				Severity: domain.SeverityError,
				StateID:  stateID,
				Event:    string(s),
				Message:  fmt.Sprintf("state %q declares %s both bare and with a processing status", stateID, s),
			})
		}
	}
	return out
}

// CheckSends verifies that every event a state's actions send is consumed
// by a transition of the state or one of its ancestors.
func (v *Validator) CheckSends(doc *domain.Document) *domain.ValidationResult {
	res := &domain.ValidationResult{}
	for i := range doc.States {
		idx := domain.StateIndex(i)
		emitted := emittedEvents(doc.State(idx))
		if len(emitted) == 0 {
			continue
		}

		var consumed []string
		for _, level := range doc.Ancestors(idx) {
			for _, t := range doc.State(level).Transitions {
				consumed = append(consumed, t.Descriptors()...)
			}
		}

		for _, event := range emitted {
			if consumes(consumed, event) {
				continue
			}
			res.Add(domain.Finding{
				Kind:     domain.FindingUnmatchedSend,
				Severity: domain.SeverityError,
				StateID:  doc.State(idx).ID,
				Event:    event,
				Message:  fmt.Sprintf("state %q sends %s but no transition consumes it", doc.State(idx).ID, event),
			})
		}
	}
	return res
}

// emittedEvents collects, without duplicates, the events sent by the
// state's onEntry, onExit and transition actions.
func emittedEvents(s *domain.StateNode) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(actions []domain.Action) {
		for _, a := range actions {
			if ev, ok := a.Emits(); ok && !seen[ev] {
				seen[ev] = true
				out = append(out, ev)
			}
		}
	}
	add(s.OnEntry)
	add(s.OnExit)
	for _, t := range s.Transitions {
		add(t.Actions)
	}
	return out
}

func consumes(patterns []string, event string) bool {
	for _, p := range patterns {
		if domain.MatchEvent(event, p) {
			return true
		}
	}
	return false
}

// UnknownSkill builds the finding for a simple state whose skill has no
// registered implementation. It is an error unless unknown skills are allowed.
func UnknownSkill(stateID, key string, allow bool) domain.Finding {
	sev := domain.SeverityError
	if allow {
		sev = domain.SeverityWarning
	}
	return domain.Finding{
		Kind:     domain.FindingUnknownSkill,
		Severity: sev,
		StateID:  stateID,
		Message:  fmt.Sprintf("state %q: no skill registered as %q", stateID, key),
	}
}

// DuplicateID builds the finding for a rejected duplicate state id.
func DuplicateID(stateID string) domain.Finding {
	return domain.Finding{
		Kind:     domain.FindingDuplicateID,
		Severity: domain.SeverityError,
		StateID:  stateID,
		Message:  fmt.Sprintf("state id %q is declared more than once", stateID),
	}
}
