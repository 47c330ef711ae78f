package query

import (
	"fmt"
	"strings"
)

// PostingList is the part of a posting list reader a filter step needs.
type PostingList interface {
	RetainData(buf *Buffer) error
	RejectData(buf *Buffer) error
}

// StepKind tags the variant of a FilterStep.
type StepKind uint8

const (
	// StepRetain keeps ids present in a posting list.
	StepRetain StepKind = iota
	// StepReject keeps ids absent from a posting list.
	StepReject
	// StepPredicate keeps ids accepted by a per-document test.
	StepPredicate
	// StepAnyOf keeps ids accepted by at least one nested step.
	StepAnyOf
)

func (k StepKind) String() string {
	switch k {
	case StepRetain:
		return "retain"
	case StepReject:
		return "reject"
	case StepPredicate:
		return "predicate"
	case StepAnyOf:
		return "any-of"
	default:
		return fmt.Sprintf("step(%d)", uint8(k))
	}
}

// FilterStep is one link of a query head's filter chain. The set of
// variants is closed; Kind selects which fields are meaningful.
type FilterStep struct {
	Kind StepKind
	// Term is the term id behind a retain or reject step.
	Term uint64
	// List backs retain and reject steps.
	List PostingList
	// Test backs predicate steps.
	Test func(id uint64) bool
	// Steps backs any-of steps.
	Steps []FilterStep

	cost  float64
	label string
}

// Retain builds an inclusion step. cost is the posting list cardinality.
func Retain(term uint64, list PostingList, cost float64, label string) FilterStep {
	return FilterStep{Kind: StepRetain, Term: term, List: list, cost: cost, label: label}
}

// Reject builds an exclusion step.
func Reject(term uint64, list PostingList, cost float64, label string) FilterStep {
	return FilterStep{Kind: StepReject, Term: term, List: list, cost: cost, label: label}
}

// Predicate builds a per-document test step.
func Predicate(test func(id uint64) bool, cost float64, label string) FilterStep {
	return FilterStep{Kind: StepPredicate, Test: test, cost: cost, label: label}
}

// AnyOf builds a union step. With a single member it is that member.
func AnyOf(steps ...FilterStep) FilterStep {
	if len(steps) == 1 {
		return steps[0]
	}
	var cost float64
	for _, s := range steps {
		cost += s.Cost()
	}
	return FilterStep{Kind: StepAnyOf, Steps: steps, cost: cost}
}

// Cost estimates the work of applying the step to one buffer.
func (s FilterStep) Cost() float64 {
	return s.cost
}

// Describe renders the step for logs and query plans.
func (s FilterStep) Describe() string {
	switch s.Kind {
	case StepAnyOf:
		parts := make([]string, len(s.Steps))
		for i, sub := range s.Steps {
			parts[i] = sub.Describe()
		}
		return "any(" + strings.Join(parts, " | ") + ")"
	default:
		if s.label != "" {
			return s.Kind.String() + ":" + s.label
		}
		return s.Kind.String()
	}
}

// Apply narrows buf to the ids the step accepts, preserving order.
func (s FilterStep) Apply(buf *Buffer) error {
	switch s.Kind {
	case StepRetain:
		return s.List.RetainData(buf)
	case StepReject:
		return s.List.RejectData(buf)
	case StepPredicate:
		buf.StartFiltering()
		for buf.HasMore() {
			if s.Test(buf.CurrentValue()) {
				buf.RetainAndAdvance()
			} else {
				buf.RejectAndAdvance()
			}
		}
		buf.FinalizeFiltering()
		return nil
	case StepAnyOf:
		return s.applyAnyOf(buf)
	default:
		return fmt.Errorf("unknown filter step kind %d", s.Kind)
	}
}

func (s FilterStep) applyAnyOf(buf *Buffer) error {
	if buf.IsEmpty() || len(s.Steps) == 0 {
		return nil
	}
	original := buf.Copy()
	accepted := make(map[uint64]struct{}, len(original))
	work := NewBuffer(len(original))
	for _, sub := range s.Steps {
		work.Reset()
		for _, id := range original {
			work.Append(id)
		}
		if err := sub.Apply(work); err != nil {
			return err
		}
		for _, id := range work.Data() {
			accepted[id] = struct{}{}
		}
		if len(accepted) == len(original) {
			break
		}
	}
	buf.StartFiltering()
	for buf.HasMore() {
		if _, ok := accepted[buf.CurrentValue()]; ok {
			buf.RetainAndAdvance()
		} else {
			buf.RejectAndAdvance()
		}
	}
	buf.FinalizeFiltering()
	return nil
}
