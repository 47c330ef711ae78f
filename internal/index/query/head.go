package query

import (
	"fmt"
	"strings"
)

// Source yields the sorted ids a query head scans.
type Source interface {
	GetKeys(buf *Buffer) error
	HasMore() bool
}

// Head is one ready-to-scan filter chain: a driver posting list whose ids
// are narrowed by each step in order.
type Head struct {
	Index      string
	DriverTerm uint64
	driver     Source
	estimate   int
	steps      []FilterStep
}

// NewHead builds a head over driver. estimate is the driver cardinality;
// a zero estimate or nil driver makes the head a no-op.
func NewHead(index string, term uint64, driver Source, estimate int) *Head {
	return &Head{Index: index, DriverTerm: term, driver: driver, estimate: estimate}
}

// AddStep appends a step to the chain.
func (h *Head) AddStep(step FilterStep) *Head {
	h.steps = append(h.steps, step)
	return h
}

// Steps returns the chain in application order.
func (h *Head) Steps() []FilterStep {
	return h.steps
}

// Estimate is the driver list cardinality.
func (h *Head) Estimate() int {
	return h.estimate
}

// IsNoOp reports whether scanning the head can yield nothing because its
// driver list is empty or absent.
func (h *Head) IsNoOp() bool {
	return h.driver == nil || h.estimate <= 0
}

// HasMore reports whether the driver has ids left.
func (h *Head) HasMore() bool {
	return !h.IsNoOp() && h.driver.HasMore()
}

// GetMoreResults refills buf with the next driver ids and runs them
// through every step. buf may come back empty while HasMore is still true.
func (h *Head) GetMoreResults(buf *Buffer) error {
	buf.Reset()
	if !h.HasMore() {
		return nil
	}
	if err := h.driver.GetKeys(buf); err != nil {
		return fmt.Errorf("reading driver list: %w", err)
	}
	for _, step := range h.steps {
		if buf.IsEmpty() {
			return nil
		}
		if err := step.Apply(buf); err != nil {
			return fmt.Errorf("applying %s: %w", step.Describe(), err)
		}
	}
	return nil
}

func (h *Head) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%d ~%d]", h.Index, h.DriverTerm, h.estimate)
	for _, s := range h.steps {
		sb.WriteString(" -> ")
		sb.WriteString(s.Describe())
	}
	return sb.String()
}
