package query

import (
	"fmt"
	"strconv"
	"strings"
)

// LimitKind selects how a Limit compares values.
type LimitKind uint8

const (
	LimitNone LimitKind = iota
	LimitLessThan
	LimitGreaterThan
	LimitEquals
)

// Limit is a one-sided or exact constraint on a document metadata field.
// Both bounds are inclusive: LessThan(2000) accepts 2000.
type Limit struct {
	Kind  LimitKind `json:"kind"`
	Value int       `json:"value"`
}

// NoLimit accepts every value.
func NoLimit() Limit { return Limit{} }

// LessThan accepts values up to and including v.
func LessThan(v int) Limit { return Limit{Kind: LimitLessThan, Value: v} }

// GreaterThan accepts values from v upwards.
func GreaterThan(v int) Limit { return Limit{Kind: LimitGreaterThan, Value: v} }

// Equals accepts exactly v.
func Equals(v int) Limit { return Limit{Kind: LimitEquals, Value: v} }

// IsNone reports whether the limit accepts everything.
func (l Limit) IsNone() bool { return l.Kind == LimitNone }

// Test reports whether v satisfies the limit.
func (l Limit) Test(v int) bool {
	switch l.Kind {
	case LimitLessThan:
		return v <= l.Value
	case LimitGreaterThan:
		return v >= l.Value
	case LimitEquals:
		return v == l.Value
	default:
		return true
	}
}

func (l Limit) String() string {
	switch l.Kind {
	case LimitLessThan:
		return fmt.Sprintf("<=%d", l.Value)
	case LimitGreaterThan:
		return fmt.Sprintf(">=%d", l.Value)
	case LimitEquals:
		return fmt.Sprintf("=%d", l.Value)
	default:
		return "none"
	}
}

// ParseLimit reads the String form back. An empty string or "none" is
// NoLimit. "<v" and ">v" are accepted as the inclusive forms.
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return NoLimit(), nil
	}
	var kind LimitKind
	var rest string
	switch {
	case strings.HasPrefix(s, "<="):
		kind, rest = LimitLessThan, s[2:]
	case strings.HasPrefix(s, ">="):
		kind, rest = LimitGreaterThan, s[2:]
	case strings.HasPrefix(s, "<"):
		kind, rest = LimitLessThan, s[1:]
	case strings.HasPrefix(s, ">"):
		kind, rest = LimitGreaterThan, s[1:]
	case strings.HasPrefix(s, "="):
		kind, rest = LimitEquals, s[1:]
	default:
		return Limit{}, fmt.Errorf("parsing limit %q: unknown form", s)
	}
	v, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return Limit{}, fmt.Errorf("parsing limit %q: %w", s, err)
	}
	return Limit{Kind: kind, Value: v}, nil
}
