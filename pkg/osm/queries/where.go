package queries

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/NERVsystems/osmnodes/pkg/core"
)

// Op is the comparison a Filter applies to a tag
type Op int

const (
	OpEqual     Op = iota // key=value
	OpNotEqual            // key!=value
	OpExists              // key
	OpNotExists           // !key
	OpMatch               // key~regex
	OpNotMatch            // key!~regex
)

func (o Op) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpExists:
		return "exists"
	case OpNotExists:
		return "!exists"
	case OpMatch:
		return "~"
	case OpNotMatch:
		return "!~"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Filter is a single parsed where clause
type Filter struct {
	Key   string
	Op    Op
	Value string
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_:.\-]+$`)

// String renders the filter in Overpass QL with quoted key and value.
func (f Filter) String() string {
	key := quote(f.Key)
	switch f.Op {
	case OpExists:
		return fmt.Sprintf("[%s]", key)
	case OpNotExists:
		return fmt.Sprintf("[!%s]", key)
	case OpNotEqual:
		return fmt.Sprintf("[%s!=%s]", key, quote(f.Value))
	case OpMatch:
		return fmt.Sprintf("[%s~%s]", key, quote(f.Value))
	case OpNotMatch:
		return fmt.Sprintf("[%s!~%s]", key, quote(f.Value))
	default:
		return fmt.Sprintf("[%s=%s]", key, quote(f.Value))
	}
}

// Matches reports whether a tag set satisfies the filter
func (f Filter) Matches(tags map[string]string) bool {
	v, ok := tags[f.Key]
	switch f.Op {
	case OpExists:
		return ok
	case OpNotExists:
		return !ok
	case OpEqual:
		return ok && v == f.Value
	case OpNotEqual:
		return !ok || v != f.Value
	case OpMatch, OpNotMatch:
		re, err := regexp.Compile(f.Value)
		if err != nil {
			return false
		}
		matched := ok && re.MatchString(v)
		if f.Op == OpMatch {
			return matched
		}
		return !matched
	}
	return false
}

// ParseWhere parses where expressions into filters. All expressions must hold
// for a node to match. Accepted forms are key=value, key!=value, key~regex,
// key!~regex, key and !key.
func ParseWhere(exprs ...string) ([]Filter, error) {
	filters := make([]Filter, 0, len(exprs))
	for _, expr := range exprs {
		f, err := parseClause(expr)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func parseClause(expr string) (Filter, error) {
	clause := strings.TrimSpace(expr)
	if clause == "" {
		return Filter{}, invalidWhere(expr, "empty expression")
	}

	idx := strings.IndexAny(clause, "=~")
	if idx < 0 {
		if strings.HasPrefix(clause, "!") {
			key := strings.TrimSpace(clause[1:])
			if !keyPattern.MatchString(key) {
				return Filter{}, invalidWhere(expr, "invalid tag key")
			}
			return Filter{Key: key, Op: OpNotExists}, nil
		}
		if !keyPattern.MatchString(clause) {
			return Filter{}, invalidWhere(expr, "invalid tag key")
		}
		return Filter{Key: clause, Op: OpExists}, nil
	}

	negate := idx > 0 && clause[idx-1] == '!'
	keyEnd := idx
	if negate {
		keyEnd--
	}
	key := strings.TrimSpace(clause[:keyEnd])
	value := strings.TrimSpace(clause[idx+1:])

	if !keyPattern.MatchString(key) {
		return Filter{}, invalidWhere(expr, "invalid tag key")
	}
	if value == "" {
		return Filter{}, invalidWhere(expr, "missing value")
	}
	if strings.ContainsAny(value, "\"\r\n") {
		return Filter{}, invalidWhere(expr, "value contains a quote or line break")
	}

	var op Op
	switch {
	case clause[idx] == '=' && !negate:
		op = OpEqual
	case clause[idx] == '=':
		op = OpNotEqual
	case !negate:
		op = OpMatch
	default:
		op = OpNotMatch
	}

	if op == OpMatch || op == OpNotMatch {
		if _, err := regexp.Compile(value); err != nil {
			return Filter{}, invalidWhere(expr, "invalid regular expression")
		}
	}

	return Filter{Key: key, Op: op, Value: value}, nil
}

func invalidWhere(expr, reason string) error {
	return core.Errorf(core.CodeInvalidArgument, "malformed where expression %q: %s", expr, reason).
		WithGuidance("Use key=value, key!=value, key~regex, key!~regex, key or !key")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `\`, `\\`) + `"`
}
