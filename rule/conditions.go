package rule

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// Condition is a single declarative predicate over check params.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Operator is a comparison operator for conditions.
type Operator string

const (
	// OpEquals checks for equality.
	OpEquals Operator = "eq"

	// OpNotEquals checks for inequality.
	OpNotEquals Operator = "neq"

	// OpIn checks if a value is in a set.
	OpIn Operator = "in"

	// OpNotIn checks if a value is not in a set.
	OpNotIn Operator = "not_in"

	// OpContains checks if a string contains a substring.
	OpContains Operator = "contains"

	// OpStartsWith checks if a string starts with a prefix.
	OpStartsWith Operator = "starts_with"

	// OpEndsWith checks if a string ends with a suffix.
	OpEndsWith Operator = "ends_with"

	// OpGreaterThan checks if a value is greater than another.
	OpGreaterThan Operator = "gt"

	// OpLessThan checks if a value is less than another.
	OpLessThan Operator = "lt"

	// OpGTE checks if a value is greater than or equal to another.
	OpGTE Operator = "gte"

	// OpLTE checks if a value is less than or equal to another.
	OpLTE Operator = "lte"

	// OpExists checks if a param is present.
	OpExists Operator = "exists"

	// OpNotExists checks if a param is absent.
	OpNotExists Operator = "not_exists"

	// OpIPInCIDR checks if an IP address falls within a CIDR range.
	OpIPInCIDR Operator = "ip_in_cidr"

	// OpTimeAfter checks if a time is after a threshold.
	OpTimeAfter Operator = "time_after"

	// OpTimeBefore checks if a time is before a threshold.
	OpTimeBefore Operator = "time_before"

	// OpRegex checks if a value matches a regular expression.
	OpRegex Operator = "regex"
)

// conditionRule evaluates a condition list against check params (AND).
type conditionRule struct {
	conditions []Condition
}

func (r *conditionRule) Execute(_ context.Context, params Params) (bool, error) {
	for _, c := range r.conditions {
		val, present := resolveField(c.Field, params)
		ok, err := evaluateCondition(c.Operator, val, present, c.Value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// resolveField looks up a dotted path in the params map. Intermediate
// segments must be map[string]any.
func resolveField(field string, params Params) (any, bool) {
	if params == nil {
		return nil, false
	}
	parts := strings.Split(field, ".")
	var cur any = map[string]any(params)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func evaluateCondition(op Operator, actual any, present bool, expected any) (bool, error) {
	switch op {
	case OpEquals:
		return fmt.Sprint(actual) == fmt.Sprint(expected), nil
	case OpNotEquals:
		return fmt.Sprint(actual) != fmt.Sprint(expected), nil
	case OpIn:
		return inSlice(actual, expected), nil
	case OpNotIn:
		return !inSlice(actual, expected), nil
	case OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected)), nil
	case OpStartsWith:
		return strings.HasPrefix(fmt.Sprint(actual), fmt.Sprint(expected)), nil
	case OpEndsWith:
		return strings.HasSuffix(fmt.Sprint(actual), fmt.Sprint(expected)), nil
	case OpGreaterThan:
		return compareNumbers(actual, expected) > 0, nil
	case OpLessThan:
		return compareNumbers(actual, expected) < 0, nil
	case OpGTE:
		return compareNumbers(actual, expected) >= 0, nil
	case OpLTE:
		return compareNumbers(actual, expected) <= 0, nil
	case OpExists:
		return present, nil
	case OpNotExists:
		return !present, nil
	case OpIPInCIDR:
		return ipInCIDR(fmt.Sprint(actual), expected)
	case OpTimeAfter:
		return timeCompare(actual, expected, true)
	case OpTimeBefore:
		return timeCompare(actual, expected, false)
	case OpRegex:
		re, err := regexp.Compile(fmt.Sprint(expected))
		if err != nil {
			return false, fmt.Errorf("%w: invalid regex %q: %w", ErrInvalidCondition, expected, err)
		}
		return re.MatchString(fmt.Sprint(actual)), nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, op)
	}
}

func inSlice(actual, expected any) bool {
	s := fmt.Sprint(actual)
	switch v := expected.(type) {
	case []string:
		for _, item := range v {
			if item == s {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if fmt.Sprint(item) == s {
				return true
			}
		}
	}
	return false
}

func compareNumbers(a, b any) int {
	fa := toFloat64(a)
	fb := toFloat64(b)
	if fa < fb {
		return -1
	}
	if fa > fb {
		return 1
	}
	return 0
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%f", &f); err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func ipInCIDR(ipStr string, cidrVal any) (bool, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false, nil
	}

	var cidrs []string
	switch v := cidrVal.(type) {
	case string:
		cidrs = []string{v}
	case []string:
		cidrs = v
	case []any:
		for _, item := range v {
			cidrs = append(cidrs, fmt.Sprint(item))
		}
	default:
		return false, nil
	}

	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true, nil
		}
	}
	return false, nil
}

func timeCompare(actual, expected any, after bool) (bool, error) {
	at, ok := parseTime(actual)
	if !ok {
		return false, nil
	}
	et, ok := parseTime(expected)
	if !ok {
		return false, nil
	}
	if after {
		return at.After(et), nil
	}
	return at.Before(et), nil
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
