package checks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/user/gosec-audit/pkg/policy"
)

// Compare reports whether actual satisfies expected under the given comparison mode.
// An empty mode is an exact, case-sensitive comparison.
func Compare(mode, expected, actual string) (bool, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "", policy.CompareExact:
		return expected == actual, nil
	case policy.CompareIgnoreCase:
		return strings.EqualFold(expected, actual), nil
	case policy.CompareRegex:
		re, err := regexp.Compile(expected)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", expected, err)
		}
		return re.MatchString(actual), nil
	case policy.CompareGTE, policy.CompareLTE:
		want, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
		if err != nil {
			return false, fmt.Errorf("expected value %q is not numeric", expected)
		}
		got, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		if err != nil {
			// A non-numeric value on the host is a finding, not a broken check.
			return false, nil
		}
		if mode == policy.CompareGTE {
			return got >= want, nil
		}
		return got <= want, nil
	case policy.CompareMaxMode:
		want, err := parseMode(expected)
		if err != nil {
			return false, err
		}
		got, err := parseMode(actual)
		if err != nil {
			return false, nil
		}
		return got&^want == 0, nil
	default:
		return false, fmt.Errorf("unsupported comparison %q", mode)
	}
}

func parseMode(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not an octal mode", s)
	}
	return uint32(v), nil
}
