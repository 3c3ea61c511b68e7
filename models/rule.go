package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Rule is a tenant-scoped categorization rule. Evaluation order is priority
// ascending then confidence descending; the first matching rule wins.
type Rule struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"-"`
	Pattern    string    `json:"pattern"`
	Category   string    `json:"category"`
	Priority   int       `json:"priority"`
	Confidence float64   `json:"confidence"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsRegexPattern reports whether the pattern is a delimited regular
// expression (/.../) rather than a literal substring.
func IsRegexPattern(pattern string) bool {
	return len(pattern) > 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/")
}

// RegexBody strips the surrounding slashes from a delimited pattern.
func RegexBody(pattern string) string {
	return pattern[1 : len(pattern)-1]
}

// Matches reports whether the rule pattern is found in the given normalized
// (lowercased, whitespace-collapsed) text. Delimited patterns are matched as
// case-insensitive regular expressions, everything else as a case-insensitive
// substring. A pattern that fails to compile never matches.
func (r Rule) Matches(normalized string) bool {
	if IsRegexPattern(r.Pattern) {
		re, err := regexp.Compile("(?i)" + RegexBody(r.Pattern))
		if err != nil {
			return false
		}
		return re.MatchString(normalized)
	}
	return strings.Contains(normalized, strings.ToLower(r.Pattern))
}

// ValidatePattern rejects patterns the resolver could never apply sensibly:
// bad regexes are caught at rule-creation time instead of silently never
// matching, and an empty substring would match every transaction.
func ValidatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return errors.New("pattern must not be empty")
	}
	if IsRegexPattern(pattern) {
		_, err := regexp.Compile("(?i)" + RegexBody(pattern))
		return err
	}
	return nil
}
