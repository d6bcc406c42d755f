// Package dcmmeta selects, converts and bundles per-slice DICOM metadata so it
// can travel with an assembled volume.
package dcmmeta

import (
	"fmt"
	"regexp"
	"strings"
)

// KeyRegexFilter builds a predicate over metadata key names. A key is kept
// when it matches any include pattern and no exclude pattern. An empty include
// list keeps every key not excluded.
//
// Patterns are unanchored, so a plain word matches any key containing it.
func KeyRegexFilter(include, exclude []string) (func(key string) bool, error) {
	inc, err := joinPatterns(include)
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	exc, err := joinPatterns(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}

	return func(key string) bool {
		if inc != nil && !inc.MatchString(key) {
			return false
		}
		return exc == nil || !exc.MatchString(key)
	}, nil
}

// joinPatterns compiles the patterns into one alternation, or nil when there
// are none.
func joinPatterns(patterns []string) (*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return nil, err
		}
		parts[i] = "(?:" + p + ")"
	}
	return regexp.Compile(strings.Join(parts, "|"))
}
