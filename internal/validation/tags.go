package validation

import (
	"fmt"
	"regexp"
)

// MaxTags bounds the tag list on a post.
const MaxTags = 10

var tagRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9 -]{0,23}$`)

// ValidateTags checks a post's tag list: at most MaxTags entries, each a short
// lowercase word or phrase, with no repeats.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("at most %d tags are allowed", MaxTags)
	}
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if !tagRegex.MatchString(tag) {
			return fmt.Errorf("tag %q must be 1-24 lowercase letters, numbers, spaces, or hyphens", tag)
		}
		if _, dup := seen[tag]; dup {
			return fmt.Errorf("tag %q is repeated", tag)
		}
		seen[tag] = struct{}{}
	}
	return nil
}
