package workgraph

import (
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a task ID from a title: lowercased, non-alphanumeric runs
// collapsed to a single hyphen, leading/trailing hyphens trimmed. The result
// is the identity-defining, immutable id.
func Slugify(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// NewTask constructs a task in the initial open/loop_iteration=0 state
// required at creation. id should already be a unique slug; use
// Slugify to derive one from a title and disambiguate collisions yourself
// (e.g. by appending -2, -3, ...) before calling Graph.Add.
func NewTask(id, title string) *Task {
	return &Task{
		ID:         id,
		Title:      title,
		Status:     StatusOpen,
		Visibility: VisibilityInternal,
	}
}
