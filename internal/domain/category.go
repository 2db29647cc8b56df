package domain

import "strings"

// CategoryAll is the filter selector that clears every active filter.
// It is never stored on a prompt.
const CategoryAll = "All"

// Categories is the fixed tag vocabulary, in display order
var Categories = []string{
	"Nano",
	"Midjourney",
	"Portrait",
	"Landscape",
	"Illustration",
	"Photo",
	"3D",
	"Abstract",
}

var categorySet = func() map[string]bool {
	m := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// IsCategory reports whether tag belongs to the vocabulary
func IsCategory(tag string) bool {
	return categorySet[tag]
}

// CanonicalCategory matches tag against the vocabulary and CategoryAll,
// ignoring case and surrounding space
func CanonicalCategory(tag string) (string, bool) {
	tag = strings.TrimSpace(tag)
	if strings.EqualFold(tag, CategoryAll) {
		return CategoryAll, true
	}
	for _, c := range Categories {
		if strings.EqualFold(tag, c) {
			return c, true
		}
	}
	return "", false
}

// NormalizeCategories drops duplicates, keeping first-occurrence order
func NormalizeCategories(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
