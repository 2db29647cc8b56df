package gallery

import "github.com/promptgallery/gallery-backend/internal/domain"

// Filter is the set of active category selectors. The zero value is the
// empty filter: every record is visible. Filter is immutable; Toggle returns
// a new value.
type Filter struct {
	tags []string
}

// NewFilter builds a filter by toggling tags in order
func NewFilter(tags ...string) Filter {
	var f Filter
	for _, t := range tags {
		f = f.Toggle(t)
	}
	return f
}

// Toggle inserts tag if absent and removes it if present. Toggling
// domain.CategoryAll clears the set.
func (f Filter) Toggle(tag string) Filter {
	if tag == domain.CategoryAll {
		return Filter{}
	}
	for i, t := range f.tags {
		if t == tag {
			next := make([]string, 0, len(f.tags)-1)
			next = append(next, f.tags[:i]...)
			next = append(next, f.tags[i+1:]...)
			if len(next) == 0 {
				return Filter{}
			}
			return Filter{tags: next}
		}
	}
	next := make([]string, len(f.tags), len(f.tags)+1)
	copy(next, f.tags)
	return Filter{tags: append(next, tag)}
}

// IsEmpty reports whether no filter is active
func (f Filter) IsEmpty() bool {
	return len(f.tags) == 0
}

// Has reports whether tag is selected
func (f Filter) Has(tag string) bool {
	for _, t := range f.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Tags returns the selected tags in selection order
func (f Filter) Tags() []string {
	return append([]string(nil), f.tags...)
}

// Equal reports whether both filters select the same tags
func (f Filter) Equal(other Filter) bool {
	if len(f.tags) != len(other.tags) {
		return false
	}
	for _, t := range f.tags {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

// Matches reports whether p is visible under the filter (OR across tags)
func (f Filter) Matches(p domain.Prompt) bool {
	if f.IsEmpty() {
		return true
	}
	for _, t := range f.tags {
		if p.HasCategory(t) {
			return true
		}
	}
	return false
}

// TagButton is the view-model of one filter control
type TagButton struct {
	Tag    string `json:"tag"`
	Active bool   `json:"active"`
}

// Buttons returns the filter controls for vocabulary, led by All
func (f Filter) Buttons(vocabulary []string) []TagButton {
	buttons := make([]TagButton, 0, len(vocabulary)+1)
	buttons = append(buttons, TagButton{Tag: domain.CategoryAll, Active: f.IsEmpty()})
	for _, tag := range vocabulary {
		buttons = append(buttons, TagButton{Tag: tag, Active: f.Has(tag)})
	}
	return buttons
}
