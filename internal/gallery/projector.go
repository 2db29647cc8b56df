package gallery

import "github.com/promptgallery/gallery-backend/internal/domain"

// ViewStatus tells the renderer which state to draw
type ViewStatus string

const (
	StatusLoading        ViewStatus = "loading"
	StatusReady          ViewStatus = "ready"
	StatusEmptyNoRecords ViewStatus = "empty_no_records"
	StatusEmptyNoMatches ViewStatus = "empty_no_matches"
)

// Guidance texts for the two empty states
const (
	GuidanceNoRecords = "No prompts yet"
	GuidanceNoMatches = "No prompts in selected categories"
)

// View is a description of what to display
type View struct {
	Status    ViewStatus      `json:"status"`
	Items     []domain.Prompt `json:"items"`
	Total     int             `json:"total"`
	CanExport bool            `json:"canExport"`
	Filters   []TagButton     `json:"filters"`
}

// Guidance returns the empty-state text, or "" when there is something to show
func (v View) Guidance() string {
	switch v.Status {
	case StatusEmptyNoRecords:
		return GuidanceNoRecords
	case StatusEmptyNoMatches:
		return GuidanceNoMatches
	default:
		return ""
	}
}

// Project derives the visible, ordered records from a snapshot. It keeps
// repository order and has no side effects.
func Project(snap Snapshot, filter Filter) View {
	view := View{
		Total:     len(snap.Records),
		CanExport: len(snap.Records) > 0,
		Filters:   filter.Buttons(domain.Categories),
		Items:     []domain.Prompt{},
	}

	if !snap.Loaded {
		view.Status = StatusLoading
		return view
	}

	for _, p := range snap.Records {
		if filter.Matches(p) {
			view.Items = append(view.Items, p)
		}
	}

	switch {
	case len(view.Items) > 0:
		view.Status = StatusReady
	case len(snap.Records) == 0:
		view.Status = StatusEmptyNoRecords
	default:
		view.Status = StatusEmptyNoMatches
	}
	return view
}
