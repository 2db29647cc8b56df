package gallery_test

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded(records ...domain.Prompt) gallery.Snapshot {
	return gallery.Snapshot{Records: records, Loaded: true, LoadedAt: baseTime}
}

func TestProject_Scenario(t *testing.T) {
	a := newPrompt("A", 1, "Nano")
	b := newPrompt("B", 2, "Nano", "Photo")
	c := newPrompt("C", 3, "Photo")
	snap := loaded(a, b, c)

	view := gallery.Project(snap, gallery.NewFilter("Nano"))
	assert.Equal(t, ids([]domain.Prompt{a, b}), ids(view.Items))

	view = gallery.Project(snap, gallery.NewFilter("Nano", "Photo"))
	assert.Equal(t, ids([]domain.Prompt{a, b, c}), ids(view.Items))

	view = gallery.Project(snap, gallery.Filter{})
	assert.Equal(t, ids([]domain.Prompt{a, b, c}), ids(view.Items))
	assert.Equal(t, gallery.StatusReady, view.Status)
	assert.Equal(t, 3, view.Total)
	assert.True(t, view.CanExport)
}

func TestProject_EmptyFilterPassThrough(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	snap := loaded(randomRecords(rng, 25)...)

	var f gallery.Filter
	for i := 0; i < 300; i++ {
		f = f.Toggle(randomTag(rng))
		if !f.IsEmpty() {
			continue
		}
		view := gallery.Project(snap, f)
		if diff := cmp.Diff(snap.Records, view.Items); diff != "" {
			t.Fatalf("empty filter changed records (-want +got):\n%s", diff)
		}
	}
}

func TestProject_NoFalsePositivesOrNegatives(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	records := randomRecords(rng, 40)
	snap := loaded(records...)

	for i := 0; i < 100; i++ {
		f := randomFilter(rng)
		if f.IsEmpty() {
			continue
		}
		view := gallery.Project(snap, f)

		visible := make(map[string]bool, len(view.Items))
		for _, p := range view.Items {
			visible[p.ID.String()] = true
		}
		for _, p := range records {
			shares := false
			for _, tag := range f.Tags() {
				if p.HasCategory(tag) {
					shares = true
				}
			}
			require.Equalf(t, shares, visible[p.ID.String()], "record %v under filter %v", p.Categories, f.Tags())
		}
	}
}

func TestProject_KeepsRepositoryOrder(t *testing.T) {
	newest := newPrompt("new", 0, "3D")
	middle := newPrompt("mid", 5, "Abstract")
	oldest := newPrompt("old", 10, "3D")

	view := gallery.Project(loaded(newest, middle, oldest), gallery.NewFilter("3D"))
	assert.Equal(t, ids([]domain.Prompt{newest, oldest}), ids(view.Items))
}

func TestProject_States(t *testing.T) {
	tests := []struct {
		name     string
		snap     gallery.Snapshot
		filter   gallery.Filter
		status   gallery.ViewStatus
		guidance string
	}{
		{
			name:   "not loaded",
			snap:   gallery.Snapshot{},
			status: gallery.StatusLoading,
		},
		{
			name:     "no records",
			snap:     loaded(),
			status:   gallery.StatusEmptyNoRecords,
			guidance: gallery.GuidanceNoRecords,
		},
		{
			name:     "no records with active filter",
			snap:     loaded(),
			filter:   gallery.NewFilter("Nano"),
			status:   gallery.StatusEmptyNoRecords,
			guidance: gallery.GuidanceNoRecords,
		},
		{
			name:     "records but none match",
			snap:     loaded(newPrompt("a", 0, "Photo")),
			filter:   gallery.NewFilter("Nano"),
			status:   gallery.StatusEmptyNoMatches,
			guidance: gallery.GuidanceNoMatches,
		},
		{
			name:   "ready",
			snap:   loaded(newPrompt("a", 0, "Nano")),
			filter: gallery.NewFilter("Nano"),
			status: gallery.StatusReady,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := gallery.Project(tt.snap, tt.filter)
			assert.Equal(t, tt.status, view.Status)
			assert.Equal(t, tt.guidance, view.Guidance())
			assert.NotNil(t, view.Items)
		})
	}
}

func TestProject_CanExportTracksTotal(t *testing.T) {
	view := gallery.Project(loaded(newPrompt("a", 0, "Photo")), gallery.NewFilter("Nano"))
	assert.Equal(t, 1, view.Total)
	assert.True(t, view.CanExport)
	assert.Empty(t, view.Items)

	view = gallery.Project(loaded(), gallery.Filter{})
	assert.False(t, view.CanExport)
}

func randomTag(rng *rand.Rand) string {
	if rng.Intn(10) == 0 {
		return domain.CategoryAll
	}
	return domain.Categories[rng.Intn(len(domain.Categories))]
}

func randomRecords(rng *rand.Rand, n int) []domain.Prompt {
	records := make([]domain.Prompt, n)
	for i := range records {
		var cats []string
		for j := 1 + rng.Intn(3); j > 0; j-- {
			cats = append(cats, domain.Categories[rng.Intn(len(domain.Categories))])
		}
		records[i] = newPrompt("body", i, domain.NormalizeCategories(cats)...)
	}
	return records
}
