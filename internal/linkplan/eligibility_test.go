package linkplan

import (
	"testing"
	"time"
)

func TestFilterEligible(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	source := &SourceArticle{ArticleID: 1, Slug: "source", PublishAt: &now}
	candidates := []Candidate{
		{ArticleID: 1}, // self
		{ArticleID: 2},
		{ArticleID: 3}, // duplicate slug of 2
		{ArticleID: 4}, // scheduled after source
		{ArticleID: 5}, // draft
		{ArticleID: 6}, // already linked
		{ArticleID: 7}, // not in target set
		{ArticleID: 8},
	}
	targets := map[int64]Target{
		1: {ArticleID: 1, Slug: "source", Status: "published", PublishAt: &past},
		2: {ArticleID: 2, Slug: "two", Status: "published", PublishAt: &past},
		3: {ArticleID: 3, Slug: "two", Status: "published", PublishAt: &past},
		4: {ArticleID: 4, Slug: "four", Status: "published", PublishAt: &future},
		5: {ArticleID: 5, Slug: "five", Status: "draft", PublishAt: &past},
		6: {ArticleID: 6, Slug: "six", Status: "published", PublishAt: &past},
		8: {ArticleID: 8, Slug: "eight", Status: "published", PublishAt: &past},
	}
	existing := []ExistingLink{{TargetID: 6, TargetSlug: "six", AnchorText: "older anchor"}}

	eligible := FilterEligible(source, candidates, targets, existing)
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible candidates, got %d", len(eligible))
	}
	if eligible[0].ArticleID != 2 || eligible[1].ArticleID != 8 {
		t.Fatalf("unexpected eligible set: %d, %d", eligible[0].ArticleID, eligible[1].ArticleID)
	}
}

func TestFilterEligible_EmptySetIsNotAnError(t *testing.T) {
	t.Parallel()

	source := &SourceArticle{ArticleID: 1, Slug: "source"}
	eligible := FilterEligible(source, []Candidate{{ArticleID: 1}}, map[int64]Target{}, nil)
	if len(eligible) != 0 {
		t.Fatalf("expected empty eligible set, got %d", len(eligible))
	}
}

func TestFilterEligible_TargetSlugMatchesSource(t *testing.T) {
	t.Parallel()

	source := &SourceArticle{ArticleID: 1, Slug: "shared-slug"}
	targets := map[int64]Target{
		2: {ArticleID: 2, Slug: "shared-slug", Status: "published"},
	}
	eligible := FilterEligible(source, []Candidate{{ArticleID: 2}}, targets, nil)
	if len(eligible) != 0 {
		t.Fatalf("target sharing the source slug must be excluded")
	}
}

func TestFilterEligible_SlugVariantsCollapse(t *testing.T) {
	t.Parallel()

	past := time.Now().UTC().Add(-24 * time.Hour)

	source := &SourceArticle{ArticleID: 1, Slug: "solar-panels"}
	candidates := []Candidate{
		{ArticleID: 2}, // case variant of the source slug
		{ArticleID: 3}, // diacritic variant of an already-linked slug
		{ArticleID: 4}, // punctuation variant of candidate 5's slug
		{ArticleID: 5},
	}
	targets := map[int64]Target{
		2: {ArticleID: 2, Slug: "Solar-Panels", Status: "published", PublishAt: &past},
		3: {ArticleID: 3, Slug: "Éolien-Côtier", Status: "published", PublishAt: &past},
		4: {ArticleID: 4, Slug: "grid_storage", Status: "published", PublishAt: &past},
		5: {ArticleID: 5, Slug: "grid-storage", Status: "published", PublishAt: &past},
	}
	existing := []ExistingLink{{TargetID: 9, TargetSlug: "eolien-cotier", AnchorText: "coastal wind"}}

	eligible := FilterEligible(source, candidates, targets, existing)
	if len(eligible) != 1 {
		t.Fatalf("expected 1 eligible candidate, got %d", len(eligible))
	}
	if eligible[0].ArticleID != 4 {
		t.Fatalf("expected first slug variant to win, got target %d", eligible[0].ArticleID)
	}
}

func TestFilterEligible_EmptySlugFallsBackToTitle(t *testing.T) {
	t.Parallel()

	past := time.Now().UTC().Add(-24 * time.Hour)

	source := &SourceArticle{ArticleID: 1, Slug: "", Title: "Grid Storage Basics"}
	targets := map[int64]Target{
		2: {ArticleID: 2, Slug: "", Title: "Grid Storage Basics", Status: "published", PublishAt: &past},
	}
	eligible := FilterEligible(source, []Candidate{{ArticleID: 2}}, targets, nil)
	if len(eligible) != 0 {
		t.Fatalf("target whose title normalizes to the source identifier must be excluded")
	}
}
