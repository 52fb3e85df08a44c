package linkplan

import (
	"horse.fit/crosslink/internal/globaltime"
	"horse.fit/crosslink/internal/slug"
)

// FilterEligible drops candidates that can never be linked from this source:
// the source itself, targets whose slug is already linked from this article,
// duplicate slugs within the candidate list, unpublished or soft-deleted
// targets, and targets scheduled to go visible only after the source.
// Fairness is not checked here; the reservation gate owns that, atomically,
// at assembly time. An empty result is a valid outcome.
func FilterEligible(source *SourceArticle, candidates []Candidate, targets map[int64]Target, existing []ExistingLink) []Candidate {
	linkedSlugs := make(map[string]bool, len(existing))
	linkedTargets := make(map[int64]bool, len(existing))
	for _, l := range existing {
		linkedSlugs[slug.Normalize(l.TargetSlug)] = true
		linkedTargets[l.TargetID] = true
	}

	// Slugs are compared in canonical form so case, diacritics and
	// punctuation variants of the same identifier collapse together.
	sourceSlug := slug.NormalizeWithFallback(source.Slug, source.Title)

	eligible := make([]Candidate, 0, len(candidates))
	seenSlugs := make(map[string]bool)
	for _, c := range candidates {
		if c.ArticleID == source.ArticleID {
			continue
		}
		target, ok := targets[c.ArticleID]
		if !ok {
			continue
		}
		if target.Status != "published" {
			continue
		}
		if linkedTargets[target.ArticleID] {
			continue
		}
		targetSlug := slug.NormalizeWithFallback(target.Slug, target.Title)
		if targetSlug == sourceSlug || linkedSlugs[targetSlug] || seenSlugs[targetSlug] {
			continue
		}
		if scheduledAfterSource(source, target) {
			continue
		}
		seenSlugs[targetSlug] = true
		eligible = append(eligible, c)
	}
	return eligible
}

// scheduledAfterSource reports whether the target becomes visible strictly
// after the source, which would make the link point at not-yet-published
// content. A target with no publish time is treated as already visible; a
// source with no publish time is treated as publishing now.
func scheduledAfterSource(source *SourceArticle, target Target) bool {
	if target.PublishAt == nil {
		return false
	}
	ref := globaltime.UTC()
	if source.PublishAt != nil {
		ref = *source.PublishAt
	}
	return target.PublishAt.After(ref)
}
