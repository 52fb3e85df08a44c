package linkplan

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/crosslink/internal/fairness"
	"horse.fit/crosslink/internal/htmldoc"
	"horse.fit/crosslink/internal/index"
	"horse.fit/crosslink/internal/langdetect"
	"horse.fit/crosslink/internal/reader"
	"horse.fit/crosslink/internal/slug"
)

// Service wires the planning stages together. One Service is safe for
// concurrent use; all cross-worker coordination happens inside the fairness
// gate, every other stage works on per-call state only.
type Service struct {
	store    Store
	searcher index.Searcher
	fair     FairnessGate
	cfg      Config
	logger   zerolog.Logger
}

func NewService(store Store, searcher index.Searcher, fair FairnessGate, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		searcher: searcher,
		fair:     fair,
		cfg:      cfg,
		logger:   logger.With().Str("component", "linkplan").Logger(),
	}
}

// PlanAndApply plans internal links for one source article and applies them
// atomically, returning the applied links or an empty plan with a reason
// code. Index backend failures propagate as retryable errors for the owning
// publish flow; an empty eligible set does not.
func (s *Service) PlanAndApply(ctx context.Context, articleUUID string) (*PlanResult, error) {
	return s.plan(ctx, articleUUID, false)
}

// Preview runs the full planning pipeline, fairness checks included, without
// persisting anything: reservations are taken and released again so the
// reported plan reflects real fairness headroom at preview time.
func (s *Service) Preview(ctx context.Context, articleUUID string) (*PlanResult, error) {
	return s.plan(ctx, articleUUID, true)
}

func (s *Service) plan(ctx context.Context, articleUUID string, dryRun bool) (*PlanResult, error) {
	src, err := s.store.SourceByUUID(ctx, articleUUID)
	if err != nil {
		return nil, fmt.Errorf("load source article %s: %w", articleUUID, err)
	}
	result := &PlanResult{SourceID: src.ArticleID, SourceUUID: src.ArticleUUID, Applied: []AppliedLink{}}

	// Cheap pre-check; the reservation gate re-verifies under its own
	// transaction, this only avoids pointless index traffic.
	published, err := s.store.CountPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("count published: %w", err)
	}
	if published < int64(s.cfg.bootstrapMin()) {
		result.Reason = ReasonBootstrapNotMet
		s.logger.Info().Str("source_uuid", src.ArticleUUID).Int64("published", published).
			Str("reason", result.Reason).Msg("empty plan")
		return result, nil
	}

	doc, plain, err := s.sourceDocument(src)
	if err != nil {
		return nil, err
	}

	query := BuildQuery(src.Title, headingTexts(doc), src.Keywords)
	if strings.TrimSpace(query) == "" {
		result.Reason = ReasonNoCandidates
		return result, nil
	}

	dense, sparse, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := HybridRetrieve(dense, sparse, s.cfg)
	if len(candidates) == 0 {
		result.Reason = ReasonNoCandidates
		s.logger.Info().Str("source_uuid", src.ArticleUUID).Str("reason", result.Reason).Msg("empty plan")
		return result, nil
	}

	candidates, err = Rerank(ctx, s.searcher, query, candidates, s.cfg)
	if err != nil {
		return nil, err
	}
	candidates = Diversify(candidates, s.cfg)

	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ArticleID)
	}
	targets, err := s.store.TargetsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidate targets: %w", err)
	}
	existing, err := s.store.ExistingLinks(ctx, src.ArticleID)
	if err != nil {
		return nil, fmt.Errorf("load existing links: %w", err)
	}

	eligible := FilterEligible(src, candidates, targets, existing)
	if len(eligible) == 0 {
		result.Reason = ReasonNoEligibleCandidates
		s.logger.Info().Str("source_uuid", src.ArticleUUID).Str("reason", result.Reason).Msg("empty plan")
		return result, nil
	}

	if err := s.assemble(ctx, src, doc, plain, eligible, targets, existing, result, dryRun); err != nil {
		return nil, err
	}
	if len(result.Applied) == 0 && result.Reason == "" {
		result.Reason = ReasonNoEligibleCandidates
	}
	return result, nil
}

// assemble walks eligible candidates in rank order, reserving fairness
// budget and inserting anchors until the per-article cap or the candidate
// list is exhausted. The document is re-parsed after each insertion so
// offsets always address the current canonical markup.
func (s *Service) assemble(ctx context.Context, src *SourceArticle, doc *htmldoc.Document, plain string, eligible []Candidate, targets map[int64]Target, existing []ExistingLink, result *PlanResult, dryRun bool) error {
	budget := s.cfg.maxLinks() - len(existing)
	if budget <= 0 {
		result.Reason = ReasonBudgetExhausted
		return nil
	}

	lang := src.Language
	if lang == "" || lang == "und" {
		lang = langdetect.DetectISO6391(plain)
	}

	sectionLinks := s.occupiedSections(doc)
	usedAnchors := make(map[string]bool, len(existing))
	for _, l := range existing {
		usedAnchors[strings.ToLower(l.AnchorText)] = true
	}

	for _, cand := range eligible {
		if budget <= 0 {
			break
		}
		target := targets[cand.ArticleID]

		outcome, err := s.fair.Reserve(ctx, src.ArticleID, target.ArticleID)
		if err != nil {
			return fmt.Errorf("reserve target %d: %w", target.ArticleID, err)
		}
		if outcome != fairness.OutcomeReserved {
			s.logger.Debug().Str("source_uuid", src.ArticleUUID).Int64("target_id", target.ArticleID).
				Stringer("outcome", outcome).Msg("candidate rejected by fairness gate")
			continue
		}

		applied, newDoc, err := s.applyCandidate(ctx, src, doc, plain, lang, target, cand, sectionLinks, usedAnchors, dryRun)
		if err != nil {
			if abortErr := s.fair.Abort(ctx, src.ArticleID, target.ArticleID); abortErr != nil {
				s.logger.Error().Err(abortErr).Int64("target_id", target.ArticleID).Msg("reservation abort failed")
			}
			return err
		}
		if applied == nil || dryRun {
			// No admissible anchor, or previewing: either way the reservation
			// must be released here. An applied link releases it inside the
			// ApplyLink transaction.
			if err := s.fair.Abort(ctx, src.ArticleID, target.ArticleID); err != nil {
				return fmt.Errorf("abort reservation for target %d: %w", target.ArticleID, err)
			}
			if applied == nil {
				continue
			}
		}

		doc = newDoc
		budget--
		usedAnchors[strings.ToLower(applied.AnchorText)] = true
		result.Applied = append(result.Applied, *applied)
		s.logger.Info().Str("source_uuid", src.ArticleUUID).Str("target_slug", applied.TargetSlug).
			Str("anchor", applied.AnchorText).Bool("replayed", applied.Replayed).Msg("link applied")
	}
	return nil
}

// applyCandidate tries each ranked anchor pick for one reserved candidate.
// It returns (nil, nil, nil) when no pick can be placed; the caller aborts
// the reservation. A store failure is returned as-is and is fatal for the
// whole plan. On success the reservation has been released inside the
// ApplyLink transaction.
func (s *Service) applyCandidate(ctx context.Context, src *SourceArticle, doc *htmldoc.Document, plain, lang string, target Target, cand Candidate, sectionLinks map[int]int, usedAnchors map[string]bool, dryRun bool) (*AppliedLink, *htmldoc.Document, error) {
	picks := SelectAnchors(plain, lang, target, cand.Span, usedAnchors, s.cfg)

	for _, pick := range picks {
		vStart, vEnd, err := doc.FindVisible(pick.Text, pick.Ordinal)
		if err != nil {
			continue
		}
		if doc.InHeading(vStart, vEnd) {
			continue
		}
		section := doc.SectionAt(vStart)
		if sectionLinks[section] >= s.cfg.sectionCap() {
			continue
		}

		prevHTML := doc.Markup()
		newDoc, err := doc.InsertAnchor(vStart, vEnd, hrefFor(target))
		if err != nil {
			// Unmappable or cross-element span; never splice blindly.
			doc, err = htmldoc.Parse(prevHTML)
			if err != nil {
				return nil, nil, fmt.Errorf("reparse source markup: %w", err)
			}
			continue
		}

		mapping, err := newDoc.MapVisibleRange(vStart, vEnd)
		if err != nil {
			return nil, nil, fmt.Errorf("map anchor range after insert: %w", err)
		}

		res := ApplyLinkResult{Inserted: true}
		if !dryRun {
			var err error
			res, err = s.store.ApplyLink(ctx, ApplyLinkParams{
				SourceID:   src.ArticleID,
				TargetID:   target.ArticleID,
				AnchorText: pick.Text,
				TextStart:  pick.Start,
				TextEnd:    pick.End,
				HTMLStart:  mapping.HTMLStart,
				HTMLEnd:    mapping.HTMLEnd,
				NewHTML:    newDoc.Markup(),
				PrevHTML:   prevHTML,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("apply link to target %d: %w", target.ArticleID, err)
			}
		}

		sectionLinks[section]++
		applied := &AppliedLink{
			LinkUUID:   res.LinkUUID,
			TargetID:   target.ArticleID,
			TargetUUID: target.ArticleUUID,
			TargetSlug: target.Slug,
			Href:       hrefFor(target),
			AnchorText: pick.Text,
			TextStart:  pick.Start,
			TextEnd:    pick.End,
			HTMLStart:  mapping.HTMLStart,
			HTMLEnd:    mapping.HTMLEnd,
			Replayed:   !res.Inserted,
		}
		if !res.Inserted {
			// Identity already persisted; the stored HTML was not touched,
			// keep planning against the unmutated document.
			reverted, err := htmldoc.Parse(prevHTML)
			if err != nil {
				return nil, nil, fmt.Errorf("reparse source markup: %w", err)
			}
			return applied, reverted, nil
		}
		return applied, newDoc, nil
	}
	return nil, nil, nil
}

// sourceDocument parses the article's HTML, synthesizing minimal markup from
// plain text when no HTML body exists yet, and resolves the plain text used
// for anchor scanning.
func (s *Service) sourceDocument(src *SourceArticle) (*htmldoc.Document, string, error) {
	markup := ""
	if src.HTMLBody != nil {
		markup = strings.TrimSpace(*src.HTMLBody)
	}
	if markup == "" {
		markup = htmldoc.SynthesizeFromPlainText(src.PlainText)
	}
	doc, err := htmldoc.Parse(markup)
	if err != nil {
		return nil, "", fmt.Errorf("parse source markup: %w", err)
	}

	plain := src.PlainText
	if strings.TrimSpace(plain) == "" && src.HTMLBody != nil {
		canonical := ""
		if src.CanonicalURL != nil {
			canonical = *src.CanonicalURL
		}
		extracted, err := reader.ExtractText(*src.HTMLBody, canonical, src.Title)
		if err != nil {
			return nil, "", fmt.Errorf("derive plain text: %w", err)
		}
		plain = extracted
	}
	return doc, plain, nil
}

// search runs dense and sparse retrieval concurrently. Both must succeed; a
// backend failure is retryable by the caller.
func (s *Service) search(ctx context.Context, query string) ([]index.ChunkHit, []index.ChunkHit, error) {
	var dense, sparse []index.ChunkHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.searcher.DenseSearch(gctx, query, s.cfg.TopKDense)
		if err != nil {
			return err
		}
		dense = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.searcher.SparseSearch(gctx, query, s.cfg.TopKSparse)
		if err != nil {
			return err
		}
		sparse = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return dense, sparse, nil
}

// occupiedSections counts the anchors already present in the stored markup,
// attributed to the sections of the anchor nodes themselves. Text search
// cannot do this: an anchor's text may also occur in an earlier section.
func (s *Service) occupiedSections(doc *htmldoc.Document) map[int]int {
	linked := doc.LinkedSections()
	used := make(map[int]int, len(linked))
	for _, section := range linked {
		used[section]++
	}
	return used
}

func headingTexts(doc *htmldoc.Document) []string {
	visible := []rune(doc.VisibleText())
	spans := doc.Headings()
	texts := make([]string, 0, len(spans))
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(visible) {
			continue
		}
		t := strings.TrimSpace(string(visible[sp.Start:sp.End]))
		if t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

func hrefFor(target Target) string {
	if target.CanonicalURL != nil && strings.TrimSpace(*target.CanonicalURL) != "" {
		return *target.CanonicalURL
	}
	return "/articles/" + slug.NormalizeWithFallback(target.Slug, target.Title)
}

// maxLinks honors 0 as "linking disabled"; only negatives are clamped.
func (c Config) maxLinks() int {
	if c.MaxLinksPerArticle < 0 {
		return 0
	}
	return c.MaxLinksPerArticle
}

func (c Config) sectionCap() int {
	if c.MaxLinksPerSection < 1 {
		return 1
	}
	return c.MaxLinksPerSection
}

func (c Config) bootstrapMin() int {
	if c.BootstrapMinPublished < 0 {
		return 0
	}
	return c.BootstrapMinPublished
}
