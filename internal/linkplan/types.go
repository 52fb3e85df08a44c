// Package linkplan plans and applies internal links for one source article:
// hybrid retrieval over the chunk corpus, cross-encoder rerank, MMR
// diversification, eligibility filtering, fairness reservation, anchor
// selection with dual plain-text/HTML offsets, and atomic persistence.
package linkplan

import (
	"context"
	"time"

	"horse.fit/crosslink/internal/config"
	"horse.fit/crosslink/internal/fairness"
)

// Config carries the planner knobs. Defaults mirror the environment surface
// in config; the blend weights and MMR lambda are tuning constants, not
// invariants, and stay overridable per instance.
type Config struct {
	MaxLinksPerArticle    int
	MaxLinksPerSection    int
	BootstrapMinPublished int
	TopKDense             int
	TopKSparse            int
	BlendDenseWeight      float64
	BlendSparseWeight     float64
	RetrieveKeep          int
	RerankKeep            int
	MMRLambda             float64
	MMRK                  int
	AnchorMinWords        int
	AnchorMaxWords        int

	// PerArticleChunkCap bounds how many chunks one article may contribute
	// to retrieval aggregation so a long article cannot crowd out the rest.
	PerArticleChunkCap int
	// StitchGap is the maximum plain-text gap, in runes, across which two
	// chunks of the same article are merged into one anchor-selection span.
	StitchGap int
}

// FromAppConfig copies the planner subset out of the process configuration.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		MaxLinksPerArticle:    cfg.MaxLinksPerArticle,
		MaxLinksPerSection:    cfg.MaxLinksPerSection,
		BootstrapMinPublished: cfg.BootstrapMinPublished,
		TopKDense:             cfg.TopKDense,
		TopKSparse:            cfg.TopKSparse,
		BlendDenseWeight:      cfg.BlendDenseWeight,
		BlendSparseWeight:     cfg.BlendSparseWeight,
		RetrieveKeep:          cfg.RetrieveKeep,
		RerankKeep:            cfg.RerankKeep,
		MMRLambda:             cfg.MMRLambda,
		MMRK:                  cfg.MMRK,
		AnchorMinWords:        cfg.AnchorMinWords,
		AnchorMaxWords:        cfg.AnchorMaxWords,
		PerArticleChunkCap:    3,
		StitchGap:             64,
	}
}

// SourceArticle is the planner's read view of the article being linked from.
type SourceArticle struct {
	ArticleID    int64
	ArticleUUID  string
	Slug         string
	Title        string
	Keywords     string
	PlainText    string
	HTMLBody     *string
	Status       string
	PublishAt    *time.Time
	Language     string
	CanonicalURL *string
}

// Target is the planner's read view of a candidate link target.
type Target struct {
	ArticleID    int64
	ArticleUUID  string
	Slug         string
	Title        string
	Keywords     string
	Status       string
	PublishAt    *time.Time
	CanonicalURL *string
}

// ExistingLink is a link already persisted for the source article. Existing
// links consume budget, block their section, and pin their anchor and slug.
type ExistingLink struct {
	TargetID   int64
	TargetSlug string
	AnchorText string
	TextStart  int
	TextEnd    int
}

// Span is a stitched plain-text region contributed by one candidate.
type Span struct {
	TextStart int
	TextEnd   int
	Text      string
}

// Candidate is the ephemeral article-level unit flowing through the ranking
// stages. Scores accumulate stage by stage; ChunkSpans carries the capped
// contributing chunks in plain-text order.
type Candidate struct {
	ArticleID  int64
	Dense      float64
	Sparse     float64
	Blend      float64
	Rerank     float64
	BestChunk  string
	ChunkSpans []Span
	Span       Span
}

// AppliedLink is one link the planner committed (or replayed) for a source.
type AppliedLink struct {
	LinkUUID   string     `json:"link_uuid"`
	TargetID   int64      `json:"-"`
	TargetUUID string     `json:"target_uuid"`
	TargetSlug string     `json:"target_slug"`
	Href       string     `json:"href"`
	AnchorText string     `json:"anchor_text"`
	TextStart  int        `json:"text_start"`
	TextEnd    int        `json:"text_end"`
	HTMLStart  int        `json:"html_start"`
	HTMLEnd    int        `json:"html_end"`
	Replayed   bool       `json:"replayed,omitempty"`
	AppliedAt  *time.Time `json:"applied_at,omitempty"`
}

// Reason codes attached to an empty plan. An empty plan is an outcome, not
// an error.
const (
	ReasonBootstrapNotMet      = "bootstrap_not_met"
	ReasonNoCandidates         = "no_candidates"
	ReasonNoEligibleCandidates = "no_eligible_candidates"
	ReasonBudgetExhausted      = "link_budget_exhausted"
)

// PlanResult is what the planner hands back to the publish flow.
type PlanResult struct {
	SourceID   int64         `json:"-"`
	SourceUUID string        `json:"source_uuid"`
	Applied    []AppliedLink `json:"applied"`
	Reason     string        `json:"reason,omitempty"`
}

// ApplyLinkParams is the atomic persist unit: link row, HTML replacement,
// history entry and reservation release travel in one transaction.
type ApplyLinkParams struct {
	SourceID   int64
	TargetID   int64
	AnchorText string
	TextStart  int
	TextEnd    int
	HTMLStart  int
	HTMLEnd    int
	NewHTML    string
	PrevHTML   string
}

// ApplyLinkResult reports the persisted identity. Inserted is false when the
// (source, target, anchor) identity already existed and the write was a
// replay no-op.
type ApplyLinkResult struct {
	LinkUUID string
	Inserted bool
}

// Store is the persistence surface the planner depends on.
type Store interface {
	SourceByUUID(ctx context.Context, articleUUID string) (*SourceArticle, error)
	CountPublished(ctx context.Context) (int64, error)
	TargetsByIDs(ctx context.Context, ids []int64) (map[int64]Target, error)
	ExistingLinks(ctx context.Context, sourceID int64) ([]ExistingLink, error)
	ApplyLink(ctx context.Context, params ApplyLinkParams) (ApplyLinkResult, error)
}

// FairnessGate is the reservation protocol consumed by the planner. The
// concrete implementation lives in the fairness package.
type FairnessGate interface {
	Reserve(ctx context.Context, sourceID, targetID int64) (fairness.Outcome, error)
	Abort(ctx context.Context, sourceID, targetID int64) error
}
