package linkplan

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/crosslink/internal/db"
)

type dbStore struct {
	pool *db.Pool
}

// NewStore returns the Postgres-backed planner store.
func NewStore(pool *db.Pool) Store {
	return &dbStore{pool: pool}
}

func (s *dbStore) SourceByUUID(ctx context.Context, articleUUID string) (*SourceArticle, error) {
	const q = `
SELECT
	a.article_id,
	a.article_uuid::text,
	a.slug,
	a.title,
	a.keywords,
	a.plain_text,
	a.html_body,
	a.status,
	a.publish_at,
	a.language,
	a.canonical_url
FROM links.articles a
WHERE a.article_uuid = $1::uuid
  AND a.deleted_at IS NULL
LIMIT 1
`

	var src SourceArticle
	if err := s.pool.QueryRow(ctx, q, strings.TrimSpace(articleUUID)).Scan(
		&src.ArticleID,
		&src.ArticleUUID,
		&src.Slug,
		&src.Title,
		&src.Keywords,
		&src.PlainText,
		&src.HTMLBody,
		&src.Status,
		&src.PublishAt,
		&src.Language,
		&src.CanonicalURL,
	); err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *dbStore) CountPublished(ctx context.Context) (int64, error) {
	return s.pool.CountPublished(ctx)
}

func (s *dbStore) TargetsByIDs(ctx context.Context, ids []int64) (map[int64]Target, error) {
	targets := make(map[int64]Target, len(ids))
	if len(ids) == 0 {
		return targets, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	q := fmt.Sprintf(`
SELECT
	a.article_id,
	a.article_uuid::text,
	a.slug,
	a.title,
	a.keywords,
	a.status,
	a.publish_at,
	a.canonical_url
FROM links.articles a
WHERE a.article_id IN (%s)
  AND a.deleted_at IS NULL
`, strings.Join(placeholders, ", "))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidate targets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Target
		if err := rows.Scan(
			&t.ArticleID,
			&t.ArticleUUID,
			&t.Slug,
			&t.Title,
			&t.Keywords,
			&t.Status,
			&t.PublishAt,
			&t.CanonicalURL,
		); err != nil {
			return nil, fmt.Errorf("scan candidate target: %w", err)
		}
		targets[t.ArticleID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate targets: %w", err)
	}
	return targets, nil
}

func (s *dbStore) ExistingLinks(ctx context.Context, sourceID int64) ([]ExistingLink, error) {
	const q = `
SELECT
	l.target_id,
	t.slug,
	l.anchor_text,
	l.text_start,
	l.text_end
FROM links.internal_links l
JOIN links.articles t ON t.article_id = l.target_id
WHERE l.source_id = $1
ORDER BY l.link_id
`

	rows, err := s.pool.Query(ctx, q, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query existing links: %w", err)
	}
	defer rows.Close()

	links := make([]ExistingLink, 0, 4)
	for rows.Next() {
		var l ExistingLink
		if err := rows.Scan(&l.TargetID, &l.TargetSlug, &l.AnchorText, &l.TextStart, &l.TextEnd); err != nil {
			return nil, fmt.Errorf("scan existing link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing links: %w", err)
	}
	return links, nil
}

// ApplyLink runs the full commit unit in one transaction: link insert
// (identity conflict is a replay no-op), HTML history append, article HTML
// replacement and reservation release. Partial application is never
// observable; any failure rolls everything back, including the reservation
// delete, so the caller's abort path can still release it.
func (s *dbStore) ApplyLink(ctx context.Context, p ApplyLinkParams) (ApplyLinkResult, error) {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return ApplyLinkResult{}, fmt.Errorf("begin apply-link tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertLink = `
INSERT INTO links.internal_links
	(source_id, target_id, anchor_text, text_start, text_end, html_start, html_end)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (source_id, target_id, anchor_text) DO NOTHING
RETURNING link_uuid::text
`

	var result ApplyLinkResult
	err = tx.QueryRow(ctx, insertLink,
		p.SourceID, p.TargetID, p.AnchorText,
		p.TextStart, p.TextEnd, p.HTMLStart, p.HTMLEnd,
	).Scan(&result.LinkUUID)
	switch {
	case err == nil:
		result.Inserted = true
	case db.IsNoRows(err):
		// Identity already present: no HTML mutation, no history entry.
		const existing = `
SELECT l.link_uuid::text
FROM links.internal_links l
WHERE l.source_id = $1 AND l.target_id = $2 AND l.anchor_text = $3
`
		if err := tx.QueryRow(ctx, existing, p.SourceID, p.TargetID, p.AnchorText).Scan(&result.LinkUUID); err != nil {
			return ApplyLinkResult{}, fmt.Errorf("load replayed link identity: %w", err)
		}
	default:
		return ApplyLinkResult{}, fmt.Errorf("insert internal link: %w", err)
	}

	if result.Inserted {
		const insertHistory = `
INSERT INTO links.html_history (article_id, html_body, link_uuid)
VALUES ($1, $2, $3::uuid)
`
		if _, err := tx.Exec(ctx, insertHistory, p.SourceID, p.PrevHTML, result.LinkUUID); err != nil {
			return ApplyLinkResult{}, fmt.Errorf("insert html history: %w", err)
		}

		const updateHTML = `
UPDATE links.articles
SET html_body = $1, updated_at = now()
WHERE article_id = $2
`
		if _, err := tx.Exec(ctx, updateHTML, p.NewHTML, p.SourceID); err != nil {
			return ApplyLinkResult{}, fmt.Errorf("update article html: %w", err)
		}
	}

	const releaseReservation = `
DELETE FROM links.link_reservations
WHERE source_id = $1 AND target_id = $2
`
	if _, err := tx.Exec(ctx, releaseReservation, p.SourceID, p.TargetID); err != nil {
		return ApplyLinkResult{}, fmt.Errorf("release reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ApplyLinkResult{}, fmt.Errorf("commit apply-link tx: %w", err)
	}
	return result, nil
}
