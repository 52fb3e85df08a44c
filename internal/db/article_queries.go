package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ArticleSummary is used by CLI listings and the HTTP API.
type ArticleSummary struct {
	ArticleID   int64      `json:"article_id"`
	ArticleUUID string     `json:"article_uuid"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	PublishAt   *time.Time `json:"publish_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GetArticleSummary loads one article by UUID.
func (p *Pool) GetArticleSummary(ctx context.Context, articleUUID string) (*ArticleSummary, error) {
	const q = `
SELECT
	a.article_id,
	a.article_uuid::text,
	a.slug,
	a.title,
	a.status,
	a.publish_at,
	a.created_at
FROM links.articles a
WHERE a.article_uuid = $1::uuid
  AND a.deleted_at IS NULL
LIMIT 1
`

	var row ArticleSummary
	if err := p.QueryRow(ctx, q, strings.TrimSpace(articleUUID)).Scan(
		&row.ArticleID,
		&row.ArticleUUID,
		&row.Slug,
		&row.Title,
		&row.Status,
		&row.PublishAt,
		&row.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &row, nil
}

// ListPublishedArticles returns the most recently published articles. The run
// command feeds these through the planner; replays are no-ops by identity.
func (p *Pool) ListPublishedArticles(ctx context.Context, limit int) ([]ArticleSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	a.article_id,
	a.article_uuid::text,
	a.slug,
	a.title,
	a.status,
	a.publish_at,
	a.created_at
FROM links.articles a
WHERE a.status = 'published'
  AND a.deleted_at IS NULL
ORDER BY a.publish_at DESC NULLS LAST, a.article_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query published articles: %w", err)
	}
	defer rows.Close()

	items := make([]ArticleSummary, 0, limit)
	for rows.Next() {
		var row ArticleSummary
		if err := rows.Scan(
			&row.ArticleID,
			&row.ArticleUUID,
			&row.Slug,
			&row.Title,
			&row.Status,
			&row.PublishAt,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan published article: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate published articles: %w", err)
	}
	return items, nil
}

// CountPublished reports how many articles are currently published.
func (p *Pool) CountPublished(ctx context.Context) (int64, error) {
	const q = `
SELECT count(*)
FROM links.articles a
WHERE a.status = 'published'
  AND a.deleted_at IS NULL
`

	var total int64
	if err := p.QueryRow(ctx, q).Scan(&total); err != nil {
		return 0, fmt.Errorf("count published articles: %w", err)
	}
	return total, nil
}
