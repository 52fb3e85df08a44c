package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LinkRecord is a persisted internal link joined with both endpoints.
type LinkRecord struct {
	LinkUUID   string    `json:"link_uuid"`
	SourceUUID string    `json:"source_uuid"`
	TargetUUID string    `json:"target_uuid"`
	TargetSlug string    `json:"target_slug"`
	AnchorText string    `json:"anchor_text"`
	TextStart  int       `json:"text_start"`
	TextEnd    int       `json:"text_end"`
	HTMLStart  int       `json:"html_start"`
	HTMLEnd    int       `json:"html_end"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListLinksBySource lists links originating from one article.
func (p *Pool) ListLinksBySource(ctx context.Context, sourceUUID string) ([]LinkRecord, error) {
	const q = `
SELECT
	l.link_uuid::text,
	s.article_uuid::text,
	t.article_uuid::text,
	t.slug,
	l.anchor_text,
	l.text_start,
	l.text_end,
	l.html_start,
	l.html_end,
	l.created_at
FROM links.internal_links l
JOIN links.articles s ON s.article_id = l.source_id
JOIN links.articles t ON t.article_id = l.target_id
WHERE s.article_uuid = $1::uuid
ORDER BY l.text_start, l.link_id
`

	return p.scanLinkRecords(ctx, q, strings.TrimSpace(sourceUUID))
}

// ListLinksByTarget lists links pointing at one article.
func (p *Pool) ListLinksByTarget(ctx context.Context, targetUUID string) ([]LinkRecord, error) {
	const q = `
SELECT
	l.link_uuid::text,
	s.article_uuid::text,
	t.article_uuid::text,
	t.slug,
	l.anchor_text,
	l.text_start,
	l.text_end,
	l.html_start,
	l.html_end,
	l.created_at
FROM links.internal_links l
JOIN links.articles s ON s.article_id = l.source_id
JOIN links.articles t ON t.article_id = l.target_id
WHERE t.article_uuid = $1::uuid
ORDER BY l.created_at DESC, l.link_id DESC
`

	return p.scanLinkRecords(ctx, q, strings.TrimSpace(targetUUID))
}

func (p *Pool) scanLinkRecords(ctx context.Context, query string, args ...any) ([]LinkRecord, error) {
	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	items := make([]LinkRecord, 0, 8)
	for rows.Next() {
		var row LinkRecord
		if err := rows.Scan(
			&row.LinkUUID,
			&row.SourceUUID,
			&row.TargetUUID,
			&row.TargetSlug,
			&row.AnchorText,
			&row.TextStart,
			&row.TextEnd,
			&row.HTMLStart,
			&row.HTMLEnd,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return items, nil
}

// TargetInbound is one row of the fairness stats report.
type TargetInbound struct {
	TargetUUID   string  `json:"target_uuid"`
	TargetSlug   string  `json:"target_slug"`
	InboundLinks int64   `json:"inbound_links"`
	Reserved     int64   `json:"reserved"`
	Share        float64 `json:"share"`
}

// LinkStats summarizes the link graph and fairness headroom.
type LinkStats struct {
	TotalPublished    int64           `json:"total_published"`
	TotalLinks        int64           `json:"total_links"`
	OpenReservations  int64           `json:"open_reservations"`
	TopInboundTargets []TargetInbound `json:"top_inbound_targets"`
}

// QueryLinkStats aggregates link counts and per-target inbound shares.
func (p *Pool) QueryLinkStats(ctx context.Context, topN int) (*LinkStats, error) {
	if topN <= 0 {
		topN = 20
	}

	stats := &LinkStats{}

	const totalsQ = `
SELECT
	(SELECT count(*) FROM links.articles WHERE status = 'published' AND deleted_at IS NULL),
	(SELECT count(*) FROM links.internal_links),
	(SELECT count(*) FROM links.link_reservations)
`
	if err := p.QueryRow(ctx, totalsQ).Scan(
		&stats.TotalPublished,
		&stats.TotalLinks,
		&stats.OpenReservations,
	); err != nil {
		return nil, fmt.Errorf("query link totals: %w", err)
	}

	const topQ = `
SELECT
	t.article_uuid::text,
	t.slug,
	count(l.link_id) AS inbound,
	(SELECT count(*) FROM links.link_reservations r WHERE r.target_id = t.article_id) AS reserved
FROM links.internal_links l
JOIN links.articles t ON t.article_id = l.target_id
GROUP BY t.article_id, t.article_uuid, t.slug
ORDER BY inbound DESC, t.article_id
LIMIT $1
`

	rows, err := p.Query(ctx, topQ, topN)
	if err != nil {
		return nil, fmt.Errorf("query inbound targets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row TargetInbound
		if err := rows.Scan(&row.TargetUUID, &row.TargetSlug, &row.InboundLinks, &row.Reserved); err != nil {
			return nil, fmt.Errorf("scan inbound target: %w", err)
		}
		if stats.TotalPublished > 0 {
			row.Share = float64(row.InboundLinks+row.Reserved) / float64(stats.TotalPublished)
		}
		stats.TopInboundTargets = append(stats.TopInboundTargets, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbound targets: %w", err)
	}

	return stats, nil
}
