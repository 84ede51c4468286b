package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
	"github.com/nhannt-dev/crawler-tool/internal/slug"
)

// SiteStore persists sites and categories and answers slug existence
// checks. It implements crawler.SiteStore, crawler.CategoryStore, and
// slug.Checker.
type SiteStore struct {
	pool querier
}

// NewSiteStore creates a SiteStore on an existing pool.
func NewSiteStore(pool querier) (*SiteStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SiteStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *SiteStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateSite inserts a site row. A lost race against the slug unique
// index surfaces as slug.ErrTaken.
func (s *SiteStore) CreateSite(ctx context.Context, site crawler.Site) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO sites (id, slug, name, url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		site.ID, site.Slug, site.Name, site.URL, site.CreatedAt, site.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert site: %w", slug.ErrTaken)
		}
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

// GetSite fetches a site by ID.
func (s *SiteStore) GetSite(ctx context.Context, siteID string) (crawler.Site, error) {
	return s.scanSite(s.pool.QueryRow(ctx, `
SELECT id, slug, name, url, created_at, updated_at FROM sites WHERE id = $1`, siteID))
}

// GetSiteBySlug fetches a site by its current slug.
func (s *SiteStore) GetSiteBySlug(ctx context.Context, siteSlug string) (crawler.Site, error) {
	return s.scanSite(s.pool.QueryRow(ctx, `
SELECT id, slug, name, url, created_at, updated_at FROM sites WHERE slug = $1`, siteSlug))
}

func (s *SiteStore) scanSite(row pgx.Row) (crawler.Site, error) {
	var site crawler.Site
	err := row.Scan(&site.ID, &site.Slug, &site.Name, &site.URL, &site.CreatedAt, &site.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Site{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Site{}, fmt.Errorf("scan site: %w", err)
	}
	return site, nil
}

// UpdateSite replaces a site row, including its slug after a rename.
func (s *SiteStore) UpdateSite(ctx context.Context, site crawler.Site) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE sites SET slug = $2, name = $3, url = $4, updated_at = $5 WHERE id = $1`,
		site.ID, site.Slug, site.Name, site.URL, site.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update site: %w", slug.ErrTaken)
		}
		return fmt.Errorf("update site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// DeleteSite removes a site; categories cascade at the database level.
func (s *SiteStore) DeleteSite(ctx context.Context, siteID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, siteID)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// ListSites returns all sites ordered by creation.
func (s *SiteStore) ListSites(ctx context.Context) ([]crawler.Site, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, slug, name, url, created_at, updated_at FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []crawler.Site
	for rows.Next() {
		var site crawler.Site
		if err := rows.Scan(&site.ID, &site.Slug, &site.Name, &site.URL, &site.CreatedAt, &site.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// CreateCategory inserts a category row under its site.
func (s *SiteStore) CreateCategory(ctx context.Context, category crawler.Category) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO categories (id, site_id, slug, name, url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		category.ID, category.SiteID, category.Slug, category.Name, category.URL,
		category.CreatedAt, category.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert category: %w", slug.ErrTaken)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetCategory fetches a category by ID.
func (s *SiteStore) GetCategory(ctx context.Context, categoryID string) (crawler.Category, error) {
	var cat crawler.Category
	err := s.pool.QueryRow(ctx, `
SELECT id, site_id, slug, name, url, created_at, updated_at FROM categories WHERE id = $1`, categoryID).
		Scan(&cat.ID, &cat.SiteID, &cat.Slug, &cat.Name, &cat.URL, &cat.CreatedAt, &cat.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Category{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Category{}, fmt.Errorf("scan category: %w", err)
	}
	return cat, nil
}

// UpdateCategory replaces a category row.
func (s *SiteStore) UpdateCategory(ctx context.Context, category crawler.Category) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE categories SET slug = $2, name = $3, url = $4, updated_at = $5 WHERE id = $1`,
		category.ID, category.Slug, category.Name, category.URL, category.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update category: %w", slug.ErrTaken)
		}
		return fmt.Errorf("update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category.
func (s *SiteStore) DeleteCategory(ctx context.Context, categoryID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, categoryID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// ListCategories returns all categories under a site.
func (s *SiteStore) ListCategories(ctx context.Context, siteID string) ([]crawler.Category, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, site_id, slug, name, url, created_at, updated_at
FROM categories WHERE site_id = $1 ORDER BY id`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []crawler.Category
	for rows.Next() {
		var cat crawler.Category
		if err := rows.Scan(&cat.ID, &cat.SiteID, &cat.Slug, &cat.Name, &cat.URL, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		cats = append(cats, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return cats, nil
}

// ExistsInScope implements slug.Checker against committed rows. It is a
// pre-check only; the unique indexes remain the commit-time gate.
func (s *SiteStore) ExistsInScope(ctx context.Context, scope slug.Scope, candidate string, excludeID string) (bool, error) {
	var (
		exists bool
		err    error
	)
	switch scope.Kind {
	case "category":
		err = s.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM categories
	WHERE site_id = $1 AND slug = $2 AND ($3 = '' OR id <> $3)
)`, scope.ParentID, candidate, excludeID).Scan(&exists)
	default:
		err = s.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM sites
	WHERE slug = $1 AND ($2 = '' OR id <> $2)
)`, candidate, excludeID).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("slug existence check: %w", err)
	}
	return exists, nil
}
