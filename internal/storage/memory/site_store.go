package memory

import (
	"context"
	"sync"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
	"github.com/nhannt-dev/crawler-tool/internal/slug"
)

// SiteStore keeps sites and categories in memory for development/testing.
// It enforces the same slug uniqueness the Postgres indexes do and
// implements slug.Checker.
type SiteStore struct {
	mu         sync.RWMutex
	sites      map[string]crawler.Site
	categories map[string]crawler.Category
}

// NewSiteStore constructs a SiteStore.
func NewSiteStore() *SiteStore {
	return &SiteStore{
		sites:      make(map[string]crawler.Site),
		categories: make(map[string]crawler.Category),
	}
}

// CreateSite stores a new site, rejecting slug duplicates the way the
// database unique index would.
func (s *SiteStore) CreateSite(_ context.Context, site crawler.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.siteSlugTakenLocked(site.Slug, "") {
		return slug.ErrTaken
	}
	s.sites[site.ID] = site
	return nil
}

// GetSite fetches a site by ID.
func (s *SiteStore) GetSite(_ context.Context, siteID string) (crawler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return crawler.Site{}, crawler.ErrNotFound
	}
	return site, nil
}

// GetSiteBySlug fetches a site by its current slug.
func (s *SiteStore) GetSiteBySlug(_ context.Context, siteSlug string) (crawler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.sites {
		if site.Slug == siteSlug {
			return site, nil
		}
	}
	return crawler.Site{}, crawler.ErrNotFound
}

// UpdateSite replaces a site row.
func (s *SiteStore) UpdateSite(_ context.Context, site crawler.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[site.ID]; !ok {
		return crawler.ErrNotFound
	}
	if s.siteSlugTakenLocked(site.Slug, site.ID) {
		return slug.ErrTaken
	}
	s.sites[site.ID] = site
	return nil
}

// DeleteSite removes a site and its categories.
func (s *SiteStore) DeleteSite(_ context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[siteID]; !ok {
		return crawler.ErrNotFound
	}
	delete(s.sites, siteID)
	for id, cat := range s.categories {
		if cat.SiteID == siteID {
			delete(s.categories, id)
		}
	}
	return nil
}

// ListSites returns all sites.
func (s *SiteStore) ListSites(_ context.Context) ([]crawler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	return out, nil
}

// CreateCategory stores a new category under its site.
func (s *SiteStore) CreateCategory(_ context.Context, category crawler.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[category.SiteID]; !ok {
		return crawler.ErrNotFound
	}
	if s.categorySlugTakenLocked(category.SiteID, category.Slug, "") {
		return slug.ErrTaken
	}
	s.categories[category.ID] = category
	return nil
}

// GetCategory fetches a category by ID.
func (s *SiteStore) GetCategory(_ context.Context, categoryID string) (crawler.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat, ok := s.categories[categoryID]
	if !ok {
		return crawler.Category{}, crawler.ErrNotFound
	}
	return cat, nil
}

// UpdateCategory replaces a category row.
func (s *SiteStore) UpdateCategory(_ context.Context, category crawler.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[category.ID]; !ok {
		return crawler.ErrNotFound
	}
	if s.categorySlugTakenLocked(category.SiteID, category.Slug, category.ID) {
		return slug.ErrTaken
	}
	s.categories[category.ID] = category
	return nil
}

// DeleteCategory removes a category.
func (s *SiteStore) DeleteCategory(_ context.Context, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[categoryID]; !ok {
		return crawler.ErrNotFound
	}
	delete(s.categories, categoryID)
	return nil
}

// ListCategories returns all categories under a site.
func (s *SiteStore) ListCategories(_ context.Context, siteID string) ([]crawler.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Category, 0)
	for _, cat := range s.categories {
		if cat.SiteID == siteID {
			out = append(out, cat)
		}
	}
	return out, nil
}

// ExistsInScope implements slug.Checker against the in-memory state.
func (s *SiteStore) ExistsInScope(_ context.Context, scope slug.Scope, candidate string, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch scope.Kind {
	case "category":
		return s.categorySlugTakenLocked(scope.ParentID, candidate, excludeID), nil
	default:
		return s.siteSlugTakenLocked(candidate, excludeID), nil
	}
}

func (s *SiteStore) siteSlugTakenLocked(candidate, excludeID string) bool {
	for _, site := range s.sites {
		if site.Slug == candidate && site.ID != excludeID {
			return true
		}
	}
	return false
}

func (s *SiteStore) categorySlugTakenLocked(siteID, candidate, excludeID string) bool {
	for _, cat := range s.categories {
		if cat.SiteID == siteID && cat.Slug == candidate && cat.ID != excludeID {
			return true
		}
	}
	return false
}
