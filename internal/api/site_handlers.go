package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nhannt-dev/crawler-tool/internal/crawler"
	"github.com/nhannt-dev/crawler-tool/internal/slug"
)

// Request validation failures. These map to 400 rather than going
// through the domain-error table.
var (
	errNameRequired = errors.New("name is required")
	errURLRequired  = errors.New("url is required")
	errURLInvalid   = errors.New("url must be absolute http or https")
)

type siteRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type renameRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateName(req.Name); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateURL(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	siteID, err := s.newID()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resolved, err := s.resolveSlug(r, req.Name, slug.Global("site"), "")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	now := s.clock.Now()
	site := crawler.Site{
		ID:        siteID,
		Slug:      resolved,
		Name:      req.Name,
		URL:       req.URL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sites.CreateSite(r.Context(), site); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("site created",
		zap.String("site_id", site.ID),
		zap.String("slug", site.Slug),
	)
	s.writeJSON(w, http.StatusCreated, site)
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.sites.ListSites(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.sites.GetSite(r.Context(), chi.URLParam(r, "site_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, site)
}

// renameSite rebuilds the slug from the new name. The old slug is not
// kept as an alias; clients must follow the value in the response.
func (s *Server) renameSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "site_id")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	site, err := s.sites.GetSite(r.Context(), siteID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Name != "" {
		resolved, err := s.resolveSlug(r, req.Name, slug.Global("site"), siteID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		site.Name = req.Name
		site.Slug = resolved
	}
	if req.URL != "" {
		if err := validateURL(req.URL); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		site.URL = req.URL
	}
	site.UpdatedAt = s.clock.Now()
	if err := s.sites.UpdateSite(r.Context(), site); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, site)
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "site_id")
	if err := s.sites.DeleteSite(r.Context(), siteID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"site_id": siteID, "status": "deleted"})
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "site_id")
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateName(req.Name); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateURL(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.sites.GetSite(r.Context(), siteID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	categoryID, err := s.newID()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resolved, err := s.resolveSlug(r, req.Name, slug.Within("category", siteID), "")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	now := s.clock.Now()
	category := crawler.Category{
		ID:        categoryID,
		SiteID:    siteID,
		Slug:      resolved,
		Name:      req.Name,
		URL:       req.URL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.categories.CreateCategory(r.Context(), category); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("category created",
		zap.String("category_id", category.ID),
		zap.String("site_id", siteID),
		zap.String("slug", category.Slug),
	)
	s.writeJSON(w, http.StatusCreated, category)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "site_id")
	if _, err := s.sites.GetSite(r.Context(), siteID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	categories, err := s.categories.ListCategories(r.Context(), siteID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.categories.GetCategory(r.Context(), chi.URLParam(r, "category_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, category)
}

func (s *Server) renameCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "category_id")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	category, err := s.categories.GetCategory(r.Context(), categoryID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Name != "" {
		resolved, err := s.resolveSlug(r, req.Name, slug.Within("category", category.SiteID), categoryID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		category.Name = req.Name
		category.Slug = resolved
	}
	if req.URL != "" {
		if err := validateURL(req.URL); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		category.URL = req.URL
	}
	category.UpdatedAt = s.clock.Now()
	if err := s.categories.UpdateCategory(r.Context(), category); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, category)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "category_id")
	if err := s.categories.DeleteCategory(r.Context(), categoryID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"category_id": categoryID, "status": "deleted"})
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errNameRequired
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errURLRequired
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errURLInvalid
	}
	return nil
}
