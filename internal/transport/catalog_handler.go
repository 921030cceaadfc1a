package transport

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ItemPageResponse is one page of a category listing
type ItemPageResponse struct {
	Category  domain.ItemCategory     `json:"category"`
	OpenFor   domain.OpenFor          `json:"open_for"`
	Filters   []domain.FilterCategory `json:"filters"`
	Chosen    []uuid.UUID             `json:"chosen"`
	Items     []domain.Item           `json:"items"`
	Page      int                     `json:"page"`
	PageCount int                     `json:"page_count"`
	Total     int                     `json:"total"`
}

// CatalogHandler serves categories, facets and item listings
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewCatalogHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/categories", h.ListCategories)
	r.Get("/api/categories/{slug}/filters", h.ListFilters)
	r.Get("/api/categories/{slug}/items", h.ListItems)
	r.Get("/api/items/search", h.Search)
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		respondInternal(w, h.logger, "failed to list categories", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, categories)
}

func (h *CatalogHandler) ListFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := h.catalog.Filters(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "category not found")
			return
		}
		respondInternal(w, h.logger, "failed to list filters", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, filters)
}

// ListItems narrows a category's items by the repeated filter_option query
// parameter and paginates with page.
func (h *CatalogHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	chosen := make([]uuid.UUID, 0, len(query["filter_option"]))
	for _, raw := range query["filter_option"] {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.RespondWithErrorDetails(w, http.StatusBadRequest, "invalid filter option",
				map[string]interface{}{"filter_option": raw})
			return
		}
		chosen = append(chosen, id)
	}

	page := 1
	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = n
	}

	result, err := h.catalog.Items(r.Context(), chi.URLParam(r, "slug"), chosen, page)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "category not found")
			return
		}
		respondInternal(w, h.logger, "failed to list items", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ItemPageResponse{
		Category:  *result.Category,
		OpenFor:   result.OpenFor,
		Filters:   result.Filters,
		Chosen:    result.Chosen,
		Items:     result.Items,
		Page:      result.Page,
		PageCount: result.PageCount,
		Total:     result.Total,
	})
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "missing search query")
		return
	}

	items, err := h.catalog.Search(r.Context(), q)
	if err != nil {
		respondInternal(w, h.logger, "failed to search items", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, items)
}
