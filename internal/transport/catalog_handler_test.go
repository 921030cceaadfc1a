package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func catalogRoutes(catalog service.CatalogService) func(chi.Router) {
	handler := NewCatalogHandler(catalog, zap.NewNop())
	return handler.RegisterRoutes
}

func TestCatalogHandler_ListItemsPassesFacetsAndPage(t *testing.T) {
	red, large := uuid.New(), uuid.New()
	category := &domain.ItemCategory{ID: uuid.New(), Name: "Mugs", Slug: "mugs", Active: true, StartedAt: time.Now()}

	var gotSlug string
	var gotChosen []uuid.UUID
	var gotPage int
	catalog := &stubCatalogService{
		items: func(slug string, chosen []uuid.UUID, page int) (*service.ItemPage, error) {
			gotSlug, gotChosen, gotPage = slug, chosen, page
			return &service.ItemPage{
				Category:  category,
				Chosen:    chosen,
				Items:     []domain.Item{{ID: uuid.New(), Name: "Red Mug"}},
				Page:      page,
				PageCount: 2,
				Total:     11,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet,
		"/api/categories/mugs/items?filter_option="+red.String()+"&filter_option="+large.String()+"&page=2", nil)
	w := serve(catalogRoutes(catalog), req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mugs", gotSlug)
	assert.Equal(t, []uuid.UUID{red, large}, gotChosen)
	assert.Equal(t, 2, gotPage)

	var resp ItemPageResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Mugs", resp.Category.Name)
	assert.Equal(t, 11, resp.Total)
	assert.Equal(t, 2, resp.PageCount)
	require.Len(t, resp.Items, 1)
}

func TestCatalogHandler_BadQuery(t *testing.T) {
	catalog := &stubCatalogService{}

	for _, target := range []string{
		"/api/categories/mugs/items?filter_option=red",
		"/api/categories/mugs/items?page=two",
		"/api/items/search",
	} {
		w := serve(catalogRoutes(catalog), httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestCatalogHandler_UnknownCategory(t *testing.T) {
	catalog := &stubCatalogService{
		items: func(string, []uuid.UUID, int) (*service.ItemPage, error) {
			return nil, repository.ErrCategoryNotFound
		},
	}

	w := serve(catalogRoutes(catalog), httptest.NewRequest(http.MethodGet, "/api/categories/closed/items", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(catalogRoutes(catalog), httptest.NewRequest(http.MethodGet, "/api/categories/closed/filters", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogHandler_Search(t *testing.T) {
	var gotQuery string
	catalog := &stubCatalogService{
		search: func(q string) ([]domain.Item, error) {
			gotQuery = q
			return []domain.Item{{ID: uuid.New(), Name: "Blue Mug"}}, nil
		},
	}

	w := serve(catalogRoutes(catalog), httptest.NewRequest(http.MethodGet, "/api/items/search?q=mug", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mug", gotQuery)

	var items []domain.Item
	require.NoError(t, json.NewDecoder(w.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "Blue Mug", items[0].Name)
}

func TestGuestHandler_IssuesUsableToken(t *testing.T) {
	store := newIdentityStore()
	userService := store.userService()
	guests := NewGuestHandler(store.customerService(), userService, zap.NewNop())

	w := serve(guests.RegisterRoutes, httptest.NewRequest(http.MethodPost, "/api/guests", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	var first GuestResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&first))

	w = serve(guests.RegisterRoutes, httptest.NewRequest(http.MethodPost, "/api/guests", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	var second GuestResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&second))
	assert.Equal(t, first.GuestNumber+1, second.GuestNumber)

	claims, err := userService.ValidateToken(first.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, claims.GuestNumber)
	assert.Equal(t, first.GuestNumber, *claims.GuestNumber)
	assert.Equal(t, domain.RoleGuest, claims.Role)
}

func TestOrderHandler_History(t *testing.T) {
	store := newIdentityStore()
	_, guestToken := store.seedGuest(t)
	_, userToken := store.seedUser(t, domain.RoleUser)

	orders := &stubOrderService{orders: []domain.Order{{ID: uuid.New(), Committed: true, ReferenceCode: "abcdefghij0123456789"}}}
	handler := NewOrderHandler(orders, store.customerService(), zap.NewNop())
	route := func(r chi.Router) { handler.RegisterRoutes(r, authMiddleware()) }

	w := serve(route, withBearer(httptest.NewRequest(http.MethodGet, "/api/orders", nil), guestToken))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(route, withBearer(httptest.NewRequest(http.MethodGet, "/api/orders", nil), userToken))
	require.Equal(t, http.StatusOK, w.Code)
	var got []domain.Order
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "abcdefghij0123456789", got[0].ReferenceCode)
}

func TestAdminHandler_RequiresAdmin(t *testing.T) {
	store := newIdentityStore()
	_, userToken := store.seedUser(t, domain.RoleUser)
	_, adminToken := store.seedUser(t, domain.RoleAdmin)

	category := domain.ItemCategory{ID: uuid.New(), Name: "Mugs", StartedAt: time.Now().AddDate(0, 0, -14)}
	reports := &stubReportService{
		reports: []service.CategoryReport{{Category: category, OpenFor: domain.OpenFor{Days: 14, Weeks: 2}}},
		refresh: func(id uuid.UUID) (*service.CategoryReport, error) {
			if id != category.ID {
				return nil, repository.ErrCategoryNotFound
			}
			return &service.CategoryReport{Category: category}, nil
		},
	}
	handler := NewAdminHandler(reports, &stubOrderService{}, &stubCatalogService{}, zap.NewNop())
	route := func(r chi.Router) { handler.RegisterRoutes(r, authMiddleware()) }

	w := serve(route, withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/stats/categories", nil), userToken))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(route, withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/stats/categories", nil), adminToken))
	require.Equal(t, http.StatusOK, w.Code)
	var got []CategoryReportResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].OpenFor.Weeks)
	assert.NotNil(t, got[0].Items)

	w = serve(route, withBearer(httptest.NewRequest(http.MethodPost,
		"/api/admin/stats/categories/"+category.ID.String()+"/refresh", nil), adminToken))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(route, withBearer(httptest.NewRequest(http.MethodPost,
		"/api/admin/stats/categories/"+uuid.NewString()+"/refresh", nil), adminToken))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
