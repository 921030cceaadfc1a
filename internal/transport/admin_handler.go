package transport

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CategoryReportResponse is the earnings summary of one category
type CategoryReportResponse struct {
	Category domain.ItemCategory `json:"category"`
	OpenFor  domain.OpenFor      `json:"open_for"`
	Items    []domain.Item       `json:"items"`
}

func newCategoryReportResponse(report service.CategoryReport) CategoryReportResponse {
	items := report.Items
	if items == nil {
		items = []domain.Item{}
	}
	return CategoryReportResponse{Category: report.Category, OpenFor: report.OpenFor, Items: items}
}

const defaultStuckCheckoutAge = 15 * time.Minute

// UpdateFulfillmentRequest sets the named fulfillment flags of an order.
// Absent flags keep their value.
type UpdateFulfillmentRequest struct {
	Delivered       *bool `json:"delivered,omitempty"`
	Received        *bool `json:"received,omitempty"`
	RefundRequested *bool `json:"refund_requested,omitempty"`
	RefundGranted   *bool `json:"refund_granted,omitempty"`
	Cancelled       *bool `json:"cancelled,omitempty"`
}

// SetActiveRequest opens or closes an item or category for sale
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// AdminHandler serves the staff-only routes
type AdminHandler struct {
	reports service.ReportService
	orders  service.OrderService
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewAdminHandler(
	reports service.ReportService,
	orders service.OrderService,
	catalog service.CatalogService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{reports: reports, orders: orders, catalog: catalog, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin(h.logger))

		r.Get("/stats/categories", h.Categories)
		r.Post("/stats/categories/{categoryID}/refresh", h.Refresh)

		r.Get("/orders/pending", h.PendingCheckouts)
		r.Patch("/orders/{orderID}", h.UpdateFulfillment)
		r.Post("/orders/{orderID}/release-checkout", h.ReleaseCheckout)

		r.Patch("/items/{itemID}", h.SetItemActive)
		r.Patch("/categories/{categoryID}", h.SetCategoryActive)
	})
}

func (h *AdminHandler) Categories(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.Categories(r.Context())
	if err != nil {
		respondInternal(w, h.logger, "failed to build report", err)
		return
	}

	resp := make([]CategoryReportResponse, 0, len(reports))
	for _, report := range reports {
		resp = append(resp, newCategoryReportResponse(report))
	}
	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

// Refresh recomputes a category's stats from its committed sales
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := uuidParam(w, r, "categoryID", "invalid category id")
	if !ok {
		return
	}

	report, err := h.reports.Refresh(r.Context(), categoryID)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "category not found")
			return
		}
		respondInternal(w, h.logger, "failed to refresh stats", err)
		return
	}

	h.logger.Info("Category stats refreshed", zap.String("category_id", categoryID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, newCategoryReportResponse(*report))
}

// PendingCheckouts lists carts frozen for longer than older_than_minutes,
// 15 by default.
func (h *AdminHandler) PendingCheckouts(w http.ResponseWriter, r *http.Request) {
	olderThan := defaultStuckCheckoutAge
	if raw := r.URL.Query().Get("older_than_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid older_than_minutes")
			return
		}
		olderThan = time.Duration(minutes) * time.Minute
	}

	orders, err := h.orders.PendingCheckouts(r.Context(), olderThan)
	if err != nil {
		respondInternal(w, h.logger, "failed to list pending checkouts", err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *AdminHandler) UpdateFulfillment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "orderID", "invalid order id")
	if !ok {
		return
	}
	var req UpdateFulfillmentRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	order, err := h.orders.UpdateFulfillment(r.Context(), orderID, domain.FulfillmentUpdate{
		Delivered:       req.Delivered,
		Received:        req.Received,
		RefundRequested: req.RefundRequested,
		RefundGranted:   req.RefundGranted,
		Cancelled:       req.Cancelled,
	})
	switch {
	case err == nil:
		h.logger.Info("Order fulfillment updated", zap.String("order_id", orderID.String()))
		middleware.RespondWithJSON(w, http.StatusOK, order)
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrOrderNotCommitted):
		middleware.RespondWithError(w, http.StatusConflict, "order is not committed")
	case errors.Is(err, domain.ErrEmptyFulfillment):
		middleware.RespondWithError(w, http.StatusBadRequest, "no fulfillment flag to change")
	default:
		respondInternal(w, h.logger, "failed to update order", err)
	}
}

// ReleaseCheckout thaws a cart whose checkout never finished. Staff confirm
// with the payment provider that nothing was charged first.
func (h *AdminHandler) ReleaseCheckout(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "orderID", "invalid order id")
	if !ok {
		return
	}

	order, err := h.orders.ReleaseCheckout(r.Context(), orderID)
	switch {
	case err == nil:
		h.logger.Warn("Pending checkout released", zap.String("order_id", orderID.String()))
		middleware.RespondWithJSON(w, http.StatusOK, order)
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, repository.ErrOrderAlreadyClosed),
		errors.Is(err, service.ErrCheckoutNotPending):
		middleware.RespondWithError(w, http.StatusConflict, "order has no checkout in progress")
	default:
		respondInternal(w, h.logger, "failed to release checkout", err)
	}
}

func (h *AdminHandler) SetItemActive(w http.ResponseWriter, r *http.Request) {
	itemID, ok := uuidParam(w, r, "itemID", "invalid item id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	item, err := h.catalog.SetItemActive(r.Context(), itemID, *req.Active)
	switch {
	case err == nil:
		h.logger.Info("Item activation changed", zap.String("item_id", itemID.String()), zap.Bool("active", item.Active))
		middleware.RespondWithJSON(w, http.StatusOK, item)
	case errors.Is(err, repository.ErrItemNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "item not found")
	default:
		respondInternal(w, h.logger, "failed to update item", err)
	}
}

func (h *AdminHandler) SetCategoryActive(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := uuidParam(w, r, "categoryID", "invalid category id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	category, err := h.catalog.SetCategoryActive(r.Context(), categoryID, *req.Active)
	switch {
	case err == nil:
		h.logger.Info("Category activation changed",
			zap.String("category_id", categoryID.String()),
			zap.Bool("active", category.Active),
		)
		middleware.RespondWithJSON(w, http.StatusOK, category)
	case errors.Is(err, repository.ErrCategoryNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "category not found")
	default:
		respondInternal(w, h.logger, "failed to update category", err)
	}
}
