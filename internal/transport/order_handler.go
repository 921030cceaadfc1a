package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// OrderHandler serves the order history of registered customers
type OrderHandler struct {
	orders service.OrderService
	customerResolver
}

func NewOrderHandler(orders service.OrderService, customers service.CustomerService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:           orders,
		customerResolver: customerResolver{customers: customers, logger: logger},
	}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireRegistered(h.logger))
		r.Get("/api/orders", h.History)
	})
}

// History lists committed orders, newest first
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	orders, err := h.orders.History(r.Context(), customer)
	if err != nil {
		if errors.Is(err, service.ErrGuestHistory) {
			middleware.RespondWithError(w, http.StatusForbidden, "order history is only kept for registered customers")
			return
		}
		respondInternal(w, h.logger, "failed to load order history", err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}
