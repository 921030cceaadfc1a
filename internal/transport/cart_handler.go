package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AddToCartRequest puts an item that is not yet in the cart into it
type AddToCartRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"gte=1,lte=1000"`
}

// UpdateCartRequest sets the quantity of an item already in the cart
type UpdateCartRequest struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=1000"`
}

// CartLine is one in-cart reservation
type CartLine struct {
	ReservationID uuid.UUID       `json:"reservation_id"`
	ItemID        uuid.UUID       `json:"item_id"`
	ItemName      string          `json:"item_name"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// CartResponse is the current cart of the caller
type CartResponse struct {
	OrderID         *uuid.UUID      `json:"order_id,omitempty"`
	Lines           []CartLine      `json:"lines"`
	Description     string          `json:"description"`
	Total           decimal.Decimal `json:"total"`
	CheckoutPending bool            `json:"checkout_pending"`
}

// CartActionResponse reports the outcome of a cart mutation. Outcome is
// absent when the action was refused outright.
type CartActionResponse struct {
	Action   service.CartAction `json:"action"`
	ItemID   uuid.UUID          `json:"item_id"`
	Outcome  *string            `json:"outcome,omitempty"`
	Quantity int                `json:"quantity"`
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
}

func newCartResponse(cart *service.Cart) CartResponse {
	resp := CartResponse{
		Lines:           make([]CartLine, 0, len(cart.Reservations)),
		Description:     cart.Description,
		Total:           cart.Total,
		CheckoutPending: cart.CheckoutPending,
	}
	if cart.OrderID != uuid.Nil {
		id := cart.OrderID
		resp.OrderID = &id
	}
	for _, res := range cart.Reservations {
		line := CartLine{
			ReservationID: res.ID,
			ItemID:        res.ItemID,
			Quantity:      res.Quantity,
			LineTotal:     res.PriceTotal(),
		}
		if res.Item != nil {
			line.ItemName = res.Item.Name
			line.Price = res.Item.Price
		}
		resp.Lines = append(resp.Lines, line)
	}
	return resp
}

func newCartActionResponse(result *service.CartResult) CartActionResponse {
	resp := CartActionResponse{
		Action:   result.Action,
		ItemID:   result.ItemID,
		Quantity: result.Quantity,
		Success:  result.Success,
		Message:  result.Message,
	}
	if result.Outcome != nil {
		outcome := result.Outcome.String()
		resp.Outcome = &outcome
	}
	return resp
}

// CartHandler exposes the cart of the calling customer
type CartHandler struct {
	cart service.CartService
	customerResolver
}

func NewCartHandler(cart service.CartService, customers service.CustomerService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cart:             cart,
		customerResolver: customerResolver{customers: customers, logger: logger},
	}
}

func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.Get)
		r.Post("/items", h.Add)
		r.Put("/items/{itemID}", h.Update)
		r.Delete("/items/{itemID}", h.Remove)
	})
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	cart, err := h.cart.Summary(r.Context(), customer)
	if err != nil {
		respondInternal(w, h.logger, "failed to load cart", err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, newCartResponse(cart))
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	result, err := h.cart.Add(r.Context(), customer, itemID, req.Quantity)
	h.respond(w, customer, result, err)
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateCartRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	result, err := h.cart.Update(r.Context(), customer, itemID, req.Quantity)
	h.respond(w, customer, result, err)
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemIDParam(w, r)
	if !ok {
		return
	}

	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	result, err := h.cart.Remove(r.Context(), customer, itemID)
	h.respond(w, customer, result, err)
}

func (h *CartHandler) itemIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid item id")
		return uuid.Nil, false
	}
	return id, true
}

// respond maps a cart mutation to HTTP. Refusals and partial fills are
// normal answers with success=false, not errors.
func (h *CartHandler) respond(w http.ResponseWriter, customer *domain.Customer, result *service.CartResult, err error) {
	switch {
	case err == nil:
		h.logger.Debug("Cart updated",
			zap.String("customer_id", customer.ID.String()),
			zap.String("action", string(result.Action)),
			zap.String("item_id", result.ItemID.String()),
			zap.Bool("success", result.Success),
		)
		middleware.RespondWithJSON(w, http.StatusOK, newCartActionResponse(result))
	case errors.Is(err, repository.ErrItemNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, service.ErrQuantityBelowOne):
		middleware.RespondWithError(w, http.StatusBadRequest, "quantity must be at least 1")
	case errors.Is(err, service.ErrItemInactive):
		middleware.RespondWithError(w, http.StatusNotFound, "item is not for sale")
	case errors.Is(err, service.ErrCheckoutInProgress):
		middleware.RespondWithError(w, http.StatusConflict, "checkout is in progress for this cart")
	default:
		respondInternal(w, h.logger, "failed to update cart", err)
	}
}
