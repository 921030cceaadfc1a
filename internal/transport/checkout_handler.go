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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutRequest carries the shipping address and the stored card to charge.
// A registered customer may name a saved address or card instead.
type CheckoutRequest struct {
	ShippingAddress *domain.ShippingAddress `json:"shipping_address,omitempty" validate:"required_without=AddressID,omitempty"`
	PaymentMethod   *domain.PaymentMethod   `json:"payment_method,omitempty" validate:"required_without=CardID,omitempty"`
	AddressID       string                  `json:"address_id,omitempty" validate:"omitempty,uuid"`
	CardID          string                  `json:"card_id,omitempty" validate:"omitempty,uuid"`
}

func (req CheckoutRequest) toService() service.CheckoutRequest {
	out := service.CheckoutRequest{}
	if req.ShippingAddress != nil {
		out.Address = *req.ShippingAddress
	}
	if req.PaymentMethod != nil {
		out.Method = *req.PaymentMethod
	}
	if id, err := uuid.Parse(req.AddressID); err == nil {
		out.AddressID = &id
	}
	if id, err := uuid.Parse(req.CardID); err == nil {
		out.CardID = &id
	}
	return out
}

// CheckoutResponse describes the committed order
type CheckoutResponse struct {
	OrderID       uuid.UUID                `json:"order_id"`
	ReferenceCode string                   `json:"reference_code"`
	Lines         []domain.DescriptionLine `json:"lines"`
	Description   string                   `json:"description"`
	Total         decimal.Decimal          `json:"total"`
	Message       string                   `json:"message"`
}

// CheckoutHandler commits the caller's cart
type CheckoutHandler struct {
	checkout service.CheckoutService
	customerResolver
}

func NewCheckoutHandler(checkout service.CheckoutService, customers service.CustomerService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:         checkout,
		customerResolver: customerResolver{customers: customers, logger: logger},
	}
}

func (h *CheckoutHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Post("/api/checkout", h.Checkout)
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	result, err := h.checkout.Checkout(r.Context(), customer, req.toService())
	if err != nil {
		h.respondError(w, customer, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, CheckoutResponse{
		OrderID:       result.OrderID,
		ReferenceCode: result.ReferenceCode,
		Lines:         result.Lines,
		Description:   result.Description,
		Total:         result.Total,
		Message:       result.Message,
	})
}

func (h *CheckoutHandler) respondError(w http.ResponseWriter, customer *domain.Customer, err error) {
	var throttled *service.ThrottleError
	switch {
	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", strconv.Itoa(max(throttled.WaitSeconds, 1)))
		middleware.RespondWithErrorDetails(w, http.StatusTooManyRequests, throttled.Error(),
			map[string]interface{}{"wait_seconds": throttled.WaitSeconds})
	case errors.Is(err, service.ErrPaymentDeclined):
		h.logger.Info("Payment declined", zap.String("customer_id", customer.ID.String()), zap.Error(err))
		middleware.RespondWithError(w, http.StatusPaymentRequired, "payment declined")
	case errors.Is(err, repository.ErrSavedCardNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "saved card not found")
	case errors.Is(err, repository.ErrSavedAddressNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "saved address not found")
	case errors.Is(err, service.ErrMissingDetails):
		middleware.RespondWithError(w, http.StatusBadRequest, "shipping address and payment method are required")
	case errors.Is(err, service.ErrEmptyCart):
		middleware.RespondWithError(w, http.StatusConflict, "cart is empty")
	case errors.Is(err, service.ErrCheckoutInProgress):
		middleware.RespondWithError(w, http.StatusConflict, "checkout is in progress for this cart")
	case errors.Is(err, service.ErrCommitAfterPayment):
		// already logged with the payment reference
		middleware.RespondWithError(w, http.StatusInternalServerError,
			"payment was taken but the order could not be recorded; support has been notified")
	default:
		respondInternal(w, h.logger, "failed to process order", err)
	}
}
