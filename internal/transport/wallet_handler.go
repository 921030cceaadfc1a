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
	"go.uber.org/zap"
)

// UpdateCardRequest replaces the billing identity of a saved card. The
// provider source cannot be changed; save a new card instead.
type UpdateCardRequest struct {
	Line1     string `json:"line1" validate:"required,max=30"`
	Line2     string `json:"line2,omitempty" validate:"max=30"`
	City      string `json:"city" validate:"required,max=30"`
	State     string `json:"state" validate:"required,max=30"`
	Zipcode   string `json:"zipcode" validate:"required,max=20"`
	Country   string `json:"country" validate:"required,len=2"`
	FirstName string `json:"first_name" validate:"required,max=30"`
	LastName  string `json:"last_name" validate:"required,max=30"`
	Email     string `json:"email" validate:"required,email"`
}

func (req UpdateCardRequest) billing() domain.PaymentMethod {
	return domain.PaymentMethod{
		Line1:     req.Line1,
		Line2:     req.Line2,
		City:      req.City,
		State:     req.State,
		Zipcode:   req.Zipcode,
		Country:   req.Country,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}
}

// WalletHandler serves the saved cards and addresses of registered customers
type WalletHandler struct {
	wallet service.WalletService
	customerResolver
}

func NewWalletHandler(wallet service.WalletService, customers service.CustomerService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		wallet:           wallet,
		customerResolver: customerResolver{customers: customers, logger: logger},
	}
}

func (h *WalletHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/wallet", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireRegistered(h.logger))

		r.Get("/cards", h.ListCards)
		r.Post("/cards", h.AddCard)
		r.Put("/cards/{cardID}", h.UpdateCard)
		r.Delete("/cards/{cardID}", h.DeleteCard)

		r.Get("/addresses", h.ListAddresses)
		r.Post("/addresses", h.AddAddress)
		r.Put("/addresses/{addressID}", h.UpdateAddress)
		r.Delete("/addresses/{addressID}", h.DeleteAddress)
	})
}

func (h *WalletHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}
	cards, err := h.wallet.Cards(r.Context(), customer)
	if err != nil {
		h.respondError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cards)
}

func (h *WalletHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentMethod
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	card, err := h.wallet.AddCard(r.Context(), customer, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("Card saved",
		zap.String("customer_id", customer.ID.String()),
		zap.String("card_id", card.ID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, card)
}

func (h *WalletHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := uuidParam(w, r, "cardID", "invalid card id")
	if !ok {
		return
	}
	var req UpdateCardRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	card, err := h.wallet.UpdateCard(r.Context(), customer, cardID, req.billing())
	if err != nil {
		h.respondError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, card)
}

func (h *WalletHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := uuidParam(w, r, "cardID", "invalid card id")
	if !ok {
		return
	}
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	if err := h.wallet.DeleteCard(r.Context(), customer, cardID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WalletHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}
	addresses, err := h.wallet.Addresses(r.Context(), customer)
	if err != nil {
		h.respondError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, addresses)
}

func (h *WalletHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.ShippingAddress
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	address, err := h.wallet.AddAddress(r.Context(), customer, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, address)
}

func (h *WalletHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	addressID, ok := uuidParam(w, r, "addressID", "invalid address id")
	if !ok {
		return
	}
	var req domain.ShippingAddress
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	address, err := h.wallet.UpdateAddress(r.Context(), customer, addressID, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, address)
}

func (h *WalletHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	addressID, ok := uuidParam(w, r, "addressID", "invalid address id")
	if !ok {
		return
	}
	customer := h.resolve(w, r)
	if customer == nil {
		return
	}

	if err := h.wallet.DeleteAddress(r.Context(), customer, addressID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WalletHandler) respondError(w http.ResponseWriter, err error) {
	var throttled *service.ThrottleError
	switch {
	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", strconv.Itoa(max(throttled.WaitSeconds, 1)))
		middleware.RespondWithErrorDetails(w, http.StatusTooManyRequests, throttled.Error(),
			map[string]interface{}{"wait_seconds": throttled.WaitSeconds})
	case errors.Is(err, service.ErrGuestWallet):
		middleware.RespondWithError(w, http.StatusForbidden, "saved billing details are only kept for registered customers")
	case errors.Is(err, repository.ErrSavedCardAlreadyExists):
		middleware.RespondWithError(w, http.StatusConflict, "card is already saved")
	case errors.Is(err, repository.ErrSavedCardNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "saved card not found")
	case errors.Is(err, repository.ErrSavedAddressNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "saved address not found")
	default:
		respondInternal(w, h.logger, "failed to update saved billing details", err)
	}
}
