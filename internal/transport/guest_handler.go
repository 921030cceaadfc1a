package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GuestResponse carries a new guest's access token
type GuestResponse struct {
	AccessToken string `json:"access_token"`
	GuestNumber int64  `json:"guest_number"`
}

// GuestHandler lets anonymous shoppers obtain a cart identity
type GuestHandler struct {
	customers   service.CustomerService
	userService service.UserService
	logger      *zap.Logger
}

func NewGuestHandler(customers service.CustomerService, userService service.UserService, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{customers: customers, userService: userService, logger: logger}
}

func (h *GuestHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/guests", h.Create)
}

// Create allocates the next guest number and signs a guest token for it
func (h *GuestHandler) Create(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customers.NewGuest(r.Context())
	if err != nil {
		h.logger.Error("Failed to create guest", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create guest")
		return
	}

	token, err := h.userService.IssueGuestToken(customer)
	if err != nil {
		h.logger.Error("Failed to sign guest token", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create guest")
		return
	}

	h.logger.Info("Guest created", zap.Int64("guest_number", *customer.GuestNumber))
	middleware.RespondWithJSON(w, http.StatusCreated, GuestResponse{
		AccessToken: token,
		GuestNumber: *customer.GuestNumber,
	})
}
