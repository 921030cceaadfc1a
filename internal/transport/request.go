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
	"go.uber.org/zap"
)

// decodeRequest decodes and validates the JSON body into v. On failure it
// writes the 400 response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}, logger *zap.Logger) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// uuidParam parses the named URL parameter. On failure it writes a 400 with
// message and returns false.
func uuidParam(w http.ResponseWriter, r *http.Request, name, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, message)
		return uuid.Nil, false
	}
	return id, true
}

// requestIdentity reads the caller identity left in the context by the auth
// middleware.
func requestIdentity(r *http.Request) (service.Identity, error) {
	if n, ok := middleware.GetGuestNumber(r.Context()); ok {
		return service.GuestIdentity(n), nil
	}
	if raw, ok := middleware.GetUserID(r.Context()); ok {
		id, err := uuid.Parse(raw)
		if err != nil {
			return service.Identity{}, service.ErrUnknownIdentity
		}
		return service.UserIdentity(id), nil
	}
	return service.Identity{}, service.ErrUnknownIdentity
}

// customerResolver turns the authenticated caller into a customer record
type customerResolver struct {
	customers service.CustomerService
	logger    *zap.Logger
}

// resolve writes an error response and returns nil when the caller has no
// usable customer record.
func (c customerResolver) resolve(w http.ResponseWriter, r *http.Request) *domain.Customer {
	identity, err := requestIdentity(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	customer, err := c.customers.Resolve(r.Context(), identity)
	switch {
	case err == nil:
		return customer
	case errors.Is(err, repository.ErrCustomerNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, service.ErrUnknownIdentity):
		c.logger.Debug("Unknown caller", zap.Error(err))
		middleware.RespondWithError(w, http.StatusUnauthorized, "unknown customer")
	default:
		c.logger.Error("Failed to resolve customer", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to resolve customer")
	}
	return nil
}

// respondInternal logs err and answers 500. Integrity violations are
// singled out since they mean the stock accounting refused a mutation.
func respondInternal(w http.ResponseWriter, logger *zap.Logger, message string, err error) {
	if errors.Is(err, domain.ErrIntegrityViolation) {
		logger.Error("Stock integrity violation", zap.Error(err))
	} else {
		logger.Error(message, zap.Error(err))
	}
	middleware.RespondWithError(w, http.StatusInternalServerError, message)
}
