package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrGuestWallet = errors.New("saved billing details are only kept for registered customers")

// WalletService manages the cards and shipping addresses a registered
// customer keeps for checkout.
type WalletService interface {
	Cards(ctx context.Context, customer *domain.Customer) ([]domain.SavedCard, error)
	// AddCard attaches the source to the customer's payer at the provider
	// and saves it. Adding the same source twice is ErrSavedCardAlreadyExists.
	AddCard(ctx context.Context, customer *domain.Customer, method domain.PaymentMethod) (*domain.SavedCard, error)
	UpdateCard(ctx context.Context, customer *domain.Customer, id uuid.UUID, method domain.PaymentMethod) (*domain.SavedCard, error)
	DeleteCard(ctx context.Context, customer *domain.Customer, id uuid.UUID) error

	Addresses(ctx context.Context, customer *domain.Customer) ([]domain.SavedAddress, error)
	// AddAddress returns the existing copy when an identical address is
	// already saved.
	AddAddress(ctx context.Context, customer *domain.Customer, address domain.ShippingAddress) (*domain.SavedAddress, error)
	UpdateAddress(ctx context.Context, customer *domain.Customer, id uuid.UUID, address domain.ShippingAddress) (*domain.SavedAddress, error)
	DeleteAddress(ctx context.Context, customer *domain.Customer, id uuid.UUID) error
}

type walletService struct {
	repos    repository.Repositories
	gateway  payment.Gateway
	throttle domain.Throttle
	logger   *zap.Logger
	now      func() time.Time
}

// NewWalletService creates a new instance of WalletService. Adding a card
// shares the checkout throttle, since it also reaches the payment provider.
func NewWalletService(
	repos repository.Repositories,
	gateway payment.Gateway,
	throttle domain.Throttle,
	logger *zap.Logger,
	now func() time.Time,
) WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &walletService{repos: repos, gateway: gateway, throttle: throttle, logger: logger, now: now}
}

func (s *walletService) Cards(ctx context.Context, customer *domain.Customer) ([]domain.SavedCard, error) {
	if customer.IsGuest() {
		return nil, ErrGuestWallet
	}
	return s.repos.Cards.ListByCustomer(ctx, customer.ID)
}

func (s *walletService) AddCard(ctx context.Context, customer *domain.Customer, method domain.PaymentMethod) (*domain.SavedCard, error) {
	if customer.IsGuest() {
		return nil, ErrGuestWallet
	}
	now := s.now()
	if !s.throttle.IsAllowed(customer, now) {
		return nil, &ThrottleError{WaitSeconds: int(s.throttle.WaitRemaining(customer, now))}
	}

	_, err := s.repos.Cards.GetBySource(ctx, customer.ID, method.SourceRef)
	if err == nil {
		return nil, repository.ErrSavedCardAlreadyExists
	}
	if !errors.Is(err, repository.ErrSavedCardNotFound) {
		return nil, err
	}

	if customer.PaymentCustomerRef == "" {
		ref, err := s.gateway.CreateCustomer(ctx, method.FullName(), method.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to create payment customer: %w", err)
		}
		customer.PaymentCustomerRef = ref
		customer.UpdatedAt = now
		if err := s.repos.Customers.Update(ctx, customer); err != nil {
			return nil, fmt.Errorf("failed to store payment customer: %w", err)
		}
	}

	if err := s.gateway.AttachSource(ctx, customer.PaymentCustomerRef, method.SourceRef); err != nil {
		return nil, fmt.Errorf("failed to attach payment source: %w", err)
	}

	card := &domain.SavedCard{
		ID:            uuid.New(),
		CustomerID:    customer.ID,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repos.Cards.Create(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (s *walletService) UpdateCard(ctx context.Context, customer *domain.Customer, id uuid.UUID, method domain.PaymentMethod) (*domain.SavedCard, error) {
	if customer.IsGuest() {
		return nil, ErrGuestWallet
	}
	card, err := s.repos.Cards.Get(ctx, customer.ID, id)
	if err != nil {
		return nil, err
	}
	card.UpdateBilling(method, s.now())
	if err := s.repos.Cards.Update(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (s *walletService) DeleteCard(ctx context.Context, customer *domain.Customer, id uuid.UUID) error {
	if customer.IsGuest() {
		return ErrGuestWallet
	}
	card, err := s.repos.Cards.Get(ctx, customer.ID, id)
	if err != nil {
		return err
	}

	err = s.gateway.DetachSource(ctx, customer.PaymentCustomerRef, card.SourceRef)
	switch {
	case errors.Is(err, payment.ErrSourceNotFound):
		s.logger.Warn("Saved card had no source at the provider",
			zap.String("customer_id", customer.ID.String()),
			zap.String("card_id", card.ID.String()),
		)
	case err != nil:
		return fmt.Errorf("failed to detach payment source: %w", err)
	}

	return s.repos.Cards.Delete(ctx, customer.ID, id)
}

func (s *walletService) Addresses(ctx context.Context, customer *domain.Customer) ([]domain.SavedAddress, error) {
	if customer.IsGuest() {
		return nil, ErrGuestWallet
	}
	return s.repos.Addresses.ListByCustomer(ctx, customer.ID)
}

func (s *walletService) AddAddress(ctx context.Context, customer *domain.Customer, address domain.ShippingAddress) (*domain.SavedAddress, error) {
	if customer.IsGuest() {
		return nil, ErrGuestWallet
	}
	existing, err := s.repos.Addresses.Find(ctx, customer.ID, address)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrSavedAddressNotFound) {
		return nil, err
	}

	now := s.now()
	saved := &domain.SavedAddress{
		ID:              uuid.New(),
		CustomerID:      customer.ID,
		ShippingAddress: address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repos.Addresses.Create(ctx, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *walletService) UpdateAddress(ctx context.Context, customer *domain.Customer, id uuid.UUID, address domain.ShippingAddress) (*domain.SavedAddress, error) {
	if customer.IsGuest() {
		return nil, ErrGuestWallet
	}
	saved, err := s.repos.Addresses.Get(ctx, customer.ID, id)
	if err != nil {
		return nil, err
	}
	saved.ShippingAddress = address
	saved.UpdatedAt = s.now()
	if err := s.repos.Addresses.Update(ctx, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *walletService) DeleteAddress(ctx context.Context, customer *domain.Customer, id uuid.UUID) error {
	if customer.IsGuest() {
		return ErrGuestWallet
	}
	return s.repos.Addresses.Delete(ctx, customer.ID, id)
}
