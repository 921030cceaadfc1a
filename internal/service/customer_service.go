package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

var ErrUnknownIdentity = errors.New("request carries neither a user nor a guest identity")

// Identity names the caller: a registered user or an anonymous guest
type Identity struct {
	UserID      *uuid.UUID
	GuestNumber *int64
}

// UserIdentity returns the identity of a registered user.
func UserIdentity(id uuid.UUID) Identity {
	return Identity{UserID: &id}
}

// GuestIdentity returns the identity of a guest.
func GuestIdentity(n int64) Identity {
	return Identity{GuestNumber: &n}
}

// CustomerService resolves the customer record behind an identity
type CustomerService interface {
	// Resolve returns the caller's customer, creating it on first use.
	Resolve(ctx context.Context, identity Identity) (*domain.Customer, error)
	// NewGuest draws the next guest number and creates its customer.
	NewGuest(ctx context.Context) (*domain.Customer, error)
}

type customerService struct {
	tx    repository.Transactor
	repos repository.Repositories
	now   func() time.Time
}

// NewCustomerService creates a new instance of CustomerService
func NewCustomerService(tx repository.Transactor, repos repository.Repositories, now func() time.Time) CustomerService {
	if now == nil {
		now = time.Now
	}
	return &customerService{tx: tx, repos: repos, now: now}
}

func (s *customerService) Resolve(ctx context.Context, identity Identity) (*domain.Customer, error) {
	switch {
	case identity.UserID != nil:
		return s.forUser(ctx, *identity.UserID)
	case identity.GuestNumber != nil:
		customer, err := s.repos.Customers.GetByGuestNumber(ctx, *identity.GuestNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to find guest customer: %w", err)
		}
		return customer, nil
	default:
		return nil, ErrUnknownIdentity
	}
}

// forUser keeps the customer's name and email in step with the user record.
func (s *customerService) forUser(ctx context.Context, userID uuid.UUID) (*domain.Customer, error) {
	var customer *domain.Customer
	err := s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		user, err := repos.Users.FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}

		customer, err = repos.Customers.GetByUserID(ctx, userID)
		if errors.Is(err, repository.ErrCustomerNotFound) {
			customer = domain.NewRegisteredCustomer(user, s.now())
			return repos.Customers.Create(ctx, customer)
		}
		if err != nil {
			return fmt.Errorf("failed to find customer: %w", err)
		}

		before := *customer
		customer.LinkUser(user)
		if before.FullName == customer.FullName && before.Email == customer.Email {
			return nil
		}
		return repos.Customers.Update(ctx, customer)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *customerService) NewGuest(ctx context.Context) (*domain.Customer, error) {
	n, err := s.repos.Customers.NextGuestNumber(ctx)
	if err != nil {
		return nil, err
	}

	customer := domain.NewGuestCustomer(n, s.now())
	if err := s.repos.Customers.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create guest customer: %w", err)
	}
	return customer, nil
}
