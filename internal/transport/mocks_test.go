package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	for _, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

type mockCustomerRepository struct {
	customers map[uuid.UUID]*domain.Customer
	nextGuest int64
}

func newMockCustomerRepository() *mockCustomerRepository {
	return &mockCustomerRepository{customers: make(map[uuid.UUID]*domain.Customer)}
}

func (m *mockCustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *mockCustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCustomerRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCustomerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Customer, error) {
	for _, c := range m.customers {
		if c.UserID != nil && *c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrCustomerNotFound
}

func (m *mockCustomerRepository) GetByGuestNumber(ctx context.Context, n int64) (*domain.Customer, error) {
	for _, c := range m.customers {
		if c.GuestNumber != nil && *c.GuestNumber == n {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrCustomerNotFound
}

func (m *mockCustomerRepository) NextGuestNumber(ctx context.Context) (int64, error) {
	m.nextGuest++
	return m.nextGuest, nil
}

func (m *mockCustomerRepository) Update(ctx context.Context, c *domain.Customer) error {
	if _, ok := m.customers[c.ID]; !ok {
		return repository.ErrCustomerNotFound
	}
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

// identityStore backs the user and customer services in memory. Its
// transactions simply run fn against the same maps.
type identityStore struct {
	users     *mockUserRepository
	tokens    *mockRefreshTokenRepository
	customers *mockCustomerRepository
}

func newIdentityStore() *identityStore {
	return &identityStore{
		users:     newMockUserRepository(),
		tokens:    newMockRefreshTokenRepository(),
		customers: newMockCustomerRepository(),
	}
}

func (s *identityStore) Repositories() repository.Repositories {
	return repository.Repositories{
		Users:         s.users,
		RefreshTokens: s.tokens,
		Customers:     s.customers,
	}
}

func (s *identityStore) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return fn(s.Repositories())
}

func (s *identityStore) WithinSerializableTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return fn(s.Repositories())
}

func (s *identityStore) userService() service.UserService {
	return service.NewUserService(s, s.Repositories(), service.TokenConfig{
		Secret:        testSecret,
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
		GuestExpiry:   24 * time.Hour,
	})
}

func (s *identityStore) customerService() service.CustomerService {
	return service.NewCustomerService(s, s.Repositories(), nil)
}

// seedGuest stores a guest customer and returns it with a bearer token.
func (s *identityStore) seedGuest(t *testing.T) (*domain.Customer, string) {
	t.Helper()
	customer, err := s.customerService().NewGuest(context.Background())
	if err != nil {
		t.Fatalf("failed to seed guest: %v", err)
	}
	return customer, signToken(t, &service.Claims{GuestNumber: customer.GuestNumber, Role: domain.RoleGuest})
}

// seedUser stores a registered user plus customer and returns a bearer token.
func (s *identityStore) seedUser(t *testing.T, role string) (*domain.Customer, string) {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     uuid.NewString()[:8] + "@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	customer := domain.NewRegisteredCustomer(user, now)
	if err := s.customers.Create(context.Background(), customer); err != nil {
		t.Fatalf("failed to seed customer: %v", err)
	}
	return customer, signToken(t, &service.Claims{UserID: user.ID, Role: role})
}

func signToken(t *testing.T, claims *service.Claims) string {
	t.Helper()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func authMiddleware() func(http.Handler) http.Handler {
	return middleware.AuthMiddleware(testSecret, zap.NewNop())
}

// serve routes req through a fresh chi router configured by register.
func serve(register func(chi.Router), req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type stubCartService struct {
	summary func(*domain.Customer) (*service.Cart, error)
	add     func(*domain.Customer, uuid.UUID, int) (*service.CartResult, error)
	update  func(*domain.Customer, uuid.UUID, int) (*service.CartResult, error)
	remove  func(*domain.Customer, uuid.UUID) (*service.CartResult, error)
}

func (s *stubCartService) Summary(ctx context.Context, c *domain.Customer) (*service.Cart, error) {
	return s.summary(c)
}

func (s *stubCartService) Add(ctx context.Context, c *domain.Customer, itemID uuid.UUID, q int) (*service.CartResult, error) {
	return s.add(c, itemID, q)
}

func (s *stubCartService) Update(ctx context.Context, c *domain.Customer, itemID uuid.UUID, q int) (*service.CartResult, error) {
	return s.update(c, itemID, q)
}

func (s *stubCartService) Remove(ctx context.Context, c *domain.Customer, itemID uuid.UUID) (*service.CartResult, error) {
	return s.remove(c, itemID)
}

type stubCheckoutService struct {
	calls    int
	checkout func(*domain.Customer, service.CheckoutRequest) (*service.CheckoutResult, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, c *domain.Customer, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	s.calls++
	return s.checkout(c, req)
}

type stubCatalogService struct {
	categories []domain.ItemCategory
	filters    []domain.FilterCategory
	items      func(slug string, chosen []uuid.UUID, page int) (*service.ItemPage, error)
	search     func(q string) ([]domain.Item, error)
	setActive  func(id uuid.UUID, active bool) error
}

func (s *stubCatalogService) Categories(ctx context.Context) ([]domain.ItemCategory, error) {
	return s.categories, nil
}

func (s *stubCatalogService) Filters(ctx context.Context, slug string) ([]domain.FilterCategory, error) {
	if s.filters == nil {
		return nil, repository.ErrCategoryNotFound
	}
	return s.filters, nil
}

func (s *stubCatalogService) Items(ctx context.Context, slug string, chosen []uuid.UUID, page int) (*service.ItemPage, error) {
	return s.items(slug, chosen, page)
}

func (s *stubCatalogService) Search(ctx context.Context, q string) ([]domain.Item, error) {
	return s.search(q)
}

func (s *stubCatalogService) SetItemActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Item, error) {
	if err := s.setActive(id, active); err != nil {
		return nil, err
	}
	return &domain.Item{ID: id, Active: active}, nil
}

func (s *stubCatalogService) SetCategoryActive(ctx context.Context, id uuid.UUID, active bool) (*domain.ItemCategory, error) {
	if err := s.setActive(id, active); err != nil {
		return nil, err
	}
	return &domain.ItemCategory{ID: id, Active: active}, nil
}

type stubReportService struct {
	reports []service.CategoryReport
	refresh func(uuid.UUID) (*service.CategoryReport, error)
}

func (s *stubReportService) Categories(ctx context.Context) ([]service.CategoryReport, error) {
	return s.reports, nil
}

func (s *stubReportService) Refresh(ctx context.Context, id uuid.UUID) (*service.CategoryReport, error) {
	return s.refresh(id)
}

type stubOrderService struct {
	orders      []domain.Order
	fulfillment func(uuid.UUID, domain.FulfillmentUpdate) (*domain.Order, error)
	pending     func(time.Duration) ([]domain.Order, error)
	release     func(uuid.UUID) (*domain.Order, error)
}

func (s *stubOrderService) UpdateFulfillment(ctx context.Context, id uuid.UUID, u domain.FulfillmentUpdate) (*domain.Order, error) {
	return s.fulfillment(id, u)
}

func (s *stubOrderService) PendingCheckouts(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	return s.pending(olderThan)
}

func (s *stubOrderService) ReleaseCheckout(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.release(id)
}

func (s *stubOrderService) History(ctx context.Context, c *domain.Customer) ([]domain.Order, error) {
	if c.IsGuest() {
		return nil, service.ErrGuestHistory
	}
	return s.orders, nil
}

// stubWalletService keeps saved details in memory, keyed by owner
type stubWalletService struct {
	cards     map[uuid.UUID]domain.SavedCard
	addresses map[uuid.UUID]domain.SavedAddress
	addCard   func(domain.PaymentMethod) error
}

func newStubWalletService() *stubWalletService {
	return &stubWalletService{
		cards:     make(map[uuid.UUID]domain.SavedCard),
		addresses: make(map[uuid.UUID]domain.SavedAddress),
		addCard:   func(domain.PaymentMethod) error { return nil },
	}
}

func (s *stubWalletService) Cards(ctx context.Context, c *domain.Customer) ([]domain.SavedCard, error) {
	out := []domain.SavedCard{}
	for _, card := range s.cards {
		if card.CustomerID == c.ID {
			out = append(out, card)
		}
	}
	return out, nil
}

func (s *stubWalletService) AddCard(ctx context.Context, c *domain.Customer, m domain.PaymentMethod) (*domain.SavedCard, error) {
	if err := s.addCard(m); err != nil {
		return nil, err
	}
	card := domain.SavedCard{ID: uuid.New(), CustomerID: c.ID, PaymentMethod: m}
	s.cards[card.ID] = card
	return &card, nil
}

func (s *stubWalletService) UpdateCard(ctx context.Context, c *domain.Customer, id uuid.UUID, m domain.PaymentMethod) (*domain.SavedCard, error) {
	card, ok := s.cards[id]
	if !ok || card.CustomerID != c.ID {
		return nil, repository.ErrSavedCardNotFound
	}
	card.UpdateBilling(m, time.Now())
	s.cards[id] = card
	return &card, nil
}

func (s *stubWalletService) DeleteCard(ctx context.Context, c *domain.Customer, id uuid.UUID) error {
	card, ok := s.cards[id]
	if !ok || card.CustomerID != c.ID {
		return repository.ErrSavedCardNotFound
	}
	delete(s.cards, id)
	return nil
}

func (s *stubWalletService) Addresses(ctx context.Context, c *domain.Customer) ([]domain.SavedAddress, error) {
	out := []domain.SavedAddress{}
	for _, a := range s.addresses {
		if a.CustomerID == c.ID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubWalletService) AddAddress(ctx context.Context, c *domain.Customer, a domain.ShippingAddress) (*domain.SavedAddress, error) {
	saved := domain.SavedAddress{ID: uuid.New(), CustomerID: c.ID, ShippingAddress: a}
	s.addresses[saved.ID] = saved
	return &saved, nil
}

func (s *stubWalletService) UpdateAddress(ctx context.Context, c *domain.Customer, id uuid.UUID, a domain.ShippingAddress) (*domain.SavedAddress, error) {
	saved, ok := s.addresses[id]
	if !ok || saved.CustomerID != c.ID {
		return nil, repository.ErrSavedAddressNotFound
	}
	saved.ShippingAddress = a
	s.addresses[id] = saved
	return &saved, nil
}

func (s *stubWalletService) DeleteAddress(ctx context.Context, c *domain.Customer, id uuid.UUID) error {
	saved, ok := s.addresses[id]
	if !ok || saved.CustomerID != c.ID {
		return repository.ErrSavedAddressNotFound
	}
	delete(s.addresses, id)
	return nil
}
