package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mock repositories for testing

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
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
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
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

type mockCategoryRepository struct {
	categories map[uuid.UUID]domain.ItemCategory
}

func newMockCategoryRepository() *mockCategoryRepository {
	return &mockCategoryRepository{categories: make(map[uuid.UUID]domain.ItemCategory)}
}

func (m *mockCategoryRepository) Create(ctx context.Context, c *domain.ItemCategory) error {
	m.categories[c.ID] = *c
	return nil
}

func (m *mockCategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ItemCategory, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return &c, nil
}

func (m *mockCategoryRepository) GetBySlug(ctx context.Context, slug string) (*domain.ItemCategory, error) {
	for _, c := range m.categories {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, repository.ErrCategoryNotFound
}

func (m *mockCategoryRepository) List(ctx context.Context, activeOnly bool) ([]domain.ItemCategory, error) {
	out := []domain.ItemCategory{}
	for _, c := range m.categories {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockCategoryRepository) UpdateStats(ctx context.Context, id uuid.UUID, stats domain.EarningsStats) error {
	c, ok := m.categories[id]
	if !ok {
		return repository.ErrCategoryNotFound
	}
	c.Stats = stats
	m.categories[id] = c
	return nil
}

func (m *mockCategoryRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	c, ok := m.categories[id]
	if !ok {
		return repository.ErrCategoryNotFound
	}
	c.Active = active
	m.categories[id] = c
	return nil
}

type mockItemRepository struct {
	items   map[uuid.UUID]domain.Item
	options map[uuid.UUID][]uuid.UUID
}

func newMockItemRepository() *mockItemRepository {
	return &mockItemRepository{
		items:   make(map[uuid.UUID]domain.Item),
		options: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *mockItemRepository) Create(ctx context.Context, item *domain.Item) error {
	m.items[item.ID] = *item
	return nil
}

func (m *mockItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	return &item, nil
}

func (m *mockItemRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return m.GetByID(ctx, id)
}

func (m *mockItemRepository) UpdateStock(ctx context.Context, id uuid.UUID, stockQuantity int) error {
	if stockQuantity < 0 {
		return errors.New("stock_quantity check violated")
	}
	item, ok := m.items[id]
	if !ok {
		return repository.ErrItemNotFound
	}
	item.StockQuantity = stockQuantity
	m.items[id] = item
	return nil
}

func (m *mockItemRepository) UpdateStats(ctx context.Context, id uuid.UUID, stats domain.EarningsStats) error {
	item, ok := m.items[id]
	if !ok {
		return repository.ErrItemNotFound
	}
	item.Stats = stats
	m.items[id] = item
	return nil
}

func (m *mockItemRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	item, ok := m.items[id]
	if !ok {
		return repository.ErrItemNotFound
	}
	item.Active = active
	m.items[id] = item
	return nil
}

func (m *mockItemRepository) ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Item, error) {
	return m.filter(func(i domain.Item) bool { return i.CategoryID == categoryID }), nil
}

func (m *mockItemRepository) ListActiveByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Item, error) {
	items := m.filter(func(i domain.Item) bool { return i.CategoryID == categoryID && i.Active })
	for i := range items {
		items[i].OptionIDs = m.options[items[i].ID]
	}
	return items, nil
}

func (m *mockItemRepository) Search(ctx context.Context, query string) ([]domain.Item, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []domain.Item{}, nil
	}
	return m.filter(func(i domain.Item) bool {
		return i.Active && strings.Contains(strings.ToLower(i.Name), query)
	}), nil
}

func (m *mockItemRepository) AttachOption(ctx context.Context, itemID, optionID uuid.UUID) error {
	m.options[itemID] = append(m.options[itemID], optionID)
	return nil
}

func (m *mockItemRepository) filter(keep func(domain.Item) bool) []domain.Item {
	out := []domain.Item{}
	for _, item := range m.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type mockFilterRepository struct {
	groups []domain.FilterCategory
}

func (m *mockFilterRepository) CreateCategory(ctx context.Context, fc *domain.FilterCategory) error {
	m.groups = append(m.groups, *fc)
	return nil
}

func (m *mockFilterRepository) CreateOption(ctx context.Context, option *domain.FilterOption) error {
	for i := range m.groups {
		if m.groups[i].ID == option.FilterCategoryID {
			m.groups[i].Options = append(m.groups[i].Options, *option)
			return nil
		}
	}
	return errors.New("filter category not found")
}

func (m *mockFilterRepository) ListByItemCategory(ctx context.Context, itemCategoryID uuid.UUID) ([]domain.FilterCategory, error) {
	out := []domain.FilterCategory{}
	for _, g := range m.groups {
		if g.ItemCategoryID == itemCategoryID {
			out = append(out, g)
		}
	}
	return out, nil
}

type mockCustomerRepository struct {
	customers map[uuid.UUID]domain.Customer
	nextGuest int64
}

func newMockCustomerRepository() *mockCustomerRepository {
	return &mockCustomerRepository{customers: make(map[uuid.UUID]domain.Customer)}
}

func (m *mockCustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	for _, existing := range m.customers {
		if c.UserID != nil && existing.UserID != nil && *existing.UserID == *c.UserID {
			return repository.ErrCustomerAlreadyExists
		}
	}
	m.customers[c.ID] = *c
	return nil
}

func (m *mockCustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	return &c, nil
}

func (m *mockCustomerRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCustomerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Customer, error) {
	for _, c := range m.customers {
		if c.UserID != nil && *c.UserID == userID {
			return &c, nil
		}
	}
	return nil, repository.ErrCustomerNotFound
}

func (m *mockCustomerRepository) GetByGuestNumber(ctx context.Context, guestNumber int64) (*domain.Customer, error) {
	for _, c := range m.customers {
		if c.GuestNumber != nil && *c.GuestNumber == guestNumber {
			return &c, nil
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
	m.customers[c.ID] = *c
	return nil
}

type mockOrderRepository struct {
	orders map[uuid.UUID]domain.Order
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[uuid.UUID]domain.Order)}
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if _, err := m.GetOpen(ctx, order.CustomerID); err == nil && !order.Committed {
		return repository.ErrOpenOrderConflict
	}
	m.orders[order.ID] = *order
	return nil
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (m *mockOrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return m.GetByID(ctx, id)
}

func (m *mockOrderRepository) GetOpen(ctx context.Context, customerID uuid.UUID) (*domain.Order, error) {
	for _, o := range m.orders {
		if o.CustomerID == customerID && !o.Committed {
			return &o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepository) GetOpenForUpdate(ctx context.Context, customerID uuid.UUID) (*domain.Order, error) {
	return m.GetOpen(ctx, customerID)
}

func (m *mockOrderRepository) SetCheckoutPending(ctx context.Context, id uuid.UUID, pending bool) error {
	o, ok := m.orders[id]
	if !ok || o.Committed {
		return repository.ErrOrderNotFound
	}
	o.CheckoutPending = pending
	o.CheckoutStartedAt = nil
	if pending {
		startedAt := time.Now()
		o.CheckoutStartedAt = &startedAt
	}
	m.orders[id] = o
	return nil
}

func (m *mockOrderRepository) ListCheckoutPending(ctx context.Context, startedBefore time.Time) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range m.orders {
		if o.CheckoutPending && !o.Committed && o.CheckoutStartedAt != nil && o.CheckoutStartedAt.Before(startedBefore) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckoutStartedAt.Before(*out[j].CheckoutStartedAt) })
	return out, nil
}

func (m *mockOrderRepository) UpdateFulfillment(ctx context.Context, id uuid.UUID, fulfillment domain.Fulfillment) error {
	o, ok := m.orders[id]
	if !ok || !o.Committed {
		return repository.ErrOrderNotFound
	}
	o.Fulfillment = fulfillment
	m.orders[id] = o
	return nil
}

func (m *mockOrderRepository) Commit(ctx context.Context, order *domain.Order) error {
	stored, ok := m.orders[order.ID]
	if !ok || stored.Committed {
		return repository.ErrOrderAlreadyClosed
	}
	committed := *order
	committed.Reservations = nil
	m.orders[order.ID] = committed
	return nil
}

func (m *mockOrderRepository) ListCommittedByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range m.orders {
		if o.CustomerID == customerID && o.Committed {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommittedAt.After(*out[j].CommittedAt) })
	return out, nil
}

type mockReservationRepository struct {
	reservations map[uuid.UUID]domain.Reservation
	items        *mockItemRepository
}

func newMockReservationRepository(items *mockItemRepository) *mockReservationRepository {
	return &mockReservationRepository{
		reservations: make(map[uuid.UUID]domain.Reservation),
		items:        items,
	}
}

func (m *mockReservationRepository) Create(ctx context.Context, r *domain.Reservation) error {
	stored := *r
	stored.Item = nil
	m.reservations[r.ID] = stored
	return nil
}

func (m *mockReservationRepository) GetForUpdate(ctx context.Context, orderID, itemID uuid.UUID) (*domain.Reservation, error) {
	for _, r := range m.reservations {
		if r.OrderID == orderID && r.ItemID == itemID {
			return &r, nil
		}
	}
	return nil, repository.ErrReservationNotFound
}

func (m *mockReservationRepository) Update(ctx context.Context, r *domain.Reservation) error {
	stored, ok := m.reservations[r.ID]
	if !ok {
		return repository.ErrReservationNotFound
	}
	stored.Quantity = r.Quantity
	stored.InCart = r.InCart
	stored.Committed = r.Committed
	m.reservations[r.ID] = stored
	return nil
}

func (m *mockReservationRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Reservation, error) {
	out := m.filter(func(r domain.Reservation) bool { return r.OrderID == orderID })
	for _, r := range out {
		item := m.items.items[r.ItemID]
		r.Item = &item
	}
	return out, nil
}

func (m *mockReservationRepository) ListCommittedByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Reservation, error) {
	return m.filter(func(r domain.Reservation) bool { return r.ItemID == itemID && r.Committed }), nil
}

func (m *mockReservationRepository) filter(keep func(domain.Reservation) bool) []*domain.Reservation {
	out := []*domain.Reservation{}
	for _, r := range m.reservations {
		if keep(r) {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type mockSavedCardRepository struct {
	cards map[uuid.UUID]domain.SavedCard
}

func newMockSavedCardRepository() *mockSavedCardRepository {
	return &mockSavedCardRepository{cards: make(map[uuid.UUID]domain.SavedCard)}
}

func (m *mockSavedCardRepository) Create(ctx context.Context, card *domain.SavedCard) error {
	if _, err := m.GetBySource(ctx, card.CustomerID, card.SourceRef); err == nil {
		return repository.ErrSavedCardAlreadyExists
	}
	m.cards[card.ID] = *card
	return nil
}

func (m *mockSavedCardRepository) Get(ctx context.Context, customerID, id uuid.UUID) (*domain.SavedCard, error) {
	c, ok := m.cards[id]
	if !ok || c.CustomerID != customerID {
		return nil, repository.ErrSavedCardNotFound
	}
	return &c, nil
}

func (m *mockSavedCardRepository) GetBySource(ctx context.Context, customerID uuid.UUID, sourceRef string) (*domain.SavedCard, error) {
	for _, c := range m.cards {
		if c.CustomerID == customerID && c.SourceRef == sourceRef {
			return &c, nil
		}
	}
	return nil, repository.ErrSavedCardNotFound
}

func (m *mockSavedCardRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SavedCard, error) {
	out := []domain.SavedCard{}
	for _, c := range m.cards {
		if c.CustomerID == customerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockSavedCardRepository) Update(ctx context.Context, card *domain.SavedCard) error {
	if _, err := m.Get(ctx, card.CustomerID, card.ID); err != nil {
		return err
	}
	m.cards[card.ID] = *card
	return nil
}

func (m *mockSavedCardRepository) Delete(ctx context.Context, customerID, id uuid.UUID) error {
	if _, err := m.Get(ctx, customerID, id); err != nil {
		return err
	}
	delete(m.cards, id)
	return nil
}

type mockSavedAddressRepository struct {
	addresses map[uuid.UUID]domain.SavedAddress
}

func newMockSavedAddressRepository() *mockSavedAddressRepository {
	return &mockSavedAddressRepository{addresses: make(map[uuid.UUID]domain.SavedAddress)}
}

func (m *mockSavedAddressRepository) Create(ctx context.Context, a *domain.SavedAddress) error {
	m.addresses[a.ID] = *a
	return nil
}

func (m *mockSavedAddressRepository) Get(ctx context.Context, customerID, id uuid.UUID) (*domain.SavedAddress, error) {
	a, ok := m.addresses[id]
	if !ok || a.CustomerID != customerID {
		return nil, repository.ErrSavedAddressNotFound
	}
	return &a, nil
}

func (m *mockSavedAddressRepository) Find(ctx context.Context, customerID uuid.UUID, address domain.ShippingAddress) (*domain.SavedAddress, error) {
	for _, a := range m.addresses {
		if a.CustomerID == customerID && a.ShippingAddress == address {
			return &a, nil
		}
	}
	return nil, repository.ErrSavedAddressNotFound
}

func (m *mockSavedAddressRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SavedAddress, error) {
	out := []domain.SavedAddress{}
	for _, a := range m.addresses {
		if a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockSavedAddressRepository) Update(ctx context.Context, a *domain.SavedAddress) error {
	if _, err := m.Get(ctx, a.CustomerID, a.ID); err != nil {
		return err
	}
	m.addresses[a.ID] = *a
	return nil
}

func (m *mockSavedAddressRepository) Delete(ctx context.Context, customerID, id uuid.UUID) error {
	if _, err := m.Get(ctx, customerID, id); err != nil {
		return err
	}
	delete(m.addresses, id)
	return nil
}

// memStore wires every mock together and runs transactions inline. Like a
// real database it refuses to begin a transaction on a finished context.
type memStore struct {
	users         *mockUserRepository
	refreshTokens *mockRefreshTokenRepository
	categories    *mockCategoryRepository
	items         *mockItemRepository
	filters       *mockFilterRepository
	customers     *mockCustomerRepository
	orders        *mockOrderRepository
	reservations  *mockReservationRepository
	cards         *mockSavedCardRepository
	addresses     *mockSavedAddressRepository

	serializableRuns int
}

func newMemStore() *memStore {
	items := newMockItemRepository()
	return &memStore{
		users:         newMockUserRepository(),
		refreshTokens: newMockRefreshTokenRepository(),
		categories:    newMockCategoryRepository(),
		items:         items,
		filters:       &mockFilterRepository{},
		customers:     newMockCustomerRepository(),
		orders:        newMockOrderRepository(),
		reservations:  newMockReservationRepository(items),
		cards:         newMockSavedCardRepository(),
		addresses:     newMockSavedAddressRepository(),
	}
}

func (s *memStore) Repositories() repository.Repositories {
	return repository.Repositories{
		Users:         s.users,
		RefreshTokens: s.refreshTokens,
		Categories:    s.categories,
		Items:         s.items,
		Filters:       s.filters,
		Customers:     s.customers,
		Orders:        s.orders,
		Reservations:  s.reservations,
		Cards:         s.cards,
		Addresses:     s.addresses,
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return fn(s.Repositories())
}

func (s *memStore) WithinSerializableTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.serializableRuns++
	return fn(s.Repositories())
}

// clock returns a time source that advances one second per call.
func clock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func (s *memStore) seedCategory(name string, startedAt time.Time) *domain.ItemCategory {
	c := &domain.ItemCategory{
		ID:        uuid.New(),
		Name:      name,
		Slug:      strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		StartedAt: startedAt,
		Active:    true,
	}
	s.categories.categories[c.ID] = *c
	return c
}

func (s *memStore) seedItem(categoryID uuid.UUID, name, price string, stock int) *domain.Item {
	item := &domain.Item{
		ID:            uuid.New(),
		CategoryID:    categoryID,
		Name:          name,
		Slug:          strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		Active:        true,
	}
	s.items.items[item.ID] = *item
	return item
}

func (s *memStore) seedGuest(now time.Time) *domain.Customer {
	n, _ := s.customers.NextGuestNumber(context.Background())
	c := domain.NewGuestCustomer(n, now)
	s.customers.customers[c.ID] = *c
	return c
}

func (s *memStore) stock(itemID uuid.UUID) int {
	return s.items.items[itemID].StockQuantity
}
