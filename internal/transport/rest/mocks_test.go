package rest

import (
	"context"
	"sync"

	"github.com/abgdnv/storefront/internal/blob"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/order"
	"github.com/abgdnv/storefront/internal/user"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/mock"
)

// mockCatalog serves products from a map.
type mockCatalog struct {
	products   map[int64]catalog.Product
	categories []catalog.Category
	created    *catalog.CreateDto
	createdImg *catalog.Image
	err        error
}

func (m *mockCatalog) ListAll(context.Context) ([]catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]catalog.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockCatalog) ListByCategory(_ context.Context, category string) ([]catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]catalog.Product, 0)
	for _, p := range m.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalog) ListCategories(context.Context) ([]catalog.Category, error) {
	return m.categories, m.err
}

func (m *mockCatalog) FindByID(_ context.Context, id int64) (*catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (m *mockCatalog) Create(_ context.Context, dto catalog.CreateDto, img catalog.Image) (*catalog.Product, error) {
	m.created, m.createdImg = &dto, &img
	if m.err != nil {
		return nil, m.err
	}
	return &catalog.Product{ID: 1000, Title: dto.Title, Price: dto.Price, Category: dto.Category}, nil
}

func (m *mockCatalog) Update(_ context.Context, id int64, dto catalog.UpdateDto) (*catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	if dto.Title != nil {
		p.Title = *dto.Title
	}
	return &p, nil
}

func (m *mockCatalog) Delete(_ context.Context, id int64) error {
	delete(m.products, id)
	return m.err
}

type mockOrders struct {
	order  *order.Order
	orders []order.Order
	err    error
}

func (m *mockOrders) FindByID(context.Context, string, string) (*order.Order, error) {
	return m.order, m.err
}

func (m *mockOrders) ListByUser(context.Context, string) ([]order.Order, error) {
	return m.orders, m.err
}

// stubCreator is the order creator behind the real checkout workflow.
type stubCreator struct {
	mu    sync.Mutex
	id    string
	err   error
	calls int
}

func (s *stubCreator) Create(context.Context, order.Draft) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.id, s.err
}

type mockIdentity struct {
	signedIn    *identity.Identity
	signInErr   error
	registerID  string
	registerErr error
	signedOut   bool
}

func (m *mockIdentity) Register(context.Context, identity.RegisterDto) (string, error) {
	return m.registerID, m.registerErr
}

func (m *mockIdentity) SignIn(context.Context, string, string) (*identity.Identity, error) {
	return m.signedIn, m.signInErr
}

func (m *mockIdentity) SignOut(context.Context, *identity.Identity) error {
	m.signedOut = true
	return nil
}

type mockUsers struct {
	profiles map[string]*user.Profile
	err      error
}

func (m *mockUsers) CreateIfMissing(_ context.Context, id identity.Identity) (*user.Profile, error) {
	if p, ok := m.profiles[id.ID]; ok {
		return p, nil
	}
	p := &user.Profile{UID: id.ID, Email: id.Email, Name: id.Name}
	m.profiles[id.ID] = p
	return p, nil
}

func (m *mockUsers) FindByUID(_ context.Context, uid string) (*user.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.profiles[uid]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return p, nil
}

func (m *mockUsers) Update(_ context.Context, uid string, dto user.UpdateDto) (*user.Profile, error) {
	p, ok := m.profiles[uid]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	if dto.Name != nil {
		p.Name = *dto.Name
	}
	if dto.Address != nil {
		p.Address = *dto.Address
	}
	return p, nil
}

type mockBlobs struct {
	blobs map[string]blob.Blob
}

func (m *mockBlobs) Get(_ context.Context, path string) (blob.Blob, error) {
	b, ok := m.blobs[path]
	if !ok {
		return blob.Blob{}, blob.ErrNotFound
	}
	return b, nil
}

// MockVerifier is a mock implementation of auth.Verifier.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, tokenString string) (jwt.Token, error) {
	args := m.Called(ctx, tokenString)

	var token jwt.Token
	if args.Get(0) != nil {
		token = args.Get(0).(jwt.Token)
	}
	return token, args.Error(1)
}
