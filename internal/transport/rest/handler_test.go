package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/blob"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/docstore"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/order"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/user"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type ErrorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

type cartResponse struct {
	Items []struct {
		ID    int64  `json:"id"`
		Qty   int    `json:"qty"`
		Price string `json:"price"`
		Title string `json:"title"`
	} `json:"items"`
	TotalCount int    `json:"total_count"`
	TotalPrice string `json:"total_price"`
}

var alice = &identity.Identity{ID: "u-alice", Email: "alice@example.com", Name: "Alice", RefreshToken: "rt"}

type fixture struct {
	router   chi.Router
	sessions *session.Manager
	catalog  *mockCatalog
	orders   *mockOrders
	creator  *stubCreator
	idp      *mockIdentity
	users    *mockUsers
	blobs    *mockBlobs
	verifier *MockVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.SessionConfig{Store: config.SessionStoreMemory, TTL: 30 * time.Minute, SaveTimeout: time.Second, SweepInterval: time.Minute}
	f := &fixture{
		sessions: session.NewManager(session.NewMemoryStorage(0), cfg, logger),
		catalog: &mockCatalog{
			products: map[int64]catalog.Product{
				1: {ID: 1, Title: "Backpack", Price: decimal.RequireFromString("109.95"), Category: "bags"},
				2: {ID: 2, Title: "T-Shirt", Price: decimal.RequireFromString("22.30"), Category: "clothing"},
			},
			categories: []catalog.Category{{Name: "bags"}, {Name: "clothing"}},
		},
		orders:   &mockOrders{},
		creator:  &stubCreator{id: "ord-1"},
		idp:      &mockIdentity{},
		users:    &mockUsers{profiles: map[string]*user.Profile{}},
		blobs:    &mockBlobs{blobs: map[string]blob.Blob{}},
		verifier: &MockVerifier{},
	}
	h := NewHandler(Deps{
		Sessions: f.sessions,
		Catalog:  f.catalog,
		Orders:   f.orders,
		Checkout: checkout.NewWorkflow(f.creator, logger),
		Identity: f.idp,
		Users:    f.users,
		Blobs:    f.blobs,
		Verifier: f.verifier,
	}, false, cfg.TTL, 1<<20, logger)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	f.router = r
	return f
}

// do sends a request in the browsing session sid. An empty sid starts a new session.
func (f *fixture) do(t *testing.T, method, target, sid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(toJSON(t, body))
	}
	req := httptest.NewRequest(method, target, reader)
	if sid != "" {
		req.Header.Set(SessionHeader, sid)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// signedIn opens a session that alice is signed in to.
func (f *fixture) signedIn(t *testing.T) string {
	t.Helper()
	sid := uuid.NewString()
	f.sessions.Get(context.Background(), sid).SetIdentity(context.Background(), alice)
	return sid
}

func toJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestSessionMiddleware(t *testing.T) {
	t.Run("new session gets cookie and header", func(t *testing.T) {
		// given
		f := newFixture(t)

		// when
		rr := f.do(t, http.MethodGet, "/api/v1/cart", "", nil)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		sid := rr.Header().Get(SessionHeader)
		_, err := uuid.Parse(sid)
		require.NoError(t, err)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, SessionCookie, cookies[0].Name)
		assert.Equal(t, sid, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		// given
		f := newFixture(t)
		fromCookie, fromHeader := uuid.NewString(), uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: fromCookie})
		req.Header.Set(SessionHeader, fromHeader)
		rr := httptest.NewRecorder()

		// when
		f.router.ServeHTTP(rr, req)

		// then
		assert.Equal(t, fromCookie, rr.Header().Get(SessionHeader))
	})

	t.Run("malformed id is replaced", func(t *testing.T) {
		// given
		f := newFixture(t)

		// when
		rr := f.do(t, http.MethodGet, "/api/v1/cart", "../../etc", nil)

		// then
		sid := rr.Header().Get(SessionHeader)
		assert.NotEqual(t, "../../etc", sid)
		_, err := uuid.Parse(sid)
		assert.NoError(t, err)
	})

	t.Run("cart survives across requests of one session", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := uuid.NewString()
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})

		// when
		rr := f.do(t, http.MethodGet, "/api/v1/cart", sid, nil)

		// then
		got := decode[cartResponse](t, rr)
		assert.Equal(t, 1, got.TotalCount)
		assert.Equal(t, "109.95", got.TotalPrice)
	})
}

func TestHandler_Cart(t *testing.T) {
	t.Run("add twice increments quantity", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := uuid.NewString()

		// when
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 2})
		rr := f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 2})

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		got := decode[cartResponse](t, rr)
		require.Len(t, got.Items, 1)
		assert.Equal(t, 2, got.Items[0].Qty)
		assert.Equal(t, 2, got.TotalCount)
		assert.Equal(t, "44.60", got.TotalPrice)
	})

	t.Run("unknown product", func(t *testing.T) {
		// given
		f := newFixture(t)

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/cart/items", "", map[string]int64{"product_id": 99})

		// then
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, ErrorResponse{Error: "Product not found"}, decode[ErrorResponse](t, rr))
	})

	t.Run("missing product id", func(t *testing.T) {
		// given
		f := newFixture(t)

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/cart/items", "", map[string]any{})

		// then
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "validation_errors")
	})

	t.Run("catalog unavailable", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.catalog.err = docstore.ErrUnavailable

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/cart/items", "", map[string]int64{"product_id": 1})

		// then
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	testCases := []struct {
		name        string
		qty         any
		expectedQty int
	}{
		{name: "fraction is floored", qty: 3.7, expectedQty: 3},
		{name: "zero becomes one", qty: 0, expectedQty: 1},
		{name: "negative becomes one", qty: -4, expectedQty: 1},
		{name: "capped at 99", qty: 250, expectedQty: 99},
		{name: "non-numeric becomes one", qty: "abc", expectedQty: 1},
		{name: "null becomes one", qty: nil, expectedQty: 1},
		{name: "empty string becomes one", qty: "", expectedQty: 1},
		{name: "numeric string is parsed", qty: "5", expectedQty: 5},
		{name: "numeric string fraction is floored", qty: "7.9", expectedQty: 7},
	}
	for _, tc := range testCases {
		t.Run("set quantity "+tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			sid := uuid.NewString()
			f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})

			// when
			rr := f.do(t, http.MethodPut, "/api/v1/cart/items/1", sid, map[string]any{"qty": tc.qty})

			// then
			require.Equal(t, http.StatusOK, rr.Code)
			got := decode[cartResponse](t, rr)
			require.Len(t, got.Items, 1)
			assert.Equal(t, tc.expectedQty, got.Items[0].Qty)
		})
	}

	t.Run("set quantity without qty becomes one", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := uuid.NewString()
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})
		f.do(t, http.MethodPut, "/api/v1/cart/items/1", sid, map[string]any{"qty": 4})

		// when
		rr := f.do(t, http.MethodPut, "/api/v1/cart/items/1", sid, map[string]any{})

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		got := decode[cartResponse](t, rr)
		require.Len(t, got.Items, 1)
		assert.Equal(t, 1, got.Items[0].Qty)
	})

	t.Run("set quantity with malformed body", func(t *testing.T) {
		// given
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/1", strings.NewReader("{"))

		// when
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		// then
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("remove and clear", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := uuid.NewString()
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 2})

		// when
		removed := decode[cartResponse](t, f.do(t, http.MethodDelete, "/api/v1/cart/items/1", sid, nil))
		cleared := decode[cartResponse](t, f.do(t, http.MethodDelete, "/api/v1/cart", sid, nil))

		// then
		require.Len(t, removed.Items, 1)
		assert.Equal(t, int64(2), removed.Items[0].ID)
		assert.Empty(t, cleared.Items)
		assert.Equal(t, "0.00", cleared.TotalPrice)
	})

	t.Run("invalid item id", func(t *testing.T) {
		// given
		f := newFixture(t)

		// when
		rr := f.do(t, http.MethodDelete, "/api/v1/cart/items/abc", "", nil)

		// then
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, ErrorResponse{Error: "Invalid ID: abc"}, decode[ErrorResponse](t, rr))
	})
}

func TestHandler_PlaceOrder(t *testing.T) {
	t.Run("anonymous session is sent to sign in", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := uuid.NewString()
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/checkout", sid, nil)

		// then
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, ErrorResponse{Error: "Sign in required", Redirect: "/login"}, decode[ErrorResponse](t, rr))
		assert.Zero(t, f.creator.calls)
	})

	t.Run("empty cart does nothing", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := f.signedIn(t)

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/checkout", sid, nil)

		// then
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Zero(t, f.creator.calls)
	})

	t.Run("places order and clears cart", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := f.signedIn(t)
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/checkout", sid, nil)

		// then
		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "/api/v1/orders/ord-1", rr.Header().Get("Location"))
		assert.Equal(t, checkoutResponse{OrderID: "ord-1", Confirmation: "/orders/ord-1"}, decode[checkoutResponse](t, rr))
		assert.Equal(t, 1, f.creator.calls)
		got := decode[cartResponse](t, f.do(t, http.MethodGet, "/api/v1/cart", sid, nil))
		assert.Empty(t, got.Items)
	})

	t.Run("failed submission keeps cart", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.creator.err = errors.New("docstore down")
		sid := f.signedIn(t)
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/checkout", sid, nil)

		// then
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Contains(t, decode[ErrorResponse](t, rr).Error, "docstore down")
		got := decode[cartResponse](t, f.do(t, http.MethodGet, "/api/v1/cart", sid, nil))
		assert.Len(t, got.Items, 1)
	})

	t.Run("second submission while one is outstanding", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := f.signedIn(t)
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})
		require.True(t, f.sessions.Get(context.Background(), sid).BeginSubmit())

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/checkout", sid, nil)

		// then
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Zero(t, f.creator.calls)
	})
}

func TestHandler_Orders(t *testing.T) {
	testCases := []struct {
		name         string
		sid          func(f *fixture, t *testing.T) string
		mockErr      error
		expectedCode int
		expectedBody ErrorResponse
	}{
		{
			name:         "not signed in",
			sid:          func(*fixture, *testing.T) string { return "" },
			expectedCode: http.StatusUnauthorized,
			expectedBody: ErrorResponse{Error: "Sign in required", Redirect: "/login"},
		},
		{
			name:         "not found",
			sid:          (*fixture).signedIn,
			mockErr:      order.ErrOrderNotFound,
			expectedCode: http.StatusNotFound,
			expectedBody: ErrorResponse{Error: "Order with ID o-1 not found"},
		},
		{
			name:         "someone else's order",
			sid:          (*fixture).signedIn,
			mockErr:      order.ErrAccessDenied,
			expectedCode: http.StatusForbidden,
			expectedBody: ErrorResponse{Error: "Access denied to order with ID o-1"},
		},
		{
			name:         "store failure",
			sid:          (*fixture).signedIn,
			mockErr:      errors.New("boom"),
			expectedCode: http.StatusInternalServerError,
			expectedBody: ErrorResponse{Error: "Failed to retrieve order with ID o-1"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			f.orders.err = tc.mockErr

			// when
			rr := f.do(t, http.MethodGet, "/api/v1/orders/o-1", tc.sid(f, t), nil)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.Equal(t, tc.expectedBody, decode[ErrorResponse](t, rr))
		})
	}

	t.Run("own order", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.orders.order = &order.Order{ID: "o-1", UserID: alice.ID, Total: decimal.RequireFromString("10.00")}

		// when
		rr := f.do(t, http.MethodGet, "/api/v1/orders/o-1", f.signedIn(t), nil)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		got := decode[order.Order](t, rr)
		assert.Equal(t, "o-1", got.ID)
	})

	t.Run("list", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.orders.orders = []order.Order{{ID: "o-2"}, {ID: "o-1"}}

		// when
		rr := f.do(t, http.MethodGet, "/api/v1/orders", f.signedIn(t), nil)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		got := decode[[]order.Order](t, rr)
		require.Len(t, got, 2)
		assert.Equal(t, "o-2", got[0].ID)
	})
}

func TestHandler_Products(t *testing.T) {
	t.Run("list by category", func(t *testing.T) {
		// given
		f := newFixture(t)

		// when
		rr := f.do(t, http.MethodGet, "/api/v1/products?category=bags", "", nil)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		got := decode[[]catalog.Product](t, rr)
		require.Len(t, got, 1)
		assert.Equal(t, "Backpack", got[0].Title)
	})

	t.Run("catalog is public and issues no session", func(t *testing.T) {
		// given
		f := newFixture(t)

		// when
		rr := f.do(t, http.MethodGet, "/api/v1/categories", "", nil)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get(SessionHeader))
		assert.Len(t, decode[[]catalog.Category](t, rr), 2)
	})

	testCases := []struct {
		name         string
		target       string
		expectedCode int
		expectedBody ErrorResponse
	}{
		{name: "invalid id", target: "/api/v1/products/abc", expectedCode: http.StatusBadRequest, expectedBody: ErrorResponse{Error: "Invalid ID: abc"}},
		{name: "zero id", target: "/api/v1/products/0", expectedCode: http.StatusBadRequest, expectedBody: ErrorResponse{Error: "Invalid ID: 0"}},
		{name: "missing", target: "/api/v1/products/42", expectedCode: http.StatusNotFound, expectedBody: ErrorResponse{Error: "Product with ID 42 not found"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)

			// when
			rr := f.do(t, http.MethodGet, tc.target, "", nil)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.Equal(t, tc.expectedBody, decode[ErrorResponse](t, rr))
		})
	}

	t.Run("mutations need an admin", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := f.signedIn(t)

		// when
		rr := f.do(t, http.MethodDelete, "/api/v1/products/1", sid, nil)

		// then
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Contains(t, f.catalog.products, int64(1))
	})

	t.Run("admin creates product from multipart form", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := f.signedIn(t)
		f.users.profiles[alice.ID] = &user.Profile{UID: alice.ID, IsAdmin: true}

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("title", "Leather Jacket"))
		require.NoError(t, mw.WriteField("price", "199.99"))
		require.NoError(t, mw.WriteField("category", "clothing"))
		require.NoError(t, mw.WriteField("rating_rate", "4.5"))
		part, err := mw.CreateFormFile("image", "jacket.png")
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/products", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set(SessionHeader, sid)
		rr := httptest.NewRecorder()

		// when
		f.router.ServeHTTP(rr, req)

		// then
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.Equal(t, "/api/v1/products/1000", rr.Header().Get("Location"))
		require.NotNil(t, f.catalog.created)
		assert.Equal(t, "Leather Jacket", f.catalog.created.Title)
		assert.True(t, decimal.RequireFromString("199.99").Equal(f.catalog.created.Price))
		require.NotNil(t, f.catalog.created.Rating)
		assert.Equal(t, 4.5, f.catalog.created.Rating.Rate)
		assert.Equal(t, "jacket.png", f.catalog.createdImg.Name)
	})

	t.Run("admin rejects bad price", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := f.signedIn(t)
		f.users.profiles[alice.ID] = &user.Profile{UID: alice.ID, IsAdmin: true}
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("title", "Jacket"))
		require.NoError(t, mw.WriteField("price", "cheap"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set(SessionHeader, sid)
		rr := httptest.NewRecorder()

		// when
		f.router.ServeHTTP(rr, req)

		// then
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, ErrorResponse{Error: `invalid price "cheap"`}, decode[ErrorResponse](t, rr))
		assert.Nil(t, f.catalog.created)
	})

	t.Run("admin updates and deletes", func(t *testing.T) {
		// given
		f := newFixture(t)
		sid := f.signedIn(t)
		f.users.profiles[alice.ID] = &user.Profile{UID: alice.ID, IsAdmin: true}

		// when
		updated := f.do(t, http.MethodPut, "/api/v1/products/2", sid, map[string]string{"title": "Plain T-Shirt"})
		deleted := f.do(t, http.MethodDelete, "/api/v1/products/2", sid, nil)

		// then
		require.Equal(t, http.StatusOK, updated.Code)
		assert.Equal(t, "Plain T-Shirt", decode[catalog.Product](t, updated).Title)
		assert.Equal(t, http.StatusNoContent, deleted.Code)
		assert.NotContains(t, f.catalog.products, int64(2))
	})
}

func TestHandler_Auth(t *testing.T) {
	t.Run("wrong credentials", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.idp.signInErr = identity.ErrInvalidCredentials

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/auth/login", "", loginDto{Username: "alice", Password: "nope"})

		// then
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, ErrorResponse{Error: "Invalid credentials"}, decode[ErrorResponse](t, rr))
	})

	t.Run("provider down", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.idp.signInErr = identity.ErrIdPInteractionFailed

		// when
		rr := f.do(t, http.MethodPost, "/api/v1/auth/login", "", loginDto{Username: "alice", Password: "secret"})

		// then
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})

	t.Run("login, me, logout", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.idp.signedIn = alice
		sid := uuid.NewString()
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 1})

		// when
		login := f.do(t, http.MethodPost, "/api/v1/auth/login", sid, loginDto{Username: "alice", Password: "secret"})
		me := f.do(t, http.MethodGet, "/api/v1/auth/me", sid, nil)
		logout := f.do(t, http.MethodPost, "/api/v1/auth/logout", sid, nil)
		after := f.do(t, http.MethodGet, "/api/v1/auth/me", sid, nil)

		// then
		require.Equal(t, http.StatusOK, login.Code)
		assert.NotContains(t, login.Body.String(), "refresh_token")
		assert.Contains(t, f.users.profiles, alice.ID)
		assert.Equal(t, identityView{ID: alice.ID, Email: alice.Email, Name: alice.Name}, decode[identityView](t, me))
		assert.Equal(t, http.StatusNoContent, logout.Code)
		assert.True(t, f.idp.signedOut)
		assert.Equal(t, http.StatusUnauthorized, after.Code)
		cart := decode[cartResponse](t, f.do(t, http.MethodGet, "/api/v1/cart", sid, nil))
		assert.Len(t, cart.Items, 1)
	})

	registerCases := []struct {
		name         string
		body         any
		mockErr      error
		expectedCode int
	}{
		{name: "created", body: identity.RegisterDto{Email: "bob@example.com", Password: "secret1", Name: "Bob"}, expectedCode: http.StatusCreated},
		{name: "invalid email", body: identity.RegisterDto{Email: "bob", Password: "secret1", Name: "Bob"}, expectedCode: http.StatusBadRequest},
		{name: "exists", body: identity.RegisterDto{Email: "bob@example.com", Password: "secret1", Name: "Bob"}, mockErr: identity.ErrUserAlreadyExists, expectedCode: http.StatusConflict},
		{name: "provider down", body: identity.RegisterDto{Email: "bob@example.com", Password: "secret1", Name: "Bob"}, mockErr: identity.ErrIdPInteractionFailed, expectedCode: http.StatusBadGateway},
	}
	for _, tc := range registerCases {
		t.Run("register "+tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			f.idp.registerID = "u-bob"
			f.idp.registerErr = tc.mockErr

			// when
			rr := f.do(t, http.MethodPost, "/api/v1/auth/register", "", tc.body)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestHandler_Profile(t *testing.T) {
	// given
	f := newFixture(t)
	sid := f.signedIn(t)
	f.users.profiles[alice.ID] = &user.Profile{UID: alice.ID, Email: alice.Email, Name: "Alice"}

	// when
	rr := f.do(t, http.MethodPut, "/api/v1/profile", sid, map[string]string{"address": "1 Main St"})

	// then
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[user.Profile](t, rr)
	assert.Equal(t, "1 Main St", got.Address)
	assert.Equal(t, "Alice", got.Name)
}

func TestHandler_GetBlob(t *testing.T) {
	testCases := []struct {
		name         string
		target       string
		expectedCode int
		expectedType string
	}{
		{name: "served", target: "/blobs/product-images/1_a.png", expectedCode: http.StatusOK, expectedType: "image/png"},
		{name: "missing", target: "/blobs/product-images/2_b.png", expectedCode: http.StatusNotFound, expectedType: "application/json"},
		{name: "dot segment", target: "/blobs/product-images/./x.png", expectedCode: http.StatusBadRequest, expectedType: "application/json"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			f.blobs.blobs["product-images/1_a.png"] = blob.Blob{Path: "product-images/1_a.png", ContentType: "image/png", Data: []byte("png")}

			// when
			rr := f.do(t, http.MethodGet, tc.target, "", nil)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), tc.expectedType))
		})
	}
}

func TestHandler_HealthCheck(t *testing.T) {
	// given
	f := newFixture(t)

	// when
	rr := f.do(t, http.MethodGet, "/healthz", "", nil)

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestResolveIdentity_BearerToken(t *testing.T) {
	bobToken, err := jwt.NewBuilder().
		Subject("u-bob").
		Claim("email", "bob@example.com").
		Claim("preferred_username", "bob").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	noSubject, err := jwt.NewBuilder().Expiration(time.Now().Add(time.Hour)).Build()
	require.NoError(t, err)

	testCases := []struct {
		name         string
		authHeader   string
		setupMock    func(m *MockVerifier)
		expectedCode int
		expectedBody string
	}{
		{
			name:       "valid token",
			authHeader: "Bearer good",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "good").Return(bobToken, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"id":"u-bob","email":"bob@example.com","name":"bob"}`,
		},
		{
			name:         "no header",
			setupMock:    func(*MockVerifier) {},
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"error":"Sign in required","redirect":"/login"}`,
		},
		{
			name:         "not a bearer token",
			authHeader:   "Basic Ym9iOnNlY3JldA==",
			setupMock:    func(*MockVerifier) {},
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"error":"Bearer token is required"}`,
		},
		{
			name:       "verifier rejects token",
			authHeader: "Bearer expired",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "expired").Return(nil, errors.New("token expired"))
			},
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"error":"Invalid token"}`,
		},
		{
			name:       "token without subject",
			authHeader: "Bearer anonymous",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "anonymous").Return(noSubject, nil)
			},
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"error":"Invalid token"}`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			tc.setupMock(f.verifier)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rr := httptest.NewRecorder()

			// when
			f.router.ServeHTTP(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
			f.verifier.AssertExpectations(t)
		})
	}

	t.Run("session identity wins", func(t *testing.T) {
		// given
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set(SessionHeader, f.signedIn(t))
		req.Header.Set("Authorization", "Bearer good")
		rr := httptest.NewRecorder()

		// when
		f.router.ServeHTTP(rr, req)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, alice.ID, decode[identityView](t, rr).ID)
		f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("token identity is not persisted", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.verifier.On("Verify", mock.Anything, "good").Return(bobToken, nil)
		sid := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set(SessionHeader, sid)
		req.Header.Set("Authorization", "Bearer good")
		f.router.ServeHTTP(httptest.NewRecorder(), req)

		// when
		rr := f.do(t, http.MethodGet, "/api/v1/auth/me", sid, nil)

		// then
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, f.sessions.Get(context.Background(), sid).Identity())
	})

	t.Run("token holder can place an order", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.verifier.On("Verify", mock.Anything, "good").Return(bobToken, nil)
		sid := uuid.NewString()
		f.do(t, http.MethodPost, "/api/v1/cart/items", sid, map[string]int64{"product_id": 2})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		req.Header.Set(SessionHeader, sid)
		req.Header.Set("Authorization", "Bearer good")
		rr := httptest.NewRecorder()

		// when
		f.router.ServeHTTP(rr, req)

		// then
		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, 1, f.creator.calls)
	})
}
