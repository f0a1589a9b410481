package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"giftshop/auth"
	"giftshop/metrics"
	"giftshop/model"
	"giftshop/service"
)

// Authenticator is the auth collaborator the HTTP layer needs.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (model.User, error)
	SignIn(ctx context.Context, email, password string) (auth.Token, error)
	SignOut(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries the handler's collaborators. Metrics and Limiter are optional.
type Config struct {
	Catalog service.Catalog
	Cart    service.Cart
	Orders  service.Orders
	Auth    Authenticator
	Store   Pinger
	Metrics *metrics.Registry
	Limiter *RateLimiter
	Log     logrus.FieldLogger
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only set it behind a proxy that overwrites those headers.
	TrustProxy bool
}

// Handler is the HTTP layer over the catalog, cart and order services.
type Handler struct {
	catalog service.Catalog
	cart    service.Cart
	orders  service.Orders
	auth    Authenticator
	store   Pinger
	metrics *metrics.Registry
	limiter *RateLimiter
	log     logrus.FieldLogger

	trustProxy bool
}

// NewHandler returns a Handler instance
func NewHandler(cfg Config) *Handler {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Handler{
		catalog: cfg.Catalog,
		cart:    cfg.Cart,
		orders:  cfg.Orders,
		auth:    cfg.Auth,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		limiter: cfg.Limiter,
		log:     cfg.Log,

		trustProxy: cfg.TrustProxy,
	}
}

// Router builds the full middleware chain around the registered routes.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	if h.metrics != nil {
		r.Use(h.metrics.InstrumentHandler)
		r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	}
	if h.limiter != nil {
		r.Use(h.limiter.Handler)
	}
	h.RegisterRoutes(r)

	var root http.Handler = r
	root = h.logRequests(root)
	root = middleware.Recoverer(root)
	if h.trustProxy {
		root = middleware.RealIP(root)
	}
	root = middleware.RequestID(root)
	return root
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods("GET")

	// Auth
	r.HandleFunc("/auth/signup", h.SignUp).Methods("POST")
	r.HandleFunc("/auth/login", h.Login).Methods("POST")
	r.Handle("/auth/logout", h.requireAuth(http.HandlerFunc(h.Logout))).Methods("POST")

	// Catalog
	r.HandleFunc("/categories", h.ListCategories).Methods("GET")
	r.HandleFunc("/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/products/{id}", h.GetProduct).Methods("GET")
	r.HandleFunc("/products/{id}/details", h.GetProductDetails).Methods("GET")

	// Cart
	cart := r.PathPrefix("/cart").Subrouter()
	cart.Use(h.requireAuth)
	cart.HandleFunc("/add", h.AddToCart).Methods("POST")
	cart.HandleFunc("/remove", h.RemoveFromCart).Methods("POST")
	cart.HandleFunc("/list", h.ListCart).Methods("GET")

	// Orders
	orders := r.PathPrefix("/orders").Subrouter()
	orders.Use(h.requireAuth)
	orders.HandleFunc("/purchase", h.Purchase).Methods("POST")
	orders.HandleFunc("/list", h.ListOrders).Methods("GET")
	orders.HandleFunc("/{productId}", h.GetOrder).Methods("GET")
}

// --- request / response shapes ---
type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type cartReq struct {
	ProductID string `json:"product_id"`
}

type cartResp struct {
	UserID string          `json:"user_id"`
	Items  []model.Product `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotInCart), errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server side failures are logged
// and their details kept out of the response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		msg = http.StatusText(code)
	}
	writeErr(w, code, msg)
}

// --- auth ---

type ctxKey struct{}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(ctxKey{}).(string)
	return uid
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requireAuth resolves the bearer token to a user id. Requests without a
// valid token never reach the wrapped handler.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeErr(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		uid, err := h.auth.CurrentUser(r.Context(), token)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logRequests writes one line per request.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

// --- Handler ---

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("health check failed")
		writeErr(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SignUp handles POST /auth/signup
// body: { "email": "...", "password": "..." }
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	tok, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), bearerToken(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// ListCategories handles GET /categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// ListProducts handles GET /products?category=...
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeErr(w, http.StatusBadRequest, "category is required")
		return
	}
	ps, err := h.catalog.ListProducts(r.Context(), category)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// GetProduct handles GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetProductDetails handles GET /products/{id}/details
func (h *Handler) GetProductDetails(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProductDetails(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddToCart handles POST /cart/add
// body: { "product_id": "..." }
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.cart.AddToCart(r.Context(), userID(r), req.ProductID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// RemoveFromCart handles POST /cart/remove
// body: { "product_id": "..." }
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.cart.RemoveFromCart(r.Context(), userID(r), req.ProductID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ListCart handles GET /cart/list
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	items, err := h.cart.ListCart(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	total := decimal.Zero
	for _, p := range items {
		total = total.Add(p.Price)
	}
	writeJSON(w, http.StatusOK, cartResp{UserID: uid, Items: items, Total: total})
}

// Purchase handles POST /orders/purchase
// body: { "product_id": "..." }
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	ord, err := h.orders.Purchase(r.Context(), userID(r), req.ProductID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ord)
}

// ListOrders handles GET /orders/list
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListOrders(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetOrder handles GET /orders/{productId}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ord, err := h.orders.GetOrder(r.Context(), userID(r), mux.Vars(r)["productId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}
