// Package httpapi exposes the App Proxy, admin and health endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cod-order-service/internal/config"
	"cod-order-service/internal/intake"
	"cod-order-service/internal/modal"
	"cod-order-service/internal/store"
	"cod-order-service/internal/submit"
)

type Orders interface {
	Submit(ctx context.Context, r *http.Request) submit.Outcome
	RecordAbandonment(ctx context.Context, a intake.Abandonment) (modal.AbandonedCartRecord, error)
}

type Locations interface {
	ListWilayas(ctx context.Context) ([]modal.WilayaSummary, error)
	ListCommunes(ctx context.Context, wilayaCode string) ([]modal.Location, error)
}

type CartLister interface {
	ListAbandoned(ctx context.Context, shop, cursor string, limit int, onlyOpen bool) (store.CartPage, error)
}

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

type Deps struct {
	Server  config.ServerConfig
	Shopify config.ShopifyConfig

	Orders    Orders
	Locations Locations
	Carts     CartLister

	// Mode is the persistence mode reported by /healthz.
	Mode   string
	Checks map[string]Check

	// UI registers extra routes behind session-token auth.
	UI func(r chi.Router)

	Log *zap.Logger
}

type server struct {
	secret    string
	orders    Orders
	locations Locations
	carts     CartLister
	mode      string
	checks    map[string]Check
	log       *zap.Logger
}

// NewRouter builds the HTTP handler. Background work started here (the
// rate limiter sweep) stops when ctx is done.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &server{
		secret:    d.Shopify.APISecret,
		orders:    d.Orders,
		locations: d.Locations,
		carts:     d.Carts,
		mode:      d.Mode,
		checks:    d.Checks,
		log:       log.Named("http"),
	}

	trusted, err := d.Server.TrustedPrefixes()
	if err != nil {
		log.Warn("ignoring trusted_proxies", zap.Error(err))
		trusted = nil
	}
	limiter := newRateLimiter(d.Server.RateLimitRPS, d.Server.RateLimitBurst, trusted...)
	go limiter.sweep(ctx, time.Minute, 3*time.Minute)

	sessions := NewSessionVerifier(d.Shopify.APISecret, d.Shopify.APIKey)

	r := chi.NewRouter()
	r.Use(requestID, withServerDefaults, s.recoverer, s.accessLog)

	r.Get("/healthz", s.handleHealth)

	prefix := d.Server.ProxyPrefix
	if prefix == "" {
		prefix = "/proxy/cod"
	}
	r.Route(prefix, func(pr chi.Router) {
		pr.Use(limiter.Middleware, s.requireSignature)
		pr.Post("/submit", s.handleSubmit)
		pr.Post("/abandoned-cart", s.handleAbandonedCart)
		pr.Get("/locations", s.handleLocations)
	})

	r.Group(func(ar chi.Router) {
		ar.Use(sessions.Middleware)
		ar.Get("/admin/api/abandoned-carts", s.handleListCarts)
		if d.UI != nil {
			d.UI(ar)
		}
	})

	return r
}
