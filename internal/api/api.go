// Package api provides the HTTP handlers for the price tracker: reference
// data management, price submission and listing, derived analytics views,
// authentication and the WebSocket change feed.
//
// All monetary values use shopspring/decimal, never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agromarket/price-tracker/internal/facade"
	"github.com/agromarket/price-tracker/internal/identity"
	"github.com/agromarket/price-tracker/internal/media"
	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/session"
	"github.com/agromarket/price-tracker/internal/store"
)

// ViewHeader names a client view. A newer GET with the same value cancels
// the older one still in flight.
const ViewHeader = "X-View-ID"

// statusSuperseded is reported for a read cancelled by a newer one.
const statusSuperseded = 499

// Service holds the HTTP handlers.
type Service struct {
	data          *facade.Service
	sessions      *session.Manager
	supersede     *facade.Superseder
	hub           *WSHub
	secureCookies bool
}

// Option configures a Service.
type Option func(*Service)

// WithHub mounts the WebSocket change feed.
func WithHub(h *WSHub) Option { return func(s *Service) { s.hub = h } }

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies() Option { return func(s *Service) { s.secureCookies = true } }

// NewService creates the HTTP service.
func NewService(data *facade.Service, sessions *session.Manager, opts ...Option) *Service {
	s := &Service{
		data:      data,
		sessions:  sessions,
		supersede: facade.NewSuperseder(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes mounts every /api/v1 route on r.
func (s *Service) Routes(r chi.Router) {
	r.Use(s.authenticate)
	r.Use(s.supersedeReads)

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.Post("/logout", s.Logout)
		r.Get("/me", s.Me)
	})

	r.Route("/markets", func(r chi.Router) {
		r.Get("/", s.ListMarkets)
		r.With(requireRole(model.Role.CanManageReference)).Post("/", s.CreateMarket)
		r.Get("/{marketID}", s.GetMarket)
		r.Get("/{marketID}/prices", s.GetMarketPrices)
		r.With(requireRole(model.Role.CanManageReference)).Put("/{marketID}", s.UpdateMarket)
		r.With(requireRole(model.Role.CanManageReference)).Delete("/{marketID}", s.DeleteMarket)
	})

	r.Route("/commodities", func(r chi.Router) {
		r.Get("/", s.ListCommodities)
		r.With(requireRole(model.Role.CanManageReference)).Post("/", s.CreateCommodity)
		r.Get("/{commodityID}", s.GetCommodity)
		r.With(requireRole(model.Role.CanManageReference)).Put("/{commodityID}", s.UpdateCommodity)
		r.With(requireRole(model.Role.CanManageReference)).Delete("/{commodityID}", s.DeleteCommodity)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", s.ListCategories)
		r.With(requireRole(model.Role.CanManageReference)).Post("/", s.CreateCategory)
		r.With(requireRole(model.Role.CanManageReference)).Delete("/{categoryID}", s.DeleteCategory)
	})

	r.Route("/prices", func(r chi.Router) {
		r.Get("/latest", s.ListLatestPrices)
		r.Get("/trending", s.GetTrendingPrices)
		r.Get("/history", s.GetHistoricalPrices)
		r.With(requireRole(model.Role.CanSubmitPrices)).Post("/", s.SubmitPrice)
		r.With(requireRole(model.Role.CanSubmitPrices)).Put("/{priceID}", s.UpdatePrice)
	})

	r.Get("/traders/{traderID}/history", s.GetTraderHistory)
	r.Get("/traders/{traderID}/performance", s.GetTraderPerformance)

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/commodities", s.GetCommodityStats)
		r.Get("/heatmap", s.GetHeatmap)
		r.Post("/basket", s.PriceBasket)
		r.Get("/catalog", s.GetCatalogSummary)
	})

	r.Get("/reports/latest.pdf", s.LatestReport)

	r.Route("/farmgate", func(r chi.Router) {
		r.Get("/", s.ListFarmgatePrices)
		r.With(requireRole(model.Role.CanSubmitFarmgate)).Post("/", s.SubmitFarmgatePrice)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(requireRole(nil))
		r.Get("/", s.ListNotifications)
		r.Post("/{notificationID}/read", s.MarkNotificationRead)
	})
}

// supersedeReads ties GETs carrying ViewHeader to the Superseder. Views
// are scoped to the caller: a read only supersedes the same caller's
// earlier read of the same view.
func (s *Service) supersedeReads(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view := r.Header.Get(ViewHeader)
		if r.Method != http.MethodGet || view == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx, done := s.supersede.Begin(r.Context(), viewKey(r, view))
		defer done()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// viewKey identifies a caller's view: the principal when signed in,
// otherwise the client address without its port.
func viewKey(r *http.Request, view string) string {
	if p := principalFrom(r.Context()); p != nil {
		return "user:" + p.Identity.ID + ":" + view
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host + ":" + view
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps err onto a status code and writes it.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var se *session.Error
	switch {
	case errors.As(err, &se):
		switch se.Kind {
		case session.KindInvalidCredentials:
			writeError(w, "invalid email or password", http.StatusUnauthorized)
		case session.KindAlreadyRegistered:
			writeError(w, "an account with this email already exists", http.StatusConflict)
		case session.KindRateLimited:
			w.Header().Set("Retry-After", "60")
			writeError(w, "too many attempts, try again later", http.StatusTooManyRequests)
		case session.KindInvalidInput:
			writeError(w, se.Err.Error(), http.StatusBadRequest)
		default:
			slog.Error("session failure", "path", r.URL.Path, "err", err)
			w.Header().Set("Retry-After", "1")
			writeError(w, "authentication service unavailable", http.StatusServiceUnavailable)
		}
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		writeError(w, "already exists", http.StatusConflict)
	case model.IsValidation(err), media.IsInvalid(err), errors.Is(err, identity.ErrInvalidInput):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, facade.ErrTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, "request timed out, please retry", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		writeError(w, "request superseded", statusSuperseded)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// intQuery parses an optional positive integer query parameter.
func intQuery(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
