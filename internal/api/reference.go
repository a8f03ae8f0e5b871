package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agromarket/price-tracker/internal/model"
)

// MarketRequest is the JSON body for creating or updating a market.
type MarketRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// CommodityRequest is the JSON body for creating or updating a commodity.
type CommodityRequest struct {
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Category string `json:"category"`
	Image    string `json:"image"` // http(s) URL or data URI
}

// CategoryRequest is the JSON body for POST /categories.
type CategoryRequest struct {
	Name string `json:"name"`
}

// --- Markets ---

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.data.ListMarkets(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.data.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetMarketPrices handles GET /api/v1/markets/{marketID}/prices
func (s *Service) GetMarketPrices(w http.ResponseWriter, r *http.Request) {
	view, err := s.data.MarketPrices(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req MarketRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.data.AddMarket(r.Context(), model.Market{Name: req.Name, Location: req.Location})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	slog.Info("market created", "id", m.ID, "name", m.Name)
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMarket handles PUT /api/v1/markets/{marketID}
func (s *Service) UpdateMarket(w http.ResponseWriter, r *http.Request) {
	var req MarketRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.data.UpdateMarket(r.Context(), model.Market{
		ID:       chi.URLParam(r, "marketID"),
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMarket handles DELETE /api/v1/markets/{marketID}
func (s *Service) DeleteMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "marketID")
	if err := s.data.DeleteMarket(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	slog.Info("market deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Commodities ---

// ListCommodities handles GET /api/v1/commodities
func (s *Service) ListCommodities(w http.ResponseWriter, r *http.Request) {
	out, err := s.data.ListCommodities(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []model.Commodity{}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCommodity handles GET /api/v1/commodities/{commodityID}
func (s *Service) GetCommodity(w http.ResponseWriter, r *http.Request) {
	c, err := s.data.GetCommodity(r.Context(), chi.URLParam(r, "commodityID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (req CommodityRequest) commodity(id string) model.Commodity {
	return model.Commodity{ID: id, Name: req.Name, Unit: req.Unit, Category: req.Category, Image: req.Image}
}

// CreateCommodity handles POST /api/v1/commodities
func (s *Service) CreateCommodity(w http.ResponseWriter, r *http.Request) {
	var req CommodityRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.data.AddCommodity(r.Context(), req.commodity(""))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	slog.Info("commodity created", "id", c.ID, "name", c.Name, "category", c.Category)
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCommodity handles PUT /api/v1/commodities/{commodityID}
func (s *Service) UpdateCommodity(w http.ResponseWriter, r *http.Request) {
	var req CommodityRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.data.UpdateCommodity(r.Context(), req.commodity(chi.URLParam(r, "commodityID")))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCommodity handles DELETE /api/v1/commodities/{commodityID}
func (s *Service) DeleteCommodity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "commodityID")
	if err := s.data.DeleteCommodity(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	slog.Info("commodity deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Categories ---

// ListCategories handles GET /api/v1/categories
func (s *Service) ListCategories(w http.ResponseWriter, r *http.Request) {
	out, err := s.data.ListCategories(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []model.Category{}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateCategory handles POST /api/v1/categories
func (s *Service) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.data.AddCategory(r.Context(), req.Name)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// DeleteCategory handles DELETE /api/v1/categories/{categoryID}
func (s *Service) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.data.DeleteCategory(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
