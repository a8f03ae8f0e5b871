package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

// SubmitPriceRequest is the JSON body for POST /prices.
type SubmitPriceRequest struct {
	MarketID    string          `json:"market_id"`
	CommodityID string          `json:"commodity_id"`
	Price       decimal.Decimal `json:"price"`
}

// UpdatePriceRequest is the JSON body for PUT /prices/{priceID}.
type UpdatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// FarmgateRequest is the JSON body for POST /farmgate.
type FarmgateRequest struct {
	CommodityID   string          `json:"commodity_id"`
	Location      string          `json:"location"`
	FarmGatePrice decimal.Decimal `json:"farm_gate_price"`
	TransportCost decimal.Decimal `json:"transport_cost"`
}

// ListLatestPrices handles GET /api/v1/prices/latest?q=
func (s *Service) ListLatestPrices(w http.ResponseWriter, r *http.Request) {
	var (
		out []model.PriceDataExpanded
		err error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		out, err = s.data.SearchLatest(r.Context(), q)
	} else {
		out, err = s.data.ListLatestPrices(r.Context())
	}
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []model.PriceDataExpanded{}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTrendingPrices handles GET /api/v1/prices/trending?days=
func (s *Service) GetTrendingPrices(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(r, "days")
	if !ok {
		writeError(w, "days must be a non-negative integer", http.StatusBadRequest)
		return
	}
	out, err := s.data.GetTrendingPrices(r.Context(), days)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []model.TrendingPrice{}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetHistoricalPrices handles
// GET /api/v1/prices/history?commodity_id=&market_id=&days=
func (s *Service) GetHistoricalPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	commodityID, marketID := q.Get("commodity_id"), q.Get("market_id")
	if commodityID == "" || marketID == "" {
		writeError(w, "commodity_id and market_id are required", http.StatusBadRequest)
		return
	}
	days, ok := intQuery(r, "days")
	if !ok {
		writeError(w, "days must be a non-negative integer", http.StatusBadRequest)
		return
	}
	out, err := s.data.GetHistoricalPrices(r.Context(), commodityID, marketID, days)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []model.PriceDataExpanded{}
	}
	writeJSON(w, http.StatusOK, out)
}

// SubmitPrice handles POST /api/v1/prices. The submitting trader is the
// caller.
func (s *Service) SubmitPrice(w http.ResponseWriter, r *http.Request) {
	var req SubmitPriceRequest
	if !decode(w, r, &req) {
		return
	}
	p := principalFrom(r.Context())
	rec, err := s.data.SubmitPrice(r.Context(), req.MarketID, req.CommodityID, p.Identity.ID, req.Price)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// UpdatePrice handles PUT /api/v1/prices/{priceID}. Traders may edit only
// their own submissions; admins may edit any.
func (s *Service) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req UpdatePriceRequest
	if !decode(w, r, &req) {
		return
	}
	p := principalFrom(r.Context())
	id := chi.URLParam(r, "priceID")

	if p.Role != model.RoleAdmin {
		existing, err := s.data.GetPrice(r.Context(), id)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		if existing.TraderID != p.Identity.ID {
			writeError(w, "cannot edit another trader's price", http.StatusForbidden)
			return
		}
	}

	rec, err := s.data.UpdatePrice(r.Context(), p.Identity.ID, id, req.Price)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetTraderHistory handles GET /api/v1/traders/{traderID}/history
func (s *Service) GetTraderHistory(w http.ResponseWriter, r *http.Request) {
	out, err := s.data.GetTraderHistory(r.Context(), chi.URLParam(r, "traderID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []model.PriceDataExpanded{}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTraderPerformance handles
// GET /api/v1/traders/{traderID}/performance?commodity_id=
func (s *Service) GetTraderPerformance(w http.ResponseWriter, r *http.Request) {
	commodityID := r.URL.Query().Get("commodity_id")
	if commodityID == "" {
		writeError(w, "commodity_id is required", http.StatusBadRequest)
		return
	}
	out, err := s.data.TraderPerformance(r.Context(), chi.URLParam(r, "traderID"), commodityID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Farm-gate ---

// ListFarmgatePrices handles GET /api/v1/farmgate?commodity_id=
func (s *Service) ListFarmgatePrices(w http.ResponseWriter, r *http.Request) {
	out, err := s.data.ListFarmgatePrices(r.Context(), r.URL.Query().Get("commodity_id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []model.FarmgateRecord{}
	}
	writeJSON(w, http.StatusOK, out)
}

// SubmitFarmgatePrice handles POST /api/v1/farmgate
func (s *Service) SubmitFarmgatePrice(w http.ResponseWriter, r *http.Request) {
	var req FarmgateRequest
	if !decode(w, r, &req) {
		return
	}
	p := principalFrom(r.Context())
	rec, err := s.data.SubmitFarmgatePrice(r.Context(), model.FarmgateRecord{
		CommodityID:   req.CommodityID,
		FarmerID:      p.Identity.ID,
		Location:      req.Location,
		FarmGatePrice: req.FarmGatePrice,
		TransportCost: req.TransportCost,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// --- Notifications ---

// ListNotifications handles GET /api/v1/notifications
func (s *Service) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	out, err := s.data.GetNotifications(r.Context(), p.Identity.ID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, out)
}

// MarkNotificationRead handles POST /api/v1/notifications/{notificationID}/read
func (s *Service) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := s.data.MarkNotificationRead(r.Context(), p.Identity.ID, chi.URLParam(r, "notificationID")); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
