package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/agromarket/price-tracker/internal/analytics"
	"github.com/agromarket/price-tracker/internal/report"
)

// BasketRequest is the JSON body for POST /analytics/basket.
type BasketRequest struct {
	Items []analytics.BasketItem `json:"items"`
}

// GetCommodityStats handles GET /api/v1/analytics/commodities
func (s *Service) GetCommodityStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.data.CommodityStats(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if out == nil {
		out = []analytics.CommodityStats{}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetHeatmap handles GET /api/v1/analytics/heatmap?commodity_id=
func (s *Service) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	commodityID := r.URL.Query().Get("commodity_id")
	if commodityID == "" {
		writeError(w, "commodity_id is required", http.StatusBadRequest)
		return
	}
	out, err := s.data.Heatmap(r.Context(), commodityID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// PriceBasket handles POST /api/v1/analytics/basket
func (s *Service) PriceBasket(w http.ResponseWriter, r *http.Request) {
	var req BasketRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.data.Basket(r.Context(), req.Items)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCatalogSummary handles GET /api/v1/analytics/catalog
func (s *Service) GetCatalogSummary(w http.ResponseWriter, r *http.Request) {
	out, err := s.data.CatalogSummary(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// LatestReport handles GET /api/v1/reports/latest.pdf
func (s *Service) LatestReport(w http.ResponseWriter, r *http.Request) {
	latest, err := s.data.ListLatestPrices(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.LatestSheet(&buf, "Latest market prices", time.Now().UTC(), analytics.GroupByCategory(latest)); err != nil {
		slog.Error("render report", "err", err)
		writeError(w, "report rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="latest-prices.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
