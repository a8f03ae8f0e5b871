package analytics

import "github.com/agromarket/price-tracker/internal/model"

// Joiner decorates price records with market and commodity reference data.
// Missing referents resolve to placeholders instead of failing, because
// deleting a market or commodity leaves its price records in place.
type Joiner struct {
	markets     map[string]model.Market
	commodities map[string]model.Commodity
	traders     map[string]string
}

// NewJoiner indexes the reference data by ID.
func NewJoiner(markets []model.Market, commodities []model.Commodity) *Joiner {
	j := &Joiner{
		markets:     make(map[string]model.Market, len(markets)),
		commodities: make(map[string]model.Commodity, len(commodities)),
	}
	for _, m := range markets {
		j.markets[m.ID] = m
	}
	for _, c := range commodities {
		j.commodities[c.ID] = c
	}
	return j
}

// WithTraders adds trader display names keyed by trader ID.
func (j *Joiner) WithTraders(names map[string]string) *Joiner {
	j.traders = names
	return j
}

// Expand decorates one record. complete is false when the market or the
// commodity could not be found.
func (j *Joiner) Expand(p model.PriceRecord) (out model.PriceDataExpanded, complete bool) {
	out = model.PriceDataExpanded{
		PriceRecord:       p,
		MarketName:        model.UnknownName,
		CommodityName:     model.UnknownName,
		CommodityUnit:     model.UnknownUnit,
		CommodityCategory: model.DefaultCategory,
		TraderName:        j.traders[p.TraderID],
	}
	m, okMarket := j.markets[p.MarketID]
	if okMarket {
		out.MarketName = m.Name
	}
	c, okCommodity := j.commodities[p.CommodityID]
	if okCommodity {
		out.CommodityName = c.Name
		out.CommodityUnit = c.Unit
		if c.Category != "" {
			out.CommodityCategory = c.Category
		}
		out.CommodityImage = c.Image
	}
	return out, okMarket && okCommodity
}

// ExpandAll decorates every record and reports how many had a dangling
// reference.
func (j *Joiner) ExpandAll(records []model.PriceRecord) ([]model.PriceDataExpanded, int) {
	out := make([]model.PriceDataExpanded, 0, len(records))
	missing := 0
	for _, r := range records {
		e, complete := j.Expand(r)
		if !complete {
			missing++
		}
		out = append(out, e)
	}
	return out, missing
}
