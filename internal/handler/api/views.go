package api

import (
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/services/timeseries"
)

// QuoteView is the API form of a point. Price is null when unavailable.
type QuoteView struct {
	Symbol           string          `json:"symbol"`
	Category         models.Category `json:"category"`
	Price            *float64        `json:"price"`
	HomeCurrency     string          `json:"home_currency"`
	RawPrice         *float64        `json:"raw_price,omitempty"`
	RawCurrency      string          `json:"raw_currency,omitempty"`
	Available        bool            `json:"available"`
	Timestamp        *time.Time      `json:"timestamp,omitempty"`
	Source           string          `json:"source"`
	Change24h        *float64        `json:"change_24h,omitempty"`
	ChangePercent24h *float64        `json:"change_percent_24h,omitempty"`
	Volume24h        *float64        `json:"volume_24h,omitempty"`
	High24h          *float64        `json:"high_24h,omitempty"`
	Low24h           *float64        `json:"low_24h,omitempty"`
}

func quoteView(inst models.Instrument, home string, p *models.MarketDataPoint) QuoteView {
	v := QuoteView{
		Symbol:       inst.Symbol,
		Category:     inst.Category,
		HomeCurrency: home,
		Source:       inst.Source,
	}
	if p == nil {
		return v
	}
	raw, ts := p.RawPrice, p.Timestamp
	v.Price = p.DisplayPrice()
	v.Available = v.Price != nil
	v.RawPrice = &raw
	v.RawCurrency = p.RawCurrency
	v.Timestamp = &ts
	v.Source = p.Source
	v.Change24h = p.Change24h
	v.ChangePercent24h = p.ChangePercent24h
	v.Volume24h = p.Volume24h
	v.High24h = p.High24h
	v.Low24h = p.Low24h
	return v
}

// SeriesRequest is bound from the query string.
type SeriesRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	N      int    `query:"n" default:"100" validate:"gte=1,lte=5000"`
	Window int    `query:"window" default:"20" validate:"gte=2,lte=5000"`
}

// SeriesView is the recent history of one symbol.
type SeriesView struct {
	Symbol       string              `json:"symbol"`
	HomeCurrency string              `json:"home_currency"`
	Samples      []timeseries.Sample `json:"samples"`
	Stats        timeseries.Stats    `json:"stats"`
	Min          float64             `json:"min"`
	Max          float64             `json:"max"`
}

// RotationView lists a group's current assignment in slot order.
type RotationView struct {
	Group string                `json:"group"`
	Slots []models.RotationItem `json:"slots"`
}
