package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/service/ratelimit"
	"MarketBoard/internal/services/timeseries"
	xhttp "MarketBoard/pkg/http"
	applogger "MarketBoard/pkg/logger"
)

// Dashboard is the read side of the aggregator.
type Dashboard interface {
	GetHealthStatus() models.HealthStatus
	Instruments() []models.Instrument
	Latest(symbol string) (models.MarketDataPoint, bool)
	Series(symbol string, n int) ([]timeseries.Sample, error)
	Stats(symbol string, window int) (timeseries.Stats, [2]float64, error)
	ActiveSignals() []models.MarketSignal
	HomeCurrency() string
}

// Rotation is the read side of the rotation scheduler.
type Rotation interface {
	Latest(groupID string) ([]string, bool)
	Items(groupID string) []models.RotationItem
}

// StatusHandler serves the read-only status API.
type StatusHandler struct {
	logger   *applogger.Logger
	board    Dashboard
	rotation Rotation
	rl       *ratelimit.Limiter
	burst    float64
	perSec   float64
}

// StatusOption configures StatusHandler.
type StatusOption func(*StatusHandler)

// WithClientRateLimit limits requests per remote address.
func WithClientRateLimit(rl *ratelimit.Limiter, burst, perSec float64) StatusOption {
	return func(h *StatusHandler) {
		h.rl = rl
		h.burst = burst
		h.perSec = perSec
	}
}

func NewStatusHandler(logger *applogger.Logger, board Dashboard, rotation Rotation, opts ...StatusOption) *StatusHandler {
	h := &StatusHandler{logger: logger.With("api"), board: board, rotation: rotation}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.limit)
	g.GET("/health", h.Health)
	g.GET("/quotes", h.Quotes)
	g.GET("/quotes/:symbol", h.Quote)
	g.GET("/series", h.Series)
	g.GET("/signals", h.Signals)
	g.GET("/rotation/:group", h.Rotation)
}

func (h *StatusHandler) limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl != nil && !h.rl.Allow(c.RealIP(), h.burst, h.perSec) {
			return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
		}
		return next(c)
	}
}

// Health answers 503 when every source is in error so probes can act on it.
func (h *StatusHandler) Health(c echo.Context) error {
	st := h.board.GetHealthStatus()
	if st.Overall == models.HealthError {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, st)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *StatusHandler) Quotes(c echo.Context) error {
	home := h.board.HomeCurrency()
	insts := h.board.Instruments()
	out := make([]QuoteView, 0, len(insts))
	for _, inst := range insts {
		out = append(out, h.view(inst, home))
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *StatusHandler) Quote(c echo.Context) error {
	symbol := c.Param("symbol")
	for _, inst := range h.board.Instruments() {
		if strings.EqualFold(inst.Symbol, symbol) {
			return xhttp.SuccessResponse(c, h.view(inst, h.board.HomeCurrency()))
		}
	}
	return xhttp.AppErrorResponse(c, xhttp.NotFoundError("unknown symbol").WithParam("symbol", symbol))
}

func (h *StatusHandler) view(inst models.Instrument, home string) QuoteView {
	if p, ok := h.board.Latest(inst.Symbol); ok {
		return quoteView(inst, home, &p)
	}
	return quoteView(inst, home, nil)
}

func (h *StatusHandler) Series(c echo.Context) error {
	req := &SeriesRequest{}
	if verrs := xhttp.BindQuery(c, req); len(verrs) > 0 {
		return xhttp.BadRequestResponse(c, verrs)
	}

	samples, err := h.board.Series(req.Symbol, req.N)
	if err != nil {
		return h.lookupError(c, req.Symbol, err)
	}
	stats, mm, err := h.board.Stats(req.Symbol, req.Window)
	if err != nil {
		return h.lookupError(c, req.Symbol, err)
	}
	if samples == nil {
		samples = []timeseries.Sample{}
	}
	return xhttp.SuccessResponse(c, SeriesView{
		Symbol:       req.Symbol,
		HomeCurrency: h.board.HomeCurrency(),
		Samples:      samples,
		Stats:        stats,
		Min:          mm[0],
		Max:          mm[1],
	})
}

func (h *StatusHandler) lookupError(c echo.Context, symbol string, err error) error {
	if errors.Is(err, models.ErrUnknownSymbol) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("unknown symbol").WithParam("symbol", symbol))
	}
	h.logger.Error("series lookup failed", applogger.Symbol(symbol), applogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("series unavailable").WithError(err))
}

func (h *StatusHandler) Signals(c echo.Context) error {
	sigs := h.board.ActiveSignals()
	if sigs == nil {
		sigs = []models.MarketSignal{}
	}
	return xhttp.SuccessResponse(c, sigs)
}

// Rotation returns the latest assignment with item state, in slot order.
func (h *StatusHandler) Rotation(c echo.Context) error {
	group := c.Param("group")
	if h.rotation == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("unknown rotation group").WithParam("group", group))
	}
	items := h.rotation.Items(group)
	if items == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("unknown rotation group").WithParam("group", group))
	}

	byID := make(map[string]models.RotationItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	view := RotationView{Group: group, Slots: []models.RotationItem{}}
	if ids, ok := h.rotation.Latest(group); ok {
		for _, id := range ids {
			if it, ok := byID[id]; ok {
				view.Slots = append(view.Slots, it)
			}
		}
	}
	return xhttp.SuccessResponse(c, view)
}
