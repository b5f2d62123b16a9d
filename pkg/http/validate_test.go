package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type pageQuery struct {
	Symbol string `query:"symbol" validate:"required"`
	N      int    `query:"n" default:"50" validate:"gte=1,lte=500"`
	Order  string `query:"order" default:"asc" validate:"oneof=asc desc"`
}

func bind(t *testing.T, target string) (*pageQuery, []ValidationError) {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	q := &pageQuery{}
	return q, BindQuery(c, q)
}

func TestBindQueryAppliesDefaults(t *testing.T) {
	q, errs := bind(t, "/?symbol=XAU")
	if errs != nil {
		t.Fatalf("errs = %+v", errs)
	}
	if q.Symbol != "XAU" || q.N != 50 || q.Order != "asc" {
		t.Fatalf("query = %+v", q)
	}
}

func TestBindQueryNamesQueryParameters(t *testing.T) {
	_, errs := bind(t, "/?n=900&order=up")
	if len(errs) != 3 {
		t.Fatalf("errs = %+v, want 3", errs)
	}
	byField := make(map[string]ValidationError, len(errs))
	for _, e := range errs {
		byField[e.Field] = e
	}
	if e := byField["symbol"]; e.Code != "ERR_REQUIRED" || e.Message != "symbol is required" {
		t.Fatalf("symbol error = %+v", e)
	}
	if e := byField["n"]; e.Code != "ERR_LTE" || e.Params["max"] != "500" {
		t.Fatalf("n error = %+v", e)
	}
	if e := byField["order"]; e.Message != "order must be one of: asc, desc" {
		t.Fatalf("order error = %+v", e)
	}
}

func TestBindQueryRejectsMalformedNumbers(t *testing.T) {
	_, errs := bind(t, "/?symbol=XAU&n=ten")
	if len(errs) != 1 || errs[0].Code != "ERR_BIND" {
		t.Fatalf("errs = %+v, want one bind error", errs)
	}
}
