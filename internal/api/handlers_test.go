package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svanlent/seller-scraper/internal/cache"
	"github.com/svanlent/seller-scraper/internal/fetcher"
	"github.com/svanlent/seller-scraper/internal/metrics"
	"github.com/svanlent/seller-scraper/internal/models"
	"github.com/svanlent/seller-scraper/internal/parser"
	"github.com/svanlent/seller-scraper/internal/scraper"
)

type routedResponse struct {
	body string
	err  error
}

type routedFetcher struct {
	responses map[int64]routedResponse
}

func (f *routedFetcher) FetchProfile(_ context.Context, sellerID int64) (*fetcher.PageResult, error) {
	resp, ok := f.responses[sellerID]
	if !ok {
		return nil, fetcher.ErrConnection{Err: errors.New("unscripted seller id")}
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &fetcher.PageResult{StatusCode: http.StatusOK, Body: resp.body}, nil
}

type stubOutbox struct {
	pending    int64
	deadLetter int64
	err        error
}

func (s *stubOutbox) GetPendingCount(context.Context) (int64, error) {
	return s.pending, s.err
}

func (s *stubOutbox) GetDeadLetterCount(context.Context) (int64, error) {
	return s.deadLetter, s.err
}

func sellerPage(name string) string {
	return `<html><body>
<h1 data-test="seller-name">` + name + `</h1>
<div aria-label="4.5 van de 5 sterren uit 1503 reviews"></div>
</body></html>`
}

type apiFixture struct {
	fetcher *routedFetcher
	router  http.Handler
}

func newAPIFixture(t *testing.T, m *metrics.Metrics, outbox OutboxHealth) *apiFixture {
	t.Helper()

	f := &routedFetcher{responses: make(map[int64]routedResponse)}
	service, err := scraper.NewService(scraper.Deps{
		Fetcher: f,
		Parser:  parser.NewSellerParser(parser.DefaultOptions()),
		Cache:   cache.New(16, time.Minute, m),
		Metrics: m,
	}, zerolog.Nop())
	require.NoError(t, err)

	handlers := NewHandlers(service, outbox, zerolog.Nop())
	return &apiFixture{fetcher: f, router: NewRouter(handlers, m)}
}

func (fx *apiFixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestGetSellerSuccess(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)
	fx.fetcher.responses[90001234] = routedResponse{body: sellerPage("TechVoordeel B.V.")}

	rec := fx.get("/api/v1/sellers/90001234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var record models.SellerRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&record))
	assert.Equal(t, int64(90001234), record.SellerID)
	assert.Equal(t, "TechVoordeel B.V.", record.BusinessName)
	require.NotNil(t, record.Rating)
	assert.InDelta(t, 4.5, *record.Rating, 0.001)
	require.NotNil(t, record.ReviewCount)
	assert.Equal(t, 1503, *record.ReviewCount)
}

func TestGetSellerNotFound(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)
	fx.fetcher.responses[5] = routedResponse{err: fetcher.ErrNotFound{Err: errors.New("http status 404")}}

	rec := fx.get("/api/v1/sellers/5")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "not_found", body["kind"])
}

func TestGetSellerEmptyProfile(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)
	fx.fetcher.responses[6] = routedResponse{body: "<html><body></body></html>"}

	rec := fx.get("/api/v1/sellers/6")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "empty", decodeError(t, rec)["kind"])
}

func TestGetSellerTimeout(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)
	fx.fetcher.responses[7] = routedResponse{err: fetcher.ErrTimeout{Err: context.DeadlineExceeded}}

	rec := fx.get("/api/v1/sellers/7")
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "timeout", decodeError(t, rec)["kind"])
}

func TestGetSellerUpstreamFailure(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)
	fx.fetcher.responses[8] = routedResponse{err: fetcher.ErrConnection{Err: errors.New("connection reset")}}

	rec := fx.get("/api/v1/sellers/8")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "fetch_failed", decodeError(t, rec)["kind"])
}

func TestGetSellerRejectsNonNumericID(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)

	rec := fx.get("/api/v1/sellers/abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeError(t, rec)["kind"])
}

func TestGetSellersBatch(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)
	fx.fetcher.responses[1] = routedResponse{body: sellerPage("Eerste")}
	fx.fetcher.responses[2] = routedResponse{err: fetcher.ErrNotFound{Err: errors.New("http status 404")}}
	fx.fetcher.responses[3] = routedResponse{body: sellerPage("Derde")}

	rec := fx.get("/api/v1/sellers?ids=1,2,3")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Items, 3)

	assert.Equal(t, int64(1), resp.Items[0].SellerID)
	assert.Equal(t, "ok", resp.Items[0].Status)
	require.NotNil(t, resp.Items[0].Record)
	assert.Equal(t, "Eerste", resp.Items[0].Record.BusinessName)

	assert.Equal(t, int64(2), resp.Items[1].SellerID)
	assert.Equal(t, "not_found", resp.Items[1].Status)
	assert.Nil(t, resp.Items[1].Record)
	assert.NotEmpty(t, resp.Items[1].Error)

	assert.Equal(t, int64(3), resp.Items[2].SellerID)
	assert.Equal(t, "ok", resp.Items[2].Status)
}

func TestGetSellersBatchValidation(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)

	tests := []struct {
		name string
		path string
		kind string
	}{
		{"missing ids", "/api/v1/sellers", "invalid_request"},
		{"too many ids", "/api/v1/sellers?ids=1,2,3,4,5,6", "invalid_request"},
		{"non-numeric id", "/api/v1/sellers?ids=1,x", "invalid_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.get(tt.path)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.kind, decodeError(t, rec)["kind"])
		})
	}
}

func TestHealthWithoutOutbox(t *testing.T) {
	fx := newAPIFixture(t, nil, nil)

	rec := fx.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.NotContains(t, health, "outbox")
}

func TestHealthReportsOutboxBacklog(t *testing.T) {
	fx := newAPIFixture(t, nil, &stubOutbox{pending: 3, deadLetter: 0})

	rec := fx.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status string `json:"status"`
		Outbox struct {
			Pending    int64 `json:"pending"`
			DeadLetter int64 `json:"dead_letter"`
		} `json:"outbox"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, int64(3), health.Outbox.Pending)
}

func TestHealthDegradesOnDeadLetters(t *testing.T) {
	fx := newAPIFixture(t, nil, &stubOutbox{pending: 0, deadLetter: 250})

	rec := fx.get("/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "error", health["status"])
}

func TestHealthSurfacesOutboxQueryFailure(t *testing.T) {
	fx := newAPIFixture(t, nil, &stubOutbox{err: errors.New("connection refused")})

	rec := fx.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Outbox  struct {
			Error string `json:"error"`
		} `json:"outbox"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "warning", health.Status)
	assert.Equal(t, "outbox backlog unavailable", health.Message)
	assert.Contains(t, health.Outbox.Error, "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewMetrics()
	fx := newAPIFixture(t, m, nil)
	fx.fetcher.responses[42] = routedResponse{body: sellerPage("Meetbaar B.V.")}

	rec := fx.get("/api/v1/sellers/42")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seller_scraper_lookups_total")
}
