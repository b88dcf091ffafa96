package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/categories"
	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/allocation"
	allocationhandlers "github.com/aristath/allocator/internal/modules/allocation/handlers"
	historicalhandlers "github.com/aristath/allocator/internal/modules/historical/handlers"
	"github.com/aristath/allocator/internal/modules/optimization"
)

var (
	windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
)

// chartHandler serves a deterministic daily series per symbol in the chart format
func chartHandler(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
	seed := 0
	for _, c := range symbol {
		seed += int(c)
	}

	var timestamps []int64
	var closes []float64
	for i, d := 0, windowStart; d.Before(windowEnd); i, d = i+1, d.AddDate(0, 0, 1) {
		timestamps = append(timestamps, d.Add(14*time.Hour+30*time.Minute).Unix())
		phase := float64(seed%17) / 3
		closes = append(closes, 100+float64(seed%40)+10*math.Sin(float64(i)*0.3+phase)+float64(i%(seed%5+2)))
	}

	payload := map[string]interface{}{
		"chart": map[string]interface{}{
			"result": []map[string]interface{}{{
				"meta":      map[string]interface{}{"symbol": symbol, "currency": "USD", "gmtoffset": -18000},
				"timestamp": timestamps,
				"indicators": map[string]interface{}{
					"quote":    []map[string]interface{}{{"close": closes}},
					"adjclose": []map[string]interface{}{{"adjclose": closes}},
				},
			}},
			"error": nil,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func newTestServer(t *testing.T, upstream http.HandlerFunc, fetchTimeout time.Duration, cacheDB *database.DB) *Server {
	t.Helper()
	return newTestServerWithRequestTimeout(t, upstream, fetchTimeout, 10*time.Second, cacheDB)
}

func newTestServerWithRequestTimeout(
	t *testing.T,
	upstream http.HandlerFunc,
	fetchTimeout, requestTimeout time.Duration,
	cacheDB *database.DB,
) *Server {
	t.Helper()
	log := zerolog.Nop()

	yahooServer := httptest.NewServer(upstream)
	t.Cleanup(yahooServer.Close)

	client := yahoo.NewClient(log, yahoo.WithBaseURL(yahooServer.URL), yahoo.WithRateLimit(1000), yahoo.WithMaxConcurrency(4))
	registry := categories.Default()
	service := allocation.NewService(
		registry,
		client,
		optimization.NewHRPOptimizer(optimization.HRPOptions{}, log),
		optimization.NewDiscreteAllocator(log),
		allocation.ServiceConfig{
			ReturnsKind:    optimization.ReturnsSimple,
			RiskFreeRate:   optimization.DefaultRiskFreeRate,
			WeightCutoff:   1e-4,
			WeightRounding: 5,
			FetchTimeout:   fetchTimeout,
			DefaultStart:   windowStart,
			DefaultEnd:     windowEnd,
		},
		log,
	)

	return New(Config{
		Log:               log,
		Port:              0,
		DevMode:           true,
		RequestTimeout:    requestTimeout,
		AllocationHandler: allocationhandlers.NewHandler(service, registry, log),
		HistoricalHandler: historicalhandlers.NewHandler(client, windowStart, windowEnd, fetchTimeout, log),
		CacheDB:           cacheDB,
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, chartHandler, 5*time.Second, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "allocator", resp.Service)
	assert.False(t, resp.PriceCache.Enabled)
	assert.NotEmpty(t, w.Header().Get("Content-Type"))
}

func TestHealth_WithCache(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := newTestServer(t, chartHandler, 5*time.Second, db)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.PriceCache.Enabled)
	assert.Equal(t, "ok", resp.PriceCache.Status)
}

func TestAllocatePortfolio_EndToEnd(t *testing.T) {
	s := newTestServer(t, chartHandler, 5*time.Second, nil)

	body := bytes.NewBufferString(`{"category": "Aggressive", "investment_amount": 100000}`)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/allocate_portfolio", body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Allocation-ID"))

	var resp allocationhandlers.AllocateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Aggressive", resp.Category)
	require.NotEmpty(t, resp.AssetNames)
	assert.Len(t, resp.AssetAllocation, len(resp.AssetNames))
	assert.Len(t, resp.ShareCounts, len(resp.AssetNames))

	sum := 0.0
	for _, w := range resp.AssetAllocation {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-3)

	invested := 0.0
	for i, n := range resp.ShareCounts {
		assert.GreaterOrEqual(t, n, 0)
		invested += float64(n) * resp.LatestPrices[i]
	}
	assert.GreaterOrEqual(t, resp.LeftoverCash, -1e-6)
	assert.LessOrEqual(t, invested, 100000+1e-6)
}

func TestAllocatePortfolio_UpstreamFailures(t *testing.T) {
	t.Run("timeout maps to 504", func(t *testing.T) {
		slow := func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}
		s := newTestServer(t, slow, 100*time.Millisecond, nil)

		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/allocate_portfolio", nil))

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		var resp allocationhandlers.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "upstream_timeout", resp.Code)
	})

	t.Run("request timeout maps to 504", func(t *testing.T) {
		slow := func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}
		s := newTestServerWithRequestTimeout(t, slow, 5*time.Second, 100*time.Millisecond, nil)

		for _, path := range []string{"/allocate_portfolio", "/api/historical/prices/AAPL"} {
			method := http.MethodGet
			if path == "/allocate_portfolio" {
				method = http.MethodPost
			}
			began := time.Now()
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))

			assert.Less(t, time.Since(began), 4*time.Second, path)
			assert.Equal(t, http.StatusGatewayTimeout, w.Code, path)
		}
	})

	t.Run("provider error maps to 502", func(t *testing.T) {
		failing := func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}
		s := newTestServer(t, failing, 5*time.Second, nil)

		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/allocate_portfolio", nil))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestCategoriesAndHistoricalRoutes(t *testing.T) {
	s := newTestServer(t, chartHandler, 5*time.Second, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Conservative")

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/historical/prices/AAPL?start=2024-01-01&end=2024-01-10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"symbol":"AAPL"`)
}

func TestCORSPreflightExposesAllocationID(t *testing.T) {
	s := newTestServer(t, chartHandler, 5*time.Second, nil)

	req := httptest.NewRequest(http.MethodOptions, "/allocate_portfolio", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	getReq := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	getReq.Header.Set("Origin", "http://example.com")
	s.Handler().ServeHTTP(w, getReq)
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Allocation-Id")
}
