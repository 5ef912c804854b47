package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketlens/resolver-api/internal/breaker"
	"github.com/marketlens/resolver-api/internal/cache"
	"github.com/marketlens/resolver-api/internal/providers"
	"github.com/marketlens/resolver-api/internal/ratelimit"
	"github.com/marketlens/resolver-api/internal/resolution"
	"github.com/marketlens/resolver-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	minQueries    = 50
	maxQueries    = 300
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

// queries mixes the identifier kinds the classifier distinguishes
var queries = []string{
	"AAPL", "MSFT", "GOOGL", "TSLA", "BRK.B",
	"US0378331005", "US5949181045", "US88160R1014",
	"601398", "005930",
	"apple", "microsoft", "tesla motors",
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the resolution API
type simulationClient struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"search": {name: "Search"},
			"name":   {name: "Search By Name"},
			"stats":  {name: "Stats"},
		},
	}
}

type searchResult struct {
	Symbol          string  `json:"symbol"`
	DataSource      string  `json:"data_source"`
	CacheAgeSeconds float64 `json:"cache_age_seconds"`
}

// search issues a point lookup and reports the resolved symbol plus whether
// the answer came from cache.
func (sc *simulationClient) search(query string) (*searchResult, error) {
	start := time.Now()
	route := "search"
	endpoint := fmt.Sprintf("%s/api/v1/search?q=%s", sc.baseURL, query)
	if strings.Contains(query, " ") || query != strings.ToUpper(query) {
		route = "name"
		endpoint = fmt.Sprintf("%s/api/v1/search/name?name=%s&limit=5", sc.baseURL, strings.ReplaceAll(query, " ", "%20"))
	}
	defer func() {
		sc.mu.Lock()
		sc.stats[route].addDuration(time.Since(start))
		sc.mu.Unlock()
	}()

	resp, err := sc.client.Get(endpoint)
	if err != nil {
		sc.fail(route)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		sc.fail(route)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Search response")

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		sc.fail(route)
		return nil, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if route == "name" {
		var result struct {
			Success bool           `json:"success"`
			Data    []searchResult `json:"data"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil {
			sc.fail(route)
			return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
		if len(result.Data) == 0 {
			return nil, nil
		}
		return &result.Data[0], nil
	}

	var result struct {
		Success bool         `json:"success"`
		Data    searchResult `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		sc.fail(route)
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return &result.Data, nil
}

// fetchStats pulls the cache and provider health snapshot
func (sc *simulationClient) fetchStats() (string, error) {
	start := time.Now()
	defer func() {
		sc.mu.Lock()
		sc.stats["stats"].addDuration(time.Since(start))
		sc.mu.Unlock()
	}()

	resp, err := sc.client.Get(fmt.Sprintf("%s/api/v1/stats", sc.baseURL))
	if err != nil {
		sc.fail("stats")
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		sc.fail("stats")
		return "", err
	}
	return string(respBody), nil
}

func (sc *simulationClient) fail(route string) {
	sc.mu.Lock()
	sc.stats[route].failures++
	sc.mu.Unlock()
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the resolution simulation
// It starts a local API server backed by a mock provider and hammers the
// search endpoints from multiple workers
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient := newSimulationClient()

	targetQueries := rand.Intn(maxQueries-minQueries) + minQueries
	log.Info().Int("target_queries", targetQueries).Msg("Starting simulation")

	stats := struct {
		mu            sync.Mutex
		TotalQueries  int
		Resolved      int
		Misses        int
		Failures      int
		CacheHits     int
		ProviderFills int
		StartTime     time.Time
		Symbols       map[string]int
	}{
		StartTime: time.Now(),
		Symbols:   make(map[string]int),
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < targetQueries/numWorkers; j++ {
				query := queries[rand.Intn(len(queries))]
				result, err := simClient.search(query)

				stats.mu.Lock()
				stats.TotalQueries++
				switch {
				case err != nil:
					stats.Failures++
				case result == nil:
					stats.Misses++
				default:
					stats.Resolved++
					stats.Symbols[result.Symbol]++
					if result.CacheAgeSeconds > 0 || result.DataSource == "cache" {
						stats.CacheHits++
					} else {
						stats.ProviderFills++
					}
				}
				stats.mu.Unlock()

				if err != nil {
					log.Error().Err(err).Int("worker_id", workerID).Str("query", query).Msg("Query failed")
				}

				// Random sleep between queries
				time.Sleep(time.Duration(rand.Intn(100)) * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🔎 RESOLUTION SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Query Statistics
------------------
Total Queries:    %d
Resolved:         %d
Misses:           %d
Failures:         %d
Cache Hits:       %d
Provider Fills:   %d
Duration:         %v

📈 Symbol Distribution
--------------------
`, stats.TotalQueries, stats.Resolved, stats.Misses, stats.Failures,
		stats.CacheHits, stats.ProviderFills, duration.Round(time.Millisecond))

	// Print symbol distribution with simple ASCII bar chart
	maxSymbolCount := 0
	for _, count := range stats.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}
	for symbol, count := range stats.Symbols {
		barLength := int(float64(count) / float64(maxSymbolCount) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-6s: %s (%d)\n", symbol, bar, count)
	}

	if snapshot, err := simClient.fetchStats(); err == nil {
		fmt.Println("\n📦 Cache & Provider Snapshot")
		fmt.Println("--------------------------")
		fmt.Println(snapshot)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	hitRate := 0.0
	if stats.Resolved > 0 {
		hitRate = float64(stats.CacheHits) / float64(stats.Resolved) * 100
	}
	log.Info().
		Float64("cache_hit_rate", hitRate).
		Int("total_queries", stats.TotalQueries).
		Int("resolved", stats.Resolved).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// mockProvider serves a fixed catalog with simulated latency so the full
// chain, limiter and breaker stack can be exercised offline.
type mockProvider struct {
	catalog map[string]types.Stock
}

func newMockProvider() *mockProvider {
	catalog := make(map[string]types.Stock)
	add := func(symbol, national, name string, price, marketCap float64) {
		catalog[symbol] = types.Stock{
			Symbol:       symbol,
			NationalCode: national,
			Price: types.Price{
				Current:       price,
				Change:        price * 0.01,
				ChangePercent: 1.0,
				Currency:      "USD",
			},
			Metadata: types.Metadata{
				Name:      name,
				Exchange:  "NASDAQ",
				MarketCap: marketCap,
				Country:   "US",
			},
			DataSource:  "mock",
			LastUpdated: time.Now(),
		}
	}
	add("AAPL", "US0378331005", "Apple Inc.", 190.5, 2.9e12)
	add("MSFT", "US5949181045", "Microsoft Corporation", 410.2, 3.1e12)
	add("GOOGL", "US02079K3059", "Alphabet Inc.", 175.8, 2.2e12)
	add("TSLA", "US88160R1014", "Tesla Inc.", 248.9, 0.8e12)
	add("BRK.B", "US0846707026", "Berkshire Hathaway Inc.", 445.1, 0.9e12)
	return &mockProvider{catalog: catalog}
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Supports(kind types.IdentifierKind) bool {
	return kind == types.KindSymbol || kind == types.KindNationalCode
}

func (m *mockProvider) FetchByIdentifier(_ context.Context, id types.StockIdentifier) (*types.Stock, error) {
	time.Sleep(time.Duration(20+rand.Intn(60)) * time.Millisecond)

	for _, stock := range m.catalog {
		if stock.Symbol == id.Value() || stock.NationalCode == id.Value() {
			cp := stock
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockProvider) SearchByName(_ context.Context, name string, limit int) ([]types.Stock, error) {
	time.Sleep(time.Duration(30+rand.Intn(80)) * time.Millisecond)

	needle := strings.ToLower(name)
	var out []types.Stock
	for _, stock := range m.catalog {
		if strings.Contains(strings.ToLower(stock.Metadata.Name), needle) {
			out = append(out, stock)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// startServer initializes and starts the resolution API server backed by
// the mock provider and a throwaway database
func startServer() error {
	db, err := gorm.Open(sqlite.Open("simulation.db"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.AutoMigrate(&cache.CachedStock{}, &resolution.SearchHistoryRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Single-tier cache: the relational store serves both levels offline.
	l2 := cache.NewGormStore(db, log.Logger)
	repo := cache.NewTiered(l2, l2, 5*time.Minute, 15*time.Minute, log.Logger)

	mock := providers.NewInstrumented(
		newMockProvider(),
		ratelimit.NewSlidingWindow("provider:mock", ratelimit.Config{MaxRequests: 600, Window: time.Minute}),
		breaker.New("mock", breaker.DefaultSettings(), log.Logger),
		log.Logger,
	)
	chain := providers.NewChain(log.Logger, mock)
	reverse := providers.NewReverseLookup("", "", time.Second, log.Logger)
	history := resolution.NewHistoryRecorder(db, log.Logger)
	service := resolution.NewService(repo, chain, reverse, history, 5*time.Second, log.Logger)

	tierLimiters := map[string]ratelimit.Limiter{
		"anonymous": ratelimit.NewSlidingWindow("tier:anonymous", ratelimit.Config{MaxRequests: 10000, Window: time.Minute}),
	}
	handlers := resolution.NewGinHandlers(service, tierLimiters)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	v1 := router.Group("/api/v1")
	{
		search := v1.Group("/search")
		{
			search.GET("", handlers.SearchHandler())
			search.GET("/name", handlers.SearchByNameHandler())
		}
		v1.GET("/stats", handlers.StatsHandler())
	}

	return router.Run(":8080")
}
