// Package fx converts payment gateway amounts into platform tokens.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultCacheTTL is how long a fetched rate stays fresh
const DefaultCacheTTL = time.Hour

// fallbackRates is the static USD-per-unit table used when the remote rate
// source is unavailable. Deliberately conservative and coarse.
var fallbackRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.08,
	"GBP": 1.27,
	"JPY": 0.0067,
	"CNY": 0.14,
	"KRW": 0.00072,
}

// minorUnitExponents lists the ISO 4217 currencies whose minor unit is not
// the usual two decimal places. Gateways send JPY and KRW amounts as whole
// units, not hundredths.
var minorUnitExponents = map[string]int{
	"JPY": 0,
	"KRW": 0,
}

func minorUnitDivisor(currency string) float64 {
	if exp, ok := minorUnitExponents[currency]; ok {
		return math.Pow10(exp)
	}
	return 100.0
}

type cachedRate struct {
	rate      float64
	fetchedAt time.Time
}

// Service fetches currency conversion rates with an in-process TTL cache and
// a static fallback table.
type Service struct {
	baseURL      string
	tokensPerUSD int64
	ttl          time.Duration
	httpClient   *http.Client

	mu    sync.Mutex
	cache map[string]cachedRate
	now   func() time.Time
}

// NewService creates a new FX service. tokensPerUSD sets how many platform
// tokens one US dollar buys.
func NewService(baseURL string, tokensPerUSD int64) *Service {
	return &Service{
		baseURL:      baseURL,
		tokensPerUSD: tokensPerUSD,
		ttl:          DefaultCacheTTL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: make(map[string]cachedRate),
		now:   time.Now,
	}
}

// GetRate returns the USD-per-unit rate for a currency. The remote source is
// consulted at most once per TTL window; when it is unavailable the static
// fallback table answers instead.
func (s *Service) GetRate(ctx context.Context, currency string) (float64, error) {
	currency = strings.ToUpper(currency)

	s.mu.Lock()
	cached, ok := s.cache[currency]
	s.mu.Unlock()

	if ok && s.now().Sub(cached.fetchedAt) < s.ttl {
		return cached.rate, nil
	}

	rate, err := s.fetchRate(ctx, currency)
	if err != nil {
		log.WithField("currency", currency).WithError(err).Warn("Rate fetch failed, falling back to static table")

		if ok {
			// A stale cached rate beats the static table
			return cached.rate, nil
		}
		if fallback, exists := fallbackRates[currency]; exists {
			return fallback, nil
		}
		return 0, fmt.Errorf("no rate available for currency %q: %w", currency, err)
	}

	s.mu.Lock()
	s.cache[currency] = cachedRate{rate: rate, fetchedAt: s.now()}
	s.mu.Unlock()

	return rate, nil
}

// TokensFor converts a gateway amount in minor units of the given currency
// into whole platform tokens, rounding down.
func (s *Service) TokensFor(ctx context.Context, amountMinor int64, currency string) (int64, error) {
	if amountMinor <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %d", amountMinor)
	}

	currency = strings.ToUpper(currency)
	rate, err := s.GetRate(ctx, currency)
	if err != nil {
		return 0, err
	}

	usd := float64(amountMinor) / minorUnitDivisor(currency) * rate
	return int64(usd * float64(s.tokensPerUSD)), nil
}

type rateResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

func (s *Service) fetchRate(ctx context.Context, currency string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v6/latest/"+currency, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate source unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	var rates rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}

	usdRate, ok := rates.Rates["USD"]
	if !ok || usdRate <= 0 {
		return 0, fmt.Errorf("rate source returned no USD rate for %q", currency)
	}

	return usdRate, nil
}
