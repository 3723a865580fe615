package market

import (
	"sort"
	"sync"
	"time"

	"github.com/devrajweb/delta-bot/internal/domain"
)

const (
	// BaseTimeframe is the bucket width of the raw store.
	BaseTimeframe = time.Minute

	defaultMinCandles = 1
	defaultMaxBuckets = 1500
)

// Config holds the aggregator settings.
type Config struct {
	MinCandles int              // Fewer non-empty bars than this yields an empty read-out
	MaxBuckets int              // Per-symbol retention of 1-minute buckets
	Now        func() time.Time // Clock used for bucketing live ticks
}

// Aggregator turns ticks into per-symbol 1-minute buckets and serves
// multi-timeframe read-outs by downsampling. Safe for concurrent use.
type Aggregator struct {
	mu         sync.RWMutex
	stores     map[string]map[int64]*domain.Candle // symbol -> bucket start (ms) -> candle
	lastPrice  map[string]float64
	minCandles int
	maxBuckets int
	now        func() time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = defaultMinCandles
	}
	if cfg.MaxBuckets <= 0 {
		cfg.MaxBuckets = defaultMaxBuckets
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		stores:     make(map[string]map[int64]*domain.Candle),
		lastPrice:  make(map[string]float64),
		minCandles: cfg.MinCandles,
		maxBuckets: cfg.MaxBuckets,
		now:        cfg.Now,
	}
}

// AddTick folds a tick into the 1-minute bucket covering the current local time.
func (a *Aggregator) AddTick(symbol string, price, volume float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.now().Truncate(BaseTimeframe)
	key := bucket.UnixMilli()
	store := a.storeFor(symbol)

	c, ok := store[key]
	if !ok {
		seed, known := a.lastPrice[symbol]
		if !known {
			seed = price
		}
		c = &domain.Candle{Timestamp: bucket, Open: seed, High: seed, Low: seed, Close: price}
		store[key] = c
		a.evict(store)
	}
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += volume
	a.lastPrice[symbol] = price
}

// LoadHistoricalCandles seeds the 1-minute store for symbol, overwriting
// buckets at the same timestamps.
func (a *Aggregator) LoadHistoricalCandles(symbol string, candles []domain.Candle) {
	if len(candles) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	store := a.storeFor(symbol)
	var latest *domain.Candle
	for i := range candles {
		c := candles[i]
		c.Timestamp = c.Timestamp.Truncate(BaseTimeframe)
		store[c.Timestamp.UnixMilli()] = &c
		if latest == nil || c.Timestamp.After(latest.Timestamp) {
			latest = &c
		}
	}
	a.evict(store)
	if _, known := a.lastPrice[symbol]; !known {
		a.lastPrice[symbol] = latest.Close
	}
}

// GetCandles returns the bars for symbol at timeframe, oldest first. Zero-volume
// bars are dropped; an empty slice means not enough data yet.
func (a *Aggregator) GetCandles(symbol string, timeframe time.Duration) []domain.Candle {
	a.mu.RLock()
	store := a.stores[symbol]
	raw := make([]domain.Candle, 0, len(store))
	for _, c := range store {
		raw = append(raw, *c)
	}
	a.mu.RUnlock()

	sortByTime(raw)
	out := raw
	if timeframe != BaseTimeframe {
		out = Downsample(raw, timeframe)
	}

	filtered := out[:0]
	for _, c := range out {
		if c.Volume > 0 {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) < a.minCandles {
		return []domain.Candle{}
	}
	return filtered
}

// LastPrice returns the most recent tick price seen for symbol.
func (a *Aggregator) LastPrice(symbol string) (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.lastPrice[symbol]
	return p, ok
}

// LastPrices returns a copy of the last known price per symbol.
func (a *Aggregator) LastPrices() map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]float64, len(a.lastPrice))
	for k, v := range a.lastPrice {
		out[k] = v
	}
	return out
}

// Downsample merges time-ordered bars into buckets of width timeframe.
// Bucket timestamps are floor(ts/timeframe)*timeframe in epoch milliseconds.
func Downsample(candles []domain.Candle, timeframe time.Duration) []domain.Candle {
	tf := timeframe.Milliseconds()
	if tf <= 0 || len(candles) == 0 {
		return candles
	}
	ordered := make([]domain.Candle, len(candles))
	copy(ordered, candles)
	sortByTime(ordered)

	out := make([]domain.Candle, 0, len(ordered))
	var lastKey int64
	for i, c := range ordered {
		key := c.Timestamp.UnixMilli() / tf * tf
		if i == 0 || key != lastKey {
			c.Timestamp = time.UnixMilli(key)
			out = append(out, c)
			lastKey = key
			continue
		}
		cur := &out[len(out)-1]
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	return out
}

func (a *Aggregator) storeFor(symbol string) map[int64]*domain.Candle {
	store, ok := a.stores[symbol]
	if !ok {
		store = make(map[int64]*domain.Candle)
		a.stores[symbol] = store
	}
	return store
}

// evict drops the oldest buckets beyond maxBuckets. Caller holds the write lock.
func (a *Aggregator) evict(store map[int64]*domain.Candle) {
	excess := len(store) - a.maxBuckets
	if excess <= 0 {
		return
	}
	keys := make([]int64, 0, len(store))
	for k := range store {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys[:excess] {
		delete(store, k)
	}
}

func sortByTime(candles []domain.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}
