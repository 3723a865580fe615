package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
)

type mockHistory struct {
	calls   int
	candles []domain.Candle
	err     error
}

func (m *mockHistory) GetCandles(ctx context.Context, symbol string, limit int) ([]domain.Candle, error) {
	m.calls++
	return m.candles, m.err
}

func sampleCandles() []domain.Candle {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return []domain.Candle{
		{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 3},
		{Timestamp: ts.Add(time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 4},
	}
}

func TestNewCandleHistory_Defaults(t *testing.T) {
	tests := []struct {
		name          string
		ttl           time.Duration
		namespace     string
		wantTTL       time.Duration
		wantNamespace string
	}{
		{name: "zero values", wantTTL: 5 * time.Minute, wantNamespace: "candles"},
		{name: "negative ttl", ttl: -time.Minute, wantTTL: 5 * time.Minute, wantNamespace: "candles"},
		{name: "custom", ttl: time.Minute, namespace: "warm", wantTTL: time.Minute, wantNamespace: "warm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCandleHistory(nil, tt.ttl, &mockHistory{}, tt.namespace, nil)
			assert.Equal(t, tt.wantTTL, c.ttl)
			assert.Equal(t, tt.wantNamespace, c.namespace)
		})
	}
}

func TestCandleHistory_NilRedisBypasses(t *testing.T) {
	inner := &mockHistory{candles: sampleCandles()}
	c := NewCandleHistory(nil, time.Minute, inner, "", nil)

	got, err := c.GetCandles(context.Background(), "BTCUSDT", 500)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, inner.calls)
}

func TestCandleHistory_CacheHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	cached, _ := json.Marshal(sampleCandles())
	mock.ExpectGet("candles:BTCUSDT:1m:500").SetVal(string(cached))

	inner := &mockHistory{}
	c := NewCandleHistory(rdb, time.Minute, inner, "candles", nil)

	got, err := c.GetCandles(context.Background(), "BTCUSDT", 500)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, inner.calls)
	assert.True(t, sampleCandles()[1].Timestamp.Equal(got[1].Timestamp))
	assert.Equal(t, 101.0, got[1].Close)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleHistory_CacheMissStores(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	candles := sampleCandles()
	payload, _ := json.Marshal(candles)
	mock.ExpectGet("candles:ETHUSDT:1m:200").RedisNil()
	mock.ExpectSet("candles:ETHUSDT:1m:200", payload, time.Minute).SetVal("OK")

	inner := &mockHistory{candles: candles}
	c := NewCandleHistory(rdb, time.Minute, inner, "candles", nil)

	got, err := c.GetCandles(context.Background(), "ETHUSDT", 200)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleHistory_CorruptedEntryIsReplaced(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	candles := sampleCandles()
	payload, _ := json.Marshal(candles)
	mock.ExpectGet("candles:BTCUSDT:1m:500").SetVal("not json")
	mock.ExpectDel("candles:BTCUSDT:1m:500").SetVal(1)
	mock.ExpectSet("candles:BTCUSDT:1m:500", payload, time.Minute).SetVal("OK")

	inner := &mockHistory{candles: candles}
	c := NewCandleHistory(rdb, time.Minute, inner, "candles", nil)

	got, err := c.GetCandles(context.Background(), "BTCUSDT", 500)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleHistory_InnerErrorPropagates(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	mock.ExpectGet("candles:BTCUSDT:1m:500").RedisNil()
	wantErr := errors.New("exchange down")
	c := NewCandleHistory(rdb, time.Minute, &mockHistory{err: wantErr}, "candles", nil)

	_, err := c.GetCandles(context.Background(), "BTCUSDT", 500)
	assert.ErrorIs(t, err, wantErr)
}

func TestCandleHistory_Lookup(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()
	c := NewCandleHistory(rdb, time.Minute, &mockHistory{}, "", nil)

	cached, err := json.Marshal(sampleCandles())
	require.NoError(t, err)
	mock.ExpectGet("hit").SetVal(string(cached))
	mock.ExpectGet("absent").RedisNil()
	mock.ExpectGet("down").SetErr(errors.New("connection refused"))
	mock.ExpectGet("garbage").SetVal("{")
	mock.ExpectDel("garbage").SetVal(1)

	got, err := c.lookup(ctx, "hit")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	for _, key := range []string{"absent", "down", "garbage"} {
		_, err := c.lookup(ctx, key)
		assert.ErrorIs(t, err, ports.ErrCacheMiss, key)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSafe(t *testing.T) {
	assert.Equal(t, "a_b_c", safe("a:b c"))
}
