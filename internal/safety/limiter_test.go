package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)}
	cfg.Now = clk.Now
	l, err := NewLimiter(cfg, &mockLogger{})
	require.NoError(t, err)
	return l, clk
}

func TestNewLimiter_Defaults(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	assert.Equal(t, 10, l.cfg.MaxTradesPerDay)
	assert.Equal(t, -500.0, l.cfg.MaxDailyLoss)
	assert.Equal(t, 15*time.Minute, l.cfg.Cooldown)

	l, _ = newTestLimiter(t, Config{MaxDailyLoss: 200})
	assert.Equal(t, -200.0, l.cfg.MaxDailyLoss)

	_, err := NewLimiter(Config{}, nil)
	assert.Error(t, err)
	_, err = NewLimiter(Config{Cooldown: -time.Second}, &mockLogger{})
	assert.Error(t, err)
}

func TestLimiter_MaxTradesPerDay(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{MaxTradesPerDay: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, l.CanTrade())
		l.RecordTrade(ctx, 10)
	}
	assert.False(t, l.CanTrade())
	assert.Contains(t, l.Status().Reason, "trade limit")

	l.ResetDaily(ctx)
	assert.True(t, l.CanTrade())
}

func TestLimiter_Cooldown(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(t, Config{Cooldown: 15 * time.Minute})

	l.RecordTrade(ctx, -5)
	assert.False(t, l.CanTrade())

	clk.now = clk.now.Add(14*time.Minute + 59*time.Second)
	assert.False(t, l.CanTrade())

	clk.now = clk.now.Add(time.Second)
	assert.True(t, l.CanTrade())

	// A winning trade does not start a cooldown.
	l.RecordTrade(ctx, 5)
	assert.True(t, l.CanTrade())
}

func TestLimiter_MaxDailyLoss(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(t, Config{MaxDailyLoss: -100, Cooldown: time.Minute})

	l.RecordTrade(ctx, -60)
	clk.now = clk.now.Add(time.Hour)
	assert.True(t, l.CanTrade())

	l.RecordTrade(ctx, -40)
	clk.now = clk.now.Add(time.Hour)
	assert.False(t, l.CanTrade())
	assert.Contains(t, l.Status().Reason, "loss limit")
}

func TestLimiter_ResetKeepsCooldown(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(t, Config{})

	l.RecordTrade(ctx, -10)
	lastLoss := l.Status().LastLoss
	l.ResetDaily(ctx)

	st := l.Status()
	assert.Equal(t, 0, st.TradeCount)
	assert.Equal(t, 0.0, st.DailyPnL)
	assert.Equal(t, lastLoss, st.LastLoss)
	assert.False(t, st.CanTrade)

	clk.now = clk.now.Add(16 * time.Minute)
	assert.True(t, l.CanTrade())
}

func TestLimiter_Restore(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxTradesPerDay: 4})
	l.Restore(context.Background(), 4, -20, time.Time{})
	st := l.Status()
	assert.Equal(t, 4, st.TradeCount)
	assert.Equal(t, -20.0, st.DailyPnL)
	assert.False(t, st.CanTrade)
	assert.True(t, st.LastLoss.IsZero())
}

func TestLimiter_RestoreResumesCooldown(t *testing.T) {
	l, clk := newTestLimiter(t, Config{Cooldown: 15 * time.Minute})
	lossAt := clk.now.Add(-5 * time.Minute)

	l.Restore(context.Background(), 1, -10, lossAt)
	st := l.Status()
	assert.Equal(t, lossAt, st.LastLoss)
	assert.False(t, st.CanTrade)
	assert.Contains(t, st.Reason, "cooldown")

	clk.now = clk.now.Add(10 * time.Minute)
	assert.True(t, l.CanTrade())
}

func TestNextMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{in: time.Date(2024, 3, 1, 10, 30, 0, 0, loc), want: time.Date(2024, 3, 2, 0, 0, 0, 0, loc)},
		{in: time.Date(2024, 2, 29, 23, 59, 59, 0, loc), want: time.Date(2024, 3, 1, 0, 0, 0, 0, loc)},
		{in: time.Date(2024, 12, 31, 0, 0, 0, 0, loc), want: time.Date(2025, 1, 1, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		assert.True(t, tt.want.Equal(NextMidnight(tt.in)), "NextMidnight(%s)", tt.in)
	}
}

func TestLimiter_RunStopsOnCancel(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
