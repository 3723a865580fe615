package indicators

import (
	"context"
	"testing"

	"github.com/devrajweb/delta-bot/internal/domain"
)

func TestRSI_Calculate(t *testing.T) {
	tests := []struct {
		name          string
		period        int
		candles       []domain.Candle
		expectedValue float64
		expectError   bool
	}{
		{
			name:          "RSI with sufficient data",
			period:        3,
			candles:       candlesFromCloses(100, 102, 101, 103, 102, 104),
			expectedValue: 77.272727, // Wilder smoothing over +2,-1,+2,-1,+2
		},
		{
			name:        "Insufficient data",
			period:      7,
			candles:     candlesFromCloses(100, 102, 101, 103, 102, 104),
			expectError: true,
		},
		{
			name:        "Exactly period candles is not enough",
			period:      3,
			candles:     candlesFromCloses(100, 102, 101),
			expectError: true,
		},
		{
			name:          "All gains",
			period:        3,
			candles:       candlesFromCloses(100, 102, 104, 106),
			expectedValue: 100.0,
		},
		{
			name:          "All losses",
			period:        3,
			candles:       candlesFromCloses(106, 104, 102, 100),
			expectedValue: 0.0,
		},
		{
			name:          "Flat series is neutral",
			period:        3,
			candles:       candlesFromCloses(100, 100, 100, 100, 100),
			expectedValue: 50.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(IndicatorConfig{Period: tt.period})
			value, err := rsi.Calculate(context.Background(), tt.candles)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if value-tt.expectedValue > 0.0001 || value-tt.expectedValue < -0.0001 {
				t.Errorf("Expected value %f, got %f", tt.expectedValue, value)
			}
		})
	}
}

func TestRSI_RequiredDataPoints(t *testing.T) {
	rsi := NewRSI(IndicatorConfig{Period: 14})
	if got := rsi.RequiredDataPoints(); got != 15 {
		t.Errorf("RequiredDataPoints() = %d, want 15", got)
	}
	if name := rsi.Name(); name != "RSI14" {
		t.Errorf("Expected name 'RSI14', got '%s'", name)
	}
}
