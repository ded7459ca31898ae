// Package indicators provides pure functions over an OHLCV frame: RSI, ATR,
// ADX, MACD, Bollinger %B, and candlestick-pattern scores. Every function is
// side-effect free. Each indicator returns the latest-bar value together
// with a ready flag — false when the frame is shorter than the indicator's
// warm-up period, in which case the value is not meaningful; CandlePatterns
// instead returns nil for a frame shorter than three bars.
package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// Frame is an OHLCV price series, oldest bar first.
type Frame struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Len returns the number of bars in the frame.
func (f Frame) Len() int { return len(f.Close) }

// lastValid returns the last element of series and whether it is a finite
// number — talib pads warm-up bars with NaN.
func lastValid(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// RSI returns the latest Relative Strength Index over period bars.
func RSI(f Frame, period int) (value float64, ready bool) {
	if f.Len() < period+1 {
		return 0, false
	}
	return lastValid(talib.Rsi(f.Close, period))
}

// ATR returns the latest Average True Range over period bars.
func ATR(f Frame, period int) (value float64, ready bool) {
	if f.Len() < period+1 {
		return 0, false
	}
	return lastValid(talib.Atr(f.High, f.Low, f.Close, period))
}

// ADX returns the latest Average Directional Index over period bars.
func ADX(f Frame, period int) (value float64, ready bool) {
	if f.Len() < period*2 {
		return 0, false
	}
	return lastValid(talib.Adx(f.High, f.Low, f.Close, period))
}

// MACDResult is the three MACD series values for the latest bar.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD returns the latest MACD line, signal line, and histogram.
func MACD(f Frame, fastPeriod, slowPeriod, signalPeriod int) (result MACDResult, ready bool) {
	if f.Len() < slowPeriod+signalPeriod {
		return MACDResult{}, false
	}
	macd, signal, hist := talib.Macd(f.Close, fastPeriod, slowPeriod, signalPeriod)
	m, okM := lastValid(macd)
	s, okS := lastValid(signal)
	h, okH := lastValid(hist)
	if !okM || !okS || !okH {
		return MACDResult{}, false
	}
	return MACDResult{MACD: m, Signal: s, Histogram: h}, true
}

// BollingerPercentB returns %B: where the latest close sits within the
// Bollinger band, 0 = lower band, 1 = upper band.
func BollingerPercentB(f Frame, period int, numStdDev float64) (value float64, ready bool) {
	if f.Len() < period {
		return 0, false
	}
	upper, _, lower := talib.BBands(f.Close, period, numStdDev, numStdDev, talib.SMA)
	up, okUp := lastValid(upper)
	lo, okLo := lastValid(lower)
	if !okUp || !okLo || up == lo {
		return 0, false
	}
	close, _ := lastValid(f.Close)
	return (close - lo) / (up - lo), true
}

// CandlePattern is a named candlestick recognition score, +100/0/-100 per
// talib convention (bullish/none/bearish).
type CandlePattern struct {
	Name  string
	Score float64
}

// CandlePatterns evaluates a fixed set of single/multi-bar reversal
// patterns relevant to grid recentering decisions.
func CandlePatterns(f Frame) []CandlePattern {
	if f.Len() < 3 {
		return nil
	}

	patterns := []CandlePattern{
		{"engulfing", lastOf(talib.CdlEngulfing(f.Open, f.High, f.Low, f.Close))},
		{"hammer", lastOf(talib.CdlHammer(f.Open, f.High, f.Low, f.Close))},
		{"doji", lastOf(talib.CdlDoji(f.Open, f.High, f.Low, f.Close))},
		{"shooting_star", lastOf(talib.CdlShootingStar(f.Open, f.High, f.Low, f.Close))},
	}
	return patterns
}

func lastOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
