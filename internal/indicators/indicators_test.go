package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func syntheticFrame(n int) Frame {
	f := Frame{}
	price := 100.0
	for i := 0; i < n; i++ {
		price += float64(i%5) - 2
		f.Open = append(f.Open, price)
		f.High = append(f.High, price+1)
		f.Low = append(f.Low, price-1)
		f.Close = append(f.Close, price+0.5)
		f.Volume = append(f.Volume, 1000)
	}
	return f
}

func TestRSI_NotReadyWhenFrameTooShort(t *testing.T) {
	f := syntheticFrame(5)
	_, ready := RSI(f, 14)
	assert.False(t, ready)
}

func TestRSI_ReadyAndBoundedWhenFrameLongEnough(t *testing.T) {
	f := syntheticFrame(60)
	value, ready := RSI(f, 14)
	assert.True(t, ready)
	assert.GreaterOrEqual(t, value, 0.0)
	assert.LessOrEqual(t, value, 100.0)
}

func TestATR_NotReadyWhenFrameTooShort(t *testing.T) {
	f := syntheticFrame(3)
	_, ready := ATR(f, 14)
	assert.False(t, ready)
}

func TestATR_ReadyAndNonNegative(t *testing.T) {
	f := syntheticFrame(60)
	value, ready := ATR(f, 14)
	assert.True(t, ready)
	assert.GreaterOrEqual(t, value, 0.0)
}

func TestMACD_NotReadyWhenFrameTooShort(t *testing.T) {
	f := syntheticFrame(10)
	_, ready := MACD(f, 12, 26, 9)
	assert.False(t, ready)
}

func TestMACD_ReadyWhenFrameLongEnough(t *testing.T) {
	f := syntheticFrame(100)
	_, ready := MACD(f, 12, 26, 9)
	assert.True(t, ready)
}

func TestBollingerPercentB_BoundedWhenReady(t *testing.T) {
	f := syntheticFrame(60)
	value, ready := BollingerPercentB(f, 20, 2.0)
	if ready {
		assert.GreaterOrEqual(t, value, -0.5)
		assert.LessOrEqual(t, value, 1.5)
	}
}

func TestCandlePatterns_EmptyForShortFrame(t *testing.T) {
	f := syntheticFrame(2)
	assert.Nil(t, CandlePatterns(f))
}

func TestCandlePatterns_ReturnsFixedSetForLongFrame(t *testing.T) {
	f := syntheticFrame(30)
	patterns := CandlePatterns(f)
	assert.Len(t, patterns, 4)
}
