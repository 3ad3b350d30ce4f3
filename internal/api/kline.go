package api

import (
	"cryptomonitor/internal/indicators"
	"cryptomonitor/internal/models"
)

type bollingerBands struct {
	Upper  []*float64 `json:"upper"`
	Middle []*float64 `json:"middle"`
	Lower  []*float64 `json:"lower"`
}

type kdjLines struct {
	K []*float64 `json:"k"`
	D []*float64 `json:"d"`
	J []*float64 `json:"j"`
}

type klineIndicators struct {
	MA5        []*float64     `json:"ma5"`
	MA10       []*float64     `json:"ma10"`
	MA20       []*float64     `json:"ma20"`
	RSI        []*float64     `json:"rsi"`
	MACDLine   []*float64     `json:"macd_line"`
	SignalLine []*float64     `json:"signal_line"`
	MACDHist   []*float64     `json:"macd_hist"`
	Bollinger  bollingerBands `json:"bollinger"`
	Volatility []*float64     `json:"volatility"`
	KDJ        kdjLines       `json:"kdj"`
}

type klinePayload struct {
	Kline      [][]float64     `json:"kline"`
	Indicators klineIndicators `json:"indicators"`
}

// buildKlinePayload turns a candle series into candlestick rows
// ([timestamp_ms, open, high, low, close, volume]) plus the full
// technical indicator set the K-line page overlays.
func buildKlinePayload(candles []*models.Candle) *klinePayload {
	n := len(candles)
	payload := &klinePayload{Kline: make([][]float64, 0, n)}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()

		payload.Kline = append(payload.Kline, []float64{
			float64(c.BucketTime.UnixMilli()),
			c.Open.InexactFloat64(),
			c.High.InexactFloat64(),
			c.Low.InexactFloat64(),
			closes[i],
			c.Volume.InexactFloat64(),
		})
	}

	macd := indicators.MACD(closes, 12, 26, 9)
	boll := indicators.Bollinger(closes, 20, 2)
	kdj := indicators.KDJ(highs, lows, closes, 9, 3, 3)

	payload.Indicators = klineIndicators{
		MA5:        indicators.SMA(closes, 5),
		MA10:       indicators.SMA(closes, 10),
		MA20:       indicators.SMA(closes, 20),
		RSI:        indicators.RSI(closes, 14),
		MACDLine:   macd.MACD,
		SignalLine: macd.Signal,
		MACDHist:   macd.Histogram,
		Bollinger:  bollingerBands{Upper: boll.Upper, Middle: boll.Middle, Lower: boll.Lower},
		Volatility: scale(indicators.Volatility(closes, 20), 100),
		KDJ:        kdjLines{K: kdj.K, D: kdj.D, J: kdj.J},
	}
	return payload
}

// scale multiplies every defined value, used to express volatility as a
// percentage.
func scale(series []*float64, factor float64) []*float64 {
	out := make([]*float64, len(series))
	for i, v := range series {
		if v != nil {
			scaled := *v * factor
			out[i] = &scaled
		}
	}
	return out
}
