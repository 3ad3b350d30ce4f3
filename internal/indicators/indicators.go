// Package indicators computes technical analysis series over candle
// closes. Every function returns a slice aligned with its input where
// warmup positions (not enough history yet) are nil.
package indicators

import "math"

// tradingDaysPerYear annualizes rolling volatility.
const tradingDaysPerYear = 252

// SMA computes a simple moving average over the given period.
func SMA(data []float64, period int) []*float64 {
	out := make([]*float64, len(data))
	if period <= 0 || len(data) < period {
		return out
	}

	var sum float64
	for i, v := range data {
		sum += v
		if i >= period {
			sum -= data[i-period]
		}
		if i >= period-1 {
			out[i] = ptr(sum / float64(period))
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the SMA of the
// first period values.
func EMA(data []float64, period int) []*float64 {
	out := make([]*float64, len(data))
	if period <= 0 || len(data) < period {
		return out
	}

	var sum float64
	for _, v := range data[:period] {
		sum += v
	}
	prev := sum / float64(period)
	out[period-1] = ptr(prev)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(data); i++ {
		prev = data[i]*multiplier + prev*(1-multiplier)
		out[i] = ptr(prev)
	}
	return out
}

// RSI computes the relative strength index using Wilder smoothing.
func RSI(data []float64, period int) []*float64 {
	out := make([]*float64, len(data))
	if period <= 0 || len(data) < period+1 {
		return out
	}

	gains := make([]float64, len(data)-1)
	losses := make([]float64, len(data)-1)
	for i := 1; i < len(data); i++ {
		delta := data[i] - data[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = ptr(rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(data); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i-1]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i-1]) / float64(period)
		out[i] = ptr(rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the MACD line, its signal line, and the histogram.
type MACDResult struct {
	MACD      []*float64
	Signal    []*float64
	Histogram []*float64
}

// MACD computes moving average convergence divergence with the given
// fast, slow, and signal EMA periods.
func MACD(data []float64, fast, slow, signal int) *MACDResult {
	n := len(data)
	res := &MACDResult{
		MACD:      make([]*float64, n),
		Signal:    make([]*float64, n),
		Histogram: make([]*float64, n),
	}
	if n < slow {
		return res
	}

	emaFast := EMA(data, fast)
	emaSlow := EMA(data, slow)

	var macdVals []float64
	for i := 0; i < n; i++ {
		if emaFast[i] != nil && emaSlow[i] != nil {
			v := *emaFast[i] - *emaSlow[i]
			res.MACD[i] = ptr(v)
			macdVals = append(macdVals, v)
		}
	}

	// Signal line runs over the defined MACD values only, then is
	// re-aligned against the full series.
	signalSeries := EMA(macdVals, signal)
	offset := n - len(signalSeries)
	for i, v := range signalSeries {
		if v != nil {
			res.Signal[offset+i] = v
		}
	}

	for i := 0; i < n; i++ {
		if res.MACD[i] != nil && res.Signal[i] != nil {
			res.Histogram[i] = ptr(*res.MACD[i] - *res.Signal[i])
		}
	}
	return res
}

// BollingerResult holds the three Bollinger bands.
type BollingerResult struct {
	Upper  []*float64
	Middle []*float64
	Lower  []*float64
}

// Bollinger computes Bollinger bands over the given period with the
// given standard deviation multiplier.
func Bollinger(data []float64, period int, stdDev float64) *BollingerResult {
	n := len(data)
	res := &BollingerResult{
		Upper:  make([]*float64, n),
		Middle: SMA(data, period),
		Lower:  make([]*float64, n),
	}
	if period <= 0 || n < period {
		return res
	}

	for i := period - 1; i < n; i++ {
		std := stddev(data[i-period+1 : i+1])
		res.Upper[i] = ptr(*res.Middle[i] + std*stdDev)
		res.Lower[i] = ptr(*res.Middle[i] - std*stdDev)
	}
	return res
}

// Volatility computes annualized rolling volatility: the standard
// deviation of simple returns inside each window, scaled by the square
// root of the number of trading days per year.
func Volatility(data []float64, period int) []*float64 {
	out := make([]*float64, len(data))
	if period <= 1 || len(data) < period {
		return out
	}

	for i := period - 1; i < len(data); i++ {
		window := data[i-period+1 : i+1]
		returns := make([]float64, 0, len(window)-1)
		for j := 1; j < len(window); j++ {
			if window[j-1] == 0 {
				returns = append(returns, 0)
				continue
			}
			returns = append(returns, (window[j]-window[j-1])/window[j-1])
		}
		out[i] = ptr(stddev(returns) * math.Sqrt(tradingDaysPerYear))
	}
	return out
}

// KDJResult holds the K, D, and J stochastic oscillator series.
type KDJResult struct {
	K []*float64
	D []*float64
	J []*float64
}

// KDJ computes the stochastic oscillator. K and D are seeded at 50 on
// the first defined position.
func KDJ(highs, lows, closes []float64, period, kSmooth, dSmooth int) *KDJResult {
	n := len(closes)
	res := &KDJResult{
		K: make([]*float64, n),
		D: make([]*float64, n),
		J: make([]*float64, n),
	}
	if period <= 0 || n < period {
		return res
	}

	rsv := make([]*float64, n)
	for i := period - 1; i < n; i++ {
		highest := highs[i-period+1]
		lowest := lows[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			highest = math.Max(highest, highs[j])
			lowest = math.Min(lowest, lows[j])
		}
		if highest == lowest {
			rsv[i] = ptr(50.0)
		} else {
			rsv[i] = ptr((closes[i] - lowest) / (highest - lowest) * 100)
		}
	}

	res.K[period-1] = ptr(50.0)
	for i := period; i < n; i++ {
		k := (*res.K[i-1]*float64(kSmooth-1) + *rsv[i]) / float64(kSmooth)
		res.K[i] = ptr(k)
	}

	res.D[period-1] = ptr(50.0)
	for i := period; i < n; i++ {
		d := (*res.D[i-1]*float64(dSmooth-1) + *res.K[i]) / float64(dSmooth)
		res.D[i] = ptr(d)
	}

	for i := period - 1; i < n; i++ {
		res.J[i] = ptr(3*(*res.K[i]) - 2*(*res.D[i]))
	}
	return res
}

// stddev is the population standard deviation.
func stddev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var mean float64
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	var variance float64
	for _, v := range data {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(data)))
}

func ptr(v float64) *float64 { return &v }
