package api

import (
	"math"
	"time"

	"cryptomonitor/internal/models"
)

// volatilityWindow is the rolling window the detail-page volatility curve
// is computed over.
const volatilityWindow = 10

type pricePoint struct {
	Date        string  `json:"date"`
	TimestampMs int64   `json:"timestamp_ms"`
	Price       float64 `json:"price"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Open        float64 `json:"open"`
}

type volumePoint struct {
	Date        string  `json:"date"`
	TimestampMs int64   `json:"timestamp_ms"`
	Volume      float64 `json:"volume"`
}

type volatilityPoint struct {
	Date              string  `json:"date"`
	TimestampMs       int64   `json:"timestamp_ms"`
	Volatility        float64 `json:"volatility"`
	VolatilityPercent float64 `json:"volatility_percent"`
}

type chartCurves struct {
	PriceData      []pricePoint      `json:"price_data"`
	VolumeData     []volumePoint     `json:"volume_data"`
	VolatilityData []volatilityPoint `json:"volatility_data"`
}

// buildChartCurves turns a candle series into the three curves the asset
// detail pages chart: price, volume, and rolling price volatility.
func buildChartCurves(candles []*models.Candle) *chartCurves {
	curves := &chartCurves{
		PriceData:      []pricePoint{},
		VolumeData:     []volumePoint{},
		VolatilityData: []volatilityPoint{},
	}
	if len(candles) == 0 {
		return curves
	}

	window := volatilityWindow
	if len(candles) < window {
		window = len(candles)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
	}

	for i, c := range candles {
		date := c.BucketTime.UTC().Format(time.RFC3339)
		ms := c.BucketTime.UnixMilli()

		curves.PriceData = append(curves.PriceData, pricePoint{
			Date:        date,
			TimestampMs: ms,
			Price:       closes[i],
			High:        c.High.InexactFloat64(),
			Low:         c.Low.InexactFloat64(),
			Open:        c.Open.InexactFloat64(),
		})
		curves.VolumeData = append(curves.VolumeData, volumePoint{
			Date:        date,
			TimestampMs: ms,
			Volume:      c.Volume.InexactFloat64(),
		})

		if i >= window-1 {
			mean, std := meanStd(closes[i-window+1 : i+1])
			point := volatilityPoint{
				Date:        date,
				TimestampMs: ms,
				Volatility:  std,
			}
			if mean > 0 {
				point.VolatilityPercent = std / mean * 100
			}
			curves.VolatilityData = append(curves.VolatilityData, point)
		}
	}
	return curves
}

type historyPoint struct {
	Date        string  `json:"date"`
	TimestampMs int64   `json:"timestamp_ms"`
	Price       float64 `json:"price"`
}

// buildPriceHistory flattens a candle series into close-price rows.
func buildPriceHistory(candles []*models.Candle) []historyPoint {
	points := make([]historyPoint, 0, len(candles))
	for _, c := range candles {
		points = append(points, historyPoint{
			Date:        c.BucketTime.UTC().Format(time.RFC3339),
			TimestampMs: c.BucketTime.UnixMilli(),
			Price:       c.Close.InexactFloat64(),
		})
	}
	return points
}

// meanStd returns the mean and population standard deviation.
func meanStd(data []float64) (float64, float64) {
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
	return mean, math.Sqrt(variance / float64(len(data)))
}
