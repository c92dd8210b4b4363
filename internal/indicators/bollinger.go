package indicators

import (
	"github.com/markcheno/go-talib"
	"github.com/ternarybob/pretium/internal/models"
)

// Bands holds one set of Bollinger band values.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Bollinger returns the n-period Bollinger bands at the latest bar. The
// middle band is a simple moving average of the close column; the upper and
// lower bands sit k standard deviations above and below it.
func Bollinger(table *models.Table, n int, k float64) (Bands, error) {
	if err := checkPeriod(n); err != nil {
		return Bands{}, err
	}
	closes, err := series(table, "close", n)
	if err != nil {
		return Bands{}, err
	}

	upper, middle, lower := talib.BBands(closes, n, k, k, talib.SMA)
	last := len(closes) - 1
	return Bands{Upper: upper[last], Middle: middle[last], Lower: lower[last]}, nil
}
