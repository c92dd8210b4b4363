package indicators

import (
	"fmt"
	"math"

	"github.com/ternarybob/pretium/internal/models"
	"gonum.org/v1/gonum/stat"
)

const tradingDaysPerYear = 252

// Volatility returns the annualized realized volatility at the latest bar:
// the sample standard deviation of the last n single-bar returns scaled by
// the square root of the trading days in a year.
func Volatility(table *models.Table, n int) (float64, error) {
	if n < 2 {
		return 0, fmt.Errorf("period must be at least 2, got %d", n)
	}
	closes, err := series(table, "close", n+1)
	if err != nil {
		return 0, err
	}

	start := len(closes) - n - 1
	returns := make([]float64, 0, n)
	for i := start + 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			return 0, fmt.Errorf("zero close at row %d", i-1)
		}
		returns = append(returns, closes[i]/prev-1)
	}
	return stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear), nil
}
