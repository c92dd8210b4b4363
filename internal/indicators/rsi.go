package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/ternarybob/pretium/internal/models"
)

// RSI returns the n-period relative strength index at the latest bar,
// 100 - 100/(1+RS) with RS the Wilder-smoothed gain/loss ratio. A bar count
// of n+1 is the minimum since the first bar only seeds the diff.
func RSI(table *models.Table, n int) (float64, error) {
	if n < 2 {
		return 0, fmt.Errorf("period must be at least 2, got %d", n)
	}
	closes, err := series(table, "close", n+1)
	if err != nil {
		return 0, err
	}

	out := talib.Rsi(closes, n)
	return out[len(out)-1], nil
}
