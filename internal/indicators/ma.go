package indicators

import (
	"github.com/markcheno/go-talib"
	"github.com/ternarybob/pretium/internal/models"
)

// MA returns the n-period simple moving average of the close column at the
// latest bar.
func MA(table *models.Table, n int) (float64, error) {
	if err := checkPeriod(n); err != nil {
		return 0, err
	}
	closes, err := series(table, "close", n)
	if err != nil {
		return 0, err
	}

	out := talib.Ma(closes, n, talib.SMA)
	return out[len(out)-1], nil
}
