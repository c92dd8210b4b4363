package indicators

import (
	"fmt"

	"github.com/ternarybob/pretium/internal/models"
)

// MaxDrawdown returns the largest peak-to-trough decline of the close column
// as a fraction of the peak. A series that never falls below a prior high
// reads 0.
func MaxDrawdown(table *models.Table) (float64, error) {
	closes, err := series(table, "close", 1)
	if err != nil {
		return 0, err
	}

	peak := closes[0]
	maxDD := 0.0
	for i, c := range closes {
		if c <= 0 {
			return 0, fmt.Errorf("non-positive close at row %d", i)
		}
		if c > peak {
			peak = c
			continue
		}
		if dd := (peak - c) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD, nil
}
