// Package indicators computes technical indicators over quote tables. Every
// function reads the close or volume column of a history table and returns
// the indicator value at the latest bar.
package indicators

import (
	"fmt"

	"github.com/ternarybob/pretium/internal/models"
)

// series extracts a numeric column and enforces a minimum bar count.
func series(table *models.Table, column string, minBars int) ([]float64, error) {
	if table == nil {
		return nil, fmt.Errorf("table is nil")
	}
	values, err := table.FloatColumn(column)
	if err != nil {
		return nil, err
	}
	if len(values) < minBars {
		return nil, fmt.Errorf("need at least %d bars, table has %d", minBars, len(values))
	}
	return values, nil
}

func checkPeriod(n int) error {
	if n < 1 {
		return fmt.Errorf("period must be positive, got %d", n)
	}
	return nil
}
