package indicators

import (
	"fmt"

	"github.com/ternarybob/pretium/internal/models"
	"gonum.org/v1/gonum/stat"
)

// VolumeRatio returns the latest volume divided by the mean volume of the
// last n bars. The window includes the latest bar, so a flat tape reads 1.
func VolumeRatio(table *models.Table, n int) (float64, error) {
	if err := checkPeriod(n); err != nil {
		return 0, err
	}
	volumes, err := series(table, "volume", n)
	if err != nil {
		return 0, err
	}

	window := volumes[len(volumes)-n:]
	mean := stat.Mean(window, nil)
	if mean == 0 {
		return 0, fmt.Errorf("mean volume over the window is zero")
	}
	return volumes[len(volumes)-1] / mean, nil
}
