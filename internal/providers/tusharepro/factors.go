package tusharepro

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/pretium/internal/models"
)

const factorsFields = "ts_code,trade_date,pe,pb,total_mv,turnover_rate"

// FetchFactors retrieves per-day valuation factors over the fingerprint's
// range via the daily_basic API.
func (c *Client) FetchFactors(ctx context.Context, fp *models.Fingerprint) (*models.Table, error) {
	table := models.NewTable("code", "date", "pe", "pb", "total_mv", "turnover")

	for _, symbol := range fp.Codes {
		params := map[string]string{
			"ts_code":    symbol,
			"start_date": fp.Start,
			"end_date":   fp.End,
		}

		data, err := c.call(ctx, "daily_basic", params, factorsFields)
		if err != nil {
			return nil, err
		}

		rows := make([][]string, 0, len(data.Items))
		for _, item := range data.Items {
			rows = append(rows, []string{
				symbol,
				data.cell(item, "trade_date"),
				data.cell(item, "pe"),
				data.cell(item, "pb"),
				data.cell(item, "total_mv"),
				data.cell(item, "turnover_rate"),
			})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i][1] < rows[j][1] })

		for _, row := range rows {
			if err := table.AddRow(row...); err != nil {
				return nil, err
			}
		}
	}

	if table.Len() == 0 {
		return nil, fmt.Errorf("tushare returned no factors for the range")
	}
	return table, nil
}
