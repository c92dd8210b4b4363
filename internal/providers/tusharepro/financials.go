package tusharepro

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/pretium/internal/models"
)

const financialsFields = "ts_code,end_date,revenue,n_income,basic_eps,roe"

// FetchFinancials retrieves income statement periods over the fingerprint's
// range. Fields the account tier does not serve come back empty; the column
// set stays fixed.
func (c *Client) FetchFinancials(ctx context.Context, fp *models.Fingerprint) (*models.Table, error) {
	table := models.NewTable("code", "period", "revenue", "net_profit", "eps", "roe")

	for _, symbol := range fp.Codes {
		params := map[string]string{
			"ts_code":    symbol,
			"start_date": fp.Start,
			"end_date":   fp.End,
		}

		data, err := c.call(ctx, "income", params, financialsFields)
		if err != nil {
			return nil, err
		}

		rows := make([][]string, 0, len(data.Items))
		for _, item := range data.Items {
			rows = append(rows, []string{
				symbol,
				data.cell(item, "end_date"),
				data.cell(item, "revenue"),
				data.cell(item, "n_income"),
				data.cell(item, "basic_eps"),
				data.cell(item, "roe"),
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
		return nil, fmt.Errorf("tushare returned no financial periods for the range")
	}
	return table, nil
}
