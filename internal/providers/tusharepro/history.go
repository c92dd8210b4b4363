package tusharepro

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/pretium/internal/models"
)

// historyAPIByFreq maps canonical bar-interval codes to API names. Minute
// intervals have no API here; the registry falls back to another source.
var historyAPIByFreq = map[int]string{
	models.FreqDaily:   "daily",
	models.FreqWeekly:  "weekly",
	models.FreqMonthly: "monthly",
}

// adjByCode maps canonical adjustment codes to the adj parameter.
var adjByCode = map[int]string{
	models.AdjustNone:    "",
	models.AdjustForward: "qfq",
	models.AdjustBack:    "hfq",
}

const historyFields = "ts_code,trade_date,open,high,low,close,vol,amount,pct_chg,change"

// historyAliases maps bar schema columns to response field names.
var historyAliases = map[string]string{
	"date":       "trade_date",
	"volume":     "vol",
	"change_pct": "pct_chg",
}

// FetchHistory retrieves bars for every code in the fingerprint's range, one
// API call per code, rows ascending by date within each code.
func (c *Client) FetchHistory(ctx context.Context, fp *models.Fingerprint) (*models.Table, error) {
	apiName, ok := historyAPIByFreq[fp.Freq]
	if !ok {
		return nil, fmt.Errorf("tushare does not serve minute bars (freq %d)", fp.Freq)
	}

	columns := append([]string{"code"}, models.CapabilityHistory.RequiredColumns(fp.Fields)...)
	table := models.NewTable(columns...)

	for _, symbol := range fp.Codes {
		params := map[string]string{
			"ts_code":    symbol,
			"start_date": fp.Start,
			"end_date":   fp.End,
		}
		if adj := adjByCode[fp.Adjust]; adj != "" {
			params["adj"] = adj
		}

		data, err := c.call(ctx, apiName, params, historyFields)
		if err != nil {
			return nil, err
		}

		rows := make([][]string, 0, len(data.Items))
		for _, item := range data.Items {
			row := make([]string, 0, len(columns))
			row = append(row, symbol)
			for _, column := range columns[1:] {
				source := column
				if alias, ok := historyAliases[column]; ok {
					source = alias
				}
				row = append(row, data.cell(item, source))
			}
			rows = append(rows, row)
		}

		// The API serves newest first; bars read oldest first
		sort.Slice(rows, func(i, j int) bool { return rows[i][1] < rows[j][1] })

		for _, row := range rows {
			if err := table.AddRow(row...); err != nil {
				return nil, err
			}
		}
	}

	if table.Len() == 0 {
		return nil, fmt.Errorf("tushare returned no bars for %s", strings.Join(fp.Codes, ","))
	}
	return table, nil
}
