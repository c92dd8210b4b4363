package tusharepro

import (
	"context"
	"fmt"

	"github.com/ternarybob/pretium/internal/models"
)

const profileFields = "ts_code,name,industry,list_date,introduction"

// FetchProfile retrieves the static company record via the stock_basic API,
// one row per code.
func (c *Client) FetchProfile(ctx context.Context, fp *models.Fingerprint) (*models.Table, error) {
	table := models.NewTable("code", "name", "industry", "listing_date", "description")

	for _, symbol := range fp.Codes {
		params := map[string]string{"ts_code": symbol}

		data, err := c.call(ctx, "stock_basic", params, profileFields)
		if err != nil {
			return nil, err
		}
		if len(data.Items) == 0 {
			return nil, fmt.Errorf("tushare has no listing for %s", symbol)
		}

		item := data.Items[0]
		err = table.AddRow(
			symbol,
			data.cell(item, "name"),
			data.cell(item, "industry"),
			data.cell(item, "list_date"),
			data.cell(item, "introduction"),
		)
		if err != nil {
			return nil, err
		}
	}

	return table, nil
}
