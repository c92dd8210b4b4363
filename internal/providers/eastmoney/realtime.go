package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ternarybob/pretium/internal/models"
)

const (
	quotePath = "/api/qt/stock/get"

	// quoteFields selects price, volume, amount, code, name, quote time and
	// change percent.
	quoteFields = "f43,f47,f48,f57,f58,f86,f170"
)

// FetchRealtime retrieves the latest snapshot for every code in the
// fingerprint, one row per code.
func (c *Client) FetchRealtime(ctx context.Context, fp *models.Fingerprint) (*models.Table, error) {
	table := models.NewTable("code", "name", "price", "change_pct", "volume", "amount", "time")

	for _, symbol := range fp.Codes {
		secids, err := secIDsFor(fp.Market, symbol)
		if err != nil {
			return nil, err
		}

		quote, err := c.fetchQuote(ctx, secids)
		if err != nil {
			return nil, err
		}
		if quote == nil {
			return nil, fmt.Errorf("eastmoney returned no quote for %s", symbol)
		}

		quoteTime := ""
		if quote.Time > 0 {
			quoteTime = time.Unix(quote.Time, 0).UTC().Format("2006-01-02 15:04:05")
		}
		err = table.AddRow(
			symbol,
			quote.Name,
			quote.Price.String(),
			quote.ChangePct.String(),
			quote.Volume.String(),
			quote.Amount.String(),
			quoteTime,
		)
		if err != nil {
			return nil, err
		}
	}

	return table, nil
}

// fetchQuote probes the security ids in order and returns the first snapshot
// that resolves, nil when none does.
func (c *Client) fetchQuote(ctx context.Context, secids []string) (*quoteData, error) {
	for _, secid := range secids {
		params := url.Values{}
		params.Set("secid", secid)
		params.Set("ut", utToken)
		params.Set("fields", quoteFields)
		params.Set("invt", "2")
		params.Set("fltt", "2")

		var result quoteResponse
		if err := c.getJSON(ctx, c.realtimeURL+quotePath, params, &result); err != nil {
			return nil, err
		}
		if result.Data != nil && result.Data.Code != "" {
			return result.Data, nil
		}
	}
	return nil, nil
}
