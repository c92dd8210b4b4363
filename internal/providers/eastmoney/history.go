package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/pretium/internal/models"
)

const (
	klinePath = "/api/qt/stock/kline/get"

	// klineMetaFields selects the response header block.
	klineMetaFields = "f1,f2,f3,f4,f5,f6"

	// klineBasicFields selects date, open, close, high, low, volume, amount
	// and amplitude per bar.
	klineBasicFields = "f51,f52,f53,f54,f55,f56,f57,f58"

	// klineFullFields extends the basic bar with change percent, change and
	// turnover percent.
	klineFullFields = "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"

	klineLimit = "10000"

	// historySegmentDays caps one kline request; longer ranges are fetched
	// in consecutive segments and concatenated.
	historySegmentDays = 365
)

// FetchHistory retrieves bars for every code in the fingerprint's range.
// The table carries a leading code column ahead of the bar schema.
func (c *Client) FetchHistory(ctx context.Context, fp *models.Fingerprint) (*models.Table, error) {
	columns := append([]string{"code"}, models.CapabilityHistory.RequiredColumns(fp.Fields)...)
	table := models.NewTable(columns...)
	full := fp.Fields == models.FieldSetFull

	for _, symbol := range fp.Codes {
		secids, err := secIDsFor(fp.Market, symbol)
		if err != nil {
			return nil, err
		}
		rows, err := c.fetchKlineSegments(ctx, secids, symbol, fp, full)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if err := table.AddRow(row...); err != nil {
				return nil, err
			}
		}
	}

	if table.Len() == 0 {
		return nil, fmt.Errorf("eastmoney returned no bars for %s", strings.Join(fp.Codes, ","))
	}
	return table, nil
}

// fetchKlineSegments walks the range in bounded segments, concatenating the
// parsed bars in date order.
func (c *Client) fetchKlineSegments(ctx context.Context, secids []string, symbol string, fp *models.Fingerprint, full bool) ([][]string, error) {
	start, err := time.Parse(models.DateLayout, fp.Start)
	if err != nil {
		return nil, fmt.Errorf("bad range start %q: %w", fp.Start, err)
	}
	end, err := time.Parse(models.DateLayout, fp.End)
	if err != nil {
		return nil, fmt.Errorf("bad range end %q: %w", fp.End, err)
	}

	fields2 := klineBasicFields
	if full {
		fields2 = klineFullFields
	}

	var rows [][]string
	for current := start; !current.After(end); {
		segEnd := current.AddDate(0, 0, historySegmentDays)
		if segEnd.After(end) {
			segEnd = end
		}

		klines, err := c.fetchKlines(ctx, secids, fp, fields2, current.Format(models.DateLayout), segEnd.Format(models.DateLayout))
		if err != nil {
			return nil, err
		}
		for _, line := range klines {
			row, err := parseKline(line, symbol, full)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}

		current = segEnd.AddDate(0, 0, 1)
	}
	return rows, nil
}

// fetchKlines requests one segment, probing the security ids in order until
// one returns bars. Empty responses for every id yield no rows, not an
// error; a range can legitimately hold no sessions.
func (c *Client) fetchKlines(ctx context.Context, secids []string, fp *models.Fingerprint, fields2, beg, end string) ([]string, error) {
	for _, secid := range secids {
		params := url.Values{}
		params.Set("secid", secid)
		params.Set("ut", utToken)
		params.Set("fields1", klineMetaFields)
		params.Set("fields2", fields2)
		params.Set("klt", strconv.Itoa(fp.Freq))
		params.Set("fqt", strconv.Itoa(fp.Adjust))
		params.Set("beg", beg)
		params.Set("end", end)
		params.Set("lmt", klineLimit)
		params.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10))

		var result klineResponse
		if err := c.getJSON(ctx, c.baseURL+klinePath, params, &result); err != nil {
			return nil, err
		}
		if result.Data != nil && len(result.Data.Klines) > 0 {
			return result.Data.Klines, nil
		}
	}
	return nil, nil
}

// parseKline maps one comma-joined bar to a table row. The wire order is
// date, open, close, high, low, volume, amount, amplitude, then change
// percent, change and turnover percent for the full field set.
func parseKline(line, symbol string, full bool) ([]string, error) {
	parts := strings.Split(line, ",")
	need := 7
	if full {
		need = 11
	}
	if len(parts) < need {
		return nil, fmt.Errorf("malformed kline %q", line)
	}

	date := strings.ReplaceAll(parts[0], "-", "")
	row := []string{symbol, date, parts[1], parts[3], parts[4], parts[2], parts[5], parts[6]}
	if full {
		row = append(row, parts[8], parts[10], parts[9], parts[7])
	}
	return row, nil
}
