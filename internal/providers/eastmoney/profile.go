package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/pretium/internal/models"
)

const profilePath = "/PC_HSF10/CompanySurvey/Index"

// profileKeyAliases maps schema columns to the labels the survey page uses.
// The first alias found wins.
var profileKeyAliases = map[string][]string{
	"name":         {"公司名称", "证券简称", "name"},
	"industry":     {"所属行业", "所属东财行业", "industry"},
	"listing_date": {"上市日期", "listing_date"},
	"description":  {"公司简介", "经营范围", "主营业务", "description"},
}

// FetchProfile scrapes the company survey page for every code in the
// fingerprint, one row per code.
func (c *Client) FetchProfile(ctx context.Context, fp *models.Fingerprint) (*models.Table, error) {
	table := models.NewTable("code", "name", "industry", "listing_date", "description")

	for _, symbol := range fp.Codes {
		params := url.Values{}
		params.Set("type", "web")
		params.Set("code", pageCode(symbol))

		doc, err := c.getDocument(ctx, c.profileURL+profilePath, params)
		if err != nil {
			return nil, err
		}

		pairs := surveyPairs(doc)
		if len(pairs) == 0 {
			return nil, fmt.Errorf("eastmoney profile page for %s has no survey table", symbol)
		}

		listingDate := lookupAlias(pairs, profileKeyAliases["listing_date"])
		if normalized, err := models.NormalizeDate(listingDate); err == nil {
			listingDate = normalized
		}

		err = table.AddRow(
			symbol,
			lookupAlias(pairs, profileKeyAliases["name"]),
			lookupAlias(pairs, profileKeyAliases["industry"]),
			listingDate,
			lookupAlias(pairs, profileKeyAliases["description"]),
		)
		if err != nil {
			return nil, err
		}
	}

	return table, nil
}

// surveyPairs flattens every table on the page into label/value pairs.
// Survey rows lay cells out as alternating label and value columns.
func surveyPairs(doc *goquery.Document) map[string]string {
	pairs := make(map[string]string)
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		for i := 0; i+1 < cells.Length(); i += 2 {
			key := cleanLabel(cells.Eq(i).Text())
			value := strings.TrimSpace(cells.Eq(i + 1).Text())
			if key != "" && value != "" {
				pairs[key] = value
			}
		}
	})
	return pairs
}

// cleanLabel trims whitespace and the trailing colon off a survey label.
func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "：")
	s = strings.TrimSuffix(s, ":")
	return strings.TrimSpace(s)
}

func lookupAlias(pairs map[string]string, aliases []string) string {
	for _, alias := range aliases {
		if value, ok := pairs[alias]; ok {
			return value
		}
	}
	return ""
}

// pageCode converts a canonical symbol to the exchange-prefixed form the
// profile pages use, SH600519 for 600519.SH.
func pageCode(symbol string) string {
	code, suffix := models.SplitSymbol(symbol)
	if suffix == "" {
		return code
	}
	return suffix + code
}
