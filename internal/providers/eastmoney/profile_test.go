package eastmoney

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/pretium/internal/models"
)

const surveyPage = `<html><body>
<div class="survey">
<table>
<tr><td>公司名称：</td><td>贵州茅台酒股份有限公司</td><td>所属行业：</td><td>白酒</td></tr>
<tr><td>上市日期：</td><td>2001-08-27</td><td>法定代表人：</td><td>张德芹</td></tr>
<tr><td>公司简介：</td><td>公司主营贵州茅台酒系列产品的生产与销售。</td></tr>
</table>
</div>
</body></html>`

func profileFingerprint(codes ...string) *models.Fingerprint {
	return &models.Fingerprint{
		Market:     "cn",
		Codes:      codes,
		Capability: models.CapabilityProfile,
	}
}

func TestFetchProfileScrapesSurveyTable(t *testing.T) {
	// Setup
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"type": r.URL.Query().Get("type"),
			"code": r.URL.Query().Get("code"),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(surveyPage))
	}))
	defer server.Close()
	client := newTestClient(t, server)

	// Test
	table, err := client.FetchProfile(context.Background(), profileFingerprint("600519.SH"))

	// Verify
	require.NoError(t, err)
	assert.Equal(t, "web", gotQuery["type"])
	assert.Equal(t, "SH600519", gotQuery["code"])

	assert.Equal(t, []string{"code", "name", "industry", "listing_date", "description"}, table.Columns)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, []string{
		"600519.SH",
		"贵州茅台酒股份有限公司",
		"白酒",
		"20010827",
		"公司主营贵州茅台酒系列产品的生产与销售。",
	}, table.Rows[0])
}

func TestFetchProfileMissingSurveyIsError(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><p>page moved</p></body></html>"))
	}))
	defer server.Close()
	client := newTestClient(t, server)

	// Test
	table, err := client.FetchProfile(context.Background(), profileFingerprint("600519.SH"))

	// Verify
	require.Error(t, err)
	assert.Nil(t, table)
	assert.Contains(t, err.Error(), "no survey table")
}

func TestPageCode(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"600519.SH", "SH600519"},
		{"000001.SZ", "SZ000001"},
		{"00700.HK", "HK00700"},
		{"600519", "600519"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, pageCode(tt.symbol))
	}
}

func TestCleanLabel(t *testing.T) {
	assert.Equal(t, "公司名称", cleanLabel(" 公司名称： "))
	assert.Equal(t, "industry", cleanLabel("industry:"))
	assert.Equal(t, "", cleanLabel("  "))
}
