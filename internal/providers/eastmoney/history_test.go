package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/pretium/internal/models"
)

func historyFingerprint(market string, codes []string, start, end string, fields string) *models.Fingerprint {
	return &models.Fingerprint{
		Market:     market,
		Codes:      codes,
		Capability: models.CapabilityHistory,
		Start:      start,
		End:        end,
		Freq:       models.FreqDaily,
		Adjust:     models.AdjustForward,
		Fields:     fields,
	}
}

func klineBody(klines ...string) string {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"code":   "600519",
			"name":   "贵州茅台",
			"klines": klines,
		},
	}
	body, _ := json.Marshal(payload)
	return string(body)
}

func TestFetchHistoryParsesBasicBars(t *testing.T) {
	// Setup
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"secid":   r.URL.Query().Get("secid"),
			"fields2": r.URL.Query().Get("fields2"),
			"klt":     r.URL.Query().Get("klt"),
			"fqt":     r.URL.Query().Get("fqt"),
			"beg":     r.URL.Query().Get("beg"),
			"end":     r.URL.Query().Get("end"),
		}
		w.Write([]byte(klineBody(
			"2024-01-02,1685.00,1700.50,1702.00,1680.10,32000,5400000000,1.30",
			"2024-01-03,1700.50,1695.00,1705.00,1690.00,28000,4700000000,0.88",
		)))
	}))
	defer server.Close()
	client := newTestClient(t, server)
	fp := historyFingerprint("cn", []string{"600519.SH"}, "20240101", "20240131", models.FieldSetBasic)

	// Test
	table, err := client.FetchHistory(context.Background(), fp)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, "1.600519", gotQuery["secid"])
	assert.Equal(t, klineBasicFields, gotQuery["fields2"])
	assert.Equal(t, "101", gotQuery["klt"])
	assert.Equal(t, "1", gotQuery["fqt"])
	assert.Equal(t, "20240101", gotQuery["beg"])
	assert.Equal(t, "20240131", gotQuery["end"])

	assert.Equal(t, []string{"code", "date", "open", "high", "low", "close", "volume", "amount"}, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"600519.SH", "20240102", "1685.00", "1702.00", "1680.10", "1700.50", "32000", "5400000000"}, table.Rows[0])
	assert.Equal(t, []string{"600519.SH", "20240103", "1700.50", "1705.00", "1690.00", "1695.00", "28000", "4700000000"}, table.Rows[1])
}

func TestFetchHistoryFullFieldSet(t *testing.T) {
	// Setup
	var fields2 string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields2 = r.URL.Query().Get("fields2")
		w.Write([]byte(klineBody(
			"2024-01-02,1685.00,1700.50,1702.00,1680.10,32000,5400000000,1.30,0.92,15.50,0.25",
		)))
	}))
	defer server.Close()
	client := newTestClient(t, server)
	fp := historyFingerprint("cn", []string{"600519.SH"}, "20240101", "20240131", models.FieldSetFull)

	// Test
	table, err := client.FetchHistory(context.Background(), fp)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, klineFullFields, fields2)
	assert.Equal(t, []string{
		"code", "date", "open", "high", "low", "close", "volume", "amount",
		"change_pct", "turnover_pct", "change", "amplitude_pct",
	}, table.Columns)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, []string{
		"600519.SH", "20240102", "1685.00", "1702.00", "1680.10", "1700.50", "32000", "5400000000",
		"0.92", "0.25", "15.50", "1.30",
	}, table.Rows[0])
}

func TestFetchHistorySegmentsLongRanges(t *testing.T) {
	// Setup
	var segments [][2]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		beg := r.URL.Query().Get("beg")
		end := r.URL.Query().Get("end")
		segments = append(segments, [2]string{beg, end})
		w.Write([]byte(klineBody(
			fmt.Sprintf("%s-01-15,100,101,102,99,1000,100000,1.0", beg[:4]),
		)))
	}))
	defer server.Close()
	client := newTestClient(t, server)
	fp := historyFingerprint("cn", []string{"600519.SH"}, "20220101", "20230615", models.FieldSetBasic)

	// Test
	table, err := client.FetchHistory(context.Background(), fp)

	// Verify
	require.NoError(t, err)
	require.Len(t, segments, 2, "a 530 day range should fetch in two segments")
	assert.Equal(t, [2]string{"20220101", "20230101"}, segments[0])
	assert.Equal(t, [2]string{"20230102", "20230615"}, segments[1])
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "20220115", table.Rows[0][1])
	assert.Equal(t, "20230115", table.Rows[1][1])
}

func TestFetchHistoryProbesUSExchanges(t *testing.T) {
	// Setup
	var secids []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secid := r.URL.Query().Get("secid")
		secids = append(secids, secid)
		if secid == "106.KO" {
			w.Write([]byte(klineBody("2024-01-02,59.10,59.80,60.00,58.90,7000000,415000000,1.85")))
			return
		}
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()
	client := newTestClient(t, server)
	fp := historyFingerprint("us", []string{"KO.US"}, "20240101", "20240131", models.FieldSetBasic)

	// Test
	table, err := client.FetchHistory(context.Background(), fp)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, []string{"105.KO", "106.KO"}, secids, "probing should stop at the first id with bars")
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "KO.US", table.Rows[0][0])
}

func TestFetchHistoryMultipleCodes(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secid := r.URL.Query().Get("secid")
		w.Write([]byte(klineBody(secid + ",100,101,102,99,1000,100000,1.0")))
	}))
	defer server.Close()
	client := newTestClient(t, server)
	fp := historyFingerprint("cn", []string{"000001.SZ", "600519.SH"}, "20240101", "20240131", models.FieldSetBasic)

	// Test
	table, err := client.FetchHistory(context.Background(), fp)

	// Verify
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "000001.SZ", table.Rows[0][0])
	assert.Equal(t, "600519.SH", table.Rows[1][0])
}

func TestFetchHistoryEmptyDataIsError(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()
	client := newTestClient(t, server)
	fp := historyFingerprint("cn", []string{"600519.SH"}, "20240101", "20240131", models.FieldSetBasic)

	// Test
	table, err := client.FetchHistory(context.Background(), fp)

	// Verify
	require.Error(t, err)
	assert.Nil(t, table)
	assert.Contains(t, err.Error(), "no bars")
}

func TestFetchHistoryMalformedKlineIsError(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(klineBody("2024-01-02,1685.00")))
	}))
	defer server.Close()
	client := newTestClient(t, server)
	fp := historyFingerprint("cn", []string{"600519.SH"}, "20240101", "20240131", models.FieldSetBasic)

	// Test
	_, err := client.FetchHistory(context.Background(), fp)

	// Verify
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed kline")
}

func TestFetchHistoryUpstreamErrorPropagates(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()
	client := newTestClient(t, server)
	fp := historyFingerprint("cn", []string{"600519.SH"}, "20240101", "20240131", models.FieldSetBasic)

	// Test
	_, err := client.FetchHistory(context.Background(), fp)

	// Verify
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}
