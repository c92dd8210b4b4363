package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Supported markets.
const (
	MarketCN = "cn"
	MarketHK = "hk"
	MarketUS = "us"
)

// DateLayout is the canonical calendar form used in fingerprints and cache
// metadata.
const DateLayout = "20060102"

// DefaultRangeDays is the calendar span used when a request omits its start
// date.
const DefaultRangeDays = 30

// dateLayouts are the accepted human date formats, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006-01-02 15:04:05",
}

// NormalizeDate converts any accepted date format to canonical YYYYMMDD.
func NormalizeDate(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", &InvalidParameterError{Field: "date", Value: s, Reason: "unrecognized date format"}
}

// NormalizeDateRange canonicalizes a date range. A missing end defaults to
// the current date, a missing start to DefaultRangeDays before the end, so an
// open-ended request built on a different day produces a different range.
func NormalizeDateRange(start, end string, now time.Time) (string, string, error) {
	var endStr string
	if strings.TrimSpace(end) == "" {
		endStr = now.Format(DateLayout)
	} else {
		normalized, err := NormalizeDate(end)
		if err != nil {
			return "", "", err
		}
		endStr = normalized
	}

	var startStr string
	if strings.TrimSpace(start) == "" {
		endTime, err := time.Parse(DateLayout, endStr)
		if err != nil {
			return "", "", &InvalidParameterError{Field: "end", Value: end, Reason: "unrecognized date format"}
		}
		startStr = endTime.AddDate(0, 0, -DefaultRangeDays).Format(DateLayout)
	} else {
		normalized, err := NormalizeDate(start)
		if err != nil {
			return "", "", err
		}
		startStr = normalized
	}

	if startStr > endStr {
		return "", "", &InvalidParameterError{Field: "start", Value: start, Reason: "start is after end"}
	}
	return startStr, endStr, nil
}

// Canonical bar-interval codes. Minute bars use the interval length; daily,
// weekly and monthly bars use 101, 102 and 103.
const (
	Freq1Min    = 1
	Freq5Min    = 5
	Freq15Min   = 15
	Freq30Min   = 30
	Freq60Min   = 60
	FreqDaily   = 101
	FreqWeekly  = 102
	FreqMonthly = 103
)

// freqAliases maps every accepted human spelling to its canonical code.
var freqAliases = map[string]int{
	"1min": Freq1Min, "1m": Freq1Min,
	"5min": Freq5Min, "5m": Freq5Min,
	"15min": Freq15Min, "15m": Freq15Min,
	"30min": Freq30Min, "30m": Freq30Min,
	"60min": Freq60Min, "60m": Freq60Min, "1h": Freq60Min,
	"daily": FreqDaily, "day": FreqDaily, "d": FreqDaily, "1d": FreqDaily,
	"weekly": FreqWeekly, "week": FreqWeekly, "w": FreqWeekly, "1w": FreqWeekly,
	"monthly": FreqMonthly, "month": FreqMonthly, "m": FreqMonthly, "1mo": FreqMonthly,
}

// canonicalFreqs is the set of valid canonical codes, for numeric passthrough.
var canonicalFreqs = map[int]bool{
	Freq1Min: true, Freq5Min: true, Freq15Min: true, Freq30Min: true,
	Freq60Min: true, FreqDaily: true, FreqWeekly: true, FreqMonthly: true,
}

// NormalizeFrequency collapses a frequency alias to its canonical code.
// Empty defaults to daily. A numeric string already equal to a canonical code
// passes through.
func NormalizeFrequency(freq string) (int, error) {
	f := strings.ToLower(strings.TrimSpace(freq))
	if f == "" {
		return FreqDaily, nil
	}
	if code, ok := freqAliases[f]; ok {
		return code, nil
	}
	if n, err := strconv.Atoi(f); err == nil && canonicalFreqs[n] {
		return n, nil
	}
	return 0, &InvalidFrequencyError{Frequency: freq}
}

// Adjustment codes for bar prices.
const (
	AdjustNone    = 0
	AdjustForward = 1
	AdjustBack    = 2
)

// NormalizeAdjust collapses an adjustment alias to its canonical code.
// Empty defaults to forward adjustment.
func NormalizeAdjust(adjust string) (int, error) {
	a := strings.ToLower(strings.TrimSpace(adjust))
	switch a {
	case "":
		return AdjustForward, nil
	case "none":
		return AdjustNone, nil
	case "qfq", "forward":
		return AdjustForward, nil
	case "hfq", "back":
		return AdjustBack, nil
	case "0", "1", "2":
		n, _ := strconv.Atoi(a)
		return n, nil
	}
	return 0, &InvalidParameterError{Field: "adjust", Value: adjust, Reason: "unknown adjustment type"}
}

// NormalizeMarket validates and lowercases a market identifier.
func NormalizeMarket(market string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(market))
	switch m {
	case MarketCN, MarketHK, MarketUS:
		return m, nil
	}
	return "", &InvalidParameterError{Field: "market", Value: market, Reason: "unknown market"}
}

// NormalizeSymbol converts a raw code to the suffixed exchange form:
// cn "600519" becomes "600519.SH", hk "700" becomes "00700.HK", us "aapl"
// becomes "AAPL.US". A code that already carries a suffix is kept as is
// (uppercased).
func NormalizeSymbol(market, code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "", &InvalidParameterError{Field: "code", Reason: "empty code"}
	}
	if strings.Contains(c, ".") {
		return c, nil
	}

	switch market {
	case MarketCN:
		if len(c) != 6 || !allDigits(c) {
			return "", &InvalidParameterError{Field: "code", Value: code, Reason: "cn codes are 6 digits"}
		}
		switch c[0] {
		case '6':
			return c + ".SH", nil
		case '0', '3':
			return c + ".SZ", nil
		case '9':
			return c + ".BJ", nil
		}
		return "", &InvalidParameterError{Field: "code", Value: code, Reason: "unrecognized cn code prefix"}
	case MarketHK:
		if !allDigits(c) {
			return "", &InvalidParameterError{Field: "code", Value: code, Reason: "hk codes are numeric"}
		}
		if len(c) > 5 {
			return "", &InvalidParameterError{Field: "code", Value: code, Reason: "hk codes are at most 5 digits"}
		}
		return strings.Repeat("0", 5-len(c)) + c + ".HK", nil
	case MarketUS:
		return c + ".US", nil
	}
	return "", &InvalidParameterError{Field: "market", Value: market, Reason: "unknown market"}
}

// NormalizeSymbols normalizes, de-duplicates and sorts a code list so the
// caller's ordering never affects the result.
func NormalizeSymbols(market string, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, &InvalidParameterError{Field: "codes", Reason: "at least one code is required"}
	}
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		symbol, err := NormalizeSymbol(market, code)
		if err != nil {
			return nil, err
		}
		if !seen[symbol] {
			seen[symbol] = true
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SplitSymbol separates a suffixed symbol into its bare code and exchange
// suffix. A symbol without a suffix returns an empty suffix.
func SplitSymbol(symbol string) (code, suffix string) {
	if idx := strings.LastIndex(symbol, "."); idx >= 0 {
		return symbol[:idx], symbol[idx+1:]
	}
	return symbol, ""
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
