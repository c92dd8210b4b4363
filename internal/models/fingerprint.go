package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// HashLength is the length of the fixed-size entry identifier derived from a
// fingerprint, used as the cache file stem.
const HashLength = 24

// Fingerprint is the canonical, order-independent form of one logical
// request. Two logically identical requests always normalize to the same
// fingerprint; it is a pure function of its inputs with no hidden state.
type Fingerprint struct {
	Market     string     `json:"market"`
	Codes      []string   `json:"codes"`
	Capability Capability `json:"capability"`
	Start      string     `json:"start,omitempty"`
	End        string     `json:"end,omitempty"`
	Freq       int        `json:"freq,omitempty"`
	Adjust     int        `json:"adjust,omitempty"`
	Fields     string     `json:"fields,omitempty"`
}

// BuildFingerprint normalizes a request into its fingerprint, defaulting an
// omitted end date to today.
func BuildFingerprint(req *QuoteRequest) (*Fingerprint, error) {
	return BuildFingerprintAt(req, time.Now())
}

// BuildFingerprintAt is BuildFingerprint with an explicit clock, so
// open-ended date defaulting stays deterministic under test.
func BuildFingerprintAt(req *QuoteRequest, now time.Time) (*Fingerprint, error) {
	market, err := NormalizeMarket(req.Market)
	if err != nil {
		return nil, err
	}
	capability, err := ParseCapability(req.Capability)
	if err != nil {
		return nil, err
	}
	codes, err := NormalizeSymbols(market, req.Codes)
	if err != nil {
		return nil, err
	}

	fp := &Fingerprint{
		Market:     market,
		Codes:      codes,
		Capability: capability,
	}

	if capability.UsesDateRange() {
		start, end, err := NormalizeDateRange(req.Start, req.End, now)
		if err != nil {
			return nil, err
		}
		fp.Start = start
		fp.End = end
	}

	if capability.UsesBars() {
		freq, err := NormalizeFrequency(req.Freq)
		if err != nil {
			return nil, err
		}
		adjust, err := NormalizeAdjust(req.Adjust)
		if err != nil {
			return nil, err
		}
		fields, err := NormalizeFieldSet(req.Fields)
		if err != nil {
			return nil, err
		}
		fp.Freq = freq
		fp.Adjust = adjust
		fp.Fields = fields
	}

	return fp, nil
}

// Canonical returns the stable string form of the fingerprint. The layout
// always has seven pipe-separated segments; segments unused by the
// capability stay empty so the shape is fixed.
func (f *Fingerprint) Canonical() string {
	var rangeSeg, freqSeg, adjustSeg, fieldsSeg string
	if f.Capability.UsesDateRange() {
		rangeSeg = f.Start + "-" + f.End
	}
	if f.Capability.UsesBars() {
		freqSeg = strconv.Itoa(f.Freq)
		adjustSeg = strconv.Itoa(f.Adjust)
		fieldsSeg = f.Fields
	}
	return strings.Join([]string{
		f.Market,
		string(f.Capability),
		strings.Join(f.Codes, ","),
		rangeSeg,
		freqSeg,
		adjustSeg,
		fieldsSeg,
	}, "|")
}

// Hash returns the fixed-length hex identifier for storage paths.
func (f *Fingerprint) Hash() string {
	sum := sha256.Sum256([]byte(f.Canonical()))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// String returns the canonical form.
func (f *Fingerprint) String() string {
	return f.Canonical()
}
