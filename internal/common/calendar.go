// -----------------------------------------------------------------------
// Market Calendar - Trading session schedules for supported markets
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxCalendarScan bounds walks across non-trading days.
// Covers multi-week closures like Lunar New Year plus surrounding weekends.
const maxCalendarScan = 30

// MarketSession describes the trading schedule of one market as loaded
// from markets.yaml. Clock values use "HH:MM" in the market's timezone,
// holidays use "YYYY-MM-DD".
type MarketSession struct {
	Timezone   string   `yaml:"timezone"`
	Open       string   `yaml:"open"`
	Close      string   `yaml:"close"`
	LunchStart string   `yaml:"lunch_start"` // empty = no lunch break
	LunchEnd   string   `yaml:"lunch_end"`
	Weekend    []string `yaml:"weekend"`
	Holidays   []string `yaml:"holidays"`
}

// calendarFile is the YAML document shape: market code -> session definition.
type calendarFile struct {
	Markets map[string]MarketSession `yaml:"markets"`
}

// marketSchedule is a compiled MarketSession ready for time arithmetic.
type marketSchedule struct {
	loc        *time.Location
	openMin    int // minutes from local midnight
	closeMin   int
	lunchStart int // -1 when the market has no lunch break
	lunchEnd   int
	weekend    map[time.Weekday]bool
	holidays   map[string]bool // keyed by "2006-01-02" in market-local time
}

// Calendar answers trading-session questions for the configured markets.
// Unknown markets fall back to a weekday-only UTC schedule.
type Calendar struct {
	schedules map[string]*marketSchedule
	fallback  *marketSchedule
}

// DefaultSessions returns the compiled session definitions for the
// supported markets. Holiday lists are empty; markets.yaml supplies them.
func DefaultSessions() map[string]MarketSession {
	return map[string]MarketSession{
		"cn": {
			Timezone:   "Asia/Shanghai",
			Open:       "09:30",
			Close:      "15:00",
			LunchStart: "11:30",
			LunchEnd:   "13:00",
			Weekend:    []string{"Saturday", "Sunday"},
		},
		"hk": {
			Timezone:   "Asia/Hong_Kong",
			Open:       "09:30",
			Close:      "16:00",
			LunchStart: "12:00",
			LunchEnd:   "13:00",
			Weekend:    []string{"Saturday", "Sunday"},
		},
		"us": {
			Timezone: "America/New_York",
			Open:     "09:30",
			Close:    "16:00",
			Weekend:  []string{"Saturday", "Sunday"},
		},
	}
}

// DefaultCalendar returns a calendar built from the compiled defaults.
func DefaultCalendar() *Calendar {
	c, err := NewCalendar(DefaultSessions())
	if err != nil {
		// The compiled defaults are static and always valid
		panic(err)
	}
	return c
}

// NewCalendar compiles session definitions into a Calendar.
func NewCalendar(sessions map[string]MarketSession) (*Calendar, error) {
	schedules := make(map[string]*marketSchedule, len(sessions))
	for market, session := range sessions {
		compiled, err := compileSession(market, session)
		if err != nil {
			return nil, err
		}
		schedules[market] = compiled
	}

	fallback, err := compileSession("fallback", MarketSession{
		Timezone: "UTC",
		Open:     "09:30",
		Close:    "16:00",
		Weekend:  []string{"Saturday", "Sunday"},
	})
	if err != nil {
		return nil, err
	}

	return &Calendar{schedules: schedules, fallback: fallback}, nil
}

// LoadCalendar builds a Calendar from a YAML file merged over the compiled
// defaults. A missing file is not an error; the defaults are used as-is.
// File entries override default fields per market and may add new markets.
func LoadCalendar(path string) (*Calendar, error) {
	sessions := DefaultSessions()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read calendar file %s: %w", path, err)
			}
		} else {
			var file calendarFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("failed to parse calendar file %s: %w", path, err)
			}
			for market, session := range file.Markets {
				if base, ok := sessions[market]; ok {
					sessions[market] = mergeSession(base, session)
				} else {
					sessions[market] = session
				}
			}
		}
	}

	return NewCalendar(sessions)
}

// mergeSession fills empty override fields from the base definition so a
// partial markets.yaml entry (holidays only) keeps the default hours.
func mergeSession(base, override MarketSession) MarketSession {
	if override.Timezone == "" {
		override.Timezone = base.Timezone
	}
	if override.Open == "" {
		override.Open = base.Open
	}
	if override.Close == "" {
		override.Close = base.Close
	}
	if override.LunchStart == "" {
		override.LunchStart = base.LunchStart
	}
	if override.LunchEnd == "" {
		override.LunchEnd = base.LunchEnd
	}
	if len(override.Weekend) == 0 {
		override.Weekend = base.Weekend
	}
	if len(override.Holidays) == 0 {
		override.Holidays = base.Holidays
	}
	return override
}

// Markets returns the sorted list of configured market codes.
func (c *Calendar) Markets() []string {
	markets := make([]string, 0, len(c.schedules))
	for market := range c.schedules {
		markets = append(markets, market)
	}
	sort.Strings(markets)
	return markets
}

// IsTradingDay reports whether the given time falls on a trading day of the
// market, in the market's local timezone.
func (c *Calendar) IsTradingDay(market string, t time.Time) bool {
	s := c.scheduleFor(market)
	return s.isTradingDate(t.In(s.loc))
}

// LastTradingDay returns the most recent trading day on or before the given
// time, as local midnight in the market's timezone.
func (c *Calendar) LastTradingDay(market string, t time.Time) time.Time {
	s := c.scheduleFor(market)
	lt := t.In(s.loc)
	current := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
	for i := 0; i < maxCalendarScan; i++ {
		if s.isTradingDate(current) {
			return current
		}
		current = current.AddDate(0, 0, -1)
	}
	// Fallback: return the original date if no trading day was found
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
}

// LastCompletedTradingDay returns the most recent trading day whose session
// had fully closed at the given time, as local midnight in the market's
// timezone. On a trading day before the close it returns the previous
// trading day.
func (c *Calendar) LastCompletedTradingDay(market string, t time.Time) time.Time {
	s := c.scheduleFor(market)
	lt := t.In(s.loc)
	day := c.LastTradingDay(market, t)
	sameDay := day.Year() == lt.Year() && day.YearDay() == lt.YearDay()
	if sameDay && minuteOfDay(lt) < s.closeMin {
		return c.LastTradingDay(market, day.AddDate(0, 0, -1))
	}
	return day
}

// IsSessionOpen reports whether the market is actively trading at the given
// time. Lunch breaks count as closed.
func (c *Calendar) IsSessionOpen(market string, t time.Time) bool {
	s := c.scheduleFor(market)
	lt := t.In(s.loc)
	if !s.isTradingDate(lt) {
		return false
	}
	m := minuteOfDay(lt)
	if m < s.openMin || m >= s.closeMin {
		return false
	}
	if s.lunchStart >= 0 && m >= s.lunchStart && m < s.lunchEnd {
		return false
	}
	return true
}

// NextOpen returns the first session open strictly after the given time.
// Markets with a lunch break reopen when the break ends.
func (c *Calendar) NextOpen(market string, t time.Time) time.Time {
	s := c.scheduleFor(market)
	lt := t.In(s.loc)
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
	for i := 0; i < maxCalendarScan; i++ {
		if s.isTradingDate(day) {
			opens := []int{s.openMin}
			if s.lunchStart >= 0 {
				opens = append(opens, s.lunchEnd)
			}
			for _, m := range opens {
				candidate := s.clockOn(day, m)
				if candidate.After(t) {
					return candidate
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return s.clockOn(day, s.openMin)
}

// NextClose returns the first daily close strictly after the given time.
func (c *Calendar) NextClose(market string, t time.Time) time.Time {
	s := c.scheduleFor(market)
	lt := t.In(s.loc)
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
	for i := 0; i < maxCalendarScan; i++ {
		if s.isTradingDate(day) {
			candidate := s.clockOn(day, s.closeMin)
			if candidate.After(t) {
				return candidate
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return s.clockOn(day, s.closeMin)
}

func (c *Calendar) scheduleFor(market string) *marketSchedule {
	if s, ok := c.schedules[market]; ok {
		return s
	}
	return c.fallback
}

func (s *marketSchedule) isTradingDate(lt time.Time) bool {
	if s.weekend[lt.Weekday()] {
		return false
	}
	return !s.holidays[lt.Format("2006-01-02")]
}

// clockOn combines a local date with a minute-of-day clock value.
// Built via time.Date so DST transitions resolve to the correct wall time.
func (s *marketSchedule) clockOn(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, s.loc)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func compileSession(market string, session MarketSession) (*marketSchedule, error) {
	loc, err := loadLocation(session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market %s: invalid timezone %q: %w", market, session.Timezone, err)
	}

	openMin, err := parseClock(session.Open)
	if err != nil {
		return nil, fmt.Errorf("market %s: invalid open time %q: %w", market, session.Open, err)
	}
	closeMin, err := parseClock(session.Close)
	if err != nil {
		return nil, fmt.Errorf("market %s: invalid close time %q: %w", market, session.Close, err)
	}
	if closeMin <= openMin {
		return nil, fmt.Errorf("market %s: close %q is not after open %q", market, session.Close, session.Open)
	}

	lunchStart, lunchEnd := -1, -1
	if session.LunchStart != "" || session.LunchEnd != "" {
		lunchStart, err = parseClock(session.LunchStart)
		if err != nil {
			return nil, fmt.Errorf("market %s: invalid lunch start %q: %w", market, session.LunchStart, err)
		}
		lunchEnd, err = parseClock(session.LunchEnd)
		if err != nil {
			return nil, fmt.Errorf("market %s: invalid lunch end %q: %w", market, session.LunchEnd, err)
		}
		if lunchEnd <= lunchStart {
			return nil, fmt.Errorf("market %s: lunch end %q is not after lunch start %q", market, session.LunchEnd, session.LunchStart)
		}
	}

	weekend := make(map[time.Weekday]bool, len(session.Weekend))
	for _, name := range session.Weekend {
		day, err := parseWeekday(name)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", market, err)
		}
		weekend[day] = true
	}

	holidays := make(map[string]bool, len(session.Holidays))
	for _, holiday := range session.Holidays {
		day, err := time.Parse("2006-01-02", holiday)
		if err != nil {
			return nil, fmt.Errorf("market %s: invalid holiday %q: %w", market, holiday, err)
		}
		holidays[day.Format("2006-01-02")] = true
	}

	return &marketSchedule{
		loc:        loc,
		openMin:    openMin,
		closeMin:   closeMin,
		lunchStart: lunchStart,
		lunchEnd:   lunchEnd,
		weekend:    weekend,
		holidays:   holidays,
	}, nil
}

// fallbackOffsets lets hosts without a tz database resolve the default
// market timezones to their standard offsets.
var fallbackOffsets = map[string]int{
	"Asia/Shanghai":    8 * 3600,
	"Asia/Hong_Kong":   8 * 3600,
	"America/New_York": -5 * 3600,
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if offset, ok := fallbackOffsets[name]; ok {
		return time.FixedZone(name, offset), nil
	}
	return nil, err
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", name)
}
