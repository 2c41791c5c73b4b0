// Package timeresolve turns natural relative-time expressions into absolute
// dates and times anchored to a user's current time in their timezone.
package timeresolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Confidence grades how a resolution was produced.
type Confidence string

const (
	// High means every component came from an explicit keyword, number or clock time.
	High Confidence = "high"
	// Medium means a weekday, week or part-of-day heuristic was involved.
	Medium Confidence = "medium"
	// Low means nothing was recognised.
	Low Confidence = "low"
)

func (c Confidence) rank() int {
	switch c {
	case High:
		return 2
	case Medium:
		return 1
	default:
		return 0
	}
}

func minConfidence(a, b Confidence) Confidence {
	if a.rank() <= b.rank() {
		return a
	}
	return b
}

// Resolution is the result of resolving one expression. Date is local
// midnight, Time is "HH:MM", At is set when both are known.
type Resolution struct {
	Date       *time.Time
	Time       *string
	At         *time.Time
	Confidence Confidence
}

// Matched reports whether any date or time component was recognised.
func (r Resolution) Matched() bool {
	return r.Date != nil || r.Time != nil
}

func (r Resolution) String() string {
	switch {
	case r.At != nil:
		return fmt.Sprintf("%s %s", r.At.Format(DateLayout), r.At.Format(ClockLayout))
	case r.Date != nil:
		return r.Date.Format(DateLayout)
	case r.Time != nil:
		return *r.Time
	default:
		return "unresolved"
	}
}

const numberAlt = `(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|fifteen|twenty|thirty|forty|forty-five|fifty|sixty)`

// maxOffsetDays bounds relative offsets; larger counts are treated as
// unrecognised rather than overflowing.
const maxOffsetDays = 3650

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "fifteen": 15, "twenty": 20, "thirty": 30, "forty": 40,
	"forty-five": 45, "fifty": 50, "sixty": 60,
}

var (
	spaceRe = regexp.MustCompile(`\s+`)

	halfHourRe   = regexp.MustCompile(`\bin\s+half\s+an?\s+hour\b`)
	inDurationRe = regexp.MustCompile(`\bin\s+` + numberAlt + `\s*(minutes?|mins?|hours?|hrs?)\b`)
	dayAfterRe   = regexp.MustCompile(`\bday\s+after\s+tomorrow\b`)
	tomorrowRe   = regexp.MustCompile(`\btomorrow\b`)
	todayRe      = regexp.MustCompile(`\b(today|tonight)\b`)
	inDaysRe     = regexp.MustCompile(`\bin\s+` + numberAlt + `\s+days?\b`)
	inWeeksRe    = regexp.MustCompile(`\bin\s+` + numberAlt + `\s+weeks?\b`)
	nextWeekRe   = regexp.MustCompile(`\bnext\s+week\b`)
	endOfWeekRe  = regexp.MustCompile(`\b(this\s+week|end\s+of\s+(the\s+)?week)\b`)
	weekdayRe    = regexp.MustCompile(`\b(next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	clock12Re    = regexp.MustCompile(`\b(1[0-2]|0?[1-9])(?::([0-5]\d))?\s*(am\b|pm\b|a\.m\.|p\.m\.)`)
	clock24Re    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	atHourRe     = regexp.MustCompile(`\bat\s+([01]?\d|2[0-3])(\s*o'?clock)?\b`)
	partOfDayRe  = regexp.MustCompile(`\b(morning|noon|midday|afternoon|evening|tonight|night)\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

var partOfDayHours = map[string]int{
	"morning":   9,
	"noon":      12,
	"midday":    12,
	"afternoon": 14,
	"evening":   18,
	"night":     21,
	"tonight":   21,
}

type clock struct {
	hour, minute int
}

func (c clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}

// Resolve converts expr into an absolute date and/or time anchored at a.
// Unrecognised expressions yield a Low resolution with no components.
func Resolve(expr string, a Anchor) Resolution {
	s := normalize(expr)
	if s == "" {
		return Resolution{Confidence: Low}
	}

	if d, ok := parseRelativeDuration(s); ok {
		at := a.Now().Add(d)
		return fromInstant(at, High)
	}

	date, dateConf, dateOK := resolveDate(s, a)
	c, clockConf, clockOK := resolveClock(s)

	switch {
	case dateOK && clockOK:
		at := time.Date(date.Year(), date.Month(), date.Day(), c.hour, c.minute, 0, 0, a.Location())
		return fromInstant(at, minConfidence(dateConf, clockConf))
	case dateOK:
		return Resolution{Date: &date, Confidence: dateConf}
	case clockOK:
		// A bare clock time means the next occurrence of it.
		at := time.Date(a.Now().Year(), a.Now().Month(), a.Now().Day(), c.hour, c.minute, 0, 0, a.Location())
		conf := clockConf
		if at.Before(a.Now()) {
			next := a.AddDays(1)
			at = time.Date(next.Year(), next.Month(), next.Day(), c.hour, c.minute, 0, 0, a.Location())
			conf = minConfidence(conf, Medium)
		}
		return fromInstant(at, conf)
	default:
		return Resolution{Confidence: Low}
	}
}

// ParseClock extracts an explicit clock time ("3pm", "15:30", "9:05 a.m.")
// from s and returns it as "HH:MM".
func ParseClock(s string) (string, bool) {
	c, ok := parseExplicitClock(normalize(s))
	if !ok {
		return "", false
	}
	return c.String(), true
}

func normalize(expr string) string {
	s := strings.ToLower(strings.TrimSpace(expr))
	return spaceRe.ReplaceAllString(s, " ")
}

func fromInstant(at time.Time, conf Confidence) Resolution {
	date := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	hm := at.Format(ClockLayout)
	return Resolution{Date: &date, Time: &hm, At: &at, Confidence: conf}
}

func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	n, ok := numberWords[s]
	return n, ok
}

func parseRelativeDuration(s string) (time.Duration, bool) {
	if halfHourRe.MatchString(s) {
		return 30 * time.Minute, true
	}
	m := inDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	unit, limit := time.Minute, maxOffsetDays*24*60
	if strings.HasPrefix(m[2], "h") {
		unit, limit = time.Hour, maxOffsetDays*24
	}
	if n > limit {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// resolveDate applies the keyword rules in priority order.
func resolveDate(s string, a Anchor) (time.Time, Confidence, bool) {
	switch {
	case dayAfterRe.MatchString(s):
		return a.AddDays(2), High, true
	case tomorrowRe.MatchString(s):
		return a.AddDays(1), High, true
	case todayRe.MatchString(s):
		return a.AddDays(0), High, true
	}

	if m := inDaysRe.FindStringSubmatch(s); m != nil {
		if n, ok := parseNumber(m[1]); ok && n <= maxOffsetDays {
			return a.AddDays(n), High, true
		}
	}
	if m := inWeeksRe.FindStringSubmatch(s); m != nil {
		if n, ok := parseNumber(m[1]); ok && n <= maxOffsetDays/7 {
			return a.AddDays(7 * n), High, true
		}
	}
	if nextWeekRe.MatchString(s) {
		return a.AddDays(7), Medium, true
	}
	if endOfWeekRe.MatchString(s) {
		// Coming Friday; today when it is Friday, next week's after that.
		days := (int(time.Friday) - int(a.Now().Weekday()) + 7) % 7
		return a.AddDays(days), Medium, true
	}
	if m := weekdayRe.FindStringSubmatch(s); m != nil {
		target := weekdays[m[2]]
		days := (int(target) - int(a.Now().Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		if m[1] != "" {
			days += 7
		}
		return a.AddDays(days), Medium, true
	}
	return time.Time{}, Low, false
}

func parseExplicitClock(s string) (clock, bool) {
	if m := clock12Re.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && h < 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		return clock{hour: h, minute: minute}, true
	}
	if m := clock24Re.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return clock{hour: h, minute: minute}, true
	}
	return clock{}, false
}

func resolveClock(s string) (clock, Confidence, bool) {
	if c, ok := parseExplicitClock(s); ok {
		return c, High, true
	}

	pod := partOfDayRe.FindString(s)

	if m := atHourRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		switch {
		case h < 12 && (pod == "afternoon" || pod == "evening" || pod == "night" || pod == "tonight"):
			return clock{hour: h + 12}, High, true
		case pod == "" && h >= 1 && h <= 6:
			// "at 3" almost always means the afternoon.
			return clock{hour: h + 12}, Medium, true
		default:
			return clock{hour: h}, High, true
		}
	}

	if pod != "" {
		return clock{hour: partOfDayHours[pod]}, Medium, true
	}
	return clock{}, Low, false
}
