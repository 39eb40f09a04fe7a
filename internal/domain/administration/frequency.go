package administration

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultHour is the single slot used for daily orders and for any
// frequency text that is not recognised.
const DefaultHour = 9

var everyNHours = regexp.MustCompile(`every\s+(\d+)\s*(?:hours?|hrs?)`)

// frequencyRule is one row of the pattern table. Rules are tried in order
// and the first match wins.
type frequencyRule struct {
	name  string
	match func(text string) bool
	hours func(date, written time.Time) []int
}

func contains(subs ...string) func(string) bool {
	return func(text string) bool {
		for _, s := range subs {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
}

func fixed(hours ...int) func(date, written time.Time) []int {
	return func(time.Time, time.Time) []int { return hours }
}

var frequencyTable = []frequencyRule{
	{"four-times-daily", contains("four times daily", "qid"), fixed(8, 12, 16, 20)},
	{"three-times-daily", contains("three times daily", "tid"), fixed(9, 14, 21)},
	{"twice-daily", contains("twice daily", "bid"), fixed(9, 18)},
	{"weekly", contains("weekly"), func(date, written time.Time) []int {
		if date.Weekday() == written.In(date.Location()).Weekday() {
			return []int{DefaultHour}
		}
		return nil
	}},
	{"monthly", contains("monthly"), func(date, written time.Time) []int {
		if date.Day() == written.In(date.Location()).Day() {
			return []int{DefaultHour}
		}
		return nil
	}},
}

// intervalHours parses "every N hours". N must be between 1 and 24.
func intervalHours(text string) (int, bool) {
	m := everyNHours.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > 24 {
		return 0, false
	}
	return n, true
}

// FrequencySlots turns free-text frequency into the administration times
// on date, in date's location, in ascending order. written is the date the
// prescription was written; weekly and monthly orders repeat on its
// weekday and day of month. Unrecognised text yields the daily default
// rather than an error.
func FrequencySlots(frequency string, date, written time.Time) []time.Time {
	text := strings.ToLower(strings.TrimSpace(frequency))

	var hours []int
	if n, ok := intervalHours(text); ok {
		for h := 0; h < 24; h += n {
			hours = append(hours, h)
		}
	} else {
		hours = []int{DefaultHour}
		for _, r := range frequencyTable {
			if r.match(text) {
				hours = r.hours(date, written)
				break
			}
		}
	}

	y, m, d := date.Date()
	slots := make([]time.Time, 0, len(hours))
	for _, h := range hours {
		slots = append(slots, time.Date(y, m, d, h, 0, 0, 0, date.Location()))
	}
	return slots
}

// FrequencyPattern names the table row that frequency text resolves to,
// "daily" for the fallback.
func FrequencyPattern(frequency string) string {
	text := strings.ToLower(strings.TrimSpace(frequency))
	if _, ok := intervalHours(text); ok {
		return "every-n-hours"
	}
	for _, r := range frequencyTable {
		if r.match(text) {
			return r.name
		}
	}
	return "daily"
}
