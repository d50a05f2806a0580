// Package stats derives dashboard statistics from a user's journal entries.
//
// Every function here is pure: results depend only on the arguments, and the
// reference instant is always passed in by the caller. Calendar days are
// evaluated in a single fixed UTC+9 zone so that bucket keys and week
// boundaries agree with the dates stored on entries.
package stats

import (
	"fmt"
	"sort"
	"time"

	"parentseed/internal/emotion"
	"parentseed/internal/models"
)

// Zone is the calendar convention shared by every date comparison.
var Zone = time.FixedZone("UTC+9", 9*60*60)

const dateLayout = "2006-01-02"

// NoRecordsMessage is returned by SummarizeWeek when the week has no entries.
const NoRecordsMessage = "今週はまだ記録がありません。"

const excerptRunes = 30

type Period string

const (
	OneWeek     Period = "1week"
	TwoWeeks    Period = "2weeks"
	OneMonth    Period = "1month"
	ThreeMonths Period = "3months"

	DefaultPeriod = TwoWeeks
)

var periodDays = map[Period]int{
	OneWeek:     7,
	TwoWeeks:    14,
	OneMonth:    30,
	ThreeMonths: 90,
}

// ParsePeriod accepts the four chart periods; "" maps to DefaultPeriod.
func ParsePeriod(s string) (Period, bool) {
	if s == "" {
		return DefaultPeriod, true
	}
	p := Period(s)
	_, ok := periodDays[p]
	return p, ok
}

// Days returns the number of buckets for p. Unknown periods fall back to
// DefaultPeriod.
func (p Period) Days() int {
	if d, ok := periodDays[p]; ok {
		return d
	}
	return periodDays[DefaultPeriod]
}

// Counts holds one integer per vocabulary tag.
type Counts map[emotion.Tag]int

func newCounts() Counts {
	c := make(Counts, len(emotion.All))
	for _, t := range emotion.All {
		c[t] = 0
	}
	return c
}

func (c Counts) add(tags []emotion.Tag) {
	for _, t := range tags {
		if t.Valid() {
			c[t]++
		}
	}
}

// Total sums every tag count.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Bucket is one calendar day of the emotion time series.
type Bucket struct {
	Label  string `json:"label"`
	Date   string `json:"date"`
	Counts Counts `json:"counts"`
}

// Weekly holds the scores for the current week.
type Weekly struct {
	StressLevel   int    `json:"stress_level"`
	Positivity    int    `json:"positivity"`
	EmotionTotals Counts `json:"emotion_totals"`
}

// DayKey formats t as the ISO calendar day in Zone.
func DayKey(t time.Time) string {
	return t.In(Zone).Format(dateLayout)
}

// startOfDay returns midnight in Zone for the day containing t.
func startOfDay(t time.Time) time.Time {
	l := t.In(Zone)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Zone)
}

func dayLabel(d time.Time) string {
	return fmt.Sprintf("%d月%d日", int(d.Month()), d.Day())
}

// BuildTimeSeries returns one bucket per day of period, oldest first, ending
// on the calendar day containing now. Each bucket counts, per tag, the entries
// dated that day carrying the tag. The skeleton is produced even when there
// are no entries.
func BuildTimeSeries(entries []models.JournalEntry, period Period, now time.Time) []Bucket {
	byDay := make(map[string]Counts)
	for _, e := range entries {
		c, ok := byDay[e.Date]
		if !ok {
			c = newCounts()
			byDay[e.Date] = c
		}
		c.add(e.Emotions)
	}

	days := period.Days()
	today := startOfDay(now)
	out := make([]Bucket, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i)
		key := d.Format(dateLayout)
		counts, ok := byDay[key]
		if !ok {
			counts = newCounts()
		}
		out = append(out, Bucket{Label: dayLabel(d), Date: key, Counts: counts})
	}
	return out
}

// WeekStart returns the ISO key of the most recent Sunday on or before now.
func WeekStart(now time.Time) string {
	today := startOfDay(now)
	return today.AddDate(0, 0, -int(today.Weekday())).Format(dateLayout)
}

// WeekEntries keeps the entries dated between the most recent Sunday and
// today inclusive, preserving the input order.
func WeekEntries(entries []models.JournalEntry, now time.Time) []models.JournalEntry {
	from, to := WeekStart(now), DayKey(now)
	var out []models.JournalEntry
	for _, e := range entries {
		if e.Date >= from && e.Date <= to {
			out = append(out, e)
		}
	}
	return out
}

func percent(part, total int) int {
	return int(float64(100*part)/float64(total) + 0.5)
}

// WeeklyStats scores the current week. The denominator is the total number of
// (entry, tag) pairs, floored at 1 so an empty week scores 0 on both axes.
func WeeklyStats(entries []models.JournalEntry, now time.Time) Weekly {
	totals := newCounts()
	for _, e := range WeekEntries(entries, now) {
		totals.add(e.Emotions)
	}

	var negative, positive int
	for t, n := range totals {
		switch {
		case t.Positive():
			positive += n
		case t.Negative():
			negative += n
		}
	}
	total := totals.Total()
	if total < 1 {
		total = 1
	}
	return Weekly{
		StressLevel:   percent(negative, total),
		Positivity:    percent(positive, total),
		EmotionTotals: totals,
	}
}

func distinctDays(entries []models.JournalEntry) []time.Time {
	seen := make(map[string]bool, len(entries))
	var days []time.Time
	for _, e := range entries {
		if seen[e.Date] {
			continue
		}
		seen[e.Date] = true
		d, err := time.Parse(dateLayout, e.Date)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func consecutive(prev, next time.Time) bool {
	return prev.AddDate(0, 0, 1).Equal(next)
}

// LongestStreak returns the longest run of consecutive calendar days with at
// least one entry, over the whole history.
func LongestStreak(entries []models.JournalEntry) int {
	days := distinctDays(entries)
	if len(days) == 0 {
		return 0
	}
	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if consecutive(days[i-1], days[i]) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

// CurrentStreak returns the run that ends today, or yesterday when today has
// no entry yet. Older runs count as broken.
func CurrentStreak(entries []models.JournalEntry, now time.Time) int {
	have := make(map[string]bool, len(entries))
	for _, e := range entries {
		have[e.Date] = true
	}
	day := startOfDay(now)
	if !have[day.Format(dateLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for have[day.Format(dateLayout)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

// TopEmotion returns the most frequent tag in c. Ties go to the tag declared
// first in the vocabulary. ok is false when every count is zero.
func TopEmotion(c Counts) (top emotion.Tag, ok bool) {
	best := 0
	for _, t := range emotion.All {
		if c[t] > best {
			top, best = t, c[t]
		}
	}
	return top, best > 0
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) > excerptRunes {
		r = r[:excerptRunes]
	}
	return string(r) + "..."
}

// SummarizeWeek renders a one-sentence summary of the current week. entries
// are expected newest first; the excerpt is taken from the first entry that
// falls inside the week.
func SummarizeWeek(entries []models.JournalEntry, now time.Time) string {
	week := WeekEntries(entries, now)
	if len(week) == 0 {
		return NoRecordsMessage
	}
	totals := newCounts()
	for _, e := range week {
		totals.add(e.Emotions)
	}
	label := "-"
	if top, ok := TopEmotion(totals); ok {
		label = top.Label()
	}
	return fmt.Sprintf("今週は%d件の記録がありました。最も多かった感情は「%s」でした。最新の記録:「%s」",
		len(week), label, excerpt(week[0].Content))
}

// Dashboard bundles every derived statistic for one request.
type Dashboard struct {
	ReferenceDate string   `json:"reference_date"`
	Period        Period   `json:"period"`
	TimeSeries    []Bucket `json:"time_series"`
	Weekly        Weekly   `json:"weekly"`
	LongestStreak int      `json:"longest_streak_days"`
	CurrentStreak int      `json:"current_streak_days"`
	Summary       string   `json:"weekly_summary"`
	TotalEntries  int      `json:"total_entries"`
}

// BuildDashboard evaluates the whole engine once against the same instant.
func BuildDashboard(entries []models.JournalEntry, period Period, now time.Time) Dashboard {
	if _, ok := periodDays[period]; !ok {
		period = DefaultPeriod
	}
	return Dashboard{
		ReferenceDate: DayKey(now),
		Period:        period,
		TimeSeries:    BuildTimeSeries(entries, period, now),
		Weekly:        WeeklyStats(entries, now),
		LongestStreak: LongestStreak(entries),
		CurrentStreak: CurrentStreak(entries, now),
		Summary:       SummarizeWeek(entries, now),
		TotalEntries:  len(entries),
	}
}
