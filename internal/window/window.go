// Package window partitions a calendar day in a fixed UTC offset into the
// time windows used to query the order source.
//
// The partition is fixed: a day splits into three quadrants
// (morning 00-05, business hours 06-17, evening 18-23) and a quadrant splits
// into its hours. Sibling windows never overlap and together cover the parent
// exactly; End is inclusive at second granularity.
package window

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/TemirB/shop-orders/internal/domain"
)

type Level int

const (
	LevelDay Level = iota
	LevelQuadrant
	LevelHour
)

// MaxDepth is the deepest level the splitter descends to. Windows at this
// level that are still truncated are reported, not split further.
const MaxDepth = int(LevelHour)

const DateLayout = "2006-01-02"

const (
	Full          = "full"
	FirstHalf     = "first-half"
	SecondHalf    = "second-half"
	Morning       = "morning"
	BusinessHours = "business-hours"
	Evening       = "evening"
)

var (
	ErrUnknownSelector   = errors.New("unknown window selector")
	ErrFinestGranularity = errors.New("window is already at the finest granularity")
)

var customRange = regexp.MustCompile(`^(\d{2}):(\d{2})-(\d{2}):(\d{2})$`)

type Window struct {
	Label string
	Level Level
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("%s [%s, %s]", w.Label, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Contains reports whether t falls inside the window. The inclusive end
// second is covered in full.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End.Add(time.Second))
}

// Date returns the calendar date of the window start in YYYY-MM-DD form.
func (w Window) Date() string {
	return w.Start.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, domain.ErrMissingDate
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, s)
	}
	return d, nil
}

// ParseOffset turns "+10:00" style offsets into a fixed zone.
func ParseOffset(offset string) (*time.Location, error) {
	t, err := time.Parse("-07:00", offset)
	if err != nil {
		return nil, fmt.Errorf("invalid utc offset %q: %w", offset, err)
	}
	_, secs := t.Zone()
	return time.FixedZone("UTC"+offset, secs), nil
}

// Day returns the whole-day window for the date of day.
func Day(day time.Time) Window {
	return span(day, Full, LevelDay, 0, 23)
}

// Quadrants returns morning, business hours and evening of day, in order.
func Quadrants(day Window) []Window {
	return []Window{
		span(day.Start, Morning, LevelQuadrant, 0, 5),
		span(day.Start, BusinessHours, LevelQuadrant, 6, 17),
		span(day.Start, Evening, LevelQuadrant, 18, 23),
	}
}

// Hours returns one window per hour covered by w, in order.
func Hours(w Window) []Window {
	out := make([]Window, 0, w.End.Hour()-w.Start.Hour()+1)
	for h := w.Start.Hour(); h <= w.End.Hour(); h++ {
		out = append(out, span(w.Start, fmt.Sprintf("%02d:00-%02d:59", h, h), LevelHour, h, h))
	}
	return out
}

// Split returns the next level of the schedule for w.
func Split(w Window) ([]Window, error) {
	switch w.Level {
	case LevelDay:
		return Quadrants(w), nil
	case LevelQuadrant:
		return Hours(w), nil
	default:
		return nil, ErrFinestGranularity
	}
}

// Resolve builds the window named by selector on date. An empty selector
// means the full day. Custom "HH:MM-HH:MM" ranges cover the start minute from
// second :00 through the end minute up to second :59 and are never split.
func Resolve(date, selector string, loc *time.Location) (Window, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return Window{}, err
	}

	switch selector {
	case "", Full:
		return Day(day), nil
	case FirstHalf:
		return span(day, FirstHalf, LevelQuadrant, 0, 11), nil
	case SecondHalf:
		return span(day, SecondHalf, LevelQuadrant, 12, 23), nil
	case Morning:
		return span(day, Morning, LevelQuadrant, 0, 5), nil
	case BusinessHours:
		return span(day, BusinessHours, LevelQuadrant, 6, 17), nil
	case Evening:
		return span(day, Evening, LevelQuadrant, 18, 23), nil
	}

	m := customRange.FindStringSubmatch(selector)
	if m == nil {
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownSelector, selector)
	}
	sh, _ := strconv.Atoi(m[1])
	sm, _ := strconv.Atoi(m[2])
	eh, _ := strconv.Atoi(m[3])
	em, _ := strconv.Atoi(m[4])
	if sh > 23 || eh > 23 || sm > 59 || em > 59 || sh*60+sm > eh*60+em {
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownSelector, selector)
	}

	y, mo, d := day.Date()
	return Window{
		Label: selector,
		Level: LevelHour,
		Start: time.Date(y, mo, d, sh, sm, 0, 0, loc),
		End:   time.Date(y, mo, d, eh, em, 59, 0, loc),
	}, nil
}

func span(day time.Time, label string, level Level, fromHour, toHour int) Window {
	y, m, d := day.Date()
	loc := day.Location()
	return Window{
		Label: label,
		Level: level,
		Start: time.Date(y, m, d, fromHour, 0, 0, 0, loc),
		End:   time.Date(y, m, d, toHour, 59, 59, 0, loc),
	}
}
