// Package deliverydate extracts the requested delivery day from the free-text
// note attributes customers fill in at checkout.
//
// Slash dates are ambiguous. The rule used everywhere: when the first segment
// has four digits the value is year/month/day, otherwise it is read as
// day/month/year (Australian order).
package deliverydate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/TemirB/shop-orders/internal/domain"
)

// Date is a calendar day with no time or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

var (
	isoDash  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	slashed  = regexp.MustCompile(`^(\d{1,4})/(\d{1,2})/(\d{1,4})$`)
	freeForm = []string{
		"2 January 2006",
		"2 Jan 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"Monday, 2 January 2006",
		"Mon, 2 Jan 2006",
		"Monday 2 January 2006",
		"02.01.2006",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
)

// ParseFlexible tries YYYY-MM-DD, YYYY/MM/DD, DD/MM/YYYY and then a list of
// free-form layouts. Anything else, including impossible calendar days, is
// reported as no match.
func ParseFlexible(text string) (Date, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Date{}, false
	}

	if m := isoDash.FindStringSubmatch(s); m != nil {
		return build(m[1], m[2], m[3])
	}

	if m := slashed.FindStringSubmatch(s); m != nil {
		switch {
		case len(m[1]) == 4:
			return build(m[1], m[2], m[3])
		case len(m[3]) == 4:
			return build(m[3], m[2], m[1])
		default:
			return Date{}, false
		}
	}

	for _, layout := range freeForm {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, true
		}
	}
	return Date{}, false
}

func build(y, m, d string) (Date, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, false
	}
	if month < 1 || month > 12 || day < 1 {
		return Date{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return Date{}, false
	}
	return Date{Year: year, Month: time.Month(month), Day: day}, true
}

// IsDeliveryKey reports whether a note attribute name means "delivery date",
// ignoring case and separators.
func IsDeliveryKey(name string) bool {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String() == "deliverydate"
}

// FromOrder returns the delivery day of o from the first note attribute that
// names one and parses.
func FromOrder(o domain.Order) (Date, bool) {
	for _, attr := range o.NoteAttributes {
		if !IsDeliveryKey(attr.Name) {
			continue
		}
		if d, ok := ParseFlexible(attr.Value); ok {
			return d, true
		}
	}
	return Date{}, false
}

// Matches reports whether o is due for delivery on day ("YYYY-MM-DD").
func Matches(o domain.Order, day string) bool {
	d, ok := FromOrder(o)
	return ok && d.String() == day
}
