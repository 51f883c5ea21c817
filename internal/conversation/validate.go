package conversation

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrEmptyName     = errors.New("conversation: name is empty")
	ErrInvalidPhone  = errors.New("conversation: invalid phone number")
	ErrShortAddress  = errors.New("conversation: address too short")
	ErrInvalidDate   = errors.New("conversation: unparseable date")
	ErrInvertedRange = errors.New("conversation: start date after end date")
	ErrEmptySymptoms = errors.New("conversation: symptoms are empty")
)

const minAddressLength = 5

var (
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	ordinalSuffix   = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	rangeSeparators = []string{" to ", "-", " - "}

	datedLayouts    = []string{"2 Jan 2006", "2 January 2006", "Jan 2 2006", "January 2 2006", "2/1/2006", "2.1.2006", "2-1-2006", "2006-01-02"}
	yearlessLayouts = []string{"2 Jan", "2 January", "Jan 2", "January 2", "2/1", "2.1"}
)

// ValidateName trims the input and rejects blanks.
func ValidateName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// NormalizePhone accepts 10 to 15 digits with an optional leading plus and
// nothing else once surrounding whitespace is trimmed. Numbers without a plus
// get defaultCC prepended.
func NormalizePhone(input, defaultCC string) (string, error) {
	phone := strings.TrimSpace(input)
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	if !strings.HasPrefix(phone, "+") {
		phone = defaultCC + phone
	}
	return phone, nil
}

// ValidateAddress requires at least five characters after trimming.
func ValidateAddress(input string) (string, error) {
	address := strings.TrimSpace(input)
	if len([]rune(address)) < minAddressLength {
		return "", ErrShortAddress
	}
	return address, nil
}

// ParseDateRange reads either a single date or two dates joined by " to ",
// "-" or " - ". Separators are tried in that order; a split whose halves do
// not both parse falls through to the next separator and finally to a single
// date, which yields a one-day range. Dates are day-first and returned as
// midnight in loc.
func ParseDateRange(input string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	lower := strings.ToLower(text)
	for _, sep := range rangeSeparators {
		idx := strings.Index(lower, sep)
		if idx < 0 {
			continue
		}
		start, errStart := ParseDate(text[:idx], now, loc)
		end, errEnd := ParseDate(text[idx+len(sep):], now, loc)
		if errStart != nil || errEnd != nil {
			continue
		}
		if start.After(end) {
			return time.Time{}, time.Time{}, ErrInvertedRange
		}
		return start, end, nil
	}
	day, err := ParseDate(text, now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day, day, nil
}

// ParseDate parses one day-first date. Ordinal suffixes ("10th") and commas
// are ignored; when the year is omitted the year of now in loc is used.
func ParseDate(input string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	text := strings.ReplaceAll(strings.TrimSpace(input), ",", " ")
	text = ordinalSuffix.ReplaceAllString(text, "$1")
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range datedLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	year := now.In(loc).Year()
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
