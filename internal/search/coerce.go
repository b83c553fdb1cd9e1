package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kerem-kaynak/tablecat/internal/schema"
)

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var (
	dateLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006", "20060102",
	}
	datetimeLayouts = []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04",
		"1/2/2006 15:04:05", "1/2/2006 15:04",
	}
	timeLayouts = []string{"15:04:05", "15:04", "3:04 PM", "3:04:05 PM"}
)

// Coerce converts a raw cell to the value indexed for a column of type typ.
// The second result is false when the cell is empty or does not parse.
func Coerce(typ, raw string) (interface{}, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}

	switch typ {
	case schema.TypeInt:
		n, ok := cleanNumber(s)
		if !ok {
			return nil, false
		}
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil || f != float64(int64(f)) {
				return nil, false
			}
			return int64(f), true
		}
		return i, true
	case schema.TypeFloat:
		n, ok := cleanNumber(s)
		if !ok {
			return nil, false
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case schema.TypeBool:
		switch strings.ToLower(s) {
		case "true", "t", "yes", "y", "1":
			return true, true
		case "false", "f", "no", "n", "0":
			return false, true
		}
		return nil, false
	case schema.TypeDate:
		if t, ok := parseAny(dateLayouts, s); ok {
			return t.Format("2006-01-02"), true
		}
		return nil, false
	case schema.TypeDatetime:
		if t, ok := parseAny(datetimeLayouts, s); ok {
			return t.UTC().Format(time.RFC3339), true
		}
		if t, ok := parseAny(dateLayouts, s); ok {
			return t.UTC().Format(time.RFC3339), true
		}
		return nil, false
	case schema.TypeTime:
		if t, ok := parseAny(timeLayouts, s); ok {
			return t.Format("15:04:05"), true
		}
		return nil, false
	default:
		return s, true
	}
}

// cleanNumber strips currency symbols and thousands separators and turns
// accounting negatives "(1.5)" into "-1.5".
func cleanNumber(s string) (string, bool) {
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)
	if negative {
		s = "-" + s
	}
	if !numericRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

func parseAny(layouts []string, s string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
