package dailyfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/aethalometer/errors"
)

// months maps the instrument's month abbreviations to month numbers.
// Kept as a fixed table so the mapping never depends on the host locale.
var months = map[string]int{
	"jan": 1,
	"feb": 2,
	"mar": 3,
	"apr": 4,
	"may": 5,
	"jun": 6,
	"jul": 7,
	"aug": 8,
	"sep": 9,
	"oct": 10,
	"nov": 11,
	"dec": 12,
}

// Filename derives the daily file name for a date value such as "15-feb-17".
//
// Every double quote is removed before parsing, the year is reduced modulo 100
// and the result has the form BCDDMMYY.csv. The day is not range checked.
// A value that cannot be parsed yields a corrupted-data error naming it.
func Filename(date string) (string, error) {
	parts := strings.Split(strings.ReplaceAll(date, `"`, ""), "-")
	if len(parts) != 3 {
		return "", invalidDate(date, "expected day-month-year")
	}

	day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", invalidDate(date, "day is not a number")
	}

	month, ok := months[strings.ToLower(strings.TrimSpace(parts[1]))]
	if !ok {
		return "", invalidDate(date, "unknown month")
	}

	year, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return "", invalidDate(date, "year is not a number")
	}

	return fmt.Sprintf("BC%02d%02d%02d.csv", day, month, year%100), nil
}

func invalidDate(date, reason string) error {
	return errors.WrapCorrupted(
		fmt.Errorf("%w: the date value %q from the data line is invalid (%s)", errors.ErrInvalidDate, date, reason),
		"dailyfile", "Filename", "derive file name")
}
