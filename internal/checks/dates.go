package checks

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "20060102"

var dateLayouts = []string{DateLayout, "2006-01-02"}

// ParseDate accepts YYYYMMDD or YYYY-MM-DD and returns midnight UTC.
func ParseDate(token string) (time.Time, error) {
	clean := strings.TrimSpace(token)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, clean); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q: expected YYYYMMDD or YYYY-MM-DD", token)
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
